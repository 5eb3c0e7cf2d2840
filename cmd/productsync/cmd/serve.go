package cmd

import (
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/spf13/cobra"

	// registers OnNewPost, HelloWorld and IndexProduct
	_ "github.com/BRO3886/productsync"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var port, target string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Cloud Functions entrypoints over HTTP",
		Long: `Serve runs the Functions Framework locally. Without --target every function
is served under /<name>; with it only that function is served at /.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = opts.cfg.HTTP.Port
			}
			if target != "" {
				if err := os.Setenv("FUNCTION_TARGET", target); err != nil {
					return err
				}
			}
			// the functions load their own config, point them at the same file
			if opts.configPath != "" {
				if err := os.Setenv("CONFIG_FILE", opts.configPath); err != nil {
					return err
				}
			}

			opts.log.Info().Str("port", port).Str("target", target).Msg("serving functions")
			return funcframework.Start(port)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default http.port)")
	cmd.Flags().StringVar(&target, "target", "", "serve a single function at /")
	return cmd
}
