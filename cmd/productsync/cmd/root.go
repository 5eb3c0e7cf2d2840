// Package cmd provides the productsync CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BRO3886/productsync/internal/config"
	"github.com/BRO3886/productsync/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "productsync",
		Short: "Keep the product search index in step with document changes",
		Long: `productsync writes created, updated and deleted documents into a search
index (Elasticsearch, OpenSearch or an embedded bleve index).

It can serve the Cloud Functions entrypoints locally, consume change
notifications from Kafka, replay dead-lettered notifications and ingest
notifications from a JSONL file.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	cmd.SetVersionTemplate("productsync version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $CONFIG_FILE or "+config.DefaultPath+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newServeCmd(opts),
		newConsumeCmd(opts),
		newReplayCmd(opts),
		newIngestCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func (o *rootOptions) load() error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	o.cfg = cfg
	o.log = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr)
	return nil
}

// Execute runs the root command until SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
