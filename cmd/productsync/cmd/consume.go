package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/BRO3886/productsync/internal/app"
	"github.com/BRO3886/productsync/internal/config"
	"github.com/BRO3886/productsync/internal/indexsync"
	"github.com/BRO3886/productsync/internal/kafka"
	"github.com/BRO3886/productsync/internal/logging"
	"github.com/BRO3886/productsync/internal/queue"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

type consumerOptions struct {
	topic  string
	group  string
	policy string
	addr   string
}

func newConsumeCmd(opts *rootOptions) *cobra.Command {
	var co consumerOptions

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Synchronize change notifications from Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			if co.topic == "" {
				co.topic = opts.cfg.Kafka.Topic.Name
			}
			if co.group == "" {
				co.group = opts.cfg.Kafka.ConsumerGroup
			}
			if co.addr == "" {
				co.addr = net.JoinHostPort("", opts.cfg.HTTP.Port)
			}
			return runConsumer(cmd.Context(), opts.cfg, opts.log, co)
		},
	}

	cmd.Flags().StringVar(&co.topic, "topic", "", "topic to consume (default kafka.topic.name)")
	cmd.Flags().StringVar(&co.group, "group", "", "consumer group (default kafka.consumer_group)")
	cmd.Flags().StringVar(&co.policy, "policy", "", "override sync.failure_policy")
	cmd.Flags().StringVar(&co.addr, "health-addr", "", "health endpoint address (default :http.port)")
	return cmd
}

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var co consumerOptions

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-synchronize dead-lettered notifications",
		Long: `Replay consumes the dead-letter topic with the propagate policy: a
notification that fails again with a transient error stops the consumer
without committing it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			co.topic = opts.cfg.Kafka.DeadLetterTopic
			co.group = opts.cfg.Kafka.ConsumerGroup + "-replay"
			co.policy = config.PolicyPropagate
			if co.addr == "" {
				co.addr = net.JoinHostPort("", opts.cfg.HTTP.Port)
			}
			return runConsumer(cmd.Context(), opts.cfg, opts.log, co)
		},
	}

	cmd.Flags().StringVar(&co.addr, "health-addr", "", "health endpoint address (default :http.port)")
	return cmd
}

func runConsumer(ctx context.Context, cfg *config.Config, log zerolog.Logger, co consumerOptions) error {
	if co.topic == "" {
		return errors.New("no topic to consume")
	}

	var appOpts []app.Option
	if co.policy != "" {
		appOpts = append(appOpts, app.WithPolicy(co.policy))
	}
	a, err := app.New(ctx, cfg, log, appOpts...)
	if err != nil {
		return err
	}
	defer a.Close()

	log = logging.Component(log, "consumer").With().Str("topic", co.topic).Str("group", co.group).Logger()
	dequeuer, err := kafka.NewDequeuer(ctx, app.KafkaConfig(cfg,
		kafka.WithClientID("productsync-consume"),
		kafka.WithTopics(co.topic),
		kafka.WithConsumerGroup(co.group),
	), log)
	if err != nil {
		return err
	}
	defer dequeuer.Close()

	srv := &http.Server{
		Addr:              co.addr,
		Handler:           healthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Msg("started consuming")
		defer log.Info().Msg("stopped consuming")
		return dequeuer.Dequeue(ctx, co.topic, notificationHandler(a.Router, log))
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// notificationHandler skips messages that can never be decoded or
// synchronized and routes the rest; a retryable error stops the consumer
// before the offset is marked.
func notificationHandler(r *indexsync.Router, log zerolog.Logger) queue.MessageHandler {
	return func(ctx context.Context, data []byte) error {
		n, err := types.ParseNotification(data)
		if err != nil {
			log.Error().Err(err).Msg("error unmarshalling notification, skipping")
			return nil
		}
		err = r.Route(ctx, n)
		var serr *indexsync.SyncError
		if errors.As(err, &serr) && !serr.Retryable() {
			log.Error().Err(err).Str("id", serr.ID).Msg("notification cannot be synchronized, skipping")
			return nil
		}
		return err
	}
}

func healthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}
