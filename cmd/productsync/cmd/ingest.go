package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BRO3886/productsync/internal/app"
	"github.com/BRO3886/productsync/internal/kafka"
	"github.com/BRO3886/productsync/internal/logging"
	"github.com/BRO3886/productsync/internal/queue"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const maxLineSize = 4 << 20

type ingestStats struct {
	Enqueued int
	Skipped  int
	Failed   int
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var (
		file        string
		topic       string
		interval    time.Duration
		createTopic bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Publish change notifications from a JSONL file to Kafka",
		RunE: func(cmd *cobra.Command, args []string) error {
			if topic == "" {
				topic = opts.cfg.Kafka.Topic.Name
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to read stream file: %w", err)
			}
			defer f.Close()

			log := logging.Component(opts.log, "ingest")
			kcfg := app.KafkaConfig(opts.cfg, kafka.WithClientID("productsync-ingest"))
			if createTopic {
				if err := ensureTopic(kcfg, kafka.TopicSpec{
					Name:              topic,
					Partitions:        int32(opts.cfg.Kafka.Topic.Partitions),
					ReplicationFactor: int16(opts.cfg.Kafka.Topic.ReplicationFactor),
				}, log); err != nil {
					return err
				}
			}
			enqueuer, err := kafka.NewEnqueuer(cmd.Context(), kcfg, log)
			if err != nil {
				return fmt.Errorf("error starting kafka enqueuer: %w", err)
			}
			defer enqueuer.Close()

			stats, err := ingest(cmd.Context(), f, enqueuer, topic, interval, time.Now, log)
			log.Info().
				Int("enqueued", stats.Enqueued).
				Int("skipped", stats.Skipped).
				Int("failed", stats.Failed).
				Msg("ingestion completed")
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "stream.jsonl", "JSONL file of change notifications")
	cmd.Flags().StringVar(&topic, "topic", "", "destination topic (default kafka.topic.name)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "pause between messages")
	cmd.Flags().BoolVar(&createTopic, "create-topic", true, "create the topic with kafka.topic.partitions if it is missing")
	return cmd
}

func ensureTopic(kcfg *kafka.Config, spec kafka.TopicSpec, log zerolog.Logger) error {
	admin, err := kafka.NewClusterAdmin(kcfg)
	if err != nil {
		return fmt.Errorf("error connecting kafka admin: %w", err)
	}
	defer admin.Close()
	return kafka.EnsureTopic(admin, spec, log)
}

// ingest enqueues one notification per line. Undecodable lines and lines
// stamped in the future are skipped.
func ingest(ctx context.Context, r io.Reader, enq queue.Enqueuer, topic string, interval time.Duration, now func() time.Time, log zerolog.Logger) (ingestStats, error) {
	var stats ingestStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		n, err := types.ParseNotification(raw)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("error unmarshalling notification")
			stats.Skipped++
			continue
		}
		if n.TimeStamp > 0 && time.UnixMilli(n.TimeStamp).After(now()) {
			log.Warn().Int("line", line).Msg("notification is in the future")
			stats.Skipped++
			continue
		}

		key := n.ID
		if key == "" {
			key = n.Document
		}
		// the scanner reuses its buffer
		value := append([]byte(nil), raw...)
		if err := enq.Enqueue(ctx, topic, queue.Message{Key: key, Value: value}); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Error().Err(err).Int("line", line).Msg("error enqueuing notification")
			stats.Failed++
			continue
		}
		stats.Enqueued++
		log.Debug().Int("line", line).Str("key", key).Msg("enqueued notification")

		if interval > 0 {
			select {
			case <-ctx.Done():
				return stats, ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return stats, scanner.Err()
}
