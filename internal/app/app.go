// Package app wires configuration into the indexer, the synchronizers and
// the router shared by every entrypoint.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/BRO3886/productsync/internal/config"
	"github.com/BRO3886/productsync/internal/elasticsearch"
	"github.com/BRO3886/productsync/internal/indexsync"
	"github.com/BRO3886/productsync/internal/kafka"
	"github.com/BRO3886/productsync/internal/localindex"
	"github.com/BRO3886/productsync/internal/logging"
	"github.com/BRO3886/productsync/internal/opensearch"
	"github.com/BRO3886/productsync/internal/queue"
	"github.com/BRO3886/productsync/internal/search"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type App struct {
	Config  *config.Config
	Indexer search.Indexer
	Router  *indexsync.Router
	Log     zerolog.Logger

	deadLetter queue.Enqueuer
}

type Option func(*options)

type options struct {
	indexer    search.Indexer
	deadLetter queue.Enqueuer
	policy     string
}

// WithIndexer replaces the indexer built from the search config.
func WithIndexer(i search.Indexer) Option {
	return func(o *options) {
		o.indexer = i
	}
}

// WithDeadLetter replaces the Kafka producer used by the deadletter policy.
func WithDeadLetter(e queue.Enqueuer) Option {
	return func(o *options) {
		o.deadLetter = e
	}
}

// WithPolicy overrides sync.failure_policy.
func WithPolicy(p string) Option {
	return func(o *options) {
		o.policy = p
	}
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{policy: cfg.Sync.FailurePolicy}
	for _, opt := range opts {
		opt(&o)
	}
	// an override bypasses the check Validate made on sync.failure_policy
	if err := cfg.ValidatePolicy(o.policy); err != nil {
		return nil, err
	}
	policy, err := indexsync.ParsePolicy(o.policy)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Log: log, Indexer: o.indexer, deadLetter: o.deadLetter}
	if a.Indexer == nil {
		if a.Indexer, err = NewIndexer(cfg, log); err != nil {
			return nil, fmt.Errorf("error creating %s indexer: %w", cfg.Search.Engine, err)
		}
	}

	if policy == indexsync.PolicyDeadLetter && a.deadLetter == nil {
		a.deadLetter, err = kafka.NewEnqueuer(ctx, KafkaConfig(cfg, kafka.WithClientID("productsync-deadletter")), logging.Component(log, "deadletter"))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("error creating dead-letter producer: %w", err)
		}
	}

	var limiter *rate.Limiter
	if cfg.Search.RefreshPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Search.RefreshPerSecond), 1)
	}

	syncs := make([]*indexsync.Synchronizer, 0, len(cfg.Sync.Triggers))
	for _, t := range cfg.Sync.Triggers {
		path, err := types.ParsePathTemplate(t.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("trigger %s: %w", t.Name, err)
		}

		if cfg.Search.CreateIndices {
			mapping, err := t.LoadMapping()
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("trigger %s: %w", t.Name, err)
			}
			if err := a.Indexer.EnsureIndex(ctx, t.Index, mapping); err != nil {
				a.Close()
				return nil, fmt.Errorf("error creating index %s: %w", t.Index, err)
			}
		}

		syncOpts := []indexsync.Option{
			indexsync.WithPolicy(policy),
			indexsync.WithLogger(logging.Component(log, "sync")),
		}
		if limiter != nil {
			syncOpts = append(syncOpts, indexsync.WithRefreshLimiter(limiter))
		}
		if a.deadLetter != nil {
			syncOpts = append(syncOpts, indexsync.WithDeadLetter(a.deadLetter, cfg.Kafka.DeadLetterTopic))
		}
		syncs = append(syncs, indexsync.New(indexsync.Trigger{Name: t.Name, Index: t.Index, Path: path}, a.Indexer, syncOpts...))
	}

	a.Router = indexsync.NewRouter(logging.Component(log, "router"), syncs...)
	log.Info().
		Str("engine", cfg.Search.Engine).
		Str("policy", string(policy)).
		Int("triggers", len(syncs)).
		Msg("application initialized")
	return a, nil
}

// NewIndexer builds the search backend named by search.engine.
func NewIndexer(cfg *config.Config, log zerolog.Logger) (search.Indexer, error) {
	log = logging.Component(log, cfg.Search.Engine)
	switch cfg.Search.Engine {
	case config.EngineElasticsearch:
		return elasticsearch.New(elasticsearch.Config{
			Addresses:  cfg.Search.URLs,
			Username:   cfg.Search.Username,
			Password:   cfg.Search.Password,
			MaxRetries: cfg.Search.MaxRetries,
		}, log)
	case config.EngineOpensearch:
		return opensearch.New(opensearch.Config{
			URLs:               cfg.Search.URLs,
			Username:           cfg.Search.Username,
			Password:           cfg.Search.Password,
			MaxRetries:         cfg.Search.MaxRetries,
			InsecureSkipVerify: cfg.Search.InsecureSkipVerify,
		}, log)
	case config.EngineBleve:
		return localindex.New(cfg.Search.BlevePath, log), nil
	}
	return nil, fmt.Errorf("unknown search engine: %q", cfg.Search.Engine)
}

// KafkaConfig returns the producer/consumer settings from the kafka section.
func KafkaConfig(cfg *config.Config, opts ...kafka.ConfigOpts) *kafka.Config {
	base := []kafka.ConfigOpts{
		kafka.WithBrokers(cfg.Kafka.Brokers...),
		kafka.WithConsumerGroup(cfg.Kafka.ConsumerGroup),
		kafka.WithConsumeOldest(),
		kafka.WithRetry(
			cfg.Kafka.Retry.Max,
			time.Duration(cfg.Kafka.Retry.Backoff)*time.Millisecond,
		),
	}
	return kafka.NewConfig(append(base, opts...)...)
}

// DefaultTrigger is the first configured trigger; HTTP product submissions
// are written through it.
func (a *App) DefaultTrigger() indexsync.Trigger {
	return a.Router.Synchronizers()[0].Trigger()
}

func (a *App) Close() error {
	var result *multierror.Error
	if a.deadLetter != nil {
		if err := a.deadLetter.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("dead-letter producer: %w", err))
		}
	}
	if a.Indexer != nil {
		if err := a.Indexer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("indexer: %w", err))
		}
	}
	return result.ErrorOrNil()
}
