// Package indexsync turns document change notifications into search index
// writes.
package indexsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BRO3886/productsync/internal/queue"
	"github.com/BRO3886/productsync/internal/search"
	"github.com/BRO3886/productsync/internal/types"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Policy string

const (
	// PolicyLog logs failures and reports success to the caller.
	PolicyLog Policy = "log"
	// PolicyPropagate returns retryable failures so the platform redelivers.
	PolicyPropagate Policy = "propagate"
	// PolicyDeadLetter publishes failed notifications for later replay.
	PolicyDeadLetter Policy = "deadletter"
)

const deadLetterTimeout = 10 * time.Second

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyLog, PolicyPropagate, PolicyDeadLetter:
		return p, nil
	}
	return "", fmt.Errorf("unknown failure policy: %q", s)
}

// Trigger binds a collection path template to the index it feeds.
type Trigger struct {
	Name  string
	Index string
	Path  types.PathTemplate
}

type Option func(*Synchronizer)

func WithPolicy(p Policy) Option {
	return func(s *Synchronizer) {
		s.policy = p
	}
}

func WithDeadLetter(enq queue.Enqueuer, topic string) Option {
	return func(s *Synchronizer) {
		s.dlq = enq
		s.dlqTopic = topic
	}
}

// WithRefreshLimiter bounds how often refreshes reach the index. Callers
// wait for a token instead of skipping the refresh.
func WithRefreshLimiter(l *rate.Limiter) Option {
	return func(s *Synchronizer) {
		s.limiter = l
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Synchronizer) {
		s.log = l
	}
}

// Synchronizer is stateless apart from its injected collaborators and may
// be shared by concurrent invocations.
type Synchronizer struct {
	trigger  Trigger
	indexer  search.Indexer
	policy   Policy
	dlq      queue.Enqueuer
	dlqTopic string
	limiter  *rate.Limiter
	log      zerolog.Logger
}

func New(t Trigger, indexer search.Indexer, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		trigger: t,
		indexer: indexer,
		policy:  PolicyPropagate,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("trigger", t.Name).Str("index", t.Index).Logger()
	return s
}

func (s *Synchronizer) Trigger() Trigger {
	return s.trigger
}

// Synchronize writes the notification's record under n.ID, merges it for
// partial notifications, or deletes it for deleted notifications, then
// refreshes the index. Failures go through the configured policy; the
// returned error is what the caller should report. A partial update of a
// missing record is always returned.
func (s *Synchronizer) Synchronize(ctx context.Context, n types.ChangeNotification) error {
	if serr := s.apply(ctx, n); serr != nil {
		return s.fail(ctx, n, serr)
	}
	return nil
}

func (s *Synchronizer) apply(ctx context.Context, n types.ChangeNotification) *SyncError {
	if n.ID == "" {
		return s.syncError(KindInvalid, "validate", n.ID, errors.New("missing document identifier"))
	}

	switch {
	case n.IsDelete():
		if err := s.indexer.Delete(ctx, s.trigger.Index, n.ID); err != nil {
			return s.syncError(classify(err), "delete", n.ID, err)
		}
	case n.Partial:
		rec := types.NewIndexRecord(s.trigger.Index, n.ID, n.Data)
		if err := s.indexer.Update(ctx, rec); err != nil {
			kind := classify(err)
			if search.IsNotFound(err) {
				kind = KindNotFound
			}
			return s.syncError(kind, "update", n.ID, err)
		}
	default:
		rec := types.NewIndexRecord(s.trigger.Index, n.ID, n.Data)
		if err := s.indexer.Index(ctx, rec); err != nil {
			return s.syncError(classify(err), "index", n.ID, err)
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return s.syncError(KindTransient, "refresh", n.ID, err)
		}
	}
	if err := s.indexer.Refresh(ctx, s.trigger.Index); err != nil {
		return s.syncError(classify(err), "refresh", n.ID, err)
	}

	s.log.Info().Str("id", n.ID).Str("kind", string(n.Kind)).Msg("document synchronized")
	return nil
}

func (s *Synchronizer) syncError(kind ErrorKind, op, id string, err error) *SyncError {
	return &SyncError{Kind: kind, Op: op, Trigger: s.trigger.Name, ID: id, Err: err}
}

func (s *Synchronizer) fail(ctx context.Context, n types.ChangeNotification, serr *SyncError) error {
	log := s.log.With().
		Str("id", serr.ID).
		Str("op", serr.Op).
		Str("error_kind", string(serr.Kind)).
		Str("document", n.Document).
		Logger()

	// the caller asked for a merge into a record that does not exist; there
	// is nothing to retry or replay, only to report
	if serr.Kind == KindNotFound {
		log.Warn().Err(serr.Err).Msg("document to update not found")
		return serr
	}

	switch s.policy {
	case PolicyLog:
		log.Error().Err(serr.Err).Msg("error indexing document")
		return nil

	case PolicyDeadLetter:
		if err := s.deadLetter(ctx, n, serr); err != nil {
			log.Error().Err(err).AnErr("cause", serr.Err).Msg("error dead-lettering document")
			return multierror.Append(serr, fmt.Errorf("dead letter: %w", err))
		}
		log.Warn().Err(serr.Err).Str("topic", s.dlqTopic).Msg("document dead-lettered")
		return nil

	default:
		if !serr.Retryable() {
			log.Error().Err(serr.Err).Msg("dropping document that cannot succeed on retry")
			return nil
		}
		log.Error().Err(serr.Err).Msg("error indexing document")
		return serr
	}
}

func (s *Synchronizer) deadLetter(ctx context.Context, n types.ChangeNotification, serr *SyncError) error {
	if s.dlq == nil {
		return errors.New("no dead-letter queue configured")
	}

	n.Error = serr.Error()
	if n.TimeStamp == 0 {
		n.TimeStamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	// the invocation context may be the one that just expired
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deadLetterTimeout)
	defer cancel()
	return s.dlq.Enqueue(ctx, s.dlqTopic, queue.Message{Key: n.ID, Value: data})
}
