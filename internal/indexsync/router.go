package indexsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/BRO3886/productsync/internal/types"
	"github.com/rs/zerolog"
)

// Router dispatches notifications to the synchronizer whose path template
// matches the document path. Notifications without a path go to the first
// synchronizer.
type Router struct {
	syncs []*Synchronizer
	log   zerolog.Logger
}

func NewRouter(log zerolog.Logger, syncs ...*Synchronizer) *Router {
	return &Router{syncs: syncs, log: log}
}

func (r *Router) Synchronizers() []*Synchronizer {
	return r.syncs
}

func (r *Router) Route(ctx context.Context, n types.ChangeNotification) error {
	if len(r.syncs) == 0 {
		return errors.New("no synchronizers configured")
	}

	if n.Document == "" {
		return r.syncs[0].Synchronize(ctx, n)
	}

	for _, s := range r.syncs {
		params, ok := s.trigger.Path.Match(n.Document)
		if !ok {
			continue
		}
		// the path is authoritative for the identifier
		pathID := params[s.trigger.Path.IDParam()]
		if n.ID != "" && n.ID != pathID {
			r.log.Warn().Str("document", n.Document).Str("id", n.ID).Msg("identifier differs from document path, using path")
		}
		n.ID = pathID
		return s.Synchronize(ctx, n)
	}

	first := r.syncs[0]
	serr := &SyncError{
		Kind:    KindInvalid,
		Op:      "route",
		Trigger: first.trigger.Name,
		ID:      n.ID,
		Err:     fmt.Errorf("no trigger matches document %q", n.Document),
	}
	return first.fail(ctx, n, serr)
}
