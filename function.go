// Package productsync registers the Cloud Functions entrypoints that keep
// the product search index in step with Firestore.
package productsync

import (
	"context"
	"net/http"
	"sync"

	"github.com/BRO3886/productsync/internal/app"
	"github.com/BRO3886/productsync/internal/config"
	"github.com/BRO3886/productsync/internal/logging"
	"github.com/BRO3886/productsync/internal/trigger"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/rs/zerolog"
)

var (
	setupOnce sync.Once
	cfg       *config.Config
	cfgErr    error
	rootLog   zerolog.Logger

	mu      sync.Mutex
	current *app.App
)

func init() {
	functions.CloudEvent("OnNewPost", OnNewPost)
	functions.HTTP("HelloWorld", HelloWorld)
	functions.HTTP("IndexProduct", IndexProduct)
	functions.HTTP("UpdateProduct", UpdateProduct)
}

func setup() {
	setupOnce.Do(func() {
		cfg, cfgErr = config.Load("")
		lc := logging.Config{Level: "info", Format: logging.FormatGCP}
		if cfgErr == nil {
			lc = logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}
		}
		rootLog = logging.New(lc, nil)
		if cfgErr != nil {
			rootLog.Error().Err(cfgErr).Msg("error loading config")
		}
	})
}

// instance builds the application on first use. A failed build is retried
// on the next invocation instead of poisoning the instance.
func instance(ctx context.Context) (*app.App, error) {
	setup()
	if cfgErr != nil {
		return nil, cfgErr
	}

	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return current, nil
	}
	a, err := app.New(ctx, cfg, rootLog)
	if err != nil {
		rootLog.Error().Err(err).Msg("error initializing application")
		return nil, err
	}
	current = a
	return current, nil
}

// OnNewPost synchronizes Firestore document events into the search index.
func OnNewPost(ctx context.Context, e event.Event) error {
	a, err := instance(ctx)
	if err != nil {
		return err
	}
	return trigger.NewFirestore(a.Router, logging.Component(a.Log, "firestore")).HandleEvent(ctx, e)
}

func HelloWorld(w http.ResponseWriter, r *http.Request) {
	setup()
	trigger.HelloWorld(rootLog)(w, r)
}

func IndexProduct(w http.ResponseWriter, r *http.Request) {
	a, err := instance(r.Context())
	if err != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	trigger.IndexProduct(a.Router, a.DefaultTrigger().Path, logging.Component(a.Log, "http")).ServeHTTP(w, r)
}

func UpdateProduct(w http.ResponseWriter, r *http.Request) {
	a, err := instance(r.Context())
	if err != nil {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	trigger.UpdateProduct(a.Router, a.DefaultTrigger().Path, logging.Component(a.Log, "http")).ServeHTTP(w, r)
}
