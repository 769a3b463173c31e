package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/logging"
	"github.com/jrsteele09/go-tenant-session/internal/telemetry"
	"github.com/jrsteele09/go-tenant-session/kvstore"
	"github.com/jrsteele09/go-tenant-session/kvstore/backends"
	"github.com/jrsteele09/go-tenant-session/sessions"
	"github.com/jrsteele09/go-tenant-session/transport"
	"github.com/rs/zerolog/log"
)

// app is everything one command invocation needs. The persisted session lives
// in the kv store, so each invocation restores it from scratch.
type app struct {
	cfg         config.Config
	kv          kvstore.Store
	coordinator *sessions.Coordinator

	logCloser     io.Closer
	traceShutdown func(context.Context) error
}

func openApp(ctx context.Context) (*app, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("DASH_CONFIG")
	}
	if err := config.LoadFile(path); err != nil {
		return nil, err
	}
	cfg := config.New()

	level := cfg.GetLogLevel()
	if flagVerbose {
		level = "debug"
	}
	logCloser, err := logging.Setup(logging.Options{
		Level:       level,
		Format:      cfg.GetLogFormat(),
		Environment: cfg.GetEnv(),
		File:        cfg.GetLogFile(),
	})
	if err != nil {
		return nil, fmt.Errorf("logging.Setup: %w", err)
	}

	a := &app{
		cfg:           cfg,
		logCloser:     logCloser,
		traceShutdown: telemetry.Setup(cfg.GetAppName()),
	}

	a.kv, err = backends.Open(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	client, err := transport.New(cfg.GetGraphQLURL(), cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	a.coordinator = sessions.New(cfg, a.kv, client)
	if err := a.coordinator.InitializeAuth(ctx); err != nil {
		log.Warn().Err(err).Msg("session restore incomplete")
	}
	return a, nil
}

func (a *app) close() {
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			log.Err(err).Msg("unable to close store")
		}
	}
	if a.traceShutdown != nil {
		_ = a.traceShutdown(context.Background())
	}
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
}

// withApp opens the app around fn.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// withSession is withApp for commands that need a signed in user.
func withSession(ctx context.Context, fn func(a *app) error) error {
	return withApp(ctx, func(a *app) error {
		if !a.coordinator.IsAuthenticated() {
			return fmt.Errorf("not logged in, run \"dashctl login\" first")
		}
		if st := a.coordinator.State(); st.AssociationsError != "" {
			log.Warn().Str("error", st.AssociationsError).Msg("associations unavailable")
		}
		return fn(a)
	})
}
