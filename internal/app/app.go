package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/store/logfile"
	transporthttp "github.com/vovakirdan/wirerelay/internal/transport/http"
	"github.com/vovakirdan/wirerelay/internal/transport/tcp"
)

// App wires together core and transport layers.
type App struct {
	relay           *tcp.Server
	admin           *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           *logfile.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := logfile.Open(cfg.HistoryPath,
		logfile.WithSync(cfg.HistorySync),
		logfile.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}

	logger.Info().Str("history_path", cfg.HistoryPath).Bool("sync", cfg.HistorySync).Msg("history store opened")

	hub := core.NewHub(st, logger)
	relay := tcp.NewServer(hub, cfg, logger)

	a := &App{
		relay:           relay,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}
	if cfg.AdminAddr != "" {
		a.admin = transporthttp.NewServer(hub, relay.Handler(), cfg, logger)
	}
	return a, nil
}

// Hub returns the shared relay state.
func (a *App) Hub() *core.Hub {
	return a.hub
}

// Run starts the relay listener and, when configured, the admin HTTP server.
// It blocks until ctx is cancelled or a listener fails, then releases the
// history store.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.relay.ListenAndServe(ctx)
	})

	if a.admin != nil {
		// Hijacked websocket handlers outlive Shutdown; tie them to ctx.
		a.admin.BaseContext = func(net.Listener) context.Context { return ctx }

		g.Go(func() error {
			a.log.Info().Str("addr", a.admin.Addr).Msg("admin http server listening")
			if err := a.admin.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("admin http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
			defer cancel()

			a.log.Info().Msg("shutting down http server")
			return a.admin.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// cleanup closes the history store.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
