package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/tablewire/internal/adapters/http/api"
	"github.com/okian/tablewire/internal/adapters/http/swagger"
	"github.com/okian/tablewire/internal/adapters/http/ws"
	app "github.com/okian/tablewire/internal/app"
	"github.com/okian/tablewire/internal/config"
	"github.com/okian/tablewire/pkg/logger"
	"github.com/okian/tablewire/pkg/metrics"

	_ "github.com/okian/tablewire/internal/provider/evolution"
	_ "github.com/okian/tablewire/internal/provider/pragmatic"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(ctx, "failed to load config", logger.Error(err))
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal(ctx, "gateway failed", logger.Error(err))
	}
}

// run serves until ctx is cancelled and then shuts everything down.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc := app.New(cfg, app.WithLogger(log))
	if err := svc.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, log),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go refreshStats(ctx, svc)

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	svc.Stop(shutdownCtx)

	log.Info(ctx, "server stopped")
	return serveErr
}

// newMux wires the discovery API, the client socket and the API docs.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	api.NewServer(svc, svc, log).Register(ctx, mux)

	ws.NewHandler(svc.Hub(),
		ws.WithAllowedOrigins(cfg.AllowedOrigins),
		ws.WithReadLimit(cfg.MaxClientMessageBytes),
		ws.WithLogger(log),
	).Register(ctx, mux)

	swagger.Register(ctx, mux)
	return mux
}

// refreshStats keeps the system gauges current between /stats scrapes.
func refreshStats(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(metrics.GaugeRefresh())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.GetStats()
		}
	}
}
