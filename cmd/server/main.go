package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/chits-backend/internal/archive"
	"github.com/DoyleJ11/chits-backend/internal/config"
	"github.com/DoyleJ11/chits-backend/internal/httpapi"
	"github.com/DoyleJ11/chits-backend/internal/hub"
	"github.com/DoyleJ11/chits-backend/internal/logging"
	"github.com/DoyleJ11/chits-backend/internal/ws"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var openArchive = func(dsn string) (archive.Store, error) {
	return archive.OpenPostgres(dsn)
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) (err error) {
	g, gctx := errgroup.WithContext(ctx)

	hubOpts := []hub.Option{
		hub.WithLogger(log),
		hub.WithReactionTimeout(cfg.ReactionTimeout),
	}

	if cfg.ArchiveEnabled() {
		store, openErr := openArchive(cfg.DatabaseURL)
		if openErr != nil {
			return openErr
		}
		defer multierr.AppendInvoke(&err, multierr.Close(store))

		writer := archive.NewWriter(store, cfg.ArchiveBuffer, log)
		hubOpts = append(hubOpts, hub.WithRecorder(writer))
		g.Go(func() error { return writer.Run(gctx) })
		log.Info("result archive enabled")
	}

	h := hub.NewHub(gctx, hubOpts...)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(h, httpapi.Options{
			Logger:         log,
			AllowedOrigins: cfg.AllowedOrigins,
			WS: ws.Options{
				OutboxSize:  cfg.OutboxSize,
				IdleTimeout: cfg.IdleTimeout,
			},
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		errs := srv.Shutdown(shutdownCtx)
		h.Shutdown()
		select {
		case <-h.Done():
		case <-shutdownCtx.Done():
			errs = multierr.Append(errs, fmt.Errorf("hub did not stop: %w", shutdownCtx.Err()))
		}
		return errs
	})

	return g.Wait()
}
