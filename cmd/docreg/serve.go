package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"docreg/internal/config"
	"docreg/internal/events"
	"docreg/internal/httpapi"
	"docreg/internal/limiter"
	"docreg/internal/notify"
	"docreg/internal/registration"
	"docreg/internal/tracing"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registration HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}

			logger := newLogger(cfg.Logging, os.Stdout)
			slog.SetDefault(logger)

			// Create root context with cancellation
			rootCtx, rootCancel := context.WithCancel(cmd.Context())
			defer rootCancel()

			// Wait for shutdown signal
			go func() {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				defer signal.Stop(sigCh)

				select {
				case sig := <-sigCh:
					logger.Info("shutdown signal received", "signal", sig)
					rootCancel()
				case <-rootCtx.Done():
				}
			}()

			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
			}
			return a.runServer(rootCtx, cfg, ln, logger)
		},
	}

	cmd.Flags().String("addr", "", "listen address, e.g. :8080")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}

// runServer serves on ln until ctx is cancelled, then drains in-flight work
// within the configured shutdown timeout
func (a *app) runServer(ctx context.Context, cfg *config.Config, ln net.Listener, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		ln.Close()
		return fmt.Errorf("create tracer: %w", err)
	}

	db, err := a.openDB(cfg, logger)
	if err != nil {
		ln.Close()
		return err
	}
	defer db.Close()

	hub := events.NewHub(logger.With("component", "events"))

	// The Telegram notifier reviews through the service, so it is
	// attached after the service exists
	var tg *notify.Telegram
	listeners := []registration.Listener{
		hub,
		registration.ListenerFunc(func(ctx context.Context, ev registration.Event) {
			if tg != nil {
				tg.OnEvent(ctx, ev)
			}
		}),
	}

	svc := newService(db, cfg, registration.Options{
		Approvals: limiter.NewKeyLimiter(0),
		Tracer:    tp.Tracer("docreg/registration"),
		Listeners: listeners,
	}, logger)

	if cfg.Telegram.Enabled {
		tg, err = notify.NewTelegram(cfg.Telegram, svc, logger.With("component", "telegram"))
		if err != nil {
			ln.Close()
			return fmt.Errorf("create telegram notifier: %w", err)
		}
	}

	handler := httpapi.NewHandler(svc, db, httpapi.Options{
		BasePath:   cfg.Server.BasePath,
		AdminToken: cfg.Server.AdminToken,
		BcryptCost: cfg.Registration.BcryptCost,
		Events:     hub,
		Tracer:     tp.Tracer("docreg/http"),
	}, logger)

	srv := &http.Server{
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	// WaitGroup for tracking active goroutines
	var wg sync.WaitGroup
	serveErr := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if tg != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tg.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("telegram notifier error", "error", err)
			}
		}()
	}

	logger.Info("server started",
		"addr", ln.Addr().String(),
		"base_path", cfg.Server.BasePath,
		"telegram", cfg.Telegram.Enabled,
		"tracing", tp.Enabled(),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		logger.Error("server error", "error", runErr)
	}
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	hub.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	if tg != nil {
		tg.Wait(time.Second)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("tracer shutdown failed", "error", err)
	}

	return runErr
}
