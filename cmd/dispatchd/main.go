// Command dispatchd serves the job dispatch backend over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	backend "github.com/DiOS-Analysis/Backend"
	"github.com/DiOS-Analysis/Backend/api"
	"github.com/DiOS-Analysis/Backend/config"
	"github.com/DiOS-Analysis/Backend/engine"
	"github.com/DiOS-Analysis/Backend/observability"
)

func main() {
	configPath := flag.String("config", os.Getenv("DIOS_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("dispatchd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, cleanup, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = s.Migrate(migrateCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("migrate %s store: %w", cfg.Store.Kind, err)
	}
	logger.Info("store ready", slog.String("kind", cfg.Store.Kind))

	d, err := backend.New(
		backend.WithStore(s),
		backend.WithLogger(logger),
		backend.WithConfig(cfg.Backend()),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Error("close store", slog.String("error", err.Error()))
		}
	}()

	eng, err := engine.Build(d, engine.WithExtension(observability.NewLoggingExtension(logger)))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.New(eng, api.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dispatchd listening", slog.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", slog.String("error", err.Error()))
	}
	if err := eng.Stop(shutdownCtx); err != nil {
		logger.Error("engine stop", slog.String("error", err.Error()))
	}
	logger.Info("dispatchd stopped")
	return nil
}
