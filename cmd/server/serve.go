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

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Brownie44l1/leaf-api/internal/config"
	"github.com/Brownie44l1/leaf-api/internal/handlers"
	"github.com/Brownie44l1/leaf-api/internal/history"
	"github.com/Brownie44l1/leaf-api/internal/logging"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/predict"
)

// app holds the long-lived dependencies shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	ledger *history.Ledger
	model  *model.Server
}

// loadApp reads the config and opens only what the caller needs: the history
// store when withHistory is set, the model when withModel is set.
func loadApp(ctx context.Context, withModel, withHistory bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log)
	a := &app{cfg: cfg, logger: logger}

	if withHistory {
		store, err := history.Open(ctx, cfg.History, logger)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.ledger = history.NewLedger(store, history.WithLogger(logger))
	}

	if withModel {
		logger.Info().Str("model", cfg.Model.Path).Msg("loading model")
		srv, err := model.NewServer(cfg.Model.Path, cfg.Model.Metadata, cfg.Model.LibraryPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initialize model server: %w", err)
		}
		a.model = srv
		logger.Info().Strs("classes", srv.Metadata().Classes).Msg("model loaded")
	}
	return a, nil
}

func (a *app) service() (*predict.Service, error) {
	return predict.NewService(a.model, a.cfg.Catalog, a.ledger, a.cfg.Cache.Size, a.logger)
}

func (a *app) Close() {
	if a.model != nil {
		a.model.Close()
	}
	if a.ledger == nil {
		return
	}
	if err := a.ledger.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close history store")
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, true, true)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.service()
			if err != nil {
				return err
			}

			cfg := a.cfg.Server
			h := handlers.NewHandler(svc, a.ledger, cfg.MaxUploadMB<<20, a.cfg.History.ListLimit)
			server := &http.Server{
				Addr: cfg.Addr,
				Handler: handlers.Routes(h, handlers.RouterConfig{
					AllowedOrigins: cfg.AllowedOrigins,
					RPS:            cfg.RateLimit.RPS,
					Burst:          cfg.RateLimit.Burst,
				}, a.logger),
				ReadTimeout:  cfg.ReadTimeout,
				WriteTimeout: cfg.WriteTimeout,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info().
					Str("addr", cfg.Addr).
					Strs("endpoints", []string{
						"GET /health",
						"POST /api/predict/",
						"POST /api/predict/raw",
						"GET /api/history/",
						"DELETE /api/history/delete/{id}/",
					}).
					Msg("server starting")
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			return nil
		},
	}
}
