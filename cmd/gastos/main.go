package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/backend"
	"gastos/internal/cli"
	apphttp "gastos/internal/http"
	applog "gastos/internal/log"
	"gastos/internal/ports"
	"gastos/internal/schema"
	"gastos/internal/services"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	if cfg.SeedOnStart {
		if err := seedDefaults(ctx, res.Store); err != nil {
			logger.Error("Failed to seed default categories", applog.FieldError, err)
			os.Exit(1)
		}
	}

	validator, err := schema.New()
	if err != nil {
		logger.Error("Failed to compile request schemas", applog.FieldError, err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, res.Store, validator, apphttp.Options{
		Publisher:      res.Publisher,
		Logger:         logger.WithComponent(applog.ComponentHTTP),
		CORSOrigins:    cfg.CORSOrigins,
		RateLimit:      cfg.RateLimit,
		TrustedProxies: cfg.TrustedProxies,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		Version:        version,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting gastos server",
			"port", cfg.Port,
			applog.FieldBackend, cfg.DataBackend,
			"version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		done := cli.GracefulShutdown(gctx, logger.Logger, shutdownTimeout, func(shutdownCtx context.Context) {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server shutdown error", applog.FieldError, err)
			}
		})
		<-done
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func seedDefaults(ctx context.Context, store ports.Store) error {
	sess, err := store.Session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	_, err = services.NewCategoryService(sess.Categories()).SeedDefaults(ctx, services.DefaultCategories)
	return err
}
