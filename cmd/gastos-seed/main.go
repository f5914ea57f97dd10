// Command gastos-seed creates the default categories when the store has none.
package main

import (
	"context"
	"os"
	"time"

	"gastos/internal/backend"
	"gastos/internal/cli"
	applog "gastos/internal/log"
	"gastos/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(applog.ComponentSeed)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err)
		os.Exit(1)
	}
	// Seeding never emits events
	backendCfg.AMQPURL = ""

	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", applog.FieldError, err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer res.Cleanup()

	sess, err := res.Store.Session(ctx)
	if err != nil {
		logger.Error("Failed to open session", applog.FieldError, err)
		os.Exit(1)
	}
	defer sess.Close()

	created, err := services.NewCategoryService(sess.Categories()).SeedDefaults(ctx, services.DefaultCategories)
	if err != nil {
		logger.Error("Seeding failed", applog.FieldError, err, "created", created)
		os.Exit(1)
	}

	logger.Info("Seeding finished",
		applog.FieldOperation, applog.OpSeed,
		"created", created,
		applog.FieldBackend, cfg.DataBackend)
}
