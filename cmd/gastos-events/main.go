// Command gastos-events tails the expense event queue and logs every event.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/cli"
	applog "gastos/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL")).WithComponent(applog.ComponentAMQP)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required to consume expense events")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	client, err := amqp.NewClient(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, 5)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	logger.Info("Starting gastos-events",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	err = client.ConsumeExpenseEvents(ctx, func(ctx context.Context, e *amqp.ExpenseEvent) error {
		logger.InfoContext(ctx, "Expense event",
			"type", e.Type,
			applog.FieldExpenseID, e.ID,
			applog.FieldCategoryID, e.CategoryID,
			applog.FieldAmount, e.Amount.String(),
			applog.FieldDate, e.Date.String(),
			"lag", time.Since(e.Timestamp).Round(time.Millisecond).String())
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("gastos-events stopped")
}
