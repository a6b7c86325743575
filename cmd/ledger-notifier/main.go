package main

import (
	"context"
	"errors"
	"os"

	"ledger/internal/amqp"
	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig((*config.Config).ValidateNotifier)

	ctx, cancel := cli.SignalContext(logger)
	defer cancel()

	logger.Info("Starting ledger-notifier",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		log.FieldOperation, log.OpStartup)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Notifier exited with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Notifier stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	backendCfg := backend.Config{
		NotifyFrom:            cfg.NotifyFrom,
		GoogleOAuthClientFile: cfg.GoogleOAuthClientFile,
		GoogleOAuthTokenFile:  cfg.GoogleOAuthTokenFile,
		GoogleOAuthClientJSON: cfg.GoogleOAuthClientJSON,
		GoogleOAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
	}
	sender, err := backend.NewMailSender(ctx, backendCfg, logger)
	if err != nil {
		return err
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.NotifyMaxAttempts, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("Failed to close AMQP client", log.FieldError, err.Error())
		}
	}()

	w := worker.NewNotificationWorker(sender, cfg.NotifyTimeout, logger)
	if err := w.Run(ctx, client); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
