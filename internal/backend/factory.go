package backend

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/amqp"
	"ledger/internal/log"
	"ledger/internal/mail/google"
	"ledger/internal/notify"
	"ledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentBackend)}
}

// CreateBackend opens the store and builds the notification path. On error
// everything created so far is released.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, err := f.createStore(ctx, config)
	if err != nil {
		return nil, err
	}

	sender, closeSender, err := f.createSender(ctx, config)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	result := &BackendResult{Store: store}
	if sender != nil {
		result.Notifier = notify.NewDispatcher(sender, config.NotifyConcurrency, config.NotifyTimeout, f.logger)
	}

	result.Cleanup = func(ctx context.Context) error {
		var errs []error
		if result.Notifier != nil {
			if err := result.Notifier.Wait(ctx); err != nil {
				errs = append(errs, fmt.Errorf("drain notifications: %w", err))
			}
		}
		if closeSender != nil {
			if err := closeSender(); err != nil {
				errs = append(errs, fmt.Errorf("close notification transport: %w", err))
			}
		}
		if err := store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		return errors.Join(errs...)
	}

	f.logger.InfoContext(ctx, "Initialized backend",
		"backend", config.Type.String(),
		"transport", string(config.Transport))
	return result, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config) (*storage.Repository, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, nil
	case PostgresBackend:
		repo, err := storage.NewPostgresRepository(ctx, config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Postgres store")
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createSender returns nil for the "none" transport.
func (f *DefaultFactory) createSender(ctx context.Context, config Config) (notify.Sender, func() error, error) {
	switch config.Transport {
	case NoTransport:
		f.logger.InfoContext(ctx, "Notifications disabled")
		return nil, nil, nil
	case AMQPTransport:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, config.NotifyMaxAttempts, f.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized AMQP client",
			"exchange", config.AMQPExchange,
			"queue", config.AMQPQueue)
		return client, client.Close, nil
	default:
		sender, err := NewMailSender(ctx, config, f.logger)
		return sender, nil, err
	}
}

// NewMailSender returns the Gmail sender when OAuth material is configured
// and a sender that only logs otherwise.
func NewMailSender(ctx context.Context, config Config, logger *log.Logger) (notify.Sender, error) {
	if !config.GmailConfigured() {
		logger.WarnContext(ctx, "Gmail not configured, notifications will only be logged")
		return notify.NewLogSender(logger), nil
	}

	sender, err := google.New(ctx, google.Credentials{
		ClientFile: config.GoogleOAuthClientFile,
		ClientJSON: config.GoogleOAuthClientJSON,
		TokenFile:  config.GoogleOAuthTokenFile,
		TokenJSON:  config.GoogleOAuthTokenJSON,
	}, config.NotifyFrom, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gmail sender: %w", err)
	}
	return sender, nil
}
