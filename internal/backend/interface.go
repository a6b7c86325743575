package backend

import (
	"context"
	"time"

	"ledger/internal/notify"
	"ledger/internal/storage"
)

// CleanupFunc releases what a factory built, in reverse order of creation.
type CleanupFunc func(ctx context.Context) error

// BackendResult holds the store and notification path of the API server.
type BackendResult struct {
	Store *storage.Repository
	// Notifier is nil when the notification transport is "none".
	Notifier *notify.Dispatcher
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Postgres specific
	DatabaseURL string

	// Notifications
	Transport         Transport
	NotifyFrom        string
	NotifyConcurrency int
	NotifyMaxAttempts int
	NotifyTimeout     time.Duration

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Gmail OAuth; when all are empty, mail is only logged.
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// Transport selects how the API hands notifications to the mail sender.
type Transport string

const (
	DirectTransport Transport = "direct"
	AMQPTransport   Transport = "amqp"
	NoTransport     Transport = "none"
)

func (t Transport) IsValid() bool {
	switch t {
	case DirectTransport, AMQPTransport, NoTransport:
		return true
	default:
		return false
	}
}
