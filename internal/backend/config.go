package backend

import (
	"fmt"

	"ledger/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		Type:         BackendType(appConfig.DataBackend),
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,

		Transport:         Transport(appConfig.NotifyTransport),
		NotifyFrom:        appConfig.NotifyFrom,
		NotifyConcurrency: appConfig.NotifyConcurrency,
		NotifyMaxAttempts: appConfig.NotifyMaxAttempts,
		NotifyTimeout:     appConfig.NotifyTimeout,

		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,

		GoogleOAuthClientFile: appConfig.GoogleOAuthClientFile,
		GoogleOAuthTokenFile:  appConfig.GoogleOAuthTokenFile,
		GoogleOAuthClientJSON: appConfig.GoogleOAuthClientJSON,
		GoogleOAuthTokenJSON:  appConfig.GoogleOAuthTokenJSON,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.Transport.IsValid() {
		return fmt.Errorf("invalid notification transport: %s", c.Transport)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
	}

	if c.Transport == AMQPTransport && c.AMQPURL == "" {
		return fmt.Errorf("AMQP URL is required for amqp transport")
	}
	return nil
}

// GmailConfigured reports whether Gmail OAuth material was supplied.
func (c Config) GmailConfigured() bool {
	return c.GoogleOAuthClientFile != "" || c.GoogleOAuthClientJSON != "" ||
		c.GoogleOAuthTokenFile != "" || c.GoogleOAuthTokenJSON != ""
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, PostgresBackend}
}
