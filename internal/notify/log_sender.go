package notify

import (
	"context"

	"ledger/internal/log"
)

// LogSender writes messages to the log instead of delivering them. It is the
// fallback when no mail transport is configured.
type LogSender struct {
	logger *log.Logger
}

func NewLogSender(logger *log.Logger) *LogSender {
	return &LogSender{logger: logger.WithComponent(log.ComponentNotify)}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "Notification (log only)",
		log.FieldRecipient, msg.To,
		"subject", msg.Subject,
		"html_bytes", len(msg.HTML),
	)
	return nil
}
