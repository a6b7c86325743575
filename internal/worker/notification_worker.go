// Package worker delivers notifications taken off the AMQP queue.
package worker

import (
	"context"
	"fmt"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/log"
	"ledger/internal/notify"
)

// Consumer is the queue side of the AMQP client.
type Consumer interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

// NotificationWorker sends each queued notification through a mail sender.
type NotificationWorker struct {
	sender  notify.Sender
	timeout time.Duration
	logger  *log.Logger
}

func NewNotificationWorker(sender notify.Sender, timeout time.Duration, logger *log.Logger) *NotificationWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &NotificationWorker{
		sender:  sender,
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentWorker),
	}
}

// HandleNotification delivers one message. The returned error makes the
// consumer retry the delivery.
func (w *NotificationWorker) HandleNotification(ctx context.Context, msg *amqp.NotificationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	w.logger.DebugContext(ctx, "Processing notification",
		log.FieldMessageID, msg.ID,
		log.FieldRecipient, msg.Message.To,
		"queued_for", time.Since(msg.Timestamp).String())

	if err := w.sender.Send(ctx, msg.Message); err != nil {
		return fmt.Errorf("send notification %s: %w", msg.ID, err)
	}
	return nil
}

// Run consumes until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context, consumer Consumer) error {
	w.logger.InfoContext(ctx, "Notification worker started")
	err := consumer.Consume(ctx, w.HandleNotification)
	w.logger.InfoContext(ctx, "Notification worker stopped")
	return err
}
