package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"ledger/internal/log"
)

// Dispatcher sends messages in background goroutines. At most concurrency
// sends run at once; each gets its own timeout, detached from the caller's
// cancellation. Failures are logged and never returned.
type Dispatcher struct {
	sender  Sender
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  *log.Logger
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, concurrency int, timeout time.Duration, logger *log.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Dispatcher{
		sender:  sender,
		sem:     semaphore.NewWeighted(int64(concurrency)),
		timeout: timeout,
		logger:  logger.WithComponent(log.ComponentNotify),
	}
}

// Dispatch schedules msg and returns immediately. Request-scoped values of
// ctx (logger, request id) are kept; its deadline and cancellation are not.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	if err := msg.Validate(); err != nil {
		d.logger.WarnContext(ctx, "Notification dropped", log.FieldError, err.Error())
		return
	}

	detached := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.sem.Acquire(detached, 1); err != nil {
			return
		}
		defer d.sem.Release(1)

		sendCtx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()

		start := time.Now()
		if err := d.sender.Send(sendCtx, msg); err != nil {
			d.logger.ErrorContext(sendCtx, "Failed to send notification",
				log.FieldRecipient, msg.To,
				log.FieldError, err.Error(),
			)
			return
		}
		d.logger.InfoContext(sendCtx, "Notification sent",
			log.FieldRecipient, msg.To,
			log.FieldDuration, time.Since(start).Milliseconds(),
		)
	}()
}

// Wait blocks until every dispatched send has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
