package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/log"
)

func TestExpenseAdded_Render(t *testing.T) {
	msg, err := ExpenseAdded{
		To:         "cora@example.org",
		EventTitle: "Autumn <Summit>",
		ItemName:   "Coffee & cake",
		Amount:     42.5,
		AddedBy:    "Finn",
	}.Render()
	require.NoError(t, err)

	assert.Equal(t, "cora@example.org", msg.To)
	assert.Equal(t, "New expense added to Autumn <Summit>", msg.Subject)
	assert.Contains(t, msg.HTML, "Autumn &lt;Summit&gt;", "event title is escaped")
	assert.Contains(t, msg.HTML, "Coffee &amp; cake")
	assert.Contains(t, msg.HTML, "42.50")
	assert.Contains(t, msg.HTML, "Finn")
}

func TestBulkExpenseAdded_Render(t *testing.T) {
	msg, err := BulkExpenseAdded{
		To:         "cora@example.org",
		EventTitle: "Autumn Summit",
		Count:      3,
		Total:      1234.5,
		AddedBy:    "Finn",
	}.Render()
	require.NoError(t, err)

	assert.Equal(t, "3 new expenses added to Autumn Summit", msg.Subject)
	assert.Contains(t, msg.HTML, "1234.50")
	assert.Contains(t, msg.HTML, "added 3 expenses")
}

func TestMessage_Validate(t *testing.T) {
	assert.NoError(t, Message{To: "a@b.c", Subject: "s"}.Validate())
	assert.Error(t, Message{Subject: "s"}.Validate())
	assert.Error(t, Message{To: "a@b.c"}.Validate())
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return s.err
}

func (s *recordingSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}

func TestDispatcher_SendsAfterCallerCancels(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, 2, time.Second, log.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, Message{To: "a@b.c", Subject: "hi"})
	cancel()

	require.NoError(t, d.Wait(context.Background()))
	assert.Len(t, sender.Sent(), 1)
}

func TestDispatcher_FailureIsSwallowed(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender, 1, time.Second, log.Discard())

	d.Dispatch(context.Background(), Message{To: "a@b.c", Subject: "hi"})
	require.NoError(t, d.Wait(context.Background()))
	assert.Len(t, sender.Sent(), 1)
}

func TestDispatcher_DropsInvalidMessage(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, 1, time.Second, log.Discard())

	d.Dispatch(context.Background(), Message{Subject: "no recipient"})
	require.NoError(t, d.Wait(context.Background()))
	assert.Empty(t, sender.Sent())
}

func TestDispatcher_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	release := make(chan struct{})
	sender := SenderFunc(func(ctx context.Context, msg Message) error {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)
		return nil
	})
	d := NewDispatcher(sender, 2, 5*time.Second, log.Discard())

	for i := 0; i < 6; i++ {
		d.Dispatch(context.Background(), Message{To: "a@b.c", Subject: "hi"})
	}
	require.Eventually(t, func() bool { return atomic.LoadInt32(&inFlight) == 2 }, time.Second, time.Millisecond)
	close(release)

	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}

func TestDispatcher_SendTimeout(t *testing.T) {
	var gotErr atomic.Value
	sender := SenderFunc(func(ctx context.Context, msg Message) error {
		<-ctx.Done()
		gotErr.Store(ctx.Err())
		return ctx.Err()
	})
	d := NewDispatcher(sender, 1, 20*time.Millisecond, log.Discard())

	d.Dispatch(context.Background(), Message{To: "a@b.c", Subject: "hi"})
	require.NoError(t, d.Wait(context.Background()))
	assert.Equal(t, context.DeadlineExceeded, gotErr.Load())
}

func TestDispatcher_WaitHonoursContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	sender := SenderFunc(func(ctx context.Context, msg Message) error {
		<-block
		return nil
	})
	d := NewDispatcher(sender, 1, time.Minute, log.Discard())
	d.Dispatch(context.Background(), Message{To: "a@b.c", Subject: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Wait(ctx), context.DeadlineExceeded)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(log.Discard()).Send(context.Background(), Message{To: "a@b.c", Subject: "hi"}))
}
