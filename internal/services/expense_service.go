package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/notify"
)

// Store is the persistence the expense service needs.
type Store interface {
	ListExpensesByEvent(ctx context.Context, eventID string) ([]core.Expense, error)
	ListBudgetsByEvent(ctx context.Context, eventID string) ([]core.Budget, error)
	CreateExpense(ctx context.Context, ne core.NewExpense) (*core.Expense, error)
	CreateExpenses(ctx context.Context, items []core.NewExpense) ([]core.Expense, error)
	UpdateExpense(ctx context.Context, id string, ch core.ExpenseChanges) (*core.Expense, error)
	DeleteExpense(ctx context.Context, id string) (*string, error)
}

// Notifier schedules a message for delivery without waiting for it.
type Notifier interface {
	Dispatch(ctx context.Context, msg notify.Message)
}

type Options struct {
	// SummaryCache is optional; nil disables summary caching.
	SummaryCache cache.Cache[[]core.SummaryRow]
	Now          func() time.Time
	NewID        func() string
	Logger       *log.Logger
}

// ExpenseService validates expense requests, persists them and notifies
// event coordinators.
type ExpenseService struct {
	store    Store
	notifier Notifier
	summary  cache.Cache[[]core.SummaryRow]
	now      func() time.Time
	newID    func() string
	logger   *log.Logger
	events   *log.StructuredLogger
}

func NewExpenseService(store Store, notifier Notifier, opts Options) *ExpenseService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	logger := opts.Logger.WithComponent(log.ComponentExpense)
	return &ExpenseService{
		store:    store,
		notifier: notifier,
		summary:  opts.SummaryCache,
		now:      func() time.Time { return opts.Now().UTC() },
		newID:    opts.NewID,
		logger:   logger,
		events:   log.NewStructuredLogger(logger),
	}
}

// ListByEvent returns the event's expenses, newest first.
func (s *ExpenseService) ListByEvent(ctx context.Context, eventID string) ([]core.Expense, error) {
	if err := core.ValidateID("eventId", eventID); err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpensesByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return expenses, nil
}

// Summary measures the event's spend per category against its budgets.
func (s *ExpenseService) Summary(ctx context.Context, eventID string) ([]core.SummaryRow, error) {
	if err := core.ValidateID("eventId", eventID); err != nil {
		return nil, err
	}

	var generation uint64
	if s.summary != nil {
		if rows, ok := s.summary.Get(eventID); ok {
			return rows, nil
		}
		generation = s.summary.Generation()
	}

	var (
		budgets  []core.Budget
		expenses []core.Expense
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if budgets, err = s.store.ListBudgetsByEvent(gctx, eventID); err != nil {
			return fmt.Errorf("list budgets: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if expenses, err = s.store.ListExpensesByEvent(gctx, eventID); err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("summarize event %s: %w", eventID, err)
	}

	rows := core.Summarize(budgets, expenses)
	if s.summary != nil {
		s.summary.SetIfGeneration(eventID, rows, generation)
	}
	return rows, nil
}

// Create records one expense added by caller.
func (s *ExpenseService) Create(ctx context.Context, caller core.User, in core.ExpenseInput) (*core.Expense, error) {
	if err := core.NewValidationError(in.Validate("")); err != nil {
		return nil, err
	}

	e, err := s.store.CreateExpense(ctx, in.NewExpense(s.newID(), caller.ID, s.now()))
	if err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}
	s.invalidate(e.EventID)
	s.events.LogExpenseCreated(ctx, e.ID, e.EventID, e.CategoryID, e.Amount, caller.ID)

	if e.Event.HasCoordinator() {
		s.notify(ctx, notify.ExpenseAdded{
			To:         e.Event.Coordinator.Email,
			EventTitle: e.Event.Title,
			ItemName:   e.ItemName,
			Amount:     e.Amount,
			AddedBy:    addedByName(e, caller),
		})
	}
	return e, nil
}

// CreateBulk records every item in one transaction. One aggregate
// notification goes to the coordinator of the first item's event.
func (s *ExpenseService) CreateBulk(ctx context.Context, caller core.User, in core.BulkExpenseInput) ([]core.Expense, error) {
	if err := core.NewValidationError(in.Validate()); err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]core.NewExpense, len(in.Expenses))
	for i, item := range in.Expenses {
		// distinct timestamps keep request order in newest-first listings
		items[i] = item.NewExpense(s.newID(), caller.ID, now.Add(time.Duration(i)*time.Microsecond))
	}

	created, err := s.store.CreateExpenses(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("create bulk expenses: %w", err)
	}
	for i := range created {
		s.invalidate(created[i].EventID)
	}
	s.logger.InfoContext(ctx, "Bulk expenses created",
		log.FieldCount, len(created),
		log.FieldUserID, caller.ID,
		log.FieldOperation, log.OpCreateBulk)

	if in.ShouldSendEmail() && len(created) > 0 {
		first := created[0]
		if first.Event.HasCoordinator() {
			s.notify(ctx, notify.BulkExpenseAdded{
				To:         first.Event.Coordinator.Email,
				EventTitle: first.Event.Title,
				Count:      len(created),
				Total:      core.TotalAmount(created),
				AddedBy:    addedByName(&first, caller),
			})
		}
	}
	return created, nil
}

// Update applies a partial patch.
func (s *ExpenseService) Update(ctx context.Context, id string, patch core.ExpensePatch) (*core.Expense, error) {
	fields := patch.Validate()
	if err := core.ValidateID("id", id); err != nil {
		fields = append(err.(*core.ValidationError).Fields, fields...)
	}
	if err := core.NewValidationError(fields); err != nil {
		return nil, err
	}

	e, err := s.store.UpdateExpense(ctx, id, patch.Changes(s.now()))
	if err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}
	s.invalidate(e.EventID)
	s.logger.InfoContext(ctx, "Expense updated", log.FieldExpenseID, id, log.FieldOperation, log.OpUpdate)
	return e, nil
}

func (s *ExpenseService) Delete(ctx context.Context, id string) error {
	if err := core.ValidateID("id", id); err != nil {
		return err
	}

	eventID, err := s.store.DeleteExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	s.invalidate(eventID)
	s.logger.InfoContext(ctx, "Expense deleted", log.FieldExpenseID, id, log.FieldOperation, log.OpDelete)
	return nil
}

func (s *ExpenseService) invalidate(eventID *string) {
	if s.summary != nil && eventID != nil {
		s.summary.Delete(*eventID)
	}
}

type renderer interface {
	Render() (notify.Message, error)
}

// notify renders and hands the message to the notifier. Nothing here can
// fail the request.
func (s *ExpenseService) notify(ctx context.Context, r renderer) {
	if s.notifier == nil {
		return
	}
	msg, err := r.Render()
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to render notification", log.FieldError, err.Error())
		return
	}
	s.notifier.Dispatch(ctx, msg)
}

func addedByName(e *core.Expense, caller core.User) string {
	if e.AddedBy != nil && e.AddedBy.Name != "" {
		return e.AddedBy.Name
	}
	return caller.Name
}
