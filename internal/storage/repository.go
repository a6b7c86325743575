package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ledger/internal/core"
)

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repository struct {
	db      *sql.DB
	dialect Dialect
}

// SQLiteDSN adds the pragmas every connection needs to a database path.
func SQLiteDSN(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := SQLiteDSN(dbPath)
	db, err := sql.Open(SQLite.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY
	// between pooled connections of the same process.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(SQLite, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("SQLite repository initialized", "path", dbPath)
	return &Repository{db: db, dialect: SQLite}, nil
}

func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	db, err := sql.Open(Postgres.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", classify(err))
	}

	if err := RunMigrations(Postgres, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.Info("Postgres repository initialized")
	return &Repository{db: db, dialect: Postgres}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping reports whether the store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", classify(err))
	}
	return nil
}

// rebind rewrites ? placeholders into $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

const expenseColumns = `
	e.id, e.event_id, e.workshop_id, e.category_id, e.added_by_id, e.product_id,
	e.item_name, e.quantity, e.unit_price, e.amount, e.remarks, e.created_at, e.updated_at,
	c.name, u.name, u.email, p.name, p.unit, p.unit_price`

const expenseJoins = `
	FROM expenses e
	JOIN categories c ON c.id = e.category_id
	JOIN users u ON u.id = e.added_by_id
	LEFT JOIN products p ON p.id = e.product_id`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanExpense reads expenseColumns plus any trailing destinations.
func scanExpense(s rowScanner, extra ...any) (core.Expense, error) {
	var (
		e           core.Expense
		category    core.Category
		addedBy     core.UserSummary
		productName sql.NullString
		productUnit sql.NullString
		productCost sql.NullFloat64
	)
	dest := []any{
		&e.ID, &e.EventID, &e.WorkshopID, &e.CategoryID, &e.AddedByID, &e.ProductID,
		&e.ItemName, &e.Quantity, &e.UnitPrice, &e.Amount, &e.Remarks, &e.CreatedAt, &e.UpdatedAt,
		&category.Name, &addedBy.Name, &addedBy.Email, &productName, &productUnit, &productCost,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return core.Expense{}, err
	}

	category.ID = e.CategoryID
	addedBy.ID = e.AddedByID
	e.Category = &category
	e.AddedBy = &addedBy
	if e.ProductID != nil && productName.Valid {
		p := core.Product{ID: *e.ProductID, Name: productName.String}
		if productUnit.Valid {
			p.Unit = &productUnit.String
		}
		if productCost.Valid {
			p.UnitPrice = &productCost.Float64
		}
		e.Product = &p
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

// ListExpensesByEvent returns the event's expenses, newest first.
func (r *Repository) ListExpensesByEvent(ctx context.Context, eventID string) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT`+expenseColumns+expenseJoins+`
	WHERE e.event_id = ?
	ORDER BY e.created_at DESC, e.id`), eventID)
	if err != nil {
		return nil, fmt.Errorf("list expenses by event: %w", classify(err))
	}
	defer rows.Close()

	expenses := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", classify(err))
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", classify(err))
	}
	return expenses, nil
}

// ListBudgetsByEvent returns the event's budgets ordered by category name.
func (r *Repository) ListBudgetsByEvent(ctx context.Context, eventID string) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(`
	SELECT b.id, b.event_id, b.category_id, b.amount, b.approved_amount, c.name
	FROM budgets b
	JOIN categories c ON c.id = b.category_id
	WHERE b.event_id = ?
	ORDER BY c.name, b.id`), eventID)
	if err != nil {
		return nil, fmt.Errorf("list budgets by event: %w", classify(err))
	}
	defer rows.Close()

	budgets := make([]core.Budget, 0)
	for rows.Next() {
		var b core.Budget
		if err := rows.Scan(&b.ID, &b.EventID, &b.CategoryID, &b.Amount, &b.ApprovedAmount, &b.Category.Name); err != nil {
			return nil, fmt.Errorf("scan budget: %w", classify(err))
		}
		b.Category.ID = b.CategoryID
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", classify(err))
	}
	return budgets, nil
}

// GetExpense loads one expense with its relations and, when it belongs to an
// event, the event with its coordinator.
func (r *Repository) GetExpense(ctx context.Context, id string) (*core.Expense, error) {
	e, err := r.getExpense(ctx, r.db, id)
	if err != nil {
		return nil, fmt.Errorf("get expense %s: %w", id, classify(err))
	}
	return e, nil
}

func (r *Repository) getExpense(ctx context.Context, q querier, id string) (*core.Expense, error) {
	var (
		eventTitle       sql.NullString
		coordinatorID    sql.NullString
		coordinatorName  sql.NullString
		coordinatorEmail sql.NullString
	)
	row := q.QueryRowContext(ctx, r.rebind(`SELECT`+expenseColumns+`,
	ev.title, ev.coordinator_id, co.name, co.email`+expenseJoins+`
	LEFT JOIN events ev ON ev.id = e.event_id
	LEFT JOIN users co ON co.id = ev.coordinator_id
	WHERE e.id = ?`), id)

	e, err := scanExpense(row, &eventTitle, &coordinatorID, &coordinatorName, &coordinatorEmail)
	if err != nil {
		return nil, err
	}

	if e.EventID != nil && eventTitle.Valid {
		ev := core.Event{ID: *e.EventID, Title: eventTitle.String}
		if coordinatorID.Valid {
			ev.CoordinatorID = &coordinatorID.String
			if coordinatorName.Valid {
				ev.Coordinator = &core.UserSummary{
					ID:    coordinatorID.String,
					Name:  coordinatorName.String,
					Email: coordinatorEmail.String,
				}
			}
		}
		e.Event = &ev
	}
	return &e, nil
}

func (r *Repository) insertExpense(ctx context.Context, q querier, ne core.NewExpense) error {
	createdAt := ne.CreatedAt.UTC()
	_, err := q.ExecContext(ctx, r.rebind(`
	INSERT INTO expenses (id, event_id, workshop_id, category_id, added_by_id, product_id,
		item_name, quantity, unit_price, amount, remarks, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ne.ID, ne.EventID, ne.WorkshopID, ne.CategoryID, ne.AddedByID, ne.ProductID,
		ne.ItemName, ne.Quantity, ne.UnitPrice, ne.Amount, ne.Remarks, createdAt, createdAt)
	return err
}

// CreateExpense inserts one expense and returns it with its relations. The
// insert and the reload share a transaction.
func (r *Repository) CreateExpense(ctx context.Context, ne core.NewExpense) (_ *core.Expense, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
			}
		}
	}()

	if err = r.insertExpense(ctx, tx, ne); err != nil {
		return nil, fmt.Errorf("insert expense: %w", classify(err))
	}

	var e *core.Expense
	if e, err = r.getExpense(ctx, tx, ne.ID); err != nil {
		return nil, fmt.Errorf("reload expense %s: %w", ne.ID, classify(err))
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", classify(err))
	}

	slog.DebugContext(ctx, "Expense created", "id", ne.ID)
	return e, nil
}

// CreateExpenses inserts every expense in order inside one transaction.
// Either all rows are committed or none.
func (r *Repository) CreateExpenses(ctx context.Context, items []core.NewExpense) (_ []core.Expense, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", classify(err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
			}
		}
	}()

	created := make([]core.Expense, 0, len(items))
	for i, ne := range items {
		if err = r.insertExpense(ctx, tx, ne); err != nil {
			return nil, fmt.Errorf("insert expense %d: %w", i, classify(err))
		}
		var e *core.Expense
		if e, err = r.getExpense(ctx, tx, ne.ID); err != nil {
			return nil, fmt.Errorf("reload expense %d: %w", i, classify(err))
		}
		created = append(created, *e)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", classify(err))
	}

	slog.DebugContext(ctx, "Expenses created", "count", len(created))
	return created, nil
}

// UpdateExpense applies the non-nil changes. A missing id yields core.ErrNotFound.
func (r *Repository) UpdateExpense(ctx context.Context, id string, ch core.ExpenseChanges) (*core.Expense, error) {
	sets := []string{"updated_at = ?"}
	args := []any{ch.UpdatedAt.UTC()}
	add := func(column string, v any) {
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}
	if ch.ItemName != nil {
		add("item_name", *ch.ItemName)
	}
	if ch.Quantity != nil {
		add("quantity", *ch.Quantity)
	}
	if ch.UnitPrice != nil {
		add("unit_price", *ch.UnitPrice)
	}
	if ch.Amount != nil {
		add("amount", *ch.Amount)
	}
	if ch.Remarks != nil {
		add("remarks", *ch.Remarks)
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, r.rebind(
		"UPDATE expenses SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...)
	if err != nil {
		return nil, fmt.Errorf("update expense %s: %w", id, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update expense %s: %w", id, classify(err))
	}
	if n == 0 {
		return nil, fmt.Errorf("update expense %s: %w", id, core.ErrNotFound)
	}

	return r.GetExpense(ctx, id)
}

// DeleteExpense removes an expense and returns the event it belonged to, if any.
func (r *Repository) DeleteExpense(ctx context.Context, id string) (*string, error) {
	var eventID *string
	err := r.db.QueryRowContext(ctx, r.rebind(
		`DELETE FROM expenses WHERE id = ? RETURNING event_id`), id).Scan(&eventID)
	if err != nil {
		return nil, fmt.Errorf("delete expense %s: %w", id, classify(err))
	}
	return eventID, nil
}

// UpsertUser records the caller so expenses can reference them. Empty name or
// email claims keep the stored value.
func (r *Repository) UpsertUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`
	INSERT INTO users (id, name, email, role) VALUES (?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		name = COALESCE(NULLIF(excluded.name, ''), users.name),
		email = COALESCE(NULLIF(excluded.email, ''), users.email),
		role = excluded.role`),
		u.ID, u.Name, u.Email, string(u.Role))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, classify(err))
	}
	return nil
}

func (r *Repository) exec(ctx context.Context, what, query string, args ...any) error {
	if _, err := r.db.ExecContext(ctx, r.rebind(query), args...); err != nil {
		return fmt.Errorf("%s: %w", what, classify(err))
	}
	return nil
}

// Reference data is managed outside this service; these inserts exist for
// seeding and tests.

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) error {
	return r.exec(ctx, "create category", `INSERT INTO categories (id, name) VALUES (?, ?)`, c.ID, c.Name)
}

func (r *Repository) CreateEvent(ctx context.Context, e core.Event) error {
	return r.exec(ctx, "create event", `INSERT INTO events (id, title, coordinator_id) VALUES (?, ?, ?)`,
		e.ID, e.Title, e.CoordinatorID)
}

func (r *Repository) CreateWorkshop(ctx context.Context, w core.Workshop) error {
	return r.exec(ctx, "create workshop", `INSERT INTO workshops (id, title) VALUES (?, ?)`, w.ID, w.Title)
}

func (r *Repository) CreateProduct(ctx context.Context, p core.Product) error {
	return r.exec(ctx, "create product", `INSERT INTO products (id, name, unit, unit_price) VALUES (?, ?, ?, ?)`,
		p.ID, p.Name, p.Unit, p.UnitPrice)
}

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) error {
	return r.exec(ctx, "create budget",
		`INSERT INTO budgets (id, event_id, category_id, amount, approved_amount) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.EventID, b.CategoryID, b.Amount, b.ApprovedAmount)
}
