// Package storagetest provides a migrated SQLite repository and a small set
// of reference rows for tests in other packages.
package storagetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// Fixed identifiers of the seeded rows.
const (
	CoordinatorID = "11111111-1111-4111-8111-111111111111"
	CallerID      = "22222222-2222-4222-8222-222222222222"
	EventID       = "33333333-3333-4333-8333-333333333333"
	BareEventID   = "44444444-4444-4444-8444-444444444444"
	CateringID    = "55555555-5555-4555-8555-555555555555"
	VenueID       = "66666666-6666-4666-8666-666666666666"
	TransportID   = "77777777-7777-4777-8777-777777777777"
	ProductID     = "88888888-8888-4888-8888-888888888888"
	WorkshopID    = "99999999-9999-4999-8999-999999999999"
	BudgetID      = "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa"
	VenueBudgetID = "bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb"
)

var (
	Coordinator = core.User{ID: CoordinatorID, Name: "Cora Coordinator", Email: "cora@example.org", Role: core.RoleAdmin}
	Caller      = core.User{ID: CallerID, Name: "Finn Finance", Email: "finn@example.org", Role: core.RoleFinanceTeam}
)

// NewSQLite opens a fresh repository in a temp directory, closed on cleanup.
func NewSQLite(t testing.TB) *storage.Repository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// Seed inserts two users, an event with a coordinator, an event without one,
// three categories, a product, a workshop, a Catering budget approved at 1000
// and a Venue budget requested at 500.
func Seed(t testing.TB, repo *storage.Repository) {
	t.Helper()
	ctx := context.Background()

	coordinator := CoordinatorID
	approved := 1000.0
	unit := "portion"
	price := 12.5

	require.NoError(t, repo.UpsertUser(ctx, Coordinator))
	require.NoError(t, repo.UpsertUser(ctx, Caller))
	require.NoError(t, repo.CreateEvent(ctx, core.Event{ID: EventID, Title: "Autumn Summit", CoordinatorID: &coordinator}))
	require.NoError(t, repo.CreateEvent(ctx, core.Event{ID: BareEventID, Title: "Board Meeting"}))
	require.NoError(t, repo.CreateCategory(ctx, core.Category{ID: CateringID, Name: "Catering"}))
	require.NoError(t, repo.CreateCategory(ctx, core.Category{ID: VenueID, Name: "Venue"}))
	require.NoError(t, repo.CreateCategory(ctx, core.Category{ID: TransportID, Name: "Transport"}))
	require.NoError(t, repo.CreateProduct(ctx, core.Product{ID: ProductID, Name: "Lunch box", Unit: &unit, UnitPrice: &price}))
	require.NoError(t, repo.CreateWorkshop(ctx, core.Workshop{ID: WorkshopID, Title: "Go basics"}))
	require.NoError(t, repo.CreateBudget(ctx, core.Budget{
		ID: BudgetID, EventID: EventID, CategoryID: CateringID, Amount: 800, ApprovedAmount: &approved,
	}))
	require.NoError(t, repo.CreateBudget(ctx, core.Budget{
		ID: VenueBudgetID, EventID: EventID, CategoryID: VenueID, Amount: 500,
	}))
}
