package core

import (
	"time"
)

// Role is the caller's role as carried in the access token.
type Role string

const (
	RoleAdmin          Role = "ADMIN"
	RoleFinanceTeam    Role = "FINANCE_TEAM"
	RoleFacilitiesTeam Role = "FACILITIES_TEAM"
)

// ExpenseEditors are the roles allowed to create, update and delete expenses.
var ExpenseEditors = []Role{RoleFacilitiesTeam, RoleFinanceTeam, RoleAdmin}

type (
	Category struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	// UserSummary is the public projection of a user embedded in expense payloads.
	UserSummary struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	User struct {
		ID    string
		Name  string
		Email string
		Role  Role
	}

	Product struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Unit      *string  `json:"unit"`
		UnitPrice *float64 `json:"unitPrice"`
	}

	Event struct {
		ID            string       `json:"id"`
		Title         string       `json:"title"`
		CoordinatorID *string      `json:"coordinatorId"`
		Coordinator   *UserSummary `json:"coordinator"`
	}

	Workshop struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	Budget struct {
		ID             string   `json:"id"`
		EventID        string   `json:"eventId"`
		CategoryID     string   `json:"categoryId"`
		Amount         float64  `json:"amount"`
		ApprovedAmount *float64 `json:"approvedAmount"`
		Category       Category `json:"category"`
	}

	// Expense is a stored expense row. The relation fields are filled by the
	// store depending on the query that produced the value.
	Expense struct {
		ID         string    `json:"id"`
		EventID    *string   `json:"eventId"`
		WorkshopID *string   `json:"workshopId"`
		CategoryID string    `json:"categoryId"`
		AddedByID  string    `json:"addedById"`
		ProductID  *string   `json:"productId"`
		ItemName   string    `json:"itemName"`
		Quantity   float64   `json:"quantity"`
		UnitPrice  float64   `json:"unitPrice"`
		Amount     float64   `json:"amount"`
		Remarks    *string   `json:"remarks"`
		CreatedAt  time.Time `json:"createdAt"`
		UpdatedAt  time.Time `json:"updatedAt"`

		Category *Category   `json:"category,omitempty"`
		AddedBy  *UserSummary `json:"addedBy,omitempty"`
		Product  *Product     `json:"product"`
		Event    *Event       `json:"event,omitempty"`
	}

	// NewExpense is the persistence write for a single expense. It is built
	// only from validated input; nothing from the request body is forwarded.
	NewExpense struct {
		ID         string
		EventID    *string
		WorkshopID *string
		CategoryID string
		AddedByID  string
		ProductID  *string
		ItemName   string
		Quantity   float64
		UnitPrice  float64
		Amount     float64
		Remarks    *string
		CreatedAt  time.Time
	}

	// ExpenseChanges is the persistence write for a partial update.
	ExpenseChanges struct {
		ItemName  *string
		Quantity  *float64
		UnitPrice *float64
		Amount    *float64
		Remarks   *string
		UpdatedAt time.Time
	}
)

// BudgetAmount returns the approved amount when one is set, else the requested amount.
func (b Budget) BudgetAmount() float64 {
	if b.ApprovedAmount != nil {
		return *b.ApprovedAmount
	}
	return b.Amount
}

// HasCoordinator reports whether notifications for the event have a recipient.
func (e *Event) HasCoordinator() bool {
	return e != nil && e.Coordinator != nil && e.Coordinator.Email != ""
}
