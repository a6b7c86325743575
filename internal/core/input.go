package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	msgUUID     = "must be a valid UUID"
	msgRequired = "is required"
	msgEmpty    = "must not be empty"
	msgNonNeg   = "must be a number greater than or equal to 0"
	msgMinOne   = "must be an array with at least 1 element"
)

// ExpenseInput is the request body of a single expense creation, and the
// shape of each element of a bulk creation.
type ExpenseInput struct {
	EventID    *string  `json:"eventId"`
	WorkshopID *string  `json:"workshopId"`
	CategoryID *string  `json:"categoryId"`
	ItemName   *string  `json:"itemName"`
	Quantity   *float64 `json:"quantity"`
	UnitPrice  *float64 `json:"unitPrice"`
	Amount     *float64 `json:"amount"`
	Remarks    *string  `json:"remarks"`
	ProductID  *string  `json:"productId"`
}

// BulkExpenseInput is the request body of a bulk creation.
type BulkExpenseInput struct {
	Expenses  []ExpenseInput `json:"expenses"`
	SendEmail *bool          `json:"sendEmail"`
}

// ExpensePatch is the request body of an update. Nil fields are left unchanged.
type ExpensePatch struct {
	ItemName  *string  `json:"itemName"`
	Quantity  *float64 `json:"quantity"`
	UnitPrice *float64 `json:"unitPrice"`
	Amount    *float64 `json:"amount"`
	Remarks   *string  `json:"remarks"`
}

// IsUUID reports whether s is a canonical hyphenated UUID.
func IsUUID(s string) bool {
	return len(s) == 36 && uuid.Validate(s) == nil
}

// ValidateID checks a path identifier.
func ValidateID(field, value string) error {
	if !IsUUID(value) {
		return NewValidationError([]FieldError{{Field: field, Message: msgUUID, Value: value}})
	}
	return nil
}

// Validate returns every field error of the input. prefix is prepended to
// field names, e.g. "expenses[2]." for bulk items.
func (in ExpenseInput) Validate(prefix string) []FieldError {
	var errs []FieldError

	optionalUUID := func(field string, v *string) {
		if v != nil && !IsUUID(*v) {
			errs = append(errs, FieldError{Field: prefix + field, Message: msgUUID, Value: *v})
		}
	}
	optionalUUID("eventId", in.EventID)
	optionalUUID("workshopId", in.WorkshopID)

	switch {
	case in.CategoryID == nil:
		errs = append(errs, FieldError{Field: prefix + "categoryId", Message: msgRequired})
	case !IsUUID(*in.CategoryID):
		errs = append(errs, FieldError{Field: prefix + "categoryId", Message: msgUUID, Value: *in.CategoryID})
	}

	switch {
	case in.ItemName == nil:
		errs = append(errs, FieldError{Field: prefix + "itemName", Message: msgRequired})
	case strings.TrimSpace(*in.ItemName) == "":
		errs = append(errs, FieldError{Field: prefix + "itemName", Message: msgEmpty, Value: *in.ItemName})
	}

	errs = append(errs, requiredNonNegative(prefix+"quantity", in.Quantity)...)
	errs = append(errs, requiredNonNegative(prefix+"unitPrice", in.UnitPrice)...)
	errs = append(errs, requiredNonNegative(prefix+"amount", in.Amount)...)

	optionalUUID("productId", in.ProductID)
	return errs
}

// NewExpense builds the persistence write from a validated input. addedBy is
// always the authenticated caller.
func (in ExpenseInput) NewExpense(id, addedBy string, now time.Time) NewExpense {
	return NewExpense{
		ID:         id,
		EventID:    in.EventID,
		WorkshopID: in.WorkshopID,
		CategoryID: *in.CategoryID,
		AddedByID:  addedBy,
		ProductID:  in.ProductID,
		ItemName:   strings.TrimSpace(*in.ItemName),
		Quantity:   *in.Quantity,
		UnitPrice:  *in.UnitPrice,
		Amount:     *in.Amount,
		Remarks:    trimmed(in.Remarks),
		CreatedAt:  now,
	}
}

// Validate checks the bulk body. An empty or missing expenses array is
// rejected before the items are looked at.
func (in BulkExpenseInput) Validate() []FieldError {
	if len(in.Expenses) == 0 {
		return []FieldError{{Field: "expenses", Message: msgMinOne}}
	}
	var errs []FieldError
	for i, item := range in.Expenses {
		errs = append(errs, item.Validate(fmt.Sprintf("expenses[%d].", i))...)
	}
	return errs
}

// ShouldSendEmail defaults to true when the flag is omitted.
func (in BulkExpenseInput) ShouldSendEmail() bool {
	return in.SendEmail == nil || *in.SendEmail
}

func (p ExpensePatch) Validate() []FieldError {
	var errs []FieldError
	if p.ItemName != nil && strings.TrimSpace(*p.ItemName) == "" {
		errs = append(errs, FieldError{Field: "itemName", Message: msgEmpty, Value: *p.ItemName})
	}
	errs = append(errs, optionalNonNegative("quantity", p.Quantity)...)
	errs = append(errs, optionalNonNegative("unitPrice", p.UnitPrice)...)
	errs = append(errs, optionalNonNegative("amount", p.Amount)...)
	return errs
}

// Changes builds the persistence write from a validated patch.
func (p ExpensePatch) Changes(now time.Time) ExpenseChanges {
	return ExpenseChanges{
		ItemName:  trimmed(p.ItemName),
		Quantity:  p.Quantity,
		UnitPrice: p.UnitPrice,
		Amount:    p.Amount,
		Remarks:   trimmed(p.Remarks),
		UpdatedAt: now,
	}
}

func requiredNonNegative(field string, v *float64) []FieldError {
	if v == nil {
		return []FieldError{{Field: field, Message: msgRequired}}
	}
	return optionalNonNegative(field, v)
}

func optionalNonNegative(field string, v *float64) []FieldError {
	if v != nil && !(*v >= 0) {
		return []FieldError{{Field: field, Message: msgNonNeg, Value: *v}}
	}
	return nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
