package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SummaryRow is the spend of one category of an event measured against its budget.
type SummaryRow struct {
	Category     Category `json:"category"`
	BudgetAmount float64  `json:"budgetAmount"`
	TotalExpense float64  `json:"totalExpense"`
	Remaining    float64  `json:"remaining"`
	ExpenseCount int      `json:"expenseCount"`
	Budgeted     bool     `json:"budgeted"`
}

type categoryTotal struct {
	category Category
	total    decimal.Decimal
	count    int
}

// Summarize groups expenses by category and measures each budget against
// them. Budget rows come first in budget order; categories that have
// expenses but no budget follow as unbudgeted rows sorted by name.
func Summarize(budgets []Budget, expenses []Expense) []SummaryRow {
	totals := make(map[string]*categoryTotal)
	for _, e := range expenses {
		ct, ok := totals[e.CategoryID]
		if !ok {
			ct = &categoryTotal{category: Category{ID: e.CategoryID}}
			if e.Category != nil {
				ct.category = *e.Category
			}
			totals[e.CategoryID] = ct
		}
		ct.total = ct.total.Add(decimal.NewFromFloat(e.Amount))
		ct.count++
	}

	rows := make([]SummaryRow, 0, len(budgets)+len(totals))
	budgeted := make(map[string]bool, len(budgets))
	for _, b := range budgets {
		budgeted[b.CategoryID] = true

		budget := decimal.NewFromFloat(b.BudgetAmount())
		total := decimal.Zero
		count := 0
		if ct, ok := totals[b.CategoryID]; ok {
			total, count = ct.total, ct.count
		}
		rows = append(rows, SummaryRow{
			Category:     b.Category,
			BudgetAmount: budget.InexactFloat64(),
			TotalExpense: total.InexactFloat64(),
			Remaining:    budget.Sub(total).InexactFloat64(),
			ExpenseCount: count,
			Budgeted:     true,
		})
	}

	var unbudgeted []SummaryRow
	for id, ct := range totals {
		if budgeted[id] {
			continue
		}
		unbudgeted = append(unbudgeted, SummaryRow{
			Category:     ct.category,
			TotalExpense: ct.total.InexactFloat64(),
			Remaining:    ct.total.Neg().InexactFloat64(),
			ExpenseCount: ct.count,
		})
	}
	sort.Slice(unbudgeted, func(i, j int) bool {
		if unbudgeted[i].Category.Name != unbudgeted[j].Category.Name {
			return unbudgeted[i].Category.Name < unbudgeted[j].Category.Name
		}
		return unbudgeted[i].Category.ID < unbudgeted[j].Category.ID
	})

	return append(rows, unbudgeted...)
}

// TotalAmount sums expense amounts exactly.
func TotalAmount(expenses []Expense) float64 {
	sum := decimal.Zero
	for _, e := range expenses {
		sum = sum.Add(decimal.NewFromFloat(e.Amount))
	}
	return sum.InexactFloat64()
}
