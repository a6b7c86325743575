package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

// templatesFS embeds the notification bodies.
//
//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(
	template.New("notify").
		Funcs(template.FuncMap{"amount": formatAmount}).
		ParseFS(templatesFS, "templates/*.html"),
)

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// ExpenseAdded is sent to an event coordinator when one expense is recorded.
type ExpenseAdded struct {
	To         string
	EventTitle string
	ItemName   string
	Amount     float64
	AddedBy    string
}

func (n ExpenseAdded) Render() (Message, error) {
	html, err := execute("expense_added.html", n)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      n.To,
		Subject: fmt.Sprintf("New expense added to %s", n.EventTitle),
		HTML:    html,
	}, nil
}

// BulkExpenseAdded is sent once for a bulk creation.
type BulkExpenseAdded struct {
	To         string
	EventTitle string
	Count      int
	Total      float64
	AddedBy    string
}

func (n BulkExpenseAdded) Render() (Message, error) {
	html, err := execute("bulk_expense_added.html", n)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:      n.To,
		Subject: fmt.Sprintf("%d new expenses added to %s", n.Count, n.EventTitle),
		HTML:    html,
	}, nil
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
