package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
)

//go:embed templates/*.html
var templateFS embed.FS

var reminderTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ReminderNotifier renders invoice reminders and hands them to a Provider.
type ReminderNotifier struct {
	provider Provider
	billing  func(slug string) string
}

// NewReminderNotifier builds a notifier. billingURL maps a tenant slug to the
// tenant's billing page.
func NewReminderNotifier(provider Provider, billingURL func(slug string) string) *ReminderNotifier {
	return &ReminderNotifier{provider: provider, billing: billingURL}
}

type reminderView struct {
	TenantName string
	Number     string
	Total      string
	Currency   string
	DueDate    string
	BillingURL string
	Type       string
}

func (n *ReminderNotifier) SendInvoiceReminder(ctx context.Context, notice billingdomain.ReminderNotice) error {
	if notice.BillingEmail == "" {
		return ErrNoRecipients
	}
	view := reminderView{
		TenantName: notice.TenantName,
		Number:     notice.Number,
		Total:      notice.Total.StringFixed(0),
		Currency:   notice.Currency,
		DueDate:    notice.DueDate.Format("2006-01-02"),
		Type:       string(notice.Type),
	}
	if n.billing != nil {
		view.BillingURL = n.billing(notice.TenantSlug)
	}

	var body bytes.Buffer
	if err := reminderTemplates.ExecuteTemplate(&body, "invoice_reminder.html", view); err != nil {
		return fmt.Errorf("render reminder: %w", err)
	}
	return n.provider.Send(ctx, []string{notice.BillingEmail}, reminderSubject(notice), body.String())
}

func reminderSubject(notice billingdomain.ReminderNotice) string {
	switch notice.Type {
	case billingdomain.ReminderBeforeDue:
		return fmt.Sprintf("Invoice %s is due soon", notice.Number)
	case billingdomain.ReminderDue:
		return fmt.Sprintf("Invoice %s is due today", notice.Number)
	case billingdomain.ReminderExpired:
		return fmt.Sprintf("Invoice %s is overdue", notice.Number)
	default:
		return fmt.Sprintf("Invoice %s", notice.Number)
	}
}
