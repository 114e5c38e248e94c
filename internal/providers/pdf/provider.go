// Package pdf renders billing documents for download.
package pdf

import (
	"context"
	"errors"
	"time"

	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
)

var ErrEmptyInvoice = errors.New("pdf: invoice number is required")

type Provider interface {
	GenerateInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error)
}

// InvoiceDocument is the printable view of a plan invoice. A paid invoice
// renders as a receipt.
type InvoiceDocument struct {
	IssuerName    string
	TenantName    string
	TenantSlug    string
	BillingEmail  string
	Number        string
	Status        billingdomain.InvoiceStatus
	IssueDate     time.Time
	DueDate       time.Time
	PeriodStart   time.Time
	PeriodEnd     time.Time
	PaidAt        *time.Time
	PlanName      string
	Currency      string
	Subtotal      string
	Tax           string
	Total         string
}

func (d InvoiceDocument) IsReceipt() bool {
	return d.Status == billingdomain.InvoiceStatusPaid
}

func NewInvoiceDocument(issuer string, invoice billingdomain.Invoice, tenant tenantdomain.Tenant, planName string) InvoiceDocument {
	doc := InvoiceDocument{
		IssuerName:  issuer,
		TenantName:  tenant.Name,
		TenantSlug:  tenant.Slug,
		Number:      invoice.Number,
		Status:      invoice.Status,
		IssueDate:   invoice.CreatedAt,
		DueDate:     invoice.DueDate,
		PeriodStart: invoice.PeriodStart,
		PeriodEnd:   invoice.PeriodEnd,
		PaidAt:      invoice.PaidAt,
		PlanName:    planName,
		Currency:    invoice.Currency,
		Subtotal:    invoice.Subtotal.StringFixed(0),
		Tax:         invoice.TaxAmount.StringFixed(0),
		Total:       invoice.TotalAmount.StringFixed(0),
	}
	if tenant.BillingEmail != nil {
		doc.BillingEmail = *tenant.BillingEmail
	}
	return doc
}
