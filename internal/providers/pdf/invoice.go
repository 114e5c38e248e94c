package pdf

import (
	"context"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const dateLayout = "2006-01-02"

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateInvoice(ctx context.Context, doc InvoiceDocument) ([]byte, error) {
	if doc.Number == "" {
		return nil, ErrEmptyInvoice
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	title := "Invoice"
	if doc.IsReceipt() {
		title = "Receipt"
	}
	m.AddRow(12,
		text.NewCol(8, doc.IssuerName, props.Text{Size: 16, Style: fontstyle.Bold, Align: align.Left}),
		text.NewCol(4, title, props.Text{Size: 20, Style: fontstyle.Bold, Align: align.Right}),
	)

	meta := col.New(6).Add(
		text.New("Invoice number: "+doc.Number, props.Text{Top: 0}),
		text.New("Date of issue: "+doc.IssueDate.Format(dateLayout), props.Text{Top: 4}),
		text.New("Date due: "+doc.DueDate.Format(dateLayout), props.Text{Top: 8}),
		text.New("Service period: "+doc.PeriodStart.Format(dateLayout)+" to "+doc.PeriodEnd.Format(dateLayout), props.Text{Top: 12}),
	)
	if doc.IsReceipt() && doc.PaidAt != nil {
		meta.Add(text.New("Date paid: "+doc.PaidAt.Format(dateLayout), props.Text{Top: 16}))
	}
	m.AddRow(24, meta,
		col.New(6).Add(
			text.New("Bill to", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New(doc.TenantName, props.Text{Top: 5, Align: align.Right}),
			text.New(doc.TenantSlug, props.Text{Top: 9, Align: align.Right}),
			text.New(doc.BillingEmail, props.Text{Top: 13, Align: align.Right}),
		),
	)

	amountLine := fmt.Sprintf("%s %s due %s", doc.Currency, doc.Total, doc.DueDate.Format(dateLayout))
	if doc.IsReceipt() {
		amountLine = fmt.Sprintf("%s %s paid", doc.Currency, doc.Total)
	}
	m.AddRow(15,
		text.NewCol(12, amountLine, props.Text{Size: 14, Style: fontstyle.Bold, Top: 5}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(6, doc.PlanName+" plan", props.Text{Size: 9}),
		text.NewCol(2, "1", props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, doc.Subtotal, props.Text{Size: 9, Align: align.Right}),
		text.NewCol(2, doc.Subtotal, props.Text{Size: 9, Align: align.Right}),
	)

	totals := []struct {
		label string
		value string
		style fontstyle.Type
	}{
		{"Subtotal", doc.Subtotal, fontstyle.Normal},
		{"Tax", doc.Tax, fontstyle.Normal},
		{"Total", doc.Total, fontstyle.Bold},
	}
	for _, row := range totals {
		m.AddRow(8,
			col.New(8),
			text.NewCol(2, row.label, props.Text{Size: 9, Style: row.style}),
			text.NewCol(2, row.value, props.Text{Size: 9, Style: row.style, Align: align.Right}),
		)
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return out.GetBytes(), nil
}
