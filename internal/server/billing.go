package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/washbay/internal/access"
	"github.com/smallbiznis/washbay/internal/auth/session"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	"github.com/smallbiznis/washbay/internal/providers/pdf"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
)

const (
	actionChangePlan  = "change-plan"
	actionPayInvoice  = "pay-invoice"
	actionSyncPayment = "sync-payment"

	billingPagePath = "/billing"
)

type billingActionRequest struct {
	Action        string         `json:"action"`
	PlanID        *string        `json:"planId"`
	InvoiceID     string         `json:"invoiceId"`
	Method        string         `json:"method"`
	CustomerEmail string         `json:"customerEmail"`
	Reference     string         `json:"reference"`
	Source        map[string]any `json:"source"`
}

func (s *Server) ListPlans(c *gin.Context) {
	plans, err := s.billing.ListPlans(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// GetPlanStatus reports the tenant's blocking state. Super-admins are never blocked.
func (s *Server) GetPlanStatus(c *gin.Context) {
	identity, _ := session.IdentityFrom(c)
	if identity.IsSuperAdmin() {
		c.JSON(http.StatusOK, billingdomain.Unblocked())
		return
	}
	tc, ok := tenantctx.From(c.Request.Context())
	if !ok {
		AbortWithError(c, access.TenantNotSpecified())
		return
	}

	status, err := s.billing.PlanStatus(c.Request.Context(), tc.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) GetInvoice(c *gin.Context) {
	tc, ok := tenantctx.From(c.Request.Context())
	if !ok {
		AbortWithError(c, access.TenantNotSpecified())
		return
	}
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, access.InvoiceNotFound())
		return
	}

	invoice, err := s.billing.GetInvoice(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

// DownloadInvoicePDF renders the invoice, or its receipt once paid.
func (s *Server) DownloadInvoicePDF(c *gin.Context) {
	if s.documents == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	tc, ok := tenantctx.From(c.Request.Context())
	if !ok {
		AbortWithError(c, access.TenantNotSpecified())
		return
	}
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, access.InvoiceNotFound())
		return
	}

	ctx := c.Request.Context()
	invoice, err := s.billing.GetInvoice(ctx, tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	tenant, err := s.tenants.GetByID(ctx, tc.TenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	plans, err := s.billing.ListPlans(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	planName := invoice.PlanID.String()
	for _, plan := range plans {
		if plan.ID == invoice.PlanID {
			planName = plan.Name
			break
		}
	}

	body, err := s.documents.GenerateInvoice(ctx, pdf.NewInvoiceDocument(s.cfg.AppName, *invoice, *tenant, planName))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, invoice.Number))
	c.Data(http.StatusOK, "application/pdf", body)
}

// BillingAction dispatches the tenant billing actions.
func (s *Server) BillingAction(c *gin.Context) {
	tc, ok := tenantctx.From(c.Request.Context())
	if !ok {
		AbortWithError(c, access.TenantNotSpecified())
		return
	}

	var req billingActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case actionChangePlan:
		s.changePlan(c, tc, req)
	case actionPayInvoice:
		s.payInvoice(c, tc, req)
	case actionSyncPayment:
		s.syncPayment(c, tc, req)
	default:
		AbortWithError(c, invalidRequest("unknown billing action"))
	}
}

func (s *Server) changePlan(c *gin.Context, tc tenantctx.TenantContext, req billingActionRequest) {
	changeReq := billingdomain.ChangePlanRequest{
		ReturnURL: s.resolver.TenantURL(tc.Slug, s.portalReturnPath()),
	}
	if req.PlanID != nil {
		id, err := snowflake.ParseString(strings.TrimSpace(*req.PlanID))
		if err != nil {
			AbortWithError(c, access.PlanNotFound())
			return
		}
		changeReq.PlanID = &id
	}

	result, err := s.billing.ChangePlan(c.Request.Context(), tc, changeReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	switch result.Kind {
	case billingdomain.ChangeKindPortal:
		c.JSON(http.StatusOK, gin.H{"url": result.URL})
	case billingdomain.ChangeKindInvoice, billingdomain.ChangeKindScheduled:
		body := gin.H{
			"invoiceId":     result.Invoice.ID,
			"invoiceNumber": result.Invoice.Number,
			"totalAmount":   result.Invoice.TotalAmount,
		}
		if result.EffectiveDate != nil {
			body["effectiveDate"] = result.EffectiveDate
		}
		c.JSON(http.StatusOK, body)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": result.Message})
	}
}

func (s *Server) payInvoice(c *gin.Context, tc tenantctx.TenantContext, req billingActionRequest) {
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(req.InvoiceID))
	if err != nil {
		AbortWithError(c, access.InvoiceNotFound())
		return
	}
	method, ok := billingdomain.ParsePaymentMethod(req.Method)
	if !ok {
		AbortWithError(c, billingdomain.ErrInvalidPaymentMethod)
		return
	}

	result, err := s.payments.CreatePayment(c.Request.Context(), tc, paymentdomain.CreatePaymentRequest{
		InvoiceID:     invoiceID,
		Method:        method,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		RedirectURL:   s.resolver.TenantURL(tc.Slug, billingPagePath),
		Source:        req.Source,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	payment := result.Payment
	if result.Confirmation != nil {
		payment = result.Confirmation.Payment
	}
	c.JSON(http.StatusOK, gin.H{
		"paymentId":   payment.ID,
		"reference":   payment.ExternalReferenceCode,
		"status":      payment.Status,
		"redirectUrl": result.RedirectURL,
	})
}

func (s *Server) syncPayment(c *gin.Context, tc tenantctx.TenantContext, req billingActionRequest) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		AbortWithError(c, invalidRequest("reference is required"))
		return
	}

	payment, err := s.payments.SyncPayment(c.Request.Context(), tc, reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": payment.Status})
}

func (s *Server) portalReturnPath() string {
	if path := strings.TrimSpace(s.cfg.Stripe.PortalReturnPath); path != "" {
		return path
	}
	return billingPagePath
}
