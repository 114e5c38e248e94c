package access

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
)

// Error is a typed failure carrying the HTTP status and the user-facing message.
type Error struct {
	Status           int
	Code             string
	Message          string
	Reason           string
	PendingInvoiceID *snowflake.ID
	cause            error
}

func (e *Error) Error() string {
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.cause
}

const (
	CodeTenantNotSpecified      = "tenant_not_specified"
	CodeTenantNotFound          = "tenant_not_found"
	CodeNotAMember              = "not_a_member"
	CodeForbidden               = "forbidden"
	CodePlanBlocked             = "plan_blocked"
	CodeDuplicateInvoice        = "duplicate_invoice"
	CodeGatewaySignatureInvalid = "gateway_signature_invalid"
	CodeInvoiceAlreadyPaid      = "invoice_already_paid"
	CodeInvoiceNotFound         = "invoice_not_found"
	CodePlanNotFound            = "plan_not_found"
	CodeUnauthenticated         = "unauthenticated"
)

func newError(status int, code, message string, cause error) *Error {
	return &Error{Status: status, Code: code, Message: message, cause: cause}
}

func TenantNotSpecified() *Error {
	return newError(http.StatusBadRequest, CodeTenantNotSpecified,
		"Tenant not specified. Use your business subdomain.", tenantdomain.ErrTenantNotSpecified)
}

func TenantNotFound() *Error {
	return newError(http.StatusNotFound, CodeTenantNotFound, "Tenant not found", tenantdomain.ErrTenantNotFound)
}

func NotAMember() *Error {
	return newError(http.StatusForbidden, CodeNotAMember, "You do not have access to this business", tenantdomain.ErrNotAMember)
}

func Forbidden() *Error {
	return newError(http.StatusForbidden, CodeForbidden, "Your role does not allow this operation", nil)
}

func Unauthenticated() *Error {
	return newError(http.StatusUnauthorized, CodeUnauthenticated, "Authentication required", nil)
}

// PlanBlocked carries the blocking reason and, when present, the invoice to pay.
func PlanBlocked(status billingdomain.PlanStatus) *Error {
	err := newError(http.StatusForbidden, CodePlanBlocked, "Plan access is blocked", nil)
	if status.Reason != nil {
		err.Reason = string(*status.Reason)
		err.Message = status.Reason.Message()
	}
	err.PendingInvoiceID = status.PendingInvoiceID
	return err
}

func DuplicateInvoice() *Error {
	return newError(http.StatusConflict, CodeDuplicateInvoice,
		"An open invoice already exists for this plan", billingdomain.ErrDuplicateInvoice)
}

func GatewaySignatureInvalid() *Error {
	return newError(http.StatusBadRequest, CodeGatewaySignatureInvalid, "Invalid signature", paymentdomain.ErrInvalidSignature)
}

func InvoiceAlreadyPaid() *Error {
	return newError(http.StatusConflict, CodeInvoiceAlreadyPaid, "Invoice is already paid", billingdomain.ErrInvoiceAlreadyPaid)
}

func InvoiceNotFound() *Error {
	return newError(http.StatusNotFound, CodeInvoiceNotFound, "Invoice not found", billingdomain.ErrInvoiceNotFound)
}

func PlanNotFound() *Error {
	return newError(http.StatusNotFound, CodePlanNotFound, "Plan not found", billingdomain.ErrPlanNotFound)
}

// FromError translates domain sentinels into typed access errors.
func FromError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}

	switch {
	case errors.Is(err, tenantdomain.ErrTenantNotSpecified):
		return TenantNotSpecified(), true
	case errors.Is(err, tenantdomain.ErrTenantNotFound):
		return TenantNotFound(), true
	case errors.Is(err, tenantdomain.ErrNotAMember):
		return NotAMember(), true
	case errors.Is(err, billingdomain.ErrDuplicateInvoice):
		return DuplicateInvoice(), true
	case errors.Is(err, billingdomain.ErrInvoiceAlreadyPaid):
		return InvoiceAlreadyPaid(), true
	case errors.Is(err, billingdomain.ErrInvoiceNotFound):
		return InvoiceNotFound(), true
	case errors.Is(err, billingdomain.ErrPlanNotFound):
		return PlanNotFound(), true
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return GatewaySignatureInvalid(), true
	default:
		return nil, false
	}
}
