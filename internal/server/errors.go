package server

import (
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/washbay/internal/access"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	obslogger "github.com/smallbiznis/washbay/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	"github.com/smallbiznis/washbay/internal/reconcile"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// RequestError is a 400 carrying a message for the caller.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

func invalidRequest(message string) error {
	return &RequestError{Message: message}
}

type errorResponse struct {
	Error            string        `json:"error"`
	Code             string        `json:"code,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	PendingInvoiceID *snowflake.ID `json:"pendingInvoiceId,omitempty"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
			obslogger.FromContext(c.Request.Context()).Error("request failed", zap.Error(lastErr.Err))
		}
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorResponse) {
	if err == nil {
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}

	if typed, ok := access.FromError(err); ok {
		return typed.Status, errorResponse{
			Error:            typed.Message,
			Code:             typed.Code,
			Reason:           typed.Reason,
			PendingInvoiceID: typed.PendingInvoiceID,
		}
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, errorResponse{Error: reqErr.Message, Code: "invalid_request"}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: "unauthorized", Code: "unauthorized"}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{Error: "invalid request", Code: "invalid_request"}
	case errors.Is(err, billingdomain.ErrGatewayUnavailable),
		errors.Is(err, paymentdomain.ErrGatewayUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "payment gateway unavailable, retry", Code: "gateway_unavailable"}
	case errors.Is(err, billingdomain.ErrPortalUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "billing portal unavailable, retry", Code: "portal_unavailable"}
	case errors.Is(err, paymentdomain.ErrGatewayRejected):
		return http.StatusUnprocessableEntity, errorResponse{Error: "payment was rejected by the gateway", Code: "gateway_rejected"}
	case errors.Is(err, billingdomain.ErrInvoiceNotPayable):
		return http.StatusBadRequest, errorResponse{Error: "invoice cannot be paid", Code: "invoice_not_payable"}
	case errors.Is(err, billingdomain.ErrInvalidPaymentMethod):
		return http.StatusBadRequest, errorResponse{Error: "unsupported payment method", Code: "invalid_payment_method"}
	case errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent):
		return http.StatusBadRequest, errorResponse{Error: "invalid payload", Code: "invalid_payload"}
	case errors.Is(err, tenantdomain.ErrInvalidRole):
		return http.StatusBadRequest, errorResponse{Error: "invalid role", Code: "invalid_role"}
	case errors.Is(err, tenantdomain.ErrInvalidUser):
		return http.StatusBadRequest, errorResponse{Error: "invalid user", Code: "invalid_user"}
	case errors.Is(err, tenantdomain.ErrInvalidName):
		return http.StatusBadRequest, errorResponse{Error: "invalid name", Code: "invalid_name"}
	case errors.Is(err, tenantdomain.ErrOwnerImmutable):
		return http.StatusBadRequest, errorResponse{Error: "the owner membership cannot be changed", Code: "owner_immutable"}
	case errors.Is(err, tenantdomain.ErrMemberExists),
		errors.Is(err, tenantdomain.ErrSlugUnavailable):
		return http.StatusConflict, errorResponse{Error: "conflict", Code: "conflict"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "internal error"}
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, billingdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, reconcile.ErrUnknownJob),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog returns the error type and code logged with the request line.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Code
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "access", payload.Code
	default:
		return "client", payload.Code
	}
}
