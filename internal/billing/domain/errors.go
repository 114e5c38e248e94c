package domain

import "errors"

var (
	ErrPlanNotFound          = errors.New("plan_not_found")
	ErrInvoiceNotFound       = errors.New("invoice_not_found")
	ErrDuplicateInvoice      = errors.New("duplicate_invoice")
	ErrInvoiceAlreadyPaid    = errors.New("invoice_already_paid")
	ErrInvoiceNotPayable     = errors.New("invoice_not_payable")
	ErrPaymentNotFound       = errors.New("payment_not_found")
	ErrInvalidPaymentMethod  = errors.New("invalid_payment_method")
	ErrInvalidPaymentStatus  = errors.New("invalid_payment_status")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
	ErrPortalUnavailable     = errors.New("portal_unavailable")
	ErrScheduledChangeAbsent = errors.New("scheduled_change_not_found")
	ErrReminderNotFound      = errors.New("reminder_not_found")
)
