package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/clock"
	"github.com/smallbiznis/washbay/internal/observability/logger"
	"github.com/smallbiznis/washbay/internal/observability/metrics"
	"github.com/smallbiznis/washbay/internal/payment/adapters"
	"github.com/smallbiznis/washbay/internal/payment/adapters/wompi"
	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	tenantdomain "github.com/smallbiznis/washbay/internal/tenant/domain"
	"github.com/smallbiznis/washbay/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const referencePrefix = "WB-"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Billing    billingdomain.Service
	Tenants    tenantdomain.Service
	Adapters   *adapters.Registry
	Repo       paymentdomain.Repository
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	billing    billingdomain.Service
	tenants    tenantdomain.Service
	adapters   *adapters.Registry
	repo       paymentdomain.Repository
	obsMetrics *metrics.Metrics
	provider   string
}

func NewService(p Params) *Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		billing:    p.Billing,
		tenants:    p.Tenants,
		adapters:   p.Adapters,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
		provider:   wompi.Provider,
	}
}

// NewReference returns a fresh external reference code.
func NewReference() string {
	return referencePrefix + ulid.Make().String()
}

// CreatePayment opens a gateway transaction for a payable invoice. The PENDING
// row is written before the gateway is called, so every transaction the gateway
// may have accepted has a reference to confirm against. A failed call leaves
// the row in ERROR.
func (s *Service) CreatePayment(ctx context.Context, tc tenantctx.TenantContext, req paymentdomain.CreatePaymentRequest) (*paymentdomain.CreatePaymentResult, error) {
	method, ok := billingdomain.ParsePaymentMethod(string(req.Method))
	if !ok {
		return nil, billingdomain.ErrInvalidPaymentMethod
	}
	invoice, err := s.billing.PayableInvoice(ctx, tc, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	gateway, err := s.adapters.Gateway(s.provider)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.CustomerEmail)
	if email == "" {
		tenant, err := s.tenants.GetByID(ctx, tc.TenantID)
		if err != nil {
			return nil, err
		}
		if tenant.BillingEmail != nil {
			email = *tenant.BillingEmail
		}
	}

	now := s.clock.Now()
	reference := NewReference()
	payment := billingdomain.Payment{
		ID:                    s.genID.Generate(),
		InvoiceID:             invoice.ID,
		TenantID:              tc.TenantID,
		Status:                billingdomain.PaymentStatusPending,
		Method:                method,
		Provider:              gateway.Provider(),
		Amount:                invoice.TotalAmount,
		ExternalReferenceCode: reference,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.billing.RecordPayment(ctx, payment); err != nil {
		return nil, err
	}

	txn, err := gateway.CreateTransaction(ctx, paymentdomain.TransactionRequest{
		Reference:     reference,
		Amount:        invoice.TotalAmount,
		Currency:      invoice.Currency,
		Method:        method,
		CustomerEmail: email,
		RedirectURL:   req.RedirectURL,
		Source:        req.Source,
	})
	if err != nil {
		log := logger.WithContext(ctx, s.log).With(
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("reference", reference),
		)
		log.Warn("gateway transaction failed", zap.Error(err))
		if abandonErr := s.billing.AbandonPayment(context.WithoutCancel(ctx), reference, err.Error()); abandonErr != nil {
			log.Error("failed to abandon payment", zap.Error(abandonErr))
		}
		return nil, err
	}

	attach := billingdomain.PaymentUpdate{TransactionID: txn.ID, RedirectURL: txn.RedirectURL}
	if err := s.billing.AttachTransaction(ctx, reference, attach); err != nil {
		return nil, err
	}
	payment.ExternalTransactionID = optional(txn.ID)
	payment.RedirectURL = optional(txn.RedirectURL)

	result := &paymentdomain.CreatePaymentResult{
		Payment:     payment,
		RedirectURL: txn.RedirectURL,
	}
	if txn.Status.IsTerminal() {
		confirmation, err := s.billing.ConfirmPayment(ctx, reference, billingdomain.PaymentUpdate{
			Status:        txn.Status,
			TransactionID: txn.ID,
			Message:       txn.Message,
		})
		if err != nil {
			return nil, err
		}
		result.Payment = confirmation.Payment
		result.Confirmation = confirmation
	}

	logger.WithContext(ctx, s.log).Info("payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("method", string(method)),
		zap.String("status", string(result.Payment.Status)),
	)
	return result, nil
}

// SyncPayment asks the gateway for the current transaction status and applies
// it through the same idempotent confirmation used by webhooks.
func (s *Service) SyncPayment(ctx context.Context, tc tenantctx.TenantContext, reference string) (*billingdomain.Payment, error) {
	payment, err := s.billing.FindPayment(ctx, reference)
	if err != nil {
		return nil, err
	}
	if payment.TenantID != tc.TenantID {
		return nil, billingdomain.ErrPaymentNotFound
	}
	if payment.Status.IsTerminal() || payment.ExternalTransactionID == nil {
		return payment, nil
	}

	gateway, err := s.adapters.Gateway(payment.Provider)
	if err != nil {
		return nil, err
	}
	txn, err := gateway.GetTransaction(ctx, *payment.ExternalTransactionID)
	if err != nil {
		return nil, err
	}
	if !txn.Status.IsTerminal() {
		return payment, nil
	}

	confirmation, err := s.billing.ConfirmPayment(ctx, payment.ExternalReferenceCode, billingdomain.PaymentUpdate{
		Status:        txn.Status,
		TransactionID: txn.ID,
		Message:       txn.Message,
	})
	if err != nil {
		return nil, err
	}
	return &confirmation.Payment, nil
}

// ProcessEvent records a verified webhook event and applies it. Redeliveries of
// an event that was already processed are acknowledged without side effects.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent, payload []byte) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Reference:       optional(event.Reference),
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, "duplicate")
			return nil
		}
	}

	if err := s.apply(ctx, event); err != nil {
		return err
	}
	if err := s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now()); err != nil {
		return err
	}
	s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	return nil
}

func (s *Service) apply(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	switch event.Type {
	case paymentdomain.EventTypeTransactionUpdated:
		result, err := s.billing.ConfirmPayment(ctx, event.Reference, billingdomain.PaymentUpdate{
			Status:        event.Status,
			TransactionID: event.TransactionID,
			Message:       event.Message,
		})
		if err != nil {
			if errors.Is(err, billingdomain.ErrPaymentNotFound) {
				logger.WithContext(ctx, s.log).Warn("webhook for unknown payment reference",
					zap.String("provider", event.Provider),
					zap.String("reference", event.Reference),
				)
				return nil
			}
			return err
		}
		if !result.Transitions {
			logger.WithContext(ctx, s.log).Info("payment already settled, event ignored",
				zap.String("reference", event.Reference),
				zap.String("status", string(result.Payment.Status)),
			)
		}
		return nil
	case paymentdomain.EventTypeSubscriptionEnded:
		_, err := s.billing.EndLegacySubscription(ctx, event.SubscriptionID)
		return err
	default:
		return paymentdomain.ErrEventIgnored
	}
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	switch event.Type {
	case paymentdomain.EventTypeTransactionUpdated:
		event.Reference = strings.TrimSpace(event.Reference)
		if event.Reference == "" || event.Status == "" {
			return paymentdomain.ErrInvalidEvent
		}
	case paymentdomain.EventTypeSubscriptionEnded:
		if strings.TrimSpace(event.SubscriptionID) == "" {
			return paymentdomain.ErrInvalidEvent
		}
	default:
		return paymentdomain.ErrEventIgnored
	}
	return nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
