// Package wompi talks to a redirect-style gateway for PSE bank transfers and
// card payments, and authenticates its webhook deliveries.
package wompi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/washbay/internal/billing/domain"
	"github.com/smallbiznis/washbay/internal/config"
	paymentdomain "github.com/smallbiznis/washbay/internal/payment/domain"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	Provider       = "wompi"
	checksumHeader = "X-Event-Checksum"
	eventUpdated   = "transaction.updated"
)

type Adapter struct {
	baseURL      string
	privateKey   string
	eventsSecret string
	redirectURL  string
	timeout      time.Duration
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker
	log          *zap.Logger
}

func New(cfg config.WompiConfig, log *zap.Logger) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		privateKey:   cfg.PrivateKey,
		eventsSecret: cfg.EventsSecret,
		redirectURL:  cfg.RedirectURL,
		timeout:      timeout,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gateway-" + Provider,
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("gateway circuit breaker state changed",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		log: log.Named("payment.wompi"),
	}
}

func (a *Adapter) Provider() string {
	return Provider
}

type transactionPayload struct {
	AmountInCents int64          `json:"amount_in_cents"`
	Currency      string         `json:"currency"`
	CustomerEmail string         `json:"customer_email"`
	Reference     string         `json:"reference"`
	RedirectURL   string         `json:"redirect_url,omitempty"`
	PaymentMethod map[string]any `json:"payment_method"`
}

type transactionEnvelope struct {
	Data  transactionData `json:"data"`
	Error *struct {
		Type     string          `json:"type"`
		Messages json.RawMessage `json:"messages"`
	} `json:"error"`
}

type transactionData struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	Reference     string `json:"reference"`
	AmountInCents int64  `json:"amount_in_cents"`
	PaymentMethod struct {
		Extra struct {
			AsyncPaymentURL string `json:"async_payment_url"`
		} `json:"extra"`
	} `json:"payment_method"`
}

func (a *Adapter) CreateTransaction(ctx context.Context, req paymentdomain.TransactionRequest) (*paymentdomain.Transaction, error) {
	if strings.TrimSpace(req.Reference) == "" {
		return nil, paymentdomain.ErrInvalidReference
	}
	method := map[string]any{}
	for key, value := range req.Source {
		method[key] = value
	}
	switch req.Method {
	case billingdomain.PaymentMethodPSE:
		method["type"] = "PSE"
		if _, ok := method["payment_description"]; !ok {
			method["payment_description"] = "Invoice " + req.Reference
		}
	case billingdomain.PaymentMethodCreditCard:
		method["type"] = "CARD"
		if _, ok := method["installments"]; !ok {
			method["installments"] = 1
		}
	default:
		return nil, billingdomain.ErrInvalidPaymentMethod
	}

	redirectURL := strings.TrimSpace(req.RedirectURL)
	if redirectURL == "" {
		redirectURL = a.redirectURL
	}
	body, err := json.Marshal(transactionPayload{
		AmountInCents: ToCents(req.Amount),
		Currency:      strings.ToUpper(req.Currency),
		CustomerEmail: req.CustomerEmail,
		Reference:     req.Reference,
		RedirectURL:   redirectURL,
		PaymentMethod: method,
	})
	if err != nil {
		return nil, err
	}

	envelope, err := a.do(ctx, http.MethodPost, "/transactions", body)
	if err != nil {
		return nil, err
	}
	return toTransaction(envelope.Data), nil
}

func (a *Adapter) GetTransaction(ctx context.Context, transactionID string) (*paymentdomain.Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, paymentdomain.ErrInvalidReference
	}
	envelope, err := a.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(transactionID), nil)
	if err != nil {
		return nil, err
	}
	return toTransaction(envelope.Data), nil
}

// do runs one request under the call timeout and the circuit breaker. Transport
// failures, timeouts and 5xx answers surface as ErrGatewayUnavailable.
func (a *Adapter) do(ctx context.Context, method, path string, body []byte) (*transactionEnvelope, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+a.privateKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: status %d", paymentdomain.ErrGatewayUnavailable, resp.StatusCode)
		}

		var envelope transactionEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("%w: decode response", paymentdomain.ErrGatewayUnavailable)
		}
		if resp.StatusCode >= http.StatusBadRequest || envelope.Error != nil {
			return rejection{status: resp.StatusCode, envelope: &envelope}, nil
		}
		return &envelope, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", paymentdomain.ErrGatewayUnavailable, err)
		}
		return nil, err
	}

	switch value := result.(type) {
	case rejection:
		a.log.Warn("gateway rejected request",
			zap.String("path", path),
			zap.Int("status", value.status),
		)
		return nil, paymentdomain.ErrGatewayRejected
	case *transactionEnvelope:
		return value, nil
	default:
		return nil, paymentdomain.ErrGatewayUnavailable
	}
}

// rejection is a 4xx answer. It is returned as a value so client errors do not
// count as breaker failures.
type rejection struct {
	status   int
	envelope *transactionEnvelope
}

func toTransaction(data transactionData) *paymentdomain.Transaction {
	status, ok := billingdomain.ParsePaymentStatus(data.Status)
	if !ok {
		status = billingdomain.PaymentStatusPending
	}
	return &paymentdomain.Transaction{
		ID:          data.ID,
		Reference:   data.Reference,
		Status:      status,
		RedirectURL: data.PaymentMethod.Extra.AsyncPaymentURL,
		Message:     data.StatusMessage,
	}
}

// ToCents converts a decimal amount into integer minor units.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

type event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	// SentAt is informational; the signed timestamp is Timestamp.
	SentAt    string `json:"sent_at"`
	Timestamp int64  `json:"timestamp"`
	Signature struct {
		Properties []string `json:"properties"`
		Checksum   string   `json:"checksum"`
	} `json:"signature"`
}

type eventData struct {
	Transaction transactionData `json:"transaction"`
}

// Verify recomputes the event checksum: SHA-256 over the values named by
// signature.properties, then the timestamp, then the events secret.
func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if strings.TrimSpace(a.eventsSecret) == "" {
		return paymentdomain.ErrInvalidConfig
	}
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return paymentdomain.ErrInvalidPayload
	}
	if len(evt.Signature.Properties) == 0 {
		return paymentdomain.ErrInvalidSignature
	}

	var data map[string]any
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return paymentdomain.ErrInvalidPayload
	}

	var builder strings.Builder
	for _, property := range evt.Signature.Properties {
		value, ok := lookup(data, property)
		if !ok {
			return paymentdomain.ErrInvalidSignature
		}
		builder.WriteString(value)
	}
	builder.WriteString(strconv.FormatInt(evt.Timestamp, 10))
	builder.WriteString(a.eventsSecret)
	sum := sha256.Sum256([]byte(builder.String()))
	expected := hex.EncodeToString(sum[:])

	provided := strings.TrimSpace(evt.Signature.Checksum)
	if provided == "" {
		provided = strings.TrimSpace(headers.Get(checksumHeader))
	}
	if subtle.ConstantTimeCompare([]byte(strings.ToLower(provided)), []byte(expected)) != 1 {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var evt event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(evt.Event) != eventUpdated {
		return nil, paymentdomain.ErrEventIgnored
	}
	var data eventData
	if err := json.Unmarshal(evt.Data, &data); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	txn := data.Transaction
	if strings.TrimSpace(txn.Reference) == "" || strings.TrimSpace(txn.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	status, ok := billingdomain.ParsePaymentStatus(txn.Status)
	if !ok {
		// Acknowledged so the gateway stops redelivering a status we cannot act on.
		a.log.Warn("unknown transaction status ignored",
			zap.String("reference", txn.Reference),
			zap.String("status", txn.Status),
		)
		return nil, paymentdomain.ErrEventIgnored
	}

	occurredAt := time.Unix(evt.Timestamp, 0).UTC()
	if evt.Timestamp <= 0 {
		occurredAt = time.Time{}
	}
	return &paymentdomain.PaymentEvent{
		Provider:        Provider,
		ProviderEventID: txn.ID + ":" + string(status) + ":" + strconv.FormatInt(evt.Timestamp, 10),
		Type:            paymentdomain.EventTypeTransactionUpdated,
		Reference:       txn.Reference,
		TransactionID:   txn.ID,
		Status:          status,
		Message:         txn.StatusMessage,
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

// lookup resolves a dotted path such as "transaction.amount_in_cents".
func lookup(data map[string]any, path string) (string, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = node[part]
		if !ok {
			return "", false
		}
	}
	switch value := current.(type) {
	case string:
		return value, true
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(value), true
	case nil:
		return "", true
	default:
		return fmt.Sprint(value), true
	}
}
