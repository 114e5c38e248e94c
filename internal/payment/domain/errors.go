package domain

import "errors"

var (
	ErrInvalidProvider    = errors.New("invalid_provider")
	ErrProviderNotFound   = errors.New("provider_not_found")
	ErrInvalidPayload     = errors.New("invalid_payload")
	ErrInvalidEvent       = errors.New("invalid_event")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrInvalidConfig      = errors.New("invalid_config")
	ErrEventIgnored       = errors.New("event_ignored")
	ErrGatewayUnavailable = errors.New("gateway_unavailable")
	ErrGatewayRejected    = errors.New("gateway_rejected")
	ErrInvalidReference   = errors.New("invalid_reference")
)
