package adapters

import (
	"strings"

	"github.com/smallbiznis/washbay/internal/payment/domain"
)

// Registry indexes the configured webhook adapters and payment gateways by provider.
type Registry struct {
	webhooks map[string]domain.WebhookAdapter
	gateways map[string]domain.Gateway
}

func NewRegistry(webhooks []domain.WebhookAdapter, gateways []domain.Gateway) *Registry {
	registry := &Registry{
		webhooks: map[string]domain.WebhookAdapter{},
		gateways: map[string]domain.Gateway{},
	}
	for _, adapter := range webhooks {
		if adapter == nil {
			continue
		}
		if provider := normalize(adapter.Provider()); provider != "" {
			registry.webhooks[provider] = adapter
		}
	}
	for _, gateway := range gateways {
		if gateway == nil {
			continue
		}
		if provider := normalize(gateway.Provider()); provider != "" {
			registry.gateways[provider] = gateway
		}
	}
	return registry
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

func (r *Registry) ProviderExists(provider string) bool {
	if r == nil {
		return false
	}
	_, ok := r.webhooks[normalize(provider)]
	return ok
}

func (r *Registry) Webhook(provider string) (domain.WebhookAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	adapter, ok := r.webhooks[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

func (r *Registry) Gateway(provider string) (domain.Gateway, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	gateway, ok := r.gateways[normalize(provider)]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return gateway, nil
}
