package tracing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func TestSafeAttributesDropsCredentials(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/auth/session-relay"),
		attribute.String("relay.token", "abc"),
		attribute.String("X-Event-Checksum", "deadbeef"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorStripsQuery(t *testing.T) {
	err := SafeError(errors.New("GET https://acme.carwash.test/api/auth/session-relay?token=abc failed"))
	assert.Equal(t, "GET https://acme.carwash.test/api/auth/session-relay", err.Error())
	assert.Nil(t, SafeError(nil))
}

func TestNewProviderDisabledExport(t *testing.T) {
	tp, err := NewProvider(nil, Config{Enabled: false, SamplingRatio: 1}, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)
	_, span := tp.Tracer("test").Start(t.Context(), "span")
	assert.True(t, span.SpanContext().IsSampled())
	span.End()
}
