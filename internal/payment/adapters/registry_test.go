package adapters

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/smallbiznis/eventcover/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFactory struct {
	name  string
	built int
	err   error
}

func (f *countingFactory) Provider() string { return f.name }

func (f *countingFactory) NewAdapter(cfg domain.AdapterConfig) (domain.PaymentAdapter, error) {
	f.built++
	if f.err != nil {
		return nil, f.err
	}
	return nopAdapter{secret: cfg.Config["secret"]}, nil
}

type nopAdapter struct{ secret any }

func (nopAdapter) Verify(ctx context.Context, payload []byte, headers http.Header) error { return nil }

func (nopAdapter) Parse(ctx context.Context, payload []byte) (*domain.PaymentEvent, error) {
	return &domain.PaymentEvent{}, nil
}

func TestRegistryBuildsAdapterOnceWithSettings(t *testing.T) {
	factory := &countingFactory{name: " Stripe "}
	r := NewRegistry()
	require.NoError(t, r.Register(factory, map[string]any{"secret": "whsec_1"}))

	assert.True(t, r.ProviderExists("STRIPE"))
	assert.Equal(t, []string{"stripe"}, r.Providers())

	first, err := r.Adapter("stripe")
	require.NoError(t, err)
	second, err := r.Adapter(" stripe")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "whsec_1", first.(nopAdapter).secret)
	assert.Equal(t, 1, factory.built)
}

func TestRegistryRejectsDuplicateAndBlankProviders(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&countingFactory{name: "stripe"}, nil))

	err := r.Register(&countingFactory{name: "STRIPE"}, nil)
	assert.ErrorIs(t, err, ErrDuplicateProvider)
	assert.ErrorIs(t, r.Register(&countingFactory{name: " "}, nil), domain.ErrInvalidProvider)
	assert.ErrorIs(t, r.Register(nil, nil), domain.ErrInvalidProvider)
}

func TestRegistryDoesNotCacheFactoryErrors(t *testing.T) {
	factory := &countingFactory{name: "stripe", err: domain.ErrInvalidConfig}
	r := NewRegistry()
	require.NoError(t, r.Register(factory, nil))

	_, err := r.Adapter("stripe")
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
	_, err = r.Adapter("stripe")
	assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
	assert.Equal(t, 2, factory.built)

	_, err = r.Adapter("paypal")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	var nilRegistry *Registry
	assert.False(t, nilRegistry.ProviderExists("stripe"))
}
