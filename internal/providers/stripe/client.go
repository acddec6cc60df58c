package stripe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/eventcover/internal/config"
	obsmetrics "github.com/smallbiznis/eventcover/internal/observability/metrics"
	"github.com/smallbiznis/eventcover/pkg/retry"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrSecretKeyMissing = errors.New("stripe_secret_key_missing")

const (
	opCreateSession = "checkout.session.create"
	opGetSession    = "checkout.session.get"
	opListSessions  = "checkout.session.list"
	opGetIntent     = "payment_intent.get"
	opGetCharge     = "charge.get"
)

// Options configures a Client outside of fx wiring.
type Options struct {
	// BackendURL overrides the API base URL, e.g. for stripe-mock.
	BackendURL        string
	MaxNetworkRetries int64
	Retry             retry.Policy
	Log               *zap.Logger
	Metrics           *obsmetrics.Metrics
}

// Client wraps the provider calls used by checkout and reconciliation.
// Every call runs through the retry helper and returns *ProviderError on failure.
type Client struct {
	api     *client.API
	retry   retry.Policy
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewClient(p Params) (*Client, error) {
	return New(p.Cfg.Stripe.SecretKey, Options{
		MaxNetworkRetries: p.Cfg.Stripe.MaxNetworkRetries,
		Retry:             retry.DefaultPolicy(),
		Log:               p.Log,
		Metrics:           p.Metrics,
	})
}

func New(secretKey string, opts Options) (*Client, error) {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil, ErrSecretKeyMissing
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("stripe.client")

	backendCfg := &stripego.BackendConfig{
		MaxNetworkRetries: stripego.Int64(opts.MaxNetworkRetries),
		LeveledLogger:     log.Sugar(),
	}
	if opts.BackendURL != "" {
		backendCfg.URL = stripego.String(opts.BackendURL)
	}
	backends := &stripego.Backends{
		API:     stripego.GetBackendWithConfig(stripego.APIBackend, backendCfg),
		Connect: stripego.GetBackend(stripego.ConnectBackend),
		Uploads: stripego.GetBackend(stripego.UploadsBackend),
	}

	policy := opts.Retry
	policy.Permanent = IsPermanent

	return &Client{
		api:     client.New(secretKey, backends),
		retry:   policy,
		log:     log,
		metrics: opts.Metrics,
	}, nil
}

// CreateCheckoutSession creates a hosted checkout session. An idempotency key
// is attached when the caller did not set one so retried attempts never
// produce a second session.
func (c *Client) CreateCheckoutSession(ctx context.Context, params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error) {
	if params.IdempotencyKey == nil {
		params.SetIdempotencyKey("checkout-" + uuid.NewString())
	}
	return run(ctx, c, opCreateSession, func(ctx context.Context) (*stripego.CheckoutSession, error) {
		params.Context = ctx
		return c.api.CheckoutSessions.New(params)
	})
}

func (c *Client) GetCheckoutSession(ctx context.Context, id string, params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error) {
	if params == nil {
		params = &stripego.CheckoutSessionParams{}
	}
	return run(ctx, c, opGetSession, func(ctx context.Context) (*stripego.CheckoutSession, error) {
		params.Context = ctx
		return c.api.CheckoutSessions.Get(id, params)
	})
}

// ListCheckoutSessions returns a single page of sessions.
func (c *Client) ListCheckoutSessions(ctx context.Context, params *stripego.CheckoutSessionListParams) ([]*stripego.CheckoutSession, error) {
	params.Single = true
	return run(ctx, c, opListSessions, func(ctx context.Context) ([]*stripego.CheckoutSession, error) {
		params.Context = ctx
		iter := c.api.CheckoutSessions.List(params)
		var sessions []*stripego.CheckoutSession
		for iter.Next() {
			sessions = append(sessions, iter.CheckoutSession())
		}
		return sessions, iter.Err()
	})
}

// GetPaymentIntent loads an intent with its latest charge expanded.
func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*stripego.PaymentIntent, error) {
	params := &stripego.PaymentIntentParams{}
	params.AddExpand("latest_charge")
	return run(ctx, c, opGetIntent, func(ctx context.Context) (*stripego.PaymentIntent, error) {
		params.Context = ctx
		return c.api.PaymentIntents.Get(id, params)
	})
}

func (c *Client) GetCharge(ctx context.Context, id string) (*stripego.Charge, error) {
	params := &stripego.ChargeParams{}
	return run(ctx, c, opGetCharge, func(ctx context.Context) (*stripego.Charge, error) {
		params.Context = ctx
		return c.api.Charges.Get(id, params)
	})
}

func run[T any](ctx context.Context, c *Client, op string, call func(context.Context) (T, error)) (T, error) {
	policy := c.retry
	policy.OnRetry = func(err error, wait time.Duration) {
		kind := KindOf(err)
		c.metrics.RecordProviderRetry(ctx, op, string(kind))
		c.log.Warn("retrying provider call",
			zap.String("operation", op),
			zap.String("error_kind", string(kind)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	res, err := retry.Do(ctx, policy, call)
	if err != nil {
		pe := Classify(err)
		c.log.Warn("provider call failed",
			zap.String("operation", op),
			zap.String("error_kind", string(pe.Kind)),
			zap.String("error_code", pe.Code),
			zap.Int("status_code", pe.StatusCode),
		)
		return res, pe
	}
	return res, nil
}
