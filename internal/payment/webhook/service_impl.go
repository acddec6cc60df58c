package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/eventcover/internal/config"
	obscontext "github.com/smallbiznis/eventcover/internal/observability/context"
	"github.com/smallbiznis/eventcover/internal/observability/tracing"
	"github.com/smallbiznis/eventcover/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	paymentservice "github.com/smallbiznis/eventcover/internal/payment/service"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	lockKeyPrefix  = "webhook:event:"
	defaultLockTTL = 30 * time.Second
)

type Params struct {
	fx.In

	Log        *zap.Logger
	PaymentSvc *paymentservice.Service
	Adapters   *adapters.Registry
	Cfg        config.Config
	Locker     paymentdomain.EventLocker `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	paymentSvc *paymentservice.Service
	adapters   *adapters.Registry
	locker     paymentdomain.EventLocker
	lockTTL    time.Duration
	tracer     trace.Tracer
}

func NewService(p Params) paymentdomain.Service {
	lockTTL := time.Duration(p.Cfg.RateLimit.EventLockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}

	return &Service{
		log:        p.Log.Named("payment.webhook"),
		paymentSvc: p.PaymentSvc,
		adapters:   p.Adapters,
		locker:     p.Locker,
		lockTTL:    lockTTL,
		tracer:     otel.Tracer("eventcover/payment/webhook"),
	}
}

// IngestWebhook verifies, parses and reconciles one provider delivery.
// Signature failures never reach the ledger.
func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (result paymentdomain.IngestResult, err error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return result, paymentdomain.ErrInvalidProvider
	}
	if s.adapters == nil || !s.adapters.ProviderExists(provider) {
		return result, paymentdomain.ErrProviderNotFound
	}

	ctx, span := s.tracer.Start(ctx, "payment.webhook.ingest",
		trace.WithAttributes(tracing.SafeAttributes(attribute.String("payment.provider", provider))...),
	)
	defer func() {
		if err != nil && !errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "webhook ingest failed")
		}
		span.End()
	}()

	adapter, err := s.adapters.Adapter(provider)
	if err != nil {
		return result, err
	}

	if err := adapter.Verify(ctx, payload, headers); err != nil {
		s.log.Warn("rejected webhook with invalid signature", zap.String("provider", provider))
		return result, err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		return result, err
	}
	event.Provider = provider
	if event.RawPayload == nil {
		event.RawPayload = payload
	}
	result = paymentdomain.IngestResult{EventID: event.ProviderEventID, EventType: event.Type}

	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("payment.event_id", event.ProviderEventID),
		attribute.String("payment.event_type", event.Type),
	)...)
	ctx = obscontext.WithEventID(ctx, event.ProviderEventID)

	release, err := s.lock(ctx, event.ProviderEventID)
	if err != nil {
		return result, err
	}
	defer release()

	return result, s.paymentSvc.ProcessEvent(ctx, event)
}

// lock takes the per-event lock when a locker is configured. Lock backend
// failures do not block processing; the ledger still guards duplicates.
func (s *Service) lock(ctx context.Context, eventID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}

	key := lockKeyPrefix + eventID
	token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		s.log.Warn("event lock unavailable, continuing without it", zap.String("provider_event_id", eventID), zap.Error(err))
		return noop, nil
	}
	if !ok {
		return noop, fmt.Errorf("%w: %s", paymentdomain.ErrEventInProgress, eventID)
	}

	return func() {
		// release on a detached context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, key, token); err != nil {
			s.log.Warn("failed to release event lock", zap.String("provider_event_id", eventID), zap.Error(err))
		}
	}, nil
}

func (s *Service) ListEvents(ctx context.Context, req paymentdomain.ListEventsRequest) ([]paymentdomain.WebhookEvent, error) {
	return s.paymentSvc.ListEvents(ctx, req)
}
