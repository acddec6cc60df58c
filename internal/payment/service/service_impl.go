package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/eventcover/internal/clock"
	"github.com/smallbiznis/eventcover/internal/events"
	"github.com/smallbiznis/eventcover/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eventcover/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	policydomain "github.com/smallbiznis/eventcover/internal/policy/domain"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	"github.com/smallbiznis/eventcover/pkg/numbering"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	numberAttempts = 3

	fallbackCustomerEmail = "unknown@example.com"
	fallbackCustomerName  = "Unknown Customer"

	outcomeProcessed = "processed"
	outcomeFailed    = "failed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
)

// errPolicyExists aborts the issuance transaction when another delivery won.
var errPolicyExists = errors.New("policy_already_issued")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       paymentdomain.Repository
	QuoteRepo  quotedomain.Repository
	PolicyRepo policydomain.Repository
	Intents    paymentdomain.IntentReader
	Publisher  events.Publisher    `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       paymentdomain.Repository
	quoteRepo  quotedomain.Repository
	policyRepo policydomain.Repository
	intents    paymentdomain.IntentReader
	publisher  events.Publisher
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) *Service {
	publisher := p.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		quoteRepo:  p.QuoteRepo,
		policyRepo: p.PolicyRepo,
		intents:    p.Intents,
		publisher:  publisher,
		obsMetrics: p.ObsMetrics,
	}
}

// ProcessEvent records the event in the ledger and reconciles it at most once.
// A failed attempt leaves the ledger row unprocessed with the error text so a
// redelivery can retry it.
func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.PaymentEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_type", event.Type),
	)

	now := s.clock.Now()
	received := paymentdomain.WebhookEvent{
		ID:         event.ProviderEventID,
		Source:     event.Provider,
		EventType:  event.Type,
		Payload:    datatypes.JSON(event.RawPayload),
		ReceivedAt: now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.Processed {
			log.Info("webhook event already processed")
			s.obsMetrics.RecordWebhookEvent(ctx, event.Provider, event.Type, outcomeDuplicate)
			return paymentdomain.ErrEventAlreadyProcessed
		}
		log.Info("retrying unprocessed webhook event", zap.Int("previous_attempts", stored.Attempts))
	}

	if err := s.repo.BeginAttempt(ctx, s.db, event.ProviderEventID); err != nil {
		return err
	}

	msgs, outcome, err := s.dispatch(ctx, log, event)
	if err != nil {
		log.Error("webhook event processing failed", zap.Error(err))
		if markErr := s.repo.MarkEventFailed(ctx, s.db, event.ProviderEventID, err.Error()); markErr != nil {
			log.Error("failed to record webhook failure", zap.Error(markErr))
		}
		s.obsMetrics.RecordWebhookEvent(ctx, event.Provider, event.Type, outcomeFailed)
		return err
	}

	if err := s.repo.MarkEventProcessed(ctx, s.db, event.ProviderEventID, s.clock.Now()); err != nil {
		return err
	}
	s.obsMetrics.RecordWebhookEvent(ctx, event.Provider, event.Type, outcome)

	if len(msgs) > 0 {
		if err := s.publisher.Publish(ctx, msgs...); err != nil {
			log.Warn("lifecycle event publish failed", zap.Error(err))
		}
	}
	return nil
}

func validateEvent(event *paymentdomain.PaymentEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	event.Type = strings.TrimSpace(event.Type)
	if event.ProviderEventID == "" || event.Type == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if !json.Valid(event.RawPayload) {
		return paymentdomain.ErrInvalidPayload
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent) ([]events.Message, string, error) {
	var (
		msgs []events.Message
		err  error
	)
	switch event.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		msgs, err = s.handleCheckoutCompleted(ctx, log, event)
	case paymentdomain.EventTypePaymentFailed:
		msgs, err = s.handlePaymentFailed(ctx, log, event)
	case paymentdomain.EventTypeChargeRefunded:
		msgs, err = s.handleChargeRefunded(ctx, log, event)
	default:
		log.Info("ignoring unhandled webhook event type")
		return nil, outcomeIgnored, nil
	}
	return msgs, outcomeProcessed, err
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent) ([]events.Message, error) {
	session := event.Checkout
	if session == nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	log = log.With(zap.String("session_id", session.SessionID))
	if session.PaymentStatus != "paid" {
		log.Info("checkout session not paid yet", zap.String("payment_status", session.PaymentStatus))
		return nil, nil
	}

	quoteID, partnerID, err := checkoutReferences(session.Metadata)
	if err != nil {
		return nil, err
	}

	quote, err := s.quoteRepo.FindByID(ctx, s.db, quoteID)
	if err != nil {
		return nil, err
	}
	if quote == nil {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrQuoteNotFound, quoteID)
	}
	// the stored quote owns partner attribution
	if partnerID != quote.PartnerID {
		log.Warn("checkout partner does not match quote",
			zap.String("metadata_partner_id", partnerID.String()),
			zap.String("quote_partner_id", quote.PartnerID.String()),
		)
	}

	existing, err := s.policyRepo.FindByQuoteID(ctx, s.db, quoteID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Info("policy already issued for quote", zap.String("policy_number", existing.PolicyNumber))
		return nil, nil
	}

	if strings.TrimSpace(session.PaymentIntentID) == "" {
		return nil, paymentdomain.ErrPaymentIntentMissing
	}
	intent, err := s.intents.GetIntent(ctx, session.PaymentIntentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	policy := s.buildPolicy(quote, session, now)
	payment, err := s.buildPayment(policy, quote, session, intent, now)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.insertPolicy(ctx, tx, policy, now); err != nil {
			return err
		}
		if err := setMetadata(payment, "policy_number", policy.PolicyNumber); err != nil {
			return err
		}
		if err := s.insertPayment(ctx, tx, payment, now); err != nil {
			return err
		}
		return s.quoteRepo.MarkAccepted(ctx, tx, quote.ID, now)
	})
	if errors.Is(err, errPolicyExists) {
		log.Info("policy issued by a concurrent delivery")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info("policy issued",
		zap.String("policy_id", policy.ID.String()),
		zap.String("policy_number", policy.PolicyNumber),
		zap.String("payment_number", payment.PaymentNumber),
	)
	s.obsMetrics.RecordPolicyIssued(ctx, policy.CoverageType)

	return []events.Message{{
		Type:       events.TypePolicyIssued,
		Key:        policy.ID.String(),
		OccurredAt: now,
		Data: map[string]any{
			"policy_id":      policy.ID.String(),
			"policy_number":  policy.PolicyNumber,
			"quote_id":       quote.ID.String(),
			"partner_id":     policy.PartnerID.String(),
			"payment_number": payment.PaymentNumber,
			"premium":        policy.Premium.StringFixed(2),
			"coverage_type":  policy.CoverageType,
		},
	}}, nil
}

func checkoutReferences(metadata map[string]string) (snowflake.ID, snowflake.ID, error) {
	rawQuote := strings.TrimSpace(metadata[paymentdomain.MetadataQuoteID])
	rawPartner := strings.TrimSpace(metadata[paymentdomain.MetadataPartnerID])
	if rawQuote == "" || rawPartner == "" {
		return 0, 0, paymentdomain.ErrMissingMetadata
	}
	quoteID, err := snowflake.ParseString(rawQuote)
	if err != nil || quoteID == 0 {
		return 0, 0, fmt.Errorf("%w: quote_id", paymentdomain.ErrInvalidMetadata)
	}
	partnerID, err := snowflake.ParseString(rawPartner)
	if err != nil || partnerID == 0 {
		return 0, 0, fmt.Errorf("%w: partner_id", paymentdomain.ErrInvalidMetadata)
	}
	return quoteID, partnerID, nil
}

func (s *Service) buildPolicy(quote *quotedomain.Quote, session *paymentdomain.CheckoutCompleted, now time.Time) *policydomain.Policy {
	return &policydomain.Policy{
		ID:             s.genID.Generate(),
		PartnerID:      quote.PartnerID,
		QuoteID:        quote.ID,
		EventType:      quote.EventType,
		EventDate:      quote.EventDate,
		Participants:   quote.Participants,
		CoverageType:   quote.CoverageType,
		Location:       quote.Location,
		DurationHours:  quote.DurationHours,
		RiskMultiplier: quote.RiskMultiplier,
		EventDetails:   quote.EventDetails,
		Metadata:       quote.Metadata,
		Premium:        quote.Premium,
		Commission:     quote.Commission,
		Status:         policydomain.StatusActive,
		EffectiveDate:  now,
		ExpirationDate: quote.EventDate.AddDate(0, 0, 1),
		CustomerEmail:  firstNonEmpty(session.CustomerEmail, quote.CustomerEmail, fallbackCustomerEmail),
		CustomerName:   firstNonEmpty(session.CustomerName, quote.CustomerName, fallbackCustomerName),
		CustomerPhone:  session.CustomerPhone,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *Service) buildPayment(
	policy *policydomain.Policy,
	quote *quotedomain.Quote,
	session *paymentdomain.CheckoutCompleted,
	intent *paymentdomain.IntentDetails,
	now time.Time,
) (*paymentdomain.Payment, error) {
	status := paymentdomain.PaymentStatusProcessing
	var paidAt *time.Time
	if intent.Status == "succeeded" {
		status = paymentdomain.PaymentStatusSucceeded
		paidAt = &now
	}

	payment := &paymentdomain.Payment{
		ID:                    s.genID.Generate(),
		PolicyID:              policy.ID,
		PartnerID:             policy.PartnerID,
		StripePaymentIntentID: intent.ID,
		StripeChargeID:        intent.ChargeID,
		StripeCustomerID:      firstNonEmpty(intent.CustomerID, session.CustomerID),
		Amount:                decimal.New(intent.Amount, -2),
		Currency:              strings.ToLower(firstNonEmpty(intent.Currency, session.Currency)),
		Status:                status,
		PaymentMethod:         intent.PaymentMethodType,
		ReceiptURL:            intent.ReceiptURL,
		PaidAt:                paidAt,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if intent.Card != nil {
		details, err := json.Marshal(intent.Card)
		if err != nil {
			return nil, err
		}
		payment.PaymentMethodDetails = datatypes.JSON(details)
	}

	metadata, err := json.Marshal(map[string]string{
		"session_id":   session.SessionID,
		"quote_number": quote.QuoteNumber,
	})
	if err != nil {
		return nil, err
	}
	payment.Metadata = datatypes.JSON(metadata)
	return payment, nil
}

// insertPolicy assigns a policy number and inserts the policy. A conflict on
// the quote means another delivery already issued it; a conflict on the
// number is retried with a fresh number.
func (s *Service) insertPolicy(ctx context.Context, tx *gorm.DB, policy *policydomain.Policy, now time.Time) error {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		policy.PolicyNumber = numbering.Generate(numbering.PrefixPolicy, now)
		inserted, err := s.policyRepo.Insert(ctx, tx, policy)
		if err != nil {
			return err
		}
		if inserted {
			return nil
		}
		existing, err := s.policyRepo.FindByQuoteID(ctx, tx, policy.QuoteID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errPolicyExists
		}
	}
	return fmt.Errorf("%w: %s", paymentdomain.ErrNumberExhausted, numbering.PrefixPolicy)
}

func (s *Service) insertPayment(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, now time.Time) error {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		payment.PaymentNumber = numbering.Generate(numbering.PrefixPayment, now)
		inserted, err := s.repo.InsertPayment(ctx, tx, payment)
		if err != nil {
			return err
		}
		if inserted {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", paymentdomain.ErrNumberExhausted, numbering.PrefixPayment)
}

func setMetadata(payment *paymentdomain.Payment, key, value string) error {
	values := map[string]string{}
	if len(payment.Metadata) > 0 {
		if err := json.Unmarshal(payment.Metadata, &values); err != nil {
			return err
		}
	}
	values[key] = value
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	payment.Metadata = datatypes.JSON(raw)
	return nil
}

func (s *Service) handlePaymentFailed(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent) ([]events.Message, error) {
	failure := event.Failure
	if failure == nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	log = log.With(zap.String("payment_intent_id", failure.PaymentIntentID))

	quoteID := strings.TrimSpace(failure.Metadata[paymentdomain.MetadataQuoteID])
	if quoteID == "" {
		log.Warn("failed payment intent has no quote reference")
		return nil, nil
	}

	payment, err := s.repo.FindPaymentByIntentID(ctx, s.db, failure.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		log.Warn("no payment recorded for failed intent", zap.String("quote_id", quoteID))
		return nil, nil
	}

	now := s.clock.Now()
	if err := s.repo.MarkPaymentFailed(ctx, s.db, payment.ID, failure.FailureCode, failure.FailureMessage, now); err != nil {
		return nil, err
	}
	log.Info("payment marked failed",
		zap.String("payment_number", payment.PaymentNumber),
		zap.String("failure_code", failure.FailureCode),
	)

	return []events.Message{{
		Type:       events.TypePaymentFailed,
		Key:        payment.PolicyID.String(),
		OccurredAt: now,
		Data: map[string]any{
			"payment_id":     payment.ID.String(),
			"payment_number": payment.PaymentNumber,
			"policy_id":      payment.PolicyID.String(),
			"quote_id":       quoteID,
			"failure_code":   failure.FailureCode,
		},
	}}, nil
}

func (s *Service) handleChargeRefunded(ctx context.Context, log *zap.Logger, event *paymentdomain.PaymentEvent) ([]events.Message, error) {
	refund := event.Refund
	if refund == nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	log = log.With(zap.String("charge_id", refund.ChargeID))

	payment, err := s.repo.FindPaymentByChargeID(ctx, s.db, refund.ChargeID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		log.Warn("no payment recorded for refunded charge")
		return nil, nil
	}

	now := s.clock.Now()
	status := paymentdomain.PaymentStatusPartiallyRefunded
	if refund.Refunded {
		status = paymentdomain.PaymentStatusRefunded
	}
	amount := decimal.New(refund.AmountRefunded, -2)

	var cancelled bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.ApplyRefund(ctx, tx, payment.ID, amount, status, now); err != nil {
			return err
		}
		if !refund.Refunded {
			return nil
		}
		var err error
		cancelled, err = s.policyRepo.Cancel(ctx, tx, payment.PolicyID, policydomain.CancellationReasonRefunded, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("refund recorded",
		zap.String("payment_number", payment.PaymentNumber),
		zap.String("refund_amount", amount.StringFixed(2)),
		zap.String("status", string(status)),
	)
	if !cancelled {
		return nil, nil
	}

	s.obsMetrics.RecordPolicyCancelled(ctx, policydomain.CancellationReasonRefunded)
	return []events.Message{{
		Type:       events.TypePolicyCancelled,
		Key:        payment.PolicyID.String(),
		OccurredAt: now,
		Data: map[string]any{
			"policy_id":     payment.PolicyID.String(),
			"payment_id":    payment.ID.String(),
			"reason":        policydomain.CancellationReasonRefunded,
			"refund_amount": amount.StringFixed(2),
		},
	}}, nil
}

func (s *Service) ListEvents(ctx context.Context, req paymentdomain.ListEventsRequest) ([]paymentdomain.WebhookEvent, error) {
	return s.repo.ListEvents(ctx, s.db, req)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
