package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/eventcover/internal/checkout/domain"
	"github.com/smallbiznis/eventcover/internal/clock"
	"github.com/smallbiznis/eventcover/internal/config"
	"github.com/smallbiznis/eventcover/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/eventcover/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	quotedomain "github.com/smallbiznis/eventcover/internal/quote/domain"
	stripego "github.com/stripe/stripe-go/v79"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTTL       = 30 * time.Minute
	defaultListLimit = 10
	maxListLimit     = 100
	eventDateLayout  = "2006-01-02"
)

// SessionBackend is the provider surface used by checkout. *stripe.Client
// satisfies it.
type SessionBackend interface {
	CreateCheckoutSession(ctx context.Context, params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string, params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
	ListCheckoutSessions(ctx context.Context, params *stripego.CheckoutSessionListParams) ([]*stripego.CheckoutSession, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Checkout   *config.CheckoutConfigHolder
	Clock      clock.Clock
	Backend    SessionBackend
	Quotes     quotedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	currency string
	checkout *config.CheckoutConfigHolder
	clock    clock.Clock
	backend  SessionBackend
	quotes   quotedomain.Service
	metrics  *obsmetrics.Metrics
}

func NewService(p Params) checkoutdomain.Service {
	currency := strings.ToLower(strings.TrimSpace(p.Cfg.Stripe.Currency))
	if currency == "" {
		currency = "usd"
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:      p.Log.Named("checkout.service"),
		currency: currency,
		checkout: p.Checkout,
		clock:    clk,
		backend:  p.Backend,
		quotes:   p.Quotes,
		metrics:  p.ObsMetrics,
	}
}

// CreateSession opens a hosted checkout for quote. Input is validated before
// any provider call.
func (s *Service) CreateSession(ctx context.Context, quote checkoutdomain.CheckoutQuote) (checkoutdomain.SessionResult, error) {
	log := logger.WithContext(ctx, s.log)

	if strings.TrimSpace(quote.ID) == "" || strings.TrimSpace(quote.QuoteNumber) == "" {
		return checkoutdomain.SessionResult{}, checkoutdomain.ErrQuoteIDRequired
	}
	// sub-cent premiums round to a zero charge
	if minorUnits(quote.Premium) <= 0 {
		return checkoutdomain.SessionResult{}, checkoutdomain.ErrInvalidPremium
	}

	params := s.sessionParams(quote)
	session, err := s.backend.CreateCheckoutSession(ctx, params)
	if err != nil {
		s.metrics.RecordCheckoutSession(ctx, "failed")
		log.Warn("checkout session creation failed",
			zap.String("quote_id", quote.ID),
			zap.String("quote_number", quote.QuoteNumber),
			zap.Error(err),
		)
		return checkoutdomain.SessionResult{}, err
	}
	if session == nil || session.ID == "" || session.URL == "" {
		s.metrics.RecordCheckoutSession(ctx, "incomplete")
		return checkoutdomain.SessionResult{}, checkoutdomain.ErrSessionIncomplete
	}

	s.metrics.RecordCheckoutSession(ctx, "created")
	log.Info("checkout session created",
		zap.String("quote_id", quote.ID),
		zap.String("session_id", session.ID),
	)

	result := checkoutdomain.SessionResult{SessionID: session.ID, URL: session.URL}
	if session.ExpiresAt > 0 {
		result.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return result, nil
}

// CreateForQuote loads a stored quote and opens a checkout for it while it is
// still pending and unexpired.
func (s *Service) CreateForQuote(ctx context.Context, quoteID string) (checkoutdomain.SessionResult, error) {
	quote, err := s.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return checkoutdomain.SessionResult{}, err
	}
	if err := quote.ReadyForCheckout(s.clock.Now()); err != nil {
		return checkoutdomain.SessionResult{}, err
	}
	return s.CreateSession(ctx, CheckoutQuoteFrom(quote))
}

func (s *Service) sessionParams(quote checkoutdomain.CheckoutQuote) *stripego.CheckoutSessionParams {
	presentation := s.checkout.Get()
	metadata := sessionMetadata(quote)

	params := &stripego.CheckoutSessionParams{
		Mode:               stripego.String(string(stripego.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripego.StringSlice([]string{"card"}),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripego.String(s.currency),
				UnitAmount: stripego.Int64(minorUnits(quote.Premium)),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripego.String(presentation.ProductName + " - " + quote.QuoteNumber),
					Description: stripego.String(productDescription(quote)),
				},
			},
			Quantity: stripego.Int64(1),
		}},
		SuccessURL:        stripego.String(presentation.SuccessURL),
		CancelURL:         stripego.String(presentation.CancelURL),
		ClientReferenceID: stripego.String(quote.ID),
		ExpiresAt:         stripego.Int64(s.clock.Now().Add(sessionTTL).Unix()),
		ConsentCollection: &stripego.CheckoutSessionConsentCollectionParams{
			TermsOfService: stripego.String(string(stripego.CheckoutSessionConsentCollectionTermsOfServiceRequired)),
		},
		PaymentIntentData: &stripego.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	if email := strings.TrimSpace(quote.CustomerEmail); email != "" {
		params.CustomerEmail = stripego.String(email)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func sessionMetadata(quote checkoutdomain.CheckoutQuote) map[string]string {
	metadata := map[string]string{
		paymentdomain.MetadataQuoteID:      quote.ID,
		paymentdomain.MetadataQuoteNumber:  quote.QuoteNumber,
		paymentdomain.MetadataPartnerID:    quote.PartnerID,
		paymentdomain.MetadataCoverageType: quote.CoverageType,
		paymentdomain.MetadataEventType:    quote.EventType,
		paymentdomain.MetadataParticipants: strconv.Itoa(quote.Participants),
	}
	if !quote.EventDate.IsZero() {
		metadata[paymentdomain.MetadataEventDate] = quote.EventDate.Format(eventDateLayout)
	}
	return metadata
}

func productDescription(quote checkoutdomain.CheckoutQuote) string {
	desc := strings.TrimSpace(quote.CoverageType + " coverage for " + quote.EventType)
	if !quote.EventDate.IsZero() {
		desc += " on " + quote.EventDate.Format(eventDateLayout)
	}
	if quote.Location != "" {
		desc += " at " + quote.Location
	}
	return desc
}

// minorUnits converts a decimal amount to cents, rounding half away from zero.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// CheckoutQuoteFrom maps a stored quote to checkout input.
func CheckoutQuoteFrom(q quotedomain.Quote) checkoutdomain.CheckoutQuote {
	return checkoutdomain.CheckoutQuote{
		ID:            q.ID.String(),
		QuoteNumber:   q.QuoteNumber,
		PartnerID:     q.PartnerID.String(),
		Premium:       q.Premium,
		CoverageType:  q.CoverageType,
		EventType:     q.EventType,
		EventDate:     q.EventDate,
		Participants:  q.Participants,
		Location:      q.Location,
		CustomerEmail: q.CustomerEmail,
		CustomerName:  q.CustomerName,
	}
}
