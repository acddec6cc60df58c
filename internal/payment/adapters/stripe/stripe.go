package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	providerName = "stripe"

	// SettingWebhookSecret is the registry setting holding the endpoint signing secret.
	SettingWebhookSecret = "webhook_secret"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret, ok := readString(cfg.Config, SettingWebhookSecret)
	if !ok {
		return nil, paymentdomain.ErrInvalidConfig
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	return &Adapter{
		webhookSecret: secret,
		tolerance:     webhook.DefaultTolerance,
	}, nil
}

type Adapter struct {
	webhookSecret string
	tolerance     time.Duration
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, sigHeader, a.webhookSecret, a.tolerance); err != nil {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(string(event.Type)) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.PaymentEvent{
		Provider:        providerName,
		ProviderEventID: event.ID,
		Type:            string(event.Type),
		OccurredAt:      timestamp(event.Created),
		RawPayload:      payload,
	}

	var raw json.RawMessage
	if event.Data != nil {
		raw = event.Data.Raw
	}

	var err error
	switch out.Type {
	case paymentdomain.EventTypeCheckoutCompleted:
		out.Checkout, err = parseCheckoutSession(raw)
	case paymentdomain.EventTypePaymentFailed:
		out.Failure, err = parsePaymentFailure(raw)
	case paymentdomain.EventTypeChargeRefunded:
		out.Refund, err = parseChargeRefund(raw)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseCheckoutSession(raw json.RawMessage) (*paymentdomain.CheckoutCompleted, error) {
	var session stripego.CheckoutSession
	if err := unmarshalObject(raw, &session); err != nil {
		return nil, err
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.CheckoutCompleted{
		SessionID:     session.ID,
		PaymentStatus: string(session.PaymentStatus),
		CustomerEmail: strings.TrimSpace(session.CustomerEmail),
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		Metadata:      session.Metadata,
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if details := session.CustomerDetails; details != nil {
		if email := strings.TrimSpace(details.Email); email != "" {
			out.CustomerEmail = email
		}
		out.CustomerName = strings.TrimSpace(details.Name)
		out.CustomerPhone = strings.TrimSpace(details.Phone)
	}
	return out, nil
}

func parsePaymentFailure(raw json.RawMessage) (*paymentdomain.PaymentFailure, error) {
	var intent stripego.PaymentIntent
	if err := unmarshalObject(raw, &intent); err != nil {
		return nil, err
	}
	if strings.TrimSpace(intent.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.PaymentFailure{
		PaymentIntentID: intent.ID,
		Metadata:        intent.Metadata,
	}
	if lastErr := intent.LastPaymentError; lastErr != nil {
		out.FailureCode = string(lastErr.Code)
		out.FailureMessage = lastErr.Msg
	}
	return out, nil
}

func parseChargeRefund(raw json.RawMessage) (*paymentdomain.ChargeRefund, error) {
	var charge stripego.Charge
	if err := unmarshalObject(raw, &charge); err != nil {
		return nil, err
	}
	if strings.TrimSpace(charge.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	out := &paymentdomain.ChargeRefund{
		ChargeID:       charge.ID,
		Amount:         charge.Amount,
		AmountRefunded: charge.AmountRefunded,
		Refunded:       charge.Refunded,
		Currency:       string(charge.Currency),
	}
	if charge.PaymentIntent != nil {
		out.PaymentIntentID = charge.PaymentIntent.ID
	}
	return out, nil
}

func unmarshalObject(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return paymentdomain.ErrInvalidPayload
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return errors.Join(paymentdomain.ErrInvalidPayload, err)
	}
	return nil
}

func timestamp(created int64) time.Time {
	if created <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(created, 0).UTC()
}

func readString(cfg map[string]any, key string) (string, bool) {
	if cfg == nil {
		return "", false
	}
	value, ok := cfg[key]
	if !ok {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}
