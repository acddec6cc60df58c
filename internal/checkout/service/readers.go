package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	checkoutdomain "github.com/smallbiznis/eventcover/internal/checkout/domain"
	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v79"
)

func (s *Service) GetSession(ctx context.Context, sessionID string) (checkoutdomain.SessionStatus, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return checkoutdomain.SessionStatus{}, checkoutdomain.ErrSessionIDRequired
	}

	session, err := s.backend.GetCheckoutSession(ctx, sessionID, nil)
	if err != nil {
		return checkoutdomain.SessionStatus{}, err
	}
	return sessionStatusFrom(session), nil
}

// GetPaymentDetails returns ErrSessionNotPaid unless the session is paid.
func (s *Service) GetPaymentDetails(ctx context.Context, sessionID string) (checkoutdomain.PaymentDetails, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return checkoutdomain.PaymentDetails{}, checkoutdomain.ErrSessionIDRequired
	}

	params := &stripego.CheckoutSessionParams{}
	params.AddExpand("payment_intent")
	params.AddExpand("payment_intent.latest_charge")

	session, err := s.backend.GetCheckoutSession(ctx, sessionID, params)
	if err != nil {
		return checkoutdomain.PaymentDetails{}, err
	}
	if session.PaymentStatus != stripego.CheckoutSessionPaymentStatusPaid {
		return checkoutdomain.PaymentDetails{}, checkoutdomain.ErrSessionNotPaid
	}

	details := checkoutdomain.PaymentDetails{
		SessionID:     session.ID,
		Amount:        decimal.New(session.AmountTotal, -2),
		Currency:      string(session.Currency),
		CustomerEmail: session.CustomerEmail,
		Metadata:      session.Metadata,
	}
	if session.CustomerDetails != nil {
		if session.CustomerDetails.Email != "" {
			details.CustomerEmail = session.CustomerDetails.Email
		}
		details.CustomerName = session.CustomerDetails.Name
	}
	if intent := session.PaymentIntent; intent != nil {
		details.PaymentIntentID = intent.ID
		if charge := intent.LatestCharge; charge != nil {
			details.ChargeID = charge.ID
			details.ReceiptURL = charge.ReceiptURL
		}
	}
	return details, nil
}

func (s *Service) ListSessionsByEmail(ctx context.Context, email string, limit int) ([]checkoutdomain.SessionStatus, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, checkoutdomain.ErrEmailRequired
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	params := &stripego.CheckoutSessionListParams{
		CustomerDetails: &stripego.CheckoutSessionListCustomerDetailsParams{
			Email: stripego.String(email),
		},
	}
	params.Limit = stripego.Int64(int64(limit))

	sessions, err := s.backend.ListCheckoutSessions(ctx, params)
	if err != nil {
		return nil, err
	}

	out := make([]checkoutdomain.SessionStatus, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, sessionStatusFrom(session))
	}
	return out, nil
}

// ValidateSessionMetadata lists every reference missing from a session's
// metadata. It never fails.
func (s *Service) ValidateSessionMetadata(metadata map[string]string) checkoutdomain.ValidationResult {
	result := checkoutdomain.ValidationResult{Errors: []string{}}
	for _, key := range []string{paymentdomain.MetadataQuoteID, paymentdomain.MetadataPartnerID} {
		if strings.TrimSpace(metadata[key]) == "" {
			result.Errors = append(result.Errors, "missing "+key)
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

func sessionStatusFrom(session *stripego.CheckoutSession) checkoutdomain.SessionStatus {
	status := checkoutdomain.SessionStatus{
		ID:            session.ID,
		Status:        string(session.Status),
		PaymentStatus: string(session.PaymentStatus),
		CustomerEmail: session.CustomerEmail,
		AmountTotal:   decimal.New(session.AmountTotal, -2),
		Currency:      string(session.Currency),
		Metadata:      session.Metadata,
	}
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		status.CustomerEmail = session.CustomerDetails.Email
	}
	if session.PaymentIntent != nil {
		status.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.ExpiresAt > 0 {
		status.ExpiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return status
}
