package stripe

import (
	"context"
	"strings"

	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	stripego "github.com/stripe/stripe-go/v79"
)

type intentClient interface {
	GetPaymentIntent(ctx context.Context, id string) (*stripego.PaymentIntent, error)
}

// IntentReader maps provider payment intents into IntentDetails.
type IntentReader struct {
	client intentClient
}

func NewIntentReader(client intentClient) *IntentReader {
	return &IntentReader{client: client}
}

func (r *IntentReader) GetIntent(ctx context.Context, id string) (*paymentdomain.IntentDetails, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, paymentdomain.ErrPaymentIntentMissing
	}

	intent, err := r.client.GetPaymentIntent(ctx, id)
	if err != nil {
		return nil, err
	}
	return IntentDetailsFrom(intent), nil
}

// IntentDetailsFrom flattens an intent whose latest_charge is expanded.
func IntentDetailsFrom(intent *stripego.PaymentIntent) *paymentdomain.IntentDetails {
	if intent == nil {
		return nil
	}

	out := &paymentdomain.IntentDetails{
		ID:       intent.ID,
		Status:   string(intent.Status),
		Amount:   intent.Amount,
		Currency: string(intent.Currency),
	}
	if intent.Customer != nil {
		out.CustomerID = intent.Customer.ID
	}

	charge := intent.LatestCharge
	if charge == nil {
		return out
	}
	out.ChargeID = charge.ID
	out.ReceiptURL = charge.ReceiptURL
	if pm := charge.PaymentMethodDetails; pm != nil {
		out.PaymentMethodType = string(pm.Type)
		if card := pm.Card; card != nil {
			out.Card = &paymentdomain.CardDetails{
				Brand:    string(card.Brand),
				Last4:    card.Last4,
				ExpMonth: card.ExpMonth,
				ExpYear:  card.ExpYear,
			}
		}
	}
	return out
}
