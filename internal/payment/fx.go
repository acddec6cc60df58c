package payment

import (
	"github.com/smallbiznis/eventcover/internal/config"
	"github.com/smallbiznis/eventcover/internal/payment/adapters"
	"github.com/smallbiznis/eventcover/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/eventcover/internal/payment/domain"
	"github.com/smallbiznis/eventcover/internal/payment/repository"
	paymentservice "github.com/smallbiznis/eventcover/internal/payment/service"
	"github.com/smallbiznis/eventcover/internal/payment/webhook"
	stripeclient "github.com/smallbiznis/eventcover/internal/providers/stripe"
	"github.com/smallbiznis/eventcover/internal/ratelimit"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) (*adapters.Registry, error) {
		registry := adapters.NewRegistry()
		err := registry.Register(stripe.NewFactory(), map[string]any{
			stripe.SettingWebhookSecret: cfg.Stripe.WebhookSecret,
		})
		return registry, err
	}),
	fx.Provide(func(client *stripeclient.Client) paymentdomain.IntentReader {
		return stripe.NewIntentReader(client)
	}),
	fx.Provide(func(locker *ratelimit.Locker) paymentdomain.EventLocker {
		if locker == nil {
			return nil
		}
		return locker
	}),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
)
