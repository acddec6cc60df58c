package checkout

import (
	"github.com/smallbiznis/eventcover/internal/checkout/service"
	stripeclient "github.com/smallbiznis/eventcover/internal/providers/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(func(client *stripeclient.Client) service.SessionBackend { return client }),
	fx.Provide(service.NewService),
)
