package config

import (
	"fmt"

	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(provideConfig),
	fx.Provide(NewCheckoutConfigHolder),
)

func provideConfig() (Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
