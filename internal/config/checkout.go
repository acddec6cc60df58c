package config

import (
	"errors"
	"log"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// CheckoutConfig controls how hosted checkout sessions are presented.
type CheckoutConfig struct {
	SuccessURL  string `mapstructure:"success_url"`
	CancelURL   string `mapstructure:"cancel_url"`
	ProductName string `mapstructure:"product_name"`
}

func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		SuccessURL:  "http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:   "http://localhost:3000/checkout/cancel",
		ProductName: "Event Insurance",
	}
}

type CheckoutConfigHolder struct {
	current atomic.Value // holds CheckoutConfig
}

func NewCheckoutConfigHolder() (*CheckoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("checkout")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/eventcover/config")
	v.AddConfigPath("/etc/eventcover")
	v.AddConfigPath(".")

	v.SetEnvPrefix("EVENTCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultCheckoutConfig()
	v.SetDefault("checkout.success_url", defaults.SuccessURL)
	v.SetDefault("checkout.cancel_url", defaults.CancelURL)
	v.SetDefault("checkout.product_name", defaults.ProductName)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg CheckoutConfig
	if err := v.UnmarshalKey("checkout", &cfg); err != nil {
		return nil, err
	}
	if err := validateCheckoutConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticCheckoutConfig(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated CheckoutConfig
		if err := v.UnmarshalKey("checkout", &updated); err != nil {
			log.Printf("[checkout-config] reload failed: %v", err)
			return
		}
		if err := validateCheckoutConfig(updated); err != nil {
			log.Printf("[checkout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[checkout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticCheckoutConfig returns a holder that never reloads.
func NewStaticCheckoutConfig(cfg CheckoutConfig) *CheckoutConfigHolder {
	holder := &CheckoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *CheckoutConfigHolder) Get() CheckoutConfig {
	if h == nil {
		return DefaultCheckoutConfig()
	}
	return h.current.Load().(CheckoutConfig)
}

func validateCheckoutConfig(cfg CheckoutConfig) error {
	if err := validateAbsoluteURL(cfg.SuccessURL); err != nil {
		return errors.New("checkout.success_url must be an absolute URL")
	}
	if err := validateAbsoluteURL(cfg.CancelURL); err != nil {
		return errors.New("checkout.cancel_url must be an absolute URL")
	}
	if strings.TrimSpace(cfg.ProductName) == "" {
		return errors.New("checkout.product_name cannot be empty")
	}
	return nil
}

func validateAbsoluteURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return errors.New("not absolute")
	}
	return nil
}
