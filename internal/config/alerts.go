package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// AlertThreshold defines when a balance is considered low for a currency.
type AlertThreshold struct {
	Currency string `mapstructure:"currency"`
	MinMinor int64  `mapstructure:"minMinor"`
}

// AlertConfig groups balance alerting rules.
type AlertConfig struct {
	Thresholds []AlertThreshold `mapstructure:"thresholds"`
}

func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		Thresholds: []AlertThreshold{
			{Currency: "EUR", MinMinor: 5_000},
			{Currency: "USD", MinMinor: 5_000},
		},
	}
}

// AlertConfigHolder keeps the current alert config and hot-reloads it from disk.
type AlertConfigHolder struct {
	current atomic.Value // holds AlertConfig
}

func NewAlertConfigHolder() (*AlertConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("alerts")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/fleetpass")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FLEETPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultAlertConfig()
		v.SetDefault("alerts.thresholds", defaults.Thresholds)
	}

	var cfg AlertConfig
	if err := v.UnmarshalKey("alerts", &cfg); err != nil {
		return nil, err
	}
	if err := validateAlertConfig(cfg); err != nil {
		return nil, err
	}

	holder := &AlertConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AlertConfig
		if err := v.UnmarshalKey("alerts", &updated); err != nil {
			log.Printf("[alert-config] reload failed: %v", err)
			return
		}
		if err := validateAlertConfig(updated); err != nil {
			log.Printf("[alert-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[alert-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *AlertConfigHolder) Get() AlertConfig {
	return h.current.Load().(AlertConfig)
}

// ThresholdFor returns the low-balance threshold for a currency, zero if unset.
func (h *AlertConfigHolder) ThresholdFor(currency string) int64 {
	for _, t := range h.Get().Thresholds {
		if strings.EqualFold(t.Currency, currency) {
			return t.MinMinor
		}
	}
	return 0
}

func validateAlertConfig(cfg AlertConfig) error {
	for _, t := range cfg.Thresholds {
		if strings.TrimSpace(t.Currency) == "" {
			return errors.New("alerts.thresholds currency cannot be empty")
		}
		if t.MinMinor < 0 {
			return errors.New("alerts.thresholds minMinor cannot be negative")
		}
	}
	return nil
}
