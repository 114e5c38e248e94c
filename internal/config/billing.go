package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig holds the tunable constants of the plan/billing state machine.
type BillingConfig struct {
	FreePlanDays        int     `mapstructure:"freePlanDays"`
	TaxRate             float64 `mapstructure:"taxRate"`
	InvoiceDueDays      int     `mapstructure:"invoiceDueDays"`
	ReminderBeforeDays  int     `mapstructure:"reminderBeforeDays"`
	ExpiredGraceDays    int     `mapstructure:"expiredGraceDays"`
	ExpiryWarningDays   int     `mapstructure:"expiryWarningDays"`
	Currency            string  `mapstructure:"currency"`
	InvoiceNumberPrefix string  `mapstructure:"invoiceNumberPrefix"`
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		FreePlanDays:        30,
		TaxRate:             0.19,
		InvoiceDueDays:      5,
		ReminderBeforeDays:  3,
		ExpiredGraceDays:    1,
		ExpiryWarningDays:   7,
		Currency:            "COP",
		InvoiceNumberPrefix: "WB",
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder returns a holder that never reloads.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.billing")

	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/washbay/config")
	v.AddConfigPath("/etc/washbay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("WASHBAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingConfig()
	v.SetDefault("billing.freePlanDays", defaults.FreePlanDays)
	v.SetDefault("billing.taxRate", defaults.TaxRate)
	v.SetDefault("billing.invoiceDueDays", defaults.InvoiceDueDays)
	v.SetDefault("billing.reminderBeforeDays", defaults.ReminderBeforeDays)
	v.SetDefault("billing.expiredGraceDays", defaults.ExpiredGraceDays)
	v.SetDefault("billing.expiryWarningDays", defaults.ExpiryWarningDays)
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.invoiceNumberPrefix", defaults.InvoiceNumberPrefix)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	if err := ValidateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.String("file", e.Name), zap.Error(err))
			return
		}
		if err := ValidateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	if h == nil {
		return DefaultBillingConfig()
	}
	cfg, ok := h.current.Load().(BillingConfig)
	if !ok {
		return DefaultBillingConfig()
	}
	return cfg
}

func ValidateBillingConfig(cfg BillingConfig) error {
	if cfg.FreePlanDays <= 0 {
		return errors.New("billing.freePlanDays must be positive")
	}
	if cfg.TaxRate < 0 || cfg.TaxRate >= 1 {
		return errors.New("billing.taxRate must be within [0, 1)")
	}
	if cfg.InvoiceDueDays <= 0 {
		return errors.New("billing.invoiceDueDays must be positive")
	}
	if cfg.ReminderBeforeDays < 0 || cfg.ExpiredGraceDays < 0 {
		return errors.New("billing reminder offsets cannot be negative")
	}
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	return nil
}
