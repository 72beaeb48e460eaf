package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/kart-backoffice/internal/domain/orderedit"
	"github.com/xenking/kart-backoffice/internal/domain/pricing"
	"github.com/xenking/kart-backoffice/internal/domain/tax"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (BACKOFFICE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BACKOFFICE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BACKOFFICE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	Invoice      InvoiceConfig
	Events       EventsConfig
	RateLimit    RateLimitConfig
	Health       HealthConfig
	Graceful     GracefulConfig
}

// PricingConfig holds the shop-wide pricing settings.
type PricingConfig struct {
	RoundingPolicy          string `default:"item" usage:"Rounding level: item, line or total" flag:"rounding-policy"`
	RoundingMode            string `default:"half_up" usage:"Tie-breaking rule: half_up, half_down, half_even, up or down" flag:"rounding-mode"`
	DefaultPrecision        int    `default:"2" usage:"Decimal places used when the currency is unknown" flag:"default-precision"`
	TaxAddress              string `default:"invoice" usage:"Address driving tax resolution: invoice or delivery" flag:"tax-address"`
	AllowOutOfStockOrdering bool   `default:"false" usage:"Allow ordering products without stock by default" flag:"allow-out-of-stock"`
}

// InvoiceConfig controls invoice numbering.
type InvoiceConfig struct {
	Prefix string `default:"#IN" usage:"Prefix of formatted invoice numbers" flag:"invoice-prefix"`
}

// EventsConfig controls the outbox relay. An empty broker list keeps
// events in the outbox without relaying them.
type EventsConfig struct {
	Brokers    []string      `usage:"Kafka broker addresses" flag:"kafka-brokers"`
	Topic      string        `default:"order.edited" usage:"Topic of order edit events" flag:"events-topic"`
	Interval   time.Duration `default:"1s" usage:"Outbox polling interval" flag:"events-interval"`
	BatchSize  int           `default:"100" usage:"Records relayed per poll" flag:"events-batch-size"`
	StaleAfter time.Duration `default:"5m" usage:"Relay heartbeat age failing the liveness probe" flag:"events-stale-after"`
}

// RateLimitConfig controls the per-key token bucket rate limiter.
type RateLimitConfig struct {
	Rate  float64 `default:"10" usage:"Sustained requests per second per API key"`
	Burst int     `default:"20" usage:"Requests allowed at once per API key"`
}

// HealthConfig controls the probe checks.
type HealthConfig struct {
	Interval      time.Duration `default:"10s" usage:"Health check interval" flag:"health-interval"`
	MaxGoroutines int           `default:"10000" usage:"Goroutine count failing the liveness probe" flag:"health-max-goroutines"`
	MaxGCPause    time.Duration `default:"1s" usage:"GC pause failing the liveness probe" flag:"health-max-gc-pause"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from flags, environment variables and YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:])
}

func loadConfig(args []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		Args:      args,
		EnvPrefix: "BACKOFFICE",
		Files:     []string{"config.yaml", "/etc/backoffice/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set BACKOFFICE_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.Pricing.EditConfig(); err != nil {
		return errors.Wrap(err, "pricing")
	}
	if c.Events.Topic == "" {
		return errors.New("events topic is required")
	}
	if c.RateLimit.Rate <= 0 || c.RateLimit.Burst <= 0 {
		return errors.Errorf("rate limit must be positive, got rate %v burst %d", c.RateLimit.Rate, c.RateLimit.Burst)
	}
	return nil
}

// EditConfig converts the pricing settings into the order edit
// configuration.
func (p PricingConfig) EditConfig() (orderedit.Config, error) {
	policy, err := pricing.ParsePolicy(p.RoundingPolicy)
	if err != nil {
		return orderedit.Config{}, err
	}
	mode, err := pricing.ParseMode(p.RoundingMode)
	if err != nil {
		return orderedit.Config{}, err
	}
	address, err := tax.ParseAddressKind(p.TaxAddress)
	if err != nil {
		return orderedit.Config{}, err
	}
	if p.DefaultPrecision < 0 || p.DefaultPrecision > 6 {
		return orderedit.Config{}, errors.Errorf("default precision %d out of range [0, 6]", p.DefaultPrecision)
	}
	return orderedit.Config{
		Pricing: pricing.Defaults{
			Precision: int32(p.DefaultPrecision),
			Policy:    policy,
			Mode:      mode,
		},
		TaxAddress:              address,
		AllowOutOfStockOrdering: p.AllowOutOfStockOrdering,
	}, nil
}

// applyPlatformDefaults maps platform-provided environment variables that
// use standard names like DATABASE_URL and PORT to the application's
// BACKOFFICE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
