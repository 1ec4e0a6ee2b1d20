// Package config loads the storefront runtime configuration from the
// environment and an optional YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Storage  StorageConfig  `yaml:"storage"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Orders   OrdersConfig   `yaml:"orders"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Payments PaymentsConfig `yaml:"payments"`
	Ops      OpsConfig      `yaml:"ops"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig configures the remote data gateway client.
type GatewayConfig struct {
	// URL is the hosted project URL, e.g. https://xyz.supabase.co.
	URL string `yaml:"url"`
	// AnonKey is the public API key sent with unauthenticated requests.
	AnonKey string `yaml:"anon_key"`
	// Timeout bounds each gateway request.
	Timeout time.Duration `yaml:"timeout"`
	// RequestsPerSecond caps outbound request rate; 0 disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// StorageConfig configures on-device persistence.
type StorageConfig struct {
	// Backend is "file" or "redis".
	Backend string `yaml:"backend"`
	// Dir is the directory for the file backend.
	Dir string `yaml:"dir"`
	// Namespace prefixes every stored key.
	Namespace string `yaml:"namespace"`
	// Redis settings, used when Backend is "redis".
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// PricingConfig holds the delivery fee schedule.
type PricingConfig struct {
	// DeliveryFee is charged when the subtotal is below FreeDeliveryThreshold.
	DeliveryFee string `yaml:"delivery_fee"`
	// FreeDeliveryThreshold is the subtotal at which delivery becomes free.
	FreeDeliveryThreshold string `yaml:"free_delivery_threshold"`
}

// OrdersConfig configures order tracking.
type OrdersConfig struct {
	// PollInterval is the fixed status re-fetch interval.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CatalogConfig configures the product cache.
type CatalogConfig struct {
	// RefreshSchedule is a cron spec for cache refresh, e.g. "@every 5m".
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// PaymentsConfig configures card payments.
type PaymentsConfig struct {
	StripeSecretKey string `yaml:"stripe_secret_key"`
	Currency        string `yaml:"currency"`
	SuccessURL      string `yaml:"success_url"`
	CancelURL       string `yaml:"cancel_url"`
}

// OpsConfig configures the metrics/health listener.
type OpsConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig mirrors logger.LoggingConfig for YAML/env loading.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

// Default returns the configuration defaults applied before file and
// environment overrides.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Timeout:           30 * time.Second,
			RequestsPerSecond: 20,
		},
		Storage: StorageConfig{
			Backend:   "file",
			Dir:       ".storefront",
			Namespace: "storefront",
		},
		Pricing: PricingConfig{
			DeliveryFee:           "15",
			FreeDeliveryThreshold: "150",
		},
		Orders: OrdersConfig{
			PollInterval: 30 * time.Second,
		},
		Catalog: CatalogConfig{
			RefreshSchedule: "@every 5m",
		},
		Payments: PaymentsConfig{
			Currency:   "usd",
			SuccessURL: "https://example.com/checkout/success",
			CancelURL:  "https://example.com/checkout/cancel",
		},
		Ops: OpsConfig{
			Host: "127.0.0.1",
			Port: 9090,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load builds the configuration: defaults, then the optional YAML file named
// by STOREFRONT_CONFIG, then environment variables. A .env file in the
// working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("STOREFRONT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that required settings are present.
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway URL is required (set SUPABASE_URL)")
	}
	if c.Gateway.AnonKey == "" {
		return fmt.Errorf("gateway anon key is required (set SUPABASE_ANON_KEY)")
	}
	if c.Storage.Backend != "file" && c.Storage.Backend != "redis" {
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.Backend == "redis" && c.Storage.RedisAddr == "" {
		return fmt.Errorf("redis storage backend requires REDIS_ADDR")
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Gateway.URL, "SUPABASE_URL")
	setString(&cfg.Gateway.AnonKey, "SUPABASE_ANON_KEY")
	setDuration(&cfg.Gateway.Timeout, "STOREFRONT_GATEWAY_TIMEOUT")

	setString(&cfg.Storage.Backend, "STOREFRONT_STORAGE_BACKEND")
	setString(&cfg.Storage.Dir, "STOREFRONT_STORAGE_DIR")
	setString(&cfg.Storage.Namespace, "STOREFRONT_STORAGE_NAMESPACE")
	setString(&cfg.Storage.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Storage.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.Storage.RedisDB, "REDIS_DB")

	setString(&cfg.Pricing.DeliveryFee, "STOREFRONT_DELIVERY_FEE")
	setString(&cfg.Pricing.FreeDeliveryThreshold, "STOREFRONT_FREE_DELIVERY_THRESHOLD")

	setDuration(&cfg.Orders.PollInterval, "STOREFRONT_ORDER_POLL_INTERVAL")
	setString(&cfg.Catalog.RefreshSchedule, "STOREFRONT_CATALOG_REFRESH")

	setString(&cfg.Payments.StripeSecretKey, "STRIPE_SECRET_KEY")
	setString(&cfg.Payments.Currency, "STOREFRONT_CURRENCY")
	setString(&cfg.Payments.SuccessURL, "STOREFRONT_CHECKOUT_SUCCESS_URL")
	setString(&cfg.Payments.CancelURL, "STOREFRONT_CHECKOUT_CANCEL_URL")

	setString(&cfg.Ops.Host, "STOREFRONT_OPS_HOST")
	setInt(&cfg.Ops.Port, "STOREFRONT_OPS_PORT")

	setString(&cfg.Logging.Level, "STOREFRONT_LOG_LEVEL")
	setString(&cfg.Logging.Format, "STOREFRONT_LOG_FORMAT")
	setString(&cfg.Logging.Output, "STOREFRONT_LOG_OUTPUT")
	setString(&cfg.Logging.FilePrefix, "STOREFRONT_LOG_FILE_PREFIX")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
