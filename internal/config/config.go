package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/toko-engine/internal/cart"
	"github.com/noah-isme/toko-engine/internal/checkout"
	"github.com/noah-isme/toko-engine/internal/inventory"
	"github.com/noah-isme/toko-engine/internal/location"
	"github.com/noah-isme/toko-engine/internal/money"
	"github.com/noah-isme/toko-engine/internal/tax"
)

// Store holds the shop-wide options read by the pricing services.
type Store struct {
	Currency          string
	CurrencyPosition  money.Position
	ThousandSeparator string
	DecimalSeparator  string
	Decimals          int32
	PricesIncludeTax  bool
	EnableTaxes       bool
	EnableCoupons     bool
	ManageStock       bool
	LowStockThreshold int
	HoldStockMinutes  int
	TermsPage         string
	TaxBasedOn        tax.BasedOn
	BaseCountry       string
	BaseState         string
	BasePostcode      string
	BaseCity          string
	CartTTL           time.Duration
	OrderNumberSource string
	BACSDetails       string
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	OpsPort     string
	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	LogFormat         string
	LogLevel          string
	OTLPEndpoint      string
	OTelSamplingRatio float64

	LockTTL          time.Duration
	LockRetryBackoff time.Duration

	QueuePrefix            string
	QueueMaxAttempts       int
	QueueVisibilityTimeout time.Duration

	ProductCacheTTL time.Duration

	CouponAttemptLimit  int
	CouponAttemptWindow time.Duration

	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration

	Store Store
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		OpsPort:     valueOrDefault(k.String("OPS_PORT"), "9090"),
		DatabaseURL: k.String("DATABASE_URL"),
		RedisURL:    k.String("REDIS_URL"),

		KafkaBrokers: splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaTopic:   valueOrDefault(k.String("KAFKA_TOPIC"), "toko.domain-events"),

		LogFormat:         valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:          valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		OTLPEndpoint:      strings.TrimSpace(k.String("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTelSamplingRatio: parseFloat(k.String("OTEL_SAMPLING_RATIO"), 1),

		LockTTL:          parseDuration(k.String("LOCK_TTL"), "10s"),
		LockRetryBackoff: parseDuration(k.String("LOCK_RETRY_BACKOFF"), "25ms"),

		QueuePrefix:            valueOrDefault(k.String("QUEUE_REDIS_PREFIX"), "toko"),
		QueueMaxAttempts:       parseInt(k.String("QUEUE_MAX_ATTEMPTS"), 8),
		QueueVisibilityTimeout: parseDuration(k.String("QUEUE_VISIBILITY_TIMEOUT"), "30s"),

		ProductCacheTTL: parseDuration(k.String("CACHE_TTL_PRODUCTS"), "5m"),

		CouponAttemptLimit:  parseInt(k.String("COUPON_ATTEMPT_LIMIT"), 10),
		CouponAttemptWindow: parseDuration(k.String("COUPON_ATTEMPT_WINDOW"), "1m"),

		BreakerMinRequests:  parseInt(k.String("PAYMENT_BREAKER_MIN_REQUESTS"), 5),
		BreakerFailureRatio: parseFloat(k.String("PAYMENT_BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("PAYMENT_BREAKER_OPEN_FOR"), "30s"),

		Store: Store{
			Currency:          strings.ToUpper(valueOrDefault(k.String("STORE_CURRENCY"), "USD")),
			CurrencyPosition:  money.ParsePosition(k.String("STORE_CURRENCY_POSITION")),
			ThousandSeparator: rawOrDefault(k, "STORE_THOUSAND_SEPARATOR", ","),
			DecimalSeparator:  rawOrDefault(k, "STORE_DECIMAL_SEPARATOR", "."),
			Decimals:          int32(clamp(parseInt(k.String("STORE_DECIMALS"), 2), 0, 4)),
			PricesIncludeTax:  parseBoolDefault(k.String("STORE_PRICES_INCLUDE_TAX"), false),
			EnableTaxes:       parseBoolDefault(k.String("STORE_ENABLE_TAXES"), true),
			EnableCoupons:     parseBoolDefault(k.String("STORE_ENABLE_COUPONS"), true),
			ManageStock:       parseBoolDefault(k.String("STORE_MANAGE_STOCK"), true),
			LowStockThreshold: parseInt(k.String("STORE_LOW_STOCK_THRESHOLD"), inventory.DefaultLowStockThreshold),
			HoldStockMinutes:  parseInt(k.String("STORE_HOLD_STOCK_MINUTES"), 60),
			TermsPage:         strings.TrimSpace(k.String("STORE_TERMS_PAGE")),
			TaxBasedOn:        tax.ParseBasedOn(k.String("STORE_TAX_BASED_ON")),
			BaseCountry:       k.String("STORE_BASE_COUNTRY"),
			BaseState:         k.String("STORE_BASE_STATE"),
			BasePostcode:      k.String("STORE_BASE_POSTCODE"),
			BaseCity:          k.String("STORE_BASE_CITY"),
			CartTTL:           parseDuration(k.String("STORE_CART_TTL"), "168h"),
			OrderNumberSource: strings.ToLower(valueOrDefault(k.String("ORDER_NUMBER_SOURCE"), "random")),
			BACSDetails:       strings.TrimSpace(k.String("BACS_ACCOUNT_DETAILS")),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.Store.OrderNumberSource {
	case "random", "sequence":
	default:
		return nil, fmt.Errorf("ORDER_NUMBER_SOURCE must be random or sequence, got %q", cfg.Store.OrderNumberSource)
	}

	return cfg, nil
}

// OpsAddr returns the address the ops HTTP server should bind to.
func (c *Config) OpsAddr() string {
	port := strings.TrimSpace(c.OpsPort)
	if port == "" {
		port = "9090"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Formatting is the currency display profile.
func (c *Config) Formatting() money.Profile {
	return money.Profile{
		Currency:          c.Store.Currency,
		Symbol:            money.Symbol(c.Store.Currency),
		Position:          c.Store.CurrencyPosition,
		ThousandSeparator: c.Store.ThousandSeparator,
		DecimalSeparator:  c.Store.DecimalSeparator,
		Decimals:          c.Store.Decimals,
	}
}

func (c *Config) TaxSettings() tax.Settings {
	return tax.Settings{
		Enabled:          c.Store.EnableTaxes,
		PricesIncludeTax: c.Store.PricesIncludeTax,
		BasedOn:          c.Store.TaxBasedOn,
		Base:             location.NewDestination(c.Store.BaseCountry, c.Store.BaseState, c.Store.BasePostcode, c.Store.BaseCity),
		Scale:            c.Store.Decimals,
	}
}

func (c *Config) InventorySettings() inventory.Settings {
	return inventory.Settings{
		ManageStock:       c.Store.ManageStock,
		LowStockThreshold: c.Store.LowStockThreshold,
		HoldStockMinutes:  c.Store.HoldStockMinutes,
	}
}

func (c *Config) CheckoutSettings() checkout.Settings {
	return checkout.Settings{
		Currency:         c.Store.Currency,
		Scale:            c.Store.Decimals,
		PricesIncludeTax: c.Store.PricesIncludeTax,
		TermsPage:        c.Store.TermsPage,
		HoldStock:        c.HoldStock(),
	}
}

func (c *Config) CartSettings() cart.Settings {
	return cart.Settings{
		EnableCoupons: c.Store.EnableCoupons,
		TTL:           c.Store.CartTTL,
		Formatting:    c.Formatting(),
	}
}

// HoldStock is zero when holding is disabled.
func (c *Config) HoldStock() time.Duration {
	if c.Store.HoldStockMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Store.HoldStockMinutes) * time.Minute
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

// rawOrDefault keeps whitespace so a space can be a thousands separator.
func rawOrDefault(k *koanf.Koanf, key, fallback string) string {
	if !k.Exists(key) {
		return fallback
	}
	return k.String(key)
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
