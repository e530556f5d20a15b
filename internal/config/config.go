package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"os"
)

// Config carries all environment-driven settings. It is loaded once at
// startup and injected into components at construction; nothing reads the
// environment after Load returns.
type Config struct {
	AppEnv           string
	LogLevel         string
	LogFormat        string
	ListenAddr       string
	BasePath         string
	MetricsNamespace string
	AdminToken       string

	DatabaseURL    string
	DatabaseSchema string
	SQLitePath     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	WABaseURL      string
	WAInstanceID   string
	WAToken        string
	WAWebhookToken string
	WATimeout      time.Duration

	TGBotToken      string
	TGWebhookSecret string

	TaxiGroupID     int64
	CafeGroupID     int64
	PharmacyGroupID int64
	PorterGroupID   int64
	ShopGroupID     int64

	TaxiCommission       int64
	PorterCommission     int64
	ShopperCommission    int64
	CafeCommissionPct    int64
	PharmacyDeliveryFee  int64
	MinDriverBalance     int64
	CustomPriceThreshold int64
	TaxiBaseFare         int64
	PromoMode            bool

	SweepInterval      time.Duration
	CafeTimeout        time.Duration
	PharmacyTimeout    time.Duration
	TaxiTimeout        time.Duration
	CancelRefundWindow time.Duration
}

// Load reads configuration from the environment and validates required
// fields.
func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		BasePath:         getEnv("BASE_PATH", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "gorodbot"),
		AdminToken:       getEnv("ADMIN_TOKEN", ""),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseSchema: getEnv("DATABASE_SCHEMA", ""),
		SQLitePath:     getEnv("SQLITE_PATH", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		WABaseURL:      getEnv("WA_API_URL", ""),
		WAInstanceID:   getEnv("WA_INSTANCE_ID", ""),
		WAToken:        getEnv("WA_API_TOKEN", ""),
		WAWebhookToken: getEnv("WA_WEBHOOK_TOKEN", ""),

		TGBotToken:      getEnv("TG_BOT_TOKEN", ""),
		TGWebhookSecret: getEnv("TG_WEBHOOK_SECRET", ""),
	}

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RedisTLS, err = getEnvBool("REDIS_TLS", false); err != nil {
		return nil, err
	}
	if cfg.WATimeout, err = getEnvDuration("WA_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}

	if cfg.TaxiGroupID, err = getEnvInt64("TAXI_GROUP_ID", 0); err != nil {
		return nil, err
	}
	if cfg.CafeGroupID, err = getEnvInt64("CAFE_GROUP_ID", 0); err != nil {
		return nil, err
	}
	if cfg.PharmacyGroupID, err = getEnvInt64("PHARMACY_GROUP_ID", 0); err != nil {
		return nil, err
	}
	if cfg.PorterGroupID, err = getEnvInt64("PORTER_GROUP_ID", 0); err != nil {
		return nil, err
	}
	if cfg.ShopGroupID, err = getEnvInt64("SHOP_GROUP_ID", 0); err != nil {
		return nil, err
	}

	if cfg.TaxiCommission, err = getEnvInt64("TAXI_COMMISSION", 10); err != nil {
		return nil, err
	}
	if cfg.PorterCommission, err = getEnvInt64("PORTER_COMMISSION", 10); err != nil {
		return nil, err
	}
	if cfg.ShopperCommission, err = getEnvInt64("SHOPPER_COMMISSION", 10); err != nil {
		return nil, err
	}
	if cfg.CafeCommissionPct, err = getEnvInt64("CAFE_COMMISSION_PERCENT", 5); err != nil {
		return nil, err
	}
	if cfg.PharmacyDeliveryFee, err = getEnvInt64("PHARMACY_DELIVERY_FEE", 50); err != nil {
		return nil, err
	}
	if cfg.MinDriverBalance, err = getEnvInt64("MIN_DRIVER_BALANCE", 0); err != nil {
		return nil, err
	}
	if cfg.CustomPriceThreshold, err = getEnvInt64("CUSTOM_PRICE_THRESHOLD", 70); err != nil {
		return nil, err
	}
	if cfg.TaxiBaseFare, err = getEnvInt64("TAXI_BASE_FARE", 100); err != nil {
		return nil, err
	}
	if cfg.PromoMode, err = getEnvBool("PROMO_MODE", false); err != nil {
		return nil, err
	}

	if cfg.SweepInterval, err = getEnvDuration("SWEEP_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.CafeTimeout, err = getEnvDuration("CAFE_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.PharmacyTimeout, err = getEnvDuration("PHARMACY_TIMEOUT", 3*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TaxiTimeout, err = getEnvDuration("TAXI_TIMEOUT", time.Minute); err != nil {
		return nil, err
	}
	if cfg.CancelRefundWindow, err = getEnvDuration("CANCEL_REFUND_WINDOW", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		missing = append(missing, "DATABASE_URL or SQLITE_PATH")
	}
	if c.WABaseURL == "" {
		missing = append(missing, "WA_API_URL")
	}
	if c.WAToken == "" {
		missing = append(missing, "WA_API_TOKEN")
	}
	if c.TGBotToken == "" {
		missing = append(missing, "TG_BOT_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
