package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Admin    AdminConfig
	Payment  PaymentConfig
	Crypto   CryptoConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// AdminConfig seeds the back-office account on first boot. There is no
// self-signup; admins are created from here or by another admin.
type AdminConfig struct {
	Email    string
	Password string
	Name     string
}

type PaymentConfig struct {
	GatewayBaseURL     string
	GatewaySecretKey   string
	WebhookSecret      string
	DiscountPercent    int     // full-payment discount, 0-50
	SplitRatio         string  // first-leg fraction of a split plan
	PaymentExpiryHours int     // pending/processing payments older than this get cancelled
	LinkExpiryHours    int     // payment link lifetime once issued
}

type CryptoConfig struct {
	PriceBaseURL  string
	InvoiceExpiry time.Duration
	// Receiving addresses keyed by network id (bitcoin, ethereum,
	// usdt-erc20, usdt-trc20). A network without an address is disabled.
	Addresses map[string]string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         envStr("PORT", "8080"),
			Env:          envStr("APP_ENV", "development"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:             envStr("DATABASE_DSN", "atelier:atelier@tcp(localhost:3306)/atelier?charset=utf8mb4&parseTime=True&loc=Local"),
			MaxIdleConns:    10,
			MaxOpenConns:    100,
			ConnMaxLifetime: time.Hour,
		},
		JWT: JWTConfig{
			AccessSecret:  envStr("JWT_ACCESS_SECRET", "change-me-in-production"),
			RefreshSecret: envStr("JWT_REFRESH_SECRET", "change-me-refresh"),
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "atelier",
		},
		Admin: AdminConfig{
			Email:    envStr("ADMIN_EMAIL", "admin@atelier.local"),
			Password: envStr("ADMIN_PASSWORD", "change-me"),
			Name:     envStr("ADMIN_NAME", "Administrator"),
		},
		Payment: PaymentConfig{
			GatewayBaseURL:     envStr("GATEWAY_BASE_URL", "https://api.paystack.co"),
			GatewaySecretKey:   envStr("GATEWAY_SECRET_KEY", ""),
			WebhookSecret:      envStr("GATEWAY_WEBHOOK_SECRET", ""),
			DiscountPercent:    envInt("FULL_PAYMENT_DISCOUNT_PERCENT", 10),
			SplitRatio:         envStr("SPLIT_RATIO", "0.5"),
			PaymentExpiryHours: envInt("PAYMENT_EXPIRY_HOURS", 24),
			LinkExpiryHours:    envInt("PAYMENT_LINK_EXPIRY_HOURS", 1),
		},
		Crypto: CryptoConfig{
			PriceBaseURL:  envStr("CRYPTO_PRICE_BASE_URL", ""),
			InvoiceExpiry: 30 * time.Minute,
			Addresses: map[string]string{
				"bitcoin":    os.Getenv("BTC_ADDRESS"),
				"ethereum":   os.Getenv("ETH_ADDRESS"),
				"usdt-erc20": os.Getenv("USDT_ERC20_ADDRESS"),
				"usdt-trc20": os.Getenv("USDT_TRC20_ADDRESS"),
			},
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
