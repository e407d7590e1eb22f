package config

import (
	"os"
	"strings"
)

type AppConfig struct {
	HTTPAddr     string
	RedisAddr    string
	RedisPass    string
	KafkaBrokers []string

	// WebhookSecret signs the processor's event deliveries.
	WebhookSecret string
	// AdminToken gates the operator endpoints.
	AdminToken string

	// Provider selects the payout rail: "stripe" or "paypal".
	Provider        string
	StripeBaseURL   string
	StripeSecretKey string
	PaypalClientID  string
	PaypalSecret    string
	PaypalLive      bool
}

func Load() AppConfig {
	return AppConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8031"),
		RedisAddr:    getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:    getEnv("REDIS_PASS", ""),
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),

		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		AdminToken:    getEnv("ADMIN_TOKEN", ""),

		Provider:        getEnv("PAYMENT_PROVIDER", "stripe"),
		StripeBaseURL:   getEnv("STRIPE_BASE_URL", ""),
		StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		PaypalClientID:  getEnv("PAYPAL_CLIENT_ID", ""),
		PaypalSecret:    getEnv("PAYPAL_SECRET", ""),
		PaypalLive:      getEnv("PAYPAL_LIVE", "") == "true",
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
