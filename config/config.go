package config

import (
	"fmt"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// Config holds the handles and secrets every controller needs.
type Config struct {
	MongoClient *mongo.Client
	DBName      string

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	RazorpayKeyID     string
	RazorpayKeySecret string
	WebhookSecret     string

	Port string
}

// Load reads configuration from the environment. The Mongo client is attached
// by main after connecting.
func Load() (*Config, error) {
	cfg := &Config{
		DBName:            getEnv("DB_NAME", "studentfund"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		RazorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		WebhookSecret:     os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		Port:              getEnv("PORT", "8080"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if cfg.RazorpayKeyID == "" || cfg.RazorpayKeySecret == "" {
		return nil, fmt.Errorf("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET must be set")
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("RAZORPAY_WEBHOOK_SECRET environment variable not set")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
