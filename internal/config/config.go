package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/ratelimit"
)

type Config struct {
	DBSource string // empty selects the in-memory store
	Port     string
	Env      string
	LogLevel string

	JWTSecret   string
	LockTimeout time.Duration

	RateLimitCacheSize int
	RateLimits         ratelimit.Rules

	EventBufferSize int
	EventWorkers    int

	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	OpsEmail string

	ExpirySweepCron string
}

// Load reads the configuration from the environment, after loading an
// optional .env file from the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, using process environment")
	}

	cfg := &Config{
		DBSource:        os.Getenv("DB_SOURCE"),
		Port:            getEnv("SERVER_PORT", "8080"),
		Env:             getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		AMQPURL:         os.Getenv("AMQP_URL"),
		AMQPExchange:    getEnv("AMQP_EXCHANGE", "cardledger.events"),
		AMQPRoutingKey:  getEnv("AMQP_ROUTING_KEY", "cardledger"),
		SMTPHost:        os.Getenv("SMTP_HOST"),
		SMTPUser:        os.Getenv("SMTP_USER"),
		SMTPPass:        os.Getenv("SMTP_PASS"),
		OpsEmail:        os.Getenv("OPS_EMAIL"),
		ExpirySweepCron: getEnv("EXPIRY_SWEEP_CRON", "0 0 * * *"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	var err error
	if cfg.LockTimeout, err = getDuration("LOCK_TIMEOUT", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitCacheSize, err = getInt("RATE_LIMIT_CACHE_SIZE", 100000); err != nil {
		return nil, err
	}
	if cfg.EventBufferSize, err = getInt("EVENT_BUFFER_SIZE", 1024); err != nil {
		return nil, err
	}
	if cfg.EventWorkers, err = getInt("EVENT_WORKERS", 2); err != nil {
		return nil, err
	}
	if cfg.SMTPPort, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}

	cfg.RateLimits = ratelimit.DefaultRules()
	for class, prefix := range map[ratelimit.Class]string{
		ratelimit.GeneralRequest: "RATE_LIMIT_GENERAL",
		ratelimit.AuthAttempt:    "RATE_LIMIT_AUTH",
		ratelimit.Transfer:       "RATE_LIMIT_TRANSFER",
	} {
		rule := &cfg.RateLimits[class]
		if rule.Threshold, err = getInt(prefix+"_MAX", rule.Threshold); err != nil {
			return nil, err
		}
		if rule.Window, err = getDuration(prefix+"_WINDOW", rule.Window); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil || i <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, value)
	}
	return i, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, value)
	}
	return d, nil
}
