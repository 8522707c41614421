package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the mangrove watch service.
type Config struct {
	// Database configuration. When DBHost is empty the service runs on the
	// in-memory store (non-durable, process lifetime only).
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port           string
	TrustedProxies []string
	DevMode        bool

	// Security
	JWTSecret     string
	TokenLifetime time.Duration

	// ML inference endpoint (external Python service)
	MLBaseURL        string
	MLHealthTimeout  time.Duration
	MLVerifyTimeout  time.Duration
	MLAnalyzeTimeout time.Duration
	MLPredictTimeout time.Duration

	// Email notifications
	SendGridAPIKey    string
	SendGridFromName  string
	SendGridFromEmail string
	NotifyEmails      []string

	// RabbitMQ (optional)
	AMQPURL            string
	AMQPExchange       string
	IncidentRoutingKey string

	// Background re-verification sweeper
	SweepInterval time.Duration
	SweepBatch    int
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "mangrovewatch"),

		Port:           getEnv("PORT", "8080"),
		TrustedProxies: getStringSliceEnv("TRUSTED_PROXIES", ""),
		DevMode:        getBoolEnv("DEV_MODE", false),

		JWTSecret:     getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		TokenLifetime: getDurationEnv("TOKEN_LIFETIME", 24*time.Hour),

		MLBaseURL:        getEnv("ML_BASE_URL", "http://localhost:8000"),
		MLHealthTimeout:  getDurationEnv("ML_HEALTH_TIMEOUT", 2*time.Second),
		MLVerifyTimeout:  getDurationEnv("ML_VERIFY_TIMEOUT", 15*time.Second),
		MLAnalyzeTimeout: getDurationEnv("ML_ANALYZE_TIMEOUT", 30*time.Second),
		MLPredictTimeout: getDurationEnv("ML_PREDICT_TIMEOUT", 10*time.Second),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Mangrove Watch"),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", "alerts@mangrovewatch.example"),
		NotifyEmails:      getStringSliceEnv("NOTIFY_EMAILS", ""),

		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "mangrovewatch"),
		IncidentRoutingKey: getEnv("AMQP_INCIDENT_ROUTING_KEY", "incident.events"),

		SweepInterval: getDurationEnv("SWEEP_INTERVAL", 5*time.Minute),
		SweepBatch:    getIntEnv("SWEEP_BATCH", 20),
	}
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getBoolEnv gets a boolean environment variable or returns a default value.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getStringSliceEnv gets a comma-separated environment variable as a slice.
func getStringSliceEnv(key, defaultValue string) []string {
	value := getEnv(key, defaultValue)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
