package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	TelnyxAPIKey             string
	TelnyxMessagingProfileID string
	TelnyxPublicKey          string

	// StrictSignatureVerification rejects webhooks whose signature headers
	// are missing or invalid. Disable only for local debugging.
	StrictSignatureVerification bool
	SignatureMaxSkew            time.Duration

	// Downstream handler targets. An empty SMSIngestURL routes SMS events
	// to the in-process ingestion handler instead of forwarding over HTTP.
	AIDispatcherURL    string
	BasicTelephonyURL  string
	SMSIngestURL       string
	ServiceBearerToken string
	ForwardTimeout     time.Duration

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		TelnyxAPIKey:             getEnv("TELNYX_API_KEY", ""),
		TelnyxMessagingProfileID: getEnv("TELNYX_MESSAGING_PROFILE_ID", ""),
		TelnyxPublicKey:          getEnv("TELNYX_PUBLIC_KEY", ""),

		StrictSignatureVerification: getEnvAsBool("STRICT_SIGNATURE_VERIFICATION", true),
		SignatureMaxSkew:            getEnvAsDuration("SIGNATURE_MAX_SKEW", 5*time.Minute),

		AIDispatcherURL:    getEnv("AI_DISPATCHER_URL", ""),
		BasicTelephonyURL:  getEnv("BASIC_TELEPHONY_URL", ""),
		SMSIngestURL:       getEnv("SMS_INGEST_URL", ""),
		ServiceBearerToken: getEnv("SERVICE_BEARER_TOKEN", ""),
		ForwardTimeout:     getEnvAsDuration("FORWARD_TIMEOUT", 10*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
