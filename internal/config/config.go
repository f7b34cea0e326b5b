package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string
	StaticDir     string

	// WhatsApp Cloud API
	WhatsAppAPIToken      string
	WhatsAppPhoneNumberID string
	WhatsAppAPIVersion    string
	WhatsAppGraphBaseURL  string
	WhatsAppVerifyToken   string
	WhatsAppAppSecret     string

	// Bold payment links
	BoldAPIKey         string
	BoldAPILinkURL     string
	BoldWebhookSecret  string
	PaymentAmount      int
	PaymentCurrency    string
	PaymentDescription string
	PaymentLinkTTL     time.Duration

	// Gemini analysis
	GeminiAPIKey  string
	GeminiModelID string

	// Sessions
	SessionBackend       string
	SessionTTL           time.Duration
	SessionSweepInterval time.Duration
	DeliveryWindow       time.Duration
	RedisAddr            string
	RedisPassword        string
	RedisTLS             bool

	// Downloaded media
	MediaDir           string
	MediaMaxAge        time.Duration
	MediaSweepInterval time.Duration

	// HTTP surface
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		StaticDir:     getEnv("STATIC_DIR", "./resources/images"),

		WhatsAppAPIToken:      getEnv("WHATSAPP_API_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v21.0"),
		WhatsAppGraphBaseURL:  getEnv("WHATSAPP_GRAPH_BASE_URL", "https://graph.facebook.com"),
		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),

		BoldAPIKey:         getEnv("BOLD_API_KEY", ""),
		BoldAPILinkURL:     getEnv("BOLD_API_LINK_URL", "https://integrations.api.bold.co/online/link/v1"),
		BoldWebhookSecret:  getEnv("BOLD_WEBHOOK_SECRET", ""),
		PaymentAmount:      getEnvAsInt("PAYMENT_AMOUNT", 5000),
		PaymentCurrency:    strings.ToUpper(getEnv("PAYMENT_CURRENCY", "COP")),
		PaymentDescription: getEnv("PAYMENT_DESCRIPTION", "Diagnóstico Capilar"),
		PaymentLinkTTL:     getEnvAsDuration("PAYMENT_LINK_TTL", 10*time.Minute),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		SessionBackend:       strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionTTL:           getEnvAsDuration("SESSION_TTL", 72*time.Hour),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		DeliveryWindow:       getEnvAsDuration("DELIVERY_WINDOW", 24*time.Hour),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		RedisTLS:             getEnvAsBool("REDIS_TLS", false),

		MediaDir:           getEnv("MEDIA_DIR", "./temp"),
		MediaMaxAge:        getEnvAsDuration("MEDIA_MAX_AGE", 24*time.Hour),
		MediaSweepInterval: getEnvAsDuration("MEDIA_SWEEP_INTERVAL", 24*time.Hour),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 40),
	}
}

// Warnings lists missing settings that leave a capability disabled.
func (c *Config) Warnings() []string {
	var out []string
	if c.WhatsAppAPIToken == "" || c.WhatsAppPhoneNumberID == "" {
		out = append(out, "WHATSAPP_API_TOKEN/WHATSAPP_PHONE_NUMBER_ID missing: outbound messages will fail")
	}
	if c.WhatsAppVerifyToken == "" {
		out = append(out, "WHATSAPP_VERIFY_TOKEN missing: webhook verification will be rejected")
	}
	if c.WhatsAppAppSecret == "" {
		out = append(out, "WHATSAPP_APP_SECRET missing: inbound signatures are not checked")
	}
	if c.BoldAPIKey == "" {
		out = append(out, "BOLD_API_KEY missing: payment links cannot be created")
	}
	if c.BoldWebhookSecret == "" {
		out = append(out, "BOLD_WEBHOOK_SECRET missing: bold signatures are not checked")
	}
	if c.GeminiAPIKey == "" {
		out = append(out, "GEMINI_API_KEY missing: analysis is disabled")
	}
	if c.PublicBaseURL == "" {
		out = append(out, "PUBLIC_BASE_URL missing: payment link image will be relative")
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
