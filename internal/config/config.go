package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	DatabaseURL    string
	UseMemoryStore bool
	SeedDemoData   bool
	CORSOrigins    []string

	// Public POST endpoints (booking, chat), per client IP
	RateLimitRPS   float64
	RateLimitBurst int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking critical section
	LockTTL        time.Duration
	LockWait       time.Duration
	AdapterTimeout time.Duration

	// Google Calendar
	GoogleClientID          string
	GoogleClientSecret      string
	GoogleRedirectURI       string
	GoogleWebhookURL        string
	CalendarTimeZone        string
	CalendarRefreshInterval time.Duration

	// Mercado Pago
	MercadoPagoAccessToken   string
	MercadoPagoWebhookSecret string
	MercadoPagoBaseURL       string
	DepositAmount            float64
	DepositCurrency          string

	// Twilio WhatsApp
	TwilioAccountSID    string
	TwilioAuthToken     string
	TwilioWhatsAppFrom  string
	ClinicDisplayName   string
	DefaultPhoneRegion  string
	NotifyMaxAttempts   int
	NotifyRetryBaseWait time.Duration

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Reminders
	ReminderInterval time.Duration
	ReminderLeadTime time.Duration

	// Chat receptionist
	LLMProvider     string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIMaxTokens int
	GeminiAPIKey    string
	GeminiModel     string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		SeedDemoData:   getEnvAsBool("SEED_DEMO_DATA", true),
		CORSOrigins:    getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 0.5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		LockTTL:        getEnvAsDuration("LOCK_TTL", 10*time.Second),
		LockWait:       getEnvAsDuration("LOCK_WAIT", 5*time.Second),
		AdapterTimeout: getEnvAsDuration("ADAPTER_TIMEOUT", 10*time.Second),

		GoogleClientID:          getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:      getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:       getEnv("GOOGLE_REDIRECT_URI", ""),
		GoogleWebhookURL:        getEnv("GOOGLE_WEBHOOK_URL", ""),
		CalendarTimeZone:        getEnv("CALENDAR_TIMEZONE", "America/Mexico_City"),
		CalendarRefreshInterval: getEnvAsDuration("CALENDAR_REFRESH_INTERVAL", 30*time.Minute),

		MercadoPagoAccessToken:   getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
		MercadoPagoWebhookSecret: getEnv("MERCADOPAGO_WEBHOOK_SECRET", ""),
		MercadoPagoBaseURL:       getEnv("MERCADOPAGO_BASE_URL", "https://api.mercadopago.com"),
		DepositAmount:            getEnvAsFloat("DEPOSIT_AMOUNT", 500),
		DepositCurrency:          getEnv("DEPOSIT_CURRENCY", "MXN"),

		TwilioAccountSID:    getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:     getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppFrom:  getEnv("TWILIO_WHATSAPP_FROM", ""),
		ClinicDisplayName:   getEnv("CLINIC_DISPLAY_NAME", "Tu Clínica Dental"),
		DefaultPhoneRegion:  strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "MX")),
		NotifyMaxAttempts:   getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyRetryBaseWait: getEnvAsDuration("NOTIFY_RETRY_BASE_WAIT", 500*time.Millisecond),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "DentiFlow"),

		ReminderInterval: getEnvAsDuration("REMINDER_INTERVAL", 15*time.Minute),
		ReminderLeadTime: getEnvAsDuration("REMINDER_LEAD_TIME", 24*time.Hour),

		LLMProvider:     strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "openai"))),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens: getEnvAsInt("OPENAI_MAX_TOKENS", 500),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
	}
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
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

// getEnvAsSlice splits a comma separated variable, dropping empty entries.
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
