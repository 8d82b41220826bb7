package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	RedisURL string

	// NWS feeds. Structured sources are skipped when NWSCountyCode is empty.
	NWSBaseURL      string
	NWSCountyCode   string
	NWSUserAgent    string
	Location        string
	FetchTimeout    time.Duration
	FetchMaxRetries int

	// Text generation.
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAISummaryModel string
	OpenAISearchModel  string
	OpenAITimeout      time.Duration
	SummaryMaxTokens   int

	// Twilio SMS and webhook signing.
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioBaseURL     string
	PublicBaseURL     string

	// Operator e-mail over an SMTP relay.
	AdminEmail   string
	RelayHost    string
	SMTPUser     string
	SMTPPassword string
	SenderDomain string

	// Liveness status publishing. Disabled when StatusTopic is empty.
	KafkaBrokers []string
	StatusTopic  string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	openAITimeout, err := parseDuration("OPENAI_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}

	fetchMaxRetries, err := parseInt("FETCH_MAX_RETRIES", 1, 0, 5)
	if err != nil {
		return nil, err
	}
	summaryMaxTokens, err := parseInt("SUMMARY_MAX_TOKENS", 400, 1, 4096)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RedisURL: sharedcfg.EnvOrDefault("REDIS_URL", "redis://redis:6379/0"),

		NWSBaseURL:      sharedcfg.EnvOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		NWSCountyCode:   os.Getenv("NWS_COUNTY_CODE"),
		NWSUserAgent:    sharedcfg.EnvOrDefault("NWS_USER_AGENT", "disaster-sms"),
		Location:        os.Getenv("LOCATION"),
		FetchTimeout:    fetchTimeout,
		FetchMaxRetries: fetchMaxRetries,

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      sharedcfg.EnvOrDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAISummaryModel: sharedcfg.EnvOrDefault("OPENAI_SUMMARY_MODEL", "gpt-5-mini"),
		OpenAISearchModel:  sharedcfg.EnvOrDefault("OPENAI_SEARCH_MODEL", "gpt-5-search-api"),
		OpenAITimeout:      openAITimeout,
		SummaryMaxTokens:   summaryMaxTokens,

		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: os.Getenv("TWILIO_PHONE_NUMBER"),
		TwilioBaseURL:     sharedcfg.EnvOrDefault("TWILIO_BASE_URL", "https://api.twilio.com"),
		PublicBaseURL:     os.Getenv("PUBLIC_BASE_URL"),

		AdminEmail:   os.Getenv("ADMIN_EMAIL"),
		RelayHost:    os.Getenv("RELAYHOST"),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PWD"),
		SenderDomain: os.Getenv("SENDER_DOMAIN"),

		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		StatusTopic:  os.Getenv("STATUS_TOPIC"),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.StatusTopic != "" && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("STATUS_TOPIC is set but KAFKA_BROKERS is empty")
	}

	return cfg, nil
}

// ValidateServe checks the settings only the webhook server needs.
func (c *Config) ValidateServe() error {
	if c.TwilioAuthToken == "" {
		return errors.New("TWILIO_AUTH_TOKEN is required to verify webhook signatures")
	}
	return nil
}

// StatusEnabled reports whether liveness checks publish to a Kafka topic.
func (c *Config) StatusEnabled() bool {
	return c.StatusTopic != ""
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer between %d and %d", key, lo, hi)
	}
	return n, nil
}
