package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string

	// Environment is "development" or "production". Development relaxes the
	// session secret requirement.
	Environment string

	// PublicBaseURL is where the web client is served; checkout and portal
	// return URLs are built from it.
	PublicBaseURL string

	// FrontendOrigins are the origins allowed by CORS.
	FrontendOrigins []string

	SessionSecret   string
	DemoAccessToken string

	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string
	// StripeProductApp is the product metadata "app" value marking our products.
	StripeProductApp     string
	BillingLookupTimeout time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	GuideTimeout  time.Duration

	GuideDailyLimit      int
	DecoderLifetimeLimit int
	GuideRatePerSecond   float64
	GuideRateBurst       int

	// UsagePruneSchedule (cron syntax) and UsageRetention drive the daily
	// usage janitor.
	UsagePruneSchedule string
	UsageRetention     time.Duration

	LogLevel  string
	LogFormat string
}

// ScheduleOff disables the usage janitor when used as USAGE_PRUNE_SCHEDULE.
const ScheduleOff = "off"

const (
	defaultServerAddress        = ":18111"
	defaultEnvironment          = "production"
	defaultPublicBaseURL        = "http://localhost:5000"
	defaultStripeProductApp     = "soulart_temple"
	defaultBillingLookupTimeout = 5 * time.Second
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultGuideTimeout         = 30 * time.Second
	defaultGuideDailyLimit      = 50
	defaultDecoderLifetimeLimit = 3
	defaultGuideRatePerSecond   = 0.5
	defaultGuideRateBurst       = 3
	defaultUsagePruneSchedule   = "@every 1h"
	defaultUsageRetention       = 48 * time.Hour
	defaultLogLevel             = "info"
	defaultLogFormat            = "json"
	devSessionSecret            = "soulart-dev-session-secret"

	envServerAddress        = "BACKEND_ADDR"
	envDatabaseURL          = "DATABASE_URL"
	envEnvironment          = "APP_ENV"
	envPublicBaseURL        = "PUBLIC_BASE_URL"
	envFrontendOrigins      = "FRONTEND_ORIGINS"
	envSessionSecret        = "SESSION_SECRET"
	envDemoAccessToken      = "DEMO_ACCESS_TOKEN"
	envStripeSecretKey      = "STRIPE_SECRET_KEY"
	envStripePublishableKey = "STRIPE_PUBLISHABLE_KEY"
	envStripeWebhookSecret  = "STRIPE_WEBHOOK_SECRET"
	envStripeProductApp     = "STRIPE_PRODUCT_APP"
	envBillingLookupTimeout = "BILLING_LOOKUP_TIMEOUT"
	envOpenAIAPIKey         = "OPENAI_API_KEY"
	envOpenAIBaseURL        = "OPENAI_BASE_URL"
	envOpenAIModel          = "OPENAI_MODEL"
	envGuideTimeout         = "GUIDE_TIMEOUT"
	envGuideDailyLimit      = "GUIDE_DAILY_LIMIT"
	envDecoderLifetimeLimit = "DECODER_LIFETIME_LIMIT"
	envGuideRatePerSecond   = "GUIDE_RATE_PER_SECOND"
	envGuideRateBurst       = "GUIDE_RATE_BURST"
	envUsagePruneSchedule   = "USAGE_PRUNE_SCHEDULE"
	envUsageRetention       = "USAGE_RETENTION"
	envLogLevel             = "LOG_LEVEL"
	envLogFormat            = "LOG_FORMAT"

	// Replit-style integration variables accepted as fallbacks.
	envAIIntegrationsAPIKey  = "AI_INTEGRATIONS_OPENAI_API_KEY"
	envAIIntegrationsBaseURL = "AI_INTEGRATIONS_OPENAI_BASE_URL"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:        firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:          os.Getenv(envDatabaseURL),
		Environment:          strings.ToLower(firstNonEmpty(os.Getenv(envEnvironment), defaultEnvironment)),
		PublicBaseURL:        strings.TrimRight(firstNonEmpty(os.Getenv(envPublicBaseURL), defaultPublicBaseURL), "/"),
		FrontendOrigins:      splitList(os.Getenv(envFrontendOrigins)),
		SessionSecret:        os.Getenv(envSessionSecret),
		DemoAccessToken:      os.Getenv(envDemoAccessToken),
		StripeSecretKey:      os.Getenv(envStripeSecretKey),
		StripePublishableKey: os.Getenv(envStripePublishableKey),
		StripeWebhookSecret:  os.Getenv(envStripeWebhookSecret),
		StripeProductApp:     firstNonEmpty(os.Getenv(envStripeProductApp), defaultStripeProductApp),
		OpenAIAPIKey:         firstNonEmpty(os.Getenv(envOpenAIAPIKey), os.Getenv(envAIIntegrationsAPIKey)),
		OpenAIBaseURL:        firstNonEmpty(os.Getenv(envOpenAIBaseURL), os.Getenv(envAIIntegrationsBaseURL)),
		OpenAIModel:          firstNonEmpty(os.Getenv(envOpenAIModel), defaultOpenAIModel),
		UsagePruneSchedule:   firstNonEmpty(os.Getenv(envUsagePruneSchedule), defaultUsagePruneSchedule),
		LogLevel:             firstNonEmpty(os.Getenv(envLogLevel), defaultLogLevel),
		LogFormat:            firstNonEmpty(os.Getenv(envLogFormat), defaultLogFormat),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}

	if cfg.SessionSecret == "" {
		if !cfg.IsDevelopment() {
			return Config{}, fmt.Errorf("%s is required outside development", envSessionSecret)
		}
		cfg.SessionSecret = devSessionSecret
	}

	if len(cfg.FrontendOrigins) == 0 {
		cfg.FrontendOrigins = []string{cfg.PublicBaseURL}
	}

	var err error
	if cfg.BillingLookupTimeout, err = durationEnv(envBillingLookupTimeout, defaultBillingLookupTimeout); err != nil {
		return Config{}, err
	}
	if cfg.GuideTimeout, err = durationEnv(envGuideTimeout, defaultGuideTimeout); err != nil {
		return Config{}, err
	}
	if cfg.GuideDailyLimit, err = intEnv(envGuideDailyLimit, defaultGuideDailyLimit); err != nil {
		return Config{}, err
	}
	if cfg.DecoderLifetimeLimit, err = intEnv(envDecoderLifetimeLimit, defaultDecoderLifetimeLimit); err != nil {
		return Config{}, err
	}
	if cfg.GuideRateBurst, err = intEnv(envGuideRateBurst, defaultGuideRateBurst); err != nil {
		return Config{}, err
	}
	if cfg.GuideRatePerSecond, err = floatEnv(envGuideRatePerSecond, defaultGuideRatePerSecond); err != nil {
		return Config{}, err
	}
	if cfg.UsageRetention, err = durationEnv(envUsageRetention, defaultUsageRetention); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.TrimRight(part, "/"))
		}
	}
	return out
}

func intEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, raw)
	}
	return v, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive number", key, raw)
	}
	return v, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, raw)
	}
	return v, nil
}
