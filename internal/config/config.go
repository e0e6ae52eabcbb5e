package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Identity providers and store backends accepted by the configuration.
const (
	IdentityGoogle   = "google"
	IdentityFirebase = "firebase"

	StoreFirestore = "firestore"
	StoreMemory    = "memory"

	AuthOptional = "optional"
	AuthRequired = "required"

	// maxLedgerBatchSize is the Firestore limit of writes per transaction.
	maxLedgerBatchSize = 500
)

// Config holds all configuration for the relay.
type Config struct {
	Port      string `mapstructure:"PORT"`
	GinMode   string `mapstructure:"GIN_MODE"`
	ClientURL string `mapstructure:"CLIENT_URL"`

	FirebaseProjectID                string `mapstructure:"FIREBASE_PROJECT_ID"`
	GoogleApplicationCredentials     string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	FirebaseServiceAccountJSONBase64 string `mapstructure:"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64"`
	FirebaseServiceAccount           string `mapstructure:"FIREBASE_SERVICE_ACCOUNT"`

	IdentityProvider  string `mapstructure:"IDENTITY_PROVIDER"`
	GoogleWebClientID string `mapstructure:"GOOGLE_WEB_CLIENT_ID"`
	AuthMode          string `mapstructure:"AUTH_MODE"`

	OpenAIAPIKey    string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `mapstructure:"OPENAI_BASE_URL"`
	FreeModel       string        `mapstructure:"FREE_MODEL"`
	PremiumModel    string        `mapstructure:"PREMIUM_MODEL"`
	AllowedModels   []string      `mapstructure:"ALLOWED_MODELS"`
	LLMTemperature  float32       `mapstructure:"LLM_TEMPERATURE"`
	UpstreamTimeout time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`

	MeteringEnabled bool          `mapstructure:"METERING_ENABLED"`
	AdminSecret     string        `mapstructure:"ADMIN_SECRET"`
	StoreBackend    string        `mapstructure:"STORE_BACKEND"`
	RefreshWindow   time.Duration `mapstructure:"REFRESH_WINDOW"`
	LedgerBatchSize int           `mapstructure:"LEDGER_BATCH_SIZE"`

	RedisURL           string        `mapstructure:"REDIS_URL"`
	CompletionCacheTTL time.Duration `mapstructure:"COMPLETION_CACHE_TTL"`

	RateLimitPerMinute int `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst     int `mapstructure:"RATE_LIMIT_BURST"`

	SentryDSN         string `mapstructure:"SENTRY_DSN"`
	SentryEnvironment string `mapstructure:"SENTRY_ENVIRONMENT"`

	CronEnabled            bool   `mapstructure:"CRON_ENABLED"`
	RollingRefreshSchedule string `mapstructure:"ROLLING_REFRESH_SCHEDULE"`
	MonthlyResetSchedule   string `mapstructure:"MONTHLY_RESET_SCHEDULE"`
}

var defaults = map[string]any{
	"PORT":                                 "3000",
	"GIN_MODE":                             "debug",
	"CLIENT_URL":                           "",
	"FIREBASE_PROJECT_ID":                  "",
	"GOOGLE_APPLICATION_CREDENTIALS":       "",
	"FIREBASE_SERVICE_ACCOUNT_JSON_BASE64": "",
	"FIREBASE_SERVICE_ACCOUNT":             "",
	"IDENTITY_PROVIDER":                    IdentityGoogle,
	"GOOGLE_WEB_CLIENT_ID":                 "",
	"AUTH_MODE":                            AuthOptional,
	"OPENAI_API_KEY":                       "",
	"OPENAI_BASE_URL":                      "",
	"FREE_MODEL":                           "gpt-3.5-turbo",
	"PREMIUM_MODEL":                        "gpt-4",
	"ALLOWED_MODELS":                       "gpt-3.5-turbo,gpt-4,gpt-4o,gpt-4o-mini",
	"LLM_TEMPERATURE":                      0.3,
	"UPSTREAM_TIMEOUT":                     "60s",
	"METERING_ENABLED":                     true,
	"ADMIN_SECRET":                         "",
	"STORE_BACKEND":                        StoreFirestore,
	"REFRESH_WINDOW":                       "168h",
	"LEDGER_BATCH_SIZE":                    200,
	"REDIS_URL":                            "",
	"COMPLETION_CACHE_TTL":                 "24h",
	"RATE_LIMIT_PER_MINUTE":                60,
	"RATE_LIMIT_BURST":                     10,
	"SENTRY_DSN":                           "",
	"SENTRY_ENVIRONMENT":                   "",
	"CRON_ENABLED":                         false,
	"ROLLING_REFRESH_SCHEDULE":             "0 * * * *",
	"MONTHLY_RESET_SCHEDULE":               "0 0 1 * *",
}

// LoadConfig loads configuration from environment variables using Viper.
func LoadConfig() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.IdentityProvider = strings.ToLower(strings.TrimSpace(c.IdentityProvider))
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	c.StoreBackend = strings.ToLower(strings.TrimSpace(c.StoreBackend))

	models := make([]string, 0, len(c.AllowedModels)+2)
	seen := make(map[string]struct{})
	for _, m := range append([]string{c.FreeModel, c.PremiumModel}, c.AllowedModels...) {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		models = append(models, m)
	}
	c.AllowedModels = models

	if c.LedgerBatchSize <= 0 || c.LedgerBatchSize > maxLedgerBatchSize {
		c.LedgerBatchSize = maxLedgerBatchSize
	}
}

// Validate checks required fields and enum values.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.FreeModel == "" || c.PremiumModel == "" {
		return errors.New("FREE_MODEL and PREMIUM_MODEL must not be empty")
	}
	switch c.IdentityProvider {
	case IdentityGoogle:
		if c.GoogleWebClientID == "" {
			return errors.New("GOOGLE_WEB_CLIENT_ID is required when IDENTITY_PROVIDER=google")
		}
	case IdentityFirebase:
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProvider)
	}
	switch c.AuthMode {
	case AuthOptional, AuthRequired:
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	switch c.StoreBackend {
	case StoreFirestore, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.UsesFirebase() && c.FirebaseProjectID == "" {
		return errors.New("FIREBASE_PROJECT_ID is required for the Firestore store or Firebase identity")
	}
	if c.RefreshWindow <= 0 {
		return errors.New("REFRESH_WINDOW must be positive")
	}
	if c.UpstreamTimeout <= 0 {
		return errors.New("UPSTREAM_TIMEOUT must be positive")
	}
	return nil
}

// UsesFirebase reports whether the Firebase Admin SDK has to be initialized.
func (c *Config) UsesFirebase() bool {
	return c.StoreBackend == StoreFirestore || c.IdentityProvider == IdentityFirebase
}

// CORSOrigins splits CLIENT_URL into individual origins.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.ClientURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
