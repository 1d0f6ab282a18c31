// Package config loads frame service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

const (
	defaultPort          = "8080"
	defaultReceiptPoll   = 2 * time.Second
	defaultWebhookRate   = 10
	defaultWebhookBurst  = 20
	defaultSweepSchedule = "@every 5m"
	defaultCORSOrigins   = "*"
	platformURLScheme    = "https://"
	minAdminSecretLen    = 32
)

// Config is the process configuration of the frame service.
type Config struct {
	// Public base URL of the deployment. NEXT_PUBLIC_URL is accepted as an
	// alias. VercelProductionURL is the platform-supplied fallback (host only,
	// no scheme).
	PublicURL           string `env:"FRAME_PUBLIC_URL"`
	NextPublicURL       string `env:"NEXT_PUBLIC_URL"`
	VercelProductionURL string `env:"VERCEL_PROJECT_PRODUCTION_URL"`

	Port         string `env:"PORT,default=8080"`
	ManifestFile string `env:"FRAME_MANIFEST_FILE"`

	Store       string `env:"FRAME_STORE,default=memory"`
	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	RPCURL      string        `env:"FRAME_RPC_URL"`
	ReceiptPoll time.Duration `env:"FRAME_RECEIPT_POLL,default=2s"`

	WebhookRateLimit  int  `env:"WEBHOOK_RATE_LIMIT,default=10"`
	WebhookRateBurst  int  `env:"WEBHOOK_RATE_BURST,default=20"`
	WebhookSkipVerify bool `env:"WEBHOOK_SKIP_VERIFY"`

	// Hub API used to check that a webhook's app key is an active signer.
	KeyRegistryURL    string `env:"WEBHOOK_KEY_REGISTRY_URL"`
	KeyRegistryAPIKey string `env:"WEBHOOK_KEY_REGISTRY_API_KEY"`

	// HS256 secret for operator bearer tokens. Operator routes reject every
	// request while it is empty.
	AdminJWTSecret string `env:"FRAME_ADMIN_JWT_SECRET"`

	CORSAllowedOrigins   string `env:"CORS_ALLOWED_ORIGINS,default=*"`
	SessionSweepSchedule string `env:"SESSION_SWEEP_SCHEDULE,default=@every 5m"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// Load reads envFile (if present) into the process environment and decodes
// the configuration. A missing env file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.Store == "" {
		c.Store = StoreMemory
	}
	if c.ReceiptPoll <= 0 {
		c.ReceiptPoll = defaultReceiptPoll
	}
	if c.WebhookRateLimit <= 0 {
		c.WebhookRateLimit = defaultWebhookRate
	}
	if c.WebhookRateBurst <= 0 {
		c.WebhookRateBurst = defaultWebhookBurst
	}
	if c.CORSAllowedOrigins == "" {
		c.CORSAllowedOrigins = defaultCORSOrigins
	}
	if c.SessionSweepSchedule == "" {
		c.SessionSweepSchedule = defaultSweepSchedule
	}
}

// Validate checks the store backend and webhook verification settings.
// The public URL is not validated.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if !c.WebhookSkipVerify && strings.TrimSpace(c.KeyRegistryURL) == "" {
		return fmt.Errorf("WEBHOOK_KEY_REGISTRY_URL is required unless WEBHOOK_SKIP_VERIFY is set")
	}
	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < minAdminSecretLen {
		return fmt.Errorf("FRAME_ADMIN_JWT_SECRET must be at least %d bytes", minAdminSecretLen)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store {
	case StoreMemory:
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("FRAME_STORE=redis requires REDIS_URL")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("FRAME_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown FRAME_STORE %q", c.Store)
	}
	return nil
}

// BaseURL resolves the public base URL: FRAME_PUBLIC_URL, else
// NEXT_PUBLIC_URL, else "https://" + VERCEL_PROJECT_PRODUCTION_URL. With none
// set the result is the bare scheme, which callers embed as-is.
func (c *Config) BaseURL() string {
	public := c.PublicURL
	if strings.TrimSpace(public) == "" {
		public = c.NextPublicURL
	}
	return ResolveBaseURL(public, c.VercelProductionURL)
}

// ResolveBaseURL applies the base URL resolution rule to raw values.
func ResolveBaseURL(publicURL, platformHost string) string {
	base := strings.TrimSpace(publicURL)
	if base == "" {
		base = platformURLScheme + strings.TrimSpace(platformHost)
	}
	return trimTrailingSlash(base)
}

// trimTrailingSlash drops trailing slashes unless that would eat into the
// scheme separator.
func trimTrailingSlash(base string) string {
	trimmed := strings.TrimRight(base, "/")
	if strings.Contains(trimmed, "://") {
		return trimmed
	}
	return base
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	return splitAndTrimCSV(c.CORSAllowedOrigins)
}

func splitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
