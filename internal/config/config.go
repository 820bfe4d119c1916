package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	AuthMode       string        `mapstructure:"AUTH_MODE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant  string        `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	AuthIssuer     string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL    string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience   string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey string        `mapstructure:"AUTH_SIGNING_KEY"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	PseudonymStore string `mapstructure:"PSEUDONYM_STORE"`

	SMTPHost      string `mapstructure:"SMTP_HOST"`
	SMTPPort      int    `mapstructure:"SMTP_PORT"`
	SMTPUsername  string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword  string `mapstructure:"SMTP_PASSWORD"`
	SMTPFromName  string `mapstructure:"SMTP_FROM_NAME"`
	SMTPFromEmail string `mapstructure:"SMTP_FROM_EMAIL"`

	FirebaseCredentialsPath string `mapstructure:"FIREBASE_CREDENTIALS_PATH"`

	KafkaBrokers   []string `mapstructure:"KAFKA_BROKERS"`
	KafkaLinkTopic string   `mapstructure:"KAFKA_LINK_TOPIC"`

	LinkSweepInterval time.Duration `mapstructure:"LINK_SWEEP_INTERVAL"`
	SweepTenants      []string      `mapstructure:"SWEEP_TENANTS"`

	AppBaseURL string `mapstructure:"APP_BASE_URL"`

	AIBaseURL string `mapstructure:"AI_BASE_URL"`
	AIAPIKey  string `mapstructure:"AI_API_KEY"`
	AIModel   string `mapstructure:"AI_MODEL"`
}

var envKeys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"DEFAULT_TENANT", "CORS_ORIGINS", "AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"REQUEST_TIMEOUT", "REDIS_URL", "PSEUDONYM_STORE",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "SMTP_FROM_NAME", "SMTP_FROM_EMAIL",
	"FIREBASE_CREDENTIALS_PATH", "KAFKA_BROKERS", "KAFKA_LINK_TOPIC",
	"LINK_SWEEP_INTERVAL", "SWEEP_TENANTS", "APP_BASE_URL",
	"AI_BASE_URL", "AI_API_KEY", "AI_MODEL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("PSEUDONYM_STORE", "memory")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM_NAME", "CareLink")
	v.SetDefault("KAFKA_LINK_TOPIC", "carelink.link-events")
	v.SetDefault("LINK_SWEEP_INTERVAL", "1h")
	v.SetDefault("APP_BASE_URL", "http://localhost:8000")
	v.SetDefault("AI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.SweepTenants = splitList(v.GetString("SWEEP_TENANTS"))
	if len(cfg.SweepTenants) == 0 {
		cfg.SweepTenants = []string{cfg.DefaultTenant}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

// splitList normalizes a comma separated env value.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ResolvedAuthMode returns the effective auth mode. If AUTH_MODE is explicitly
// set, it is returned. Otherwise ENV=development maps to "development" and
// everything else to "external".
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "external"
}

// SMTPEnabled reports whether outbound email is configured.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUsername != "" && c.SMTPPassword != ""
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	mode := c.ResolvedAuthMode()
	if mode != "development" && mode != "external" {
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}
	if mode == "external" && c.AuthIssuer == "" {
		return fmt.Errorf(
			"AUTH_ISSUER must be set when AUTH_MODE is \"external\" (current ENV=%q). "+
				"Refusing to start without authentication configuration", c.Env)
	}

	switch c.PseudonymStore {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when PSEUDONYM_STORE is \"redis\"")
		}
	default:
		return fmt.Errorf("PSEUDONYM_STORE must be \"memory\" or \"redis\", got %q", c.PseudonymStore)
	}

	if c.LinkSweepInterval <= 0 {
		return fmt.Errorf("LINK_SWEEP_INTERVAL must be positive, got %s", c.LinkSweepInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}

	return nil
}
