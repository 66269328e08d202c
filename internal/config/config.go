// Package config loads the authd process configuration from YAML and the
// environment and converts it into engine and provider settings.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/oauth"
)

// Config is the root process configuration. Sources, highest priority first:
//  1. the path passed with --config;
//  2. the path in CONFIG_PATH;
//  3. ./local.yaml;
//  4. environment variables only.
//
// Environment variables are overlaid on any file that was read.
type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	DB        DBConfig        `yaml:"db"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Retention RetentionConfig `yaml:"retention"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// HTTPConfig holds the listener settings.
type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

// Addr returns host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

type DBConfig struct {
	DatabaseURL string `yaml:"db_url" env:"DATABASE_URL" env-required:"true"`
	Migrate     bool   `yaml:"migrate" env:"DB_MIGRATE" env-default:"true"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// AuthConfig covers token issuance and rotation.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret" env:"JWT_SECRET" env-required:"true"`
	Issuer            string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"authd"`
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"20m"`
	RefreshTokenTTL   time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"336h"`
	GraceWindow       time.Duration `yaml:"grace_window" env:"REISSUE_GRACE_WINDOW" env-default:"3s"`
	ReissuePerIPMax   int           `yaml:"reissue_per_ip_max" env:"REISSUE_PER_IP_MAX" env-default:"60"`
	PollPerStateMax   int           `yaml:"poll_per_state_max" env:"POLL_PER_STATE_MAX" env-default:"120"`
	AuditEnabled      bool          `yaml:"audit_enabled" env:"AUDIT_ENABLED" env-default:"true"`
	DistributedSignup bool          `yaml:"distributed_signup" env:"DISTRIBUTED_SIGNUP" env-default:"true"`
	SignupWaitTimeout time.Duration `yaml:"signup_wait_timeout" env:"SIGNUP_WAIT_TIMEOUT" env-default:"3s"`
	PendingLoginTTL   time.Duration `yaml:"pending_login_ttl" env:"PENDING_LOGIN_TTL" env-default:"3m"`
	AuthorizeStateTTL time.Duration `yaml:"authorize_state_ttl" env:"AUTHORIZE_STATE_TTL" env-default:"10m"`
}

type RetentionConfig struct {
	Window              time.Duration `yaml:"window" env:"RETENTION_WINDOW" env-default:"720h"`
	MarkExpiredInterval time.Duration `yaml:"mark_expired_interval" env:"RETENTION_MARK_EXPIRED_INTERVAL" env-default:"1h"`
	HardDeleteInterval  time.Duration `yaml:"hard_delete_interval" env:"RETENTION_HARD_DELETE_INTERVAL" env-default:"24h"`
}

// OAuthConfig lists the identity providers. Providers are read from YAML only.
type OAuthConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	ID           string   `yaml:"id"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	AuthURL      string   `yaml:"auth_url"`
	TokenURL     string   `yaml:"token_url"`
	RedirectURL  string   `yaml:"redirect_url"`
	UserInfoURL  string   `yaml:"userinfo_url"`
	Scopes       []string `yaml:"scopes"`
	IDField      string   `yaml:"id_field"`
	EmailField   string   `yaml:"email_field"`
	NameField    string   `yaml:"name_field"`
}

type MetricsConfig struct {
	Enabled          bool `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	LatencyHistogram bool `yaml:"latency_histogram" env:"METRICS_LATENCY_HISTOGRAM" env-default:"false"`
}

// MustLoad wraps Load and panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load resolves the configuration in priority order and rejects blank
// required settings.
func Load(path string) (*Config, error) {
	cfg, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.checkRequired(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkRequired catches required settings that are present but blank;
// cleanenv's env-required only checks that the variable exists.
func (c *Config) checkRequired() error {
	if strings.TrimSpace(c.DB.DatabaseURL) == "" {
		return errors.New("config: db_url (DATABASE_URL) is required")
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("config: jwt_secret (JWT_SECRET) is required")
	}
	return nil
}

func load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		// ReadConfig overlays the environment after the file.
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		return &cfg, nil
	}

	if path != "" {
		return readFile(path)
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return readFile(envPath)
	}
	if _, err := os.Stat("local.yaml"); err == nil {
		return readFile("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return &cfg, nil
}

// EngineConfig converts the process configuration into auth.Config and
// validates the result.
func (c *Config) EngineConfig() (auth.Config, error) {
	out := auth.DefaultConfig()

	out.JWT.Secret = []byte(c.Auth.JWTSecret)
	out.JWT.Issuer = c.Auth.Issuer
	out.JWT.AccessTTL = c.Auth.AccessTokenTTL
	out.JWT.RefreshTTL = c.Auth.RefreshTokenTTL
	out.Rotation.GraceWindow = c.Auth.GraceWindow

	out.OAuth.StateTTL = c.Auth.AuthorizeStateTTL
	out.OAuth.PendingLoginTTL = c.Auth.PendingLoginTTL
	out.Signup.Distributed = c.Auth.DistributedSignup
	out.Signup.WaitTimeout = c.Auth.SignupWaitTimeout
	if out.Signup.LeaseTTL <= out.Signup.WaitTimeout {
		out.Signup.LeaseTTL = 3 * out.Signup.WaitTimeout
	}

	out.RateLimit.ReissueMaxAttempts = c.Auth.ReissuePerIPMax
	out.RateLimit.PollMaxAttempts = c.Auth.PollPerStateMax
	out.Audit.Enabled = c.Auth.AuditEnabled

	out.Retention.Window = c.Retention.Window
	out.Retention.MarkExpiredInterval = c.Retention.MarkExpiredInterval
	out.Retention.HardDeleteInterval = c.Retention.HardDeleteInterval

	out.Metrics.Enabled = c.Metrics.Enabled
	out.Metrics.EnableLatencyHistograms = c.Metrics.LatencyHistogram

	if err := out.Validate(); err != nil {
		return auth.Config{}, err
	}
	return out, nil
}

// ProviderConfigs converts the provider list. Provider ids must be unique.
func (c *Config) ProviderConfigs() ([]oauth.OAuth2ProviderConfig, error) {
	seen := make(map[string]bool, len(c.OAuth.Providers))
	out := make([]oauth.OAuth2ProviderConfig, 0, len(c.OAuth.Providers))
	for _, p := range c.OAuth.Providers {
		if p.ID == "" {
			return nil, errors.New("oauth provider without id")
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate oauth provider %q", p.ID)
		}
		seen[p.ID] = true
		out = append(out, oauth.OAuth2ProviderConfig{
			ID:           p.ID,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			AuthURL:      p.AuthURL,
			TokenURL:     p.TokenURL,
			RedirectURL:  p.RedirectURL,
			UserInfoURL:  p.UserInfoURL,
			Scopes:       p.Scopes,
			IDField:      p.IDField,
			EmailField:   p.EmailField,
			NameField:    p.NameField,
		})
	}
	return out, nil
}
