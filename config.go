package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/realchillguyclub/backend-sub000/jwt"
)

// Config is the engine configuration. Start from DefaultConfig and override
// fields; Build validates the result.
type Config struct {
	JWT       JWTConfig
	Rotation  RotationConfig
	OAuth     OAuthConfig
	Signup    SignupConfig
	Retention RetentionConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and lifetimes.
type JWTConfig struct {
	// Secret is the HS256 secret, or the Ed25519 private key for "ed25519".
	Secret        []byte
	PublicKey     []byte
	SigningMethod string // "hs256" (default) or "ed25519"
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Leeway        time.Duration
}

/*
====================================
ROTATION CONFIG
====================================
*/

// RotationConfig controls refresh-token rotation.
type RotationConfig struct {
	// GraceWindow is how long a just-rotated token may be re-presented and
	// answered with DUPLICATE_REQUEST instead of a family revocation.
	GraceWindow time.Duration
}

/*
====================================
OAUTH CONFIG
====================================
*/

// OAuthConfig controls the authorization-code flow.
type OAuthConfig struct {
	StateTTL        time.Duration
	PendingLoginTTL time.Duration
	RedisPrefix     string
}

/*
====================================
SIGNUP CONFIG
====================================
*/

// SignupConfig controls per-identity signup serialization. Distributed
// selects the Redis lock; otherwise an in-process lock is used.
type SignupConfig struct {
	Distributed   bool
	WaitTimeout   time.Duration
	LeaseTTL      time.Duration
	RetryInterval time.Duration
	RedisPrefix   string
}

/*
====================================
RETENTION CONFIG
====================================
*/

// RetentionConfig controls the background aging of refresh records.
type RetentionConfig struct {
	Window              time.Duration
	MarkExpiredInterval time.Duration
	HardDeleteInterval  time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds poll and reissue traffic. A zero max disables the
// corresponding throttle.
type RateLimitConfig struct {
	PollMaxAttempts    int
	PollWindow         time.Duration
	ReissueMaxAttempts int
	ReissueWindow      time.Duration
	RedisPrefix        string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull sheds routine events when the buffer is full. Security
	// events (reuse, mismatch) are never shed.
	DropIfFull bool

	// SecurityBufferSize sizes the security lane; zero means BufferSize.
	SecurityBufferSize int
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. JWT.Secret is left empty
// and must be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "authd",
			AccessTTL:     20 * time.Minute,
			RefreshTTL:    14 * 24 * time.Hour,
			Leeway:        30 * time.Second,
		},
		Rotation: RotationConfig{
			GraceWindow: 3 * time.Second,
		},
		OAuth: OAuthConfig{
			StateTTL:        10 * time.Minute,
			PendingLoginTTL: 3 * time.Minute,
			RedisPrefix:     "oauth",
		},
		Signup: SignupConfig{
			Distributed:   true,
			WaitTimeout:   3 * time.Second,
			LeaseTTL:      10 * time.Second,
			RetryInterval: 50 * time.Millisecond,
			RedisPrefix:   "signup",
		},
		Retention: RetentionConfig{
			Window:              30 * 24 * time.Hour,
			MarkExpiredInterval: time.Hour,
			HardDeleteInterval:  24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PollMaxAttempts:    120,
			PollWindow:         5 * time.Minute,
			ReissueMaxAttempts: 60,
			ReissueWindow:      time.Minute,
			RedisPrefix:        "rl",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting. It does not mutate c.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must be set")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.JWT.Secret) < 32 {
			return errors.New("hs256 requires a Secret of at least 32 bytes")
		}
	case jwt.MethodEd25519:
		if len(c.JWT.Secret) == 0 {
			return errors.New("ed25519 requires Secret (private key)")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Rotation
	if c.Rotation.GraceWindow < 0 {
		return errors.New("Rotation GraceWindow must be >= 0")
	}
	if c.Rotation.GraceWindow >= c.JWT.AccessTTL {
		return errors.New("Rotation GraceWindow must be shorter than JWT AccessTTL")
	}

	// OAuth
	if c.OAuth.StateTTL <= 0 {
		return errors.New("OAuth StateTTL must be > 0")
	}
	if c.OAuth.PendingLoginTTL <= 0 {
		return errors.New("OAuth PendingLoginTTL must be > 0")
	}
	if strings.TrimSpace(c.OAuth.RedisPrefix) == "" {
		return errors.New("OAuth RedisPrefix must be set")
	}

	// Signup
	if c.Signup.WaitTimeout <= 0 {
		return errors.New("Signup WaitTimeout must be > 0")
	}
	if c.Signup.Distributed {
		if c.Signup.LeaseTTL <= c.Signup.WaitTimeout {
			return errors.New("Signup LeaseTTL must be > WaitTimeout")
		}
		if c.Signup.RetryInterval <= 0 || c.Signup.RetryInterval >= c.Signup.WaitTimeout {
			return errors.New("Signup RetryInterval must be > 0 and < WaitTimeout")
		}
		if strings.TrimSpace(c.Signup.RedisPrefix) == "" {
			return errors.New("Signup RedisPrefix must be set")
		}
	}

	// Retention
	if c.Retention.Window <= 0 {
		return errors.New("Retention Window must be > 0")
	}
	if c.Retention.MarkExpiredInterval <= 0 || c.Retention.HardDeleteInterval <= 0 {
		return errors.New("Retention intervals must be > 0")
	}

	// Rate limit
	if c.RateLimit.PollMaxAttempts < 0 || c.RateLimit.ReissueMaxAttempts < 0 {
		return errors.New("RateLimit max attempts must be >= 0")
	}
	if c.RateLimit.PollMaxAttempts > 0 && c.RateLimit.PollWindow <= 0 {
		return errors.New("RateLimit PollWindow must be > 0 when polling is throttled")
	}
	if c.RateLimit.ReissueMaxAttempts > 0 && c.RateLimit.ReissueWindow <= 0 {
		return errors.New("RateLimit ReissueWindow must be > 0 when reissue is throttled")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
