package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/realchillguyclub/backend-sub000/internal/audit"
	"github.com/realchillguyclub/backend-sub000/internal/flows"
	"github.com/realchillguyclub/backend-sub000/internal/rate"
	"github.com/realchillguyclub/backend-sub000/internal/stores"
	"github.com/realchillguyclub/backend-sub000/jwt"
	"github.com/realchillguyclub/backend-sub000/oauth"
	"github.com/realchillguyclub/backend-sub000/refresh"
	"github.com/realchillguyclub/backend-sub000/retention"
	"github.com/realchillguyclub/backend-sub000/session"
	"github.com/realchillguyclub/backend-sub000/signup"
)

// Builder assembles an [Engine]. A Builder can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  session.Store

	providers    []oauth.IdentityProvider
	userProvider UserProvider
	auditSink    AuditSink
	logger       *slog.Logger
	now          func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used for OAuth state, signup locks and throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets the durable refresh-token store. Required.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithIdentityProviders registers the providers social login may use.
func (b *Builder) WithIdentityProviders(providers ...oauth.IdentityProvider) *Builder {
	b.providers = append(b.providers, providers...)
	return b
}

// WithUserProvider sets the member directory used by social login.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink sets where audit events go. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default is slog.Default().
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.logger = log
	return b
}

// WithClock replaces time.Now for every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("session store required")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if len(b.providers) > 0 && b.redis == nil {
		return nil, errors.New("redis client required for identity providers")
	}
	if len(b.providers) > 0 && b.userProvider == nil {
		return nil, errors.New("user provider required for identity providers")
	}

	cfg := b.config
	now := b.now
	if now == nil {
		now = time.Now
	}
	log := b.logger
	if log == nil {
		log = slog.Default()
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.Secret,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:       cfg,
		log:          log.With(slog.String("component", "auth")),
		now:          now,
		store:        b.store,
		jwtManager:   jwtManager,
		userProvider: b.userProvider,
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:            cfg.Audit.Enabled,
			BufferSize:         cfg.Audit.BufferSize,
			DropIfFull:         cfg.Audit.DropIfFull,
			SecurityBufferSize: cfg.Audit.SecurityBufferSize,
		}, b.auditSink),
		metrics: NewMetrics(cfg.Metrics),
	}

	e.rotator = refresh.NewRotator(b.store, jwtManager,
		refresh.WithClock(now),
		refresh.WithGraceWindow(cfg.Rotation.GraceWindow),
	)
	e.revoker = refresh.NewRevoker(b.store, now)
	e.retention = retention.New(b.store, retention.Config{
		Window:              cfg.Retention.Window,
		MarkExpiredInterval: cfg.Retention.MarkExpiredInterval,
		HardDeleteInterval:  cfg.Retention.HardDeleteInterval,
	}, now, e.observeRetention)

	if b.redis != nil {
		e.rateLimiter = rate.New(b.redis, rate.Config{
			Prefix:             cfg.RateLimit.RedisPrefix,
			PollMaxAttempts:    cfg.RateLimit.PollMaxAttempts,
			PollWindow:         cfg.RateLimit.PollWindow,
			ReissueMaxAttempts: cfg.RateLimit.ReissueMaxAttempts,
			ReissueWindow:      cfg.RateLimit.ReissueWindow,
		})
	}

	if cfg.Signup.Distributed && b.redis != nil {
		e.serializer = signup.NewRedisSerializer(b.redis, signup.RedisConfig{
			Prefix:        cfg.Signup.RedisPrefix,
			WaitTimeout:   cfg.Signup.WaitTimeout,
			LeaseTTL:      cfg.Signup.LeaseTTL,
			RetryInterval: cfg.Signup.RetryInterval,
		})
	} else {
		e.serializer = signup.NewLocalSerializer(cfg.Signup.WaitTimeout)
	}

	if len(b.providers) > 0 {
		registry, err := oauth.NewRegistry(b.providers...)
		if err != nil {
			return nil, err
		}
		e.coordinator = oauth.NewCoordinator(registry, stores.NewEphemeralStore(b.redis, cfg.OAuth.RedisPrefix), oauth.CoordinatorConfig{
			StateTTL:        cfg.OAuth.StateTTL,
			PendingLoginTTL: cfg.OAuth.PendingLoginTTL,
		})
	}

	e.flows = b.buildFlowDeps(e)
	b.built = true
	return e, nil
}

func (b *Builder) buildFlowDeps(e *Engine) flows.Deps {
	deps := flows.Deps{
		Reissue: flows.ReissueDeps{
			Parser:  e.jwtManager,
			Rotator: e.rotator,
		},
		Validate: flows.ValidateDeps{
			ParseAccess: e.jwtManager.ParseAccess,
			Now:         e.now,
		},
	}
	if e.rateLimiter != nil {
		deps.Reissue.RateLimiter = e.rateLimiter
	}
	if e.coordinator != nil {
		deps.SocialLogin = flows.SocialLoginDeps{
			Pending:      e.coordinator,
			Providers:    e.coordinator.Providers(),
			Serializer:   e.serializer,
			Sessions:     e.rotator,
			FindMember:   e.findMember,
			CreateMember: e.createMember,
			IsDuplicate:  isAccountExists,
			Warn: func(msg string, args ...any) {
				e.log.Warn(msg, args...)
			},
		}
		if e.rateLimiter != nil {
			deps.SocialLogin.RateLimiter = e.rateLimiter
		}
	}
	return deps
}
