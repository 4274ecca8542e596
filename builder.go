package tokengate

import (
	"errors"
	"time"

	"github.com/macropulse/tokengate/jwt"
	"github.com/macropulse/tokengate/password"
	"github.com/macropulse/tokengate/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only; no I/O
// happens until the engine methods are called.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	provider PrincipalProvider
	sink     AuditSink

	built bool
}

// New starts a builder with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the client backing the token store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPrincipalProvider supplies the principal lookup collaborator.
func (b *Builder) WithPrincipalProvider(p PrincipalProvider) *Builder {
	b.provider = p
	return b
}

// WithAuditSink supplies the sink receiving diagnostic events. Without one,
// audit events are dropped silently even when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithMetricsEnabled toggles the counter table.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine. A builder can be
// used once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.provider == nil {
		return nil, errors.New("principal provider required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		tokens:       token.NewStore(b.redis, cfg.Store.RedisPrefix),
		jwtManager:   jwtManager,
		passwordHash: hasher,
		provider:     b.provider,
		audit:        newAuditDispatcher(cfg.Audit, b.sink),
		now:          time.Now,
	}
	if cfg.Metrics.Enabled {
		engine.metrics = newMetrics()
	}

	b.built = true
	return engine, nil
}

// HandshakeTimeout exposes the configured handshake validation bound for
// the connection gate.
func (e *Engine) HandshakeTimeout() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.Handshake.ValidateTimeout
}
