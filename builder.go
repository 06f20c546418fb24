package vapor

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/vaporhq/vapor/internal/rate"
	"github.com/vaporhq/vapor/store"
)

// Builder assembles an [Engine]. A Builder is single-use: Build returns an
// error when called twice.
type Builder struct {
	config    Config
	redis     *redis.Client
	store     store.Store
	factory   ClientFactory
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration tree.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithClientFactory sets the per-attempt session client constructor.
// Required.
func (b *Builder) WithClientFactory(f ClientFactory) *Builder {
	b.factory = f
	return b
}

// WithRedis sets the Redis client backing the login throttle. Required
// only when Security.EnableLoginThrottle is set.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the audit event receiver.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the metrics subsystem.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login-latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and dependencies and returns the
// engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("account store required")
	}
	if b.factory == nil {
		return nil, errors.New("client factory required")
	}
	if cfg.Security.EnableLoginThrottle && b.redis == nil {
		return nil, errors.New("login throttle requires redis client")
	}

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		newClient: b.factory,
	}

	if cfg.Security.EnableLoginThrottle {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			MaxLoginAttempts:      cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration: cfg.Security.LoginCooldownDuration,
		})
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
