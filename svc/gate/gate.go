// Package gate decides whether a session may see subscription-only pages.
// The subscription status is read once per session and cached until the
// session expires or the application invalidates it.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/creatorkit/pkg/jwt"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

// Decision is the outcome of a gate check.
type Decision int

const (
	// Blocked keeps the placeholder on screen.
	Blocked Decision = iota
	Unlocked
	// Redirecting sends the session to the upsell page.
	Redirecting
)

func (d Decision) String() string {
	switch d {
	case Unlocked:
		return "unlocked"
	case Redirecting:
		return "redirecting"
	default:
		return "blocked"
	}
}

// Config is read from the environment.
type Config struct {
	UpsellPath string        `env:"GATE_UPSELL_PATH" envDefault:"/upsell"`
	AllowList  []string      `env:"GATE_ALLOW_LIST" envDefault:"/billing,/checkout,/checkout/success" envSeparator:","`
	DefaultTTL time.Duration `env:"GATE_DEFAULT_TTL" envDefault:"1h"`
}

// StatusSource resolves the caller's current organization.
type StatusSource interface {
	ForUser(ctx context.Context, userID string) (*organization.Summary, error)
}

// Gate decides whether a session may see subscription-only pages.
type Gate struct {
	source StatusSource
	cache  Cache
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock overrides time.Now for TTL calculation.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a gate. It panics when source or c is nil.
//
// Parameters:
//   - source: resolves the organization behind a user
//   - c: stores one status per session
//   - cfg: upsell path, allow-list and fallback TTL
func New(source StatusSource, c Cache, cfg Config, opts ...Option) *Gate {
	if source == nil || c == nil {
		panic("gate: status source and cache are required")
	}
	if cfg.UpsellPath == "" {
		cfg.UpsellPath = "/upsell"
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	g := &Gate{
		source: source,
		cache:  c,
		cfg:    cfg,
		logger: logger.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logger.Component("gate"))
	return g
}

func (g *Gate) UpsellPath() string { return g.cfg.UpsellPath }

// Allowed reports whether path bypasses the gate.
func (g *Gate) Allowed(path string) bool {
	if path == g.cfg.UpsellPath {
		return true
	}
	for _, prefix := range g.cfg.AllowList {
		prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// Check decides what session may see at path. A session without a user, or
// a failed status read, is Blocked. Failed reads are not cached.
func (g *Gate) Check(ctx context.Context, session jwt.Session, path string) Decision {
	if g.Allowed(path) {
		return Unlocked
	}
	if session.UserID == "" {
		return Blocked
	}

	status, err := g.status(ctx, session)
	if err != nil {
		g.logger.WarnContext(ctx, "subscription status unavailable",
			logger.UserID(session.UserID), logger.Error(err))
		return Blocked
	}
	if status.GrantsAccess() {
		return Unlocked
	}
	return Redirecting
}

// Invalidate forgets the cached status so the next check reads it again.
func (g *Gate) Invalidate(ctx context.Context, sessionID string) error {
	g.group.Forget(sessionID)
	return g.cache.Delete(ctx, sessionID)
}

func (g *Gate) status(ctx context.Context, session jwt.Session) (organization.SubscriptionStatus, error) {
	key := sessionKey(session)
	if status, ok, err := g.cache.Get(ctx, key); err != nil {
		g.logger.WarnContext(ctx, "gate cache read failed", logger.Error(err))
	} else if ok {
		return status, nil
	}

	// Concurrent first requests of one session share a single read.
	v, err, _ := g.group.Do(key, func() (any, error) {
		if status, ok, _ := g.cache.Get(ctx, key); ok {
			return status, nil
		}
		status, err := g.read(ctx, session.UserID)
		if err != nil {
			return organization.StatusNone, err
		}
		if err := g.cache.Set(ctx, key, status, g.ttl(session)); err != nil {
			g.logger.WarnContext(ctx, "gate cache write failed", logger.Error(err))
		}
		return status, nil
	})
	if err != nil {
		return organization.StatusNone, err
	}
	return v.(organization.SubscriptionStatus), nil
}

func (g *Gate) read(ctx context.Context, userID string) (organization.SubscriptionStatus, error) {
	summary, err := g.source.ForUser(ctx, userID)
	if errors.Is(err, organization.ErrNotFound) {
		return organization.StatusNone, nil
	}
	if err != nil {
		return organization.StatusNone, err
	}
	return summary.SubscriptionStatus, nil
}

func (g *Gate) ttl(session jwt.Session) time.Duration {
	if session.ExpiresAt.IsZero() {
		return g.cfg.DefaultTTL
	}
	if ttl := session.ExpiresAt.Sub(g.now()); ttl > 0 {
		return ttl
	}
	return g.cfg.DefaultTTL
}

func sessionKey(s jwt.Session) string {
	if s.ID != "" {
		return s.ID
	}
	return s.UserID
}
