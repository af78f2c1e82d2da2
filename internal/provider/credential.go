package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultRefreshMargin  = 30 * time.Second
	defaultRefreshTimeout = 10 * time.Second
	refreshKey            = "provider-token"
)

// Credential is a provider access token with its absolute expiry.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer obtains a fresh credential from the provider.
type TokenIssuer interface {
	IssueToken(ctx context.Context) (Credential, error)
}

// TokenSource hands out bearer tokens for provider calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// CredentialCache keeps one provider credential and refreshes it on demand.
// Concurrent callers that find the credential missing or stale share a
// single issuance.
type CredentialCache struct {
	issuer  TokenIssuer
	margin  time.Duration
	timeout time.Duration
	now     func() time.Time
	metrics *Metrics

	mu    sync.RWMutex
	cred  *Credential
	group singleflight.Group
}

// CacheOption customises a CredentialCache.
type CacheOption func(*CredentialCache)

// WithRefreshMargin sets how long before expiry a credential is treated as stale.
func WithRefreshMargin(d time.Duration) CacheOption {
	return func(c *CredentialCache) {
		if d >= 0 {
			c.margin = d
		}
	}
}

// WithRefreshTimeout bounds a single issuance.
func WithRefreshTimeout(d time.Duration) CacheOption {
	return func(c *CredentialCache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *CredentialCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCacheMetrics records refresh outcomes.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *CredentialCache) {
		c.metrics = m
	}
}

// NewCredentialCache builds an empty cache around issuer.
func NewCredentialCache(issuer TokenIssuer, opts ...CacheOption) *CredentialCache {
	c := &CredentialCache{
		issuer:  issuer,
		margin:  defaultRefreshMargin,
		timeout: defaultRefreshTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns a token valid for immediate use, issuing a new credential
// when none is cached or the cached one is within the refresh margin of
// its expiry. The refresh is not tied to ctx: a caller giving up stops
// waiting while the shared refresh completes for the others.
func (c *CredentialCache) Token(ctx context.Context) (string, error) {
	if token, ok := c.cached(); ok {
		return token, nil
	}

	ch := c.group.DoChan(refreshKey, func() (any, error) {
		// A flight that finished between our check and DoChan already stored a fresh credential.
		if token, ok := c.cached(); ok {
			return token, nil
		}
		return c.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached credential so the next Token call refreshes.
func (c *CredentialCache) Invalidate() {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()
}

func (c *CredentialCache) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cred, err := c.issuer.IssueToken(ctx)
	if err != nil {
		c.Invalidate()
		c.metrics.refreshed(err)
		return "", err
	}

	c.mu.Lock()
	c.cred = &cred
	c.mu.Unlock()
	c.metrics.refreshed(nil)
	return cred.Token, nil
}

func (c *CredentialCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cred == nil || c.cred.Token == "" {
		return "", false
	}
	if !c.now().Add(c.margin).Before(c.cred.ExpiresAt) {
		return "", false
	}
	return c.cred.Token, true
}
