// Package credential caches short-lived bearer tokens obtained through a
// client-credentials exchange.
package credential

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/19dig/internal/infra/metrics"
)

const (
	// DefaultMargin is subtracted from the provider's expiry.
	DefaultMargin = 60 * time.Second
	// defaultLifetime is assumed when the provider reports no expiry.
	defaultLifetime = time.Hour
	exchangeTimeout = 10 * time.Second
)

// Exchanger performs the token exchange against the provider.
// clientcredentials.Config satisfies it.
type Exchanger interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// Cache holds one credential and refreshes it on demand.
// Concurrent callers during a miss share one in-flight exchange.
type Cache struct {
	exchanger Exchanger
	margin    time.Duration
	now       func() time.Time

	mu        sync.RWMutex
	token     *oauth2.Token
	expiresAt time.Time

	group singleflight.Group
}

// Config represents client-credentials settings.
type Config struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Margin       time.Duration
}

// New creates a cache around an exchanger. A non-positive margin selects DefaultMargin.
func New(exchanger Exchanger, margin time.Duration) *Cache {
	if margin <= 0 {
		margin = DefaultMargin
	}
	return &Cache{
		exchanger: exchanger,
		margin:    margin,
		now:       time.Now,
	}
}

// NewClientCredentials creates a cache backed by the OAuth2 client-credentials flow.
func NewClientCredentials(cfg Config) (*Cache, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("client id and secret are required")
	}
	if cfg.TokenURL == "" {
		return nil, errors.New("token url is required")
	}
	return New(&clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}, cfg.Margin), nil
}

// Acquire returns the cached token or performs an exchange.
func (c *Cache) Acquire(ctx context.Context) (*oauth2.Token, error) {
	if tok := c.cached(); tok != nil {
		return tok, nil
	}

	ch := c.group.DoChan("token", func() (any, error) {
		// A caller that arrived just after a refresh finished must not exchange again.
		if tok := c.cached(); tok != nil {
			return tok, nil
		}
		return c.exchange(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for credential exchange")
	}
}

// Token implements oauth2.TokenSource.
func (c *Cache) Token() (*oauth2.Token, error) {
	return c.Acquire(context.Background())
}

// Invalidate drops the cached token.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.token = nil
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) cached() *oauth2.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != nil && c.now().Before(c.expiresAt) {
		return c.token
	}
	return nil
}

func (c *Cache) exchange(ctx context.Context) (*oauth2.Token, error) {
	// The exchange outlives any single caller's cancellation since others may share it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
	defer cancel()

	tok, err := c.exchanger.Token(ctx)
	if err != nil {
		metrics.CredentialExchanges.WithLabelValues("error").Inc()
		return nil, errors.Wrap(err, "client credentials exchange failed")
	}
	if tok == nil || tok.AccessToken == "" {
		metrics.CredentialExchanges.WithLabelValues("error").Inc()
		return nil, errors.New("client credentials exchange returned no access token")
	}
	metrics.CredentialExchanges.WithLabelValues("ok").Inc()

	now := c.now()
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultLifetime)
	}
	expiresAt := expiry.Add(-c.margin)
	if !expiresAt.After(now) {
		// Lifetime shorter than the margin: usable for this call only.
		expiresAt = now
	}

	cached := *tok
	cached.Expiry = expiresAt

	c.mu.Lock()
	c.token = &cached
	c.expiresAt = expiresAt
	c.mu.Unlock()

	zlog.Debug().Msgf("credential refreshed, valid until %s", expiresAt.Format(time.RFC3339))
	return &cached, nil
}
