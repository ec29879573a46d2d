package credentials

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CachedProvider memoizes usable credentials from another provider for a
// short TTL. Unusable results and errors are never cached. Concurrent
// misses share a single upstream fetch.
type CachedProvider struct {
	upstream Provider
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	creds     *Credentials
	expiresAt time.Time

	group singleflight.Group
}

// NewCachedProvider wraps upstream. A ttl <= 0 disables caching and every
// call goes to upstream.
func NewCachedProvider(upstream Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		upstream: upstream,
		ttl:      ttl,
		now:      time.Now,
	}
}

func (p *CachedProvider) GetCredentials(ctx context.Context) (*Credentials, error) {
	if p.ttl <= 0 {
		return p.upstream.GetCredentials(ctx)
	}

	if creds, ok := p.cached(); ok {
		return creds, nil
	}

	v, err, _ := p.group.Do("credentials", func() (interface{}, error) {
		creds, err := p.upstream.GetCredentials(ctx)
		if err != nil {
			return nil, err
		}
		if creds != nil && creds.Usable() {
			p.mu.Lock()
			p.creds = creds
			p.expiresAt = p.now().Add(p.ttl)
			p.mu.Unlock()
		}
		return creds, nil
	})
	if err != nil {
		return nil, err
	}
	creds, _ := v.(*Credentials)
	if creds == nil {
		return nil, nil
	}
	c := *creds
	return &c, nil
}

func (p *CachedProvider) cached() (*Credentials, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.creds == nil || !p.now().Before(p.expiresAt) {
		return nil, false
	}
	c := *p.creds
	return &c, true
}

// Invalidate drops the cached credentials so the next call re-fetches.
func (p *CachedProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.creds = nil
	p.expiresAt = time.Time{}
}

// Invalidator is implemented by providers holding state that must be
// dropped after the store rejects their credentials.
type Invalidator interface {
	Invalidate()
}
