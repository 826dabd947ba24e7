package cache

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/vibestream/vibestream-server/domain"
)

const defaultPrincipalTTL = 30 * time.Second

// PrincipalCache is a short-lived in-process cache of session-ID to principal
// resolutions, so a burst of gated requests from one client does not hit
// MongoDB for every call. The TTL is short enough that revocation takes
// effect promptly; logout invalidates eagerly.
type PrincipalCache struct {
	cache *ttlcache.Cache[string, *domain.User]
}

func NewPrincipalCache(ttl time.Duration) *PrincipalCache {
	if ttl <= 0 {
		ttl = defaultPrincipalTTL
	}
	c := ttlcache.New(
		ttlcache.WithTTL[string, *domain.User](ttl),
		ttlcache.WithDisableTouchOnHit[string, *domain.User](),
	)
	go c.Start()
	return &PrincipalCache{cache: c}
}

// Get returns a deep copy of the cached principal. Entries are copied on both
// Set and Get so concurrent requests for one session never share a *User.
func (p *PrincipalCache) Get(sessionID string) (*domain.User, bool) {
	item := p.cache.Get(sessionID)
	if item == nil {
		return nil, false
	}
	return item.Value().Clone(), true
}

func (p *PrincipalCache) Set(sessionID string, user *domain.User) {
	p.cache.Set(sessionID, user.Clone(), ttlcache.DefaultTTL)
}

// Invalidate drops a session entry, used on logout and after any write to the
// principal's token store so the next request observes persisted state.
func (p *PrincipalCache) Invalidate(sessionID string) {
	p.cache.Delete(sessionID)
}

// Stop shuts down the expiry goroutine.
func (p *PrincipalCache) Stop() {
	p.cache.Stop()
}
