package publisher

import (
	"sync"
	"time"
)

const DefaultBranchTTL = time.Hour

// BranchCache remembers the store's default branch for a limited time.
type BranchCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	branch  string
	expires time.Time
}

// NewBranchCache uses time.Now when now is nil.
func NewBranchCache(ttl time.Duration, now func() time.Time) *BranchCache {
	if ttl <= 0 {
		ttl = DefaultBranchTTL
	}
	if now == nil {
		now = time.Now
	}
	return &BranchCache{ttl: ttl, now: now}
}

func (c *BranchCache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.branch == "" || !c.now().Before(c.expires) {
		return "", false
	}
	return c.branch, true
}

func (c *BranchCache) Set(branch string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.branch = branch
	c.expires = c.now().Add(c.ttl)
}
