package scrape

import (
	"math/rand/v2"
	"sync"
)

// DefaultUserAgents is the rotation pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// UserAgents hands out a random user agent per request, never the same one
// twice in a row when the pool has more than one entry.
type UserAgents struct {
	mu   sync.Mutex
	pool []string
	last int
}

// NewUserAgents builds a pool. Empty input uses DefaultUserAgents.
func NewUserAgents(pool []string) *UserAgents {
	if len(pool) == 0 {
		pool = DefaultUserAgents
	}
	return &UserAgents{pool: append([]string(nil), pool...), last: -1}
}

// Next returns the next user agent.
func (u *UserAgents) Next() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	i := rand.IntN(len(u.pool))
	if len(u.pool) > 1 && i == u.last {
		i = (i + 1) % len(u.pool)
	}
	u.last = i
	return u.pool[i]
}
