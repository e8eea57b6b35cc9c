package rest

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const minLimiterIdle = time.Minute

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter keeps one token bucket per client key, so a single noisy
// client cannot drain the allowance of everyone else. Buckets idle long
// enough to have refilled completely are dropped.
type ClientLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	buckets   map[string]*clientBucket
	now       func() time.Time
}

// NewClientLimiter returns a limiter granting each client limit events per
// second with bursts of up to burst.
func NewClientLimiter(limit rate.Limit, burst int) *ClientLimiter {
	idle := minLimiterIdle
	if limit > 0 && limit != rate.Inf {
		if refill := time.Duration(float64(burst) / float64(limit) * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &ClientLimiter{
		limit:   limit,
		burst:   burst,
		idle:    idle,
		buckets: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

// Allow reports whether the client identified by key may proceed now.
func (c *ClientLimiter) Allow(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= c.idle {
		for k, b := range c.buckets {
			if now.Sub(b.lastSeen) >= c.idle {
				delete(c.buckets, k)
			}
		}
		c.lastSweep = now
	}

	b, ok := c.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// clientKey identifies the caller by the remote IP. Forwarding headers are
// ignored since any client can set them.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
