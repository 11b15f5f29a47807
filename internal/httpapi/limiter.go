package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 3 * time.Minute

// clientLimiter keeps one token bucket per client. Idle buckets are swept
// lazily on access instead of by a background goroutine.
type clientLimiter struct {
	mu        sync.Mutex
	rps       rate.Limit
	burst     int
	clients   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &clientLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clients: map[string]*clientBucket{},
	}
}

func (l *clientLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > time.Minute {
		for k, bucket := range l.clients {
			if now.Sub(bucket.lastSeen) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}
	bucket, ok := l.clients[key]
	if !ok {
		bucket = &clientBucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.AllowN(now, 1)
}

func (l *clientLimiter) retryAfterSeconds() int {
	if l.rps <= 0 {
		return 1
	}
	seconds := int(1/float64(l.rps) + 0.999)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func clientKey(r *http.Request, subject string) string {
	if subject != "" {
		return "sub:" + subject
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
	}
	return "ip:" + ip
}
