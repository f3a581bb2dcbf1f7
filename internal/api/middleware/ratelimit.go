package middleware

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleEviction = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter holds one token bucket per client IP. Buckets idle past the
// eviction window are dropped by the background sweep.
type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	rate    rate.Limit
	burst   int
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*clientLimiter),
		rate:    rate.Limit(rps),
		burst:   burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	client, ok := l.clients[ip]
	if !ok {
		client = &clientLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = client
	}
	client.lastSeen = time.Now()
	return client.limiter.Allow()
}

func (l *ipLimiter) evictIdle(maxAge time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for ip, client := range l.clients {
		if client.lastSeen.Before(cutoff) {
			delete(l.clients, ip)
		}
	}
}

// RateLimit rejects requests exceeding the per-IP budget with a 429.
// Relies on chi's RealIP running earlier in the chain so the key is the
// originating address, not a proxy.
func RateLimit(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := newIPLimiter(rps, burst)

	go func() {
		ticker := time.NewTicker(limiterIdleEviction)
		defer ticker.Stop()
		for range ticker.C {
			limiter.evictIdle(limiterIdleEviction)
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.Header.Get("X-Real-IP")
			if ip == "" {
				ip = r.RemoteAddr
			}

			if !limiter.allow(ip) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
