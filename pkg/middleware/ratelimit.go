package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roomcast-live/roomcast/internal/config"
)

// clientRateLimiter holds the limiter for a specific client
type clientRateLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per remote client. Chunk uploads arrive
// every few seconds per recording participant, so the limits are per
// client address, not global.
type RateLimiter struct {
	enabled        bool
	requestsPerMin int
	burstSize      int
	expiration     time.Duration

	clientLimiters map[string]*clientRateLimiter
	mu             sync.Mutex

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewRateLimiter creates a rate limiter from configuration
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		enabled:        cfg.Enabled,
		requestsPerMin: cfg.RequestsPerMin,
		burstSize:      cfg.BurstSize,
		expiration:     cfg.ExpirationTime,
		clientLimiters: make(map[string]*clientRateLimiter),
		stopCleanup:    make(chan struct{}),
	}

	if rl.enabled {
		go rl.cleanup()
	}

	return rl
}

// Allow reports whether a request from the given client may proceed
func (rl *RateLimiter) Allow(clientID string) bool {
	if !rl.enabled {
		return true
	}

	rl.mu.Lock()
	limiter, exists := rl.clientLimiters[clientID]
	if !exists {
		rps := float64(rl.requestsPerMin) / 60.0
		limiter = &clientRateLimiter{
			limiter: rate.NewLimiter(rate.Limit(rps), rl.burstSize),
		}
		rl.clientLimiters[clientID] = limiter
	}
	limiter.lastSeen = time.Now()
	rl.mu.Unlock()

	return limiter.limiter.Allow()
}

// Middleware wraps a handler with per-client rate limiting
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}

		if !rl.Allow(host) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"ok":    false,
				"error": "rate limit exceeded",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// cleanup removes limiters for clients not seen within the expiration
// window
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.expiration)
			rl.mu.Lock()
			for id, limiter := range rl.clientLimiters {
				if limiter.lastSeen.Before(cutoff) {
					delete(rl.clientLimiters, id)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCleanup:
			return
		}
	}
}
