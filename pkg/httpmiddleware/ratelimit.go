package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures a sliding window Limiter.
type RateLimitConfig struct {
	// Max requests per key within one window.
	Max int
	// Window length.
	Window time.Duration
	// KeyFunc picks the limiter key for the middleware form. Defaults to the
	// client IP.
	KeyFunc func(*http.Request) string
}

// Decision is the outcome of a single Limiter.Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the whole number of seconds until the window resets.
func (d Decision) RetryAfter(now time.Time) int {
	wait := d.ResetAt.Sub(now)
	if wait < 0 {
		return 0
	}
	return int(math.Ceil(wait.Seconds()))
}

// SetHeaders writes the X-RateLimit-* headers, plus Retry-After on denial.
func (d Decision) SetHeaders(h http.Header, now time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(d.RetryAfter(now)))
	}
}

type window struct {
	prevCount float64
	currCount float64
	currStart time.Time
}

// Limiter is a per-key sliding window counter. The previous window's count
// is weighted by how much of it still overlaps the sliding window.
type Limiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// NewLimiter creates a Limiter allowing max events per key per window.
func NewLimiter(max int, windowLen time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  windowLen,
		windows: make(map[string]*window),
	}
}

// Allow records an event for key at now if it fits in the limit.
func (l *Limiter) Allow(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{currStart: now.Truncate(l.window)}
		l.windows[key] = w
	}
	if since := now.Sub(w.currStart); since >= l.window {
		w.prevCount = w.currCount
		if since >= 2*l.window {
			w.prevCount = 0
		}
		w.currCount = 0
		w.currStart = now.Truncate(l.window)
	}

	overlap := 1 - now.Sub(w.currStart).Seconds()/l.window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	used := w.prevCount*overlap + w.currCount
	d := Decision{Limit: l.max, ResetAt: w.currStart.Add(l.window)}
	if used >= float64(l.max) {
		return d
	}

	w.currCount++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-used-1), 0)
	return d
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Cleanup drops keys whose windows have fully expired.
func (l *Limiter) Cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.currStart) >= 2*l.window {
			delete(l.windows, key)
		}
	}
}

// StartCleanup runs Cleanup every two windows until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Cleanup(now)
			}
		}
	}()
}

// RateLimit limits requests per cfg.KeyFunc key and answers 429 with the
// JSON error envelope when the limit is exceeded. Stale keys are evicted
// until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	l := NewLimiter(cfg.Max, cfg.Window)
	l.StartCleanup(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			d := l.Allow(keyFunc(r), now)
			d.SetHeaders(w.Header(), now)
			if !d.Allowed {
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
