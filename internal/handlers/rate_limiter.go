package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// windowLimiter admits at most limit calls per key in each fixed window.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]window
}

type window struct {
	used  int
	reset time.Time
}

func newWindowLimiter(limit int, every time.Duration, clock func() time.Time) *windowLimiter {
	if limit <= 0 || every <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{
		limit:   limit,
		window:  every,
		clock:   clock,
		windows: make(map[string]window),
	}
}

// allow reports whether key may proceed and, when it may not, how long until its window resets.
func (l *windowLimiter) allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || !now.Before(current.reset) {
		l.dropExpiredLocked(now)
		l.windows[key] = window{used: 1, reset: now.Add(l.window)}
		return true, 0
	}
	if current.used >= l.limit {
		return false, current.reset.Sub(now)
	}
	current.used++
	l.windows[key] = current
	return true, 0
}

func (l *windowLimiter) dropExpiredLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, key)
		}
	}
}

// clientKey identifies the caller by address. RealIP has already rewritten RemoteAddr when a proxy
// header is present.
func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "unknown"
	}
	return addr
}
