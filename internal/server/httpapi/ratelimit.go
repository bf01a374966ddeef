package httpapi

import (
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authcore/internal/timex"
	"golang.org/x/time/rate"
)

// limitRule caps requests per client IP for paths starting with Prefix.
// An empty prefix matches every path.
type limitRule struct {
	Prefix   string
	Requests int
	Window   time.Duration
}

// defaultLimitRules are tried in order; the first matching prefix wins.
var defaultLimitRules = []limitRule{
	{Prefix: "/api/auth/login", Requests: 5, Window: 15 * time.Minute},
	{Prefix: "/api/", Requests: 100, Window: 15 * time.Minute},
	{Prefix: "", Requests: 200, Window: 15 * time.Minute},
}

type limBucket struct {
	lim      *rate.Limiter
	window   time.Duration
	lastSeen time.Time
}

// endpointLimiter keeps one token bucket per (client IP, rule). A bucket
// refills at Requests per Window with a burst of Requests, and idle buckets
// are evicted after a full window.
type endpointLimiter struct {
	mu        sync.Mutex
	rules     []limitRule
	clock     timex.Clock
	entries   map[string]*limBucket
	lastSweep time.Time
}

func newEndpointLimiter(rules []limitRule, clock timex.Clock) *endpointLimiter {
	return &endpointLimiter{
		rules:   rules,
		clock:   clock,
		entries: make(map[string]*limBucket),
	}
}

func (l *endpointLimiter) match(path string) (limitRule, bool) {
	for _, r := range l.rules {
		if strings.HasPrefix(path, r.Prefix) {
			return r, true
		}
	}
	return limitRule{}, false
}

// allow reports whether ip may call path now.
func (l *endpointLimiter) allow(ip, path string) bool {
	rule, ok := l.match(path)
	if !ok {
		return true
	}

	now := l.clock.Now()
	key := ip + "|" + rule.Prefix

	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.entries[key]
	if b == nil {
		every := rule.Window / time.Duration(rule.Requests)
		b = &limBucket{lim: rate.NewLimiter(rate.Every(every), rule.Requests), window: rule.Window}
		l.entries[key] = b
	}
	b.lastSeen = now

	if now.Sub(l.lastSweep) > time.Minute {
		l.sweep(now)
	}
	return b.lim.AllowN(now, 1)
}

func (l *endpointLimiter) sweep(now time.Time) {
	l.lastSweep = now
	for k, v := range l.entries {
		if now.Sub(v.lastSeen) > v.window {
			delete(l.entries, k)
		}
	}
}
