// Package ratelimit admits voice connections per client: a token bucket on
// connection attempts and a cap on concurrent live sessions.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type Config struct {
	// ConnectRPS and ConnectBurst bound websocket upgrades per client.
	ConnectRPS   float64
	ConnectBurst int

	// MaxSessionsPerClient caps live sessions per client. 0 disables it.
	MaxSessionsPerClient int

	// Operational bounds for the in-memory map (single-process only).
	MaxEntries int
	EntryTTL   time.Duration
}

// Enabled reports whether any limit is configured.
func (c Config) Enabled() bool {
	return (c.ConnectRPS > 0 && c.ConnectBurst > 0) || c.MaxSessionsPerClient > 0
}

type Limiter struct {
	cfg Config

	mu sync.Mutex
	m  map[string]*clientLimiter
}

type clientLimiter struct {
	mu sync.Mutex

	tb tokenBucket

	sessionSem chan struct{}

	lastSeen time.Time
}

type tokenBucket struct {
	rps      float64
	capacity float64

	tokens float64
	last   time.Time
}

func New(cfg Config) *Limiter {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10_000
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = 30 * time.Minute
	}
	return &Limiter{
		cfg: cfg,
		m:   make(map[string]*clientLimiter),
	}
}

// ClientKey derives a limiter key from the request's remote address. Only
// the first X-Forwarded-For hop is trusted when present.
func ClientKey(r *http.Request) string {
	host := ""
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if host == "" {
		h, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			h = r.RemoteAddr
		}
		host = h
	}
	sum := sha256.Sum256([]byte(host))
	// 16 bytes => 32 hex chars; enough to avoid collisions in practice.
	return "c_" + hex.EncodeToString(sum[:16])
}

type Permit struct {
	release func()
}

// Release frees the session slot. Safe to call more than once.
func (p *Permit) Release() {
	if p == nil || p.release == nil {
		return
	}
	p.release()
	p.release = nil
}

type Decision struct {
	Allowed    bool
	RetryAfter int
	Reason     string // "connect_rate" or "max_sessions" when denied
	Permit     *Permit
}

// AdmitSession decides whether client may open one more voice session. An
// allowed decision holds a session slot until its Permit is released.
func (l *Limiter) AdmitSession(client string, now time.Time) Decision {
	if l == nil {
		return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
	}
	if client == "" {
		client = "unknown"
	}

	cl := l.getOrCreate(client, now)
	cl.touch(now)

	if l.cfg.ConnectRPS > 0 && l.cfg.ConnectBurst > 0 {
		ok, retryAfter := cl.allowToken(now, l.cfg.ConnectRPS, l.cfg.ConnectBurst)
		if !ok {
			return Decision{Allowed: false, RetryAfter: retryAfter, Reason: "connect_rate"}
		}
	}

	if l.cfg.MaxSessionsPerClient > 0 {
		select {
		case cl.sessionSem <- struct{}{}:
			return Decision{
				Allowed: true,
				Permit:  &Permit{release: func() { <-cl.sessionSem }},
			}
		default:
			return Decision{Allowed: false, RetryAfter: 1, Reason: "max_sessions"}
		}
	}

	return Decision{Allowed: true, Permit: &Permit{release: func() {}}}
}

func (l *Limiter) getOrCreate(client string, now time.Time) *clientLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.m) >= l.cfg.MaxEntries {
		l.gcLocked(now)
		// If still too big, drop one arbitrary entry (bounded memory > perfect fairness).
		if len(l.m) >= l.cfg.MaxEntries {
			for k := range l.m {
				delete(l.m, k)
				break
			}
		}
	}

	if cl, ok := l.m[client]; ok {
		return cl
	}
	cl := &clientLimiter{
		sessionSem: make(chan struct{}, max(1, l.cfg.MaxSessionsPerClient)),
		lastSeen:   now,
	}
	l.m[client] = cl
	return cl
}

// gcLocked drops idle clients. Clients holding session slots are kept so
// their permits stay accounted.
func (l *Limiter) gcLocked(now time.Time) {
	ttl := l.cfg.EntryTTL
	for k, v := range l.m {
		v.mu.Lock()
		idle := now.Sub(v.lastSeen) > ttl
		v.mu.Unlock()
		if idle && len(v.sessionSem) == 0 {
			delete(l.m, k)
		}
	}
}

func (cl *clientLimiter) touch(now time.Time) {
	cl.mu.Lock()
	cl.lastSeen = now
	cl.mu.Unlock()
}

func (cl *clientLimiter) allowToken(now time.Time, rps float64, burst int) (bool, int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	capacity := float64(burst)
	if cl.tb.capacity == 0 {
		cl.tb = tokenBucket{
			rps:      rps,
			capacity: capacity,
			tokens:   capacity,
			last:     now,
		}
	}

	elapsed := now.Sub(cl.tb.last).Seconds()
	if elapsed > 0 {
		cl.tb.tokens = math.Min(cl.tb.capacity, cl.tb.tokens+(elapsed*cl.tb.rps))
		cl.tb.last = now
	}

	if cl.tb.tokens >= 1.0 {
		cl.tb.tokens -= 1.0
		return true, 0
	}

	needed := 1.0 - cl.tb.tokens
	retryAfter := int(math.Ceil(needed / cl.tb.rps))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter
}
