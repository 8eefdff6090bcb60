package server

import (
	"batepapo/errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

// RateLimit bounds requests per identity. A non-positive RPS disables it.
type RateLimit struct {
	RPS   float64
	Burst int
}

// minLimiterIdle is the shortest time an unused limiter is kept.
const minLimiterIdle = time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one limiter per key. Keys come from clients, so entries
// idle for longer than idleTTL are pruned: by then their bucket is full again
// and a fresh limiter behaves the same.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	limits    RateLimit
	idleTTL   time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func newLimiterPool(limits RateLimit) *limiterPool {
	if limits.Burst <= 0 {
		limits.Burst = 1
	}
	idle := minLimiterIdle
	if limits.RPS > 0 {
		if refill := time.Duration(float64(limits.Burst) / limits.RPS * float64(time.Second)); refill > idle {
			idle = refill
		}
	}
	return &limiterPool{m: make(map[string]*limiterEntry), limits: limits, idleTTL: idle, now: time.Now}
}

// Allow spends one token from the limiter of key.
func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.prune(now)
	e, ok := p.m[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(p.limits.RPS), p.limits.Burst)}
		p.m[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// prune drops idle entries, at most once per idleTTL. Caller holds mu.
func (p *limiterPool) prune(now time.Time) {
	if now.Sub(p.lastPrune) < p.idleTTL {
		return
	}
	p.lastPrune = now
	for key, e := range p.m {
		if now.Sub(e.lastSeen) >= p.idleTTL {
			delete(p.m, key)
		}
	}
}

// Len reports how many keys hold a limiter.
func (p *limiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// middleware keys limiters by the identity header, falling back to the client IP.
func (p *limiterPool) middleware(next http.Handler) http.Handler {
	if p.limits.RPS <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdentityHeader)
		if key == "" {
			key = clientIP(r)
		}
		if !p.Allow(key) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(errors.MapToHTTPStatus(errors.ErrRateLimited))
			_, _ = w.Write([]byte(`{"error":"` + errors.ErrRateLimited.Error() + `"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type,"+IdentityHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *ChatServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)
		s.log.Debug("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"user", r.Header.Get(IdentityHeader),
			"status", rec.status,
			"duration", time.Since(started))
	})
}

func (s *ChatServer) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := record(w)
		next.ServeHTTP(rec, r)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = r.Method + " " + tmpl
			}
		}
		s.metrics.RequestServed(route, rec.status)
	})
}
