// Package ratelimit limits write requests per client with a fixed window.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Config holds rate limiter configuration
type Config struct {
	Requests        int
	Window          time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Requests:        60,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

type window struct {
	start time.Time
	count int
}

type Limiter struct {
	mu      sync.Mutex
	clients map[string]*window
	cfg     Config
	now     func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts a limiter with a background goroutine that drops idle
// clients. Call Stop to release it.
func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Requests <= 0 {
		cfg.Requests = def.Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	l := &Limiter{
		clients: make(map[string]*window),
		cfg:     cfg,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow records a request from client and reports whether it fits in the
// current window, along with the time left until the window resets.
func (l *Limiter) Allow(client string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.clients[client]
	if !ok || now.Sub(w.start) >= l.cfg.Window {
		l.clients[client] = &window{start: now, count: 1}
		return true, 0
	}
	w.count++
	if w.count > l.cfg.Requests {
		return false, w.start.Add(l.cfg.Window).Sub(now)
	}
	return true, 0
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-2 * l.cfg.Window)
	for client, w := range l.clients {
		if w.start.Before(cutoff) {
			delete(l.clients, client)
		}
	}
}

// ActiveClients returns the number of tracked clients.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Middleware rejects over-limit requests with 429 and a Retry-After header.
// Only methods listed in methods are counted; an empty list counts all.
func (l *Limiter) Middleware(clientKey func(*http.Request) string, methods ...string) func(http.Handler) http.Handler {
	limited := make(map[string]bool, len(methods))
	for _, m := range methods {
		limited[m] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(limited) > 0 && !limited[r.Method] {
				next.ServeHTTP(w, r)
				return
			}
			ok, wait := l.Allow(clientKey(r))
			if !ok {
				secs := int(wait.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				http.Error(w, "Too many requests, try again later.", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
