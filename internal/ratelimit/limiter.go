// Package ratelimit enforces a minimum interval between requests to the same
// host. Used by upstream fetchers so the service stays a polite client.
package ratelimit

import (
	"sync"
	"time"
)

// RateLimiter is the interface implemented by rate limiter backends.
type RateLimiter interface {
	Allow(host string) bool
	Wait(host string)
	Reset(host string)
}

// Limiter tracks the last request time per host.
type Limiter struct {
	mu          sync.Mutex
	hosts       map[string]time.Time
	minInterval time.Duration
}

// New creates a limiter with the given minimum per-host interval.
func New(minInterval time.Duration) *Limiter {
	return &Limiter{
		hosts:       make(map[string]time.Time),
		minInterval: minInterval,
	}
}

// Allow reports whether a request to the host may proceed now, and records
// the request time when it may.
func (l *Limiter) Allow(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if last, ok := l.hosts[host]; ok && now.Sub(last) < l.minInterval {
		return false
	}
	l.hosts[host] = now
	return true
}

// Wait blocks until a request to the host may proceed, then records it.
func (l *Limiter) Wait(host string) {
	l.mu.Lock()
	now := time.Now()
	last, ok := l.hosts[host]
	if !ok || now.Sub(last) >= l.minInterval {
		l.hosts[host] = now
		l.mu.Unlock()
		return
	}
	wait := l.minInterval - now.Sub(last)
	l.hosts[host] = now.Add(wait)
	l.mu.Unlock()

	time.Sleep(wait)
}

// Reset forgets the last request time for a host.
func (l *Limiter) Reset(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hosts, host)
}

// ResetAll forgets every host.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]time.Time)
}
