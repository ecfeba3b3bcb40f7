package ratelimiter

import (
	"fmt"
	"sync"
	"time"
)

// RateLimiter is the interface for rate limiting.
// It defines a single method, Allow, which returns true if a request is allowed,
// and false otherwise.
type RateLimiter interface {
	// Allow returns true if the request is allowed, otherwise returns false.
	Allow() bool
}

// Clock returns the current time. Tests replace it to avoid sleeping.
type Clock func() time.Time

// Factory builds a fresh limiter for a newly seen key.
type Factory func() RateLimiter

// Keyed keeps one limiter per key (user id, remote address) so one noisy
// caller cannot consume another caller's budget. Limiters that have not been
// used for idleTTL are dropped by Prune.
type Keyed struct {
	factory  Factory
	idleTTL  time.Duration
	now      Clock
	mutex    sync.Mutex
	limiters map[string]*keyedEntry
}

type keyedEntry struct {
	limiter  RateLimiter
	lastSeen time.Time
}

// NewKeyed creates a Keyed limiter. idleTTL <= 0 disables pruning.
func NewKeyed(factory Factory, idleTTL time.Duration) *Keyed {
	return &Keyed{
		factory:  factory,
		idleTTL:  idleTTL,
		now:      time.Now,
		limiters: make(map[string]*keyedEntry),
	}
}

// Allow reports whether a request from key may proceed.
func (k *Keyed) Allow(key string) bool {
	k.mutex.Lock()
	e, ok := k.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: k.factory()}
		k.limiters[key] = e
	}
	e.lastSeen = k.now()
	k.mutex.Unlock()
	return e.limiter.Allow()
}

// Prune removes limiters idle for longer than idleTTL and returns how many were removed.
func (k *Keyed) Prune() int {
	if k.idleTTL <= 0 {
		return 0
	}
	k.mutex.Lock()
	defer k.mutex.Unlock()
	cutoff := k.now().Add(-k.idleTTL)
	removed := 0
	for key, e := range k.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(k.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *Keyed) Len() int {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	return len(k.limiters)
}

// NewFactory returns a Factory for the named algorithm ("tokenBucket" or "fixedWindow").
func NewFactory(algorithm string, rate float64, capacity, limit int, window time.Duration) (Factory, error) {
	switch algorithm {
	case "tokenBucket", "":
		return func() RateLimiter { return NewTokenBucket(rate, capacity) }, nil
	case "fixedWindow":
		return func() RateLimiter { return NewFixedWindowCounter(limit, window) }, nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm %q", algorithm)
	}
}
