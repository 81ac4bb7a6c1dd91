package session

import (
	"context"
	"sync"
	"time"
)

const (
	// Revoke sweeps expired entries once the set reaches this size, at most
	// once per sweepInterval.
	sweepThreshold = 1024
	sweepInterval  = time.Minute
)

// MemoryRevoker is a process-local revocation set. Entries drop out once
// the token they refer to would have expired anyway.
type MemoryRevoker struct {
	mu        sync.RWMutex
	m         map[string]time.Time
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryRevoker() *MemoryRevoker {
	return &MemoryRevoker{
		m:   make(map[string]time.Time),
		now: time.Now,
	}
}

func (r *MemoryRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.m) >= sweepThreshold && !now.Before(r.nextSweep) {
		r.sweepLocked(now)
		r.nextSweep = now.Add(sweepInterval)
	}

	r.m[jti] = now.Add(ttl)

	return nil
}

func (r *MemoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	now := r.now()

	r.mu.RLock()
	exp, ok := r.m[jti]
	r.mu.RUnlock()

	if !ok {
		return false, nil
	}

	if now.After(exp) {
		r.mu.Lock()
		delete(r.m, jti)
		r.mu.Unlock()
		return false, nil
	}

	return true, nil
}

// Sweep drops expired entries.
func (r *MemoryRevoker) Sweep() {
	now := r.now()

	r.mu.Lock()
	r.sweepLocked(now)
	r.mu.Unlock()
}

func (r *MemoryRevoker) sweepLocked(now time.Time) {
	for k, exp := range r.m {
		if now.After(exp) {
			delete(r.m, k)
		}
	}
}

func (r *MemoryRevoker) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
