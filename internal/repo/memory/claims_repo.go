package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/geocoder89/claimdesk/internal/domain/claim"
)

// ClaimsRepo keeps claims in insertion order. A single RWMutex serializes
// writes, which gives the same per-row last-write-wins behavior as the
// postgres store.
type ClaimsRepo struct {
	mu    sync.RWMutex
	seq   int64
	order []string               // ids in insertion order
	items map[string]claim.Claim // id -> claim
}

func NewClaimsRepo() *ClaimsRepo {
	return &ClaimsRepo{
		items: make(map[string]claim.Claim),
	}
}

func (r *ClaimsRepo) Create(_ context.Context, c claim.Claim) (claim.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	c.Seq = r.seq

	r.items[c.ID] = c
	r.order = append(r.order, c.ID)

	return c, nil
}

func (r *ClaimsRepo) GetByID(_ context.Context, id string) (claim.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[id]
	if !ok {
		return claim.Claim{}, claim.ErrNotFound
	}

	return c, nil
}

func (r *ClaimsRepo) List(_ context.Context, scope claim.Scope) ([]claim.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]claim.Claim, 0, len(r.order))

	for _, id := range r.order {
		c := r.items[id]

		if !scope.IsAll() && c.OwnerUserID != scope.OwnerUserID {
			continue
		}
		out = append(out, c)
	}

	return out, nil
}

func (r *ClaimsRepo) SetStatus(_ context.Context, id string, to claim.Status, allowedFrom []claim.Status) (claim.Claim, claim.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[id]
	if !ok {
		return claim.Claim{}, "", claim.ErrNotFound
	}

	if allowedFrom != nil && !slices.Contains(allowedFrom, c.Status) {
		return claim.Claim{}, "", claim.ErrInvalidTransition
	}

	prev := c.Status
	c.Status = to
	c.UpdatedAt = time.Now().UTC()
	r.items[id] = c

	return c, prev, nil
}
