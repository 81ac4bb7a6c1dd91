package service

import (
	"context"
	"log/slog"

	"github.com/geocoder89/claimdesk/internal/domain/claim"
	"github.com/geocoder89/claimdesk/internal/observability"
)

type ClaimStore interface {
	Create(ctx context.Context, c claim.Claim) (claim.Claim, error)
	GetByID(ctx context.Context, id string) (claim.Claim, error)
	List(ctx context.Context, scope claim.Scope) ([]claim.Claim, error)
	SetStatus(ctx context.Context, id string, to claim.Status, allowedFrom []claim.Status) (claim.Claim, claim.Status, error)
}

// Decision is the outcome of a successful status change.
type Decision struct {
	Claim    claim.Claim
	Previous claim.Status
}

type ClaimWorkflow struct {
	claims ClaimStore
	policy claim.Policy
	table  claim.Transitions
	prom   *observability.Prom
}

func NewClaimWorkflow(claims ClaimStore, policy claim.Policy, prom *observability.Prom) *ClaimWorkflow {
	if policy == "" {
		policy = claim.PolicyOpen
	}

	return &ClaimWorkflow{
		claims: claims,
		policy: policy,
		table:  claim.NewTransitions(policy),
		prom:   prom,
	}
}

func (w *ClaimWorkflow) Policy() claim.Policy {
	return w.policy
}

// CreateClaim stores a new pending claim owned by owner.
func (w *ClaimWorkflow) CreateClaim(ctx context.Context, owner Identity, f claim.Fields) (claim.Claim, error) {
	if owner.IsZero() {
		return claim.Claim{}, ErrUnauthenticated
	}

	if err := f.Validate(); err != nil {
		return claim.Claim{}, err
	}

	c, err := w.claims.Create(ctx, claim.NewFromFields(owner.UserID, f))
	if err != nil {
		return claim.Claim{}, err
	}

	if w.prom != nil {
		w.prom.ClaimsCreated.Inc()
	}

	slog.InfoContext(ctx, "claim created", "claim_id", c.ID, "owner_id", c.OwnerUserID)

	return c, nil
}

// ListClaims returns a fresh snapshot in insertion order.
func (w *ClaimWorkflow) ListClaims(ctx context.Context, scope claim.Scope) ([]claim.Claim, error) {
	return w.claims.List(ctx, scope)
}

func (w *ClaimWorkflow) GetClaim(ctx context.Context, claimID string) (claim.Claim, error) {
	return w.claims.GetByID(ctx, claimID)
}

// SetStatus overwrites a claim's status if the active transition table
// allows it. Concurrent writers on the same claim resolve last write wins.
func (w *ClaimWorkflow) SetStatus(ctx context.Context, actor Identity, claimID string, to claim.Status) (Decision, error) {
	if actor.IsZero() {
		return Decision{}, ErrUnauthenticated
	}

	if !to.IsValid() {
		return Decision{}, claim.ErrInvalidStatus
	}

	updated, prev, err := w.claims.SetStatus(ctx, claimID, to, w.allowedFrom(to))
	if err != nil {
		return Decision{}, err
	}

	if w.prom != nil {
		w.prom.ClaimTransitions.WithLabelValues(string(prev), string(to)).Inc()
	}

	slog.InfoContext(ctx, "claim status changed",
		"claim_id", updated.ID,
		"from", prev,
		"to", updated.Status,
		"decided_by", actor.UserID,
	)

	return Decision{Claim: updated, Previous: prev}, nil
}

// allowedFrom lists the statuses the store may overwrite with to. Nil means
// any; an empty slice means none.
func (w *ClaimWorkflow) allowedFrom(to claim.Status) []claim.Status {
	if w.policy == claim.PolicyOpen {
		return nil
	}

	from := []claim.Status{}
	for _, s := range []claim.Status{claim.StatusPending, claim.StatusApproved, claim.StatusDeclined} {
		if w.table.Allowed(s, to) {
			from = append(from, s)
		}
	}

	return from
}
