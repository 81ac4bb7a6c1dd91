package notifications

import (
	"context"

	"github.com/geocoder89/claimdesk/internal/domain/claim"
)

type ClaimDecisionInput struct {
	ClaimID     string
	OwnerUserID string
	DecidedBy   string
	From        claim.Status
	To          claim.Status
}

// Notifier tells a claim's owner that its status changed.
type Notifier interface {
	ClaimDecided(ctx context.Context, in ClaimDecisionInput) error
}
