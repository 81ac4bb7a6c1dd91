package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier records decisions as structured log lines. It stands in for a
// mail or push provider.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) ClaimDecided(ctx context.Context, in ClaimDecisionInput) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	n.log.InfoContext(ctx, "notification.claim_decided",
		"claim_id", in.ClaimID,
		"owner_id", in.OwnerUserID,
		"decided_by", in.DecidedBy,
		"from", in.From,
		"to", in.To,
	)
	return nil
}
