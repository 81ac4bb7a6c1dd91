package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/claimdesk/internal/domain/claim"
	"github.com/geocoder89/claimdesk/internal/http/middlewares"
	"github.com/geocoder89/claimdesk/internal/notifications"
	"github.com/geocoder89/claimdesk/internal/observability"
	"github.com/geocoder89/claimdesk/internal/service"
	"github.com/geocoder89/claimdesk/internal/utils"
	"github.com/gin-gonic/gin"
)

const (
	scopeAll  = "all"
	scopeMine = "mine"
)

type ClaimService interface {
	CreateClaim(ctx context.Context, owner service.Identity, f claim.Fields) (claim.Claim, error)
	ListClaims(ctx context.Context, scope claim.Scope) ([]claim.Claim, error)
	SetStatus(ctx context.Context, actor service.Identity, claimID string, to claim.Status) (service.Decision, error)
}

type ClaimsHandler struct {
	claims       ClaimService
	notifier     notifications.Notifier
	prom         *observability.Prom
	reviewerRole string
}

// NewClaimsHandler wires the dashboard. A non-empty reviewerRole hides the
// approve and decline buttons from everyone else; the routes enforce it.
func NewClaimsHandler(claims ClaimService, notifier notifications.Notifier, prom *observability.Prom, reviewerRole string) *ClaimsHandler {
	return &ClaimsHandler{
		claims:       claims,
		notifier:     notifier,
		prom:         prom,
		reviewerRole: reviewerRole,
	}
}

func (h *ClaimsHandler) Dashboard(ctx *gin.Context) {
	actor, ok := identityFrom(ctx)
	if !ok {
		ctx.Redirect(http.StatusFound, middlewares.LoginPath)
		return
	}

	scopeName := normalizeScope(ctx.Query("scope"))

	scope := claim.ScopeAll()
	if scopeName == scopeMine {
		scope = claim.OwnedBy(actor.UserID)
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	list, err := h.claims.ListClaims(cctx, scope)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "list claims failed",
			"err", err, "request_id", middlewares.RequestIDFromContext(ctx))
		RespondInternal(ctx, "Could not load claims")
		return
	}

	render(ctx, http.StatusOK, tmplClaims, "Claims", gin.H{
		"Claims":    list,
		"Scope":     scopeName,
		"CanDecide": h.canDecide(actor),
	})
}

func (h *ClaimsHandler) ShowCreate(ctx *gin.Context) {
	renderClaimForm(ctx, http.StatusOK, "", map[string]string{}, map[string]string{})
}

func (h *ClaimsHandler) Save(ctx *gin.Context) {
	actor, ok := identityFrom(ctx)
	if !ok {
		ctx.Redirect(http.StatusSeeOther, middlewares.LoginPath)
		return
	}

	var fields claim.Fields

	if fieldErrors, ok := BindForm(ctx, &fields); !ok {
		renderClaimForm(ctx, http.StatusBadRequest, "Please fix the highlighted fields.", submittedClaimForm(ctx), fieldErrors)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	c, err := h.claims.CreateClaim(cctx, actor, fields)
	if err != nil {
		switch {
		case errors.Is(err, claim.ErrValidation):
			renderClaimForm(ctx, http.StatusBadRequest, "Every field is required.", submittedClaimForm(ctx), map[string]string{})
		case errors.Is(err, service.ErrUnauthenticated):
			ctx.Redirect(http.StatusSeeOther, middlewares.LoginPath)
		default:
			slog.ErrorContext(ctx.Request.Context(), "create claim failed",
				"err", err, "request_id", middlewares.RequestIDFromContext(ctx))
			RespondInternal(ctx, "Could not save the claim")
		}
		return
	}

	slog.DebugContext(ctx.Request.Context(), "claim saved", "claim_id", c.ID)

	seeOther(ctx, "/claims")
}

func (h *ClaimsHandler) Approve(ctx *gin.Context) {
	h.decide(ctx, claim.StatusApproved)
}

func (h *ClaimsHandler) Decline(ctx *gin.Context) {
	h.decide(ctx, claim.StatusDeclined)
}

func (h *ClaimsHandler) decide(ctx *gin.Context, to claim.Status) {
	actor, ok := identityFrom(ctx)
	if !ok {
		ctx.Redirect(http.StatusSeeOther, middlewares.LoginPath)
		return
	}

	id := ctx.Param("id")
	if !utils.IsUUID(id) {
		RespondNotFound(ctx, "Claim not found.")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	d, err := h.claims.SetStatus(cctx, actor, id, to)
	if err != nil {
		switch {
		case errors.Is(err, claim.ErrNotFound):
			RespondNotFound(ctx, "Claim not found.")
		case errors.Is(err, claim.ErrInvalidTransition):
			RespondConflict(ctx, "invalid_transition", "This claim has already been decided.")
		case errors.Is(err, claim.ErrInvalidStatus):
			RespondBadRequest(ctx, "Unknown claim status.")
		case errors.Is(err, service.ErrUnauthenticated):
			ctx.Redirect(http.StatusSeeOther, middlewares.LoginPath)
		default:
			slog.ErrorContext(ctx.Request.Context(), "set claim status failed",
				"err", err, "claim_id", id, "request_id", middlewares.RequestIDFromContext(ctx))
			RespondInternal(ctx, "Could not update the claim")
		}
		return
	}

	h.notify(cctx, actor, d)

	seeOther(ctx, "/claims?scope="+normalizeScope(ctx.PostForm("scope")))
}

// notify is best effort; the decision is already stored.
func (h *ClaimsHandler) notify(ctx context.Context, actor service.Identity, d service.Decision) {
	if h.notifier == nil {
		return
	}

	err := h.notifier.ClaimDecided(ctx, notifications.ClaimDecisionInput{
		ClaimID:     d.Claim.ID,
		OwnerUserID: d.Claim.OwnerUserID,
		DecidedBy:   actor.UserID,
		From:        d.Previous,
		To:          d.Claim.Status,
	})

	result := "sent"
	switch {
	case errors.Is(err, notifications.ErrCircuitOpen):
		result = "circuit_open"
	case err != nil:
		result = "failed"
	}

	if err != nil {
		slog.WarnContext(ctx, "claim decision notification failed", "err", err, "claim_id", d.Claim.ID)
	}

	if h.prom != nil {
		h.prom.NotificationsSent.WithLabelValues(result).Inc()
	}
}

func (h *ClaimsHandler) canDecide(actor service.Identity) bool {
	return h.reviewerRole == "" || actor.Role == h.reviewerRole
}

func identityFrom(ctx *gin.Context) (service.Identity, bool) {
	actor, ok := middlewares.ActorFromContext(ctx)
	if !ok {
		return service.Identity{}, false
	}
	return service.IdentityFromActor(actor), true
}

func normalizeScope(raw string) string {
	if raw == scopeMine {
		return scopeMine
	}
	return scopeAll
}

// submittedClaimForm echoes the raw values back into the form.
func submittedClaimForm(ctx *gin.Context) map[string]string {
	return map[string]string{
		"description":   ctx.PostForm("description"),
		"diagnosisCode": ctx.PostForm("diagnosisCode"),
		"procedureCode": ctx.PostForm("procedureCode"),
		"chargeAmount":  ctx.PostForm("chargeAmount"),
		"providerName":  ctx.PostForm("providerName"),
	}
}

func renderClaimForm(ctx *gin.Context, status int, errMsg string, form, fieldErrors map[string]string) {
	render(ctx, status, tmplClaimForm, "New claim", gin.H{
		"Error":       errMsg,
		"Form":        form,
		"FieldErrors": fieldErrors,
	})
}
