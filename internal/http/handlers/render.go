package handlers

import (
	"net/http"

	"github.com/geocoder89/claimdesk/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

const (
	tmplLogin     = "login.html"
	tmplRegister  = "register.html"
	tmplClaims    = "claims.html"
	tmplClaimForm = "claim_form.html"
	tmplError     = middlewares.ErrorTemplate
)

// render fills in the values every page reads, then renders name.
func render(ctx *gin.Context, status int, name, title string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}

	data["Title"] = title
	data["RequestID"] = middlewares.RequestIDFromContext(ctx)

	if actor, ok := middlewares.ActorFromContext(ctx); ok {
		data["User"] = actor
	}

	ctx.HTML(status, name, data)
}

func RespondError(ctx *gin.Context, status int, code, message string) {
	render(ctx, status, tmplError, http.StatusText(status), gin.H{
		"Status":  status,
		"Code":    code,
		"Message": message,
	})
}

func RespondBadRequest(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message)
}

func RespondConflict(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusConflict, code, message)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message)
}

// redirect after a successful POST
func seeOther(ctx *gin.Context, location string) {
	ctx.Redirect(http.StatusSeeOther, location)
}
