package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/claimdesk/internal/auth"
	"github.com/geocoder89/claimdesk/internal/domain/user"
	"github.com/geocoder89/claimdesk/internal/http/middlewares"
	"github.com/geocoder89/claimdesk/internal/service"
	"github.com/geocoder89/claimdesk/internal/session"
	"github.com/gin-gonic/gin"
)

type Accounts interface {
	Register(ctx context.Context, username, rawPassword string) (user.User, error)
	Authenticate(ctx context.Context, username, rawPassword string) (service.Identity, error)
}

type Sessions interface {
	IssueSession(userID, username, role string) (raw string, jti string, expiresAt time.Time, err error)
	VerifySession(raw string) (*auth.SessionClaims, error)
}

type AuthHandler struct {
	accounts     Accounts
	sessions     Sessions
	revoker      session.Revoker
	secureCookie bool
}

func NewAuthHandler(accounts Accounts, sessions Sessions, revoker session.Revoker, secureCookie bool) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		sessions:     sessions,
		revoker:      revoker,
		secureCookie: secureCookie,
	}
}

type LoginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required"`
}

type RegisterForm struct {
	Username string `form:"username" binding:"required,min=3,max=50"`
	Password string `form:"password" binding:"required,max=72"`
}

func (h *AuthHandler) ShowLogin(ctx *gin.Context) {
	if _, ok := middlewares.UserIDFromContext(ctx); ok {
		ctx.Redirect(http.StatusFound, "/claims")
		return
	}

	notice := ""
	switch {
	case ctx.Query("registered") != "":
		notice = "Account created. Please log in."
	case ctx.Query("logout") != "":
		notice = "You have been logged out."
	}

	renderLogin(ctx, http.StatusOK, "", notice, "")
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var form LoginForm

	if _, ok := BindForm(ctx, &form); !ok {
		renderLogin(ctx, http.StatusBadRequest, "Username and password are required.", "", form.Username)
		return
	}

	// short timeout for DB lookup
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	id, err := h.accounts.Authenticate(cctx, form.Username, form.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) || errors.Is(err, service.ErrValidation) {
			renderLogin(ctx, http.StatusUnauthorized, "Invalid username or password.", "", form.Username)
			return
		}

		slog.ErrorContext(ctx.Request.Context(), "login failed",
			"err", err, "request_id", middlewares.RequestIDFromContext(ctx))
		RespondInternal(ctx, "Could not log you in. Please try again.")
		return
	}

	raw, _, expiresAt, err := h.sessions.IssueSession(id.UserID, id.Username, id.Role)
	if err != nil {
		slog.ErrorContext(ctx.Request.Context(), "issue session failed", "err", err)
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.setSessionCookie(ctx, raw, expiresAt)

	seeOther(ctx, "/claims")
}

func (h *AuthHandler) ShowRegister(ctx *gin.Context) {
	renderRegister(ctx, http.StatusOK, "", "", nil)
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var form RegisterForm

	if fieldErrors, ok := BindForm(ctx, &form); !ok {
		renderRegister(ctx, http.StatusBadRequest, "Please fix the highlighted fields.", form.Username, fieldErrors)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	_, err := h.accounts.Register(cctx, form.Username, form.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDuplicateUsername):
			renderRegister(ctx, http.StatusConflict, "Username is already taken.", form.Username, nil)
		case errors.Is(err, service.ErrValidation):
			renderRegister(ctx, http.StatusBadRequest, "Please fix the highlighted fields.", form.Username, nil)
		default:
			slog.ErrorContext(ctx.Request.Context(), "register failed",
				"err", err, "request_id", middlewares.RequestIDFromContext(ctx))
			RespondInternal(ctx, "Could not create user")
		}
		return
	}

	seeOther(ctx, "/login?registered=1")
}

// Logout revokes the presented session for its remaining lifetime and
// clears the cookie. It always ends on the login page.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	raw, err := ctx.Cookie(middlewares.SessionCookie)

	if err == nil && raw != "" {
		if claims, err := h.sessions.VerifySession(raw); err == nil {
			cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
			defer cancel()

			if err := h.revoker.Revoke(cctx, claims.JTI, claims.Remaining()); err != nil {
				slog.ErrorContext(ctx.Request.Context(), "revoke session failed", "err", err, "jti", claims.JTI)
			}
		}
	}

	h.clearSessionCookie(ctx)

	ctx.Redirect(http.StatusSeeOther, "/login?logout=1")
}

func renderLogin(ctx *gin.Context, status int, errMsg, notice, username string) {
	render(ctx, status, tmplLogin, "Log in", gin.H{
		"Error":    errMsg,
		"Notice":   notice,
		"Username": username,
	})
}

func renderRegister(ctx *gin.Context, status int, errMsg, username string, fieldErrors map[string]string) {
	if fieldErrors == nil {
		fieldErrors = map[string]string{}
	}

	render(ctx, status, tmplRegister, "Register", gin.H{
		"Error":       errMsg,
		"Username":    username,
		"FieldErrors": fieldErrors,
	})
}

func (h *AuthHandler) setSessionCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		middlewares.SessionCookie,
		raw,
		maxAge,
		"/",
		"",
		h.secureCookie,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearSessionCookie(ctx *gin.Context) {
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		middlewares.SessionCookie,
		"",
		-1,
		"/",
		"",
		h.secureCookie,
		true,
	)
}
