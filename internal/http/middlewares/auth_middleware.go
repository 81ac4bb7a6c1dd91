package middlewares

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/geocoder89/claimdesk/internal/actorctx"
	"github.com/geocoder89/claimdesk/internal/auth"
	"github.com/geocoder89/claimdesk/internal/session"
	"github.com/gin-gonic/gin"
)

const SessionCookie = "claimdesk_session"

const LoginPath = "/login"

// Keep this small interface so tests can fake it easily.
type SessionVerifier interface {
	VerifySession(token string) (*auth.SessionClaims, error)
}

// PublicPaths is the allow-list of routes reachable without a session.
// Everything else requires one.
type PublicPaths struct {
	exact    map[string]bool
	prefixes []string
}

func NewPublicPaths(exact []string, prefixes []string) PublicPaths {
	p := PublicPaths{exact: make(map[string]bool, len(exact)), prefixes: prefixes}
	for _, e := range exact {
		p.exact[e] = true
	}
	return p
}

func DefaultPublicPaths() PublicPaths {
	return NewPublicPaths(
		[]string{"/login", "/register", "/healthz", "/readyz", "/metrics"},
		[]string{"/static/"},
	)
}

func (p PublicPaths) IsPublic(path string) bool {
	if p.exact[path] {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

type AuthMiddleware struct {
	sessions SessionVerifier
	revoked  session.Revoker
	public   PublicPaths
}

func NewAuthMiddleware(sessions SessionVerifier, revoked session.Revoker, public PublicPaths) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions, revoked: revoked, public: public}
}

// RequireSession resolves the session cookie into an identity. Public paths
// pass through either way; other requests without a live session are sent
// to the login page.
func (m *AuthMiddleware) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		public := m.public.IsPublic(c.Request.URL.Path)

		claims, err := m.resolve(c)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "session revocation check failed",
				"err", err, "request_id", RequestIDFromContext(c))
			abortWithPage(c, http.StatusServiceUnavailable, "session_unavailable", "Sessions are temporarily unavailable.")
			return
		}

		if claims == nil {
			if public {
				c.Next()
				return
			}
			redirectToLogin(c)
			return
		}

		c.Set(CtxUserID, claims.UserID)
		c.Set(CtxUsername, claims.Username)
		c.Set(CtxRole, claims.Role)

		actor := actorctx.Actor{UserID: claims.UserID, Username: claims.Username, Role: claims.Role}
		c.Request = c.Request.WithContext(actorctx.With(c.Request.Context(), actor))

		c.Next()
	}
}

// resolve returns nil claims for a missing, invalid, expired or revoked
// cookie. An error means revocation could not be checked.
func (m *AuthMiddleware) resolve(c *gin.Context) (*auth.SessionClaims, error) {
	raw, err := c.Cookie(SessionCookie)
	if err != nil || raw == "" {
		return nil, nil
	}

	claims, err := m.sessions.VerifySession(raw)
	if err != nil {
		return nil, nil
	}

	if m.revoked != nil {
		revoked, err := m.revoked.IsRevoked(c.Request.Context(), claims.JTI)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, nil
		}
	}

	return claims, nil
}

func redirectToLogin(c *gin.Context) {
	status := http.StatusFound
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		status = http.StatusSeeOther
	}
	c.Redirect(status, LoginPath)
	c.Abort()
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	return stringFromContext(c, CtxUserID)
}

func RoleFromContext(c *gin.Context) (string, bool) {
	return stringFromContext(c, CtxRole)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(c *gin.Context) (actorctx.Actor, bool) {
	id, ok := UserIDFromContext(c)
	if !ok {
		return actorctx.Actor{}, false
	}
	username, _ := stringFromContext(c, CtxUsername)
	role, _ := RoleFromContext(c)

	return actorctx.Actor{UserID: id, Username: username, Role: role}, true
}

func stringFromContext(c *gin.Context, key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
