package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTypeSession = "session"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrInvalidTokenType = errors.New("invalid token type")
)

type SessionClaims struct {
	UserID    string `json:"sub"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret     []byte
	sessionTTL time.Duration
}

func NewManager(secret string, sessionTTL time.Duration) *Manager {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}

	return &Manager{
		secret:     []byte(secret),
		sessionTTL: sessionTTL,
	}
}

// IssueSession signs a session token for an authenticated user.
func (m *Manager) IssueSession(userID, username, role string) (raw string, jti string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	jti = uuid.NewString()
	expiresAt = now.Add(m.sessionTTL)

	claims := SessionClaims{
		UserID:    userID,
		Username:  username,
		Role:      role,
		TokenType: tokenTypeSession,
		JTI:       jti,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	raw, err = token.SignedString(m.secret)

	return
}

func (m *Manager) ParseAndValidate(tokenStr string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)

	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (m *Manager) VerifySession(tokenStr string) (*SessionClaims, error) {
	claims, err := m.ParseAndValidate(tokenStr)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != tokenTypeSession {
		return nil, ErrInvalidTokenType
	}

	if claims.JTI == "" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Remaining reports how long the token stays valid. Zero when expired.
func (c *SessionClaims) Remaining() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}

	d := time.Until(c.ExpiresAt.Time)

	if d < 0 {
		return 0
	}

	return d
}
