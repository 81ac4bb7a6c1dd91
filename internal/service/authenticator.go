package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geocoder89/claimdesk/internal/domain/user"
	"github.com/geocoder89/claimdesk/internal/observability"
	"github.com/geocoder89/claimdesk/internal/security"
)

var (
	ErrDuplicateUsername  = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

const (
	maxUsernameLen = 50
	// bcrypt only reads the first 72 bytes
	maxPasswordLen = 72
)

type UserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

type Authenticator struct {
	users UserStore
	prom  *observability.Prom
}

func NewAuthenticator(users UserStore, prom *observability.Prom) *Authenticator {
	return &Authenticator{users: users, prom: prom}
}

// Register creates a ROLE_USER account. The returned user's ID is the new
// account identifier.
func (a *Authenticator) Register(ctx context.Context, username, rawPassword string) (user.User, error) {
	if err := validateCredentials(username, rawPassword); err != nil {
		a.observe("register", "invalid")
		return user.User{}, err
	}

	// fast path; the unique index still decides races
	if _, err := a.users.GetByUsername(ctx, username); err == nil {
		a.observe("register", "duplicate")
		return user.User{}, ErrDuplicateUsername
	} else if !errors.Is(err, user.ErrNotFound) {
		a.observe("register", "error")
		return user.User{}, fmt.Errorf("lookup username: %w", err)
	}

	hash, err := security.HashPassword(rawPassword)
	if err != nil {
		a.observe("register", "error")
		return user.User{}, fmt.Errorf("hash password: %w", err)
	}

	u, err := a.users.Create(ctx, user.New(username, hash, user.RoleUser))
	if err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			a.observe("register", "duplicate")
			return user.User{}, ErrDuplicateUsername
		}
		a.observe("register", "error")
		return user.User{}, err
	}

	a.observe("register", "ok")
	slog.InfoContext(ctx, "user registered", "user_id", u.ID, "username", u.Username)

	return u, nil
}

// Authenticate checks a username/password pair. A missing user and a wrong
// password are indistinguishable to the caller.
func (a *Authenticator) Authenticate(ctx context.Context, username, rawPassword string) (Identity, error) {
	if err := validateCredentials(username, rawPassword); err != nil {
		a.observe("login", "invalid")
		return Identity{}, err
	}

	u, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			a.observe("login", "rejected")
			return Identity{}, ErrInvalidCredentials
		}
		a.observe("login", "error")
		return Identity{}, fmt.Errorf("lookup username: %w", err)
	}

	if err := security.CheckPassword(u.PasswordHash, rawPassword); err != nil {
		if errors.Is(err, security.ErrPasswordMismatch) {
			a.observe("login", "rejected")
			return Identity{}, ErrInvalidCredentials
		}
		a.observe("login", "error")
		return Identity{}, fmt.Errorf("check password: %w", err)
	}

	a.observe("login", "ok")

	return Identity{UserID: u.ID, Username: u.Username, Role: u.Role}, nil
}

func validateCredentials(username, rawPassword string) error {
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if len(username) > maxUsernameLen {
		return fmt.Errorf("%w: username must be at most %d characters", ErrValidation, maxUsernameLen)
	}
	if rawPassword == "" {
		return fmt.Errorf("%w: password is required", ErrValidation)
	}
	if len(rawPassword) > maxPasswordLen {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, maxPasswordLen)
	}
	return nil
}

func (a *Authenticator) observe(op, result string) {
	if a.prom == nil {
		return
	}
	a.prom.AuthAttempts.WithLabelValues(op, result).Inc()
}
