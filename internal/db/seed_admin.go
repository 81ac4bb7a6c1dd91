package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/claimdesk/internal/domain/user"
	"github.com/geocoder89/claimdesk/internal/security"
)

type AdminUserStore interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)
}

// EnsureAdminUser creates the ROLE_ADMIN account once. It is a no-op when no
// credentials are configured or the username already exists.
func EnsureAdminUser(ctx context.Context, users AdminUserStore, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	_, err := users.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}

	if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("lookup admin: %w", err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	u, err := users.Create(ctx, user.New(username, hash, user.RoleAdmin))
	if err != nil {
		// another instance seeded it first
		if errors.Is(err, user.ErrUsernameTaken) {
			return nil
		}
		return fmt.Errorf("create admin: %w", err)
	}

	slog.InfoContext(ctx, "admin user seeded", "user_id", u.ID, "username", u.Username)

	return nil
}
