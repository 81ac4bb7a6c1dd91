package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/claimdesk/internal/domain/user"
)

type UsersRepo struct {
	mu         sync.RWMutex
	items      map[string]user.User // id -> user
	byUsername map[string]string    // username -> id
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:      make(map[string]user.User),
		byUsername: make(map[string]string),
	}
}

func (r *UsersRepo) Create(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[u.Username]; taken {
		return user.User{}, user.ErrUsernameTaken
	}

	r.items[u.ID] = u
	r.byUsername[u.Username] = u.ID

	return u, nil
}

func (r *UsersRepo) GetByUsername(_ context.Context, username string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	return r.items[id], nil
}
