// Package session tracks revoked session tokens so logout takes effect
// before a token's natural expiry.
package session

import (
	"context"
	"time"
)

type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
