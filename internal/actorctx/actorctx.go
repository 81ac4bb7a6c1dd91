// Package actorctx carries the authenticated actor on a context.Context so
// log records can be attributed without threading ids through every call.
package actorctx

import "context"

type ctxKey struct{}

type Actor struct {
	UserID   string
	Username string
	Role     string
}

func With(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func From(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)

	return a, ok && a.UserID != ""
}

func UserIDFrom(ctx context.Context) (string, bool) {
	a, ok := From(ctx)

	return a.UserID, ok
}
