package service

import "github.com/geocoder89/claimdesk/internal/actorctx"

// Identity is the authenticated caller. It is passed explicitly into every
// mutating workflow call.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

func (i Identity) IsZero() bool {
	return i.UserID == ""
}

func IdentityFromActor(a actorctx.Actor) Identity {
	return Identity{UserID: a.UserID, Username: a.Username, Role: a.Role}
}
