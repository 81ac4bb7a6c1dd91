package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/geocoder89/claimdesk/internal/domain/claim"
	"github.com/geocoder89/claimdesk/internal/domain/user"
	"github.com/geocoder89/claimdesk/internal/observability"
	"github.com/geocoder89/claimdesk/internal/repo/memory"
	"github.com/geocoder89/claimdesk/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFields() claim.Fields {
	return claim.Fields{
		Description:   "office visit",
		DiagnosisCode: "J20.9",
		ProcedureCode: "99213",
		ChargeAmount:  150,
		ProviderName:  "Downtown Clinic",
	}
}

func TestAuthenticator_RegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	prom := observability.NewProm(prometheus.NewRegistry())
	a := service.NewAuthenticator(memory.NewUsersRepo(), prom)

	u, err := a.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.NotEqual(t, "pw1", u.PasswordHash)

	_, err = a.Register(ctx, "alice", "another")
	assert.ErrorIs(t, err, service.ErrDuplicateUsername)

	id, err := a.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, service.Identity{UserID: u.ID, Username: "alice", Role: user.RoleUser}, id)

	_, err = a.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	_, err = a.Authenticate(ctx, "nobody", "pw1")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.AuthAttempts.WithLabelValues("register", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.AuthAttempts.WithLabelValues("register", "duplicate")))
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.AuthAttempts.WithLabelValues("login", "rejected")))
}

func TestAuthenticator_Validation(t *testing.T) {
	a := service.NewAuthenticator(memory.NewUsersRepo(), nil)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "pw"},
		{"blank username", "   ", "pw"},
		{"empty password", "alice", ""},
		{"long username", string(make([]byte, 51)), "pw"},
		{"long password", "alice", string(make([]byte, 73))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Register(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, service.ErrValidation)

			_, err = a.Authenticate(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, service.ErrValidation)
		})
	}
}

type racyUsers struct {
	*memory.UsersRepo
}

// GetByUsername never finds anyone, so only the store's unique check can
// catch the duplicate.
func (r racyUsers) GetByUsername(context.Context, string) (user.User, error) {
	return user.User{}, user.ErrNotFound
}

func TestAuthenticator_RegisterRaceMapsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	a := service.NewAuthenticator(racyUsers{memory.NewUsersRepo()}, nil)

	_, err := a.Register(ctx, "bob", "pw")
	require.NoError(t, err)

	_, err = a.Register(ctx, "bob", "pw")
	assert.ErrorIs(t, err, service.ErrDuplicateUsername)
}

type failingUsers struct{}

func (failingUsers) Create(context.Context, user.User) (user.User, error) {
	return user.User{}, errors.New("db down")
}

func (failingUsers) GetByUsername(context.Context, string) (user.User, error) {
	return user.User{}, errors.New("db down")
}

func TestAuthenticator_StoreErrorsAreNotCredentialErrors(t *testing.T) {
	a := service.NewAuthenticator(failingUsers{}, nil)

	_, err := a.Register(context.Background(), "alice", "pw1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrDuplicateUsername)

	_, err = a.Authenticate(context.Background(), "alice", "pw1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestClaimWorkflow_CreateAlwaysPending(t *testing.T) {
	ctx := context.Background()
	w := service.NewClaimWorkflow(memory.NewClaimsRepo(), claim.PolicyOpen, nil)
	owner := service.Identity{UserID: "u1", Username: "alice", Role: user.RoleUser}

	c, err := w.CreateClaim(ctx, owner, validFields())
	require.NoError(t, err)
	assert.Equal(t, claim.StatusPending, c.Status)
	assert.Equal(t, "u1", c.OwnerUserID)

	_, err = w.CreateClaim(ctx, service.Identity{}, validFields())
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	f := validFields()
	f.ProviderName = ""
	_, err = w.CreateClaim(ctx, owner, f)
	assert.ErrorIs(t, err, claim.ErrValidation)
	assert.Contains(t, err.Error(), "providerName")

	all, err := w.ListClaims(ctx, claim.ScopeAll())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestClaimWorkflow_SetStatusOpenPolicy(t *testing.T) {
	ctx := context.Background()
	prom := observability.NewProm(prometheus.NewRegistry())
	w := service.NewClaimWorkflow(memory.NewClaimsRepo(), claim.PolicyOpen, prom)
	actor := service.Identity{UserID: "u1"}

	c, err := w.CreateClaim(ctx, actor, validFields())
	require.NoError(t, err)

	d, err := w.SetStatus(ctx, actor, c.ID, claim.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, claim.StatusApproved, d.Claim.Status)
	assert.Equal(t, claim.StatusPending, d.Previous)

	d, err = w.SetStatus(ctx, actor, c.ID, claim.StatusDeclined)
	require.NoError(t, err)
	assert.Equal(t, claim.StatusDeclined, d.Claim.Status)
	assert.Equal(t, claim.StatusApproved, d.Previous)

	got, err := w.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.StatusDeclined, got.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.ClaimTransitions.WithLabelValues("Pending", "Approved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.ClaimTransitions.WithLabelValues("Approved", "Declined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.ClaimsCreated))
}

func TestClaimWorkflow_SetStatusErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.NewClaimsRepo()
	w := service.NewClaimWorkflow(store, claim.PolicyOpen, nil)
	actor := service.Identity{UserID: "u1"}

	c, err := w.CreateClaim(ctx, actor, validFields())
	require.NoError(t, err)

	_, err = w.SetStatus(ctx, actor, "missing", claim.StatusApproved)
	assert.ErrorIs(t, err, claim.ErrNotFound)

	_, err = w.SetStatus(ctx, actor, c.ID, claim.Status("Escalated"))
	assert.ErrorIs(t, err, claim.ErrInvalidStatus)

	_, err = w.SetStatus(ctx, service.Identity{}, c.ID, claim.StatusApproved)
	assert.ErrorIs(t, err, service.ErrUnauthenticated)

	all, err := store.List(ctx, claim.ScopeAll())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, claim.StatusPending, all[0].Status, "failed calls must not mutate the store")
}

func TestClaimWorkflow_StrictPolicy(t *testing.T) {
	ctx := context.Background()
	w := service.NewClaimWorkflow(memory.NewClaimsRepo(), claim.PolicyStrict, nil)
	actor := service.Identity{UserID: "u1"}

	c, err := w.CreateClaim(ctx, actor, validFields())
	require.NoError(t, err)

	_, err = w.SetStatus(ctx, actor, c.ID, claim.StatusPending)
	assert.ErrorIs(t, err, claim.ErrInvalidTransition)

	_, err = w.SetStatus(ctx, actor, c.ID, claim.StatusApproved)
	require.NoError(t, err)

	_, err = w.SetStatus(ctx, actor, c.ID, claim.StatusDeclined)
	assert.ErrorIs(t, err, claim.ErrInvalidTransition)

	_, err = w.SetStatus(ctx, actor, "missing", claim.StatusDeclined)
	assert.ErrorIs(t, err, claim.ErrNotFound)

	got, err := w.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.StatusApproved, got.Status)
}

func TestClaimWorkflow_StrictPolicyConcurrentDecisions(t *testing.T) {
	ctx := context.Background()
	w := service.NewClaimWorkflow(memory.NewClaimsRepo(), claim.PolicyStrict, nil)
	actor := service.Identity{UserID: "u1"}

	c, err := w.CreateClaim(ctx, actor, validFields())
	require.NoError(t, err)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			to := claim.StatusApproved
			if i%2 == 1 {
				to = claim.StatusDeclined
			}
			if _, err := w.SetStatus(ctx, actor, c.ID, to); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, oks, "exactly one decision wins under the strict policy")
}

func TestClaimWorkflow_ListScopes(t *testing.T) {
	ctx := context.Background()
	w := service.NewClaimWorkflow(memory.NewClaimsRepo(), "", nil)
	assert.Equal(t, claim.PolicyOpen, w.Policy())

	u1 := service.Identity{UserID: "u1"}
	u2 := service.Identity{UserID: "u2"}

	var mine []string
	for i, owner := range []service.Identity{u1, u2, u1, u2, u1} {
		f := validFields()
		f.Description = string(rune('a' + i))
		c, err := w.CreateClaim(ctx, owner, f)
		require.NoError(t, err)
		if owner == u1 {
			mine = append(mine, c.ID)
		}
	}

	got, err := w.ListClaims(ctx, claim.OwnedBy("u1"))
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, c := range got {
		assert.Equal(t, "u1", c.OwnerUserID)
		ids = append(ids, c.ID)
	}
	assert.Equal(t, mine, ids)

	all, err := w.ListClaims(ctx, claim.ScopeAll())
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

// alice registers, logs in, files a claim, sees it pending, approves it and
// sees it approved.
func TestScenario_AliceFilesAndApprovesAClaim(t *testing.T) {
	ctx := context.Background()
	authn := service.NewAuthenticator(memory.NewUsersRepo(), nil)
	w := service.NewClaimWorkflow(memory.NewClaimsRepo(), claim.PolicyOpen, nil)

	_, err := authn.Register(ctx, "alice", "pw1")
	require.NoError(t, err)

	alice, err := authn.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)

	c, err := w.CreateClaim(ctx, alice, validFields())
	require.NoError(t, err)

	list, err := w.ListClaims(ctx, claim.OwnedBy(alice.UserID))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, claim.StatusPending, list[0].Status)

	_, err = w.SetStatus(ctx, alice, c.ID, claim.StatusApproved)
	require.NoError(t, err)

	list, err = w.ListClaims(ctx, claim.OwnedBy(alice.UserID))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, claim.StatusApproved, list[0].Status)
}
