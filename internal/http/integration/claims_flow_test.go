package integration_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/geocoder89/claimdesk/internal/auth"
	"github.com/geocoder89/claimdesk/internal/db"
	"github.com/geocoder89/claimdesk/internal/domain/claim"
	"github.com/geocoder89/claimdesk/internal/domain/user"
	apphttp "github.com/geocoder89/claimdesk/internal/http"
	"github.com/geocoder89/claimdesk/internal/http/middlewares"
	"github.com/geocoder89/claimdesk/internal/notifications"
	"github.com/geocoder89/claimdesk/internal/observability"
	"github.com/geocoder89/claimdesk/internal/repo/memory"
	"github.com/geocoder89/claimdesk/internal/service"
	"github.com/geocoder89/claimdesk/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approveLink = regexp.MustCompile(`/claim/([0-9a-f-]{36})/approve`)

type testApp struct {
	server *httptest.Server
	users  *memory.UsersRepo
}

func newTestApp(t *testing.T, reviewerRole string, policy claim.Policy) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	users := memory.NewUsersRepo()
	claims := memory.NewClaimsRepo()
	prom := observability.NewProm(prometheus.NewRegistry())

	router := apphttp.NewRouter(apphttp.RouterDeps{
		Env:          "test",
		Accounts:     service.NewAuthenticator(users, prom),
		Claims:       service.NewClaimWorkflow(claims, policy, prom),
		Sessions:     auth.NewManager("test-secret-key", time.Hour),
		Revoker:      session.NewMemoryRevoker(),
		Notifier:     notifications.NewProtectedNotifier(notifications.NewLogNotifier(nil), notifications.ProtectedNotifierConfig{}),
		Prom:         prom,
		ReviewerRole: reviewerRole,
		LoginPerMin:  100,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testApp{server: srv, users: users}
}

// client keeps cookies and does not follow redirects, so tests can assert
// on each hop.
func (a *testApp) client(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (a *testApp) post(t *testing.T, c *http.Client, path string, form url.Values) (*http.Response, string) {
	t.Helper()

	resp, err := c.PostForm(a.server.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func (a *testApp) get(t *testing.T, c *http.Client, path string) (*http.Response, string) {
	t.Helper()

	resp, err := c.Get(a.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, string(body)
}

func (a *testApp) login(t *testing.T, c *http.Client, username, password string) {
	t.Helper()

	resp, _ := a.post(t, c, "/login", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/claims", resp.Header.Get("Location"))
}

func (a *testApp) fileClaim(t *testing.T, c *http.Client, description string) {
	t.Helper()

	resp, _ := a.post(t, c, "/claim/save", url.Values{
		"description":   {description},
		"diagnosisCode": {"S52.5"},
		"procedureCode": {"73100"},
		"chargeAmount":  {"310.25"},
		"providerName":  {"Ortho Partners"},
	})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestAliceRegistersFilesAndApprovesAClaim(t *testing.T) {
	app := newTestApp(t, "", claim.PolicyOpen)
	c := app.client(t)

	// anonymous visitors land on the login page
	resp, _ := app.get(t, c, "/claims")
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = app.post(t, c, "/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?registered=1", resp.Header.Get("Location"))

	resp, body := app.post(t, c, "/register", url.Values{"username": {"alice"}, "password": {"pw2"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "Username is already taken.")

	resp, body = app.post(t, c, "/login", url.Values{"username": {"alice"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password.")

	app.login(t, c, "alice", "pw1")

	resp, body = app.get(t, c, "/claim/create")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `action="/claim/save"`)

	app.fileClaim(t, c, "wrist x-ray")

	resp, body = app.get(t, c, "/claims?scope=mine")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "wrist x-ray")
	assert.Contains(t, body, "status-pending")
	assert.Contains(t, body, "310.25")

	m := approveLink.FindStringSubmatch(body)
	require.Len(t, m, 2, "approve button missing")
	claimID := m[1]

	resp, _ = app.post(t, c, "/claim/"+claimID+"/approve", url.Values{"scope": {"mine"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/claims?scope=mine", resp.Header.Get("Location"))

	_, body = app.get(t, c, "/dashboard?scope=mine")
	assert.Contains(t, body, "status-approved")
	assert.NotContains(t, body, "status-pending")

	// last write wins under the open policy
	resp, _ = app.post(t, c, "/claim/"+claimID+"/decline", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	_, body = app.get(t, c, "/claims")
	assert.Contains(t, body, "status-declined")

	resp, _ = app.post(t, c, "/claim/00000000-0000-0000-0000-000000000000/approve", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, body = app.get(t, c, "/metrics")
	assert.Contains(t, body, "claimdesk_claims_created_total 1")
}

func TestLogoutInvalidatesTheSessionToken(t *testing.T) {
	app := newTestApp(t, "", claim.PolicyOpen)
	c := app.client(t)

	_, _ = app.post(t, c, "/register", url.Values{"username": {"bob"}, "password": {"pw"}})
	app.login(t, c, "bob", "pw")

	u, err := url.Parse(app.server.URL)
	require.NoError(t, err)

	var stolen *http.Cookie
	for _, ck := range c.Jar.Cookies(u) {
		if ck.Name == middlewares.SessionCookie {
			stolen = ck
		}
	}
	require.NotNil(t, stolen)

	resp, _ := app.get(t, c, "/logout")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// replay the old token after logout
	req, err := http.NewRequest(http.MethodGet, app.server.URL+"/claims", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: middlewares.SessionCookie, Value: stolen.Value})

	noJar := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err = noJar.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestReviewerRoleGatesDecisions(t *testing.T) {
	app := newTestApp(t, user.RoleAdmin, claim.PolicyStrict)
	require.NoError(t, db.EnsureAdminUser(context.Background(), app.users, "root", "rootpw"))

	alice := app.client(t)
	_, _ = app.post(t, alice, "/register", url.Values{"username": {"alice"}, "password": {"pw1"}})
	app.login(t, alice, "alice", "pw1")
	app.fileClaim(t, alice, "knee brace")

	admin := app.client(t)
	app.login(t, admin, "root", "rootpw")

	_, body := app.get(t, admin, "/claims")
	m := approveLink.FindStringSubmatch(body)
	require.Len(t, m, 2)
	claimID := m[1]

	_, aliceView := app.get(t, alice, "/claims")
	assert.NotContains(t, aliceView, "/approve")

	resp, _ := app.post(t, alice, "/claim/"+claimID+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = app.post(t, admin, "/claim/"+claimID+"/decline", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// strict policy: a decided claim stays decided
	resp, body = app.post(t, admin, "/claim/"+claimID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "already been decided")
}
