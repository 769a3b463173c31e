package sessions_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/kvstore/memstore"
	"github.com/jrsteele09/go-tenant-session/selection"
	"github.com/jrsteele09/go-tenant-session/sessions"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/token"
	"github.com/jrsteele09/go-tenant-session/token/store"
	"github.com/jrsteele09/go-tenant-session/token/tokentest"
	"github.com/jrsteele09/go-tenant-session/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	config.EnvVars
	config.Session
	defaultTenant string
	logoutURL     string
}

func (c testConfig) GetDefaultTenantID() string { return c.defaultTenant }
func (c testConfig) GetLogoutURL() string       { return c.logoutURL }

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type testFixture struct {
	server      *httptest.Server
	kv          *memstore.MemStore
	coordinator *sessions.Coordinator

	// tokens holds one access token per tenant id.
	tokens map[string]string

	mu        sync.Mutex
	current   string
	loginTid  string
	tenants   []tenants.Tenant
	calls     map[string]int
	bearers   map[string][]string
	variables map[string][]map[string]any
	overrides map[string]func(vars map[string]any) string

	logouts      atomic.Int32
	logoutStatus atomic.Int32
	holdSwitch   sync.RWMutex
	switchSeen   chan struct{}
}

// setupTestFixture starts a fake dashboard backend with tenants A and B,
// workspace W1 in A, W2 in B, project P1 in W1 and P2 in W2.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		kv:         memstore.New(),
		tokens:     map[string]string{},
		tenants:    []tenants.Tenant{{ID: "A", Name: "Acme"}, {ID: "B", Name: "Bravo"}},
		calls:      map[string]int{},
		bearers:    map[string][]string{},
		variables:  map[string][]map[string]any{},
		overrides:  map[string]func(map[string]any) string{},
		switchSeen: make(chan struct{}, 8),
	}
	for _, tid := range []string{"A", "B", "C", "D"} {
		f.tokens[tid] = tokentest.ForTenant(t, tid)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		var req gqlRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		op := operationName(req.Query)

		f.mu.Lock()
		f.calls[op]++
		f.bearers[op] = append(f.bearers[op], strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		f.variables[op] = append(f.variables[op], req.Variables)
		override := f.overrides[op]
		f.mu.Unlock()

		if op == "SwitchTenants" {
			f.switchSeen <- struct{}{}
			f.holdSwitch.RLock()
			f.holdSwitch.RUnlock()
		}

		w.Header().Set("Content-Type", "application/json")
		if override != nil {
			_, _ = w.Write([]byte(override(req.Variables)))
			return
		}
		_, _ = w.Write([]byte(f.respond(op, req.Variables)))
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		status := int(f.logoutStatus.Load())
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	client, err := transport.New(f.server.URL+"/graphql", config.Transport{}, transport.WithMaxRetries(0))
	require.NoError(t, err)

	cfg := testConfig{defaultTenant: "D", logoutURL: f.server.URL + "/logout"}
	f.coordinator = sessions.New(cfg, f.kv, client)
	return f
}

func operationName(query string) string {
	fields := strings.Fields(query)
	if len(fields) < 2 {
		return ""
	}
	name, _, _ := strings.Cut(fields[1], "(")
	return name
}

func (f *testFixture) respond(op string, vars map[string]any) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch op {
	case "Refresh":
		return fmt.Sprintf(`{"data":{"refresh":{"success":true,"data":{"accessToken":%q,"refreshToken":"r-rotated"}}}}`, f.tokens[f.current])
	case "SwitchTenants":
		tid, _ := vars["tid"].(string)
		f.current = tid
		return fmt.Sprintf(`{"data":{"switchTenants":{"success":true,"data":{"accessToken":%q,"refreshToken":%q}}}}`, f.tokens[tid], "r-"+tid)
	case "GetUserProfileAssociations":
		return fmt.Sprintf(`{"body":{"singleResult":{"data":{"getUserProfileAssociations":%s}}}}`, strconv.Quote(f.associationsLocked()))
	case "CreateTenant":
		name, _ := vars["tenantName"].(string)
		f.tenants = append(f.tenants, tenants.Tenant{ID: "C", Name: name})
		return `{"data":{"createTenant":"{\"success\":true}"}}`
	case "CreateWorkspace":
		return `{"data":{"createWorkspace":{"success":true}}}`
	case "CreateProject":
		return `{"data":{"createProject":{"success":true}}}`
	case "ProjectDetails":
		return `{"data":{"projectDetails":{"id":"P1","name":"api","repoLink":"https://git.example.com/api","projectType":"BACKEND","defaultBranch":"main"}}}`
	case "UserLogin", "UserSignup":
		field := "userLogin"
		if op == "UserSignup" {
			field = "userSignup"
		}
		f.current = f.loginTid
		return fmt.Sprintf(`{"data":{%q:{"success":true,"data":{"accessToken":%q,"refreshToken":"r-login"}}}}`, field, f.tokens[f.loginTid])
	case "GoogleSignupOrLogin":
		f.current = f.loginTid
		return fmt.Sprintf(`{"data":{"googleSignupOrLogin":{"success":true,"accessToken":%q,"refreshToken":"r-google","user":{"id":"g-1","name":"Grace","email":"grace@example.com","profileImage":"https://img.example.com/g.png"}}}}`, f.tokens[f.loginTid])
	case "UserOnboardingComplete":
		name, _ := vars["tenantName"].(string)
		f.tenants = append(f.tenants, tenants.Tenant{ID: "A", Name: name})
		f.current = "A"
		return `{"data":{"userOnboardingComplete":"success"}}`
	}
	return `{"errors":[{"message":"unknown operation"}]}`
}

func (f *testFixture) associationsLocked() string {
	var b strings.Builder
	b.WriteString(`{"entities":{"tenants":{`)
	for i, tn := range f.tenants {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `%q:{"id":%q,"name":%q}`, tn.ID, tn.ID, tn.Name)
	}
	b.WriteString(`},"workspaces":{"W1":{"id":"W1","name":"Core","orgId":"A"},"W2":{"id":"W2","name":"Labs","orgId":"B"}},`)
	b.WriteString(`"projects":{"P1":{"id":"P1","name":"api","workspaceId":"W1"},"P2":{"id":"P2","name":"web","workspaceId":"W2"}}},`)
	b.WriteString(`"defaultTenantId":"B","name":"Ada Lovelace","email":"ada@example.com","profileImage":"https://img.example.com/ada.png"}`)
	return b.String()
}

func (f *testFixture) override(op string, fn func(vars map[string]any) string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[op] = fn
}

func (f *testFixture) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *testFixture) bearersFor(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bearers[op]...)
}

func (f *testFixture) setLoginTenant(tid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginTid = tid
}

// withoutTenants empties the backend's tenant list, as for a new account.
func (f *testFixture) withoutTenants() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tenants = nil
}

// holdNextAssociations blocks the next associations request until release
// is called. The returned channel fires when that request arrives.
func (f *testFixture) holdNextAssociations(t *testing.T) (<-chan struct{}, func()) {
	t.Helper()
	var n atomic.Int32
	arrived := make(chan struct{}, 1)
	gate := make(chan struct{})
	f.override("GetUserProfileAssociations", func(vars map[string]any) string {
		if n.Add(1) == 1 {
			arrived <- struct{}{}
			<-gate
		}
		return f.respond("GetUserProfileAssociations", vars)
	})

	var once sync.Once
	release := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(release)
	return arrived, release
}

// signIn persists a session scoped to tid, as a previous run would have.
func (f *testFixture) signIn(t *testing.T, tid string) {
	t.Helper()
	f.mu.Lock()
	f.current = tid
	f.mu.Unlock()
	store.New(f.kv).Save(context.Background(), token.Pair{AccessToken: f.tokens[tid], RefreshToken: "r-" + tid})
}

func (f *testFixture) initialize(t *testing.T) sessions.State {
	t.Helper()
	require.NoError(t, f.coordinator.InitializeAuth(context.Background()))
	return f.coordinator.State()
}

func persisted(t *testing.T, f *testFixture, key string) (string, bool) {
	t.Helper()
	v, ok, err := f.kv.Get(context.Background(), key)
	require.NoError(t, err)
	return v, ok
}

func TestInitializeWithoutSession(t *testing.T) {
	f := setupTestFixture(t)

	st := f.initialize(t)
	require.True(t, st.Initialized)
	require.False(t, st.Loading)
	require.False(t, st.IsAuthenticated())
	require.Nil(t, st.User)
	require.Nil(t, st.Claims)
	require.Equal(t, selection.Selection{}, st.Selection)
	require.Zero(t, f.callCount("GetUserProfileAssociations"))
}

func TestClaimBeatsDefaultWithoutSwitch(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")

	st := f.initialize(t)
	require.True(t, st.IsAuthenticated())
	require.Equal(t, "A", st.Selection.TenantID)
	require.Equal(t, "A", st.ClaimTenantID())
	require.Zero(t, f.callCount("SwitchTenants"))
	require.Equal(t, 1, f.callCount("GetUserProfileAssociations"))

	require.Equal(t, "Ada Lovelace", st.User.Name)
	require.Equal(t, "https://img.example.com/ada.png", st.User.ProfileImageURL)

	tn, ok := f.coordinator.CurrentTenant()
	require.True(t, ok)
	require.Equal(t, "Acme", tn.Name)
}

func TestPersistedTenantIsRestoredBySwitch(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	require.NoError(t, f.kv.Set(context.Background(), selection.TenantKey, "B"))
	require.NoError(t, f.kv.Set(context.Background(), selection.WorkspaceKey, "W2"))

	st := f.initialize(t)
	require.Equal(t, 1, f.callCount("SwitchTenants"))
	require.Equal(t, []string{"r-A"}, f.bearersFor("SwitchTenants"))
	require.Equal(t, []string{f.tokens["A"], f.tokens["B"]}, f.bearersFor("GetUserProfileAssociations"))
	require.Equal(t, "B", st.ClaimTenantID())
	require.Equal(t, selection.Selection{TenantID: "B", WorkspaceID: "W2"}, st.Selection)
	require.False(t, st.Switching)

	// The restore runs once per cold start.
	require.NoError(t, f.coordinator.LoadInitial(context.Background()))
	require.Equal(t, 1, f.callCount("SwitchTenants"))
	require.Equal(t, 2, f.callCount("GetUserProfileAssociations"))
}

func TestFailedRestoreStaysInClaimTenant(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	require.NoError(t, f.kv.Set(context.Background(), selection.TenantKey, "B"))
	f.override("SwitchTenants", func(map[string]any) string {
		return `{"errors":[{"message":"tenant suspended"}]}`
	})

	st := f.initialize(t)
	require.Equal(t, "A", st.ClaimTenantID())
	require.Equal(t, "A", st.Selection.TenantID)
	require.NotNil(t, st.Associations)
	require.Contains(t, st.Error, "tenant suspended")
	require.False(t, st.Switching)

	v, _ := persisted(t, f, selection.TenantKey)
	require.Equal(t, "A", v)
}

func TestSelectOrgSameTenantIsNoop(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	before := f.callCount("GetUserProfileAssociations")

	require.NoError(t, f.coordinator.SelectOrg(context.Background(), "A"))
	require.NoError(t, f.coordinator.SelectOrg(context.Background(), "A"))
	require.Zero(t, f.callCount("SwitchTenants"))
	require.Equal(t, before, f.callCount("GetUserProfileAssociations"))
}

func TestSelectOrgSwitchesAndRefetches(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()

	require.NoError(t, f.coordinator.SelectOrg(ctx, "B"))
	st := f.coordinator.State()
	require.Equal(t, "B", st.ClaimTenantID())
	require.Equal(t, "B", st.Selection.TenantID)
	require.Equal(t, "r-B", st.Tokens.RefreshToken)
	require.Equal(t, 1, f.callCount("SwitchTenants"))
	require.Equal(t, f.tokens["B"], f.bearersFor("GetUserProfileAssociations")[1])

	v, _ := persisted(t, f, selection.TenantKey)
	require.Equal(t, "B", v)

	// Back to A: a fresh switch, since the token is now scoped to B.
	require.NoError(t, f.coordinator.SelectOrg(ctx, "A"))
	require.Equal(t, "A", f.coordinator.State().ClaimTenantID())
	require.Equal(t, 2, f.callCount("SwitchTenants"))
}

func TestSelectOrgUnknownTenant(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)

	err := f.coordinator.SelectOrg(context.Background(), "Z")
	require.ErrorIs(t, err, errors.ErrTenantNotFound)
	require.Zero(t, f.callCount("SwitchTenants"))
}

func TestSelectOrgFailureLeavesSessionOnPreviousTenant(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	f.override("SwitchTenants", func(map[string]any) string {
		return `{"data":{"switchTenants":{"success":false}}}`
	})

	err := f.coordinator.SelectOrg(context.Background(), "B")
	require.ErrorIs(t, err, errors.ErrSwitchFailed)

	st := f.coordinator.State()
	require.Equal(t, "A", st.Selection.TenantID)
	require.Equal(t, "A", st.ClaimTenantID())
	require.Contains(t, st.Error, "Failed to switch tenant")
	require.False(t, st.Switching)

	f.coordinator.ClearError()
	require.Empty(t, f.coordinator.State().Error)
}

func TestTenantChangeClearsWorkspaceAndProject(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()

	f.coordinator.SelectWorkspace(ctx, "W1")
	sel := f.coordinator.SelectProject(ctx, "P1")
	require.Equal(t, selection.Selection{TenantID: "A", WorkspaceID: "W1", ProjectID: "P1"}, sel)

	require.NoError(t, f.coordinator.SelectOrg(ctx, "B"))
	require.Equal(t, selection.Selection{TenantID: "B"}, f.coordinator.State().Selection)

	_, ok := persisted(t, f, selection.WorkspaceKey)
	require.False(t, ok)
	_, ok = persisted(t, f, selection.ProjectKey)
	require.False(t, ok)
}

func TestConcurrentSelectOrgMakesOneSwitch(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()

	f.holdSwitch.Lock()
	done := make(chan error, 1)
	go func() {
		done <- f.coordinator.SelectOrg(ctx, "B")
	}()
	<-f.switchSeen

	require.True(t, f.coordinator.State().Switching)
	require.NoError(t, f.coordinator.SelectOrg(ctx, "B"))
	require.NoError(t, f.coordinator.RefreshAssociations(ctx))
	require.ErrorIs(t, f.coordinator.CreateTenant(ctx, "Charlie", tenants.TenantBusiness), errors.ErrSwitchInProgress)

	f.holdSwitch.Unlock()
	require.NoError(t, <-done)
	require.Equal(t, 1, f.callCount("SwitchTenants"))
	require.Equal(t, "B", f.coordinator.State().ClaimTenantID())
}

func TestLogoutDuringSwitchStaysLoggedOut(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()

	f.holdSwitch.Lock()
	done := make(chan error, 1)
	go func() {
		done <- f.coordinator.SelectOrg(ctx, "B")
	}()
	<-f.switchSeen

	require.NoError(t, f.coordinator.Logout(ctx))
	f.holdSwitch.Unlock()
	require.ErrorIs(t, <-done, errors.ErrNotAuthenticated)

	st := f.coordinator.State()
	require.False(t, st.IsAuthenticated())
	require.Nil(t, st.User)
	require.Nil(t, st.Claims)
	require.Nil(t, st.Associations)
	require.Equal(t, selection.Selection{}, st.Selection)
	require.False(t, st.Switching)
	require.Empty(t, f.kv.Keys())
	require.Empty(t, f.coordinator.Manager().Current())
}

func TestRefreshOverlappingSwitchIsDropped(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()

	arrived, release := f.holdNextAssociations(t)
	done := make(chan error, 1)
	go func() {
		done <- f.coordinator.RefreshAssociations(ctx)
	}()
	<-arrived

	require.NoError(t, f.coordinator.SelectOrg(ctx, "B"))
	switched := f.coordinator.State().Associations
	require.NotNil(t, switched)

	release()
	require.NoError(t, <-done)

	st := f.coordinator.State()
	require.Same(t, switched, st.Associations)
	require.Equal(t, "B", st.ClaimTenantID())
	require.Equal(t, "B", st.Selection.TenantID)
	require.False(t, st.AssociationsLoading)
	require.Equal(t, 3, f.callCount("GetUserProfileAssociations"))
}

func TestCreateWorkspaceDuringSwitchReportsSkippedRefetch(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()
	before := f.callCount("GetUserProfileAssociations")

	f.holdSwitch.Lock()
	done := make(chan error, 1)
	go func() {
		done <- f.coordinator.SelectOrg(ctx, "B")
	}()
	<-f.switchSeen

	err := f.coordinator.CreateWorkspace(ctx, "Ops")
	require.ErrorIs(t, err, errors.ErrSwitchInProgress)
	require.Equal(t, 1, f.callCount("CreateWorkspace"))
	require.Equal(t, before, f.callCount("GetUserProfileAssociations"))

	f.holdSwitch.Unlock()
	require.NoError(t, <-done)
}

func TestLogoutCancelsInitialLoad(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	ctx := context.Background()

	arrived, release := f.holdNextAssociations(t)
	done := make(chan error, 1)
	go func() {
		done <- f.coordinator.InitializeAuth(ctx)
	}()
	<-arrived

	require.NoError(t, f.coordinator.Logout(ctx))
	release()
	require.NoError(t, <-done)

	st := f.coordinator.State()
	require.True(t, st.Initialized)
	require.False(t, st.IsAuthenticated())
	require.False(t, st.Loading)
	require.Nil(t, st.Associations)
	require.Equal(t, selection.Selection{}, st.Selection)
	_, ok := persisted(t, f, selection.TenantKey)
	require.False(t, ok)
	require.Empty(t, f.kv.Keys())
}

func TestCancelledInitialLoadPublishesNothing(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	arrived, release := f.holdNextAssociations(t)
	done := make(chan error, 1)
	go func() {
		done <- f.coordinator.InitializeAuth(ctx)
	}()
	<-arrived

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	release()

	st := f.coordinator.State()
	require.True(t, st.IsAuthenticated())
	require.False(t, st.Loading)
	require.False(t, st.AssociationsLoading)
	require.Nil(t, st.Associations)
	require.Equal(t, selection.Selection{}, st.Selection)
	_, ok := persisted(t, f, selection.TenantKey)
	require.False(t, ok)
}

func TestLogoutPurgesEverything(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()
	f.coordinator.SelectWorkspace(ctx, "W1")

	var last sessions.State
	unsubscribe := f.coordinator.Subscribe(func(st sessions.State) { last = st })
	defer unsubscribe()

	require.NoError(t, f.coordinator.Logout(ctx))
	require.Equal(t, int32(1), f.logouts.Load())
	require.Empty(t, f.kv.Keys())

	st := f.coordinator.State()
	require.False(t, st.IsAuthenticated())
	require.Nil(t, st.User)
	require.Nil(t, st.Associations)
	require.Equal(t, selection.Selection{}, st.Selection)
	require.False(t, last.IsAuthenticated())
	require.False(t, f.coordinator.IsAuthenticated())
}

func TestLogoutSurvivesUnreachableEndpoint(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	f.logoutStatus.Store(http.StatusInternalServerError)

	require.NoError(t, f.coordinator.Logout(context.Background()))
	require.False(t, f.coordinator.IsAuthenticated())
}

func TestTokenRemovedElsewhereEndsSession(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()

	require.NoError(t, f.kv.Delete(ctx, store.AccessTokenKey))
	require.False(t, f.coordinator.Manager().CheckConsistency(ctx))

	st := f.coordinator.State()
	require.False(t, st.IsAuthenticated())
	require.Equal(t, selection.Selection{}, st.Selection)
}

func TestLoginWithPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.initialize(t)
	f.setLoginTenant("D")

	needsOnboarding, err := f.coordinator.LoginWithPassword(context.Background(), "ada@example.com", "hunter2")
	require.NoError(t, err)
	require.True(t, needsOnboarding)
	require.True(t, f.coordinator.NeedsOnboarding())

	user, ok := f.coordinator.CurrentUser()
	require.True(t, ok)
	require.Equal(t, "u1", user.ID)
	require.Equal(t, "Ada", user.Name)

	access, ok := store.New(f.kv).Access(context.Background())
	require.True(t, ok)
	require.Equal(t, f.tokens["D"], access)
	require.Equal(t, []string{""}, f.bearersFor("UserLogin"))
}

func TestLoginIntoExistingTenant(t *testing.T) {
	f := setupTestFixture(t)
	f.setLoginTenant("A")

	needsOnboarding, err := f.coordinator.Signup(context.Background(), "Ada", "ada@example.com", "hunter2")
	require.NoError(t, err)
	require.False(t, needsOnboarding)

	require.NoError(t, f.coordinator.LoadInitial(context.Background()))
	require.Equal(t, "A", f.coordinator.State().Selection.TenantID)
}

func TestLoginFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.override("UserLogin", func(map[string]any) string {
		return `{"data":{"userLogin":"{\"success\":false,\"error\":\"Invalid credentials\"}"}}`
	})

	_, err := f.coordinator.LoginWithPassword(context.Background(), "ada@example.com", "nope")
	require.ErrorIs(t, err, errors.ErrLoginFailed)
	require.Contains(t, err.Error(), "Invalid credentials")
	require.False(t, f.coordinator.IsAuthenticated())
}

func TestLoginWithGoogleUsesAPIUser(t *testing.T) {
	f := setupTestFixture(t)
	f.setLoginTenant("A")

	_, err := f.coordinator.LoginWithGoogle(context.Background(), "google-id-token")
	require.NoError(t, err)

	user, ok := f.coordinator.CurrentUser()
	require.True(t, ok)
	require.Equal(t, "g-1", user.ID)
	require.Equal(t, "Grace", user.Name)
	require.Equal(t, "https://img.example.com/g.png", user.ProfileImageURL)

	pair, ok := store.New(f.kv).Pair(context.Background())
	require.True(t, ok)
	require.Equal(t, "r-google", pair.RefreshToken)
}

func TestCreateTenantSwitchesIntoIt(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)

	require.NoError(t, f.coordinator.CreateTenant(context.Background(), "  Charlie ", tenants.TenantBusiness))

	st := f.coordinator.State()
	require.Equal(t, "C", st.Selection.TenantID)
	require.Equal(t, "C", st.ClaimTenantID())
	require.Len(t, st.Associations.Tenants(), 3)
	require.False(t, st.Switching)
}

func TestCreateTenantBlankNameIsNoop(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)

	require.NoError(t, f.coordinator.CreateTenant(context.Background(), "   ", tenants.TenantPersonal))
	require.Zero(t, f.callCount("CreateTenant"))
}

func TestCreateTenantNotFoundAfterCreate(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	f.override("CreateTenant", func(map[string]any) string {
		return `{"data":{"createTenant":"ok"}}`
	})

	err := f.coordinator.CreateTenant(context.Background(), "Ghost", tenants.TenantStudent)
	require.ErrorIs(t, err, errors.ErrCreateFailed)
	require.Contains(t, err.Error(), "Could not find newly created organization")
	require.Equal(t, "A", f.coordinator.State().Selection.TenantID)
	require.Zero(t, f.callCount("SwitchTenants"))
}

func TestCreateProjectUsesSelectedWorkspace(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()

	err := f.coordinator.CreateProject(ctx, "worker", tenants.ProjectBackend, "")
	require.ErrorIs(t, err, errors.ErrInvalidRequest)

	f.coordinator.SelectWorkspace(ctx, "W1")
	require.NoError(t, f.coordinator.CreateProject(ctx, "worker", tenants.ProjectBackend, ""))

	f.mu.Lock()
	vars := f.variables["CreateProject"][0]
	f.mu.Unlock()
	require.Equal(t, "W1", vars["wid"])
	require.Equal(t, "BACKEND", vars["projectType"])
	require.Equal(t, 2, f.callCount("GetUserProfileAssociations"))
}

func TestCreateWorkspaceFailure(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	f.override("CreateWorkspace", func(map[string]any) string {
		return `{"errors":[{"message":"workspace name taken"}]}`
	})

	err := f.coordinator.CreateWorkspace(context.Background(), "Core")
	require.ErrorIs(t, err, errors.ErrCreateFailed)
	require.Contains(t, err.Error(), "workspace name taken")
}

func TestRefreshAssociationsFailureKeepsSnapshot(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	prev := f.initialize(t).Associations

	f.override("GetUserProfileAssociations", func(map[string]any) string {
		return `{"errors":[{"message":"upstream unavailable"}]}`
	})
	err := f.coordinator.RefreshAssociations(context.Background())
	require.ErrorIs(t, err, errors.ErrAssociationFetch)

	st := f.coordinator.State()
	require.Same(t, prev, st.Associations)
	require.Contains(t, st.AssociationsError, "upstream unavailable")

	f.coordinator.ClearAssociationsError()
	require.Empty(t, f.coordinator.State().AssociationsError)
}

func TestProjectDetails(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t, "A")
	f.initialize(t)
	ctx := context.Background()

	details, err := f.coordinator.ProjectDetails(ctx, "W1", "P1")
	require.NoError(t, err)
	require.Equal(t, "main", details.DefaultBranch)
	require.Equal(t, details, f.coordinator.State().ProjectDetails)

	details, err = f.coordinator.ProjectDetails(ctx, "", "P1")
	require.NoError(t, err)
	require.Nil(t, details)
	require.Nil(t, f.coordinator.State().ProjectDetails)
}

func TestCompleteOnboardingRotatesTokens(t *testing.T) {
	f := setupTestFixture(t)
	f.withoutTenants()
	f.signIn(t, "D")
	st := f.initialize(t)
	require.True(t, f.coordinator.NeedsOnboarding())
	require.Empty(t, st.Selection.TenantID)
	require.Zero(t, f.callCount("SwitchTenants"))

	require.NoError(t, f.coordinator.CompleteOnboarding(context.Background(), "Acme", "BUSINESS"))

	st = f.coordinator.State()
	require.Equal(t, "A", st.ClaimTenantID())
	require.Equal(t, "r-rotated", st.Tokens.RefreshToken)
	require.True(t, st.User.ProfileCompleted)
	require.False(t, f.coordinator.NeedsOnboarding())
	require.Equal(t, "A", st.Selection.TenantID)
}

func TestCompleteOnboardingRequiresRotation(t *testing.T) {
	f := setupTestFixture(t)
	f.withoutTenants()
	f.signIn(t, "D")
	f.initialize(t)
	f.override("Refresh", func(map[string]any) string {
		return fmt.Sprintf(`{"data":{"refresh":{"success":true,"data":{"accessToken":%q}}}}`, f.tokens["A"])
	})

	err := f.coordinator.CompleteOnboarding(context.Background(), "Acme", "BUSINESS")
	require.ErrorIs(t, err, errors.ErrRefreshFailed)
	require.Contains(t, err.Error(), "tokens missing")
	require.Equal(t, "D", f.coordinator.State().ClaimTenantID())
}
