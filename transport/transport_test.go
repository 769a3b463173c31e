package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokens struct {
	mu        sync.Mutex
	token     string
	refreshed []string
	refreshes int
	valid     int
}

func (f *fakeTokens) ValidToken(context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid++
	return f.token, f.token != ""
}

func (f *fakeTokens) ForceRefresh(context.Context) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if len(f.refreshed) == 0 {
		return "", false
	}
	f.token, f.refreshed = f.refreshed[0], f.refreshed[1:]
	return f.token, true
}

type testFixture struct {
	server  *httptest.Server
	calls   atomic.Int32
	bearers chan string
	status  func(call int32, bearer string) int
}

func setupTestFixture(t *testing.T, status func(call int32, bearer string) int) *testFixture {
	t.Helper()

	if status == nil {
		status = func(int32, string) int { return http.StatusOK }
	}
	f := &testFixture{bearers: make(chan string, 16), status: status}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := f.calls.Add(1)
		bearer := r.Header.Get("Authorization")
		f.bearers <- bearer
		assert.NotEmpty(t, r.Header.Get(transport.RequestIDHeader))
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "query")

		code := f.status(call, bearer)
		w.WriteHeader(code)
		if code == http.StatusUnauthorized {
			_, _ = w.Write([]byte(`{"errors":[{"message":"Unauthorized"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":{"createWorkspace":"ok"}}`))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *testFixture) client(t *testing.T) *transport.Client {
	t.Helper()
	c, err := transport.New(f.server.URL, config.Transport{}, transport.WithMaxRetries(0))
	require.NoError(t, err)
	return c
}

func TestNewRequiresURL(t *testing.T) {
	_, err := transport.New("", config.Transport{})
	require.ErrorIs(t, err, transport.ErrNoEndpoint)
}

func TestAuthenticatedAttachesBearer(t *testing.T) {
	f := setupTestFixture(t, nil)
	tokens := &fakeTokens{token: "access-1"}
	auth := transport.NewAuthenticated(f.client(t), tokens)

	data, err := auth.Post(context.Background(), graphql.CreateWorkspaceMutation, map[string]any{"workspaceName": "w"})
	require.NoError(t, err)
	require.JSONEq(t, `{"createWorkspace":"ok"}`, string(data))
	require.Equal(t, "Bearer access-1", <-f.bearers)
	require.Equal(t, int32(1), f.calls.Load())
	require.Zero(t, tokens.refreshes)
}

func TestAuthenticatedNoToken(t *testing.T) {
	f := setupTestFixture(t, nil)
	auth := transport.NewAuthenticated(f.client(t), &fakeTokens{})

	_, err := auth.Post(context.Background(), graphql.CreateWorkspaceMutation, nil)
	require.True(t, errors.Is(err, errors.ErrAuthUnavailable))
	require.Zero(t, f.calls.Load())
}

func TestAuthenticatedRetriesOnceAfter401(t *testing.T) {
	f := setupTestFixture(t, func(call int32, bearer string) int {
		if bearer == "Bearer stale" {
			return http.StatusUnauthorized
		}
		return http.StatusOK
	})
	tokens := &fakeTokens{token: "stale", refreshed: []string{"fresh"}}
	auth := transport.NewAuthenticated(f.client(t), tokens)

	_, err := auth.Post(context.Background(), graphql.CreateWorkspaceMutation, nil)
	require.NoError(t, err)
	require.Equal(t, int32(2), f.calls.Load())
	require.Equal(t, 1, tokens.refreshes)
	require.Equal(t, "Bearer stale", <-f.bearers)
	require.Equal(t, "Bearer fresh", <-f.bearers)
}

func TestAuthenticatedNeverRetriesTwice(t *testing.T) {
	f := setupTestFixture(t, func(int32, string) int { return http.StatusUnauthorized })
	tokens := &fakeTokens{token: "stale", refreshed: []string{"fresh", "fresher"}}
	auth := transport.NewAuthenticated(f.client(t), tokens)

	req, err := graphql.NewRequest(context.Background(), f.server.URL, graphql.CreateWorkspaceMutation, nil)
	require.NoError(t, err)
	resp, err := auth.Do(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, int32(2), f.calls.Load())
	require.Equal(t, 1, tokens.refreshes)
}

func TestAuthenticatedRefreshFailsReturns401(t *testing.T) {
	f := setupTestFixture(t, func(int32, string) int { return http.StatusUnauthorized })
	tokens := &fakeTokens{token: "stale"}
	auth := transport.NewAuthenticated(f.client(t), tokens)

	_, err := auth.Post(context.Background(), graphql.CreateWorkspaceMutation, nil)
	var re *graphql.ResponseError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusUnauthorized, re.StatusCode)
	require.Equal(t, int32(1), f.calls.Load())
	require.Equal(t, 1, tokens.refreshes)
}

func TestClientPostWithBearer(t *testing.T) {
	f := setupTestFixture(t, nil)
	c := f.client(t)

	_, err := c.Post(context.Background(), graphql.RefreshMutation, nil, "refresh-1")
	require.NoError(t, err)
	require.Equal(t, "Bearer refresh-1", <-f.bearers)

	_, err = c.Post(context.Background(), graphql.UserLoginMutation, nil, "")
	require.NoError(t, err)
	require.Empty(t, <-f.bearers)
}

func TestClientRetriesServerErrors(t *testing.T) {
	f := setupTestFixture(t, func(call int32, _ string) int {
		if call == 1 {
			return http.StatusServiceUnavailable
		}
		return http.StatusOK
	})
	t.Setenv("DASH_RETRY_WAIT_MIN", "1ms")
	t.Setenv("DASH_RETRY_WAIT_MAX", "2ms")
	c, err := transport.New(f.server.URL, config.Transport{}, transport.WithMaxRetries(1))
	require.NoError(t, err)

	_, err = c.Post(context.Background(), graphql.CreateWorkspaceMutation, nil, "a")
	require.NoError(t, err)
	require.Equal(t, int32(2), f.calls.Load())
}
