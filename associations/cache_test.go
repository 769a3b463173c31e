package associations_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"

	"github.com/jrsteele09/go-tenant-session/associations"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/stretchr/testify/require"
)

const payload = `{"entities":{"tenants":{"t1":{"id":"t1","name":"Acme"},"t2":{"id":"t2","name":"Globex"}},"workspaces":{"w1":{"id":"w1","name":"Core","orgId":"t1"}},"projects":{}},"defaultTenantId":"t0"}`

type fakePoster struct {
	data    string
	err     error
	bearers []string
	calls   int
}

func (p *fakePoster) Post(_ context.Context, _ string, _ map[string]any, bearer string) (json.RawMessage, error) {
	p.calls++
	p.bearers = append(p.bearers, bearer)
	if p.err != nil {
		return nil, p.err
	}
	return json.RawMessage(p.data), nil
}

type sessionPoster struct {
	*fakePoster
}

func (p sessionPoster) Post(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	return p.fakePoster.Post(ctx, query, variables, "session")
}

type testFixture struct {
	direct  *fakePoster
	session *fakePoster
	cache   *associations.Cache
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		direct:  &fakePoster{data: fmt.Sprintf(`{"getUserProfileAssociations":%s}`, payload)},
		session: &fakePoster{data: fmt.Sprintf(`{"getUserProfileAssociations":%s}`, strconv.Quote(payload))},
	}
	f.cache = associations.NewCache(f.direct, sessionPoster{f.session})
	return f
}

func TestLoadThroughSession(t *testing.T) {
	f := setupTestFixture(t)

	s, err := f.cache.Load(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, s.Tenants(), 2)
	require.Equal(t, "t0", s.DefaultTenantID)
	require.Same(t, s, f.cache.Snapshot())
	require.Equal(t, 1, f.session.calls)
	require.Zero(t, f.direct.calls)
	require.False(t, f.cache.Loading())
}

func TestLoadWithTokenOverride(t *testing.T) {
	f := setupTestFixture(t)

	s, err := f.cache.Load(context.Background(), "switched-token")
	require.NoError(t, err)
	require.Equal(t, "Acme", s.Tenants()[0].Name)
	require.Equal(t, []string{"switched-token"}, f.direct.bearers)
	require.Zero(t, f.session.calls)
}

func TestLoadFailureKeepsPreviousSnapshot(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	prev, err := f.cache.Load(ctx, "")
	require.NoError(t, err)

	f.session.err = errors.ErrAuthUnavailable
	_, err = f.cache.Load(ctx, "")
	require.ErrorIs(t, err, errors.ErrAssociationFetch)
	require.ErrorIs(t, err, errors.ErrAuthUnavailable)
	require.Same(t, prev, f.cache.Snapshot())
	require.Contains(t, f.cache.Err(), "failed to fetch user associations")

	f.cache.ClearError()
	require.Empty(t, f.cache.Err())
}

func TestLoadInvalidPayload(t *testing.T) {
	f := setupTestFixture(t)
	f.session.data = `{"getUserProfileAssociations":"not json"}`

	_, err := f.cache.Load(context.Background(), "")
	require.ErrorIs(t, err, errors.ErrAssociationFetch)
	require.ErrorIs(t, err, errors.ErrInvalidAssociation)
	require.Nil(t, f.cache.Snapshot())
}

func TestFetchDoesNotPublish(t *testing.T) {
	f := setupTestFixture(t)

	s, err := f.cache.Fetch(context.Background(), "")
	require.NoError(t, err)
	require.NotNil(t, s)
	require.Nil(t, f.cache.Snapshot())

	f.cache.Publish(s)
	require.Same(t, s, f.cache.Snapshot())

	f.cache.Reset()
	require.Nil(t, f.cache.Snapshot())
}
