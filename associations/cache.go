package associations

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/rs/zerolog/log"
)

// BearerPoster sends an operation with an explicit bearer.
type BearerPoster interface {
	Post(ctx context.Context, query string, variables map[string]any, bearer string) (json.RawMessage, error)
}

// SessionPoster sends an operation with the session's own access token.
type SessionPoster interface {
	Post(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error)
}

// Cache holds the latest associations snapshot. A snapshot is only ever
// replaced whole.
type Cache struct {
	direct  BearerPoster
	session SessionPoster

	mu       sync.RWMutex
	snapshot *tenants.Snapshot
	lastErr  string
	loading  int
}

func NewCache(direct BearerPoster, session SessionPoster) *Cache {
	return &Cache{direct: direct, session: session}
}

// Load fetches and publishes the associations. On failure the previous
// snapshot stays in place and the error text is recorded.
func (c *Cache) Load(ctx context.Context, tokenOverride string) (*tenants.Snapshot, error) {
	s, err := c.Fetch(ctx, tokenOverride)
	if err != nil {
		c.Fail(err)
		return nil, err
	}
	c.Publish(s)
	return s, nil
}

// Fetch retrieves a snapshot without publishing it. A non-empty
// tokenOverride is sent as the bearer directly, bypassing the session token;
// this is how a freshly switched token is used before the session adopts it.
func (c *Cache) Fetch(ctx context.Context, tokenOverride string) (*tenants.Snapshot, error) {
	c.mu.Lock()
	c.loading++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loading--
		c.mu.Unlock()
	}()

	var (
		data json.RawMessage
		err  error
	)
	if tokenOverride != "" {
		data, err = c.direct.Post(ctx, graphql.UserProfileAssociationsMutation, nil, tokenOverride)
	} else {
		data, err = c.session.Post(ctx, graphql.UserProfileAssociationsMutation, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrAssociationFetch, err)
	}

	payload, err := graphql.FieldString(data, graphql.FieldUserProfileAssociations)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrAssociationFetch, err)
	}
	s, err := tenants.ParseAssociations([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrAssociationFetch, err)
	}
	log.Debug().Int("tenants", len(s.Tenants())).Msg("associations fetched")
	return s, nil
}

// Publish makes s the current snapshot and clears any recorded error.
func (c *Cache) Publish(s *tenants.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = s
	c.lastErr = ""
}

// Fail records err as the current association error.
func (c *Cache) Fail(err error) {
	log.Err(err).Msg("unable to load associations")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err.Error()
}

func (c *Cache) Snapshot() *tenants.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// Err is the text of the last failed load, or "".
func (c *Cache) Err() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading > 0
}

func (c *Cache) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = ""
}

// Reset drops the snapshot and error, e.g. on logout.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = nil
	c.lastErr = ""
}
