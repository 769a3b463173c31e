package switcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/token"
	"github.com/rs/zerolog/log"
)

// Poster sends a GraphQL operation with an explicit bearer.
type Poster interface {
	Post(ctx context.Context, query string, variables map[string]any, bearer string) (json.RawMessage, error)
}

// Tokens is the part of the token lifecycle the switch needs: the refresh
// token to present, and a way to commit the new pair unless the session ended
// while the request was out.
type Tokens interface {
	RefreshToken(ctx context.Context) (string, bool)
	Generation() uint64
	AdoptAt(ctx context.Context, gen uint64, pair token.Pair) bool
}

// Switcher exchanges the refresh token for a pair scoped to another tenant.
type Switcher struct {
	client Poster
	tokens Tokens
	latch  *Latch
}

func New(client Poster, tokens Tokens, latch *Latch) *Switcher {
	if latch == nil {
		latch = &Latch{}
	}
	return &Switcher{client: client, tokens: tokens, latch: latch}
}

func (s *Switcher) Latch() *Latch {
	return s.latch
}

// Switch takes the latch, exchanges the tokens and releases the latch. A busy
// latch returns errors.ErrSwitchInProgress without touching the network.
// Membership of tenantID is the caller's precondition.
func (s *Switcher) Switch(ctx context.Context, tenantID string) (string, error) {
	if !s.latch.TryAcquire(Switching) {
		return "", errors.ErrSwitchInProgress
	}
	defer s.latch.Release()
	return s.Exchange(ctx, tenantID)
}

// Exchange performs the switchTenants call for a caller that already holds
// the latch. Nothing is persisted unless both tokens come back and the
// session is still the one that asked.
func (s *Switcher) Exchange(ctx context.Context, tenantID string) (string, error) {
	gen := s.tokens.Generation()
	rt, ok := s.tokens.RefreshToken(ctx)
	if !ok {
		return "", errors.ErrNoRefreshToken
	}

	data, err := s.client.Post(ctx, graphql.SwitchTenantsMutation, map[string]any{"tid": tenantID}, rt)
	if err != nil {
		log.Err(err).Str("tenant", tenantID).Msg("switchTenants request failed")
		return "", fmt.Errorf("%w: %w", errors.ErrSwitchFailed, err)
	}

	var res graphql.TokenResult
	if err := graphql.Field(data, graphql.FieldSwitchTenants, &res); err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrSwitchFailed, err)
	}
	if !res.Success {
		return "", fmt.Errorf("%w: %s", errors.ErrSwitchFailed, res.ErrorMessage("Failed to switch tenant"))
	}
	pair := res.Pair()
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return "", fmt.Errorf("%w: Tokens missing from switch response", errors.ErrSwitchFailed)
	}

	if !s.tokens.AdoptAt(ctx, gen, pair) {
		return "", fmt.Errorf("%w: session ended during the switch", errors.ErrNotAuthenticated)
	}
	log.Info().Str("tenant", tenantID).Msg("switched tenant")
	return pair.AccessToken, nil
}
