package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/rs/zerolog/log"
)

// TokenProvider supplies access tokens to Authenticated.
type TokenProvider interface {
	// ValidToken returns the stored access token, refreshing first when it is
	// missing or expired.
	ValidToken(ctx context.Context) (string, bool)
	// ForceRefresh refreshes regardless of the current token.
	ForceRefresh(ctx context.Context) (string, bool)
}

// Authenticated attaches the session's access token to every request and
// recovers from a single 401 by refreshing and resending once.
type Authenticated struct {
	client *Client
	tokens TokenProvider
}

func NewAuthenticated(client *Client, tokens TokenProvider) *Authenticated {
	return &Authenticated{client: client, tokens: tokens}
}

func (a *Authenticated) Client() *Client {
	return a.client
}

// Do sends req with the current access token. errors.ErrAuthUnavailable is
// returned, without any network call, when no token can be obtained. A 401 is
// followed by exactly one forced refresh and, if that yields a token, exactly
// one resend; the second response is returned whatever its status.
func (a *Authenticated) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	tok, ok := a.tokens.ValidToken(ctx)
	if !ok {
		return nil, errors.ErrAuthUnavailable
	}

	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("transport: prepare request: %w", err)
	}

	resp, err := a.client.send(ctx, rreq, tok)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	newTok, ok := a.tokens.ForceRefresh(ctx)
	if !ok {
		log.Warn().Str("url", rreq.URL.Redacted()).Msg("request unauthorized and token refresh failed")
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	return a.client.send(ctx, rreq, newTok)
}

// Post runs a GraphQL operation through Do.
func (a *Authenticated) Post(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	req, err := graphql.NewRequest(ctx, a.client.url, query, variables)
	if err != nil {
		return nil, err
	}
	resp, err := a.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	return graphql.ReadData(resp)
}
