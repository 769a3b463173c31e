package refresh

import (
	"context"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

// TokenSource exposes the managed access token as an oauth2.TokenSource, so
// oauth2.NewClient can authenticate calls to other dashboard APIs. Each Token
// call goes through ValidToken and so refreshes when needed.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, manager: m}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	access, ok := ts.manager.ValidToken(ts.ctx)
	if !ok {
		return nil, errors.ErrAuthUnavailable
	}
	t := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if c, err := ts.manager.decoder.Decode(access); err == nil {
		t.Expiry = c.Expiry()
	}
	return t, nil
}
