package store

import (
	"context"

	"github.com/jrsteele09/go-tenant-session/kvstore"
	"github.com/jrsteele09/go-tenant-session/token"
	"github.com/rs/zerolog/log"
)

const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// TokenStore persists the token pair. Backend failures are logged and the
// token reads as absent; nothing here returns an error to the caller.
type TokenStore struct {
	kv kvstore.Store
}

func New(kv kvstore.Store) *TokenStore {
	return &TokenStore{kv: kv}
}

// Save stores the pair. An empty refresh token keeps the stored one so a
// refresh that does not rotate leaves it in place.
func (s *TokenStore) Save(ctx context.Context, pair token.Pair) {
	if pair.AccessToken != "" {
		if err := s.kv.Set(ctx, AccessTokenKey, pair.AccessToken); err != nil {
			log.Err(err).Msg("unable to persist access token")
		}
	}
	if pair.RefreshToken != "" {
		if err := s.kv.Set(ctx, RefreshTokenKey, pair.RefreshToken); err != nil {
			log.Err(err).Msg("unable to persist refresh token")
		}
	}
}

func (s *TokenStore) Access(ctx context.Context) (string, bool) {
	return s.get(ctx, AccessTokenKey)
}

func (s *TokenStore) Refresh(ctx context.Context) (string, bool) {
	return s.get(ctx, RefreshTokenKey)
}

// Pair returns both tokens; ok is false when there is no access token.
func (s *TokenStore) Pair(ctx context.Context) (token.Pair, bool) {
	access, ok := s.Access(ctx)
	if !ok {
		return token.Pair{}, false
	}
	refresh, _ := s.Refresh(ctx)
	return token.Pair{AccessToken: access, RefreshToken: refresh}, true
}

func (s *TokenStore) Clear(ctx context.Context) {
	for _, key := range []string{AccessTokenKey, RefreshTokenKey} {
		if err := s.kv.Delete(ctx, key); err != nil {
			log.Err(err).Str("key", key).Msg("unable to remove token")
		}
	}
}

func (s *TokenStore) get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		log.Err(err).Str("key", key).Msg("unable to read token")
		return "", false
	}
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
