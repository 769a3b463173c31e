package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/rs/zerolog/log"
)

type loginFlow struct {
	query    string
	field    string
	failure  string
	apiUser  bool
	vars     map[string]any
	describe string
}

// LoginWithPassword signs in with email and password. needsOnboarding reports
// whether the token is still scoped to the default tenant.
func (c *Coordinator) LoginWithPassword(ctx context.Context, email, password string) (needsOnboarding bool, err error) {
	return c.login(ctx, loginFlow{
		query:    graphql.UserLoginMutation,
		field:    graphql.FieldUserLogin,
		failure:  "Login failed",
		vars:     map[string]any{"email": email, "password": password},
		describe: "password",
	})
}

func (c *Coordinator) Signup(ctx context.Context, name, email, password string) (needsOnboarding bool, err error) {
	return c.login(ctx, loginFlow{
		query:    graphql.UserSignupMutation,
		field:    graphql.FieldUserSignup,
		failure:  "Signup failed",
		vars:     map[string]any{"name": name, "email": email, "password": password},
		describe: "signup",
	})
}

// LoginWithGoogle exchanges a Google id_token for a session.
func (c *Coordinator) LoginWithGoogle(ctx context.Context, idToken string) (needsOnboarding bool, err error) {
	return c.login(ctx, loginFlow{
		query:    graphql.GoogleSignupOrLoginMutation,
		field:    graphql.FieldGoogleSignupOrLogin,
		failure:  "Google login failed",
		apiUser:  true,
		vars:     map[string]any{"idToken": idToken},
		describe: "google",
	})
}

// LoginWithGitHub exchanges a GitHub authorization code for a session.
func (c *Coordinator) LoginWithGitHub(ctx context.Context, code string) (needsOnboarding bool, err error) {
	return c.login(ctx, loginFlow{
		query:    graphql.GitHubSignupOrLoginMutation,
		field:    graphql.FieldGitHubSignupOrLogin,
		failure:  "GitHub login failed",
		apiUser:  true,
		vars:     map[string]any{"code": code},
		describe: "github",
	})
}

func (c *Coordinator) login(ctx context.Context, flow loginFlow) (bool, error) {
	data, err := c.client.Post(ctx, flow.query, flow.vars, "")
	if err != nil {
		return false, fmt.Errorf("%w: %w", errors.ErrLoginFailed, err)
	}

	var res graphql.TokenResult
	if err := graphql.Field(data, flow.field, &res); err != nil {
		return false, fmt.Errorf("%w: %s: no response from server", errors.ErrLoginFailed, flow.failure)
	}
	if !res.Success && (res.Error != "" || res.Message != "") {
		return false, fmt.Errorf("%w: %s", errors.ErrLoginFailed, res.ErrorMessage(flow.failure))
	}
	pair := res.Pair()
	if pair.AccessToken == "" {
		return false, fmt.Errorf("%w: %s: token missing", errors.ErrLoginFailed, flow.failure)
	}

	claims, err := c.decoder.Decode(pair.AccessToken)
	if err != nil {
		return false, fmt.Errorf("%w: %w", errors.ErrLoginFailed, err)
	}
	user := UserFromClaims(claims)
	if rec := res.UserRecord(); flow.apiUser && rec != nil {
		user.ID = firstNonEmpty(rec.ID, user.ID)
		user.Name = firstNonEmpty(rec.Name, user.Name)
		user.Email = firstNonEmpty(rec.Email, user.Email)
		user.ProfileImageURL = rec.ProfileImage
	}

	c.Login(ctx, pair, &user)
	needsOnboarding := c.needsOnboarding(claims.TenantID)
	log.Info().Str("flow", flow.describe).Str("user", user.ID).Bool("needsOnboarding", needsOnboarding).Msg("logged in")
	return needsOnboarding, nil
}

// NeedsOnboarding reports whether the current token is scoped to the default
// tenant every new account starts in.
func (c *Coordinator) NeedsOnboarding() bool {
	return c.needsOnboarding(c.State().ClaimTenantID())
}

func (c *Coordinator) needsOnboarding(tid string) bool {
	def := c.config.GetDefaultTenantID()
	return def != "" && tid == def
}

// CompleteOnboarding creates the user's first tenant and then rotates both
// tokens so the new scope is picked up.
func (c *Coordinator) CompleteOnboarding(ctx context.Context, tenantName string, tenantType tenants.TenantType) error {
	gen := c.manager.Generation()
	data, err := c.auth.Post(ctx, graphql.UserOnboardingCompleteMutation, map[string]any{
		"tenantName": tenantName,
		"tenantType": string(tenantType),
	})
	if err != nil {
		return fmt.Errorf("onboarding: %w", err)
	}
	if err := checkMutation(data, graphql.FieldUserOnboardingComplete, "Onboarding failed"); err != nil {
		return err
	}

	rt, ok := c.manager.RefreshToken(ctx)
	if !ok {
		return errors.ErrNoRefreshToken
	}
	data, err = c.client.Post(ctx, graphql.RefreshMutation, nil, rt)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrRefreshFailed, err)
	}
	var res graphql.TokenResult
	if err := graphql.Field(data, graphql.FieldRefresh, &res); err != nil || !res.Success {
		return fmt.Errorf("%w: Token refresh failed", errors.ErrRefreshFailed)
	}
	pair := res.Pair()
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return fmt.Errorf("%w: Token refresh failed: tokens missing", errors.ErrRefreshFailed)
	}
	if !c.manager.AdoptAt(ctx, gen, pair) {
		return fmt.Errorf("%w: session ended during onboarding", errors.ErrNotAuthenticated)
	}

	c.update(func(s *State) {
		if s.User != nil {
			u := *s.User
			u.ProfileCompleted = true
			s.User = &u
		}
	})
	return c.LoadInitial(ctx)
}

// Logout tells the backend (best effort), then removes the tokens and the
// persisted selection and resets the state.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.notifyLogout(ctx)
	return c.clearSession(ctx)
}

func (c *Coordinator) notifyLogout(ctx context.Context) {
	url := c.config.GetLogoutURL()
	if url == "" {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, http.NoBody)
	if err != nil {
		log.Debug().Err(err).Msg("logout request not sent")
		return
	}
	access, _ := c.tokens.Access(ctx)
	resp, err := c.client.DoWithBearer(ctx, req, access)
	if err != nil {
		log.Debug().Err(err).Msg("logout request failed")
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func (c *Coordinator) clearSession(ctx context.Context) error {
	c.epoch.Add(1)

	var result *multierror.Error
	c.manager.Forget(ctx)
	if err := c.selection.Clear(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	c.cache.Reset()

	c.mu.Lock()
	c.restored = false
	c.lastLoadedTid = ""
	c.mu.Unlock()

	c.update(func(s *State) {
		*s = State{Initialized: s.Initialized}
	})
	return result.ErrorOrNil()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// checkMutation rejects a missing field and a {success:false} result. Any
// other value, including plain text, counts as success.
func checkMutation(data json.RawMessage, field, failure string) error {
	if err := graphql.Field(data, field, nil); err != nil {
		return fmt.Errorf("%s: no response from server", failure)
	}
	var res graphql.TokenResult
	if err := graphql.Field(data, field, &res); err == nil && !res.Success && (res.Error != "" || res.Message != "") {
		return fmt.Errorf("%s: %s", failure, res.ErrorMessage(failure))
	}
	return nil
}
