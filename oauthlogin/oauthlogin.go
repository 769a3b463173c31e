// Package oauthlogin runs the browser half of the Google and GitHub logins.
// A loopback callback server receives the provider's redirect and hands back
// the credential the GraphQL login mutations expect: a verified Google
// id_token or a GitHub authorization code.
package oauthlogin

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

type Provider string

const (
	Google Provider = "google"
	GitHub Provider = "github"
)

// Result is what the callback delivered. Exactly one of IDToken and Code is set.
type Result struct {
	Provider Provider
	IDToken  string
	Code     string
}

// Flow builds authorization URLs for one provider and validates its callbacks.
type Flow struct {
	provider Provider
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
	port     int
	timeout  time.Duration
}

type Option func(*Flow)

// WithEndpoint replaces the provider's authorization endpoint.
func WithEndpoint(ep oauth2.Endpoint) Option {
	return func(f *Flow) { f.oauth.Endpoint = ep }
}

// NewGoogle discovers the issuer and prepares an implicit id_token flow.
func NewGoogle(ctx context.Context, cfg config.OAuthConfig, opts ...Option) (*Flow, error) {
	clientID := cfg.GetGoogleClientID()
	if clientID == "" {
		return nil, fmt.Errorf("%w: google client id is not configured", errors.ErrUnsupported)
	}
	provider, err := oidc.NewProvider(ctx, cfg.GetGoogleIssuer())
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	f := &Flow{
		provider: Google,
		oauth: oauth2.Config{
			ClientID: clientID,
			Endpoint: provider.Endpoint(),
			Scopes:   []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
		port:     cfg.GetRedirectPort(),
		timeout:  cfg.GetCallbackTimeout(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// NewGitHub prepares an authorization code flow. The code is exchanged by the
// backend, so no client secret is needed here.
func NewGitHub(cfg config.OAuthConfig, opts ...Option) (*Flow, error) {
	clientID := cfg.GetGitHubClientID()
	if clientID == "" {
		return nil, fmt.Errorf("%w: github client id is not configured", errors.ErrUnsupported)
	}
	f := &Flow{
		provider: GitHub,
		oauth: oauth2.Config{
			ClientID: clientID,
			Endpoint: github.Endpoint,
			Scopes:   cfg.GetGitHubScopes(),
		},
		port:    cfg.GetRedirectPort(),
		timeout: cfg.GetCallbackTimeout(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *Flow) Provider() Provider {
	return f.provider
}

func (f *Flow) callbackPath() string {
	return "/oauth/" + string(f.provider) + "/callback"
}

// Session is one pending login: a listening callback server and the state
// and nonce it expects back.
type Session struct {
	flow    *Flow
	state   string
	nonce   string
	authURL string
	server  *http.Server

	once   sync.Once
	result chan callback
}

type callback struct {
	res Result
	err error
}

// Start listens on the loopback interface and returns the session whose
// AuthURL the user should open.
func (f *Flow) Start(ctx context.Context) (*Session, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(f.port)))
	if err != nil {
		return nil, fmt.Errorf("oauthlogin: listen for callback: %w", err)
	}

	s := &Session{
		flow:   f,
		state:  uuid.NewString(),
		nonce:  uuid.NewString(),
		result: make(chan callback, 1),
	}

	cfg := f.oauth
	cfg.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), f.callbackPath())
	s.authURL = cfg.AuthCodeURL(s.state, s.authParams()...)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, logRequest, frameSecurity)
	r.Get(f.callbackPath(), s.handleGet)
	r.Post(f.callbackPath(), s.handleCallback)

	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Err(err).Str("provider", string(f.provider)).Msg("oauth callback server stopped")
		}
	}()

	log.Debug().Str("provider", string(f.provider)).Str("redirect", cfg.RedirectURL).Msg("waiting for oauth callback")
	return s, nil
}

func (s *Session) authParams() []oauth2.AuthCodeOption {
	if s.flow.provider != Google {
		return nil
	}
	return []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("response_type", "id_token"),
		oauth2.SetAuthURLParam("response_mode", "form_post"),
		oauth2.SetAuthURLParam("nonce", s.nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	}
}

func (s *Session) AuthURL() string {
	return s.authURL
}

// Wait blocks until the callback arrives, ctx ends or the configured timeout
// passes. The callback server is shut down before Wait returns.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	defer s.Close()

	if s.flow.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.flow.timeout)
		defer cancel()
	}

	select {
	case cb := <-s.result:
		return cb.res, cb.err
	case <-ctx.Done():
		return Result{}, fmt.Errorf("%w: no callback from %s: %w", errors.ErrLoginFailed, s.flow.provider, ctx.Err())
	}
}

func (s *Session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.server.Shutdown(ctx)
}

// handleGet serves query string callbacks. A Google redirect that carries its
// response in the URL fragment arrives with no parameters, so a small page
// posts the fragment back to the same path.
func (s *Session) handleGet(w http.ResponseWriter, r *http.Request) {
	if s.flow.provider == Google && len(r.URL.Query()) == 0 {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fragmentPage))
		return
	}
	s.handleCallback(w, r)
}

func (s *Session) handleCallback(w http.ResponseWriter, r *http.Request) {
	res, err := s.parse(r)
	if err != nil {
		log.Err(err).Str("provider", string(s.flow.provider)).Msg("oauth callback rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
	} else {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(donePage))
	}
	s.once.Do(func() { s.result <- callback{res: res, err: err} })
}

func (s *Session) parse(r *http.Request) (Result, error) {
	// FormValue reads both the query string and a form_post body.
	if errParam := r.FormValue("error"); errParam != "" {
		msg := r.FormValue("error_description")
		if msg == "" {
			msg = errParam
		}
		return Result{}, fmt.Errorf("%w: %s", errors.ErrLoginFailed, msg)
	}
	if r.FormValue("state") != s.state {
		return Result{}, fmt.Errorf("%w: invalid state parameter", errors.ErrLoginFailed)
	}

	switch s.flow.provider {
	case Google:
		raw := r.FormValue("id_token")
		if raw == "" {
			return Result{}, fmt.Errorf("%w: Missing ID token from Google", errors.ErrLoginFailed)
		}
		idToken, err := s.flow.verifier.Verify(r.Context(), raw)
		if err != nil {
			return Result{}, fmt.Errorf("%w: ID token verification failed: %w", errors.ErrLoginFailed, err)
		}
		if idToken.Nonce != s.nonce {
			return Result{}, fmt.Errorf("%w: ID token nonce mismatch", errors.ErrLoginFailed)
		}
		return Result{Provider: Google, IDToken: raw}, nil
	default:
		code := r.FormValue("code")
		if code == "" {
			return Result{}, fmt.Errorf("%w: Missing authorization code from GitHub", errors.ErrLoginFailed)
		}
		return Result{Provider: GitHub, Code: code}, nil
	}
}

const donePage = `<!doctype html><html><body><p>Login complete. You can close this window.</p></body></html>`

const fragmentPage = `<!doctype html>
<html><body>
<form id="f" method="post"></form>
<script>
const params = new URLSearchParams(window.location.hash.substring(1));
const form = document.getElementById("f");
for (const [k, v] of params) {
  const input = document.createElement("input");
  input.type = "hidden";
  input.name = k;
  input.value = v;
  form.appendChild(input);
}
form.submit();
</script>
</body></html>`
