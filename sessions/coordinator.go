package sessions

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jrsteele09/go-tenant-session/associations"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/utils"
	"github.com/jrsteele09/go-tenant-session/kvstore"
	"github.com/jrsteele09/go-tenant-session/selection"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/tenants/switcher"
	"github.com/jrsteele09/go-tenant-session/token"
	"github.com/jrsteele09/go-tenant-session/token/refresh"
	"github.com/jrsteele09/go-tenant-session/token/store"
	"github.com/jrsteele09/go-tenant-session/transport"
	"github.com/rs/zerolog/log"
)

// Config is what the coordinator reads from configuration.
type Config interface {
	config.EnvConfig
	config.SessionConfig
}

// Coordinator owns the session state and sequences every operation that
// changes tokens, tenant scope or selection.
type Coordinator struct {
	config    Config
	client    *transport.Client
	auth      *transport.Authenticated
	decoder   *token.Decoder
	tokens    *store.TokenStore
	manager   *refresh.Manager
	switcher  *switcher.Switcher
	cache     *associations.Cache
	selection *selection.Machine

	// epoch invalidates in-flight loads when the session is torn down.
	epoch atomic.Uint64

	mu            sync.Mutex
	state         State
	restored      bool
	lastLoadedTid string
	listeners     map[int]func(State)
	nextID        int
}

// New wires the session components over kv and the GraphQL client.
func New(cfg Config, kv kvstore.Store, client *transport.Client) *Coordinator {
	decoder := token.NewDecoder(
		token.WithExpiringWindow(cfg.GetExpiringWindow()),
		token.WithCacheSize(cfg.GetClaimsCacheSize()),
	)
	tokens := store.New(kv)
	manager := refresh.NewManager(tokens, client, decoder, cfg)
	auth := transport.NewAuthenticated(client, manager)

	c := &Coordinator{
		config:    cfg,
		client:    client,
		auth:      auth,
		decoder:   decoder,
		tokens:    tokens,
		manager:   manager,
		switcher:  switcher.New(client, manager, nil),
		cache:     associations.NewCache(client, auth),
		selection: selection.NewMachine(kv),
		state:     State{Loading: true},
		listeners: make(map[int]func(State)),
	}
	manager.Subscribe(c.onTokenEvent)
	return c
}

// Manager exposes the token lifecycle so the host can run the periodic and
// visibility checks.
func (c *Coordinator) Manager() *refresh.Manager {
	return c.manager
}

// Authenticated is the transport for other calls made on the user's behalf.
func (c *Coordinator) Authenticated() *transport.Authenticated {
	return c.auth
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) IsAuthenticated() bool {
	return c.State().IsAuthenticated()
}

func (c *Coordinator) CurrentUser() (User, bool) {
	st := c.State()
	if st.User == nil {
		return User{}, false
	}
	return *st.User, true
}

// CurrentTenant is the selected tenant, looked up in the current snapshot.
func (c *Coordinator) CurrentTenant() (tenants.Tenant, bool) {
	st := c.State()
	return st.Associations.Tenant(st.Selection.TenantID)
}

// Subscribe registers fn to receive every published state. fn runs on the
// goroutine that changed the state and must not block.
func (c *Coordinator) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Coordinator) ClearError() {
	c.update(func(s *State) { s.Error = "" })
}

func (c *Coordinator) ClearAssociationsError() {
	c.cache.ClearError()
	c.update(func(s *State) { s.AssociationsError = "" })
}

// InitializeAuth restores the persisted session and loads its tenant scope.
// It runs once; later calls return immediately.
func (c *Coordinator) InitializeAuth(ctx context.Context) error {
	if c.State().Initialized {
		return nil
	}
	c.update(func(s *State) { s.Loading = true })

	if c.manager.Initialize(ctx) == refresh.Unauthenticated {
		c.update(func(s *State) {
			s.Loading = false
			s.Initialized = true
		})
		return nil
	}

	pair, ok := c.tokens.Pair(ctx)
	if !ok {
		pair = token.Pair{AccessToken: c.manager.Current()}
	}
	claims, err := c.decoder.Decode(pair.AccessToken)
	if err != nil {
		log.Err(err).Msg("persisted access token is not decodable")
	}
	user := UserFromClaims(claims)
	c.update(func(s *State) {
		s.Tokens = utils.Ptr(pair)
		s.Claims = utils.Clone(claims)
		s.User = &user
		s.Loading = false
		s.Initialized = true
	})
	return c.LoadInitial(ctx)
}

// Login installs a pair obtained from a login flow. A nil user is built from
// the token claims.
func (c *Coordinator) Login(ctx context.Context, pair token.Pair, user *User) {
	c.epoch.Add(1)
	c.mu.Lock()
	c.restored = false
	c.lastLoadedTid = ""
	c.mu.Unlock()
	c.selection.Reset()

	c.manager.Adopt(ctx, pair)

	claims, _ := c.decoder.Decode(pair.AccessToken)
	u := UserFromClaims(claims)
	if user != nil {
		u = *user
	}
	c.update(func(s *State) {
		s.User = &u
		s.Loading = false
		s.Initialized = true
	})
}

// onTokenEvent keeps the state in step with the token lifecycle: refreshes,
// switches and tokens changed by another process.
func (c *Coordinator) onTokenEvent(ev refresh.Event) {
	if ev.LoggedOut {
		log.Info().Msg("session ended outside this process")
		if err := c.clearSession(context.Background()); err != nil {
			log.Err(err).Msg("unable to clear session")
		}
		return
	}

	claims, err := c.decoder.Decode(ev.Pair.AccessToken)
	if err != nil {
		log.Err(err).Msg("new access token is not decodable")
	}
	c.update(func(s *State) {
		pair := ev.Pair
		if pair.RefreshToken == "" && s.Tokens != nil {
			pair.RefreshToken = s.Tokens.RefreshToken
		}
		s.Tokens = utils.Ptr(pair)
		s.Claims = utils.Clone(claims)

		fromToken := UserFromClaims(claims)
		switch {
		case s.User == nil || s.User.ID != fromToken.ID:
			s.User = &fromToken
		default:
			u := *s.User
			u.IsSuperAdmin = fromToken.IsSuperAdmin
			s.User = &u
		}
	})
}

// update applies fn to the state under the lock and publishes the result.
func (c *Coordinator) update(fn func(s *State)) {
	c.mu.Lock()
	fn(&c.state)
	st := c.state
	fns := make([]func(State), 0, len(c.listeners))
	for _, l := range c.listeners {
		fns = append(fns, l)
	}
	c.mu.Unlock()

	for _, l := range fns {
		l(st)
	}
}
