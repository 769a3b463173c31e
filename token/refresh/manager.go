package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/token"
	"github.com/jrsteele09/go-tenant-session/token/store"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Trigger selects the condition RefreshIfNeeded checks.
type Trigger int

const (
	// TriggerTimer is the periodic check: refresh when the token expires soon.
	TriggerTimer Trigger = iota
	// TriggerVisible is the resume check: refresh only once the token has expired.
	TriggerVisible
)

func (t Trigger) String() string {
	if t == TriggerVisible {
		return "visible"
	}
	return "timer"
}

// Status is the outcome of Initialize.
type Status int

const (
	Unauthenticated Status = iota
	Authenticated
)

// Event is delivered to subscribers whenever the manager's token changes.
type Event struct {
	Pair token.Pair
	// LoggedOut is set when the persisted token disappeared underneath the
	// manager, e.g. another process logged out.
	LoggedOut bool
}

// Poster sends a GraphQL operation with an explicit bearer.
type Poster interface {
	Post(ctx context.Context, query string, variables map[string]any, bearer string) (json.RawMessage, error)
}

// Manager keeps the access token fresh. Concurrent refreshes share one
// network call.
type Manager struct {
	store   *store.TokenStore
	client  Poster
	decoder *token.Decoder
	config  config.SessionConfig

	group singleflight.Group

	// generation counts Forget calls. A pair fetched under an older
	// generation belongs to a session that has ended.
	generation atomic.Uint64
	adoptMu    sync.Mutex

	mu        sync.RWMutex
	current   string
	listeners map[int]func(Event)
	nextID    int
}

// NewManager creates a new token lifecycle manager
func NewManager(ts *store.TokenStore, client Poster, decoder *token.Decoder, cfg config.SessionConfig) *Manager {
	return &Manager{
		store:     ts,
		client:    client,
		decoder:   decoder,
		config:    cfg,
		listeners: make(map[int]func(Event)),
	}
}

// Initialize loads the persisted token. An expired token is refreshed once;
// if that fails the stale token is kept and later triggers retry.
func (m *Manager) Initialize(ctx context.Context) Status {
	saved, ok := m.store.Access(ctx)
	if !ok {
		m.setCurrent("")
		return Unauthenticated
	}
	m.setCurrent(saved)

	if m.decoder.IsExpired(saved) {
		if _, ok := m.Refresh(ctx); !ok {
			log.Warn().Msg("access token expired and refresh failed, keeping stale token")
		}
	}
	return Authenticated
}

// Current returns the token the manager is working with.
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Refresh exchanges the stored refresh token for a new access token. It never
// returns an error: every failure is logged and reported as ok == false.
func (m *Manager) Refresh(ctx context.Context) (string, bool) {
	v, err, shared := m.group.Do("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		if !errors.Is(err, errors.ErrNoRefreshToken) {
			log.Err(err).Bool("shared", shared).Msg("token refresh failed")
		}
		return "", false
	}
	return v.(string), true
}

// RefreshToken returns the persisted refresh token.
func (m *Manager) RefreshToken(ctx context.Context) (string, bool) {
	return m.store.Refresh(ctx)
}

// ForceRefresh refreshes regardless of the current token's expiry.
func (m *Manager) ForceRefresh(ctx context.Context) (string, bool) {
	return m.Refresh(ctx)
}

// ValidToken returns the stored token, refreshing first if it is missing or expired.
func (m *Manager) ValidToken(ctx context.Context) (string, bool) {
	tok, ok := m.store.Access(ctx)
	if ok && !m.decoder.IsExpired(tok) {
		return tok, true
	}
	return m.Refresh(ctx)
}

// RefreshIfNeeded runs the consistency check and then refreshes when the
// trigger's condition holds. It returns the token in force afterwards.
func (m *Manager) RefreshIfNeeded(ctx context.Context, trigger Trigger) (string, bool) {
	if !m.CheckConsistency(ctx) {
		return "", false
	}
	cur := m.Current()
	if cur == "" {
		return "", false
	}

	needed := false
	switch trigger {
	case TriggerVisible:
		needed = m.decoder.IsExpired(cur)
	default:
		needed = m.decoder.IsExpiringSoon(cur)
	}
	if !needed {
		return cur, true
	}

	log.Debug().Stringer("trigger", trigger).Msg("refreshing access token")
	if tok, ok := m.Refresh(ctx); ok {
		return tok, true
	}
	return cur, true
}

// Visible is the hook for "the user came back": it refreshes an expired token.
func (m *Manager) Visible(ctx context.Context) {
	m.RefreshIfNeeded(ctx, TriggerVisible)
}

// Run performs the periodic check until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	interval := m.config.GetRefreshInterval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RefreshIfNeeded(ctx, TriggerTimer)
		}
	}
}

// CheckConsistency reconciles the manager with the persisted token. It
// returns false when the persisted token has gone, after telling subscribers.
func (m *Manager) CheckConsistency(ctx context.Context) bool {
	stored, ok := m.store.Access(ctx)
	cur := m.Current()

	if !ok && cur != "" {
		log.Warn().Msg("persisted access token missing, logging out")
		m.setCurrent("")
		m.publish(Event{LoggedOut: true})
		return false
	}
	if ok && stored != cur {
		log.Warn().Msg("persisted access token changed, adopting it")
		m.setCurrent(stored)
		refresh, _ := m.store.Refresh(ctx)
		m.publish(Event{Pair: token.Pair{AccessToken: stored, RefreshToken: refresh}})
	}
	return true
}

// Adopt persists a pair obtained elsewhere (login, tenant switch) and tells subscribers.
func (m *Manager) Adopt(ctx context.Context, pair token.Pair) {
	m.adoptMu.Lock()
	defer m.adoptMu.Unlock()
	m.adopt(ctx, pair)
}

// Generation identifies the current session. Capture it before a request
// whose result is passed to AdoptAt.
func (m *Manager) Generation() uint64 {
	return m.generation.Load()
}

// AdoptAt adopts pair only if no Forget happened since gen was read. It
// reports whether the pair was adopted.
func (m *Manager) AdoptAt(ctx context.Context, gen uint64, pair token.Pair) bool {
	m.adoptMu.Lock()
	defer m.adoptMu.Unlock()
	if m.generation.Load() != gen {
		log.Debug().Msg("dropping tokens issued to an ended session")
		return false
	}
	m.adopt(ctx, pair)
	return true
}

func (m *Manager) adopt(ctx context.Context, pair token.Pair) {
	m.store.Save(ctx, pair)
	m.setCurrent(pair.AccessToken)
	m.publish(Event{Pair: pair})
}

// Forget clears the persisted tokens and ends the generation, so refreshes and
// switches still in flight cannot bring them back. Subscribers are not told:
// the caller is the one logging out.
func (m *Manager) Forget(ctx context.Context) {
	m.adoptMu.Lock()
	defer m.adoptMu.Unlock()
	m.generation.Add(1)
	m.store.Clear(ctx)
	m.setCurrent("")
}

// Subscribe registers fn for token events and returns its cancel func. fn runs
// on the refreshing goroutine and must not call Refresh.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	gen := m.Generation()
	rt, ok := m.store.Refresh(ctx)
	if !ok {
		return "", errors.ErrNoRefreshToken
	}

	data, err := m.client.Post(ctx, graphql.RefreshMutation, nil, rt)
	if err != nil {
		return "", fmt.Errorf("%w: request: %w", errors.ErrRefreshFailed, err)
	}

	var res graphql.TokenResult
	if err := graphql.Field(data, graphql.FieldRefresh, &res); err != nil {
		return "", fmt.Errorf("%w: response: %w", errors.ErrRefreshFailed, err)
	}
	pair := res.Pair()
	if !res.Success || pair.AccessToken == "" {
		return "", fmt.Errorf("%w: %s", errors.ErrRefreshFailed, res.ErrorMessage("refresh rejected"))
	}

	if !m.AdoptAt(ctx, gen, pair) {
		return "", fmt.Errorf("%w: session ended during refresh", errors.ErrNotAuthenticated)
	}
	return pair.AccessToken, nil
}

func (m *Manager) setCurrent(tok string) {
	m.mu.Lock()
	m.current = tok
	m.mu.Unlock()
}

func (m *Manager) publish(ev Event) {
	m.mu.RLock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
