package selection

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/jrsteele09/go-tenant-session/kvstore"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/rs/zerolog/log"
)

// Keys the selection is persisted under.
const (
	TenantKey    = "selectedTenant"
	WorkspaceKey = "selectedWorkspace"
	ProjectKey   = "selectedProject"
)

// Selection is the user's cursor into the associations snapshot.
type Selection struct {
	TenantID    string `json:"tenantId,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	ProjectID   string `json:"projectId,omitempty"`
}

// Machine owns the selection. Every change is persisted and followed by
// Enforce, so a child selection never outlives its parent.
type Machine struct {
	kv kvstore.Store

	mu       sync.Mutex
	sel      Selection
	restored struct {
		workspace bool
		project   bool
	}
}

func NewMachine(kv kvstore.Store) *Machine {
	return &Machine{kv: kv}
}

func (m *Machine) Current() Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sel
}

// Persisted reads the stored selection. Read failures count as no selection.
func (m *Machine) Persisted(ctx context.Context) Selection {
	return Selection{
		TenantID:    m.get(ctx, TenantKey),
		WorkspaceID: m.get(ctx, WorkspaceKey),
		ProjectID:   m.get(ctx, ProjectKey),
	}
}

// SelectTenant sets the tenant and then restores or validates the children
// against s.
func (m *Machine) SelectTenant(ctx context.Context, tenantID string, s *tenants.Snapshot) Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sel.TenantID != tenantID {
		m.sel.TenantID = tenantID
		m.persist(ctx, TenantKey, tenantID)
	}
	m.restore(ctx, s)
	m.enforce(ctx, s)
	return m.sel
}

func (m *Machine) SelectWorkspace(ctx context.Context, workspaceID string, s *tenants.Snapshot) Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sel.WorkspaceID != workspaceID {
		m.sel.WorkspaceID = workspaceID
		m.persist(ctx, WorkspaceKey, workspaceID)
	}
	// A user pick settles the scope; a later restore must not override it.
	m.restored.workspace = true
	m.restore(ctx, s)
	m.enforce(ctx, s)
	return m.sel
}

func (m *Machine) SelectProject(ctx context.Context, projectID string, s *tenants.Snapshot) Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sel.ProjectID != projectID {
		m.sel.ProjectID = projectID
		m.persist(ctx, ProjectKey, projectID)
	}
	m.restored.project = true
	m.enforce(ctx, s)
	return m.sel
}

// Enforce clears a workspace that is not in the selected tenant and a
// project that is not in the selected workspace, removing their persisted
// entries. It never picks a replacement.
func (m *Machine) Enforce(ctx context.Context, s *tenants.Snapshot) Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enforce(ctx, s)
	return m.sel
}

// Reset forgets the in-memory selection and restore state, leaving the
// persisted entries alone. Used at cold start.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel = Selection{}
	m.restored.workspace = false
	m.restored.project = false
}

// Clear forgets the selection and removes every persisted entry.
func (m *Machine) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel = Selection{}
	m.restored.workspace = false
	m.restored.project = false

	var result *multierror.Error
	for _, key := range []string{TenantKey, WorkspaceKey, ProjectKey} {
		if err := m.kv.Delete(ctx, key); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return result.ErrorOrNil()
}

// restore applies the persisted workspace and project, once each per cold
// start, when the parent is selected and the stored id is still listed.
func (m *Machine) restore(ctx context.Context, s *tenants.Snapshot) {
	if s == nil {
		return
	}
	if !m.restored.workspace && m.sel.TenantID != "" {
		m.restored.workspace = true
		if id := m.get(ctx, WorkspaceKey); id != "" && containsWorkspace(s.WorkspacesFor(m.sel.TenantID), id) {
			m.sel.WorkspaceID = id
		}
	}
	if !m.restored.project && m.sel.WorkspaceID != "" {
		m.restored.project = true
		if id := m.get(ctx, ProjectKey); id != "" && containsProject(s.ProjectsFor(m.sel.WorkspaceID), id) {
			m.sel.ProjectID = id
		}
	}
}

func (m *Machine) enforce(ctx context.Context, s *tenants.Snapshot) {
	if m.sel.WorkspaceID != "" {
		valid := m.sel.TenantID != ""
		if valid && s != nil {
			w, ok := s.Workspace(m.sel.WorkspaceID)
			valid = ok && w.TenantID == m.sel.TenantID
		}
		if !valid {
			log.Debug().Str("workspace", m.sel.WorkspaceID).Str("tenant", m.sel.TenantID).Msg("clearing workspace outside selected tenant")
			m.sel.WorkspaceID = ""
			m.persist(ctx, WorkspaceKey, "")
		}
	}
	if m.sel.ProjectID != "" {
		valid := m.sel.WorkspaceID != ""
		if valid && s != nil {
			p, ok := s.Project(m.sel.ProjectID)
			valid = ok && p.WorkspaceID == m.sel.WorkspaceID
		}
		if !valid {
			log.Debug().Str("project", m.sel.ProjectID).Str("workspace", m.sel.WorkspaceID).Msg("clearing project outside selected workspace")
			m.sel.ProjectID = ""
			m.persist(ctx, ProjectKey, "")
		}
	}
}

// persist writes value under key, deleting the entry when value is empty.
func (m *Machine) persist(ctx context.Context, key, value string) {
	var err error
	if value == "" {
		err = m.kv.Delete(ctx, key)
	} else {
		err = m.kv.Set(ctx, key, value)
	}
	if err != nil {
		log.Err(err).Str("key", key).Msg("unable to persist selection")
	}
}

func (m *Machine) get(ctx context.Context, key string) string {
	v, ok, err := m.kv.Get(ctx, key)
	if err != nil {
		log.Err(err).Str("key", key).Msg("unable to read persisted selection")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func containsWorkspace(list []tenants.Workspace, id string) bool {
	for _, w := range list {
		if w.ID == id {
			return true
		}
	}
	return false
}

func containsProject(list []tenants.Project, id string) bool {
	for _, p := range list {
		if p.ID == id {
			return true
		}
	}
	return false
}
