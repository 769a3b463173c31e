package tenants

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

// Snapshot is one fetch of the user's associations. It is replaced whole on
// every successful fetch and never mutated afterwards.
type Snapshot struct {
	tenants    []Tenant
	workspaces []Workspace
	projects   []Project

	// Positions by id into the slices above.
	tenantIdx    map[string]int
	workspaceIdx map[string]int
	projectIdx   map[string]int

	DefaultTenantID string

	// Profile fields the backend returns alongside the entities.
	Name         string
	Email        string
	ProfileImage string
}

// NewSnapshot builds a snapshot from entity lists, keeping their order. When
// an id repeats, the first entity with it wins.
func NewSnapshot(tenantList []Tenant, workspaceList []Workspace, projectList []Project, defaultTenantID string) *Snapshot {
	s := &Snapshot{
		tenants:         tenantList,
		workspaces:      workspaceList,
		projects:        projectList,
		DefaultTenantID: defaultTenantID,
	}
	s.index()
	return s
}

func (s *Snapshot) index() {
	s.tenants, s.tenantIdx = byID(s.tenants, func(t Tenant) string { return t.ID })
	s.workspaces, s.workspaceIdx = byID(s.workspaces, func(w Workspace) string { return w.ID })
	s.projects, s.projectIdx = byID(s.projects, func(p Project) string { return p.ID })
}

// byID copies items without later duplicates of an id and indexes them.
// Entities without an id are kept but cannot be looked up.
func byID[T any](items []T, id func(T) string) ([]T, map[string]int) {
	out := make([]T, 0, len(items))
	idx := make(map[string]int, len(items))
	for _, item := range items {
		key := id(item)
		if _, dup := idx[key]; dup && key != "" {
			continue
		}
		if key != "" {
			idx[key] = len(out)
		}
		out = append(out, item)
	}
	return out, idx
}

type associationsPayload struct {
	Entities struct {
		Tenants    orderedEntities[Tenant]    `json:"tenants"`
		Workspaces orderedEntities[workspace] `json:"workspaces"`
		Projects   orderedEntities[Project]   `json:"projects"`
	} `json:"entities"`
	DefaultTenantID string `json:"defaultTenantId"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	ProfileImage    string `json:"profileImage"`
}

type workspace struct {
	Workspace
	AltTenantID string `json:"tenantId"`
}

// ParseAssociations decodes the associations payload. Entities arrive as
// objects keyed by id; payload order is preserved so "first tenant" is stable.
func ParseAssociations(raw []byte) (*Snapshot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected an object", errors.ErrInvalidAssociation)
	}

	var p associationsPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidAssociation, err)
	}

	s := &Snapshot{
		tenants:         p.Entities.Tenants.values(),
		DefaultTenantID: p.DefaultTenantID,
		Name:            p.Name,
		Email:           p.Email,
		ProfileImage:    p.ProfileImage,
	}
	for _, w := range p.Entities.Workspaces.values() {
		ws := w.Workspace
		if ws.TenantID == "" {
			ws.TenantID = w.AltTenantID
		}
		s.workspaces = append(s.workspaces, ws)
	}
	s.projects = p.Entities.Projects.values()
	s.index()
	return s, nil
}

// Tenants returns the tenants in payload order.
func (s *Snapshot) Tenants() []Tenant {
	if s == nil {
		return nil
	}
	return append([]Tenant(nil), s.tenants...)
}

func (s *Snapshot) Workspaces() []Workspace {
	if s == nil {
		return nil
	}
	return append([]Workspace(nil), s.workspaces...)
}

func (s *Snapshot) Projects() []Project {
	if s == nil {
		return nil
	}
	return append([]Project(nil), s.projects...)
}

func (s *Snapshot) Tenant(id string) (Tenant, bool) {
	if s == nil || id == "" {
		return Tenant{}, false
	}
	i, ok := s.tenantIdx[id]
	if !ok {
		return Tenant{}, false
	}
	return s.tenants[i], true
}

func (s *Snapshot) HasTenant(id string) bool {
	_, ok := s.Tenant(id)
	return ok
}

func (s *Snapshot) Workspace(id string) (Workspace, bool) {
	if s == nil || id == "" {
		return Workspace{}, false
	}
	i, ok := s.workspaceIdx[id]
	if !ok {
		return Workspace{}, false
	}
	return s.workspaces[i], true
}

func (s *Snapshot) Project(id string) (Project, bool) {
	if s == nil || id == "" {
		return Project{}, false
	}
	i, ok := s.projectIdx[id]
	if !ok {
		return Project{}, false
	}
	return s.projects[i], true
}

// WorkspacesFor lists the workspaces owned by tenantID.
func (s *Snapshot) WorkspacesFor(tenantID string) []Workspace {
	if s == nil || tenantID == "" {
		return nil
	}
	var out []Workspace
	for _, w := range s.workspaces {
		if w.TenantID == tenantID {
			out = append(out, w)
		}
	}
	return out
}

// ProjectsFor lists the projects in workspaceID.
func (s *Snapshot) ProjectsFor(workspaceID string) []Project {
	if s == nil || workspaceID == "" {
		return nil
	}
	var out []Project
	for _, p := range s.projects {
		if p.WorkspaceID == workspaceID {
			out = append(out, p)
		}
	}
	return out
}

// FindTenantByName returns the first tenant named name, ignoring surrounding
// space in the argument.
func (s *Snapshot) FindTenantByName(name string) (Tenant, bool) {
	if s == nil {
		return Tenant{}, false
	}
	want := strings.TrimSpace(name)
	for _, t := range s.tenants {
		if t.Name == want {
			return t, true
		}
	}
	return Tenant{}, false
}

// orderedEntities decodes a JSON object of id -> entity, keeping key order.
// An array of entities is accepted as well.
type orderedEntities[T any] struct {
	items []T
}

func (o *orderedEntities[T]) values() []T {
	return o.items
}

func (o *orderedEntities[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		return json.Unmarshal(trimmed, &o.items)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object of entities, got %v", tok)
	}
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return err
		}
		var item T
		if err := dec.Decode(&item); err != nil {
			return err
		}
		o.items = append(o.items, item)
	}
	_, err = dec.Token()
	return err
}
