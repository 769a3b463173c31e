package tenants

import (
	"fmt"
	"strings"
)

// Tenant is a top-level organisation the user belongs to.
type Tenant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Workspace belongs to exactly one tenant. The backend calls the owning
// tenant "orgId"; "tenantId" is accepted too.
type Workspace struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	TenantID string `json:"orgId"`
}

// Project belongs to exactly one workspace.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
}

type TenantType string

const (
	TenantStudent  TenantType = "STUDENT"
	TenantPersonal TenantType = "PERSONAL"
	TenantBusiness TenantType = "BUSINESS"
)

type ProjectType string

const (
	ProjectFrontend ProjectType = "FRONTEND"
	ProjectBackend  ProjectType = "BACKEND"
	ProjectMonorepo ProjectType = "MONOREPO"
)

func ParseTenantType(s string) (TenantType, error) {
	switch t := TenantType(strings.ToUpper(strings.TrimSpace(s))); t {
	case TenantStudent, TenantPersonal, TenantBusiness:
		return t, nil
	default:
		return "", fmt.Errorf("unknown tenant type %q (want STUDENT, PERSONAL or BUSINESS)", s)
	}
}

func ParseProjectType(s string) (ProjectType, error) {
	switch t := ProjectType(strings.ToUpper(strings.TrimSpace(s))); t {
	case ProjectFrontend, ProjectBackend, ProjectMonorepo:
		return t, nil
	default:
		return "", fmt.Errorf("unknown project type %q (want FRONTEND, BACKEND or MONOREPO)", s)
	}
}
