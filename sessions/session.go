package sessions

import (
	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/selection"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/token"
)

// User is the signed in user as the dashboard shows it. It starts from the
// token claims and is enriched by the associations profile fields.
type User struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	ProfileImageURL  string `json:"profileImage,omitempty"`
	IsSuperAdmin     bool   `json:"isSuperAdmin"`
	ProfileCompleted bool   `json:"profileCompleted"`
}

// UserFromClaims builds the user a token describes.
func UserFromClaims(c *token.Claims) User {
	if c == nil {
		return User{}
	}
	return User{
		ID:           c.SubjectID,
		Name:         c.Name,
		Email:        c.Email,
		IsSuperAdmin: c.IsAdmin,
	}
}

// State is a point in time copy of the session. Pointer fields are never
// mutated after publication, so a State may be held onto freely.
type State struct {
	Tokens *token.Pair   `json:"-"`
	User   *User         `json:"user,omitempty"`
	Claims *token.Claims `json:"claims,omitempty"`

	Loading     bool `json:"loading"`
	Initialized bool `json:"initialized"`

	AssociationsLoading bool              `json:"associationsLoading"`
	AssociationsError   string            `json:"associationsError,omitempty"`
	Associations        *tenants.Snapshot `json:"-"`

	// Error is the last tenant level failure: a switch, a load or a create.
	Error     string `json:"error,omitempty"`
	Switching bool   `json:"switching"`

	Selection      selection.Selection     `json:"selection"`
	ProjectDetails *graphql.ProjectDetails `json:"projectDetails,omitempty"`
}

func (s State) IsAuthenticated() bool {
	return s.Tokens != nil && s.Tokens.AccessToken != ""
}

// ClaimTenantID is the tenant the server believes is active.
func (s State) ClaimTenantID() string {
	if s.Claims == nil {
		return ""
	}
	return s.Claims.TenantID
}

// applyProfile overwrites the user's name, email and avatar with the
// profile fields of a fresh snapshot. Empty name and email keep the old value.
func applyProfile(s *State, snap *tenants.Snapshot) {
	if s.User == nil || snap == nil {
		return
	}
	u := *s.User
	if snap.Name != "" {
		u.Name = snap.Name
	}
	if snap.Email != "" {
		u.Email = snap.Email
	}
	u.ProfileImageURL = snap.ProfileImage
	s.User = &u
}
