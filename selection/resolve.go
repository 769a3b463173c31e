package selection

import "github.com/jrsteele09/go-tenant-session/tenants"

// Source says which rule picked the initial tenant.
type Source string

const (
	FromPersisted Source = "persisted"
	FromClaim     Source = "claim"
	FromDefault   Source = "default"
	FromFirst     Source = "first"
	FromNone      Source = "none"
)

// ResolveInitialTenant picks the tenant a cold start should land on: the
// persisted selection, then the token's tenant, then the server default, then
// the first tenant listed. Each candidate must be in the snapshot.
func ResolveInitialTenant(s *tenants.Snapshot, persisted, claimTenant string) (string, Source) {
	switch {
	case s.HasTenant(persisted):
		return persisted, FromPersisted
	case s.HasTenant(claimTenant):
		return claimTenant, FromClaim
	case s != nil && s.HasTenant(s.DefaultTenantID):
		return s.DefaultTenantID, FromDefault
	}
	if list := s.Tenants(); len(list) > 0 {
		return list[0].ID, FromFirst
	}
	return "", FromNone
}
