package sessions

import (
	"context"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-tenant-session/graphql"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/selection"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/tenants/switcher"
	"github.com/rs/zerolog/log"
)

// LoadInitial fetches the associations, settles which tenant the session
// should be in and switches to it when the token says otherwise. It runs once
// per cold start, and again when the token's tenant changes under it.
func (c *Coordinator) LoadInitial(ctx context.Context) error {
	st := c.State()
	if !st.IsAuthenticated() {
		c.update(func(s *State) { s.Loading = false })
		return nil
	}
	if c.switcher.Latch().Busy() {
		return nil
	}

	claimTid := st.ClaimTenantID()
	c.mu.Lock()
	if claimTid != "" && c.restored && c.lastLoadedTid == claimTid {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	epoch := c.epoch.Add(1)

	if !c.manager.CheckConsistency(ctx) {
		return errors.ErrNotAuthenticated
	}

	c.update(func(s *State) {
		s.Loading = true
		s.AssociationsLoading = true
		s.Error = ""
	})

	persisted := c.selection.Persisted(ctx).TenantID
	switches := c.switcher.Latch().Generation()
	snap, err := c.cache.Fetch(ctx, "")
	if c.stale(ctx, epoch) {
		return c.abandonLoad(ctx, epoch)
	}
	if latch := c.switcher.Latch(); latch.Busy() || latch.Generation() != switches {
		// A switch ran meanwhile and publishes its own scope.
		c.update(func(s *State) {
			s.Loading = false
			s.AssociationsLoading = false
		})
		return nil
	}
	if err != nil {
		c.failLoad(err)
		return err
	}

	target, source := selection.ResolveInitialTenant(snap, persisted, claimTid)
	log.Debug().Str("tenant", target).Str("source", string(source)).Str("claim", claimTid).Msg("resolved initial tenant")

	if target != "" && claimTid != "" && target != claimTid {
		if !c.switcher.Latch().TryAcquire(switcher.Restoring) {
			c.update(func(s *State) {
				s.Loading = false
				s.AssociationsLoading = false
			})
			return nil
		}
		restored, err := c.restoreTenant(ctx, epoch, target)
		if c.stale(ctx, epoch) {
			return c.abandonLoad(ctx, epoch)
		}
		if err != nil {
			// Stay in the token's tenant with the snapshot already fetched.
			log.Warn().Err(err).Str("tenant", target).Msg("unable to restore tenant")
			c.update(func(s *State) { s.Error = err.Error() })
			target = claimTid
		} else {
			snap = restored
		}
	}

	c.cache.Publish(snap)
	sel := c.selection.SelectTenant(ctx, target, snap)

	c.mu.Lock()
	c.restored = true
	c.lastLoadedTid = firstNonEmpty(target, claimTid)
	c.mu.Unlock()

	c.publishScope(snap, sel)
	return nil
}

// restoreTenant runs the switch for LoadInitial. The caller has taken the
// latch in the Restoring state.
func (c *Coordinator) restoreTenant(ctx context.Context, epoch uint64, tenantID string) (*tenants.Snapshot, error) {
	defer c.switcher.Latch().Release()
	c.update(func(s *State) { s.Switching = true })
	defer c.update(func(s *State) { s.Switching = false })

	access, err := c.switcher.Exchange(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if c.stale(ctx, epoch) {
		return nil, ctx.Err()
	}
	return c.cache.Fetch(ctx, access)
}

// SelectOrg moves the session to tenantID. Selecting the current tenant, or
// calling while another switch runs, does nothing. When the token is already
// scoped to tenantID only the local selection changes.
func (c *Coordinator) SelectOrg(ctx context.Context, tenantID string) error {
	st := c.State()
	if tenantID == st.Selection.TenantID {
		return nil
	}
	if !st.IsAuthenticated() {
		return errors.ErrNotAuthenticated
	}
	if st.Associations != nil && !st.Associations.HasTenant(tenantID) {
		return fmt.Errorf("%w: %s", errors.ErrTenantNotFound, tenantID)
	}
	latch := c.switcher.Latch()
	if latch.Busy() {
		return nil
	}

	if tenantID == st.ClaimTenantID() {
		sel := c.selection.SelectTenant(ctx, tenantID, st.Associations)
		c.markLoaded(tenantID)
		c.update(func(s *State) {
			s.Selection = sel
			s.ProjectDetails = nil
		})
		return nil
	}

	gen := c.manager.Generation()
	if !latch.TryAcquire(switcher.Switching) {
		return nil
	}
	defer latch.Release()
	defer c.update(func(s *State) { s.Switching = false })
	c.update(func(s *State) {
		s.Switching = true
		s.Loading = true
		s.Error = ""
	})

	access, err := c.switcher.Exchange(ctx, tenantID)
	if stop := c.interrupted(ctx, gen); stop != nil {
		return stop
	}
	if err != nil {
		c.failSwitch(err)
		return err
	}
	c.markLoaded(tenantID)

	snap, err := c.cache.Fetch(ctx, access)
	if stop := c.interrupted(ctx, gen); stop != nil {
		return stop
	}
	if err != nil {
		c.failSwitch(err)
		c.cache.Fail(err)
		return err
	}
	c.cache.Publish(snap)
	sel := c.selection.SelectTenant(ctx, tenantID, snap)
	c.publishScope(snap, sel)
	return nil
}

// SelectWorkspace selects a workspace of the selected tenant. An id outside
// the tenant leaves no workspace selected.
func (c *Coordinator) SelectWorkspace(ctx context.Context, workspaceID string) selection.Selection {
	sel := c.selection.SelectWorkspace(ctx, workspaceID, c.cache.Snapshot())
	c.publishSelection(sel)
	return sel
}

func (c *Coordinator) SelectProject(ctx context.Context, projectID string) selection.Selection {
	sel := c.selection.SelectProject(ctx, projectID, c.cache.Snapshot())
	c.publishSelection(sel)
	return sel
}

// RefreshAssociations refetches the snapshot. It is skipped while a switch
// runs, and a result that overlaps a switch is dropped.
func (c *Coordinator) RefreshAssociations(ctx context.Context) error {
	err := c.refetch(ctx)
	if errors.Is(err, errors.ErrSwitchInProgress) {
		return nil
	}
	return err
}

// refetch is RefreshAssociations for callers that need to know the fetch was
// skipped or dropped: it returns errors.ErrSwitchInProgress then.
func (c *Coordinator) refetch(ctx context.Context) error {
	latch := c.switcher.Latch()
	if latch.Busy() {
		return errors.ErrSwitchInProgress
	}
	if !c.manager.CheckConsistency(ctx) {
		return errors.ErrNotAuthenticated
	}
	gen := c.manager.Generation()
	switches := latch.Generation()
	c.update(func(s *State) {
		s.AssociationsLoading = true
		s.Error = ""
	})

	snap, err := c.cache.Fetch(ctx, "")
	if stop := c.interrupted(ctx, gen); stop != nil {
		return stop
	}
	if latch.Busy() || latch.Generation() != switches {
		log.Debug().Msg("discarding associations fetched across a tenant switch")
		c.update(func(s *State) { s.AssociationsLoading = false })
		return errors.ErrSwitchInProgress
	}
	if err != nil {
		c.cache.Fail(err)
		c.update(func(s *State) {
			s.AssociationsLoading = false
			s.AssociationsError = err.Error()
		})
		return err
	}
	return c.applySnapshot(ctx, snap)
}

// CreateTenant creates a tenant, switches into it and selects it. A blank
// name does nothing.
func (c *Coordinator) CreateTenant(ctx context.Context, name string, tenantType tenants.TenantType) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	gen := c.manager.Generation()
	latch := c.switcher.Latch()
	if !latch.TryAcquire(switcher.Switching) {
		return errors.ErrSwitchInProgress
	}
	defer latch.Release()
	defer c.update(func(s *State) { s.Switching = false })
	c.update(func(s *State) {
		s.Switching = true
		s.Error = ""
	})

	data, err := c.auth.Post(ctx, graphql.CreateTenantMutation, map[string]any{
		"tenantName": name,
		"tenantType": string(tenantType),
	})
	if stop := c.interrupted(ctx, gen); stop != nil {
		return stop
	}
	if err == nil {
		err = checkMutation(data, graphql.FieldCreateTenant, "Failed to create organization")
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", errors.ErrCreateFailed, err)
		c.failSwitch(err)
		return err
	}

	snap, err := c.cache.Fetch(ctx, "")
	if stop := c.interrupted(ctx, gen); stop != nil {
		return stop
	}
	if err != nil {
		c.failSwitch(err)
		return err
	}
	created, ok := snap.FindTenantByName(name)
	if !ok {
		err := fmt.Errorf("%w: Could not find newly created organization", errors.ErrCreateFailed)
		c.failSwitch(err)
		return err
	}

	access, err := c.switcher.Exchange(ctx, created.ID)
	if stop := c.interrupted(ctx, gen); stop != nil {
		return stop
	}
	if err != nil {
		c.failSwitch(err)
		return err
	}
	c.markLoaded(created.ID)

	snap, err = c.cache.Fetch(ctx, access)
	if stop := c.interrupted(ctx, gen); stop != nil {
		return stop
	}
	if err != nil {
		c.failSwitch(err)
		return err
	}
	c.cache.Publish(snap)
	sel := c.selection.SelectTenant(ctx, created.ID, snap)
	c.publishScope(snap, sel)
	log.Info().Str("tenant", created.ID).Str("name", name).Msg("created tenant")
	return nil
}

// CreateWorkspace creates a workspace in the token's tenant and refetches the
// associations. The caller selects it. When a tenant switch overlaps the
// refetch the workspace exists but errors.ErrSwitchInProgress is returned,
// and the caller should refresh once the switch is done.
func (c *Coordinator) CreateWorkspace(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	data, err := c.auth.Post(ctx, graphql.CreateWorkspaceMutation, map[string]any{"workspaceName": name})
	if err == nil {
		err = checkMutation(data, graphql.FieldCreateWorkspace, "Failed to create workspace")
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrCreateFailed, err)
	}
	return c.refetch(ctx)
}

// CreateProject creates a project in workspaceID, or in the selected workspace
// when workspaceID is empty, and refetches the associations. A refetch
// overlapping a tenant switch is reported as in CreateWorkspace.
func (c *Coordinator) CreateProject(ctx context.Context, name string, projectType tenants.ProjectType, workspaceID string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	wid := firstNonEmpty(workspaceID, c.selection.Current().WorkspaceID)
	if wid == "" {
		return fmt.Errorf("%w: no workspace selected", errors.ErrInvalidRequest)
	}

	data, err := c.auth.Post(ctx, graphql.CreateProjectMutation, map[string]any{
		"wid":         wid,
		"projectName": name,
		"projectType": string(projectType),
	})
	if err == nil {
		err = checkMutation(data, graphql.FieldCreateProject, "Failed to create project")
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrCreateFailed, err)
	}
	return c.refetch(ctx)
}

// ProjectDetails loads repository details of a project into the state. Empty
// ids, or a failed lookup, clear them.
func (c *Coordinator) ProjectDetails(ctx context.Context, workspaceID, projectID string) (*graphql.ProjectDetails, error) {
	if workspaceID == "" || projectID == "" {
		c.update(func(s *State) { s.ProjectDetails = nil })
		return nil, nil
	}

	data, err := c.auth.Post(ctx, graphql.ProjectDetailsMutation, map[string]any{"wid": workspaceID, "pid": projectID})
	var details graphql.ProjectDetails
	if err == nil {
		err = graphql.Field(data, graphql.FieldProjectDetails, &details)
	}
	if err != nil {
		log.Err(err).Str("project", projectID).Msg("unable to fetch project details")
		c.update(func(s *State) { s.ProjectDetails = nil })
		return nil, err
	}
	c.update(func(s *State) { s.ProjectDetails = &details })
	return &details, nil
}

// applySnapshot publishes snap and re-validates the selection against it.
func (c *Coordinator) applySnapshot(ctx context.Context, snap *tenants.Snapshot) error {
	c.cache.Publish(snap)
	sel := c.selection.Enforce(ctx, snap)
	c.publishScope(snap, sel)
	return nil
}

func (c *Coordinator) publishScope(snap *tenants.Snapshot, sel selection.Selection) {
	c.update(func(s *State) {
		if s.Selection.ProjectID != sel.ProjectID {
			s.ProjectDetails = nil
		}
		s.Associations = snap
		s.Selection = sel
		s.AssociationsError = ""
		s.AssociationsLoading = false
		s.Loading = false
		applyProfile(s, snap)
	})
}

func (c *Coordinator) publishSelection(sel selection.Selection) {
	c.update(func(s *State) {
		if s.Selection.ProjectID != sel.ProjectID {
			s.ProjectDetails = nil
		}
		s.Selection = sel
	})
}

func (c *Coordinator) failLoad(err error) {
	c.cache.Fail(err)
	c.update(func(s *State) {
		s.Loading = false
		s.AssociationsLoading = false
		s.AssociationsError = err.Error()
		s.Error = err.Error()
	})
}

func (c *Coordinator) failSwitch(err error) {
	log.Err(err).Msg("tenant change failed")
	c.update(func(s *State) {
		s.Loading = false
		s.Switching = false
		s.Error = err.Error()
	})
}

func (c *Coordinator) markLoaded(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restored = true
	c.lastLoadedTid = tenantID
}

// interrupted reports why an operation begun at token generation gen must
// not publish: ctx is done, or the session it ran for was logged out.
func (c *Coordinator) interrupted(ctx context.Context, gen uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.manager.Generation() != gen {
		return fmt.Errorf("%w: session ended", errors.ErrNotAuthenticated)
	}
	return nil
}

// abandonLoad ends a load that was overtaken. Only a load that is still the
// latest one may touch the loading flags.
func (c *Coordinator) abandonLoad(ctx context.Context, epoch uint64) error {
	if c.epoch.Load() == epoch {
		c.update(func(s *State) {
			s.Loading = false
			s.AssociationsLoading = false
		})
	}
	return ctx.Err()
}

// stale reports whether a load begun at epoch has been overtaken.
func (c *Coordinator) stale(ctx context.Context, epoch uint64) bool {
	return ctx.Err() != nil || c.epoch.Load() != epoch
}
