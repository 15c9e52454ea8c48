package permit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ============================================================================
// GRANT COLLECTOR
// ============================================================================

// Baseline is the RBAC permission-key set for one principal in one tenant,
// with per-key provenance for the decision's source field. RoleIDs carries
// every role the principal holds (directly or via a group), including
// inherited ancestors; the override layer matches against it.
type Baseline struct {
	Permissions map[PermissionKey]GrantSource
	RoleIDs     map[string]struct{}
}

// CollectGrants joins direct user grants and group-derived grants against
// the role hierarchy and returns the RBAC baseline.
//
// A UserRole row contributes only when it is active (expiry re-checked here,
// not by any cleanup job), its role's scope matches the calling side, and -
// when the grant is compartment-scoped - the addressed compartment equals or
// descends from the grant's compartment. GroupRole rows contribute for every
// group in the resolved closure that still exists; a group the directory no
// longer knows (deleted, or soft deleted) grants nothing.
func (e *Engine) CollectGrants(ctx context.Context, req *CheckRequest, groups []string) (*Baseline, error) {
	base := &Baseline{
		Permissions: make(map[PermissionKey]GrantSource),
		RoleIDs:     make(map[string]struct{}),
	}
	now := time.Now()

	userRoles, err := e.dir.ListUserRoles(ctx, req.TenantID, req.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	for _, ur := range userRoles {
		if !ur.Active(now) {
			e.logger.Debug("grant expired", "user", ur.UserID, "role", ur.RoleID, "expires_at", ur.ExpiresAt)
			continue
		}
		ok, err := e.compartmentApplies(ctx, ur.CompartmentID, req.CompartmentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := e.mergeRole(ctx, base, ur.RoleID, req.ProviderSide, GrantSource{}); err != nil {
			return nil, err
		}
	}

	for _, groupID := range groups {
		g, err := e.dir.GetGroup(ctx, groupID)
		if errors.Is(err, ErrNotFound) {
			e.logger.Debug("skipping absent group", "group", groupID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get group %s: %w", groupID, err)
		}
		roleIDs, err := e.dir.ListGroupRoles(ctx, req.TenantID, groupID)
		if err != nil {
			return nil, fmt.Errorf("list group roles of %s: %w", groupID, err)
		}
		src := GrantSource{GroupID: groupID, GroupName: g.Name}
		for _, roleID := range roleIDs {
			if err := e.mergeRole(ctx, base, roleID, req.ProviderSide, src); err != nil {
				return nil, err
			}
		}
	}

	return base, nil
}

// mergeRole expands one resolved role through the hierarchy and unions its
// chain's permission keys into the baseline. First contributor of a key wins
// the provenance slot; direct grants are merged before group grants, so a
// direct role always out-reports a group path to the same key.
func (e *Engine) mergeRole(ctx context.Context, base *Baseline, roleID string, providerSide bool, src GrantSource) error {
	chain, err := e.ResolveRoleChain(ctx, roleID)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return nil
	}
	if !scopeCompatible(chain[0].Role.Scope, providerSide) {
		e.logger.Debug("grant scope mismatch", "role", roleID, "scope", chain[0].Role.Scope, "provider_side", providerSide)
		return nil
	}

	holder := chain[0].Role
	src.RoleID = holder.ID
	src.RoleName = holder.Name
	for _, node := range chain {
		base.RoleIDs[node.Role.ID] = struct{}{}
		for _, key := range node.Permissions {
			if _, exists := base.Permissions[key]; !exists {
				base.Permissions[key] = src
			}
		}
	}
	return nil
}

// scopeCompatible matches the role's declared side against the caller's.
// Roles with no declared scope count as tenant-side.
func scopeCompatible(scope RoleScope, providerSide bool) bool {
	if providerSide {
		return scope == ScopeProvider
	}
	return scope == ScopeTenant || scope == ""
}

// compartmentApplies decides whether a grant narrowed to grantCompartment
// covers the addressed compartment. Tenant-wide grants always apply; a
// narrowed grant with no addressed compartment (or no resolver installed)
// does not - narrowing fails closed.
func (e *Engine) compartmentApplies(ctx context.Context, grantCompartment, addressed string) (bool, error) {
	if grantCompartment == "" {
		return true, nil
	}
	if addressed == "" || e.compartments == nil {
		return false, nil
	}
	if grantCompartment == addressed {
		return true, nil
	}
	ok, err := e.compartments.Contains(ctx, grantCompartment, addressed)
	if err != nil {
		return false, fmt.Errorf("compartment containment %s in %s: %w", addressed, grantCompartment, err)
	}
	return ok, nil
}
