package permit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// ============================================================================
// ROLE HIERARCHY RESOLVER
// ============================================================================

// RoleNode is one element of a resolved ancestor chain, self first.
type RoleNode struct {
	Role        *Role
	Permissions []PermissionKey
}

// ResolveRoleChain walks parent_role_id links from the given role upward and
// returns the chain (self first, root last) with each role's direct grants
// attached. Two bounds apply: the starting role's own MaxLevel, when set,
// caps how many ancestors it inherits from; the engine-wide depth ceiling is
// a pure cycle/DoS guard. Hitting either cut is not an error - a cyclic role
// chain is a configuration bug, and the engine degrades to the ancestors it
// reached.
func (e *Engine) ResolveRoleChain(ctx context.Context, roleID string) ([]RoleNode, error) {
	if cached, ok := e.cacheGetChain(roleID); ok {
		return cached, nil
	}

	chain := make([]RoleNode, 0, 4)
	visited := make(map[string]bool, 4)
	maxLevel := 0 // ancestors allowed above self; 0 = unbounded
	cur := roleID

	for level := 0; ; level++ {
		if level >= e.maxRoleDepth {
			e.report(Diagnostic{Kind: DiagRoleDepth, Subject: roleID,
				Detail: "ancestor walk cut at depth ceiling " + strconv.Itoa(e.maxRoleDepth)})
			break
		}
		if visited[cur] {
			e.report(Diagnostic{Kind: DiagRoleCycle, Subject: cur,
				Detail: "role inheritance revisits " + cur + " (chain rooted at " + roleID + ")"})
			break
		}

		role, err := e.catalog.GetRole(ctx, cur)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// dangling parent pointer or soft-deleted role: known ancestors only
				break
			}
			return nil, fmt.Errorf("get role %s: %w", cur, err)
		}
		visited[cur] = true

		perms, err := e.catalog.ListRolePermissions(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("list role permissions of %s: %w", cur, err)
		}
		chain = append(chain, RoleNode{Role: role, Permissions: perms})

		if level == 0 {
			maxLevel = role.MaxLevel
		}
		if role.ParentRoleID == "" {
			break
		}
		if maxLevel > 0 && level+1 > maxLevel {
			break
		}
		cur = role.ParentRoleID
	}

	e.cacheSetChain(roleID, chain)
	return chain, nil
}

// EffectivePermissions returns the union of a role's own grants and all its
// ancestors' grants.
func (e *Engine) EffectivePermissions(ctx context.Context, roleID string) (map[PermissionKey]struct{}, error) {
	chain, err := e.ResolveRoleChain(ctx, roleID)
	if err != nil {
		return nil, err
	}
	set := make(map[PermissionKey]struct{})
	for _, node := range chain {
		for _, key := range node.Permissions {
			set[key] = struct{}{}
		}
	}
	return set, nil
}
