package permit

import (
	"context"
	"fmt"
	"sort"
)

// ============================================================================
// OVERRIDE LAYER
// ============================================================================

// FindOverride returns the explicit deny matching the principal for this
// tenant and permission, or nil. A row matches when its principal is the
// user itself, any group in the resolved closure, or any role in the RBAC
// baseline (inherited ancestors included). Matching order is user, then
// groups, then roles; within a type the lowest principal id wins, so the
// reported source is deterministic.
func (e *Engine) FindOverride(ctx context.Context, req *CheckRequest, groups []string, base *Baseline) (*PermissionOverride, error) {
	rows, err := e.overrides.ListOverrides(ctx, req.TenantID, req.PermissionKey)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	groupSet := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		groupSet[g] = struct{}{}
	}

	var matched []*PermissionOverride
	for _, ov := range rows {
		switch ov.PrincipalType {
		case PrincipalUser:
			if ov.PrincipalID == req.PrincipalID {
				matched = append(matched, ov)
			}
		case PrincipalGroup:
			if _, ok := groupSet[ov.PrincipalID]; ok {
				matched = append(matched, ov)
			}
		case PrincipalRole:
			if _, ok := base.RoleIDs[ov.PrincipalID]; ok {
				matched = append(matched, ov)
			}
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].PrincipalType != matched[j].PrincipalType {
			return overrideRank(matched[i].PrincipalType) < overrideRank(matched[j].PrincipalType)
		}
		return matched[i].PrincipalID < matched[j].PrincipalID
	})
	return matched[0], nil
}

func overrideRank(t PrincipalType) int {
	switch t {
	case PrincipalUser:
		return 0
	case PrincipalGroup:
		return 1
	default:
		return 2
	}
}
