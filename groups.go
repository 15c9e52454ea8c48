package permit

import (
	"context"
	"fmt"
	"sort"
)

// ============================================================================
// GROUP HIERARCHY RESOLVER
// ============================================================================

// ResolveGroups expands the principal's direct memberships into the full set
// of groups reachable over child -> parent nesting edges. A group inherits
// the roles of every group it is nested inside, so the closure feeds the
// grant collector directly.
//
// Traversal is breadth-first with a visited set; an edge back into an
// already-visited group is skipped, so cyclic nestings terminate with the
// set of distinct reachable nodes. The result is sorted for determinism.
func (e *Engine) ResolveGroups(ctx context.Context, tenantID, userID string) ([]string, error) {
	if cached, ok := e.cacheGetGroups(tenantID, userID); ok {
		return cached, nil
	}

	direct, err := e.dir.ListUserGroups(ctx, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list user groups: %w", err)
	}

	visited := make(map[string]bool, len(direct))
	queue := make([]string, 0, len(direct))
	for _, g := range direct {
		if visited[g] {
			continue
		}
		visited[g] = true
		queue = append(queue, g)
	}

	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]

		parents, err := e.dir.ListGroupParents(ctx, tenantID, g)
		if err != nil {
			return nil, fmt.Errorf("list group parents of %s: %w", g, err)
		}
		for _, p := range parents {
			if visited[p] {
				// repeat edge: cyclic or diamond nesting, already expanded
				e.logger.Debug("group edge revisited", "tenant", tenantID, "group", g, "parent", p)
				continue
			}
			visited[p] = true
			queue = append(queue, p)
		}
	}

	result := make([]string, 0, len(visited))
	for g := range visited {
		result = append(result, g)
	}
	sort.Strings(result)
	e.cacheSetGroups(tenantID, userID, result)
	return result, nil
}
