package permit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// IN-MEMORY STORES
// ============================================================================
//
// Reference implementations of the read interfaces, used by tests, examples
// and the config loader. The mutators model the administrative operations
// that own this data in production; the engine itself never calls them.

// MemoryCatalogStore holds permissions, roles and role grants.
type MemoryCatalogStore struct {
	mu          sync.RWMutex
	permissions map[PermissionKey]*Permission
	roles       map[string]*Role
	rolePerms   map[string][]PermissionKey
}

func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{
		permissions: make(map[PermissionKey]*Permission),
		roles:       make(map[string]*Role),
		rolePerms:   make(map[string][]PermissionKey),
	}
}

func (s *MemoryCatalogStore) AddPermission(p *Permission) error {
	if !ValidKey(p.Key()) {
		return fmt.Errorf("permit: malformed permission key %q", p.Key())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permissions[p.Key()] = p
	return nil
}

func (s *MemoryCatalogStore) AddRole(r *Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID] = r
}

func (s *MemoryCatalogStore) AddRolePermission(roleID string, key PermissionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.rolePerms[roleID] {
		if k == key {
			return
		}
	}
	s.rolePerms[roleID] = append(s.rolePerms[roleID], key)
}

// SoftDeleteRole marks the role deleted; reads treat it as absent.
func (s *MemoryCatalogStore) SoftDeleteRole(roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.roles[roleID]; ok {
		now := time.Now()
		r.DeletedAt = &now
	}
}

func (s *MemoryCatalogStore) GetPermission(_ context.Context, key PermissionKey) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[key]
	if !ok || p.DeletedAt != nil {
		return nil, fmt.Errorf("permission %s: %w", key, ErrNotFound)
	}
	return p, nil
}

func (s *MemoryCatalogStore) ListPermissions(_ context.Context) ([]*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		if p.DeletedAt == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryCatalogStore) GetRole(_ context.Context, roleID string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok || r.DeletedAt != nil {
		return nil, fmt.Errorf("role %s: %w", roleID, ErrNotFound)
	}
	return r, nil
}

func (s *MemoryCatalogStore) ListRolePermissions(_ context.Context, roleID string) ([]PermissionKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.rolePerms[roleID]
	out := make([]PermissionKey, len(keys))
	copy(out, keys)
	return out, nil
}

// MemoryDirectoryStore holds groups, memberships and grants.
type MemoryDirectoryStore struct {
	mu           sync.RWMutex
	groups       map[string]*Group
	userGroups   map[string][]string // tenant|user -> group ids
	groupParents map[string][]string // tenant|group -> parent group ids
	groupRoles   map[string][]string // tenant|group -> role ids
	userRoles    map[string][]*UserRole
}

func NewMemoryDirectoryStore() *MemoryDirectoryStore {
	return &MemoryDirectoryStore{
		groups:       make(map[string]*Group),
		userGroups:   make(map[string][]string),
		groupParents: make(map[string][]string),
		groupRoles:   make(map[string][]string),
		userRoles:    make(map[string][]*UserRole),
	}
}

func scopedKey(tenantID, id string) string { return tenantID + "|" + id }

func (s *MemoryDirectoryStore) AddGroup(g *Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
}

// SoftDeleteGroup marks the group deleted; reads treat it as absent and its
// role attachments stop granting.
func (s *MemoryDirectoryStore) SoftDeleteGroup(groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[groupID]; ok {
		now := time.Now()
		g.DeletedAt = &now
	}
}

func (s *MemoryDirectoryStore) AddUserGroup(tenantID, userID, groupID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopedKey(tenantID, userID)
	s.userGroups[k] = append(s.userGroups[k], groupID)
}

// AddGroupMembership nests child inside parent. Self-loops are rejected the
// way the database constraint rejects them; longer cycles are deliberately
// representable, the resolver must survive them.
func (s *MemoryDirectoryStore) AddGroupMembership(tenantID, parentGroupID, childGroupID string) error {
	if parentGroupID == childGroupID {
		return fmt.Errorf("permit: group %s cannot contain itself", parentGroupID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopedKey(tenantID, childGroupID)
	s.groupParents[k] = append(s.groupParents[k], parentGroupID)
	return nil
}

func (s *MemoryDirectoryStore) AddGroupRole(tenantID, groupID, roleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopedKey(tenantID, groupID)
	s.groupRoles[k] = append(s.groupRoles[k], roleID)
}

func (s *MemoryDirectoryStore) AddUserRole(ur *UserRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopedKey(ur.TenantID, ur.UserID)
	s.userRoles[k] = append(s.userRoles[k], ur)
}

func (s *MemoryDirectoryStore) ListUserRoles(_ context.Context, tenantID, userID string) ([]*UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.userRoles[scopedKey(tenantID, userID)]
	out := make([]*UserRole, len(rows))
	copy(out, rows)
	return out, nil
}

func (s *MemoryDirectoryStore) ListUserGroups(_ context.Context, tenantID, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.userGroups[scopedKey(tenantID, userID)]...), nil
}

func (s *MemoryDirectoryStore) ListGroupParents(_ context.Context, tenantID, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.groupParents[scopedKey(tenantID, groupID)]...), nil
}

func (s *MemoryDirectoryStore) ListGroupRoles(_ context.Context, tenantID, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.groupRoles[scopedKey(tenantID, groupID)]...), nil
}

func (s *MemoryDirectoryStore) GetGroup(_ context.Context, groupID string) (*Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[groupID]
	if !ok || g.DeletedAt != nil {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrNotFound)
	}
	return g, nil
}

// MemoryOverrideStore holds explicit deny rows.
type MemoryOverrideStore struct {
	mu   sync.RWMutex
	rows []*PermissionOverride
}

func NewMemoryOverrideStore() *MemoryOverrideStore {
	return &MemoryOverrideStore{}
}

func (s *MemoryOverrideStore) AddOverride(ov *PermissionOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if *existing == *ov {
			return
		}
	}
	s.rows = append(s.rows, ov)
}

func (s *MemoryOverrideStore) RemoveOverride(ov *PermissionOverride) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rows {
		if *existing == *ov {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return
		}
	}
}

func (s *MemoryOverrideStore) ListOverrides(_ context.Context, tenantID string, key PermissionKey) ([]*PermissionOverride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*PermissionOverride, 0)
	for _, ov := range s.rows {
		if ov.TenantID == tenantID && ov.PermissionKey == key {
			out = append(out, ov)
		}
	}
	return out, nil
}

// MemoryPolicyStore holds ABAC policies.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*ABACPolicy
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]*ABACPolicy)}
}

func (s *MemoryPolicyStore) AddPolicy(p *ABACPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.ID] = p
}

func (s *MemoryPolicyStore) RemovePolicy(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
}

func (s *MemoryPolicyStore) ListPolicies(_ context.Context, tenantID string, key PermissionKey) ([]*ABACPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ABACPolicy, 0)
	for _, p := range s.policies {
		if p.DeletedAt != nil {
			continue
		}
		if p.TenantID != tenantID && p.TenantID != "" {
			continue
		}
		if p.TargetPermissionKey != "" && p.TargetPermissionKey != key {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// MemoryAuditStore keeps decision logs in a slice.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	entries []*AuditEntry
}

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{entries: make([]*AuditEntry, 0)}
}

func (s *MemoryAuditStore) LogDecision(_ context.Context, entry *AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditStore) GetAccessLog(_ context.Context, filter AuditFilter) ([]*AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*AuditEntry, 0)
	for _, entry := range s.entries {
		if filter.TenantID != "" && entry.TenantID != filter.TenantID {
			continue
		}
		if filter.PrincipalID != "" && entry.PrincipalID != filter.PrincipalID {
			continue
		}
		if filter.PermissionKey != "" && entry.PermissionKey != filter.PermissionKey {
			continue
		}
		if !filter.StartTime.IsZero() && entry.Timestamp.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && entry.Timestamp.After(filter.EndTime) {
			continue
		}
		out = append(out, entry)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// MemoryCompartmentResolver is a simple in-memory compartment parent map.
type MemoryCompartmentResolver struct {
	mu     sync.RWMutex
	parent map[string]string // child -> parent
}

func NewMemoryCompartmentResolver() *MemoryCompartmentResolver {
	return &MemoryCompartmentResolver{parent: make(map[string]string)}
}

func (m *MemoryCompartmentResolver) AddParent(child, parent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parent[child] = parent
}

// Contains reports whether compartmentID equals or descends from ancestorID.
// The walk is bounded so a corrupted parent map cannot loop forever.
func (m *MemoryCompartmentResolver) Contains(_ context.Context, ancestorID, compartmentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ancestorID == "" || compartmentID == "" {
		return false, nil
	}
	cur := compartmentID
	for hops := 0; hops < 64; hops++ {
		if cur == ancestorID {
			return true, nil
		}
		p, ok := m.parent[cur]
		if !ok || p == "" {
			return false, nil
		}
		cur = p
	}
	return false, nil
}
