package permit

import (
	"strings"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// PermissionKey is the catalog key format "domain:resource:action" with an
// optional ":subtype" fourth segment. Keys are globally unique.
type PermissionKey = string

// Permission is an immutable catalog entry. The engine never writes these.
type Permission struct {
	ID        string     `json:"id" yaml:"id"`
	Domain    string     `json:"domain" yaml:"domain"`
	Resource  string     `json:"resource" yaml:"resource"`
	Action    string     `json:"action" yaml:"action"`
	Subtype   string     `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// Key assembles the catalog key for the permission.
func (p *Permission) Key() PermissionKey {
	k := p.Domain + ":" + p.Resource + ":" + p.Action
	if p.Subtype != "" {
		k += ":" + p.Subtype
	}
	return k
}

// RoleScope says which side of the platform a role belongs to.
type RoleScope string

const (
	ScopeProvider RoleScope = "provider"
	ScopeTenant   RoleScope = "tenant"
)

// Role is a named permission bundle with optional single-parent inheritance.
// MaxLevel, when > 0, caps how many ancestors the role may inherit from.
type Role struct {
	ID           string     `json:"id" yaml:"id"`
	TenantID     string     `json:"tenant_id" yaml:"tenant_id"`
	Name         string     `json:"name" yaml:"name"`
	Scope        RoleScope  `json:"scope" yaml:"scope"`
	ParentRoleID string     `json:"parent_role_id,omitempty" yaml:"parent_role_id,omitempty"`
	MaxLevel     int        `json:"max_level,omitempty" yaml:"max_level,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// RolePermission joins a role to a catalog permission key.
type RolePermission struct {
	RoleID        string        `json:"role_id" yaml:"role_id"`
	PermissionKey PermissionKey `json:"permission_key" yaml:"permission_key"`
}

// Group is a flat per-tenant entity; nesting lives in GroupMembership rows.
type Group struct {
	ID        string     `json:"id" yaml:"id"`
	TenantID  string     `json:"tenant_id" yaml:"tenant_id"`
	Name      string     `json:"name" yaml:"name"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// GroupMembership nests ChildGroupID inside ParentGroupID. Self-loops are
// rejected by the stores, but multi-hop cycles are not structurally
// prevented and must be survived at traversal time.
type GroupMembership struct {
	ParentGroupID string `json:"parent_group_id" yaml:"parent_group_id"`
	ChildGroupID  string `json:"child_group_id" yaml:"child_group_id"`
}

// GroupRole joins a group to a role.
type GroupRole struct {
	GroupID string `json:"group_id" yaml:"group_id"`
	RoleID  string `json:"role_id" yaml:"role_id"`
}

// UserGroup records a user's direct group membership. Indirect membership is
// derived by the group resolver.
type UserGroup struct {
	UserID  string `json:"user_id" yaml:"user_id"`
	GroupID string `json:"group_id" yaml:"group_id"`
}

// UserRole is a principal grant. CompartmentID, when set, narrows the grant
// to that compartment's subtree; empty means tenant-wide. ExpiresAt is
// re-checked at evaluation time, never assumed to be cleaned up.
type UserRole struct {
	UserID        string     `json:"user_id" yaml:"user_id"`
	RoleID        string     `json:"role_id" yaml:"role_id"`
	TenantID      string     `json:"tenant_id" yaml:"tenant_id"`
	CompartmentID string     `json:"compartment_id,omitempty" yaml:"compartment_id,omitempty"`
	GrantedBy     string     `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	GrantedAt     time.Time  `json:"granted_at" yaml:"granted_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// Active reports whether the grant is usable at the given instant.
func (ur *UserRole) Active(now time.Time) bool {
	return ur.ExpiresAt == nil || ur.ExpiresAt.After(now)
}

// PrincipalType discriminates who an override targets.
type PrincipalType string

const (
	PrincipalUser  PrincipalType = "user"
	PrincipalGroup PrincipalType = "group"
	PrincipalRole  PrincipalType = "role"
)

// PermissionOverride is an explicit deny. Only deny is representable; allow
// always comes from RBAC or ABAC.
type PermissionOverride struct {
	TenantID      string        `json:"tenant_id" yaml:"tenant_id"`
	PermissionKey PermissionKey `json:"permission_key" yaml:"permission_key"`
	PrincipalType PrincipalType `json:"principal_type" yaml:"principal_type"`
	PrincipalID   string        `json:"principal_id" yaml:"principal_id"`
}

// Effect is the outcome an ABAC policy pushes toward.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// ABACPolicy gates or denies a permission with a boolean expression over the
// caller-supplied attribute context. TargetPermissionKey empty means the
// policy is consulted for every check (deny policies only; untargeted allow
// policies never gate).
type ABACPolicy struct {
	ID                  string        `json:"id" yaml:"id"`
	TenantID            string        `json:"tenant_id" yaml:"tenant_id"`
	Expression          string        `json:"expression" yaml:"expression"`
	Effect              Effect        `json:"effect" yaml:"effect"`
	Priority            int           `json:"priority" yaml:"priority"`
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	TargetPermissionKey PermissionKey `json:"target_permission_key,omitempty" yaml:"target_permission_key,omitempty"`
	DeletedAt           *time.Time    `json:"deleted_at,omitempty" yaml:"deleted_at,omitempty"`
}

// ============================================================================
// DECISION
// ============================================================================

// Decision is the full result of a permission check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Source    string    `json:"source"` // override:..., abac:..., rbac:...
	Trace     []string  `json:"trace,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckRequest is the extended input to DecideRequest. Decide covers the
// common tenant-side case; provider-side callers and compartment-addressed
// resources use this form.
type CheckRequest struct {
	PrincipalID   string         `json:"principal_id"`
	PermissionKey PermissionKey  `json:"permission_key"`
	TenantID      string         `json:"tenant_id"`
	CompartmentID string         `json:"compartment_id,omitempty"`
	ProviderSide  bool           `json:"provider_side,omitempty"`
	Attrs         map[string]any `json:"attrs,omitempty"`
}

// GrantSource records where a baseline permission key came from, enough to
// populate the decision's source field.
type GrantSource struct {
	RoleID    string
	RoleName  string
	GroupID   string // empty for direct user grants
	GroupName string
}

// String renders the provenance the way Decide reports it.
func (g GrantSource) String() string {
	if g.GroupID != "" {
		name := g.GroupName
		if name == "" {
			name = g.GroupID
		}
		return "rbac:group:" + name
	}
	name := g.RoleName
	if name == "" {
		name = g.RoleID
	}
	return "rbac:role:" + name
}

// ValidKey reports whether key has the 3- or 4-segment catalog shape.
func ValidKey(key PermissionKey) bool {
	parts := strings.Split(key, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}
