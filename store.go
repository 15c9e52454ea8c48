package permit

import (
	"context"
	"errors"
	"time"
)

// ============================================================================
// STORAGE INTERFACES
// ============================================================================
//
// The engine is read-only over all authorization data. Rows are created and
// destroyed by administrative operations elsewhere; implementations are
// expected to filter soft-deleted rows and apply tenant scoping before rows
// reach the engine.

// ErrNotFound marks a row that does not exist (or is soft-deleted). The
// engine treats it as "absent", never as an infrastructure failure.
var ErrNotFound = errors.New("permit: not found")

// ErrStoreUnavailable wraps infrastructure failures (connection refused,
// timeout). Decide propagates these to the caller instead of returning a
// decision.
var ErrStoreUnavailable = errors.New("permit: store unavailable")

// CatalogStore serves the permission catalog and role definitions.
type CatalogStore interface {
	GetPermission(ctx context.Context, key PermissionKey) (*Permission, error)
	ListPermissions(ctx context.Context) ([]*Permission, error)
	GetRole(ctx context.Context, roleID string) (*Role, error)
	ListRolePermissions(ctx context.Context, roleID string) ([]PermissionKey, error)
}

// DirectoryStore serves principal membership and grant rows.
type DirectoryStore interface {
	ListUserRoles(ctx context.Context, tenantID, userID string) ([]*UserRole, error)
	ListUserGroups(ctx context.Context, tenantID, userID string) ([]string, error)
	// ListGroupParents returns the groups the given group is nested inside
	// (child -> parent edges).
	ListGroupParents(ctx context.Context, tenantID, groupID string) ([]string, error)
	ListGroupRoles(ctx context.Context, tenantID, groupID string) ([]string, error)
	GetGroup(ctx context.Context, groupID string) (*Group, error)
}

// OverrideStore serves explicit deny rows for one tenant and permission.
type OverrideStore interface {
	ListOverrides(ctx context.Context, tenantID string, key PermissionKey) ([]*PermissionOverride, error)
}

// PolicyStore serves enabled ABAC policies relevant to a permission: those
// targeting the key plus the untargeted ones.
type PolicyStore interface {
	ListPolicies(ctx context.Context, tenantID string, key PermissionKey) ([]*ABACPolicy, error)
}

// CompartmentResolver answers compartment-subtree containment. The
// compartment tree itself is owned by an external collaborator.
type CompartmentResolver interface {
	Contains(ctx context.Context, ancestorID, compartmentID string) (bool, error)
}

// ============================================================================
// AUDIT
// ============================================================================

// AuditStore persists decision logs. Writes happen off the decision path.
type AuditStore interface {
	LogDecision(ctx context.Context, entry *AuditEntry) error
	GetAccessLog(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)
}

// AuditEntry records one authorization decision.
type AuditEntry struct {
	ID            string         `json:"id"`
	Timestamp     time.Time      `json:"timestamp"`
	TenantID      string         `json:"tenant_id"`
	PrincipalID   string         `json:"principal_id"`
	PermissionKey PermissionKey  `json:"permission_key"`
	Allowed       bool           `json:"allowed"`
	Source        string         `json:"source"`
	TraceID       string         `json:"trace_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// AuditFilter narrows GetAccessLog results.
type AuditFilter struct {
	TenantID      string
	PrincipalID   string
	PermissionKey PermissionKey
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
}
