package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLDirectoryStore serves membership and grant rows from SQL (squealx).
type SQLDirectoryStore struct {
	db *squealx.DB
}

func NewSQLDirectoryStore(db *squealx.DB) *SQLDirectoryStore {
	return &SQLDirectoryStore{db: db}
}

func (s *SQLDirectoryStore) CreateGroup(ctx context.Context, g *permit.Group) error {
	q := `INSERT INTO principal_groups(id, tenant_id, name) VALUES(:id, :tenant_id, :name)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": g.ID, "tenant_id": g.TenantID, "name": g.Name})
	return infra(err)
}

func (s *SQLDirectoryStore) GetGroup(ctx context.Context, groupID string) (*permit.Group, error) {
	q := `SELECT id, tenant_id, name FROM principal_groups WHERE id = :id AND deleted_at IS NULL`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": groupID})
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("group %s: %w", groupID, permit.ErrNotFound)
	}
	g := &permit.Group{}
	if err := r.Scan(&g.ID, &g.TenantID, &g.Name); err != nil {
		return nil, infra(err)
	}
	return g, nil
}

func (s *SQLDirectoryStore) SoftDeleteGroup(ctx context.Context, groupID string) error {
	q := `UPDATE principal_groups SET deleted_at = :now WHERE id = :id AND deleted_at IS NULL`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": groupID, "now": time.Now()})
	return infra(err)
}

func (s *SQLDirectoryStore) AddGroupMembership(ctx context.Context, tenantID, parentGroupID, childGroupID string) error {
	if parentGroupID == childGroupID {
		return fmt.Errorf("permit: group %s cannot contain itself", parentGroupID)
	}
	q := `INSERT INTO group_memberships(tenant_id, parent_group_id, child_group_id) VALUES(:tenant_id, :parent, :child)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"tenant_id": tenantID, "parent": parentGroupID, "child": childGroupID})
	return infra(err)
}

// ListGroupParents resolves nesting edges; parents that were soft deleted
// drop out of the closure here.
func (s *SQLDirectoryStore) ListGroupParents(ctx context.Context, tenantID, groupID string) ([]string, error) {
	q := `SELECT gm.parent_group_id FROM group_memberships gm
	      JOIN principal_groups g ON g.id = gm.parent_group_id AND g.deleted_at IS NULL
	      WHERE gm.tenant_id = :tenant_id AND gm.child_group_id = :child
	      ORDER BY gm.parent_group_id`
	return s.listStrings(ctx, q, map[string]any{"tenant_id": tenantID, "child": groupID})
}

func (s *SQLDirectoryStore) AddGroupRole(ctx context.Context, tenantID, groupID, roleID string) error {
	q := `INSERT INTO group_roles(tenant_id, group_id, role_id) VALUES(:tenant_id, :group_id, :role_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"tenant_id": tenantID, "group_id": groupID, "role_id": roleID})
	return infra(err)
}

// ListGroupRoles returns the role attachments of a live group; a soft-deleted
// group has none.
func (s *SQLDirectoryStore) ListGroupRoles(ctx context.Context, tenantID, groupID string) ([]string, error) {
	q := `SELECT gr.role_id FROM group_roles gr
	      JOIN principal_groups g ON g.id = gr.group_id AND g.deleted_at IS NULL
	      WHERE gr.tenant_id = :tenant_id AND gr.group_id = :group_id
	      ORDER BY gr.role_id`
	return s.listStrings(ctx, q, map[string]any{"tenant_id": tenantID, "group_id": groupID})
}

func (s *SQLDirectoryStore) AddUserGroup(ctx context.Context, tenantID, userID, groupID string) error {
	q := `INSERT INTO user_groups(tenant_id, user_id, group_id) VALUES(:tenant_id, :user_id, :group_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"tenant_id": tenantID, "user_id": userID, "group_id": groupID})
	return infra(err)
}

func (s *SQLDirectoryStore) ListUserGroups(ctx context.Context, tenantID, userID string) ([]string, error) {
	q := `SELECT group_id FROM user_groups WHERE tenant_id = :tenant_id AND user_id = :user_id ORDER BY group_id`
	return s.listStrings(ctx, q, map[string]any{"tenant_id": tenantID, "user_id": userID})
}

func (s *SQLDirectoryStore) AddUserRole(ctx context.Context, ur *permit.UserRole) error {
	q := `INSERT INTO user_roles(tenant_id, user_id, role_id, compartment_id, granted_by, granted_at, expires_at)
	      VALUES(:tenant_id, :user_id, :role_id, :compartment_id, :granted_by, :granted_at, :expires_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"tenant_id":      ur.TenantID,
		"user_id":        ur.UserID,
		"role_id":        ur.RoleID,
		"compartment_id": ur.CompartmentID,
		"granted_by":     ur.GrantedBy,
		"granted_at":     ur.GrantedAt,
		"expires_at":     timeOrNil(ur.ExpiresAt),
	})
	return infra(err)
}

func (s *SQLDirectoryStore) RevokeUserRole(ctx context.Context, tenantID, userID, roleID string) error {
	q := `DELETE FROM user_roles WHERE tenant_id = :tenant_id AND user_id = :user_id AND role_id = :role_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"tenant_id": tenantID, "user_id": userID, "role_id": roleID})
	return infra(err)
}

// ListUserRoles returns every grant row, expired ones included; the engine
// filters by expiry at evaluation time.
func (s *SQLDirectoryStore) ListUserRoles(ctx context.Context, tenantID, userID string) ([]*permit.UserRole, error) {
	q := `SELECT tenant_id, user_id, role_id, compartment_id, granted_by, granted_at, expires_at
	      FROM user_roles WHERE tenant_id = :tenant_id AND user_id = :user_id ORDER BY role_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID, "user_id": userID})
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	out := make([]*permit.UserRole, 0)
	for r.Next() {
		ur := &permit.UserRole{}
		var grantedRaw, expiresRaw interface{}
		if err := r.Scan(&ur.TenantID, &ur.UserID, &ur.RoleID, &ur.CompartmentID, &ur.GrantedBy, &grantedRaw, &expiresRaw); err != nil {
			return nil, infra(err)
		}
		if t := scanTime(grantedRaw); t != nil {
			ur.GrantedAt = *t
		}
		ur.ExpiresAt = scanTime(expiresRaw)
		out = append(out, ur)
	}
	return out, nil
}

func (s *SQLDirectoryStore) listStrings(ctx context.Context, q string, params map[string]any) ([]string, error) {
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var v string
		if err := r.Scan(&v); err != nil {
			return nil, infra(err)
		}
		out = append(out, v)
	}
	return out, nil
}
