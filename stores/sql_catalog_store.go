package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLCatalogStore serves the permission catalog and role definitions from SQL
// (squealx). Soft-deleted rows never leave this layer.
type SQLCatalogStore struct {
	db *squealx.DB
}

func NewSQLCatalogStore(db *squealx.DB) *SQLCatalogStore {
	return &SQLCatalogStore{db: db}
}

func (s *SQLCatalogStore) CreatePermission(ctx context.Context, p *permit.Permission) error {
	if !permit.ValidKey(p.Key()) {
		return fmt.Errorf("permit: malformed permission key %q", p.Key())
	}
	q := `INSERT INTO permissions(id, domain, resource, action, subtype) VALUES(:id, :domain, :resource, :action, :subtype)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id": p.Key(), "domain": p.Domain, "resource": p.Resource, "action": p.Action, "subtype": p.Subtype,
	})
	return infra(err)
}

func (s *SQLCatalogStore) GetPermission(ctx context.Context, key permit.PermissionKey) (*permit.Permission, error) {
	q := `SELECT id, domain, resource, action, subtype FROM permissions WHERE id = :id AND deleted_at IS NULL`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": key})
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("permission %s: %w", key, permit.ErrNotFound)
	}
	p := &permit.Permission{}
	if err := r.Scan(&p.ID, &p.Domain, &p.Resource, &p.Action, &p.Subtype); err != nil {
		return nil, infra(err)
	}
	return p, nil
}

func (s *SQLCatalogStore) ListPermissions(ctx context.Context) ([]*permit.Permission, error) {
	q := `SELECT id, domain, resource, action, subtype FROM permissions WHERE deleted_at IS NULL ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	out := make([]*permit.Permission, 0)
	for r.Next() {
		p := &permit.Permission{}
		if err := r.Scan(&p.ID, &p.Domain, &p.Resource, &p.Action, &p.Subtype); err != nil {
			return nil, infra(err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SQLCatalogStore) CreateRole(ctx context.Context, role *permit.Role) error {
	q := `INSERT INTO roles(id, tenant_id, name, scope, parent_role_id, max_level) VALUES(:id, :tenant_id, :name, :scope, :parent_role_id, :max_level)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id": role.ID, "tenant_id": role.TenantID, "name": role.Name,
		"scope": string(role.Scope), "parent_role_id": role.ParentRoleID, "max_level": role.MaxLevel,
	})
	return infra(err)
}

func (s *SQLCatalogStore) SoftDeleteRole(ctx context.Context, roleID string) error {
	q := `UPDATE roles SET deleted_at = :now WHERE id = :id AND deleted_at IS NULL`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": roleID, "now": time.Now()})
	return infra(err)
}

func (s *SQLCatalogStore) GetRole(ctx context.Context, roleID string) (*permit.Role, error) {
	q := `SELECT id, tenant_id, name, scope, parent_role_id, max_level FROM roles WHERE id = :id AND deleted_at IS NULL`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": roleID})
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("role %s: %w", roleID, permit.ErrNotFound)
	}
	role := &permit.Role{}
	var scope string
	if err := r.Scan(&role.ID, &role.TenantID, &role.Name, &scope, &role.ParentRoleID, &role.MaxLevel); err != nil {
		return nil, infra(err)
	}
	role.Scope = permit.RoleScope(scope)
	return role, nil
}

func (s *SQLCatalogStore) AddRolePermission(ctx context.Context, roleID string, key permit.PermissionKey) error {
	q := `INSERT INTO role_permissions(role_id, permission_key) VALUES(:role_id, :permission_key)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"role_id": roleID, "permission_key": key})
	return infra(err)
}

func (s *SQLCatalogStore) ListRolePermissions(ctx context.Context, roleID string) ([]permit.PermissionKey, error) {
	q := `SELECT permission_key FROM role_permissions WHERE role_id = :role_id ORDER BY permission_key`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"role_id": roleID})
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	out := make([]permit.PermissionKey, 0)
	for r.Next() {
		var key string
		if err := r.Scan(&key); err != nil {
			return nil, infra(err)
		}
		out = append(out, key)
	}
	return out, nil
}
