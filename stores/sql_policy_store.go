package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/permit"
)

// SQLPolicyStore serves ABAC policies from SQL (squealx). ListPolicies
// returns enabled rows targeting the key plus the untargeted ones; rows with
// an empty tenant are platform-global.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

func (s *SQLPolicyStore) CreatePolicy(ctx context.Context, p *permit.ABACPolicy) error {
	q := `INSERT INTO abac_policies(id, tenant_id, expression, effect, priority, enabled, target_permission_key)
	      VALUES(:id, :tenant_id, :expression, :effect, :priority, :enabled, :target)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id": p.ID, "tenant_id": p.TenantID, "expression": p.Expression,
		"effect": string(p.Effect), "priority": p.Priority,
		"enabled": boolToInt(p.Enabled), "target": p.TargetPermissionKey,
	})
	return infra(err)
}

func (s *SQLPolicyStore) ListPolicies(ctx context.Context, tenantID string, key permit.PermissionKey) ([]*permit.ABACPolicy, error) {
	q := `SELECT id, tenant_id, expression, effect, priority, enabled, target_permission_key
	      FROM abac_policies
	      WHERE (tenant_id = :tenant_id OR tenant_id = '')
	        AND (target_permission_key = :key OR target_permission_key = '')
	        AND enabled = 1 AND deleted_at IS NULL
	      ORDER BY priority DESC, id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID, "key": key})
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	out := make([]*permit.ABACPolicy, 0)
	for r.Next() {
		p := &permit.ABACPolicy{}
		var effect string
		var enabled int
		if err := r.Scan(&p.ID, &p.TenantID, &p.Expression, &effect, &p.Priority, &enabled, &p.TargetPermissionKey); err != nil {
			return nil, infra(err)
		}
		p.Effect = permit.Effect(effect)
		p.Enabled = enabled != 0
		out = append(out, p)
	}
	return out, nil
}

// SQLOverrideStore serves explicit deny rows from SQL.
type SQLOverrideStore struct {
	db *squealx.DB
}

func NewSQLOverrideStore(db *squealx.DB) *SQLOverrideStore {
	return &SQLOverrideStore{db: db}
}

func (s *SQLOverrideStore) CreateOverride(ctx context.Context, o *permit.PermissionOverride) error {
	q := `INSERT INTO permission_overrides(tenant_id, permission_key, principal_type, principal_id)
	      VALUES(:tenant_id, :permission_key, :principal_type, :principal_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"tenant_id": o.TenantID, "permission_key": o.PermissionKey,
		"principal_type": string(o.PrincipalType), "principal_id": o.PrincipalID,
	})
	return infra(err)
}

func (s *SQLOverrideStore) RemoveOverride(ctx context.Context, o *permit.PermissionOverride) error {
	q := `DELETE FROM permission_overrides
	      WHERE tenant_id = :tenant_id AND permission_key = :permission_key
	        AND principal_type = :principal_type AND principal_id = :principal_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"tenant_id": o.TenantID, "permission_key": o.PermissionKey,
		"principal_type": string(o.PrincipalType), "principal_id": o.PrincipalID,
	})
	return infra(err)
}

func (s *SQLOverrideStore) ListOverrides(ctx context.Context, tenantID string, key permit.PermissionKey) ([]*permit.PermissionOverride, error) {
	q := `SELECT tenant_id, permission_key, principal_type, principal_id
	      FROM permission_overrides
	      WHERE tenant_id = :tenant_id AND permission_key = :permission_key
	      ORDER BY principal_type, principal_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID, "permission_key": key})
	if err != nil {
		return nil, infra(err)
	}
	defer r.Close()
	out := make([]*permit.PermissionOverride, 0)
	for r.Next() {
		o := &permit.PermissionOverride{}
		var pt string
		if err := r.Scan(&o.TenantID, &o.PermissionKey, &pt, &o.PrincipalID); err != nil {
			return nil, infra(err)
		}
		o.PrincipalType = permit.PrincipalType(pt)
		out = append(out, o)
	}
	return out, nil
}

// SQLCompartmentResolver answers subtree containment over the compartments
// table, walking child -> parent edges row by row.
type SQLCompartmentResolver struct {
	db *squealx.DB
}

func NewSQLCompartmentResolver(db *squealx.DB) *SQLCompartmentResolver {
	return &SQLCompartmentResolver{db: db}
}

func (s *SQLCompartmentResolver) AddParent(ctx context.Context, childID, parentID string) error {
	q := `INSERT INTO compartments(child_id, parent_id) VALUES(:child_id, :parent_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"child_id": childID, "parent_id": parentID})
	return infra(err)
}

func (s *SQLCompartmentResolver) Contains(ctx context.Context, ancestorID, compartmentID string) (bool, error) {
	cur := compartmentID
	for hops := 0; hops < 64; hops++ {
		if cur == ancestorID {
			return true, nil
		}
		q := `SELECT parent_id FROM compartments WHERE child_id = :child_id`
		r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"child_id": cur})
		if err != nil {
			return false, infra(err)
		}
		if !r.Next() {
			r.Close()
			return false, nil
		}
		var parent string
		err = r.Scan(&parent)
		r.Close()
		if err != nil {
			return false, infra(err)
		}
		cur = parent
	}
	return false, nil
}
