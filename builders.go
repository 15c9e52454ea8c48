package permit

import "time"

// Builders provide a fluent API for creating Roles, Policies, grants and
// overrides.

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{Scope: ScopeTenant}}
}

func (b *RoleBuilder) ID(id string) *RoleBuilder      { b.r.ID = id; return b }
func (b *RoleBuilder) Tenant(t string) *RoleBuilder   { b.r.TenantID = t; return b }
func (b *RoleBuilder) Name(n string) *RoleBuilder     { b.r.Name = n; return b }
func (b *RoleBuilder) Scope(s RoleScope) *RoleBuilder { b.r.Scope = s; return b }
func (b *RoleBuilder) Parent(id string) *RoleBuilder  { b.r.ParentRoleID = id; return b }
func (b *RoleBuilder) MaxLevel(n int) *RoleBuilder    { b.r.MaxLevel = n; return b }
func (b *RoleBuilder) Build() *Role                   { return b.r }

// PolicyBuilder builds an ABACPolicy
type PolicyBuilder struct {
	p *ABACPolicy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &ABACPolicy{Effect: EffectAllow, Enabled: true}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder          { b.p.ID = id; return b }
func (b *PolicyBuilder) Tenant(t string) *PolicyBuilder       { b.p.TenantID = t; return b }
func (b *PolicyBuilder) Expression(src string) *PolicyBuilder { b.p.Expression = src; return b }
func (b *PolicyBuilder) Effect(e Effect) *PolicyBuilder       { b.p.Effect = e; return b }
func (b *PolicyBuilder) Priority(p int) *PolicyBuilder        { b.p.Priority = p; return b }
func (b *PolicyBuilder) Target(key string) *PolicyBuilder     { b.p.TargetPermissionKey = key; return b }
func (b *PolicyBuilder) Enabled(on bool) *PolicyBuilder       { b.p.Enabled = on; return b }
func (b *PolicyBuilder) Build() *ABACPolicy                   { return b.p }

// GrantBuilder builds a UserRole
type GrantBuilder struct {
	g *UserRole
}

func NewGrantBuilder() *GrantBuilder {
	return &GrantBuilder{g: &UserRole{GrantedAt: time.Now()}}
}

func (b *GrantBuilder) User(id string) *GrantBuilder        { b.g.UserID = id; return b }
func (b *GrantBuilder) Role(id string) *GrantBuilder        { b.g.RoleID = id; return b }
func (b *GrantBuilder) Tenant(t string) *GrantBuilder       { b.g.TenantID = t; return b }
func (b *GrantBuilder) Compartment(id string) *GrantBuilder { b.g.CompartmentID = id; return b }
func (b *GrantBuilder) GrantedBy(id string) *GrantBuilder   { b.g.GrantedBy = id; return b }
func (b *GrantBuilder) ExpiresAt(t time.Time) *GrantBuilder { b.g.ExpiresAt = &t; return b }
func (b *GrantBuilder) Build() *UserRole                    { return b.g }

// OverrideBuilder builds a PermissionOverride
type OverrideBuilder struct {
	o *PermissionOverride
}

func NewOverrideBuilder() *OverrideBuilder {
	return &OverrideBuilder{o: &PermissionOverride{}}
}

func (b *OverrideBuilder) Tenant(t string) *OverrideBuilder { b.o.TenantID = t; return b }
func (b *OverrideBuilder) Key(k string) *OverrideBuilder    { b.o.PermissionKey = k; return b }
func (b *OverrideBuilder) User(id string) *OverrideBuilder {
	b.o.PrincipalType, b.o.PrincipalID = PrincipalUser, id
	return b
}
func (b *OverrideBuilder) Group(id string) *OverrideBuilder {
	b.o.PrincipalType, b.o.PrincipalID = PrincipalGroup, id
	return b
}
func (b *OverrideBuilder) Role(id string) *OverrideBuilder {
	b.o.PrincipalType, b.o.PrincipalID = PrincipalRole, id
	return b
}
func (b *OverrideBuilder) Build() *PermissionOverride { return b.o }
