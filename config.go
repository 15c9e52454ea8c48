package permit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oarkflow/date"
	"gopkg.in/yaml.v3"

	"github.com/oarkflow/permit/utils"
)

// ============================================================================
// CONFIGURATION
// ============================================================================
//
// A Config is a declarative snapshot of authorization data plus engine
// settings, loadable from YAML, JSON or the text DSL. It exists for seeding
// the in-memory stores (tests, examples, the permit-check tool); production
// deployments read the same rows from SQL.

// Config is the complete declarative form.
type Config struct {
	Permissions      []string          `json:"permissions" yaml:"permissions"`
	Roles            []*Role           `json:"roles" yaml:"roles"`
	RolePermissions  []RoleGrantConfig `json:"role_permissions" yaml:"role_permissions"`
	Groups           []*Group          `json:"groups" yaml:"groups"`
	GroupMemberships []NestConfig      `json:"group_memberships" yaml:"group_memberships"`
	GroupRoles       []GroupRoleConfig `json:"group_roles" yaml:"group_roles"`
	UserGroups       []UserGroupConfig `json:"user_groups" yaml:"user_groups"`
	UserRoles        []UserGrantConfig `json:"user_roles" yaml:"user_roles"`
	Overrides        []OverrideConfig  `json:"overrides" yaml:"overrides"`
	Policies         []*ABACPolicy     `json:"policies" yaml:"policies"`
	Compartments     map[string]string `json:"compartments,omitempty" yaml:"compartments,omitempty"` // child -> parent
	Engine           EngineConfig      `json:"engine" yaml:"engine"`
}

// RoleGrantConfig attaches permission keys to a role. Keys may contain '*'
// segments; expansion against the catalog happens at seed time.
type RoleGrantConfig struct {
	RoleID string   `json:"role_id" yaml:"role_id"`
	Keys   []string `json:"keys" yaml:"keys"`
}

// NestConfig nests a child group inside a parent group.
type NestConfig struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	Parent   string `json:"parent" yaml:"parent"`
	Child    string `json:"child" yaml:"child"`
}

// GroupRoleConfig attaches a role to a group.
type GroupRoleConfig struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	GroupID  string `json:"group_id" yaml:"group_id"`
	RoleID   string `json:"role_id" yaml:"role_id"`
}

// UserGroupConfig records a direct user membership.
type UserGroupConfig struct {
	TenantID string `json:"tenant_id" yaml:"tenant_id"`
	UserID   string `json:"user_id" yaml:"user_id"`
	GroupID  string `json:"group_id" yaml:"group_id"`
}

// UserGrantConfig is the declarative UserRole row. ExpiresAt accepts any
// layout the date package understands.
type UserGrantConfig struct {
	TenantID      string `json:"tenant_id" yaml:"tenant_id"`
	UserID        string `json:"user_id" yaml:"user_id"`
	RoleID        string `json:"role_id" yaml:"role_id"`
	CompartmentID string `json:"compartment_id,omitempty" yaml:"compartment_id,omitempty"`
	GrantedBy     string `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// OverrideConfig is the declarative PermissionOverride row.
type OverrideConfig struct {
	TenantID      string        `json:"tenant_id" yaml:"tenant_id"`
	PermissionKey string        `json:"permission_key" yaml:"permission_key"`
	PrincipalType PrincipalType `json:"principal_type" yaml:"principal_type"`
	PrincipalID   string        `json:"principal_id" yaml:"principal_id"`
}

// EngineConfig carries tunables for NewEngine.
type EngineConfig struct {
	DepthCeiling int   `json:"depth_ceiling,omitempty" yaml:"depth_ceiling,omitempty"`
	CacheTTLMs   int64 `json:"cache_ttl_ms,omitempty" yaml:"cache_ttl_ms,omitempty"`
}

// ConfigLoader loads configuration from the supported formats.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToYAML exports config to YAML.
func (c *Config) ToYAML() ([]byte, error) { return yaml.Marshal(c) }

// ToJSON exports config to JSON.
func (c *Config) ToJSON() ([]byte, error) { return json.MarshalIndent(c, "", "  ") }

// Validate checks referential shape without touching any store.
func (c *Config) Validate() error {
	keys := make(map[string]bool, len(c.Permissions))
	for _, k := range c.Permissions {
		if _, ok := utils.SplitKey(k); !ok {
			return fmt.Errorf("permit: malformed permission key %q", k)
		}
		if keys[k] {
			return fmt.Errorf("permit: duplicate permission key %q", k)
		}
		keys[k] = true
	}
	roles := make(map[string]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.ID == "" {
			return fmt.Errorf("permit: role with empty id")
		}
		if roles[r.ID] {
			return fmt.Errorf("permit: duplicate role %q", r.ID)
		}
		if r.Scope != "" && r.Scope != ScopeProvider && r.Scope != ScopeTenant {
			return fmt.Errorf("permit: role %q has unknown scope %q", r.ID, r.Scope)
		}
		roles[r.ID] = true
	}
	for _, rg := range c.RolePermissions {
		if !roles[rg.RoleID] {
			return fmt.Errorf("permit: role grant references unknown role %q", rg.RoleID)
		}
	}
	for _, n := range c.GroupMemberships {
		if n.Parent == n.Child {
			return fmt.Errorf("permit: group %q cannot contain itself", n.Parent)
		}
	}
	for _, p := range c.Policies {
		if p.ID == "" {
			return fmt.Errorf("permit: policy with empty id")
		}
		if p.Effect != EffectAllow && p.Effect != EffectDeny {
			return fmt.Errorf("permit: policy %q has unknown effect %q", p.ID, p.Effect)
		}
		if _, err := ParseExpression(p.Expression); err != nil {
			// reported, not fatal: an unparsable policy is inert at runtime
			return fmt.Errorf("permit: policy %q: %w", p.ID, err)
		}
	}
	for _, ov := range c.Overrides {
		switch ov.PrincipalType {
		case PrincipalUser, PrincipalGroup, PrincipalRole:
		default:
			return fmt.Errorf("permit: override has unknown principal type %q", ov.PrincipalType)
		}
	}
	return nil
}

// SeededStores bundles the in-memory stores a Config seeds.
type SeededStores struct {
	Catalog      *MemoryCatalogStore
	Directory    *MemoryDirectoryStore
	Overrides    *MemoryOverrideStore
	Policies     *MemoryPolicyStore
	Compartments *MemoryCompartmentResolver
}

// Seed materializes the config into fresh in-memory stores. Wildcard role
// grants expand against the seeded permission catalog.
func (c *Config) Seed() (*SeededStores, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	s := &SeededStores{
		Catalog:      NewMemoryCatalogStore(),
		Directory:    NewMemoryDirectoryStore(),
		Overrides:    NewMemoryOverrideStore(),
		Policies:     NewMemoryPolicyStore(),
		Compartments: NewMemoryCompartmentResolver(),
	}

	for _, key := range c.Permissions {
		parts, _ := utils.SplitKey(key)
		p := &Permission{ID: key, Domain: parts[0], Resource: parts[1], Action: parts[2]}
		if len(parts) == 4 {
			p.Subtype = parts[3]
		}
		if err := s.Catalog.AddPermission(p); err != nil {
			return nil, err
		}
	}
	for _, r := range c.Roles {
		s.Catalog.AddRole(r)
	}
	for _, rg := range c.RolePermissions {
		for _, key := range rg.Keys {
			expanded, err := c.expandKey(key)
			if err != nil {
				return nil, fmt.Errorf("permit: role %s: %w", rg.RoleID, err)
			}
			for _, k := range expanded {
				s.Catalog.AddRolePermission(rg.RoleID, k)
			}
		}
	}
	for _, g := range c.Groups {
		s.Directory.AddGroup(g)
	}
	for _, n := range c.GroupMemberships {
		if err := s.Directory.AddGroupMembership(n.TenantID, n.Parent, n.Child); err != nil {
			return nil, err
		}
	}
	for _, gr := range c.GroupRoles {
		s.Directory.AddGroupRole(gr.TenantID, gr.GroupID, gr.RoleID)
	}
	for _, ug := range c.UserGroups {
		s.Directory.AddUserGroup(ug.TenantID, ug.UserID, ug.GroupID)
	}
	for _, ur := range c.UserRoles {
		row := &UserRole{
			UserID:        ur.UserID,
			RoleID:        ur.RoleID,
			TenantID:      ur.TenantID,
			CompartmentID: ur.CompartmentID,
			GrantedBy:     ur.GrantedBy,
			GrantedAt:     time.Now(),
		}
		if ur.ExpiresAt != "" {
			t, err := date.Parse(ur.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("permit: grant %s/%s: bad expires_at %q: %w", ur.UserID, ur.RoleID, ur.ExpiresAt, err)
			}
			row.ExpiresAt = &t
		}
		s.Directory.AddUserRole(row)
	}
	for _, ov := range c.Overrides {
		s.Overrides.AddOverride(&PermissionOverride{
			TenantID:      ov.TenantID,
			PermissionKey: ov.PermissionKey,
			PrincipalType: ov.PrincipalType,
			PrincipalID:   ov.PrincipalID,
		})
	}
	for _, p := range c.Policies {
		s.Policies.AddPolicy(p)
	}
	for child, parent := range c.Compartments {
		s.Compartments.AddParent(child, parent)
	}
	return s, nil
}

// expandKey resolves a grant key to concrete catalog keys. Wildcard patterns
// expand to every matching catalog entry; a pattern matching nothing is a
// configuration error.
func (c *Config) expandKey(key string) ([]string, error) {
	if !utils.IsPattern(key) {
		if _, ok := utils.SplitKey(key); !ok {
			return nil, fmt.Errorf("malformed permission key %q", key)
		}
		return []string{key}, nil
	}
	var out []string
	for _, k := range c.Permissions {
		if utils.MatchKey(key, k) {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pattern %q matches no catalog permission", key)
	}
	return out, nil
}

// EngineOptions translates the engine settings into options for NewEngine.
func (c *Config) EngineOptions() []EngineOption {
	var opts []EngineOption
	if c.Engine.DepthCeiling > 0 {
		opts = append(opts, WithDepthCeiling(c.Engine.DepthCeiling))
	}
	if c.Engine.CacheTTLMs > 0 {
		opts = append(opts, WithExpansionCacheTTL(time.Duration(c.Engine.CacheTTLMs)*time.Millisecond))
	}
	if len(c.Compartments) > 0 {
		resolver := NewMemoryCompartmentResolver()
		for child, parent := range c.Compartments {
			resolver.AddParent(child, parent)
		}
		opts = append(opts, WithCompartmentResolver(resolver))
	}
	return opts
}
