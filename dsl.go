package permit

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/oarkflow/date"
)

// ============================================================================
// TEXT DSL
// ============================================================================
//
// Line-oriented seeding format, one directive per line:
//
//	permission <key>
//	role <id> <tenant> "<name>" [scope:provider|tenant] [parent:<role>] [maxlevel:<n>]
//	grantrole <role> <key>                      (key may contain '*' segments)
//	group <id> <tenant> "<name>"
//	nest <tenant> <parent> <child>
//	member <tenant> <user> <group>
//	grouprole <tenant> <group> <role>
//	grant <tenant> <user> <role> [compartment:<id>] [expires:<time>] [by:<user>]
//	override <tenant> <key> <user|group|role>:<id>
//	policy <id> <tenant> <allow|deny> "<expression>" [target:<key>] [priority:<n>] [disabled]
//	compartment <child> parent:<parent>
//	engine <key>=<value> ...
//
// '#' starts a comment. Quoted fields may contain spaces.

type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser { return &DSLParser{} }

// Parse reads the whole document into a Config.
func (p *DSLParser) Parse(data []byte) (*Config, error) {
	cfg := &Config{Compartments: make(map[string]string)}
	for i, raw := range strings.Split(string(data), "\n") {
		p.line = i + 1
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields, err := splitFields(line)
		if err != nil {
			return nil, p.errf("%v", err)
		}
		if err := p.apply(cfg, fields); err != nil {
			return nil, err
		}
	}
	if len(cfg.Compartments) == 0 {
		cfg.Compartments = nil
	}
	return cfg, nil
}

func (p *DSLParser) errf(format string, args ...any) error {
	return fmt.Errorf("permit: dsl line %d: %s", p.line, fmt.Sprintf(format, args...))
}

func (p *DSLParser) apply(cfg *Config, fields []string) error {
	switch fields[0] {
	case "permission":
		if len(fields) != 2 {
			return p.errf("permission wants 1 argument")
		}
		cfg.Permissions = append(cfg.Permissions, fields[1])

	case "role":
		if len(fields) < 4 {
			return p.errf("role wants id, tenant and name")
		}
		r := &Role{ID: fields[1], TenantID: fields[2], Name: fields[3], Scope: ScopeTenant}
		for _, opt := range fields[4:] {
			switch {
			case strings.HasPrefix(opt, "scope:"):
				r.Scope = RoleScope(opt[len("scope:"):])
			case strings.HasPrefix(opt, "parent:"):
				r.ParentRoleID = opt[len("parent:"):]
			case strings.HasPrefix(opt, "maxlevel:"):
				n, err := strconv.Atoi(opt[len("maxlevel:"):])
				if err != nil {
					return p.errf("bad maxlevel %q", opt)
				}
				r.MaxLevel = n
			default:
				return p.errf("unknown role option %q", opt)
			}
		}
		cfg.Roles = append(cfg.Roles, r)

	case "grantrole":
		if len(fields) != 3 {
			return p.errf("grantrole wants role and key")
		}
		for i := range cfg.RolePermissions {
			if cfg.RolePermissions[i].RoleID == fields[1] {
				cfg.RolePermissions[i].Keys = append(cfg.RolePermissions[i].Keys, fields[2])
				return nil
			}
		}
		cfg.RolePermissions = append(cfg.RolePermissions, RoleGrantConfig{RoleID: fields[1], Keys: []string{fields[2]}})

	case "group":
		if len(fields) != 4 {
			return p.errf("group wants id, tenant and name")
		}
		cfg.Groups = append(cfg.Groups, &Group{ID: fields[1], TenantID: fields[2], Name: fields[3]})

	case "nest":
		if len(fields) != 4 {
			return p.errf("nest wants tenant, parent and child")
		}
		cfg.GroupMemberships = append(cfg.GroupMemberships, NestConfig{TenantID: fields[1], Parent: fields[2], Child: fields[3]})

	case "member":
		if len(fields) != 4 {
			return p.errf("member wants tenant, user and group")
		}
		cfg.UserGroups = append(cfg.UserGroups, UserGroupConfig{TenantID: fields[1], UserID: fields[2], GroupID: fields[3]})

	case "grouprole":
		if len(fields) != 4 {
			return p.errf("grouprole wants tenant, group and role")
		}
		cfg.GroupRoles = append(cfg.GroupRoles, GroupRoleConfig{TenantID: fields[1], GroupID: fields[2], RoleID: fields[3]})

	case "grant":
		if len(fields) < 4 {
			return p.errf("grant wants tenant, user and role")
		}
		g := UserGrantConfig{TenantID: fields[1], UserID: fields[2], RoleID: fields[3]}
		for _, opt := range fields[4:] {
			switch {
			case strings.HasPrefix(opt, "compartment:"):
				g.CompartmentID = opt[len("compartment:"):]
			case strings.HasPrefix(opt, "expires:"):
				val := opt[len("expires:"):]
				if _, err := date.Parse(val); err != nil {
					return p.errf("bad expires %q", val)
				}
				g.ExpiresAt = val
			case strings.HasPrefix(opt, "by:"):
				g.GrantedBy = opt[len("by:"):]
			default:
				return p.errf("unknown grant option %q", opt)
			}
		}
		cfg.UserRoles = append(cfg.UserRoles, g)

	case "override":
		if len(fields) != 4 {
			return p.errf("override wants tenant, key and principal")
		}
		idx := strings.IndexByte(fields[3], ':')
		if idx <= 0 || idx == len(fields[3])-1 {
			return p.errf("principal must be <user|group|role>:<id>, got %q", fields[3])
		}
		cfg.Overrides = append(cfg.Overrides, OverrideConfig{
			TenantID:      fields[1],
			PermissionKey: fields[2],
			PrincipalType: PrincipalType(fields[3][:idx]),
			PrincipalID:   fields[3][idx+1:],
		})

	case "policy":
		if len(fields) < 5 {
			return p.errf("policy wants id, tenant, effect and expression")
		}
		pol := &ABACPolicy{ID: fields[1], TenantID: fields[2], Effect: Effect(fields[3]), Expression: fields[4], Enabled: true}
		for _, opt := range fields[5:] {
			switch {
			case strings.HasPrefix(opt, "target:"):
				pol.TargetPermissionKey = opt[len("target:"):]
			case strings.HasPrefix(opt, "priority:"):
				n, err := strconv.Atoi(opt[len("priority:"):])
				if err != nil {
					return p.errf("bad priority %q", opt)
				}
				pol.Priority = n
			case opt == "disabled":
				pol.Enabled = false
			default:
				return p.errf("unknown policy option %q", opt)
			}
		}
		cfg.Policies = append(cfg.Policies, pol)

	case "compartment":
		if len(fields) != 3 || !strings.HasPrefix(fields[2], "parent:") {
			return p.errf("compartment wants <child> parent:<parent>")
		}
		cfg.Compartments[fields[1]] = fields[2][len("parent:"):]

	case "engine":
		for _, kv := range fields[1:] {
			idx := strings.IndexByte(kv, '=')
			if idx <= 0 {
				return p.errf("engine wants key=value, got %q", kv)
			}
			key, val := kv[:idx], kv[idx+1:]
			n, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return p.errf("engine %s wants an integer, got %q", key, val)
			}
			switch key {
			case "depth_ceiling":
				cfg.Engine.DepthCeiling = int(n)
			case "cache_ttl_ms":
				cfg.Engine.CacheTTLMs = n
			default:
				return p.errf("unknown engine setting %q", key)
			}
		}

	default:
		return p.errf("unknown directive %q", fields[0])
	}
	return nil
}

// splitFields splits on whitespace, honoring double-quoted fields.
func splitFields(line string) ([]string, error) {
	fields := make([]string, 0, 6)
	var sb strings.Builder
	inQuote := false
	flush := func() {
		if sb.Len() > 0 {
			fields = append(fields, sb.String())
			sb.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuote {
				fields = append(fields, sb.String())
				sb.Reset()
				inQuote = false
			} else {
				flush()
				inQuote = true
			}
		case (c == ' ' || c == '\t') && !inQuote:
			flush()
		default:
			sb.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote")
	}
	flush()
	return fields, nil
}

// DSLEncoder renders a Config back to DSL text.
type DSLEncoder struct {
	buf []byte
}

func NewDSLEncoder() *DSLEncoder { return &DSLEncoder{buf: make([]byte, 0, 4096)} }

func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]

	for _, key := range cfg.Permissions {
		e.linef("permission %s", key)
	}
	for _, r := range cfg.Roles {
		e.buf = append(e.buf, "role "...)
		e.buf = append(e.buf, r.ID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, quoteEmpty(r.TenantID)...)
		e.buf = append(e.buf, " \""...)
		e.buf = append(e.buf, r.Name...)
		e.buf = append(e.buf, '"')
		if r.Scope != "" && r.Scope != ScopeTenant {
			e.buf = append(e.buf, " scope:"...)
			e.buf = append(e.buf, r.Scope...)
		}
		if r.ParentRoleID != "" {
			e.buf = append(e.buf, " parent:"...)
			e.buf = append(e.buf, r.ParentRoleID...)
		}
		if r.MaxLevel > 0 {
			e.buf = append(e.buf, " maxlevel:"...)
			e.buf = strconv.AppendInt(e.buf, int64(r.MaxLevel), 10)
		}
		e.buf = append(e.buf, '\n')
	}
	for _, rg := range cfg.RolePermissions {
		for _, key := range rg.Keys {
			e.linef("grantrole %s %s", rg.RoleID, key)
		}
	}
	for _, g := range cfg.Groups {
		e.linef("group %s %s %q", g.ID, g.TenantID, g.Name)
	}
	for _, n := range cfg.GroupMemberships {
		e.linef("nest %s %s %s", n.TenantID, n.Parent, n.Child)
	}
	for _, ug := range cfg.UserGroups {
		e.linef("member %s %s %s", ug.TenantID, ug.UserID, ug.GroupID)
	}
	for _, gr := range cfg.GroupRoles {
		e.linef("grouprole %s %s %s", gr.TenantID, gr.GroupID, gr.RoleID)
	}
	for _, ur := range cfg.UserRoles {
		e.buf = append(e.buf, "grant "...)
		e.buf = append(e.buf, ur.TenantID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, ur.UserID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, ur.RoleID...)
		if ur.CompartmentID != "" {
			e.buf = append(e.buf, " compartment:"...)
			e.buf = append(e.buf, ur.CompartmentID...)
		}
		if ur.ExpiresAt != "" {
			e.buf = append(e.buf, " expires:"...)
			e.buf = append(e.buf, ur.ExpiresAt...)
		}
		if ur.GrantedBy != "" {
			e.buf = append(e.buf, " by:"...)
			e.buf = append(e.buf, ur.GrantedBy...)
		}
		e.buf = append(e.buf, '\n')
	}
	for _, ov := range cfg.Overrides {
		e.linef("override %s %s %s:%s", ov.TenantID, ov.PermissionKey, ov.PrincipalType, ov.PrincipalID)
	}
	for _, p := range cfg.Policies {
		e.buf = append(e.buf, "policy "...)
		e.buf = append(e.buf, p.ID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, quoteEmpty(p.TenantID)...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, p.Effect...)
		e.buf = append(e.buf, " \""...)
		e.buf = append(e.buf, p.Expression...)
		e.buf = append(e.buf, '"')
		if p.TargetPermissionKey != "" {
			e.buf = append(e.buf, " target:"...)
			e.buf = append(e.buf, p.TargetPermissionKey...)
		}
		if p.Priority != 0 {
			e.buf = append(e.buf, " priority:"...)
			e.buf = strconv.AppendInt(e.buf, int64(p.Priority), 10)
		}
		if !p.Enabled {
			e.buf = append(e.buf, " disabled"...)
		}
		e.buf = append(e.buf, '\n')
	}
	for child, parent := range cfg.Compartments {
		e.linef("compartment %s parent:%s", child, parent)
	}
	if cfg.Engine.DepthCeiling > 0 || cfg.Engine.CacheTTLMs > 0 {
		e.buf = append(e.buf, "engine"...)
		if cfg.Engine.DepthCeiling > 0 {
			e.buf = append(e.buf, " depth_ceiling="...)
			e.buf = strconv.AppendInt(e.buf, int64(cfg.Engine.DepthCeiling), 10)
		}
		if cfg.Engine.CacheTTLMs > 0 {
			e.buf = append(e.buf, " cache_ttl_ms="...)
			e.buf = strconv.AppendInt(e.buf, cfg.Engine.CacheTTLMs, 10)
		}
		e.buf = append(e.buf, '\n')
	}
	return append([]byte(nil), e.buf...), nil
}

// quoteEmpty keeps an empty field visible so reparsing does not shift the
// columns after it.
func quoteEmpty(s string) string {
	if s == "" {
		return `""`
	}
	return s
}

func (e *DSLEncoder) linef(format string, args ...any) {
	e.buf = append(e.buf, fmt.Sprintf(format, args...)...)
	e.buf = append(e.buf, '\n')
}
