package permit_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/oarkflow/permit"
	"github.com/oarkflow/permit/logger"
)

// benchStores builds a tenant with nested groups, a three-level role chain
// and a handful of policies, roughly the shape of a mid-size deployment.
func benchStores(numGroups, numPolicies int) (*permit.MemoryCatalogStore, *permit.MemoryDirectoryStore, *permit.MemoryOverrideStore, *permit.MemoryPolicyStore) {
	catalog := permit.NewMemoryCatalogStore()
	dir := permit.NewMemoryDirectoryStore()
	overrides := permit.NewMemoryOverrideStore()
	policies := permit.NewMemoryPolicyStore()

	catalog.AddPermission(&permit.Permission{Domain: "docs", Resource: "doc", Action: "read"})
	catalog.AddPermission(&permit.Permission{Domain: "docs", Resource: "doc", Action: "write"})

	catalog.AddRole(&permit.Role{ID: "viewer", TenantID: "t1", Name: "Viewer", Scope: permit.ScopeTenant})
	catalog.AddRole(&permit.Role{ID: "editor", TenantID: "t1", Name: "Editor", Scope: permit.ScopeTenant, ParentRoleID: "viewer"})
	catalog.AddRole(&permit.Role{ID: "admin", TenantID: "t1", Name: "Admin", Scope: permit.ScopeTenant, ParentRoleID: "editor"})
	catalog.AddRolePermission("viewer", "docs:doc:read")
	catalog.AddRolePermission("editor", "docs:doc:write")

	prev := ""
	for i := 0; i < numGroups; i++ {
		id := fmt.Sprintf("group-%d", i)
		dir.AddGroup(&permit.Group{ID: id, TenantID: "t1", Name: id})
		if prev != "" {
			dir.AddGroupMembership("t1", id, prev)
		}
		prev = id
	}
	dir.AddUserGroup("t1", "alice", "group-0")
	dir.AddGroupRole("t1", prev, "admin")
	dir.AddUserRole(&permit.UserRole{UserID: "alice", RoleID: "editor", TenantID: "t1", GrantedAt: time.Now()})

	for i := 0; i < numPolicies; i++ {
		policies.AddPolicy(&permit.ABACPolicy{
			ID:         fmt.Sprintf("policy-%03d", i),
			TenantID:   "t1",
			Expression: "user.banned == true",
			Effect:     permit.EffectDeny,
			Priority:   i,
			Enabled:    true,
		})
	}
	return catalog, dir, overrides, policies
}

func benchEngine(b *testing.B, ttl time.Duration, numGroups, numPolicies int) *permit.Engine {
	b.Helper()
	catalog, dir, overrides, policies := benchStores(numGroups, numPolicies)
	e, err := permit.NewEngine(catalog, dir, overrides, policies,
		permit.WithLogger(logger.NewNullLogger()),
		permit.WithExpansionCacheTTL(ttl))
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(e.Close)
	return e
}

func BenchmarkDecideCold(b *testing.B) {
	e := benchEngine(b, 0, 10, 20)
	ctx := context.Background()
	attrs := map[string]any{"user": map[string]any{"banned": false}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := e.Decide(ctx, "alice", "docs:doc:write", "t1", attrs); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecideCached(b *testing.B) {
	e := benchEngine(b, time.Minute, 10, 20)
	ctx := context.Background()
	attrs := map[string]any{"user": map[string]any{"banned": false}}
	// warm the expansion cache
	if _, _, err := e.Decide(ctx, "alice", "docs:doc:write", "t1", attrs); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := e.Decide(ctx, "alice", "docs:doc:write", "t1", attrs); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDecideDeepGroups(b *testing.B) {
	e := benchEngine(b, 0, 100, 5)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := e.Decide(ctx, "alice", "docs:doc:read", "t1", nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParseExpression(b *testing.B) {
	src := `user.department == "finance" and (user.clearance >= 3 or request.emergency == true) and not user.suspended`
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := permit.ParseExpression(src); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvalExpression(b *testing.B) {
	expr, err := permit.ParseExpression(`user.department in ["finance", "ops"] and user.clearance >= 3`)
	if err != nil {
		b.Fatal(err)
	}
	attrs := map[string]any{"user": map[string]any{"department": "finance", "clearance": 4}}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		permit.EvalBool(expr, attrs)
	}
}
