package permit

import (
	"context"
	"testing"
	"time"
)

func TestBuildersAssembleDecidableState(t *testing.T) {
	f := newFixture()
	f.addPermission(t, "docs:doc:read")

	role := NewRoleBuilder().
		ID("reader").Tenant("t1").Name("Reader").
		Scope(ScopeTenant).
		Build()
	f.catalog.AddRole(role)
	f.catalog.AddRolePermission("reader", "docs:doc:read")

	grant := NewGrantBuilder().
		User("alice").Role("reader").Tenant("t1").
		GrantedBy("admin-1").
		Build()
	f.dir.AddUserRole(grant)

	policy := NewPolicyBuilder().
		ID("deny-locked").Tenant("t1").
		Expression("doc.locked == true").
		Effect(EffectDeny).Priority(5).
		Build()
	f.policies.AddPolicy(policy)

	override := NewOverrideBuilder().
		Tenant("t1").Key("docs:doc:read").User("mallory").
		Build()
	f.overrides.AddOverride(override)

	e := f.engine(t)
	ctx := context.Background()

	allowed, source, err := e.Decide(ctx, "alice", "docs:doc:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:role:Reader" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}

	allowed, source, err = e.Decide(ctx, "alice", "docs:doc:read", "t1", map[string]any{"doc": map[string]any{"locked": true}})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "abac:deny-locked" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}
}

func TestGrantBuilderExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	g := NewGrantBuilder().User("u").Role("r").Tenant("t").ExpiresAt(exp).Build()
	if g.ExpiresAt == nil || !g.ExpiresAt.Equal(exp) {
		t.Fatalf("expiry lost: %+v", g)
	}
	if !g.Active(time.Now()) {
		t.Fatal("future expiry should be active")
	}
	if g.Active(exp.Add(time.Minute)) {
		t.Fatal("past expiry should be inactive")
	}
}

func TestOverrideBuilderPrincipalTypes(t *testing.T) {
	if o := NewOverrideBuilder().Group("g1").Build(); o.PrincipalType != PrincipalGroup || o.PrincipalID != "g1" {
		t.Fatalf("group builder wrong: %+v", o)
	}
	if o := NewOverrideBuilder().Role("r1").Build(); o.PrincipalType != PrincipalRole || o.PrincipalID != "r1" {
		t.Fatalf("role builder wrong: %+v", o)
	}
}
