package permit

import (
	"context"
	"testing"
	"time"
)

// seedTenant builds the catalog and directory most engine tests share:
// Viewer -> Editor -> Tenant Admin inheritance, a finance group, and alice
// holding Tenant Admin directly.
func seedTenant(t *testing.T, f *fixture) {
	t.Helper()
	for _, key := range []string{
		"projects:project:read",
		"projects:project:write",
		"projects:project:delete",
		"billing:invoice:read",
	} {
		f.addPermission(t, key)
	}

	f.catalog.AddRole(&Role{ID: "viewer", TenantID: "t1", Name: "Viewer", Scope: ScopeTenant})
	f.catalog.AddRole(&Role{ID: "editor", TenantID: "t1", Name: "Editor", Scope: ScopeTenant, ParentRoleID: "viewer"})
	f.catalog.AddRole(&Role{ID: "tenant-admin", TenantID: "t1", Name: "Tenant Admin", Scope: ScopeTenant, ParentRoleID: "editor"})
	f.catalog.AddRolePermission("viewer", "projects:project:read")
	f.catalog.AddRolePermission("editor", "projects:project:write")
	f.catalog.AddRolePermission("tenant-admin", "projects:project:delete")

	f.dir.AddGroup(&Group{ID: "finance", TenantID: "t1", Name: "Finance"})
	f.catalog.AddRole(&Role{ID: "invoice-reader", TenantID: "t1", Name: "Invoice Reader", Scope: ScopeTenant})
	f.catalog.AddRolePermission("invoice-reader", "billing:invoice:read")
	f.dir.AddGroupRole("t1", "finance", "invoice-reader")

	f.dir.AddUserRole(&UserRole{UserID: "alice", RoleID: "tenant-admin", TenantID: "t1", GrantedAt: time.Now()})
	f.dir.AddUserGroup("t1", "bob", "finance")
}

func TestDecideAllowViaRole(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)
	ctx := context.Background()

	allowed, source, err := e.Decide(ctx, "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:role:Tenant Admin" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}

	// inherited from Viewer two levels down
	allowed, source, err = e.Decide(ctx, "alice", "projects:project:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:role:Tenant Admin" {
		t.Fatalf("inherited key should report the held role, got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideAllowViaGroup(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)

	allowed, source, err := e.Decide(context.Background(), "bob", "billing:invoice:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:group:Finance" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideSoftDeletedGroupGrantsNothing(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)
	ctx := context.Background()

	allowed, _, err := e.Decide(ctx, "bob", "billing:invoice:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed {
		t.Fatal("bob should hold the key through finance before the delete")
	}

	f.dir.SoftDeleteGroup("finance")
	allowed, source, err := e.Decide(ctx, "bob", "billing:invoice:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "rbac:none" {
		t.Fatalf("soft-deleted group must grant nothing, got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideSoftDeletedNestedGroupStopsGranting(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	f.addPermission(t, "reports:report:read")
	f.catalog.AddRole(&Role{ID: "report-reader", TenantID: "t1", Name: "Report Reader", Scope: ScopeTenant})
	f.catalog.AddRolePermission("report-reader", "reports:report:read")
	f.dir.AddGroup(&Group{ID: "corp", TenantID: "t1", Name: "Corp"})
	f.dir.AddGroupRole("t1", "corp", "report-reader")
	if err := f.dir.AddGroupMembership("t1", "corp", "finance"); err != nil {
		t.Fatal(err)
	}

	e := f.engine(t)
	ctx := context.Background()

	allowed, _, err := e.Decide(ctx, "bob", "reports:report:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed {
		t.Fatal("bob should inherit corp's role through the finance nesting")
	}

	f.dir.SoftDeleteGroup("corp")
	allowed, source, err := e.Decide(ctx, "bob", "reports:report:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "rbac:none" {
		t.Fatalf("deleted ancestor group must grant nothing, got allowed=%v source=%q", allowed, source)
	}

	// the live finance membership keeps its own grants
	allowed, source, err = e.Decide(ctx, "bob", "billing:invoice:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:group:Finance" {
		t.Fatalf("sibling grants must survive, got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideRBACNone(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)

	allowed, source, err := e.Decide(context.Background(), "bob", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "rbac:none" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideInvalidAndUnknownKeys(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)
	ctx := context.Background()

	allowed, source, err := e.Decide(ctx, "alice", "not-a-key", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "permission:invalid" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}

	allowed, source, err = e.Decide(ctx, "alice", "ghosts:ghost:summon", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "permission:unknown" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideOverridePrecedence(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	f.overrides.AddOverride(&PermissionOverride{
		TenantID: "t1", PermissionKey: "projects:project:delete",
		PrincipalType: PrincipalUser, PrincipalID: "alice",
	})
	// an allow policy targeting the key cannot rescue an overridden check
	f.policies.AddPolicy(&ABACPolicy{
		ID: "p-allow", TenantID: "t1", Expression: "true",
		Effect: EffectAllow, Enabled: true, TargetPermissionKey: "projects:project:delete",
	})

	e := f.engine(t)
	allowed, source, err := e.Decide(context.Background(), "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "override:user:alice" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideOverrideViaGroupAndRole(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)
	ctx := context.Background()

	// group override hits bob through the finance closure
	f.overrides.AddOverride(&PermissionOverride{
		TenantID: "t1", PermissionKey: "billing:invoice:read",
		PrincipalType: PrincipalGroup, PrincipalID: "finance",
	})
	allowed, source, err := e.Decide(ctx, "bob", "billing:invoice:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "override:group:finance" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}

	// role override hits alice through an inherited ancestor role
	f.overrides.AddOverride(&PermissionOverride{
		TenantID: "t1", PermissionKey: "projects:project:read",
		PrincipalType: PrincipalRole, PrincipalID: "viewer",
	})
	allowed, source, err = e.Decide(ctx, "alice", "projects:project:read", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "override:role:viewer" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideOverrideDeterministicTiebreak(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	// both a user-level and a role-level override match; user wins
	f.overrides.AddOverride(&PermissionOverride{
		TenantID: "t1", PermissionKey: "projects:project:delete",
		PrincipalType: PrincipalRole, PrincipalID: "tenant-admin",
	})
	f.overrides.AddOverride(&PermissionOverride{
		TenantID: "t1", PermissionKey: "projects:project:delete",
		PrincipalType: PrincipalUser, PrincipalID: "alice",
	})

	e := f.engine(t)
	_, source, err := e.Decide(context.Background(), "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if source != "override:user:alice" {
		t.Fatalf("user override should win the tiebreak, got %q", source)
	}
}

func TestDecideABACDeny(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	f.policies.AddPolicy(&ABACPolicy{
		ID: "deny-suspended", TenantID: "t1",
		Expression: "user.suspended == true",
		Effect:     EffectDeny, Priority: 10, Enabled: true,
	})

	e := f.engine(t)
	ctx := context.Background()

	attrs := map[string]any{"user": map[string]any{"suspended": true}}
	allowed, source, err := e.Decide(ctx, "alice", "projects:project:delete", "t1", attrs)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "abac:deny-suspended" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}

	// same check without the attribute: deny expression fails closed to
	// "no match" and RBAC carries the decision
	allowed, source, err = e.Decide(ctx, "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:role:Tenant Admin" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideABACDenyPriorityOrder(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	// both match; higher priority reports, id breaks the remaining tie
	f.policies.AddPolicy(&ABACPolicy{
		ID: "z-low", TenantID: "t1", Expression: "true",
		Effect: EffectDeny, Priority: 1, Enabled: true,
	})
	f.policies.AddPolicy(&ABACPolicy{
		ID: "b-high", TenantID: "t1", Expression: "true",
		Effect: EffectDeny, Priority: 5, Enabled: true,
	})
	f.policies.AddPolicy(&ABACPolicy{
		ID: "a-high", TenantID: "t1", Expression: "true",
		Effect: EffectDeny, Priority: 5, Enabled: true,
	})

	e := f.engine(t)
	_, source, err := e.Decide(context.Background(), "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if source != "abac:a-high" {
		t.Fatalf("expected highest priority, lowest id to report, got %q", source)
	}
}

func TestDecideABACDenyAppliesWithoutBaseline(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	f.policies.AddPolicy(&ABACPolicy{
		ID: "deny-all", TenantID: "t1", Expression: "true",
		Effect: EffectDeny, Priority: 1, Enabled: true,
	})

	e := f.engine(t)
	// bob has no baseline for this key; the deny still reports first
	_, source, err := e.Decide(context.Background(), "bob", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if source != "abac:deny-all" {
		t.Fatalf("deny policy should outrank rbac:none, got %q", source)
	}
}

func TestDecideDisabledAndDeletedPoliciesInert(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	f.policies.AddPolicy(&ABACPolicy{
		ID: "deny-off", TenantID: "t1", Expression: "true",
		Effect: EffectDeny, Priority: 100, Enabled: false,
	})
	gone := time.Now()
	f.policies.AddPolicy(&ABACPolicy{
		ID: "deny-gone", TenantID: "t1", Expression: "true",
		Effect: EffectDeny, Priority: 100, Enabled: true, DeletedAt: &gone,
	})

	e := f.engine(t)
	allowed, source, err := e.Decide(context.Background(), "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:role:Tenant Admin" {
		t.Fatalf("disabled and deleted policies must not decide, got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideAllowGate(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	f.policies.AddPolicy(&ABACPolicy{
		ID: "gate-office-hours", TenantID: "t1",
		Expression: "request.hour >= 9 and request.hour < 17",
		Effect:     EffectAllow, Enabled: true,
		TargetPermissionKey: "projects:project:delete",
	})

	e := f.engine(t)
	ctx := context.Background()

	// gate satisfied: RBAC provenance reports
	attrs := map[string]any{"request": map[string]any{"hour": 11}}
	allowed, source, err := e.Decide(ctx, "alice", "projects:project:delete", "t1", attrs)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:role:Tenant Admin" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}

	// gate unsatisfied
	attrs = map[string]any{"request": map[string]any{"hour": 3}}
	allowed, source, err = e.Decide(ctx, "alice", "projects:project:delete", "t1", attrs)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "abac:no-matching-allow" {
		t.Fatalf("got allowed=%v source=%q", allowed, source)
	}

	// gate never rescues a missing baseline
	allowed, source, err = e.Decide(ctx, "bob", "projects:project:delete", "t1", map[string]any{"request": map[string]any{"hour": 11}})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "rbac:none" {
		t.Fatalf("allow policy must not grant without baseline, got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideUntargetedAllowNeverGates(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	f.policies.AddPolicy(&ABACPolicy{
		ID: "broad-allow", TenantID: "t1", Expression: "false",
		Effect: EffectAllow, Enabled: true, // untargeted and never matching
	})

	e := f.engine(t)
	allowed, source, err := e.Decide(context.Background(), "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !allowed || source != "rbac:role:Tenant Admin" {
		t.Fatalf("untargeted allow policy must not gate, got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideExpiredGrant(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	past := time.Now().Add(-time.Hour)
	f.dir.AddUserRole(&UserRole{
		UserID: "carol", RoleID: "tenant-admin", TenantID: "t1",
		GrantedAt: past.Add(-time.Hour), ExpiresAt: &past,
	})

	e := f.engine(t)
	allowed, source, err := e.Decide(context.Background(), "carol", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "rbac:none" {
		t.Fatalf("expired grant must not contribute, got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideUnparsablePolicyFailsClosed(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	f.policies.AddPolicy(&ABACPolicy{
		ID: "broken-deny", TenantID: "t1", Expression: "a ==",
		Effect: EffectDeny, Priority: 99, Enabled: true,
	})

	var diags []Diagnostic
	e := f.engine(t, WithDiagnostics(DiagnosticFunc(func(d Diagnostic) { diags = append(diags, d) })))

	allowed, source, err := e.Decide(context.Background(), "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("unparsable policy must not fail the decision: %v", err)
	}
	if !allowed || source != "rbac:role:Tenant Admin" {
		t.Fatalf("broken deny should be inert, got allowed=%v source=%q", allowed, source)
	}
	if len(diags) == 0 || diags[0].Kind != DiagExprParse || diags[0].Subject != "broken-deny" {
		t.Fatalf("expected expr-parse diagnostic for broken-deny, got %+v", diags)
	}
}

func TestDecideTenantIsolation(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)

	// alice's grants live in t1; t2 sees nothing
	allowed, source, err := e.Decide(context.Background(), "alice", "projects:project:delete", "t2", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed || source != "rbac:none" {
		t.Fatalf("grants must not leak across tenants, got allowed=%v source=%q", allowed, source)
	}
}

func TestDecideProviderSideScope(t *testing.T) {
	f := newFixture()
	f.addPermission(t, "platform:tenant:suspend")
	f.catalog.AddRole(&Role{ID: "platform-op", TenantID: "", Name: "Platform Operator", Scope: ScopeProvider})
	f.catalog.AddRolePermission("platform-op", "platform:tenant:suspend")
	f.dir.AddUserRole(&UserRole{UserID: "root-admin", RoleID: "platform-op", TenantID: "t1", GrantedAt: time.Now()})

	e := f.engine(t)
	ctx := context.Background()

	// provider-side request sees the provider role
	dec, err := e.DecideRequest(ctx, &CheckRequest{
		PrincipalID: "root-admin", PermissionKey: "platform:tenant:suspend",
		TenantID: "t1", ProviderSide: true,
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !dec.Allowed || dec.Source != "rbac:role:Platform Operator" {
		t.Fatalf("got allowed=%v source=%q", dec.Allowed, dec.Source)
	}

	// the same grant is invisible tenant-side
	dec, err = e.DecideRequest(ctx, &CheckRequest{
		PrincipalID: "root-admin", PermissionKey: "platform:tenant:suspend",
		TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Allowed || dec.Source != "rbac:none" {
		t.Fatalf("provider role must not apply tenant-side, got allowed=%v source=%q", dec.Allowed, dec.Source)
	}
}

func TestDecideCompartmentScopedGrant(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	comps := NewMemoryCompartmentResolver()
	comps.AddParent("team-a", "org-1")
	comps.AddParent("proj-x", "team-a")

	f.dir.AddUserRole(&UserRole{
		UserID: "dave", RoleID: "editor", TenantID: "t1",
		CompartmentID: "org-1", GrantedAt: time.Now(),
	})

	e := f.engine(t, WithCompartmentResolver(comps))
	ctx := context.Background()

	// addressed compartment inside the grant's subtree
	dec, err := e.DecideRequest(ctx, &CheckRequest{
		PrincipalID: "dave", PermissionKey: "projects:project:write",
		TenantID: "t1", CompartmentID: "proj-x",
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if !dec.Allowed || dec.Source != "rbac:role:Editor" {
		t.Fatalf("got allowed=%v source=%q", dec.Allowed, dec.Source)
	}

	// outside the subtree
	dec, err = e.DecideRequest(ctx, &CheckRequest{
		PrincipalID: "dave", PermissionKey: "projects:project:write",
		TenantID: "t1", CompartmentID: "org-2",
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("grant must not apply outside its compartment subtree, got source=%q", dec.Source)
	}

	// compartment-scoped grant with no addressed compartment fails closed
	dec, err = e.DecideRequest(ctx, &CheckRequest{
		PrincipalID: "dave", PermissionKey: "projects:project:write",
		TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("narrowed grant without addressed compartment must fail closed, got source=%q", dec.Source)
	}
}

func TestExplainTrace(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)

	dec, err := e.Explain(context.Background(), &CheckRequest{
		PrincipalID: "alice", PermissionKey: "projects:project:delete", TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if !dec.Allowed || len(dec.Trace) == 0 {
		t.Fatalf("explain should carry a trace, got %+v", dec)
	}

	// the plain path stays trace-free
	plain, err := e.DecideRequest(context.Background(), &CheckRequest{
		PrincipalID: "alice", PermissionKey: "projects:project:delete", TenantID: "t1",
	})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if len(plain.Trace) != 0 {
		t.Fatalf("DecideRequest should not build traces, got %v", plain.Trace)
	}
}

func TestBatchDecide(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t)

	reqs := []*CheckRequest{
		{PrincipalID: "alice", PermissionKey: "projects:project:delete", TenantID: "t1"},
		{PrincipalID: "bob", PermissionKey: "billing:invoice:read", TenantID: "t1"},
		{PrincipalID: "bob", PermissionKey: "projects:project:delete", TenantID: "t1"},
	}
	decisions, err := e.BatchDecide(context.Background(), reqs)
	if err != nil {
		t.Fatalf("batch decide: %v", err)
	}
	if len(decisions) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(decisions))
	}
	if !decisions[0].Allowed || !decisions[1].Allowed || decisions[2].Allowed {
		t.Fatalf("unexpected outcomes: %+v", decisions)
	}
}

func TestAuditTrail(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	audit := NewMemoryAuditStore()
	e := f.engine(t,
		WithAuditStore(audit),
		WithTraceIDFunc(func() string { return "trace-1" }))

	if _, _, err := e.Decide(context.Background(), "alice", "projects:project:delete", "t1", nil); err != nil {
		t.Fatalf("decide: %v", err)
	}

	// the audit write is asynchronous
	deadline := time.Now().Add(2 * time.Second)
	for {
		entries, err := audit.GetAccessLog(context.Background(), AuditFilter{PrincipalID: "alice"})
		if err != nil {
			t.Fatalf("get access log: %v", err)
		}
		if len(entries) == 1 {
			got := entries[0]
			if !got.Allowed || got.Source != "rbac:role:Tenant Admin" || got.TraceID != "trace-1" {
				t.Fatalf("unexpected audit entry: %+v", got)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("audit entry never arrived")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestExpansionCacheInvalidation(t *testing.T) {
	f := newFixture()
	seedTenant(t, f)
	e := f.engine(t, WithExpansionCacheTTL(time.Minute))
	ctx := context.Background()

	allowed, _, err := e.Decide(ctx, "alice", "projects:project:delete", "t1", nil)
	if err != nil || !allowed {
		t.Fatalf("warmup decide: allowed=%v err=%v", allowed, err)
	}

	// ristretto admits asynchronously; settle before relying on the cache
	time.Sleep(20 * time.Millisecond)

	f.catalog.SoftDeleteRole("tenant-admin")
	e.InvalidateCache()

	allowed, source, err := e.Decide(ctx, "alice", "projects:project:delete", "t1", nil)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if allowed {
		t.Fatalf("revoked role should deny after invalidation, got source=%q", source)
	}
}
