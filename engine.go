package permit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/permit/logger"
)

// ============================================================================
// PERMISSION ENGINE
// ============================================================================

// Engine answers "is this action allowed, and why?" for one principal,
// permission key and tenant. Evaluation is stateless and read-only; any
// number of Decide calls may run in parallel. The only mutable state is the
// expansion cache, which is keyed by (tenant, principal) and by role id -
// never by permission key, since attributes legitimately change per call.
type Engine struct {
	catalog      CatalogStore
	dir          DirectoryStore
	overrides    OverrideStore
	policies     PolicyStore
	audit        AuditStore
	compartments CompartmentResolver

	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc
	diagnostics DiagnosticSink

	maxRoleDepth int
	cacheTTL     time.Duration
	cache        *ristretto.Cache

	exprCache sync.Map // expression text -> compiledExpr

	auditCh   chan AuditEntry
	auditOnce sync.Once
	closeCh   chan struct{}
}

type compiledExpr struct {
	expr Expr
	err  error
}

// EngineOption customizes a new Engine.
type EngineOption func(e *Engine) error

// WithLogger installs a Logger on the Engine.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		e.logger = l
		return nil
	}
}

// WithTraceIDFunc installs a custom trace ID generator used for audit rows.
func WithTraceIDFunc(f logger.TraceIDFunc) EngineOption {
	return func(e *Engine) error {
		e.traceIDFunc = f
		return nil
	}
}

// WithDiagnostics installs the sink that receives configuration defects
// (unparsable expressions, hierarchy cuts).
func WithDiagnostics(sink DiagnosticSink) EngineOption {
	return func(e *Engine) error {
		e.diagnostics = sink
		return nil
	}
}

// WithAuditStore enables asynchronous decision auditing.
func WithAuditStore(s AuditStore) EngineOption {
	return func(e *Engine) error {
		e.audit = s
		return nil
	}
}

// WithCompartmentResolver installs the external compartment-tree lookup used
// for compartment-scoped grants. Without one, compartment-scoped grants
// never apply.
func WithCompartmentResolver(r CompartmentResolver) EngineOption {
	return func(e *Engine) error {
		e.compartments = r
		return nil
	}
}

// WithDepthCeiling sets the global role-ancestor traversal guard. It is
// independent of any role's own max_level.
func WithDepthCeiling(n int) EngineOption {
	return func(e *Engine) error {
		if n < 1 {
			return fmt.Errorf("permit: depth ceiling must be >= 1, got %d", n)
		}
		e.maxRoleDepth = n
		return nil
	}
}

// WithExpansionCacheTTL sets how long group closures and role chains stay
// cached. Zero disables the cache.
func WithExpansionCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		e.cacheTTL = ttl
		return nil
	}
}

const (
	defaultMaxRoleDepth = 32
	defaultCacheTTL     = time.Second
)

// NewEngine builds an Engine over the read-only data collaborators.
func NewEngine(catalog CatalogStore, dir DirectoryStore, overrides OverrideStore, policies PolicyStore, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		catalog:      catalog,
		dir:          dir,
		overrides:    overrides,
		policies:     policies,
		logger:       logger.NewPhusluLogger(),
		maxRoleDepth: defaultMaxRoleDepth,
		cacheTTL:     defaultCacheTTL,
		closeCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.cacheTTL > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 100_000,
			MaxCost:     10_000,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("permit: build expansion cache: %w", err)
		}
		e.cache = cache
	}
	if e.audit != nil {
		e.auditCh = make(chan AuditEntry, 1024)
		go e.auditWorker()
	}
	return e, nil
}

// Close stops the audit worker and releases the cache.
func (e *Engine) Close() {
	e.auditOnce.Do(func() {
		close(e.closeCh)
		if e.auditCh != nil {
			close(e.auditCh)
		}
	})
	if e.cache != nil {
		e.cache.Close()
	}
}

// ============================================================================
// DECISION COMBINER
// ============================================================================

// Decide is the public contract for the common tenant-side case. It returns
// an error only for infrastructure failures; every logical outcome,
// including "no such permission defined", is a deny with an explanatory
// source.
func (e *Engine) Decide(ctx context.Context, principalID string, permissionKey PermissionKey, tenantID string, attrs map[string]any) (bool, string, error) {
	dec, err := e.DecideRequest(ctx, &CheckRequest{
		PrincipalID:   principalID,
		PermissionKey: permissionKey,
		TenantID:      tenantID,
		Attrs:         attrs,
	})
	if err != nil {
		return false, "", err
	}
	return dec.Allowed, dec.Source, nil
}

// DecideRequest is the full form: provider-side callers and
// compartment-addressed resources use this.
func (e *Engine) DecideRequest(ctx context.Context, req *CheckRequest) (*Decision, error) {
	return e.decide(ctx, req, false)
}

// Explain runs the same decision walk and additionally records a
// human-readable trace of every step.
func (e *Engine) Explain(ctx context.Context, req *CheckRequest) (*Decision, error) {
	return e.decide(ctx, req, true)
}

// BatchDecide evaluates multiple checks; the first infrastructure failure
// aborts the batch.
func (e *Engine) BatchDecide(ctx context.Context, reqs []*CheckRequest) ([]*Decision, error) {
	decisions := make([]*Decision, len(reqs))
	for i, req := range reqs {
		dec, err := e.DecideRequest(ctx, req)
		if err != nil {
			return nil, err
		}
		decisions[i] = dec
	}
	return decisions, nil
}

// decide runs the precedence walk, terminal on first exit:
//
//  1. permission catalog check
//  2. group closure + RBAC baseline
//  3. explicit override deny
//  4. ABAC deny policies (priority descending, id ascending on ties)
//  5. RBAC baseline presence
//  6. targeted ABAC allow-gate
//  7. allow, with RBAC provenance
func (e *Engine) decide(ctx context.Context, req *CheckRequest, includeTrace bool) (*Decision, error) {
	dec := &Decision{Timestamp: time.Now()}
	trace := func(format string, args ...any) {
		if includeTrace {
			dec.Trace = append(dec.Trace, fmt.Sprintf(format, args...))
		}
	}

	if !ValidKey(req.PermissionKey) {
		dec.Source = "permission:invalid"
		trace("DENY: malformed permission key %q", req.PermissionKey)
		e.auditDecision(req, dec)
		return dec, nil
	}
	if _, err := e.catalog.GetPermission(ctx, req.PermissionKey); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("get permission %s: %w", req.PermissionKey, err)
		}
		dec.Source = "permission:unknown"
		trace("DENY: permission %q not in catalog", req.PermissionKey)
		e.auditDecision(req, dec)
		return dec, nil
	}

	groups, err := e.ResolveGroups(ctx, req.TenantID, req.PrincipalID)
	if err != nil {
		return nil, err
	}
	trace("resolved groups: %v", groups)

	base, err := e.CollectGrants(ctx, req, groups)
	if err != nil {
		return nil, err
	}
	trace("rbac baseline: %d keys via %d roles", len(base.Permissions), len(base.RoleIDs))

	// 1. Explicit deny override: highest precedence, nothing below reverses it.
	ov, err := e.FindOverride(ctx, req, groups, base)
	if err != nil {
		return nil, err
	}
	if ov != nil {
		dec.Source = "override:" + string(ov.PrincipalType) + ":" + ov.PrincipalID
		trace("DENY: override %s", dec.Source)
		e.auditDecision(req, dec)
		return dec, nil
	}
	trace("no override matched")

	policies, err := e.relevantPolicies(ctx, req.TenantID, req.PermissionKey)
	if err != nil {
		return nil, err
	}

	// 2. ABAC deny policies.
	for _, p := range policies {
		if p.Effect != EffectDeny {
			continue
		}
		matched := e.evalPolicy(p, req.Attrs)
		trace("deny policy %s priority=%d matched=%v", p.ID, p.Priority, matched)
		if matched {
			dec.Source = "abac:" + p.ID
			e.auditDecision(req, dec)
			return dec, nil
		}
	}

	// 3. RBAC baseline presence.
	src, ok := base.Permissions[req.PermissionKey]
	if !ok {
		dec.Source = "rbac:none"
		trace("DENY: permission not in baseline")
		e.auditDecision(req, dec)
		return dec, nil
	}
	trace("baseline grants key via %s", src.String())

	// 4. Targeted allow-gate: when allow policies target this permission, at
	// least one must match. Untargeted policies never gate.
	gated := false
	passed := false
	for _, p := range policies {
		if p.Effect != EffectAllow || p.TargetPermissionKey == "" {
			continue
		}
		gated = true
		matched := e.evalPolicy(p, req.Attrs)
		trace("allow policy %s priority=%d matched=%v", p.ID, p.Priority, matched)
		if matched {
			passed = true
			break
		}
	}
	if gated && !passed {
		dec.Source = "abac:no-matching-allow"
		trace("DENY: allow-gate unsatisfied")
		e.auditDecision(req, dec)
		return dec, nil
	}

	dec.Allowed = true
	dec.Source = src.String()
	trace("ALLOW via %s", dec.Source)
	e.auditDecision(req, dec)
	return dec, nil
}

// relevantPolicies returns enabled policies for the tenant that target the
// key or are untargeted, ordered by priority descending with policy id as
// the deterministic tiebreak.
func (e *Engine) relevantPolicies(ctx context.Context, tenantID string, key PermissionKey) ([]*ABACPolicy, error) {
	rows, err := e.policies.ListPolicies(ctx, tenantID, key)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	filtered := rows[:0:0]
	for _, p := range rows {
		if !p.Enabled || p.DeletedAt != nil {
			continue
		}
		if p.TargetPermissionKey != "" && p.TargetPermissionKey != key {
			continue
		}
		filtered = append(filtered, p)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Priority != filtered[j].Priority {
			return filtered[i].Priority > filtered[j].Priority
		}
		return filtered[i].ID < filtered[j].ID
	})
	return filtered, nil
}

// evalPolicy parses (with caching) and evaluates one policy expression. An
// unparsable expression evaluates to false - an unparsable deny denies
// nothing, an unparsable allow grants nothing - and the defect is reported,
// never swallowed and never fatal to the decision.
func (e *Engine) evalPolicy(p *ABACPolicy, attrs map[string]any) bool {
	ce := e.compileExpression(p.Expression)
	if ce.err != nil {
		e.report(Diagnostic{Kind: DiagExprParse, Subject: p.ID, Detail: ce.err.Error()})
		return false
	}
	return EvalBool(ce.expr, attrs)
}

func (e *Engine) compileExpression(src string) compiledExpr {
	if cached, ok := e.exprCache.Load(src); ok {
		return cached.(compiledExpr)
	}
	expr, err := ParseExpression(src)
	ce := compiledExpr{expr: expr, err: err}
	e.exprCache.Store(src, ce)
	return ce
}

// ============================================================================
// EXPANSION CACHE
// ============================================================================

func (e *Engine) cacheGetGroups(tenantID, userID string) ([]string, bool) {
	if e.cache == nil {
		return nil, false
	}
	v, ok := e.cache.Get("g:" + tenantID + "|" + userID)
	if !ok {
		return nil, false
	}
	return v.([]string), true
}

func (e *Engine) cacheSetGroups(tenantID, userID string, groups []string) {
	if e.cache == nil {
		return
	}
	e.cache.SetWithTTL("g:"+tenantID+"|"+userID, groups, int64(len(groups)+1), e.cacheTTL)
}

func (e *Engine) cacheGetChain(roleID string) ([]RoleNode, bool) {
	if e.cache == nil {
		return nil, false
	}
	v, ok := e.cache.Get("r:" + roleID)
	if !ok {
		return nil, false
	}
	return v.([]RoleNode), true
}

func (e *Engine) cacheSetChain(roleID string, chain []RoleNode) {
	if e.cache == nil {
		return
	}
	e.cache.SetWithTTL("r:"+roleID, chain, int64(len(chain)+1), e.cacheTTL)
}

// InvalidateCache drops all cached expansions. Administrative layers call
// this after changing roles, groups or grants.
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// ============================================================================
// AUDIT
// ============================================================================

func (e *Engine) auditDecision(req *CheckRequest, dec *Decision) {
	e.logger.Info("decision",
		"tenant", req.TenantID,
		"principal", req.PrincipalID,
		"permission", req.PermissionKey,
		"allowed", dec.Allowed,
		"source", dec.Source)

	if e.auditCh == nil {
		return
	}
	entry := AuditEntry{
		ID:            fmt.Sprintf("%d", time.Now().UnixNano()),
		Timestamp:     dec.Timestamp,
		TenantID:      req.TenantID,
		PrincipalID:   req.PrincipalID,
		PermissionKey: req.PermissionKey,
		Allowed:       dec.Allowed,
		Source:        dec.Source,
	}
	if e.traceIDFunc != nil {
		entry.TraceID = e.traceIDFunc()
	}
	select {
	case e.auditCh <- entry:
	default:
		// never block the decision path; drop when the queue is full
		e.logger.Error("audit queue full, entry dropped", "principal", req.PrincipalID)
	}
}

func (e *Engine) auditWorker() {
	bg := context.Background()
	for entry := range e.auditCh {
		if err := e.audit.LogDecision(bg, &entry); err != nil {
			e.logger.Error("audit write failed", "error", err.Error())
		}
	}
}
