package permit

// ============================================================================
// DIAGNOSTICS
// ============================================================================
//
// Configuration defects (unparsable policy expressions, cyclic hierarchies
// hitting the depth ceiling) never fail a decision. They resolve to the most
// restrictive interpretation and are reported here instead.

// Diagnostic kinds.
const (
	DiagExprParse = "expr-parse" // policy expression failed to parse
	DiagRoleDepth = "role-depth" // role ancestor walk hit the depth ceiling
	DiagRoleCycle = "role-cycle" // role ancestor walk revisited a role
)

// Diagnostic describes one configuration defect observed during evaluation.
type Diagnostic struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject"` // policy, role or group id
	Detail  string `json:"detail"`
}

// DiagnosticSink receives configuration defects. Implementations must be
// safe for concurrent use and must not block.
type DiagnosticSink interface {
	Report(d Diagnostic)
}

// DiagnosticFunc adapts a function to a DiagnosticSink.
type DiagnosticFunc func(d Diagnostic)

func (f DiagnosticFunc) Report(d Diagnostic) { f(d) }

// report forwards to the installed sink and always logs.
func (e *Engine) report(d Diagnostic) {
	e.logger.Error("configuration defect", "kind", d.Kind, "subject", d.Subject, "detail", d.Detail)
	if e.diagnostics != nil {
		e.diagnostics.Report(d)
	}
}
