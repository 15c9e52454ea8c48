package permit

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// EXPRESSION AST & EVALUATOR
// ============================================================================

// Expr is the closed set of expression node kinds. The marker method keeps
// the set sealed so evaluation can be an exhaustive switch.
type Expr interface {
	String() string
	exprNode()
}

// LiteralExpr holds a string, float64 or bool constant.
type LiteralExpr struct {
	Value any
}

// AttrExpr references a dotted attribute path, e.g. "user.department".
type AttrExpr struct {
	Path string
}

// ListExpr is a bracketed literal list, e.g. ["finance", "ops"].
type ListExpr struct {
	Items []Expr
}

// CompareExpr applies ==, !=, <, <=, > or >= to two operands.
type CompareExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

// MembershipExpr tests the left operand against a list on the right.
type MembershipExpr struct {
	Needle   Expr
	Haystack Expr
}

// NotExpr negates its operand.
type NotExpr struct {
	X Expr
}

// AndExpr short-circuits on the first false operand.
type AndExpr struct {
	Left  Expr
	Right Expr
}

// OrExpr short-circuits on the first true operand.
type OrExpr struct {
	Left  Expr
	Right Expr
}

func (*LiteralExpr) exprNode()    {}
func (*AttrExpr) exprNode()       {}
func (*ListExpr) exprNode()       {}
func (*CompareExpr) exprNode()    {}
func (*MembershipExpr) exprNode() {}
func (*NotExpr) exprNode()        {}
func (*AndExpr) exprNode()        {}
func (*OrExpr) exprNode()         {}

func (e *LiteralExpr) String() string {
	switch v := e.Value.(type) {
	case string:
		return strconv.Quote(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (e *AttrExpr) String() string { return e.Path }

func (e *ListExpr) String() string {
	parts := make([]string, len(e.Items))
	for i, it := range e.Items {
		parts[i] = it.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func (e *CompareExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left.String(), e.Op, e.Right.String())
}

func (e *MembershipExpr) String() string {
	return fmt.Sprintf("(%s in %s)", e.Needle.String(), e.Haystack.String())
}

func (e *NotExpr) String() string { return "(not " + e.X.String() + ")" }

func (e *AndExpr) String() string {
	return fmt.Sprintf("(%s and %s)", e.Left.String(), e.Right.String())
}

func (e *OrExpr) String() string {
	return fmt.Sprintf("(%s or %s)", e.Left.String(), e.Right.String())
}

// missingValue marks an attribute path that did not resolve. Any comparison
// or membership test touching it evaluates to false, never to an error.
type missingValue struct{}

// EvalBool evaluates the expression against a nested attribute map. The
// result is fail-closed: missing attributes, type mismatches and non-boolean
// operands all count as false.
func EvalBool(e Expr, attrs map[string]any) bool {
	return truthy(eval(e, attrs))
}

func eval(e Expr, attrs map[string]any) any {
	switch n := e.(type) {
	case *LiteralExpr:
		return n.Value
	case *AttrExpr:
		return lookupPath(attrs, n.Path)
	case *ListExpr:
		items := make([]any, len(n.Items))
		for i, it := range n.Items {
			items[i] = eval(it, attrs)
		}
		return items
	case *CompareExpr:
		return evalCompare(n.Op, eval(n.Left, attrs), eval(n.Right, attrs))
	case *MembershipExpr:
		return evalMembership(eval(n.Needle, attrs), eval(n.Haystack, attrs))
	case *NotExpr:
		return !truthy(eval(n.X, attrs))
	case *AndExpr:
		if !truthy(eval(n.Left, attrs)) {
			return false
		}
		return truthy(eval(n.Right, attrs))
	case *OrExpr:
		if truthy(eval(n.Left, attrs)) {
			return true
		}
		return truthy(eval(n.Right, attrs))
	default:
		return false
	}
}

// lookupPath walks dotted segments through nested map[string]any values.
func lookupPath(attrs map[string]any, path string) any {
	if attrs == nil {
		return missingValue{}
	}
	cur := any(attrs)
	for path != "" {
		seg := path
		if i := strings.IndexByte(path, '.'); i >= 0 {
			seg, path = path[:i], path[i+1:]
		} else {
			path = ""
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return missingValue{}
		}
		cur, ok = m[seg]
		if !ok {
			return missingValue{}
		}
	}
	return cur
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func isMissing(v any) bool {
	_, ok := v.(missingValue)
	return ok
}

func evalCompare(op string, left, right any) bool {
	if isMissing(left) || isMissing(right) {
		return false
	}
	switch op {
	case "==":
		eq, ok := valuesEqual(left, right)
		return ok && eq
	case "!=":
		eq, ok := valuesEqual(left, right)
		return ok && !eq
	}

	// ordering operators: numbers and strings only
	if lf, lok := toFloat(left); lok {
		rf, rok := toFloat(right)
		if !rok {
			return false
		}
		return applyOrder(op, compareFloat(lf, rf))
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if !lok || !rok {
		return false
	}
	return applyOrder(op, strings.Compare(ls, rs))
}

func applyOrder(op string, cmp int) bool {
	switch op {
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// valuesEqual reports equality and whether the operands were comparable at
// all. Numeric values of different Go types compare by value.
func valuesEqual(a, b any) (eq bool, ok bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return false, false
		}
		return af == bf, true
	}
	switch av := a.(type) {
	case string:
		bv, bok := b.(string)
		if !bok {
			return false, false
		}
		return av == bv, true
	case bool:
		bv, bok := b.(bool)
		if !bok {
			return false, false
		}
		return av == bv, true
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func evalMembership(needle, haystack any) bool {
	if isMissing(needle) || isMissing(haystack) {
		return false
	}
	contains := func(item any) bool {
		eq, ok := valuesEqual(needle, item)
		return ok && eq
	}
	switch hs := haystack.(type) {
	case []any:
		for _, it := range hs {
			if contains(it) {
				return true
			}
		}
	case []string:
		for _, it := range hs {
			if contains(it) {
				return true
			}
		}
	case []int:
		for _, it := range hs {
			if contains(it) {
				return true
			}
		}
	case []float64:
		for _, it := range hs {
			if contains(it) {
				return true
			}
		}
	}
	return false
}
