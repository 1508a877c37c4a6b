// Package solverworker discharges obligations built by the verification
// engine against a real SMT solver. No mature CGO-free Go SMT binding
// exists, so this package shells out to a z3 binary over SMT-LIB2 text
// via os/exec: build the command with a bounded context, capture stderr
// into a buffer, and wrap a non-zero exit with the buffered message.
package solverworker

import (
	"fmt"
	"strings"

	"aura/internal/symstate"
)

func sortName(s symstate.Sort) string {
	if s == symstate.SortBool {
		return "Bool"
	}
	return "(_ BitVec 32)"
}

// lowerTerm renders a symbolic term as SMT-LIB2 s-expression text. U32 is
// modeled as a 32-bit bitvector so unsigned wraparound matches the
// language's own arithmetic exactly; arithmetic operators use the
// unsigned bitvector family (bvadd, bvudiv, bvurem, bvult, ...).
func lowerTerm(t symstate.Term) string {
	switch t.Kind {
	case symstate.TermVar:
		return t.VarName
	case symstate.TermConstU32:
		return fmt.Sprintf("(_ bv%d 32)", t.U32)
	case symstate.TermConstBool:
		if t.Bool {
			return "true"
		}
		return "false"
	case symstate.TermNot:
		return fmt.Sprintf("(not %s)", lowerTerm(*t.A))
	case symstate.TermNeg:
		return fmt.Sprintf("(bvneg %s)", lowerTerm(*t.A))
	case symstate.TermAdd:
		return binop("bvadd", t)
	case symstate.TermSub:
		return binop("bvsub", t)
	case symstate.TermMul:
		return binop("bvmul", t)
	case symstate.TermDiv:
		return binop("bvudiv", t)
	case symstate.TermMod:
		return binop("bvurem", t)
	case symstate.TermEq:
		return binop("=", t)
	case symstate.TermNe:
		return fmt.Sprintf("(not %s)", binop("=", t))
	case symstate.TermLt:
		return binop("bvult", t)
	case symstate.TermLe:
		return binop("bvule", t)
	case symstate.TermGt:
		return binop("bvugt", t)
	case symstate.TermGe:
		return binop("bvuge", t)
	case symstate.TermAnd:
		return binop("and", t)
	case symstate.TermOr:
		return binop("or", t)
	case symstate.TermImplies:
		return binop("=>", t)
	case symstate.TensorDim:
		return fmt.Sprintf("(tensor_dim %s (_ bv%d 32))", sanitizeHandle(t.Handle), t.Axis)
	case symstate.TensorLen:
		return fmt.Sprintf("(tensor_len %s)", sanitizeHandle(t.Handle))
	case symstate.TermAlive:
		return fmt.Sprintf("alive_%d", t.Generation)
	case symstate.TermForall:
		return quantifier("forall", t)
	case symstate.TermExists:
		return quantifier("exists", t)
	default:
		return "true"
	}
}

func binop(op string, t symstate.Term) string {
	return fmt.Sprintf("(%s %s %s)", op, lowerTerm(*t.A), lowerTerm(*t.B))
}

func quantifier(kw string, t symstate.Term) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%s (", kw)
	for i, v := range t.Binders {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "(%s %s)", v.Name, sortName(v.Sort))
	}
	fmt.Fprintf(&b, ") %s)", lowerTerm(*t.A))
	return b.String()
}

func sanitizeHandle(h string) string {
	return strings.ReplaceAll(h, " ", "_")
}

// collectDecls collects every distinct variable and tensor handle referenced in a
// term so the script can declare them before asserting anything.
func collectDecls(t symstate.Term, vars map[string]symstate.Sort, handles map[string]struct{}) {
	switch t.Kind {
	case symstate.TermVar:
		vars[t.VarName] = t.Sort
	case symstate.TermAlive:
		vars[fmt.Sprintf("alive_%d", t.Generation)] = symstate.SortBool
	case symstate.TensorDim, symstate.TensorLen:
		handles[sanitizeHandle(t.Handle)] = struct{}{}
	}
	if t.A != nil {
		collectDecls(*t.A, vars, handles)
	}
	if t.B != nil {
		collectDecls(*t.B, vars, handles)
	}
	// quantifier binders are bound, not free. The verifier allocates them
	// as fresh name!N symbols, so no free variable shares a binder's name
	for _, v := range t.Binders {
		delete(vars, v.Name)
	}
}

// Script is a fully rendered SMT-LIB2 program for one obligation, ready to
// feed to a solver's stdin.
type Script struct {
	Text       string
	LabelOrder []string // assumption labels in assertion order, for core mapping
}

// BuildScript renders "assumptions ⊨ goal" as UNSAT(assumptions ∧ ¬goal),
// with each assumption wrapped in a named boolean so an UNSAT result can
// be explained by a core of labels.
func BuildScript(assumptions []symstate.Label, goal symstate.Term) Script {
	vars := make(map[string]symstate.Sort)
	handles := make(map[string]struct{})
	for _, a := range assumptions {
		collectDecls(a.Term, vars, handles)
	}
	collectDecls(goal, vars, handles)

	var b strings.Builder
	b.WriteString("(set-option :produce-unsat-cores true)\n")
	logic := "QF_BV"
	for _, a := range assumptions {
		if symstate.HasQuantifier(a.Term) {
			logic = "BV"
			break
		}
	}
	if symstate.HasQuantifier(goal) {
		logic = "BV"
	}
	fmt.Fprintf(&b, "(set-logic %s)\n", logic)

	names := sortedKeys(vars)
	for _, name := range names {
		fmt.Fprintf(&b, "(declare-const %s %s)\n", name, sortName(vars[name]))
	}
	for h := range handles {
		fmt.Fprintf(&b, "(declare-fun tensor_len (String) (_ BitVec 32))\n")
		fmt.Fprintf(&b, "(declare-fun tensor_dim (String (_ BitVec 32)) (_ BitVec 32))\n")
		_ = h
		break
	}

	labels := make([]string, 0, len(assumptions))
	for _, a := range assumptions {
		fmt.Fprintf(&b, "(assert (! %s :named %s))\n", lowerTerm(a.Term), a.Name)
		labels = append(labels, a.Name)
	}
	fmt.Fprintf(&b, "(assert (! (not %s) :named goal_negated))\n", lowerTerm(goal))
	b.WriteString("(check-sat)\n")
	b.WriteString("(get-unsat-core)\n")
	b.WriteString("(get-model)\n")

	return Script{Text: b.String(), LabelOrder: labels}
}

func sortedKeys(m map[string]symstate.Sort) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	// deterministic for reproducible scripts across runs
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// SnippetOf renders one symbolic term as SMT-LIB2 text, the
// "best-available SMT snippet" attached to proof notes and cores.
func SnippetOf(t symstate.Term) string {
	return lowerTerm(t)
}
