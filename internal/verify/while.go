package verify

import (
	"fmt"
	"strings"

	"aura/internal/ast"
	"aura/internal/source"
	"aura/internal/symstate"
)

// execWhile runs the three-step Hoare check: prove the
// invariant on entry, prove it is preserved by the body under the guard,
// then continue in the caller with invariant ∧ ¬cond assumed and every
// mutated variable havocked. When no invariant is written, synthesis
// tries candidate templates in order.
func (e *executor) execWhile(st *ast.Stmt) {
	if _, ok := e.evalExpr(st.Cond); !ok {
		// an untranslatable guard leaves nothing to induct over; just
		// havoc the body's effects
		mutated := make(map[source.StringID]bool)
		e.assignedNames(st.Body, mutated)
		e.havoc(mutated, st.Span)
		return
	}

	mutated := make(map[source.StringID]bool)
	e.assignedNames(st.Body, mutated)

	var rebuild func() (symstate.Term, bool)
	if st.Invariant.IsValid() {
		rebuild = func() (symstate.Term, bool) { return e.evalExpr(st.Invariant) }
		if !e.checkInvariant(st, rebuild, mutated, true) {
			return
		}
	} else {
		r, ok := e.synthesizeInvariant(st, mutated)
		if !ok {
			return
		}
		rebuild = r
	}

	// after the loop: invariant holds and the guard is false
	e.havoc(mutated, st.Span)
	if invAfter, ok := rebuild(); ok {
		e.st.AssumeLabeled(invAfter, st.Span, "loop invariant")
	}
	if condAfter, ok := e.evalExpr(st.Cond); ok {
		e.st.AssumeLabeled(symstate.Not(condAfter), st.Span, "loop exit condition")
	}
}

// checkInvariant proves the base and inductive obligations for one
// invariant candidate. rebuild re-derives the invariant term against the
// current bindings, so it stays meaningful across the inductive havoc.
// report=false runs a synthesis trial: failures stay silent and the
// caller state is never touched.
func (e *executor) checkInvariant(st *ast.Stmt, rebuild func() (symstate.Term, bool), mutated map[source.StringID]bool, report bool) bool {
	inv, ok := rebuild()
	if !ok {
		return false
	}
	if !e.proveQuiet(symstate.ObligationLoopBase, inv, st.Span,
		"loop invariant may not hold on entry", report) {
		return false
	}

	// inductive step on a fresh clone: havoc the frame, assume inv ∧ cond,
	// run the body, prove inv again
	savedState, savedEnv := e.st, e.env
	savedNotes, savedFatal := len(e.notes), e.fatal
	savedDiags, savedFailed := len(e.diags), e.failed
	e.st = savedState.Fork()
	e.env = e.forkEnv()
	e.havoc(mutated, st.Span)

	ok = false
	if invIn, okInv := rebuild(); okInv {
		condIn, okCond := e.evalExpr(st.Cond)
		if okCond {
			e.st.AssumeLabeled(invIn, st.Span, "loop invariant (inductive hypothesis)")
			e.st.AssumeLabeled(condIn, st.Span, "loop condition")

			var d0 symstate.Term
			hasDecreases := false
			if st.Decreases.IsValid() {
				if t, okD := e.evalExpr(st.Decreases); okD {
					d0 = t
					hasDecreases = true
					e.proveQuiet(symstate.ObligationDecreasesNonNeg, symstate.Ge(d0, symstate.ConstU32(0)),
						st.Span, "decreases measure may be negative on entry", report)
				}
			}

			e.execStmts(st.Body)

			if invOut, okOut := rebuild(); okOut {
				ok = e.proveQuiet(symstate.ObligationLoopInductive, invOut, st.Span,
					"loop invariant may not be preserved", report)
			}
			if ok && hasDecreases {
				if d1, okD := e.evalExpr(st.Decreases); okD {
					ok = e.proveQuiet(symstate.ObligationDecreasesStrict, symstate.Lt(d1, d0),
						st.Span, "decreases measure may not strictly decrease", report)
				}
			}
		}
	}

	e.st = savedState
	e.env = savedEnv
	if !report {
		// a trial run must not leak partial notes or failures
		e.notes = e.notes[:savedNotes]
		e.diags = e.diags[:savedDiags]
		e.failed = savedFailed
		e.fatal = savedFatal
	}
	return ok
}

// weakenedGuard derives the classic invariant candidate from the loop
// condition: `<` weakens to `≤` and `>` to `≥`, valid only when the
// comparison's right side is not mutated inside the body.
func (e *executor) weakenedGuard(st *ast.Stmt) (symstate.Term, bool) {
	cond := e.b.Exprs.Get(st.Cond)
	if cond == nil || cond.Kind != ast.ExprBinary {
		return symstate.Term{}, false
	}
	mutated := make(map[source.StringID]bool)
	e.assignedNames(st.Body, mutated)
	if rhs := e.b.Exprs.Get(cond.RHS); rhs != nil && rhs.Kind == ast.ExprIdent && mutated[rhs.Name] {
		return symstate.Term{}, false
	}
	lhs, ok1 := e.evalExpr(cond.LHS)
	rhs, ok2 := e.evalExpr(cond.RHS)
	if !ok1 || !ok2 {
		return symstate.Term{}, false
	}
	switch cond.BinOp {
	case ast.BinaryLt:
		return symstate.Le(lhs, rhs), true
	case ast.BinaryGt:
		return symstate.Ge(lhs, rhs), true
	}
	return symstate.Term{}, false
}

// instantiate rebinds a lemma template's variables against the current
// environment: a variable named "i!3" was allocated with hint "i", so it
// re-resolves to whatever term "i" currently denotes.
func (e *executor) instantiate(t symstate.Term) (symstate.Term, bool) {
	switch t.Kind {
	case symstate.TermVar:
		base, _, found := strings.Cut(t.VarName, "!")
		if !found {
			base = t.VarName
		}
		bnd := e.lookupBinding(e.b.Intern(base))
		if bnd == nil || !bnd.hasTerm {
			return symstate.Term{}, false
		}
		return bnd.term, true
	default:
		out := t
		if t.A != nil {
			a, ok := e.instantiate(*t.A)
			if !ok {
				return symstate.Term{}, false
			}
			out.A = &a
		}
		if t.B != nil {
			b, ok := e.instantiate(*t.B)
			if !ok {
				return symstate.Term{}, false
			}
			out.B = &b
		}
		return out, true
	}
}

// synthesizeInvariant tries candidates in order: a previously derived
// interpolant for this loop site, the weakened guard, then trivial true.
// The first candidate whose base+inductive check passes is adopted; total
// failure demands an explicit invariant, listing what was tried.
func (e *executor) synthesizeInvariant(st *ast.Stmt, mutated map[source.StringID]bool) (func() (symstate.Term, bool), bool) {
	type candidate struct {
		name    string
		rebuild func() (symstate.Term, bool)
	}
	var candidates []candidate

	key := e.loopKey(st.Span)
	if lemma, ok := e.sess.lemmaFor(key); ok {
		candidates = append(candidates, candidate{
			"derived lemma from a prior run",
			func() (symstate.Term, bool) { return e.instantiate(lemma) },
		})
	}
	candidates = append(candidates,
		candidate{"weakened loop condition", func() (symstate.Term, bool) { return e.weakenedGuard(st) }},
		candidate{"trivial invariant 'true'", func() (symstate.Term, bool) { return symstate.ConstBool(true), true }},
	)

	tried := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		tried = append(tried, cand.name)
		if e.checkInvariant(st, cand.rebuild, mutated, false) {
			// re-run with reporting on so the proof notes land
			if e.checkInvariant(st, cand.rebuild, mutated, true) {
				return cand.rebuild, true
			}
		}
	}

	d := e.verifyError(st.Span, "cannot infer a loop invariant; add an explicit 'invariant' clause")
	d.Data.Meta.Suggestions = tried
	e.record(d)
	return nil, false
}

func (e *executor) loopKey(span source.Span) string {
	return fmt.Sprintf("%s:%d:%d", e.u.name, span.Start, span.End)
}
