package verify

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"aura/internal/diag"
	"aura/internal/solverworker"
	"aura/internal/source"
	"aura/internal/symstate"
	"aura/internal/types"
)

func (e *executor) verifyError(span source.Span, msg string) diag.Diagnostic {
	return diag.Diagnostic{
		Severity: diag.SevError,
		Code:     diag.VerifyError,
		Message:  msg,
		Primary:  span,
		Data:     diag.Data{StableCode: diag.VerifyError.ID()},
	}
}

func (e *executor) record(d diag.Diagnostic) {
	e.diags = append(e.diags, d)
	if d.Severity.IsError() {
		e.failed = true
	}
}

// prove discharges "path ⊨ goal" eagerly and reports any failure.
func (e *executor) prove(kind symstate.ObligationKind, goal symstate.Term, span source.Span, msg string) bool {
	return e.proveQuiet(kind, goal, span, msg, true)
}

// proveBounds is prove with the tensor-bounds counterexample shape: the
// reported slice always names the offending index.
func (e *executor) proveBounds(goal, idx symstate.Term, span source.Span) bool {
	return e.dischargeObligation(symstate.ObligationBoundsCheck, goal, span,
		"tensor access may be out of bounds", true, &idx)
}

// proveQuiet discharges an obligation; report=false suppresses both
// success notes and failure diagnostics (invariant-synthesis trials).
func (e *executor) proveQuiet(kind symstate.ObligationKind, goal symstate.Term, span source.Span, msg string, report bool) bool {
	return e.dischargeObligation(kind, goal, span, msg, report, nil)
}

func (e *executor) dischargeObligation(kind symstate.ObligationKind, goal symstate.Term, span source.Span, msg string, report bool, idx *symstate.Term) bool {
	if e.opts.Solver == nil {
		return true
	}
	if !e.opts.Profile.QuantifiersAllowed() && symstate.HasQuantifier(goal) {
		if report {
			e.record(e.verifyError(span,
				"quantifiers are disallowed under the '"+string(e.opts.Profile)+"' profile"))
		}
		return false
	}

	assumptions := append([]symstate.Label(nil), e.st.Path...)
	script := solverworker.BuildScript(assumptions, goal)
	res, err := e.opts.Solver.Discharge(e.ctx, solverworker.Request{
		Script:  script,
		Timeout: e.opts.Profile.Timeout(),
	})
	if err != nil {
		if report {
			d := e.verifyError(span, fmt.Sprintf("solver failure: %v", err))
			d.Code = diag.InternalError
			d.Data.StableCode = diag.InternalError.ID()
			e.record(d)
		}
		return false
	}

	switch res.Status {
	case solverworker.StatusUnsat:
		if report {
			e.noteProved(kind, assumptions, goal, span, msg, res.Core)
		}
		return true
	case solverworker.StatusSat:
		if report {
			e.reportCounterexample(span, msg, res, idx)
		}
		return false
	default:
		if report {
			e.record(e.verifyError(span, fmt.Sprintf(
				"solver returned unknown within %s: %s", e.opts.Profile.Timeout(), msg)))
		}
		return false
	}
}

// noteProved records a proof note for a discharged obligation, resolving
// the UNSAT core back to SMT snippets and attempting a derived lemma.
func (e *executor) noteProved(kind symstate.ObligationKind, assumptions []symstate.Label, goal symstate.Term, span source.Span, msg string, core []string) {
	byName := make(map[string]symstate.Label, len(assumptions))
	for _, a := range assumptions {
		byName[a.Name] = a
	}
	var coreLabels []symstate.Label
	snippets := make([]string, 0, len(core))
	for _, name := range core {
		if lbl, ok := byName[name]; ok {
			coreLabels = append(coreLabels, lbl)
			snippets = append(snippets, solverworker.SnippetOf(lbl.Term))
		} else {
			snippets = append(snippets, name)
		}
	}
	note := ProofNote{
		Span:    span,
		Message: "proved: " + msg,
		Snippet: solverworker.SnippetOf(goal),
		Core:    snippets,
	}
	if lemma, ok := e.deriveLemma(coreLabels, goal); ok {
		note.Lemma = solverworker.SnippetOf(lemma)
		if kind == symstate.ObligationLoopBase || kind == symstate.ObligationLoopInductive {
			e.sess.storeLemma(e.loopKey(span), lemma)
		}
	}
	e.notes = append(e.notes, note)
}

// deriveLemma conjoins the core-assumed literals and checks independently
// that the conjunction alone refutes the negated goal; if so it is the
// obligation's interpolant and seeds the invariant-synthesis cache.
func (e *executor) deriveLemma(core []symstate.Label, goal symstate.Term) (symstate.Term, bool) {
	if len(core) == 0 || e.opts.Solver == nil {
		return symstate.Term{}, false
	}
	conj := make([]symstate.Term, 0, len(core))
	for _, lbl := range core {
		conj = append(conj, lbl.Term)
	}
	lemma := symstate.AndAll(conj)

	script := solverworker.BuildScript(
		[]symstate.Label{{Name: "lemma", Term: lemma}}, goal)
	res, err := e.opts.Solver.Discharge(e.ctx, solverworker.Request{
		Script:  script,
		Timeout: e.opts.Profile.Timeout(),
	})
	if err != nil || res.Status != solverworker.StatusUnsat {
		return symstate.Term{}, false
	}
	return lemma, true
}

// reportCounterexample turns a SAT model into a structured diagnostic:
// every environment binding is projected to (name, value, aura type),
// with related info pointing at the definition and last-assignment sites.
func (e *executor) reportCounterexample(span source.Span, msg string, res solverworker.Result, idx *symstate.Term) {
	d := e.verifyError(span, msg)
	d.Data.Model = res.Raw

	ce := &diag.Counterexample{Schema: "aura.counterexample.v1"}
	var names []string
	byName := make(map[string]*binding)
	for _, scope := range e.env {
		for nameID, bnd := range scope {
			if !bnd.hasTerm {
				continue
			}
			name := e.b.String(nameID)
			if _, dup := byName[name]; !dup {
				names = append(names, name)
			}
			byName[name] = bnd
		}
	}
	sort.Strings(names)
	for _, name := range names {
		bnd := byName[name]
		value, ok := e.modelValue(res.Model, bnd.term)
		if !ok {
			continue
		}
		cb := diag.CounterexampleBinding{
			Name:     name,
			Value:    value,
			AuraType: e.auraTypeName(bnd.typ, bnd.term.Sort),
		}
		ce.Slice = append(ce.Slice, cb)
		d.Data.Meta.Bindings = append(d.Data.Meta.Bindings, cb)
		d.Notes = append(d.Notes,
			diag.Note{Span: bnd.defSpan, Msg: fmt.Sprintf("'%s' defined here", name)})
		if bnd.lastAssign != bnd.defSpan {
			d.Notes = append(d.Notes,
				diag.Note{Span: bnd.lastAssign, Msg: fmt.Sprintf("'%s' last assigned here", name)})
		}
	}
	if idx != nil {
		if value, ok := e.modelValue(res.Model, *idx); ok {
			cb := diag.CounterexampleBinding{Name: "idx", Value: value, AuraType: "u32"}
			ce.Slice = append(ce.Slice, cb)
			d.Data.Meta.Bindings = append(d.Data.Meta.Bindings, cb)
			d.Data.Meta.RelevantBindings = append(d.Data.Meta.RelevantBindings, "idx")
		}
	}
	d.Data.Counterexample = ce
	d.Data.Meta.Related = d.Notes
	e.record(d)
}

// modelValue extracts a concrete value for a term: constants evaluate
// directly, variables read the solver model.
func (e *executor) modelValue(model map[string]string, t symstate.Term) (string, bool) {
	switch t.Kind {
	case symstate.TermConstU32:
		return strconv.FormatUint(t.U32, 10), true
	case symstate.TermConstBool:
		return strconv.FormatBool(t.Bool), true
	case symstate.TermVar:
		raw, ok := model[t.VarName]
		if !ok {
			return "", false
		}
		return decodeSMTValue(raw), true
	}
	return "", false
}

// decodeSMTValue renders a solver literal in Aura's own notation: hex and
// binary bitvector constants become decimal.
func decodeSMTValue(raw string) string {
	raw = strings.TrimSpace(raw)
	if v, ok := strings.CutPrefix(raw, "#x"); ok {
		if n, err := strconv.ParseUint(v, 16, 64); err == nil {
			return strconv.FormatUint(n, 10)
		}
	}
	if v, ok := strings.CutPrefix(raw, "#b"); ok {
		if n, err := strconv.ParseUint(v, 2, 64); err == nil {
			return strconv.FormatUint(n, 10)
		}
	}
	if strings.HasPrefix(raw, "(_ bv") {
		fields := strings.Fields(strings.Trim(raw, "()"))
		if len(fields) >= 2 {
			return strings.TrimPrefix(fields[1], "bv")
		}
	}
	return raw
}

// auraTypeName reports the declared refinement for a binding, falling
// back to the sort.
func (e *executor) auraTypeName(typ types.TypeID, sort symstate.Sort) string {
	if typ != types.NoTypeID {
		return e.opts.Types.String(typ)
	}
	if sort == symstate.SortBool {
		return "bool"
	}
	return "u32"
}
