package symstate

import (
	"fmt"

	"aura/internal/capgraph"
	"aura/internal/source"
	"aura/internal/symbols"
)

// ObligationKind classifies why an obligation was generated, used to pick
// the diagnostic code and message template once a solver reports SAT.
type ObligationKind uint8

const (
	ObligationAssert ObligationKind = iota
	ObligationEnsures
	ObligationBoundsCheck
	ObligationShapeCheck
	ObligationCapabilityLive
	ObligationLoopBase
	ObligationLoopInductive
	ObligationRange
	ObligationDecreasesNonNeg
	ObligationDecreasesStrict
)

// Label tags one assumption conjunct with a fresh boolean name and its
// provenance, so an UNSAT core returned by the solver can be resolved back
// to a source span without re-walking the AST.
type Label struct {
	Name string
	Term Term
	Span source.Span
	Note string // e.g. "last assignment", "requires clause"
}

// Obligation is a single "assumptions ⊨ goal" query, discharged by asking
// whether UNSAT(assumptions ∧ ¬goal) holds within T_profile.
type Obligation struct {
	Kind        ObligationKind
	Assumptions []Label
	Goal        Term
	GoalSpan    source.Span
	Message     string
}

// State is the symbolic state threaded through one cell/flow/render body's
// verification: the current binding for every live symbol, the
// accumulated path condition, the capability graph mirroring ownership,
// and the obligations collected so far.
type State struct {
	Bindings map[symbols.SymbolID]Term
	Path     []Label
	Caps     *capgraph.Graph
	Obls     []Obligation

	freshCounter int
}

// New creates an empty symbolic state for one verification scope.
func New() *State {
	return &State{
		Bindings: make(map[symbols.SymbolID]Term),
		Caps:     capgraph.New(),
	}
}

// Fresh allocates a new symbolic variable of the given sort with a
// deterministic, human-legible name (e.g. "x!3"), and, for U32 vars,
// implicitly asserts the default range.
func (s *State) Fresh(sort Sort, hint string) Var {
	s.freshCounter++
	name := fmt.Sprintf("%s!%d", hint, s.freshCounter)
	v := Var{Name: name, Sort: sort}
	if sort == SortU32 {
		s.AssumeLabeled(U32DefaultRange(V(v)), source.Span{}, "default u32 range")
	}
	return v
}

// Bind records sym's current symbolic value.
func (s *State) Bind(sym symbols.SymbolID, t Term) {
	if !sym.IsValid() {
		return
	}
	s.Bindings[sym] = t
}

// Lookup returns the current symbolic value for sym, or the zero Term
// (TermInvalid) if unbound.
func (s *State) Lookup(sym symbols.SymbolID) Term {
	return s.Bindings[sym]
}

// AssumeLabeled pushes a conjunct onto the path condition under a fresh
// label, used both for explicit `requires`/`assume` statements and for
// implicit range/shape assumptions introduced by the executor itself.
func (s *State) AssumeLabeled(t Term, span source.Span, note string) Label {
	s.freshCounter++
	lbl := Label{
		Name: fmt.Sprintf("a!%d", s.freshCounter),
		Term: t,
		Span: span,
		Note: note,
	}
	s.Path = append(s.Path, lbl)
	return lbl
}

// Obligate records a goal to discharge against the current path condition.
func (s *State) Obligate(kind ObligationKind, goal Term, span source.Span, message string) {
	s.Obls = append(s.Obls, Obligation{
		Kind:        kind,
		Assumptions: append([]Label(nil), s.Path...),
		Goal:        goal,
		GoalSpan:    span,
		Message:     message,
	})
}

// Fork produces an independent copy of s for a branch arm: bindings,
// capability graph, and path condition are all deep-copied so the two
// arms' subsequent assumptions and moves don't interfere, and Obls from
// the parent carry forward (they were already true in both arms).
func (s *State) Fork() *State {
	bindings := make(map[symbols.SymbolID]Term, len(s.Bindings))
	for k, v := range s.Bindings {
		bindings[k] = v
	}
	return &State{
		Bindings:     bindings,
		Path:         append([]Label(nil), s.Path...),
		Caps:         s.Caps.Clone(),
		Obls:         append([]Obligation(nil), s.Obls...),
		freshCounter: s.freshCounter,
	}
}

// Merge joins two forked states at a control-flow join point (the end of
// an if/else, or after a match). Bindings that disagree between the two
// arms collapse to a fresh symbol of the same sort guarded by the branch
// condition via an ite-shaped assumption, so downstream obligations see a
// single consistent value per binding. The capability graph from `then`
// is kept authoritative when both arms agree on a place's state; a
// divergent place (moved in one arm, not the other) is reported by the
// caller before Merge is used, since that is a static error, not a value
// to unify.
func (s *State) Merge(other *State, cond Term) *State {
	out := &State{
		Bindings:     make(map[symbols.SymbolID]Term, len(s.Bindings)),
		Caps:         s.Caps,
		freshCounter: max(s.freshCounter, other.freshCounter),
	}
	seen := make(map[symbols.SymbolID]bool)
	for sym, tv := range s.Bindings {
		seen[sym] = true
		ov, ok := other.Bindings[sym]
		if !ok || sameShape(tv, ov) {
			out.Bindings[sym] = tv
			continue
		}
		out.freshCounter++
		merged := Var{Name: fmt.Sprintf("join!%d", out.freshCounter), Sort: tv.Sort}
		out.Bindings[sym] = V(merged)
		out.Path = append(out.Path,
			Label{Name: fmt.Sprintf("a!%d", out.freshCounter), Term: Implies(cond, Eq(V(merged), tv))},
			Label{Name: fmt.Sprintf("a!%d", out.freshCounter+1), Term: Implies(Not(cond), Eq(V(merged), ov))},
		)
		out.freshCounter++
	}
	for sym, ov := range other.Bindings {
		if !seen[sym] {
			out.Bindings[sym] = ov
		}
	}
	out.Obls = append(append([]Obligation(nil), s.Obls...), other.Obls...)
	return out
}

func sameShape(a, b Term) bool {
	return a.Kind == b.Kind && a.VarName == b.VarName && a.U32 == b.U32 && a.Bool == b.Bool
}
