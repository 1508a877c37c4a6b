package verify

import (
	"context"
	"fmt"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/sema"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/symstate"
	"aura/internal/types"
)

// binding is the executor's view of one in-scope name: its current
// symbolic value, origin spans, liveness, and (for tensors) the handle
// its shape axioms were asserted against.
type binding struct {
	sym        symbols.SymbolID
	typ        types.TypeID
	term       symstate.Term
	hasTerm    bool
	alive      bool
	consumedAt source.Span
	defSpan    source.Span
	lastAssign source.Span
	handle     string
	mutable    bool
}

type executor struct {
	ctx  context.Context
	sess *Session
	b    *ast.Builder
	sema *sema.Result
	opts *Options
	u    unit

	st    *symstate.State
	env   []map[source.StringID]*binding
	notes []ProofNote
	diags []diag.Diagnostic

	failed bool
	// fatal stops the walk after a semantic-grade failure (use-after-
	// consume found by the cross-check); remaining obligations in the same
	// unit would only cascade
	fatal bool
}

func newExecutor(ctx context.Context, sess *Session, b *ast.Builder, res *sema.Result, opts *Options, u unit) *executor {
	return &executor{
		ctx:  ctx,
		sess: sess,
		b:    b,
		sema: res,
		opts: opts,
		u:    u,
		st:   symstate.New(),
		env:  []map[source.StringID]*binding{make(map[source.StringID]*binding)},
	}
}

func (e *executor) pushEnv() { e.env = append(e.env, make(map[source.StringID]*binding)) }
func (e *executor) popEnv() {
	if len(e.env) > 1 {
		e.env = e.env[:len(e.env)-1]
	}
}

func (e *executor) lookupBinding(name source.StringID) *binding {
	for i := len(e.env) - 1; i >= 0; i-- {
		if bnd, ok := e.env[i][name]; ok {
			return bnd
		}
	}
	return nil
}

func (e *executor) declare(name source.StringID, bnd *binding) {
	e.env[len(e.env)-1][name] = bnd
}

// forkEnv deep-copies the binding records so a branch arm's consumes and
// reassignments stay local until the join merges them.
func (e *executor) forkEnv() []map[source.StringID]*binding {
	out := make([]map[source.StringID]*binding, len(e.env))
	for i, scope := range e.env {
		cp := make(map[source.StringID]*binding, len(scope))
		for k, v := range scope {
			b := *v
			cp[k] = &b
		}
		out[i] = cp
	}
	return out
}

func (e *executor) sortOf(typ types.TypeID) (symstate.Sort, bool) {
	t := e.opts.Types.Get(typ)
	switch t.Kind {
	case types.KindBool:
		return symstate.SortBool, true
	case types.KindU32, types.KindConstrainedRange:
		return symstate.SortU32, true
	}
	return symstate.SortU32, false
}

// bindFresh allocates a fresh symbol for name, asserting the default
// range, the declared refinement range, and — for statically shaped
// tensors — the dim/len axioms.
func (e *executor) bindFresh(name source.StringID, sym symbols.SymbolID, typ types.TypeID, span source.Span, mutable bool) *binding {
	bnd := &binding{
		sym: sym, typ: typ, alive: true,
		defSpan: span, lastAssign: span, mutable: mutable,
	}
	hint := e.b.String(name)
	t := e.opts.Types.Get(typ)
	switch t.Kind {
	case types.KindU32, types.KindConstrainedRange, types.KindBool:
		sort, _ := e.sortOf(typ)
		v := e.st.Fresh(sort, hint)
		bnd.term = symstate.V(v)
		bnd.hasTerm = true
		if t.Kind == types.KindConstrainedRange {
			e.st.AssumeLabeled(rangeTerm(bnd.term, t.Lo, t.Hi), span,
				fmt.Sprintf("declared range %s", e.opts.Types.String(typ)))
		}
	case types.KindTensor:
		bnd.handle = fmt.Sprintf("%s_h%d", hint, len(e.st.Path))
		e.assertShapeAxioms(bnd.handle, t.Shape, span)
	}
	e.declare(name, bnd)
	return bnd
}

func (e *executor) assertShapeAxioms(handle string, shape []uint64, span source.Span) {
	if shape == nil {
		return
	}
	prod := uint64(1)
	overflow := false
	for i, d := range shape {
		e.st.AssumeLabeled(
			symstate.Eq(symstate.Dim(handle, uint64(i)), symstate.ConstU32(d)),
			span, fmt.Sprintf("tensor axis %d = %d", i, d))
		prod *= d
		if prod > types.U32Max {
			overflow = true
		}
	}
	if !overflow {
		e.st.AssumeLabeled(
			symstate.Eq(symstate.Len(handle), symstate.ConstU32(prod)),
			span, fmt.Sprintf("tensor length = %d", prod))
	}
}

func rangeTerm(v symstate.Term, lo, hi uint64) symstate.Term {
	return symstate.And(
		symstate.Ge(v, symstate.ConstU32(lo)),
		symstate.Le(v, symstate.ConstU32(hi)),
	)
}

func (e *executor) bindParam(pid symbols.SymbolID) {
	p := e.opts.Table.Symbols.Get(pid)
	if p == nil {
		return
	}
	e.bindFresh(p.Name, pid, p.Type, p.Span, p.Flags&symbols.SymbolFlagMutable != 0)
}

func (e *executor) execStmts(stmts []ast.StmtID) {
	for _, id := range stmts {
		if e.fatal || e.ctx.Err() != nil {
			return
		}
		e.execStmt(id)
	}
}

func (e *executor) execStmt(id ast.StmtID) {
	st := e.b.Stmts.Get(id)
	if st == nil {
		return
	}
	switch st.Kind {
	case ast.StmtStrandDef:
		e.execVal(id, st)
	case ast.StmtAssign:
		e.execAssign(st)
	case ast.StmtIf:
		e.execIf(st)
	case ast.StmtWhile:
		e.execWhile(st)
	case ast.StmtMatch:
		e.execMatch(st)
	case ast.StmtRequires, ast.StmtAssume:
		if t, ok := e.evalExpr(st.Expr); ok {
			note := "requires clause"
			if st.Kind == ast.StmtAssume {
				note = "assume statement"
			}
			e.st.AssumeLabeled(t, st.Span, note)
		}
	case ast.StmtAssert:
		if t, ok := e.evalExpr(st.Expr); ok {
			e.prove(symstate.ObligationAssert, t, st.Span, "assertion may fail")
		}
	case ast.StmtEnsures:
		if t, ok := e.evalExpr(st.Expr); ok {
			e.prove(symstate.ObligationEnsures, t, st.Span, "postcondition may fail")
		}
	case ast.StmtUnsafeBlock, ast.StmtFlowBlock, ast.StmtLayout, ast.StmtRender:
		e.execStmts(st.Body)
	case ast.StmtProp:
		e.evalExpr(st.PropValue)
	case ast.StmtExprStmt:
		e.evalExpr(st.Expr)
	}
}

func (e *executor) execVal(id ast.StmtID, st *ast.Stmt) {
	valTerm, hasTerm := e.evalExpr(st.Value)

	sym := e.sema.StmtBinding[id]
	typ := e.sema.BindingTypes[sym]
	t := e.opts.Types.Get(typ)

	// moving a bare non-copy identifier into the binding
	if src := e.b.Exprs.Get(st.Value); src != nil && src.Kind == ast.ExprIdent {
		if from := e.lookupBinding(src.Name); from != nil && e.opts.Types.IsNonCopy(from.typ) {
			from.alive = false
			from.consumedAt = src.Span
		}
	}

	var bnd *binding
	if hasTerm {
		bnd = &binding{
			sym: sym, typ: typ, term: valTerm, hasTerm: true, alive: true,
			defSpan: st.Span, lastAssign: st.Span, mutable: st.Mutable,
		}
		e.declare(st.Name, bnd)
		if t.Kind == types.KindConstrainedRange {
			// deferred range proof: the bound value must actually fit
			e.prove(symstate.ObligationRange, rangeTerm(valTerm, t.Lo, t.Hi), st.Span,
				fmt.Sprintf("value may be outside %s", e.opts.Types.String(typ)))
			e.st.AssumeLabeled(rangeTerm(valTerm, t.Lo, t.Hi), st.Span,
				fmt.Sprintf("declared range %s", e.opts.Types.String(typ)))
		}
	} else {
		bnd = e.bindFresh(st.Name, sym, typ, st.Span, st.Mutable)
		if t.Kind == types.KindTensor {
			e.inferTensorLen(bnd, st.Value, st.Span)
		}
	}

	if st.Where.IsValid() {
		if w, ok := e.evalExpr(st.Where); ok {
			e.st.AssumeLabeled(w, st.Span, "where clause")
		}
	}
}

// inferTensorLen recovers a length axiom for an unshaped tensor built by
// tensor.new with a symbolically known length.
func (e *executor) inferTensorLen(bnd *binding, value ast.ExprID, span source.Span) {
	ex := e.b.Exprs.Get(value)
	if ex == nil || ex.Kind != ast.ExprCall || e.calleeName(ex.Callee) != "tensor.new" || len(ex.Args) != 1 {
		return
	}
	if bnd.handle == "" {
		bnd.handle = fmt.Sprintf("t_h%d", len(e.st.Path))
	}
	if lenTerm, ok := e.evalExpr(ex.Args[0].Value); ok {
		e.st.AssumeLabeled(symstate.Eq(symstate.Len(bnd.handle), lenTerm), span, "tensor.new length")
	}
}

func (e *executor) execAssign(st *ast.Stmt) {
	target := e.b.Exprs.Get(st.Target)
	valTerm, hasTerm := e.evalExpr(st.RHS)
	if target == nil || target.Kind != ast.ExprIdent {
		return
	}
	bnd := e.lookupBinding(target.Name)
	if bnd == nil {
		return
	}
	bnd.alive = true // rebinding resets ownership
	bnd.lastAssign = st.Span
	if hasTerm {
		bnd.term = valTerm
		bnd.hasTerm = true
		if t := e.opts.Types.Get(bnd.typ); t.Kind == types.KindConstrainedRange {
			e.prove(symstate.ObligationRange, rangeTerm(valTerm, t.Lo, t.Hi), st.Span,
				fmt.Sprintf("value may be outside %s", e.opts.Types.String(bnd.typ)))
		}
	}
}

// assignedNames collects every name assigned anywhere under stmts, the
// havoc set for branch joins and loop bodies.
func (e *executor) assignedNames(stmts []ast.StmtID, out map[source.StringID]bool) {
	for _, id := range stmts {
		st := e.b.Stmts.Get(id)
		if st == nil {
			continue
		}
		switch st.Kind {
		case ast.StmtAssign:
			if t := e.b.Exprs.Get(st.Target); t != nil && t.Kind == ast.ExprIdent {
				out[t.Name] = true
			}
		case ast.StmtIf:
			e.assignedNames(st.ThenBody, out)
			e.assignedNames(st.ElseBody, out)
		case ast.StmtWhile, ast.StmtUnsafeBlock, ast.StmtFlowBlock, ast.StmtLayout, ast.StmtRender:
			e.assignedNames(st.Body, out)
		case ast.StmtMatch:
			for _, armID := range st.Arms {
				if arm := e.b.Arms.Get(armID); arm != nil {
					e.assignedNames(arm.Body, out)
				}
			}
		}
	}
}

// havoc replaces every named binding with a fresh symbol of the same
// sort, re-asserting its declared refinement bounds.
func (e *executor) havoc(names map[source.StringID]bool, span source.Span) {
	for name := range names {
		bnd := e.lookupBinding(name)
		if bnd == nil || !bnd.hasTerm {
			continue
		}
		sort := symstate.SortU32
		if bnd.term.Sort == symstate.SortBool {
			sort = symstate.SortBool
		}
		v := e.st.Fresh(sort, e.b.String(name))
		bnd.term = symstate.V(v)
		if t := e.opts.Types.Get(bnd.typ); t.Kind == types.KindConstrainedRange {
			e.st.AssumeLabeled(rangeTerm(bnd.term, t.Lo, t.Hi), span,
				fmt.Sprintf("declared range %s", e.opts.Types.String(bnd.typ)))
		}
	}
}

func (e *executor) execIf(st *ast.Stmt) {
	guard, hasGuard := e.evalExpr(st.Cond)

	savedState := e.st
	savedEnv := e.env

	e.st = savedState.Fork()
	e.env = e.forkEnv()
	if hasGuard {
		e.st.AssumeLabeled(guard, st.Span, "if guard")
	}
	e.execStmts(st.ThenBody)
	thenEnv := e.env

	e.st = savedState.Fork()
	e.env = e.forkEnvFrom(savedEnv)
	if hasGuard {
		e.st.AssumeLabeled(symstate.Not(guard), st.Span, "else guard")
	}
	e.execStmts(st.ElseBody)
	elseEnv := e.env

	// join: back in the caller state, havoc whatever either branch wrote
	e.st = savedState
	e.env = savedEnv
	mutated := make(map[source.StringID]bool)
	e.assignedNames(st.ThenBody, mutated)
	e.assignedNames(st.ElseBody, mutated)
	e.havoc(mutated, st.Span)
	e.mergeConsumes(thenEnv)
	e.mergeConsumes(elseEnv)
}

func (e *executor) forkEnvFrom(base []map[source.StringID]*binding) []map[source.StringID]*binding {
	saved := e.env
	e.env = base
	out := e.forkEnv()
	e.env = saved
	return out
}

// mergeConsumes propagates branch-local consumes to the join: consumed on
// either path means consumed after it.
func (e *executor) mergeConsumes(branch []map[source.StringID]*binding) {
	for i, scope := range branch {
		if i >= len(e.env) {
			break
		}
		for name, bbnd := range scope {
			if cur, ok := e.env[i][name]; ok && !bbnd.alive && cur.alive {
				cur.alive = false
				cur.consumedAt = bbnd.consumedAt
			}
		}
	}
}

func (e *executor) execMatch(st *ast.Stmt) {
	scrut, hasScrut := e.evalExpr(st.Scrutinee)
	for _, armID := range st.Arms {
		arm := e.b.Arms.Get(armID)
		if arm == nil {
			continue
		}
		pat := e.b.Patterns.Get(arm.Pattern)

		savedState := e.st
		savedEnv := e.env
		e.st = savedState.Fork()
		e.env = e.forkEnv()
		if hasScrut && pat != nil && pat.Kind == ast.PatternLitU32 {
			e.st.AssumeLabeled(symstate.Eq(scrut, symstate.ConstU32(pat.LitU32)), pat.Span, "match arm")
		}
		e.pushEnv()
		e.execStmts(arm.Body)
		e.popEnv()
		e.st = savedState
		e.env = savedEnv
	}
	mutated := make(map[source.StringID]bool)
	for _, armID := range st.Arms {
		if arm := e.b.Arms.Get(armID); arm != nil {
			e.assignedNames(arm.Body, mutated)
		}
	}
	e.havoc(mutated, st.Span)
}
