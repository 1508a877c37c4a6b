package verify

import (
	"strings"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/source"
	"aura/internal/symstate"
)

// maxBinders caps quantifier width under the thorough profile.
const maxBinders = 4

// evalExpr translates an expression into a symbolic term. ok=false means
// the expression has no integer/boolean denotation (strings, tensors,
// UI values); liveness effects are applied either way.
func (e *executor) evalExpr(id ast.ExprID) (symstate.Term, bool) {
	ex := e.b.Exprs.Get(id)
	if ex == nil {
		return symstate.Term{}, false
	}
	switch ex.Kind {
	case ast.ExprLitU32:
		return symstate.ConstU32(ex.LitU32), true
	case ast.ExprLitBool:
		return symstate.ConstBool(ex.LitBool), true
	case ast.ExprLitString:
		return symstate.Term{}, false
	case ast.ExprIdent:
		return e.evalIdent(ex)
	case ast.ExprUnary:
		return e.evalUnary(ex)
	case ast.ExprBinary:
		return e.evalBinary(ex)
	case ast.ExprCall:
		return e.evalCall(id, ex, ast.NoExprID)
	case ast.ExprFlow:
		return e.evalFlow(ex)
	case ast.ExprQuantifier:
		return e.evalQuantifier(ex)
	case ast.ExprMember:
		// record field projections havoc to a fresh value of the field sort
		if typ, ok := e.sema.ExprTypes[id]; ok {
			if sort, sortOK := e.sortOf(typ); sortOK {
				return symstate.V(e.st.Fresh(sort, e.b.String(ex.Name))), true
			}
		}
		e.evalExpr(ex.Base)
		return symstate.Term{}, false
	default:
		return symstate.Term{}, false
	}
}

// evalIdent resolves a name, enforcing capability liveness: reading a
// consumed non-copy binding is use-after-consume with the consuming span
// attached as related info.
func (e *executor) evalIdent(ex *ast.Expr) (symstate.Term, bool) {
	bnd := e.lookupBinding(ex.Name)
	if bnd == nil {
		return symstate.Term{}, false
	}
	if !bnd.alive && e.opts.Types.IsNonCopy(bnd.typ) {
		name := e.b.String(ex.Name)
		d := e.verifyError(ex.Span, "use-after-consume: '"+name+"'")
		d.Notes = append(d.Notes, noteConsumedHere(bnd.consumedAt))
		d.Data.Meta.Related = d.Notes
		e.record(d)
		e.fatal = true
		return symstate.Term{}, false
	}
	if !bnd.hasTerm {
		return symstate.Term{}, false
	}
	return bnd.term, true
}

func (e *executor) evalUnary(ex *ast.Expr) (symstate.Term, bool) {
	a, ok := e.evalExpr(ex.LHS)
	if !ok {
		return symstate.Term{}, false
	}
	switch ex.UnOp {
	case ast.UnaryNeg:
		return symstate.Neg(a), true
	case ast.UnaryNot:
		return symstate.Not(a), true
	}
	return symstate.Term{}, false
}

func (e *executor) evalBinary(ex *ast.Expr) (symstate.Term, bool) {
	a, ok1 := e.evalExpr(ex.LHS)
	b, ok2 := e.evalExpr(ex.RHS)
	if !ok1 || !ok2 {
		return symstate.Term{}, false
	}
	switch ex.BinOp {
	case ast.BinaryAdd:
		return symstate.Add(a, b), true
	case ast.BinarySub:
		return symstate.Sub(a, b), true
	case ast.BinaryMul:
		return symstate.Mul(a, b), true
	case ast.BinaryDiv:
		return symstate.Div(a, b), true
	case ast.BinaryMod:
		return symstate.Mod(a, b), true
	case ast.BinaryEq:
		return symstate.Eq(a, b), true
	case ast.BinaryNe:
		return symstate.Ne(a, b), true
	case ast.BinaryLt:
		return symstate.Lt(a, b), true
	case ast.BinaryLe:
		return symstate.Le(a, b), true
	case ast.BinaryGt:
		return symstate.Gt(a, b), true
	case ast.BinaryGe:
		return symstate.Ge(a, b), true
	case ast.BinaryAnd:
		return symstate.And(a, b), true
	case ast.BinaryOr:
		return symstate.Or(a, b), true
	}
	return symstate.Term{}, false
}

func (e *executor) calleeName(id ast.ExprID) string {
	ex := e.b.Exprs.Get(id)
	if ex == nil {
		return ""
	}
	switch ex.Kind {
	case ast.ExprIdent:
		return e.b.String(ex.Name)
	case ast.ExprMember:
		if base := e.b.Exprs.Get(ex.Base); base != nil && base.Kind == ast.ExprIdent {
			if e.lookupBinding(base.Name) == nil {
				return e.b.String(base.Name) + "." + e.b.String(ex.Name)
			}
		}
	}
	return ""
}

// evalFlow handles `lhs -> rhs` / `lhs ~> rhs`: the right side evaluates
// with lhs as implicit first argument when it is a call, then the left
// capability is consumed.
func (e *executor) evalFlow(ex *ast.Expr) (symstate.Term, bool) {
	lhsTerm, _ := e.evalExpr(ex.LHS)
	var out symstate.Term
	var ok bool
	if rhs := e.b.Exprs.Get(ex.RHS); rhs != nil && rhs.Kind == ast.ExprCall {
		out, ok = e.evalCall(ex.RHS, rhs, ex.LHS)
	} else {
		_ = lhsTerm
		out, ok = e.evalExpr(ex.RHS)
	}
	if lhs := e.b.Exprs.Get(ex.LHS); lhs != nil && lhs.Kind == ast.ExprIdent {
		if bnd := e.lookupBinding(lhs.Name); bnd != nil && e.opts.Types.IsNonCopy(bnd.typ) {
			bnd.alive = false
			bnd.consumedAt = lhs.Span
		}
	}
	return out, ok
}

// evalCall models the builtin tensor/vector surface precisely, dispatches
// hw.*/ai.* to plug-ins, and havocs everything else to a fresh symbol of
// the callee's return sort.
func (e *executor) evalCall(id ast.ExprID, ex *ast.Expr, flowLHS ast.ExprID) (symstate.Term, bool) {
	name := e.calleeName(ex.Callee)

	// collect actual argument expressions: piped-in value first
	args := make([]ast.ExprID, 0, len(ex.Args)+1)
	if flowLHS.IsValid() {
		args = append(args, flowLHS)
	}
	for _, a := range ex.Args {
		args = append(args, a.Value)
	}

	switch name {
	case "tensor.len":
		if h := e.argHandle(args, 0); h != "" {
			return symstate.Len(h), true
		}
		return symstate.V(e.st.Fresh(symstate.SortU32, "len")), true

	case "tensor.get", "tensor.set":
		h := e.argHandle(args, 0)
		var idx symstate.Term
		idxOK := false
		if len(args) > 1 {
			idx, idxOK = e.evalExpr(args[1])
		}
		if len(args) > 2 {
			e.evalExpr(args[2])
		}
		if h != "" && idxOK {
			goal := symstate.Lt(idx, symstate.Len(h))
			e.proveBounds(goal, idx, ex.Span)
		}
		if name == "tensor.get" {
			return symstate.V(e.st.Fresh(symstate.SortU32, "elem")), true
		}
		return symstate.Term{}, false

	case "vector.get":
		e.evalArgs(args, nil)
		return symstate.V(e.st.Fresh(symstate.SortU32, "elem")), true
	case "vector.set", "vector.new", "tensor.new":
		e.evalArgs(args, nil)
		return symstate.Term{}, false
	}

	if strings.HasPrefix(name, "hw.") || strings.HasPrefix(name, "ai.") {
		return e.dispatchPlugin(name, ex, args)
	}

	// ordinary cell call: arguments at move positions consume their
	// capability; the result havocs to the declared return sort
	moved := make(map[int]bool, len(args))
	for i := range args {
		moved[i] = true
	}
	if flowLHS.IsValid() {
		// the flow operator consumes its left-hand side itself
		moved[0] = false
	}
	e.evalArgs(args, moved)

	if sym, ok := e.sema.CallTarget[id]; ok {
		if ret := e.sema.BindingTypes[sym]; ret != 0 {
			if sort, sortOK := e.sortOf(ret); sortOK {
				return symstate.V(e.st.Fresh(sort, "ret")), true
			}
			return symstate.Term{}, false
		}
	}
	return symstate.V(e.st.Fresh(symstate.SortU32, "ret")), true
}

// evalArgs evaluates arguments in order; positions marked in moved
// consume a bare non-copy identifier's capability.
func (e *executor) evalArgs(args []ast.ExprID, moved map[int]bool) {
	for i, a := range args {
		e.evalExpr(a)
		if moved != nil && !moved[i] {
			continue
		}
		src := e.b.Exprs.Get(a)
		if src == nil || src.Kind != ast.ExprIdent {
			continue
		}
		if bnd := e.lookupBinding(src.Name); bnd != nil && e.opts.Types.IsNonCopy(bnd.typ) {
			if moved != nil {
				bnd.alive = false
				bnd.consumedAt = src.Span
			}
		}
	}
}

// argHandle resolves args[i] to a tensor binding's handle.
func (e *executor) argHandle(args []ast.ExprID, i int) string {
	if i >= len(args) {
		return ""
	}
	src := e.b.Exprs.Get(args[i])
	if src == nil || src.Kind != ast.ExprIdent {
		return ""
	}
	bnd := e.lookupBinding(src.Name)
	if bnd == nil {
		return ""
	}
	if !bnd.alive && e.opts.Types.IsNonCopy(bnd.typ) {
		name := e.b.String(src.Name)
		d := e.verifyError(src.Span, "use-after-consume: '"+name+"'")
		d.Notes = append(d.Notes, noteConsumedHere(bnd.consumedAt))
		d.Data.Meta.Related = d.Notes
		e.record(d)
		e.fatal = true
		return ""
	}
	return bnd.handle
}

// evalQuantifier translates forall/exists, refusing them outright under
// profiles that disallow quantifiers — before any SMT call is made.
func (e *executor) evalQuantifier(ex *ast.Expr) (symstate.Term, bool) {
	if !e.opts.Profile.QuantifiersAllowed() {
		e.record(e.verifyError(ex.Span,
			"quantifiers are disallowed under the '"+string(e.opts.Profile)+"' profile"))
		return symstate.Term{}, false
	}
	if len(ex.Bindings) > maxBinders {
		e.record(e.verifyError(ex.Span, "too many quantifier binders"))
		return symstate.Term{}, false
	}
	e.pushEnv()
	binders := make([]symstate.Var, 0, len(ex.Bindings))
	for _, qb := range ex.Bindings {
		v := e.st.Fresh(symstate.SortU32, e.b.String(qb.Name))
		binders = append(binders, symstate.Var{Name: v.Name, Sort: v.Sort})
		e.declare(qb.Name, &binding{
			term: symstate.V(v), hasTerm: true, alive: true,
		})
	}
	body, ok := e.evalExpr(ex.QuantInner)
	e.popEnv()
	if !ok {
		return symstate.Term{}, false
	}
	if ex.Quant == ast.QuantifierForall {
		return symstate.Forall(binders, body), true
	}
	return symstate.Exists(binders, body), true
}

func noteConsumedHere(span source.Span) diag.Note {
	return diag.Note{Span: span, Msg: "consumed here"}
}
