package sema

import (
	"strings"

	"aura/internal/ast"
	"aura/internal/capgraph"
	"aura/internal/diag"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/types"
)

// readBorrowCalls take their first argument by read-borrow: the source is
// checked as a read (a Consumed source is rejected) and stays Owned; no
// child capability is allocated.
var readBorrowCalls = map[string]bool{
	"tensor.len": true, "tensor.get": true, "vector.get": true,
}

// writeBorrowCalls take their first argument by write-borrow; the source
// binding must be mutable.
var writeBorrowCalls = map[string]bool{
	"tensor.set": true, "vector.set": true,
}

func (c *checker) reportInternal(span source.Span, msg string) {
	diag.ReportError(c.reporter, diag.InternalError, span, msg).Emit()
}

func (c *checker) reportIssue(issue capgraph.Issue, at source.Span, name string) {
	if issue.IsNone() {
		return
	}
	switch issue.Kind {
	case capgraph.IssueUseAfterMove, capgraph.IssueDoubleConsume:
		c.errorNoted(at, "use-after-consume: '"+name+"'", issue.MovedAt, "consumed here")
	case capgraph.IssueMutateBorrowed:
		c.errorNoted(at, "cannot mutate '"+name+"' while borrowed", issue.BorrowAt, "borrowed here")
	case capgraph.IssueMoveBorrowed:
		c.errorNoted(at, "cannot move '"+name+"' while borrowed", issue.BorrowAt, "borrowed here")
	}
}

func (c *checker) checkAssignableExpr(dst, src types.TypeID, srcExpr ast.ExprID, at source.Span) {
	// shape recovery: tensor.new(len) takes the target's static shape when
	// len equals the shape product; ai.infer stays shape-agnostic
	if c.recoversShape(dst, srcExpr) {
		return
	}
	ok, _, reason := c.assignable(dst, src, srcExpr)
	if !ok {
		c.errorf(at, "type mismatch: %s", reason)
	}
}

func (c *checker) recoversShape(dst types.TypeID, srcExpr ast.ExprID) bool {
	dt := c.types.Get(dst)
	if dt.Kind != types.KindTensor || dt.Shape == nil {
		return false
	}
	e := c.expr(srcExpr)
	if e == nil || e.Kind != ast.ExprCall {
		return false
	}
	name := c.calleeName(e.Callee)
	switch name {
	case "ai.infer":
		return true
	case "tensor.new":
		if len(e.Args) != 1 {
			return false
		}
		lit := c.constU32(e.Args[0].Value)
		if lit == nil {
			return false
		}
		prod := uint64(1)
		for _, d := range dt.Shape {
			prod *= d
			if prod > types.U32Max {
				return false
			}
		}
		return *lit == prod
	}
	return false
}

// checkExpr types one expression, recording the result in ExprTypes.
func (c *checker) checkExpr(id ast.ExprID) types.TypeID {
	t := c.checkExprInner(id)
	if id.IsValid() {
		c.result.ExprTypes[id] = t
	}
	return t
}

func (c *checker) checkExprInner(id ast.ExprID) types.TypeID {
	e := c.expr(id)
	if e == nil {
		return c.result.Builtins.Unknown
	}
	switch e.Kind {
	case ast.ExprLitU32:
		return c.result.Builtins.U32
	case ast.ExprLitBool:
		return c.result.Builtins.Bool
	case ast.ExprLitString:
		return c.result.Builtins.String
	case ast.ExprIdent:
		return c.checkIdent(e)
	case ast.ExprUnary:
		return c.checkUnary(e)
	case ast.ExprBinary:
		return c.checkBinary(e)
	case ast.ExprMember:
		return c.checkMember(e)
	case ast.ExprCall:
		return c.checkCall(id, e, ast.NoExprID)
	case ast.ExprStyleLit:
		for _, f := range e.Fields {
			ft := c.checkExpr(f.Value)
			c.moveFieldInit(f.Value, ft)
		}
		return c.result.Builtins.Style
	case ast.ExprRecordLit:
		return c.checkRecordLit(e)
	case ast.ExprLambda:
		return c.checkLambda(id, e)
	case ast.ExprFlow:
		return c.checkFlow(e)
	case ast.ExprQuantifier:
		return c.checkQuantifier(id, e)
	default:
		return c.result.Builtins.Unknown
	}
}

func (c *checker) checkIdent(e *ast.Expr) types.TypeID {
	sym, ok := c.table.Lookup(c.currentScope(), e.Name)
	if !ok {
		c.errorf(e.Span, "unknown identifier '%s'", c.builder.String(e.Name))
		return c.result.Builtins.Unknown
	}
	s := c.table.Symbols.Get(sym)
	c.checkAsyncCapture(s, e.Span)
	t := c.bindingType(sym)
	if c.isNonCopy(t) {
		c.reportIssue(c.result.Caps.Use(c.place(sym)), e.Span, c.builder.String(e.Name))
	}
	return t
}

// checkAsyncCapture rejects a mutable binding resolved from outside the
// innermost async lambda's base scope depth.
func (c *checker) checkAsyncCapture(s *symbols.Symbol, at source.Span) {
	if len(c.asyncBase) == 0 || s == nil {
		return
	}
	if s.Flags&symbols.SymbolFlagMutable == 0 {
		return
	}
	if c.table.Depth(s.Scope) <= c.asyncBase[len(c.asyncBase)-1] {
		c.errorf(at, "mutable binding '%s' cannot be captured by an async lambda",
			c.builder.String(s.Name))
	}
}

func (c *checker) checkUnary(e *ast.Expr) types.TypeID {
	t := c.checkExpr(e.LHS)
	switch e.UnOp {
	case ast.UnaryNeg:
		if _, _, ok := c.rangeOf(t); !ok && c.types.Get(t).Kind != types.KindUnknown {
			c.errorf(e.Span, "unary '-' expects u32, got %s", c.types.String(t))
		}
		return c.result.Builtins.U32
	case ast.UnaryNot:
		if t != c.result.Builtins.Bool && c.types.Get(t).Kind != types.KindUnknown {
			c.errorf(e.Span, "'not' expects bool, got %s", c.types.String(t))
		}
		return c.result.Builtins.Bool
	}
	return c.result.Builtins.Unknown
}

func (c *checker) checkBinary(e *ast.Expr) types.TypeID {
	lt := c.checkExpr(e.LHS)
	rt := c.checkExpr(e.RHS)
	isInt := func(t types.TypeID) bool {
		_, _, ok := c.rangeOf(t)
		return ok || c.types.Get(t).Kind == types.KindUnknown
	}
	isBool := func(t types.TypeID) bool {
		return t == c.result.Builtins.Bool || c.types.Get(t).Kind == types.KindUnknown
	}
	switch e.BinOp {
	case ast.BinaryAdd, ast.BinarySub, ast.BinaryMul, ast.BinaryDiv, ast.BinaryMod:
		if !isInt(lt) || !isInt(rt) {
			c.errorf(e.Span, "arithmetic expects u32 operands, got %s and %s",
				c.types.String(lt), c.types.String(rt))
		}
		return c.result.Builtins.U32
	case ast.BinaryEq, ast.BinaryNe, ast.BinaryLt, ast.BinaryLe, ast.BinaryGt, ast.BinaryGe:
		if (isInt(lt) && isInt(rt)) || (isBool(lt) && isBool(rt) && (e.BinOp == ast.BinaryEq || e.BinOp == ast.BinaryNe)) {
			return c.result.Builtins.Bool
		}
		c.errorf(e.Span, "comparison expects u32 operands, got %s and %s",
			c.types.String(lt), c.types.String(rt))
		return c.result.Builtins.Bool
	case ast.BinaryAnd, ast.BinaryOr:
		if !isBool(lt) || !isBool(rt) {
			c.errorf(e.Span, "logical operator expects bool operands, got %s and %s",
				c.types.String(lt), c.types.String(rt))
		}
		return c.result.Builtins.Bool
	}
	return c.result.Builtins.Unknown
}

func (c *checker) checkMember(e *ast.Expr) types.TypeID {
	base := c.expr(e.Base)
	// a namespace segment like `tensor` in `tensor.len` is not a value;
	// checkCall resolves those before this path is reached
	if base != nil && base.Kind == ast.ExprIdent {
		if _, isLocal := c.table.Lookup(c.currentScope(), base.Name); !isLocal {
			c.errorf(e.Span, "unknown identifier '%s'", c.builder.String(base.Name))
			return c.result.Builtins.Unknown
		}
	}
	bt := c.checkExpr(e.Base)
	t := c.types.Get(bt)
	switch t.Kind {
	case types.KindNamed, types.KindApplied:
		if sym, ok := c.table.Lookup(c.currentScope(), t.Name); ok {
			s := c.table.Symbols.Get(sym)
			if s.Kind == symbols.SymbolRecord {
				return c.recordFieldType(s, t, e)
			}
		}
		c.errorf(e.Span, "type %s has no field '%s'", c.types.String(bt), c.builder.String(e.Name))
	case types.KindStyle:
		return c.result.Builtins.Unknown
	case types.KindUnknown:
		return c.result.Builtins.Unknown
	default:
		c.errorf(e.Span, "type %s has no fields", c.types.String(bt))
	}
	return c.result.Builtins.Unknown
}

func (c *checker) recordFieldType(rec *symbols.Symbol, applied types.Type, e *ast.Expr) types.TypeID {
	var subst map[source.StringID]types.TypeID
	if applied.Kind == types.KindApplied && len(rec.TypeParams) == len(applied.Args) {
		subst = make(map[source.StringID]types.TypeID, len(rec.TypeParams))
		for i, p := range rec.TypeParams {
			subst[p] = applied.Args[i]
		}
	}
	for _, f := range rec.Fields {
		if f.Name == e.Name {
			return c.resolveType(f.Type, subst)
		}
	}
	c.errorf(e.Span, "unknown field '%s'", c.builder.String(e.Name))
	return c.result.Builtins.Unknown
}

func (c *checker) checkRecordLit(e *ast.Expr) types.TypeID {
	sym, ok := c.table.Lookup(c.currentScope(), e.TypeName)
	if !ok {
		c.errorf(e.Span, "unknown record '%s'", c.builder.String(e.TypeName))
		return c.result.Builtins.Unknown
	}
	rec := c.table.Symbols.Get(sym)
	if rec.Kind != symbols.SymbolRecord {
		c.errorf(e.Span, "'%s' is not a record", c.builder.String(e.TypeName))
		return c.result.Builtins.Unknown
	}
	declared := make(map[source.StringID]ast.TypeExprID, len(rec.Fields))
	for _, f := range rec.Fields {
		declared[f.Name] = f.Type
	}
	seen := make(map[source.StringID]bool, len(e.Fields))
	for _, f := range e.Fields {
		if seen[f.Name] {
			c.errorf(f.Span, "duplicate field '%s'", c.builder.String(f.Name))
			continue
		}
		seen[f.Name] = true
		fte, ok := declared[f.Name]
		if !ok {
			c.errorf(f.Span, "unknown field '%s'", c.builder.String(f.Name))
			continue
		}
		ft := c.checkExpr(f.Value)
		c.checkAssignableExpr(c.resolveType(fte, nil), ft, f.Value, f.Span)
		c.moveFieldInit(f.Value, ft)
	}
	return c.types.Intern(types.Type{Kind: types.KindNamed, Name: e.TypeName})
}

// moveFieldInit consumes a non-copy identifier used to initialize a
// record or style literal field.
func (c *checker) moveFieldInit(value ast.ExprID, t types.TypeID) {
	src := c.expr(value)
	if src == nil || src.Kind != ast.ExprIdent || !c.isNonCopy(t) {
		return
	}
	if sym, ok := c.table.Lookup(c.currentScope(), src.Name); ok {
		c.reportIssue(c.result.Caps.Move(c.place(sym), src.Span), src.Span, c.builder.String(src.Name))
	}
}

func (c *checker) checkLambda(id ast.ExprID, e *ast.Expr) types.TypeID {
	if e.Async {
		c.asyncBase = append(c.asyncBase, c.table.Depth(c.currentScope()))
		defer func() { c.asyncBase = c.asyncBase[:len(c.asyncBase)-1] }()
	}
	scope := c.table.Scopes.New(symbols.ScopeCell, c.currentScope(),
		symbols.ScopeOwner{Kind: symbols.ScopeOwnerExpr, ASTFile: c.file, Expr: id}, e.Span)
	c.scopeStack = append(c.scopeStack, scope)
	for _, p := range e.Params {
		flags := symbols.SymbolFlags(0)
		if p.Mutable {
			flags |= symbols.SymbolFlagMutable
		}
		local := c.table.Declare(scope, symbols.Symbol{
			Name: p.Name, Kind: symbols.SymbolParam, Span: p.Span, Flags: flags,
			Type: c.resolveType(p.Type, nil),
		})
		c.result.BindingTypes[local] = c.bindingType(local)
		c.result.Caps.Introduce(c.place(local))
	}
	for _, bid := range e.Body {
		c.checkStmt(bid)
	}
	c.popScope()
	return c.result.Builtins.Unknown
}

func (c *checker) checkQuantifier(id ast.ExprID, e *ast.Expr) types.TypeID {
	scope := c.table.Scopes.New(symbols.ScopeBlock, c.currentScope(),
		symbols.ScopeOwner{Kind: symbols.ScopeOwnerExpr, ASTFile: c.file, Expr: id}, e.Span)
	c.scopeStack = append(c.scopeStack, scope)
	for _, b := range e.Bindings {
		local := c.table.Declare(scope, symbols.Symbol{
			Name: b.Name, Kind: symbols.SymbolStrand, Span: e.Span,
			Type: c.resolveType(b.Sort, nil),
		})
		c.result.BindingTypes[local] = c.bindingType(local)
	}
	t := c.checkExpr(e.QuantInner)
	c.popScope()
	if t != c.result.Builtins.Bool && c.types.Get(t).Kind != types.KindUnknown {
		c.errorf(e.Span, "quantifier body expects bool, got %s", c.types.String(t))
	}
	return c.result.Builtins.Bool
}

// calleeName flattens a callee expression into a dotted lookup name:
// "f" for a bare identifier, "tensor.len" for a namespace member.
func (c *checker) calleeName(id ast.ExprID) string {
	e := c.expr(id)
	if e == nil {
		return ""
	}
	switch e.Kind {
	case ast.ExprIdent:
		return c.builder.String(e.Name)
	case ast.ExprMember:
		base := c.expr(e.Base)
		if base != nil && base.Kind == ast.ExprIdent {
			if _, isLocal := c.table.Lookup(c.currentScope(), base.Name); !isLocal {
				return c.builder.String(base.Name) + "." + c.builder.String(e.Name)
			}
		}
	}
	return ""
}

func (c *checker) pluginCall(name string) bool {
	for _, p := range c.plugins {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return strings.HasPrefix(name, "hw.") || strings.HasPrefix(name, "ai.")
}

// checkCall maps actual arguments onto the callee's parameter list and
// applies the per-position linear rules. flowLHS, when
// valid, is an implicit leading argument piped in by a flow expression.
func (c *checker) checkCall(id ast.ExprID, e *ast.Expr, flowLHS ast.ExprID) types.TypeID {
	name := c.calleeName(e.Callee)
	if name == "" {
		c.errorf(e.Span, "call target is not callable")
		return c.result.Builtins.Unknown
	}
	sym, ok := c.table.Lookup(c.currentScope(), c.builder.Intern(name))
	if !ok {
		if c.pluginCall(name) {
			// open-theory namespace: the verifier's plug-in dispatcher owns
			// the semantics; arguments still obey the linear rules
			// the piped-in flow value was already consumed by checkFlow
			for _, a := range e.Args {
				at := c.checkExpr(a.Value)
				c.moveArg(a.Value, at)
			}
			return c.result.Builtins.U32
		}
		c.errorf(e.Span, "unknown cell '%s'", name)
		return c.result.Builtins.Unknown
	}
	callee := c.table.Symbols.Get(sym)
	if callee.Signature == nil {
		c.errorf(e.Span, "'%s' is not callable", name)
		return c.result.Builtins.Unknown
	}
	if id.IsValid() {
		c.result.CallTarget[id] = sym
	}
	if callee.Kind == symbols.SymbolExternCell && callee.Flags&symbols.SymbolFlagTrusted == 0 && c.unsafeDepth == 0 {
		c.errorf(e.Span, "extern cell '%s' requires an unsafe block", name)
	}

	params := callee.Signature.Params
	slots := make([]ast.ExprID, len(params))
	slotSpans := make([]source.Span, len(params))
	next := 0
	if flowLHS.IsValid() {
		if len(slots) == 0 {
			c.errorf(e.Span, "'%s' takes no arguments but a value was piped in", name)
			return callee.Signature.ReturnType
		}
		slots[0] = flowLHS
		next = 1
	}
	for _, a := range e.Args {
		if a.Name == source.NoStringID {
			if next >= len(slots) {
				c.errorf(a.Span, "too many arguments to '%s'", name)
				continue
			}
			slots[next] = a.Value
			slotSpans[next] = a.Span
			next++
			continue
		}
		idx := -1
		for i, pid := range params {
			if p := c.table.Symbols.Get(pid); p != nil && p.Name == a.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			c.errorf(a.Span, "unknown named argument '%s'", c.builder.String(a.Name))
			continue
		}
		if slots[idx].IsValid() {
			c.errorf(a.Span, "duplicate argument '%s'", c.builder.String(a.Name))
			continue
		}
		slots[idx] = a.Value
		slotSpans[idx] = a.Span
	}
	for i, slot := range slots {
		p := c.table.Symbols.Get(params[i])
		if !slot.IsValid() {
			c.errorf(e.Span, "missing argument '%s' in call to '%s'", c.builder.String(p.Name), name)
			continue
		}
		var at types.TypeID
		if slot == flowLHS && i == 0 {
			at = c.result.ExprTypes[flowLHS]
		} else {
			at = c.checkExpr(slot)
		}
		c.checkAssignableExpr(p.Type, at, slot, spanOr(slotSpans[i], e.Span))
		if slot != flowLHS {
			// the flow operator already consumed its left-hand capability
			c.applyArgLinear(name, i, slot, at)
		}
	}
	for _, bid := range e.TrailingBlock {
		c.checkStmt(bid)
	}
	return callee.Signature.ReturnType
}

func spanOr(a, b source.Span) source.Span {
	if a.Empty() && a.File == 0 {
		return b
	}
	return a
}

// applyArgLinear applies the per-position rule: read-borrow for getters,
// write-borrow for setters (requiring a mutable source), move otherwise.
func (c *checker) applyArgLinear(callee string, pos int, arg ast.ExprID, at types.TypeID) {
	src := c.expr(arg)
	if src == nil || src.Kind != ast.ExprIdent {
		return
	}
	sym, ok := c.table.Lookup(c.currentScope(), src.Name)
	if !ok {
		return
	}
	name := c.builder.String(src.Name)
	place := c.place(sym)
	switch {
	case pos == 0 && readBorrowCalls[callee]:
		c.reportIssue(c.result.Caps.Use(place), src.Span, name)
	case pos == 0 && writeBorrowCalls[callee]:
		s := c.table.Symbols.Get(sym)
		if s.Flags&symbols.SymbolFlagMutable == 0 {
			c.errorf(src.Span, "'%s' must be mutable to be written through", name)
			return
		}
		c.reportIssue(c.result.Caps.Mutate(place), src.Span, name)
	default:
		if c.isNonCopy(at) {
			c.reportIssue(c.result.Caps.Move(place, src.Span), src.Span, name)
		}
	}
}

func (c *checker) moveArg(arg ast.ExprID, at types.TypeID) {
	src := c.expr(arg)
	if src == nil || src.Kind != ast.ExprIdent || !c.isNonCopy(at) {
		return
	}
	if sym, ok := c.table.Lookup(c.currentScope(), src.Name); ok {
		c.reportIssue(c.result.Caps.Move(c.place(sym), src.Span), src.Span, c.builder.String(src.Name))
	}
}

// checkFlow types `lhs -> rhs` and `lhs ~> rhs`: the left value pipes into
// the right side, consuming the left capability.
func (c *checker) checkFlow(e *ast.Expr) types.TypeID {
	lt := c.checkExpr(e.LHS)
	lhs := c.expr(e.LHS)

	if lhs != nil && lhs.Kind == ast.ExprIdent {
		if sym, ok := c.table.Lookup(c.currentScope(), lhs.Name); ok {
			s := c.table.Symbols.Get(sym)
			if e.Flow == ast.FlowAsync && s.Flags&symbols.SymbolFlagMutable != 0 {
				c.errorf(lhs.Span, "mutable binding '%s' cannot flow across '~>' (data race)",
					c.builder.String(lhs.Name))
			}
			if c.isNonCopy(lt) {
				c.reportIssue(c.result.Caps.Move(c.place(sym), lhs.Span), lhs.Span, c.builder.String(lhs.Name))
			}
		}
	}

	rhs := c.expr(e.RHS)
	if rhs != nil && rhs.Kind == ast.ExprCall {
		t := c.checkCall(e.RHS, rhs, e.LHS)
		c.result.ExprTypes[e.RHS] = t
		return t
	}
	return c.checkExpr(e.RHS)
}
