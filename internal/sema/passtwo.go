package sema

import (
	"aura/internal/ast"
	"aura/internal/capgraph"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/types"
)

// passTwo checks bodies in source order.
func (c *checker) passTwo(stmts []ast.StmtID) {
	for _, id := range stmts {
		c.checkStmt(id)
	}
}

func (c *checker) checkBlock(kind symbols.ScopeKind, owner ast.StmtID, body []ast.StmtID) {
	st := c.stmt(owner)
	c.pushScope(kind, symbols.ScopeOwner{Kind: symbols.ScopeOwnerStmt, ASTFile: c.file, Stmt: owner}, st.Span)
	for _, id := range body {
		c.checkStmt(id)
	}
	c.popScope()
}

func (c *checker) checkStmt(id ast.StmtID) {
	st := c.stmt(id)
	if st == nil {
		return
	}
	switch st.Kind {
	case ast.StmtImport, ast.StmtTypeAlias, ast.StmtTraitDef,
		ast.StmtRecordDef, ast.StmtEnumDef, ast.StmtExternCell:
		// registered in pass one, no body to check

	case ast.StmtStrandDef:
		c.bindVal(id, st)

	case ast.StmtCellDef:
		c.checkCellBody(id, st)

	case ast.StmtFlowBlock, ast.StmtLayout, ast.StmtRender:
		c.checkBlock(symbols.ScopeBlock, id, st.Body)

	case ast.StmtUnsafeBlock:
		c.unsafeDepth++
		c.checkBlock(symbols.ScopeBlock, id, st.Body)
		if c.unsafeDepth == 0 {
			// leaving an unsafe block below depth zero means the checker
			// itself lost track of nesting; surface it loudly
			c.reportInternal(st.Span, "unsafe depth underflow")
			return
		}
		c.unsafeDepth--

	case ast.StmtProp:
		c.checkExpr(st.PropValue)

	case ast.StmtAssign:
		c.checkAssign(st)

	case ast.StmtIf:
		c.checkIf(id, st)

	case ast.StmtMatch:
		c.checkMatch(id, st)

	case ast.StmtWhile:
		c.checkWhile(id, st)

	case ast.StmtRequires, ast.StmtEnsures, ast.StmtAssert, ast.StmtAssume:
		t := c.checkExpr(st.Expr)
		if t != c.result.Builtins.Bool && c.types.Get(t).Kind != types.KindUnknown {
			c.errorf(st.Span, "%s expects a bool condition, got %s", st.Kind, c.types.String(t))
		}

	case ast.StmtExprStmt:
		c.checkExpr(st.Expr)
	}
}

func (c *checker) checkCellBody(id ast.StmtID, st *ast.Stmt) {
	sym, ok := c.table.LookupIn(c.fileScope, st.Name)
	if !ok {
		return
	}
	cell := c.table.Symbols.Get(sym)
	c.pushScope(symbols.ScopeCell, symbols.ScopeOwner{Kind: symbols.ScopeOwnerStmt, ASTFile: c.file, Stmt: id}, st.Span)
	if cell.Signature != nil {
		for _, pid := range cell.Signature.Params {
			p := c.table.Symbols.Get(pid)
			if p == nil {
				continue
			}
			local := c.table.Declare(c.currentScope(), *p)
			c.result.BindingTypes[local] = p.Type
			c.result.Caps.Introduce(c.place(local))
		}
	}
	for _, bid := range st.Body {
		c.checkStmt(bid)
	}
	c.popScope()
}

// bindVal handles `val [mut] name[: T] [where φ] = expr`.
func (c *checker) bindVal(id ast.StmtID, st *ast.Stmt) {
	rhsType := c.checkExpr(st.Value)

	bound := rhsType
	if st.ValType.IsValid() {
		annotated := c.resolveType(st.ValType, nil)
		c.checkAssignableExpr(annotated, rhsType, st.Value, st.Span)
		bound = annotated
	}

	// moving the right-hand side: a bare identifier of a non-copy type is
	// consumed by the binding; everything else copies
	if src := c.expr(st.Value); src != nil && src.Kind == ast.ExprIdent && c.isNonCopy(rhsType) {
		if sym, ok := c.table.Lookup(c.currentScope(), src.Name); ok {
			c.reportIssue(c.result.Caps.Move(c.place(sym), src.Span), src.Span, c.builder.String(src.Name))
		}
	}

	flags := symbols.SymbolFlags(0)
	if st.Mutable {
		flags |= symbols.SymbolFlagMutable
	}
	local := c.table.Declare(c.currentScope(), symbols.Symbol{
		Name: st.Name, Kind: symbols.SymbolStrand, Span: st.Span, Flags: flags,
		Decl: symbols.SymbolDecl{ASTFile: c.file, Stmt: id},
		Type: bound,
	})
	c.result.BindingTypes[local] = bound
	c.result.StmtBinding[id] = local
	c.result.Caps.Introduce(c.place(local))

	if st.Where.IsValid() {
		wt := c.checkExpr(st.Where)
		if wt != c.result.Builtins.Bool && c.types.Get(wt).Kind != types.KindUnknown {
			c.errorf(st.Span, "where clause expects a bool condition")
			return
		}
		if narrowed, ok := c.narrowFromWhere(bound, st.Name, st.Where); ok {
			c.result.BindingTypes[local] = narrowed
			if s := c.table.Symbols.Get(local); s != nil {
				s.Type = narrowed
			}
		}
	}
}

// narrowFromWhere tightens a u32 binding to a ConstrainedRange reflecting
// the conjunction of integer-literal comparisons in a where clause.
func (c *checker) narrowFromWhere(bound types.TypeID, name source.StringID, where ast.ExprID) (types.TypeID, bool) {
	lo, hi, isRange := c.rangeOf(bound)
	if !isRange {
		return bound, false
	}
	changed := c.collectBounds(name, where, &lo, &hi)
	if !changed || lo > hi {
		return bound, false
	}
	return c.types.Intern(types.Type{
		Kind: types.KindConstrainedRange, Base: c.result.Builtins.U32, Lo: lo, Hi: hi,
	}), true
}

func (c *checker) collectBounds(name source.StringID, id ast.ExprID, lo, hi *uint64) bool {
	e := c.expr(id)
	if e == nil || e.Kind != ast.ExprBinary {
		return false
	}
	if e.BinOp == ast.BinaryAnd {
		a := c.collectBounds(name, e.LHS, lo, hi)
		b := c.collectBounds(name, e.RHS, lo, hi)
		return a || b
	}
	ident := c.expr(e.LHS)
	lit := c.expr(e.RHS)
	op := e.BinOp
	if ident == nil || lit == nil {
		return false
	}
	if ident.Kind != ast.ExprIdent || lit.Kind != ast.ExprLitU32 {
		// literal-on-the-left comparisons mirror to the flipped operator
		if ident.Kind == ast.ExprLitU32 && lit.Kind == ast.ExprIdent {
			ident, lit = lit, ident
			op = flipCompare(op)
		} else {
			return false
		}
	}
	if ident.Name != name {
		return false
	}
	k := lit.LitU32
	switch op {
	case ast.BinaryGe:
		if k > *lo {
			*lo = k
		}
	case ast.BinaryGt:
		if k+1 > *lo {
			*lo = k + 1
		}
	case ast.BinaryLe:
		if k < *hi {
			*hi = k
		}
	case ast.BinaryLt:
		if k > 0 && k-1 < *hi {
			*hi = k - 1
		}
	case ast.BinaryEq:
		if k > *lo {
			*lo = k
		}
		if k < *hi {
			*hi = k
		}
	default:
		return false
	}
	return true
}

func flipCompare(op ast.BinaryOp) ast.BinaryOp {
	switch op {
	case ast.BinaryLt:
		return ast.BinaryGt
	case ast.BinaryLe:
		return ast.BinaryGe
	case ast.BinaryGt:
		return ast.BinaryLt
	case ast.BinaryGe:
		return ast.BinaryLe
	default:
		return op
	}
}

func (c *checker) checkAssign(st *ast.Stmt) {
	rhsType := c.checkExpr(st.RHS)
	target := c.expr(st.Target)
	if target == nil || target.Kind != ast.ExprIdent {
		c.errorf(st.Span, "assignment target must be a name")
		return
	}
	sym, ok := c.table.Lookup(c.currentScope(), target.Name)
	if !ok {
		c.errorf(target.Span, "unknown identifier '%s'", c.builder.String(target.Name))
		return
	}
	s := c.table.Symbols.Get(sym)
	if s.Flags&symbols.SymbolFlagMutable == 0 {
		c.errorf(st.Span, "cannot assign to immutable binding '%s'", c.builder.String(target.Name))
		return
	}
	c.checkAssignableExpr(c.bindingType(sym), rhsType, st.RHS, st.Span)
	if src := c.expr(st.RHS); src != nil && src.Kind == ast.ExprIdent && c.isNonCopy(rhsType) {
		if from, ok := c.table.Lookup(c.currentScope(), src.Name); ok {
			c.reportIssue(c.result.Caps.Move(c.place(from), src.Span), src.Span, c.builder.String(src.Name))
		}
	}
	place := c.place(sym)
	if c.result.Caps.StateOf(place) == capgraph.Borrowed {
		c.reportIssue(c.result.Caps.Mutate(place), st.Span, c.builder.String(target.Name))
		return
	}
	// rebinding resets ownership back to Owned
	c.result.Caps.Introduce(place)
}

func (c *checker) checkIf(id ast.StmtID, st *ast.Stmt) {
	t := c.checkExpr(st.Cond)
	if t != c.result.Builtins.Bool && c.types.Get(t).Kind != types.KindUnknown {
		c.errorf(st.Span, "if condition expects bool, got %s", c.types.String(t))
	}
	base := c.result.Caps

	c.result.Caps = base.Clone()
	c.checkBlock(symbols.ScopeBlock, id, st.ThenBody)
	thenCaps := c.result.Caps

	c.result.Caps = base.Clone()
	if len(st.ElseBody) > 0 {
		c.checkBlock(symbols.ScopeBlock, id, st.ElseBody)
	}
	elseCaps := c.result.Caps

	base.MergeWorst(thenCaps)
	base.MergeWorst(elseCaps)
	c.result.Caps = base
}

func (c *checker) checkWhile(id ast.StmtID, st *ast.Stmt) {
	t := c.checkExpr(st.Cond)
	if t != c.result.Builtins.Bool && c.types.Get(t).Kind != types.KindUnknown {
		c.errorf(st.Span, "while condition expects bool, got %s", c.types.String(t))
	}
	if st.Invariant.IsValid() {
		it := c.checkExpr(st.Invariant)
		if it != c.result.Builtins.Bool && c.types.Get(it).Kind != types.KindUnknown {
			c.errorf(st.Span, "loop invariant expects bool, got %s", c.types.String(it))
		}
	}
	if st.Decreases.IsValid() {
		dt := c.checkExpr(st.Decreases)
		if _, _, isInt := c.rangeOf(dt); !isInt && c.types.Get(dt).Kind != types.KindUnknown {
			c.errorf(st.Span, "decreases measure expects u32, got %s", c.types.String(dt))
		}
	}
	c.checkBlock(symbols.ScopeBlock, id, st.Body)
}

func (c *checker) bindingType(sym symbols.SymbolID) types.TypeID {
	if t, ok := c.result.BindingTypes[sym]; ok {
		return t
	}
	if s := c.table.Symbols.Get(sym); s != nil {
		return s.Type
	}
	return types.NoTypeID
}

func (c *checker) place(sym symbols.SymbolID) capgraph.Place {
	return c.result.Caps.CanonicalPlace(sym, nil)
}
