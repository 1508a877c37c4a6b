package sema

import (
	"aura/internal/ast"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/types"
)

// checkMatch enforces the match rules: pattern/constructor
// agreement with the scrutinee type, fresh bindings over variant fields,
// syntactic exhaustiveness (a final '_' arm, and only a final one), and
// de-duplicated integer/string patterns.
func (c *checker) checkMatch(id ast.StmtID, st *ast.Stmt) {
	scrutType := c.checkExpr(st.Scrutinee)
	scrut := c.types.Get(scrutType)

	if len(st.Arms) == 0 {
		c.errorf(st.Span, "non-exhaustive match; add a final '_' arm")
		return
	}

	seenU32 := make(map[uint64]source.Span)
	seenStr := make(map[string]source.Span)
	seenVariant := make(map[source.StringID]source.Span)

	for i, armID := range st.Arms {
		arm := c.builder.Arms.Get(armID)
		if arm == nil {
			continue
		}
		pat := c.builder.Patterns.Get(arm.Pattern)
		if pat == nil {
			continue
		}
		last := i == len(st.Arms)-1

		switch pat.Kind {
		case ast.PatternWildcard:
			if !last {
				c.errorf(pat.Span, "unreachable arms: '_' must be the final arm")
			}
		case ast.PatternLitU32:
			if _, _, isInt := c.rangeOf(scrutType); !isInt && scrut.Kind != types.KindUnknown {
				c.errorf(pat.Span, "integer pattern cannot match %s", c.types.String(scrutType))
			}
			if prev, dup := seenU32[pat.LitU32]; dup {
				c.errorNoted(pat.Span, "duplicate match arm", prev, "first matched here")
			}
			seenU32[pat.LitU32] = pat.Span
		case ast.PatternLitString:
			if scrutType != c.result.Builtins.String && scrut.Kind != types.KindUnknown {
				c.errorf(pat.Span, "string pattern cannot match %s", c.types.String(scrutType))
			}
			if prev, dup := seenStr[pat.LitString]; dup {
				c.errorNoted(pat.Span, "duplicate match arm", prev, "first matched here")
			}
			seenStr[pat.LitString] = pat.Span
		case ast.PatternConstructor:
			if prev, dup := seenVariant[pat.Variant]; dup {
				c.errorNoted(pat.Span, "duplicate match arm", prev, "first matched here")
			}
			seenVariant[pat.Variant] = pat.Span
			c.checkConstructorArm(scrutType, scrut, pat, arm, id)
			continue
		}

		c.pushScope(symbols.ScopeBlock, symbols.ScopeOwner{Kind: symbols.ScopeOwnerStmt, ASTFile: c.file, Stmt: id}, arm.Span)
		for _, bid := range arm.Body {
			c.checkStmt(bid)
		}
		c.popScope()
	}

	lastArm := c.builder.Arms.Get(st.Arms[len(st.Arms)-1])
	lastPat := c.builder.Patterns.Get(lastArm.Pattern)
	if lastPat == nil || lastPat.Kind != ast.PatternWildcard {
		c.errorf(st.Span, "non-exhaustive match; add a final '_' arm")
	}
}

// checkConstructorArm validates the variant against the scrutinee's enum
// and introduces the arm's fresh field bindings, substituting the
// scrutinee's type arguments through the variant field types.
func (c *checker) checkConstructorArm(scrutType types.TypeID, scrut types.Type, pat *ast.Pattern, arm *ast.Arm, owner ast.StmtID) {
	varSym, ok := c.table.Lookup(c.currentScope(), pat.Variant)
	if !ok {
		c.errorf(pat.Span, "unknown variant '%s'", c.builder.String(pat.Variant))
		return
	}
	variant := c.table.Symbols.Get(varSym)
	if variant.Kind != symbols.SymbolEnumVariant {
		c.errorf(pat.Span, "'%s' is not an enum variant", c.builder.String(pat.Variant))
		return
	}
	enum := c.table.Symbols.Get(variant.Owner)

	if scrut.Kind == types.KindNamed || scrut.Kind == types.KindApplied {
		if enum != nil && scrut.Name != enum.Name {
			c.errorf(pat.Span, "variant '%s' belongs to '%s', not %s",
				c.builder.String(pat.Variant), c.builder.String(enum.Name), c.types.String(scrutType))
		}
	} else if scrut.Kind != types.KindUnknown {
		c.errorf(pat.Span, "constructor pattern cannot match %s", c.types.String(scrutType))
	}

	var subst map[source.StringID]types.TypeID
	if enum != nil && scrut.Kind == types.KindApplied && len(enum.TypeParams) == len(scrut.Args) {
		subst = make(map[source.StringID]types.TypeID, len(enum.TypeParams))
		for i, p := range enum.TypeParams {
			subst[p] = scrut.Args[i]
		}
	}

	c.pushScope(symbols.ScopeBlock, symbols.ScopeOwner{Kind: symbols.ScopeOwnerStmt, ASTFile: c.file, Stmt: owner}, arm.Span)
	declared := make(map[source.StringID]ast.TypeExprID, len(variant.Fields))
	for _, f := range variant.Fields {
		declared[f.Name] = f.Type
	}
	for _, fb := range pat.Fields {
		fte, ok := declared[fb.Name]
		if !ok {
			c.errorf(pat.Span, "variant '%s' has no field '%s'",
				c.builder.String(pat.Variant), c.builder.String(fb.Name))
			continue
		}
		ft := c.resolveType(fte, subst)
		local := c.table.Declare(c.currentScope(), symbols.Symbol{
			Name: fb.Bind, Kind: symbols.SymbolStrand, Span: pat.Span, Type: ft,
		})
		c.result.BindingTypes[local] = ft
		c.result.Caps.Introduce(c.place(local))
	}
	for _, bid := range arm.Body {
		c.checkStmt(bid)
	}
	c.popScope()
}
