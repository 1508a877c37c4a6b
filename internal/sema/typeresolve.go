package sema

import (
	"fmt"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/types"
)

func (c *checker) errorf(span source.Span, format string, args ...any) {
	diag.ReportError(c.reporter, diag.SemaError, span, fmt.Sprintf(format, args...)).Emit()
}

func (c *checker) errorNoted(span source.Span, msg string, noteSpan source.Span, note string) {
	diag.ReportError(c.reporter, diag.SemaError, span, msg).WithNote(noteSpan, note).Emit()
}

// isNonCopy reports whether values of id move on read.
func (c *checker) isNonCopy(id types.TypeID) bool {
	return c.types.IsNonCopy(id)
}

// resolveType turns a syntactic annotation into an interned type. subst
// substitutes generic alias parameters; nil outside alias expansion.
func (c *checker) resolveType(id ast.TypeExprID, subst map[source.StringID]types.TypeID) types.TypeID {
	te := c.builder.Types.Get(id)
	if te == nil {
		return c.result.Builtins.Unknown
	}
	switch te.Kind {
	case ast.TypeExprUnit:
		return c.result.Builtins.Unit
	case ast.TypeExprBool:
		return c.result.Builtins.Bool
	case ast.TypeExprU32:
		return c.result.Builtins.U32
	case ast.TypeExprString:
		return c.result.Builtins.String
	case ast.TypeExprStyle:
		return c.result.Builtins.Style
	case ast.TypeExprModel:
		return c.result.Builtins.Model
	case ast.TypeExprTensor:
		return c.resolveTensor(te, subst)
	case ast.TypeExprRange:
		if te.Lo > te.Hi || te.Hi > types.U32Max {
			c.errorf(te.Span, "invalid refinement range [%d..%d]", te.Lo, te.Hi)
			return c.result.Builtins.U32
		}
		return c.types.Intern(types.Type{
			Kind: types.KindConstrainedRange,
			Base: c.result.Builtins.U32,
			Lo:   te.Lo, Hi: te.Hi,
		})
	case ast.TypeExprNamed:
		return c.resolveNamed(te, subst)
	case ast.TypeExprApplied:
		return c.resolveApplied(te, subst)
	default:
		return c.result.Builtins.Unknown
	}
}

func (c *checker) resolveTensor(te *ast.TypeExpr, subst map[source.StringID]types.TypeID) types.TypeID {
	elem := c.result.Builtins.Unknown
	hasElem := false
	if te.Elem.IsValid() {
		elem = c.resolveType(te.Elem, subst)
		hasElem = c.types.Get(elem).Kind != types.KindUnknown
	}
	var shape []uint64
	if te.Dims != nil {
		shape = make([]uint64, 0, len(te.Dims))
		for _, d := range te.Dims {
			if d.Dynamic {
				// one dynamic axis makes the whole shape unknown
				shape = nil
				break
			}
			shape = append(shape, d.Size)
		}
	}
	return c.types.Intern(types.Type{
		Kind: types.KindTensor, Elem: elem, HasElem: hasElem, Shape: shape,
	})
}

func (c *checker) resolveNamed(te *ast.TypeExpr, subst map[source.StringID]types.TypeID) types.TypeID {
	if subst != nil {
		if t, ok := subst[te.Name]; ok {
			return t
		}
	}
	if sym, ok := c.table.Lookup(c.currentScope(), te.Name); ok {
		s := c.table.Symbols.Get(sym)
		if s.Kind == symbols.SymbolTypeAlias {
			if len(s.TypeParams) > 0 {
				c.errorf(te.Span, "generic alias '%s' used without type arguments", c.builder.String(te.Name))
				return c.result.Builtins.Unknown
			}
			return s.Type
		}
	}
	return c.types.Intern(types.Type{Kind: types.KindNamed, Name: te.Name})
}

func (c *checker) resolveApplied(te *ast.TypeExpr, subst map[source.StringID]types.TypeID) types.TypeID {
	args := make([]types.TypeID, len(te.Args))
	for i, a := range te.Args {
		args[i] = c.resolveType(a, subst)
	}
	if sym, ok := c.table.Lookup(c.currentScope(), te.Name); ok {
		s := c.table.Symbols.Get(sym)
		if s.Kind == symbols.SymbolTypeAlias && len(s.TypeParams) > 0 {
			if len(args) != len(s.TypeParams) {
				c.errorf(te.Span, "alias '%s' expects %d type arguments, got %d",
					c.builder.String(te.Name), len(s.TypeParams), len(args))
				return c.result.Builtins.Unknown
			}
			inner := make(map[source.StringID]types.TypeID, len(args))
			for i, p := range s.TypeParams {
				inner[p] = args[i]
			}
			alias := c.stmt(s.Decl.Stmt)
			if alias == nil || !alias.AliasOf.IsValid() {
				return c.result.Builtins.Unknown
			}
			return c.resolveType(alias.AliasOf, inner)
		}
	}
	return c.types.Intern(types.Type{Kind: types.KindApplied, Name: te.Name, Args: args})
}

// rangeOf projects a type onto its refinement bounds, treating a plain U32
// as the full default range.
func (c *checker) rangeOf(id types.TypeID) (lo, hi uint64, ok bool) {
	t := c.types.Get(id)
	switch t.Kind {
	case types.KindConstrainedRange:
		return t.Lo, t.Hi, true
	case types.KindU32:
		return 0, types.U32Max, true
	}
	return 0, 0, false
}

// assignable decides whether a value of src may bind a target of dst.
// A non-empty reason explains the rejection.
// deferred is true when a range proof could not be settled statically and
// is handed to the verifier (only when defer_range_proofs is on).
func (c *checker) assignable(dst, src types.TypeID, srcExpr ast.ExprID) (ok, deferred bool, reason string) {
	if dst == src {
		return true, false, ""
	}
	dt := c.types.Get(dst)
	st := c.types.Get(src)

	if dt.Kind == types.KindUnknown || st.Kind == types.KindUnknown {
		return true, false, ""
	}

	if dt.Kind == types.KindConstrainedRange {
		if slo, shi, isRange := c.rangeOf(src); isRange {
			if dt.Lo <= slo && shi <= dt.Hi {
				return true, false, ""
			}
			if c.deferRange {
				return true, true, ""
			}
			if lit := c.constU32(srcExpr); lit != nil {
				if dt.Lo <= *lit && *lit <= dt.Hi {
					return true, false, ""
				}
				return false, false, fmt.Sprintf("constant %d is outside %s", *lit, c.types.String(dst))
			}
			return false, false, fmt.Sprintf("cannot prove %s fits %s without deferred range proofs",
				c.types.String(src), c.types.String(dst))
		}
		return false, false, fmt.Sprintf("expected %s, got %s", c.types.String(dst), c.types.String(src))
	}
	if st.Kind == types.KindConstrainedRange && dt.Kind == types.KindU32 {
		// widening a refinement back to its base is always safe
		return true, false, ""
	}

	if dt.Kind == types.KindTensor && st.Kind == types.KindTensor {
		if dt.HasElem && st.HasElem && dt.Elem != st.Elem {
			return false, false, fmt.Sprintf("tensor element mismatch: expected %s, got %s",
				c.types.String(dt.Elem), c.types.String(st.Elem))
		}
		if dt.Shape == nil || st.Shape == nil {
			return true, false, ""
		}
		if len(dt.Shape) != len(st.Shape) {
			return false, false, "tensor rank mismatch"
		}
		for i := range dt.Shape {
			if dt.Shape[i] != st.Shape[i] {
				return false, false, fmt.Sprintf("tensor shape mismatch at axis %d", i)
			}
		}
		return true, false, ""
	}

	if dt.Kind == types.KindApplied && st.Kind == types.KindApplied {
		if dt.Name != st.Name || len(dt.Args) != len(st.Args) {
			return false, false, fmt.Sprintf("expected %s, got %s", c.types.String(dst), c.types.String(src))
		}
		for i := range dt.Args {
			if aok, _, why := c.assignable(dt.Args[i], st.Args[i], ast.NoExprID); !aok {
				return false, false, why
			}
		}
		return true, false, ""
	}

	return false, false, fmt.Sprintf("expected %s, got %s", c.types.String(dst), c.types.String(src))
}

// constU32 evaluates an expression to a compile-time u32 literal, used for
// the strict-mode constant-literal range proof.
func (c *checker) constU32(id ast.ExprID) *uint64 {
	e := c.expr(id)
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ast.ExprLitU32:
		v := e.LitU32
		return &v
	case ast.ExprBinary:
		a := c.constU32(e.LHS)
		b := c.constU32(e.RHS)
		if a == nil || b == nil {
			return nil
		}
		var v uint64
		switch e.BinOp {
		case ast.BinaryAdd:
			v = (*a + *b) & types.U32Max
		case ast.BinarySub:
			v = (*a - *b) & types.U32Max
		case ast.BinaryMul:
			v = (*a * *b) & types.U32Max
		default:
			return nil
		}
		return &v
	}
	return nil
}
