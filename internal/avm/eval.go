package avm

import (
	"context"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"

	"aura/internal/ast"
	"aura/internal/source"
)

func jsonMarshal(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	return json.RawMessage(b), err
}

func (i *Interp) evalExpr(ctx context.Context, id ast.ExprID) (Value, error) {
	ex := i.b.Exprs.Get(id)
	if ex == nil {
		return unit(), nil
	}
	switch ex.Kind {
	case ast.ExprLitU32:
		return intVal(ex.LitU32), nil
	case ast.ExprLitBool:
		return boolVal(ex.LitBool), nil
	case ast.ExprLitString:
		return strVal(i.interpolate(ex.LitString)), nil
	case ast.ExprIdent:
		name := i.b.String(ex.Name)
		if s, ok := i.lookup(name); ok {
			return s.val, nil
		}
		return unit(), rtErr(ex.Span, "unknown name %q", name)
	case ast.ExprUnary:
		return i.evalUnary(ctx, ex)
	case ast.ExprBinary:
		return i.evalBinary(ctx, ex)
	case ast.ExprMember:
		return i.evalMember(ctx, ex)
	case ast.ExprCall:
		return i.evalCall(ctx, ex, nil)
	case ast.ExprStyleLit:
		m := make(map[string]Value, len(ex.Fields))
		for _, f := range ex.Fields {
			v, err := i.evalExpr(ctx, f.Value)
			if err != nil {
				return unit(), err
			}
			m[i.b.String(f.Name)] = v
		}
		return Value{Kind: KindStyle, Style: m}, nil
	case ast.ExprRecordLit:
		m := make(map[string]Value, len(ex.Fields))
		for _, f := range ex.Fields {
			v, err := i.evalExpr(ctx, f.Value)
			if err != nil {
				return unit(), err
			}
			m[i.b.String(f.Name)] = v
		}
		return Value{Kind: KindStyle, Style: m}, nil
	case ast.ExprLambda:
		// lambdas only occur at runtime as UI callback blocks, which are
		// registered at the call site, never materialized as values
		return unit(), nil
	case ast.ExprFlow:
		lhs, err := i.evalExpr(ctx, ex.LHS)
		if err != nil {
			return unit(), err
		}
		if rhs := i.b.Exprs.Get(ex.RHS); rhs != nil && rhs.Kind == ast.ExprCall {
			return i.evalCall(ctx, rhs, &lhs)
		}
		return i.evalExpr(ctx, ex.RHS)
	case ast.ExprQuantifier:
		// quantified facts are the verifier's concern; at runtime the
		// admitted program treats them as discharged
		return boolVal(true), nil
	default:
		return unit(), nil
	}
}

// interpolate resolves {ident} segments against the current environment,
// NFC-normalizing the assembled text.
func (i *Interp) interpolate(s string) string {
	if !strings.Contains(s, "{") {
		return norm.NFC.String(s)
	}
	var b strings.Builder
	for k := 0; k < len(s); {
		if s[k] == '{' {
			if end := strings.IndexByte(s[k:], '}'); end > 1 {
				name := s[k+1 : k+end]
				if slot, ok := i.lookup(name); ok && isIdent(name) {
					b.WriteString(slot.val.Render())
					k += end + 1
					continue
				}
			}
		}
		b.WriteByte(s[k])
		k++
	}
	return norm.NFC.String(b.String())
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func (i *Interp) evalUnary(ctx context.Context, ex *ast.Expr) (Value, error) {
	v, err := i.evalExpr(ctx, ex.LHS)
	if err != nil {
		return unit(), err
	}
	switch ex.UnOp {
	case ast.UnaryNeg:
		if v.Kind != KindInt {
			return unit(), rtErr(ex.Span, "unary '-' expects int, got %s", v.Kind)
		}
		return intVal(uint64(uint32(-uint32(v.Int)))), nil
	case ast.UnaryNot:
		if v.Kind != KindBool {
			return unit(), rtErr(ex.Span, "'not' expects bool, got %s", v.Kind)
		}
		return boolVal(!v.Bool), nil
	}
	return unit(), rtErr(ex.Span, "invalid unary operator")
}

func (i *Interp) evalBinary(ctx context.Context, ex *ast.Expr) (Value, error) {
	a, err := i.evalExpr(ctx, ex.LHS)
	if err != nil {
		return unit(), err
	}
	b, err := i.evalExpr(ctx, ex.RHS)
	if err != nil {
		return unit(), err
	}
	switch ex.BinOp {
	case ast.BinaryAdd, ast.BinarySub, ast.BinaryMul, ast.BinaryDiv, ast.BinaryMod:
		if a.Kind != KindInt || b.Kind != KindInt {
			return unit(), rtErr(ex.Span, "arithmetic expects int operands, got %s and %s", a.Kind, b.Kind)
		}
		x, y := uint32(a.Int), uint32(b.Int)
		switch ex.BinOp {
		case ast.BinaryAdd:
			return intVal(uint64(x + y)), nil
		case ast.BinarySub:
			return intVal(uint64(x - y)), nil
		case ast.BinaryMul:
			return intVal(uint64(x * y)), nil
		case ast.BinaryDiv:
			if y == 0 {
				return unit(), rtErr(ex.Span, "division by zero")
			}
			return intVal(uint64(x / y)), nil
		default:
			if y == 0 {
				return unit(), rtErr(ex.Span, "modulo by zero")
			}
			return intVal(uint64(x % y)), nil
		}
	case ast.BinaryEq, ast.BinaryNe:
		eq, err := valuesEqual(a, b, ex.Span)
		if err != nil {
			return unit(), err
		}
		if ex.BinOp == ast.BinaryNe {
			eq = !eq
		}
		return boolVal(eq), nil
	case ast.BinaryLt, ast.BinaryLe, ast.BinaryGt, ast.BinaryGe:
		if a.Kind != KindInt || b.Kind != KindInt {
			return unit(), rtErr(ex.Span, "ordering expects int operands, got %s and %s", a.Kind, b.Kind)
		}
		x, y := uint32(a.Int), uint32(b.Int)
		switch ex.BinOp {
		case ast.BinaryLt:
			return boolVal(x < y), nil
		case ast.BinaryLe:
			return boolVal(x <= y), nil
		case ast.BinaryGt:
			return boolVal(x > y), nil
		default:
			return boolVal(x >= y), nil
		}
	case ast.BinaryAnd, ast.BinaryOr:
		if a.Kind != KindBool || b.Kind != KindBool {
			return unit(), rtErr(ex.Span, "logical operator expects bool operands, got %s and %s", a.Kind, b.Kind)
		}
		if ex.BinOp == ast.BinaryAnd {
			return boolVal(a.Bool && b.Bool), nil
		}
		return boolVal(a.Bool || b.Bool), nil
	}
	return unit(), rtErr(ex.Span, "invalid binary operator")
}

func valuesEqual(a, b Value, span source.Span) (bool, error) {
	if a.Kind != b.Kind {
		return false, rtErr(span, "cannot compare %s with %s", a.Kind, b.Kind)
	}
	switch a.Kind {
	case KindInt:
		return a.Int == b.Int, nil
	case KindBool:
		return a.Bool == b.Bool, nil
	case KindStr:
		return a.Str == b.Str, nil
	case KindUnit:
		return true, nil
	default:
		return false, rtErr(span, "cannot compare %s values", a.Kind)
	}
}

func (i *Interp) evalMember(ctx context.Context, ex *ast.Expr) (Value, error) {
	base := i.b.Exprs.Get(ex.Base)
	// namespace members only occur as callees, handled by evalCall
	if base != nil && base.Kind == ast.ExprIdent {
		if _, ok := i.lookup(i.b.String(base.Name)); !ok {
			return unit(), rtErr(ex.Span, "unknown name %q", i.b.String(base.Name))
		}
	}
	bv, err := i.evalExpr(ctx, ex.Base)
	if err != nil {
		return unit(), err
	}
	if bv.Kind != KindStyle {
		return unit(), rtErr(ex.Span, "%s has no fields", bv.Kind)
	}
	field := i.b.String(ex.Name)
	v, ok := bv.Style[field]
	if !ok {
		return unit(), rtErr(ex.Span, "unknown field %q", field)
	}
	return v, nil
}

func (i *Interp) calleeName(id ast.ExprID) string {
	ex := i.b.Exprs.Get(id)
	if ex == nil {
		return ""
	}
	switch ex.Kind {
	case ast.ExprIdent:
		return i.b.String(ex.Name)
	case ast.ExprMember:
		if base := i.b.Exprs.Get(ex.Base); base != nil && base.Kind == ast.ExprIdent {
			if _, local := i.lookup(i.b.String(base.Name)); !local {
				return i.b.String(base.Name) + "." + i.b.String(ex.Name)
			}
		}
	}
	return ""
}

// evalCall executes builtins, user cells, and UI node constructors.
// flowLHS, when non-nil, is the value piped in by a flow expression and
// becomes the implicit first argument.
func (i *Interp) evalCall(ctx context.Context, ex *ast.Expr, flowLHS *Value) (Value, error) {
	name := i.calleeName(ex.Callee)
	if name == "" {
		return unit(), rtErr(ex.Span, "call target is not callable")
	}

	var done func()
	if i.prof != nil {
		done = i.prof.Push(name)
	}
	if done != nil {
		defer done()
	}

	args := make([]Value, 0, len(ex.Args)+1)
	if flowLHS != nil {
		args = append(args, *flowLHS)
	}
	for _, a := range ex.Args {
		v, err := i.evalExpr(ctx, a.Value)
		if err != nil {
			return unit(), err
		}
		args = append(args, v)
	}

	if v, handled, err := i.builtinCall(ex, name, args); handled {
		return v, err
	}

	if cell, ok := i.cells[name]; ok {
		return i.callCell(ctx, ex, cell, args)
	}

	// inside a layout/render block, unresolved names with a trailing
	// block (or a known widget shape) construct UI nodes
	if len(i.uiStack) > 0 || len(ex.TrailingBlock) > 0 {
		return i.buildUINode(ctx, ex, name, args)
	}

	return unit(), rtErr(ex.Span, "unknown cell %q", name)
}

func (i *Interp) callCell(ctx context.Context, ex *ast.Expr, cell *ast.Stmt, args []Value) (Value, error) {
	if len(args) != len(cell.Params) {
		return unit(), rtErr(ex.Span, "'%s' expects %d arguments, got %d",
			i.b.String(cell.Name), len(cell.Params), len(args))
	}
	i.pushScope()
	defer i.popScope()
	for k, p := range cell.Params {
		i.define(i.b.String(p.Name), args[k], p.Mutable)
	}
	for _, id := range cell.Body {
		if err := i.execStmt(ctx, id); err != nil {
			return unit(), err
		}
	}
	return unit(), nil
}

// builtinCall covers the tensor/vector surface plus the demo hw.*/ai.*
// namespaces, which evaluate to zeroed placeholders at runtime (their
// real semantics live in the verifier's plug-in theory).
func (i *Interp) builtinCall(ex *ast.Expr, name string, args []Value) (Value, bool, error) {
	switch name {
	case "tensor.new":
		if len(args) != 1 || args[0].Kind != KindInt {
			return unit(), true, rtErr(ex.Span, "tensor.new expects a length")
		}
		i.nextH++
		i.tensors[i.nextH] = make([]uint64, args[0].Int)
		return intVal(i.nextH), true, nil
	case "tensor.len":
		t, err := i.tensorArg(ex, args, 0)
		if err != nil {
			return unit(), true, err
		}
		return intVal(uint64(len(t))), true, nil
	case "tensor.get":
		t, err := i.tensorArg(ex, args, 0)
		if err != nil {
			return unit(), true, err
		}
		if len(args) < 2 || args[1].Kind != KindInt {
			return unit(), true, rtErr(ex.Span, "tensor.get expects an index")
		}
		if args[1].Int >= uint64(len(t)) {
			return unit(), true, rtErr(ex.Span, "tensor index out of bounds")
		}
		return intVal(t[args[1].Int]), true, nil
	case "tensor.set":
		t, err := i.tensorArg(ex, args, 0)
		if err != nil {
			return unit(), true, err
		}
		if len(args) < 3 || args[1].Kind != KindInt || args[2].Kind != KindInt {
			return unit(), true, rtErr(ex.Span, "tensor.set expects an index and a value")
		}
		if args[1].Int >= uint64(len(t)) {
			return unit(), true, rtErr(ex.Span, "tensor index out of bounds")
		}
		t[args[1].Int] = args[2].Int
		return unit(), true, nil
	case "vector.new":
		i.nextH++
		i.vectors[i.nextH] = nil
		return intVal(i.nextH), true, nil
	case "vector.get":
		if len(args) < 2 || args[0].Kind != KindInt || args[1].Kind != KindInt {
			return unit(), true, rtErr(ex.Span, "vector.get expects a vector and an index")
		}
		v := i.vectors[args[0].Int]
		if args[1].Int >= uint64(len(v)) {
			return unit(), true, rtErr(ex.Span, "vector index out of bounds")
		}
		return intVal(v[args[1].Int]), true, nil
	case "vector.set":
		if len(args) < 3 || args[0].Kind != KindInt || args[1].Kind != KindInt {
			return unit(), true, rtErr(ex.Span, "vector.set expects a vector, an index and a value")
		}
		v := i.vectors[args[0].Int]
		for uint64(len(v)) <= args[1].Int {
			v = append(v, 0)
		}
		v[args[1].Int] = args[2].Int
		i.vectors[args[0].Int] = v
		return unit(), true, nil
	}
	if strings.HasPrefix(name, "hw.") || strings.HasPrefix(name, "ai.") {
		return intVal(0), true, nil
	}
	return unit(), false, nil
}

func (i *Interp) tensorArg(ex *ast.Expr, args []Value, idx int) ([]uint64, error) {
	if idx >= len(args) || args[idx].Kind != KindInt {
		return nil, rtErr(ex.Span, "expected a tensor handle")
	}
	t, ok := i.tensors[args[idx].Int]
	if !ok {
		return nil, rtErr(ex.Span, "invalid tensor handle")
	}
	return t, nil
}
