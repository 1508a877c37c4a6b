package sema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/types"
)

// fixture assembles small admitted ASTs by hand, standing in for the
// out-of-scope concrete-syntax parser.
type fixture struct {
	b    *ast.Builder
	file ast.FileID
	span uint32
}

func newFixture() *fixture {
	b := ast.NewBuilder(ast.Hints{}, nil)
	return &fixture{b: b, file: b.NewFile(source.Span{})}
}

func (f *fixture) sp() source.Span {
	f.span += 10
	return source.Span{Start: f.span, End: f.span + 5}
}

func (f *fixture) top(s ast.Stmt) ast.StmtID {
	id := f.b.NewStmt(s)
	f.b.PushStmt(f.file, id)
	return id
}

func (f *fixture) lit(v uint64) ast.ExprID {
	return f.b.NewExpr(ast.Expr{Kind: ast.ExprLitU32, LitU32: v, Span: f.sp()})
}

func (f *fixture) ident(name string) ast.ExprID {
	return f.b.NewExpr(ast.Expr{Kind: ast.ExprIdent, Name: f.b.Intern(name), Span: f.sp()})
}

func (f *fixture) binary(op ast.BinaryOp, lhs, rhs ast.ExprID) ast.ExprID {
	return f.b.NewExpr(ast.Expr{Kind: ast.ExprBinary, BinOp: op, LHS: lhs, RHS: rhs, Span: f.sp()})
}

// call builds `ns.member(args...)` when name contains a dot, `name(args...)` otherwise.
func (f *fixture) call(name string, args ...ast.ExprID) ast.ExprID {
	var callee ast.ExprID
	if ns, member, ok := strings.Cut(name, "."); ok {
		base := f.b.NewExpr(ast.Expr{Kind: ast.ExprIdent, Name: f.b.Intern(ns), Span: f.sp()})
		callee = f.b.NewExpr(ast.Expr{Kind: ast.ExprMember, Base: base, Name: f.b.Intern(member), Span: f.sp()})
	} else {
		callee = f.ident(name)
	}
	actuals := make([]ast.Arg, len(args))
	for i, a := range args {
		actuals[i] = ast.Arg{Value: a, Span: f.sp()}
	}
	return f.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: callee, Args: actuals, Span: f.sp()})
}

func (f *fixture) val(name string, valType ast.TypeExprID, where, value ast.ExprID) ast.StmtID {
	return f.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: f.b.Intern(name),
		ValType: valType, Where: where, Value: value, Span: f.sp(),
	})
}

func (f *fixture) check(t *testing.T, opts ...func(*Options)) (*diag.Bag, Result) {
	t.Helper()
	bag := diag.NewBag(64)
	o := Options{
		Reporter: diag.BagReporter{Bag: bag},
		Table:    symbols.NewTable(symbols.Hints{}, f.b.Strings),
	}
	for _, fn := range opts {
		fn(&o)
	}
	res := Check(f.b, f.file, o)
	return bag, res
}

func messages(bag *diag.Bag) []string {
	out := make([]string, 0, bag.Len())
	for _, d := range bag.Items() {
		out = append(out, d.Message)
	}
	return out
}

func TestWhereClauseNarrowedBindingFitsRangeTarget(t *testing.T) {
	f := newFixture()
	where := f.binary(ast.BinaryAnd,
		f.binary(ast.BinaryGe, f.ident("n"), f.lit(0)),
		f.binary(ast.BinaryLe, f.ident("n"), f.lit(10)),
	)
	f.val("n", f.b.NewType(ast.TypeExpr{Kind: ast.TypeExprU32}), where, f.lit(7))
	rangeTy := f.b.NewType(ast.TypeExpr{Kind: ast.TypeExprRange, Lo: 0, Hi: 10})
	f.val("m", rangeTy, ast.NoExprID, f.ident("n"))

	bag, _ := f.check(t)
	require.Empty(t, messages(bag))
}

func TestWhereClauseBindingTypeIsRange(t *testing.T) {
	f := newFixture()
	where := f.binary(ast.BinaryAnd,
		f.binary(ast.BinaryGe, f.ident("n"), f.lit(2)),
		f.binary(ast.BinaryLe, f.ident("n"), f.lit(10)),
	)
	f.val("n", f.b.NewType(ast.TypeExpr{Kind: ast.TypeExprU32}), where, f.lit(7))

	bag := diag.NewBag(64)
	table := symbols.NewTable(symbols.Hints{}, f.b.Strings)
	in := types.NewInterner(f.b.Strings)
	res := Check(f.b, f.file, Options{
		Reporter: diag.BagReporter{Bag: bag},
		Table:    table,
		Types:    in,
	})
	require.Empty(t, messages(bag))

	sym, ok := table.Lookup(res.FileScope, f.b.Intern("n"))
	require.True(t, ok)
	got := in.Get(res.BindingTypes[sym])
	require.Equal(t, types.KindConstrainedRange, got.Kind)
	require.Equal(t, uint64(2), got.Lo)
	require.Equal(t, uint64(10), got.Hi)
}

func TestRangeAssignRequiresSubset(t *testing.T) {
	f := newFixture()
	wide := f.b.NewType(ast.TypeExpr{Kind: ast.TypeExprRange, Lo: 0, Hi: 100})
	f.val("a", wide, ast.NoExprID, f.lit(50))
	narrow := f.b.NewType(ast.TypeExpr{Kind: ast.TypeExprRange, Lo: 0, Hi: 10})
	f.val("b", narrow, ast.NoExprID, f.ident("a"))

	bag, _ := f.check(t)
	require.Len(t, bag.Items(), 1)
	require.Contains(t, bag.Items()[0].Message, "type mismatch")
}

func TestRangeAssignDeferredToVerifier(t *testing.T) {
	f := newFixture()
	wide := f.b.NewType(ast.TypeExpr{Kind: ast.TypeExprRange, Lo: 0, Hi: 100})
	f.val("a", wide, ast.NoExprID, f.lit(50))
	narrow := f.b.NewType(ast.TypeExpr{Kind: ast.TypeExprRange, Lo: 0, Hi: 10})
	f.val("b", narrow, ast.NoExprID, f.ident("a"))

	bag, _ := f.check(t, func(o *Options) { o.DeferRangeProofs = true })
	require.Empty(t, messages(bag))
}

func TestUseAfterAsyncFlowConsume(t *testing.T) {
	f := newFixture()
	// val t = tensor.new(4)
	f.val("t", ast.NoTypeExprID, ast.NoExprID, f.call("tensor.new", f.lit(4)))
	// t ~> hw.sink()
	flow := f.b.NewExpr(ast.Expr{
		Kind: ast.ExprFlow, Flow: ast.FlowAsync,
		LHS: f.ident("t"), RHS: f.call("hw.sink"), Span: f.sp(),
	})
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: flow, Span: f.sp()})
	// tensor.len(t)
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: f.call("tensor.len", f.ident("t")), Span: f.sp()})

	bag, _ := f.check(t)
	var found *diag.Diagnostic
	items := bag.Items()
	for i := range items {
		if strings.Contains(items[i].Message, "use-after-consume: 't'") {
			found = &items[i]
		}
	}
	require.NotNil(t, found, "expected use-after-consume, got %v", messages(bag))
	require.NotEmpty(t, found.Notes)
	require.Equal(t, "consumed here", found.Notes[0].Msg)
}

func TestAsyncFlowRejectsMutableSource(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: f.b.Intern("t"), Mutable: true,
		Value: f.call("tensor.new", f.lit(4)), Span: f.sp(),
	})
	flow := f.b.NewExpr(ast.Expr{
		Kind: ast.ExprFlow, Flow: ast.FlowAsync,
		LHS: f.ident("t"), RHS: f.call("hw.sink"), Span: f.sp(),
	})
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: flow, Span: f.sp()})

	bag, _ := f.check(t)
	require.Contains(t, strings.Join(messages(bag), "\n"), "data race")
}

func TestMatchWithoutWildcardIsNonExhaustive(t *testing.T) {
	f := newFixture()
	f.val("x", ast.NoTypeExprID, ast.NoExprID, f.lit(1))
	arm1 := f.b.NewArm(ast.Arm{Pattern: f.b.NewPattern(ast.Pattern{Kind: ast.PatternLitU32, LitU32: 1})})
	arm2 := f.b.NewArm(ast.Arm{Pattern: f.b.NewPattern(ast.Pattern{Kind: ast.PatternLitU32, LitU32: 2})})
	f.top(ast.Stmt{Kind: ast.StmtMatch, Scrutinee: f.ident("x"), Arms: []ast.ArmID{arm1, arm2}, Span: f.sp()})

	bag, _ := f.check(t)
	require.Contains(t, strings.Join(messages(bag), "\n"), "non-exhaustive match; add a final '_' arm")
}

func TestMatchDuplicateIntArm(t *testing.T) {
	f := newFixture()
	f.val("x", ast.NoTypeExprID, ast.NoExprID, f.lit(1))
	arm1 := f.b.NewArm(ast.Arm{Pattern: f.b.NewPattern(ast.Pattern{Kind: ast.PatternLitU32, LitU32: 1})})
	arm2 := f.b.NewArm(ast.Arm{Pattern: f.b.NewPattern(ast.Pattern{Kind: ast.PatternLitU32, LitU32: 1})})
	wild := f.b.NewArm(ast.Arm{Pattern: f.b.NewPattern(ast.Pattern{Kind: ast.PatternWildcard})})
	f.top(ast.Stmt{Kind: ast.StmtMatch, Scrutinee: f.ident("x"), Arms: []ast.ArmID{arm1, arm2, wild}, Span: f.sp()})

	bag, _ := f.check(t)
	require.Contains(t, strings.Join(messages(bag), "\n"), "duplicate match arm")
}

func TestImmutableAssignmentRejected(t *testing.T) {
	f := newFixture()
	f.val("x", ast.NoTypeExprID, ast.NoExprID, f.lit(1))
	f.top(ast.Stmt{Kind: ast.StmtAssign, Target: f.ident("x"), RHS: f.lit(2), Span: f.sp()})

	bag, _ := f.check(t)
	require.Contains(t, strings.Join(messages(bag), "\n"), "cannot assign to immutable binding 'x'")
}

func TestUntrustedExternRequiresUnsafe(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{
		Kind: ast.StmtExternCell, Name: f.b.Intern("poke"),
		Trusted: false, Span: f.sp(),
	})
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: f.call("poke"), Span: f.sp()})

	bag, _ := f.check(t)
	require.Contains(t, strings.Join(messages(bag), "\n"), "requires an unsafe block")
}

func TestUntrustedExternAllowedInsideUnsafe(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{
		Kind: ast.StmtExternCell, Name: f.b.Intern("poke"),
		Trusted: false, Span: f.sp(),
	})
	inner := f.b.NewStmt(ast.Stmt{Kind: ast.StmtExprStmt, Expr: f.call("poke"), Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtUnsafeBlock, Body: []ast.StmtID{inner}, Span: f.sp()})

	bag, _ := f.check(t)
	require.Empty(t, messages(bag))
}

func TestAsyncLambdaRejectsMutableCapture(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: f.b.Intern("counter"), Mutable: true,
		Value: f.lit(0), Span: f.sp(),
	})
	read := f.b.NewStmt(ast.Stmt{Kind: ast.StmtExprStmt, Expr: f.ident("counter"), Span: f.sp()})
	lambda := f.b.NewExpr(ast.Expr{
		Kind: ast.ExprLambda, Async: true, Body: []ast.StmtID{read}, Span: f.sp(),
	})
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: lambda, Span: f.sp()})

	bag, _ := f.check(t)
	require.Contains(t, strings.Join(messages(bag), "\n"),
		"mutable binding 'counter' cannot be captured by an async lambda")
}

func TestDuplicateNamedArgument(t *testing.T) {
	f := newFixture()
	param := ast.Param{Name: f.b.Intern("n"), Type: f.b.NewType(ast.TypeExpr{Kind: ast.TypeExprU32})}
	f.top(ast.Stmt{Kind: ast.StmtCellDef, Name: f.b.Intern("g"), Params: []ast.Param{param}, Span: f.sp()})
	callee := f.ident("g")
	call := f.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: callee, Args: []ast.Arg{
		{Name: f.b.Intern("n"), Value: f.lit(1), Span: f.sp()},
		{Name: f.b.Intern("n"), Value: f.lit(2), Span: f.sp()},
	}, Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: call, Span: f.sp()})

	bag, _ := f.check(t)
	require.Contains(t, strings.Join(messages(bag), "\n"), "duplicate argument 'n'")
}

func TestMoveInsideBranchPoisonsJoin(t *testing.T) {
	f := newFixture()
	f.val("t", ast.NoTypeExprID, ast.NoExprID, f.call("tensor.new", f.lit(4)))
	moved := f.b.NewStmt(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: f.b.Intern("u"),
		Value: f.ident("t"), Span: f.sp(),
	})
	cond := f.b.NewExpr(ast.Expr{Kind: ast.ExprLitBool, LitBool: true, Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtIf, Cond: cond, ThenBody: []ast.StmtID{moved}, Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: f.call("tensor.len", f.ident("t")), Span: f.sp()})

	bag, _ := f.check(t)
	require.Contains(t, strings.Join(messages(bag), "\n"), "use-after-consume: 't'")
}
