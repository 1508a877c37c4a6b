package avm

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"aura/internal/ast"
	"aura/internal/avmdebug"
	"aura/internal/avmprof"
	"aura/internal/diag"
	"aura/internal/source"
)

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

func (f *fixture) str(s string) ast.ExprID {
	return f.b.NewExpr(ast.Expr{Kind: ast.ExprLitString, LitString: s, Span: f.sp()})
}

func (f *fixture) ident(name string) ast.ExprID {
	return f.b.NewExpr(ast.Expr{Kind: ast.ExprIdent, Name: f.b.Intern(name), Span: f.sp()})
}

func (f *fixture) binary(op ast.BinaryOp, lhs, rhs ast.ExprID) ast.ExprID {
	return f.b.NewExpr(ast.Expr{Kind: ast.ExprBinary, BinOp: op, LHS: lhs, RHS: rhs, Span: f.sp()})
}

func (f *fixture) call(name string, args ...ast.ExprID) ast.ExprID {
	var callee ast.ExprID
	if ns, member, ok := strings.Cut(name, "."); ok {
		base := f.b.NewExpr(ast.Expr{Kind: ast.ExprIdent, Name: f.b.Intern(ns), Span: f.sp()})
		callee = f.b.NewExpr(ast.Expr{Kind: ast.ExprMember, Base: base, Name: f.b.Intern(member), Span: f.sp()})
	} else {
		callee = f.ident(name)
	}
	actuals := make([]ast.Arg, len(args))
	for k, a := range args {
		actuals[k] = ast.Arg{Value: a, Span: f.sp()}
	}
	return f.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: callee, Args: actuals, Span: f.sp()})
}

type allowGate struct{}

func (allowGate) Admit(context.Context, *ast.Builder, ast.FileID, string) GateResult {
	return GateResult{Verified: true}
}

type denyGate struct{ diags []diag.Diagnostic }

func (g denyGate) Admit(context.Context, *ast.Builder, ast.FileID, string) GateResult {
	return GateResult{Verified: false, Diags: g.diags}
}

func (f *fixture) interp(opts Options) *Interp {
	if opts.Gate == nil {
		opts.Gate = allowGate{}
	}
	return New(f.b, f.file, opts)
}

func TestArithmeticAndAssignment(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("i"), Mutable: true, Value: f.lit(0), Span: f.sp()})
	assign := f.b.NewStmt(ast.Stmt{
		Kind: ast.StmtAssign, Target: f.ident("i"),
		RHS: f.binary(ast.BinaryAdd, f.ident("i"), f.lit(1)), Span: f.sp(),
	})
	f.top(ast.Stmt{
		Kind: ast.StmtWhile,
		Cond: f.binary(ast.BinaryLt, f.ident("i"), f.lit(10)),
		Body: []ast.StmtID{assign}, Span: f.sp(),
	})
	f.top(ast.Stmt{
		Kind: ast.StmtAssert,
		Expr: f.binary(ast.BinaryEq, f.ident("i"), f.lit(10)), Span: f.sp(),
	})

	i := f.interp(Options{})
	require.NoError(t, i.Run(context.Background()))
	s, ok := i.lookup("i")
	require.True(t, ok)
	require.Equal(t, uint64(10), s.val.Int)
}

func TestU32Wraparound(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: f.b.Intern("x"),
		Value: f.binary(ast.BinaryAdd, f.lit(1<<32-1), f.lit(1)), Span: f.sp(),
	})
	i := f.interp(Options{})
	require.NoError(t, i.Run(context.Background()))
	s, _ := i.lookup("x")
	require.Equal(t, uint64(0), s.val.Int)
}

func TestStringInterpolation(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("name"), Value: f.str("aura"), Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("msg"), Value: f.str("hello {name}!"), Span: f.sp()})

	i := f.interp(Options{})
	require.NoError(t, i.Run(context.Background()))
	s, _ := i.lookup("msg")
	require.Equal(t, "hello aura!", s.val.Str)
}

func TestRejectedProgramDoesNotExecute(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("x"), Value: f.lit(1), Span: f.sp()})

	want := diag.Diagnostic{Severity: diag.SevError, Code: diag.VerifyError, Message: "assertion may fail"}
	i := f.interp(Options{Gate: denyGate{diags: []diag.Diagnostic{want}}})
	err := i.Run(context.Background())
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Len(t, rejected.Diags, 1)
	require.Equal(t, "assertion may fail", rejected.Diags[0].Message)
	_, ok := i.lookup("x")
	require.False(t, ok, "no statement may execute in a rejected program")
}

func TestTensorBuiltins(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("t"), Value: f.call("tensor.new", f.lit(4)), Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: f.call("tensor.set", f.ident("t"), f.lit(2), f.lit(99)), Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("v"), Value: f.call("tensor.get", f.ident("t"), f.lit(2)), Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("n"), Value: f.call("tensor.len", f.ident("t")), Span: f.sp()})

	i := f.interp(Options{})
	require.NoError(t, i.Run(context.Background()))
	v, _ := i.lookup("v")
	require.Equal(t, uint64(99), v.val.Int)
	n, _ := i.lookup("n")
	require.Equal(t, uint64(4), n.val.Int)
}

func TestMatchLiteralAndWildcard(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("x"), Value: f.lit(2), Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("out"), Mutable: true, Value: f.lit(0), Span: f.sp()})
	mk := func(v uint64) []ast.StmtID {
		return []ast.StmtID{f.b.NewStmt(ast.Stmt{
			Kind: ast.StmtAssign, Target: f.ident("out"), RHS: f.lit(v), Span: f.sp(),
		})}
	}
	arm1 := f.b.NewArm(ast.Arm{Pattern: f.b.NewPattern(ast.Pattern{Kind: ast.PatternLitU32, LitU32: 1}), Body: mk(10)})
	arm2 := f.b.NewArm(ast.Arm{Pattern: f.b.NewPattern(ast.Pattern{Kind: ast.PatternLitU32, LitU32: 2}), Body: mk(20)})
	wild := f.b.NewArm(ast.Arm{Pattern: f.b.NewPattern(ast.Pattern{Kind: ast.PatternWildcard}), Body: mk(99)})
	f.top(ast.Stmt{Kind: ast.StmtMatch, Scrutinee: f.ident("x"), Arms: []ast.ArmID{arm1, arm2, wild}, Span: f.sp()})

	i := f.interp(Options{})
	require.NoError(t, i.Run(context.Background()))
	out, _ := i.lookup("out")
	require.Equal(t, uint64(20), out.val.Int)
}

func TestCellCallWithEntry(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("ready"), Value: f.lit(1), Span: f.sp()})
	body := f.b.NewStmt(ast.Stmt{
		Kind: ast.StmtAssert,
		Expr: f.binary(ast.BinaryEq, f.ident("ready"), f.lit(1)), Span: f.sp(),
	})
	f.top(ast.Stmt{Kind: ast.StmtCellDef, Name: f.b.Intern("main"), Body: []ast.StmtID{body}, Span: f.sp()})

	i := f.interp(Options{})
	require.NoError(t, i.RunEntry(context.Background(), "main"))
}

// frameCountPlugin closes after a fixed number of frames, clicking the
// first callback once.
type frameCountPlugin struct {
	frames  int
	clicked bool
	seen    []*UiNode
}

func (p *frameCountPlugin) SubmitFrame(root *UiNode) (Feedback, error) {
	p.frames++
	p.seen = append(p.seen, root)
	fb := Feedback{ClickedCallback: -1}
	if !p.clicked {
		p.clicked = true
		fb.ClickedCallback = 0
		return fb, nil
	}
	fb.CloseRequested = true
	return fb, nil
}

func (p *frameCountPlugin) Close() {}

func TestUILoopRebuildsAndDispatchesCallback(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("clicks"), Mutable: true, Value: f.lit(0), Span: f.sp()})

	inc := f.b.NewStmt(ast.Stmt{
		Kind: ast.StmtAssign, Target: f.ident("clicks"),
		RHS: f.binary(ast.BinaryAdd, f.ident("clicks"), f.lit(1)), Span: f.sp(),
	})
	button := f.b.NewExpr(ast.Expr{
		Kind:          ast.ExprCall,
		Callee:        f.ident("button"),
		Args:          []ast.Arg{{Value: f.str("more")}},
		TrailingBlock: []ast.StmtID{inc},
		Span:          f.sp(),
	})
	show := f.b.NewStmt(ast.Stmt{Kind: ast.StmtExprStmt, Expr: button, Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtLayout, Name: f.b.Intern("root"), Body: []ast.StmtID{show}, Span: f.sp()})

	plugin := &frameCountPlugin{}
	i := f.interp(Options{UI: plugin})
	require.NoError(t, i.Run(context.Background()))
	require.Equal(t, 2, plugin.frames)
	clicks, _ := i.lookup("clicks")
	require.Equal(t, uint64(1), clicks.val.Int)
	require.Len(t, plugin.seen[0].Children, 1)
	require.Equal(t, "button", plugin.seen[0].Children[0].Kind)
	require.Equal(t, "more", plugin.seen[0].Children[0].Text)
}

func TestDebugProtocolHandshake(t *testing.T) {
	f := newFixture()
	// statement on "line 2" of the synthetic source below
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("a"), Value: f.lit(1), Span: source.Span{Start: 0, End: 9}})
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("b"), Value: f.lit(2), Span: source.Span{Start: 10, End: 19}})

	var out bytes.Buffer
	sess := avmdebug.NewSession(strings.NewReader(""), &out)
	sess.Enable(false, false)

	i := f.interp(Options{
		Source:     "val a = 1\nval b = 2\n",
		SourceName: "test.aura",
		Debug:      sess,
	})
	require.NoError(t, i.Run(context.Background()))
	require.Contains(t, out.String(), avmdebug.EventPrefix)
	require.Contains(t, out.String(), `"Hello"`)
	require.Contains(t, out.String(), `"Terminated"`)
}

func TestPerfTimelineAccumulates(t *testing.T) {
	f := newFixture()
	f.top(ast.Stmt{Kind: ast.StmtStrandDef, Name: f.b.Intern("t"), Value: f.call("tensor.new", f.lit(4)), Span: f.sp()})
	f.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: f.call("tensor.len", f.ident("t")), Span: f.sp()})

	tl := avmprof.NewTimeline()
	i := f.interp(Options{Prof: tl})
	require.NoError(t, i.Run(context.Background()))
	samples := tl.Samples()
	require.NotEmpty(t, samples)
	flame := tl.FoldedFlame()
	require.Contains(t, flame, "tensor.new")
	require.Contains(t, flame, "tensor.len")
}
