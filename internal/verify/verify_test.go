package verify

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/manifest"
	"aura/internal/sema"
	"aura/internal/solverworker"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/types"
)

// cannedSolver replays a fixed status sequence, then repeats the last
// entry; it records every script for assertions.
type cannedSolver struct {
	mu       sync.Mutex
	statuses []solverworker.Status
	model    map[string]string
	calls    int
	scripts  []string
}

func (f *cannedSolver) Discharge(_ context.Context, req solverworker.Request) (solverworker.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := solverworker.StatusUnsat
	if len(f.statuses) > 0 {
		if f.calls < len(f.statuses) {
			st = f.statuses[f.calls]
		} else {
			st = f.statuses[len(f.statuses)-1]
		}
	}
	f.calls++
	f.scripts = append(f.scripts, req.Script.Text)
	res := solverworker.Result{Status: st}
	if st == solverworker.StatusSat {
		res.Model = f.model
	}
	return res, nil
}

type harness struct {
	b    *ast.Builder
	file ast.FileID
	span uint32
}

func newHarness() *harness {
	b := ast.NewBuilder(ast.Hints{}, nil)
	return &harness{b: b, file: b.NewFile(source.Span{})}
}

func (h *harness) sp() source.Span {
	h.span += 10
	return source.Span{Start: h.span, End: h.span + 5}
}

func (h *harness) top(s ast.Stmt) ast.StmtID {
	id := h.b.NewStmt(s)
	h.b.PushStmt(h.file, id)
	return id
}

func (h *harness) lit(v uint64) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprLitU32, LitU32: v, Span: h.sp()})
}

func (h *harness) ident(name string) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprIdent, Name: h.b.Intern(name), Span: h.sp()})
}

func (h *harness) binary(op ast.BinaryOp, lhs, rhs ast.ExprID) ast.ExprID {
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprBinary, BinOp: op, LHS: lhs, RHS: rhs, Span: h.sp()})
}

func (h *harness) call(name string, args ...ast.ExprID) ast.ExprID {
	var callee ast.ExprID
	if ns, member, ok := strings.Cut(name, "."); ok {
		base := h.b.NewExpr(ast.Expr{Kind: ast.ExprIdent, Name: h.b.Intern(ns), Span: h.sp()})
		callee = h.b.NewExpr(ast.Expr{Kind: ast.ExprMember, Base: base, Name: h.b.Intern(member), Span: h.sp()})
	} else {
		callee = h.ident(name)
	}
	actuals := make([]ast.Arg, len(args))
	for i, a := range args {
		actuals[i] = ast.Arg{Value: a, Span: h.sp()}
	}
	return h.b.NewExpr(ast.Expr{Kind: ast.ExprCall, Callee: callee, Args: actuals, Span: h.sp()})
}

// run does sema then verification with the canned solver.
func (h *harness) run(t *testing.T, solver Discharger, profile manifest.Profile) ([]DefOutcome, *diag.Bag) {
	t.Helper()
	table := symbols.NewTable(symbols.Hints{}, h.b.Strings)
	in := types.NewInterner(h.b.Strings)
	// sema may legitimately flag the same defect the verifier cross-checks
	// (use-after-consume); these tests assert on the verifier's own bag
	semaBag := diag.NewBag(64)
	res := sema.Check(h.b, h.file, sema.Options{
		Reporter:         diag.BagReporter{Bag: semaBag},
		Table:            table,
		Types:            in,
		DeferRangeProofs: true,
	})

	sess := NewSession()
	bag := diag.NewBag(64)
	outs, err := sess.Run(context.Background(), h.b, h.file, &res, Options{
		Reporter:    diag.BagReporter{Bag: bag},
		Profile:     profile,
		Solver:      solver,
		Table:       table,
		Types:       in,
		Concurrency: 1,
	})
	require.NoError(t, err)
	return outs, bag
}

func allMessages(bag *diag.Bag) string {
	var sb strings.Builder
	for _, d := range bag.Items() {
		sb.WriteString(d.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestLoopInvariantSynthesizedFromWeakenedGuard(t *testing.T) {
	h := newHarness()
	// val mut i: u32 = 0
	h.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: h.b.Intern("i"), Mutable: true,
		ValType: h.b.NewType(ast.TypeExpr{Kind: ast.TypeExprU32}),
		Value:   h.lit(0), Span: h.sp(),
	})
	// while i < 10: i = i + 1
	assign := h.b.NewStmt(ast.Stmt{
		Kind: ast.StmtAssign, Target: h.ident("i"),
		RHS: h.binary(ast.BinaryAdd, h.ident("i"), h.lit(1)), Span: h.sp(),
	})
	h.top(ast.Stmt{
		Kind: ast.StmtWhile,
		Cond: h.binary(ast.BinaryLt, h.ident("i"), h.lit(10)),
		Body: []ast.StmtID{assign}, Span: h.sp(),
	})

	solver := &cannedSolver{}
	outs, bag := h.run(t, solver, manifest.ProfileCI)
	require.False(t, bag.HasErrors(), allMessages(bag))
	require.Len(t, outs, 1)
	require.True(t, outs[0].OK)
	require.Positive(t, solver.calls)
	// the weakened guard i <= 10 must have reached the solver
	require.Contains(t, strings.Join(solver.scripts, "\n"), "bvule")
}

func TestLoopInvariantSynthesisFailureListsTemplates(t *testing.T) {
	h := newHarness()
	h.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: h.b.Intern("i"), Mutable: true,
		ValType: h.b.NewType(ast.TypeExpr{Kind: ast.TypeExprU32}),
		Value:   h.lit(0), Span: h.sp(),
	})
	assign := h.b.NewStmt(ast.Stmt{
		Kind: ast.StmtAssign, Target: h.ident("i"),
		RHS: h.binary(ast.BinaryAdd, h.ident("i"), h.lit(1)), Span: h.sp(),
	})
	h.top(ast.Stmt{
		Kind: ast.StmtWhile,
		Cond: h.binary(ast.BinaryLt, h.ident("i"), h.lit(10)),
		Body: []ast.StmtID{assign}, Span: h.sp(),
	})

	solver := &cannedSolver{statuses: []solverworker.Status{solverworker.StatusSat}}
	_, bag := h.run(t, solver, manifest.ProfileCI)
	require.Contains(t, allMessages(bag), "cannot infer a loop invariant")
	var found *diag.Diagnostic
	items := bag.Items()
	for i := range items {
		if strings.Contains(items[i].Message, "cannot infer") {
			found = &items[i]
		}
	}
	require.NotNil(t, found)
	require.NotEmpty(t, found.Data.Meta.Suggestions)
}

func TestTensorBoundsCounterexample(t *testing.T) {
	h := newHarness()
	// cell f(t: Tensor<u32, [4]>) ->: tensor.get(t, 5)
	tensorTy := h.b.NewType(ast.TypeExpr{
		Kind: ast.TypeExprTensor,
		Elem: h.b.NewType(ast.TypeExpr{Kind: ast.TypeExprU32}),
		Dims: []ast.ShapeDim{{Size: 4}},
	})
	get := h.b.NewStmt(ast.Stmt{
		Kind: ast.StmtExprStmt,
		Expr: h.call("tensor.get", h.ident("t"), h.lit(5)), Span: h.sp(),
	})
	h.top(ast.Stmt{
		Kind: ast.StmtCellDef, Name: h.b.Intern("f"),
		Params: []ast.Param{{Name: h.b.Intern("t"), Type: tensorTy, Span: h.sp()}},
		Body:   []ast.StmtID{get}, Span: h.sp(),
	})

	solver := &cannedSolver{statuses: []solverworker.Status{solverworker.StatusSat}}
	outs, bag := h.run(t, solver, manifest.ProfileCI)
	require.Len(t, outs, 1)
	require.False(t, outs[0].OK)
	require.Contains(t, allMessages(bag), "tensor access may be out of bounds")

	var found *diag.Diagnostic
	items := bag.Items()
	for i := range items {
		if strings.Contains(items[i].Message, "out of bounds") {
			found = &items[i]
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, found.Data.Counterexample)
	require.Equal(t, "aura.counterexample.v1", found.Data.Counterexample.Schema)
	var idx *diag.CounterexampleBinding
	for i := range found.Data.Counterexample.Slice {
		if found.Data.Counterexample.Slice[i].Name == "idx" {
			idx = &found.Data.Counterexample.Slice[i]
		}
	}
	require.NotNil(t, idx)
	require.Equal(t, "5", idx.Value)
}

func TestUseAfterConsumeCrossCheck(t *testing.T) {
	h := newHarness()
	// val t = tensor.new(4); t ~> hw.sink(); tensor.len(t)
	h.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: h.b.Intern("t"),
		Value: h.call("tensor.new", h.lit(4)), Span: h.sp(),
	})
	flow := h.b.NewExpr(ast.Expr{
		Kind: ast.ExprFlow, Flow: ast.FlowAsync,
		LHS: h.ident("t"), RHS: h.call("hw.sink"), Span: h.sp(),
	})
	h.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: flow, Span: h.sp()})
	h.top(ast.Stmt{Kind: ast.StmtExprStmt, Expr: h.call("tensor.len", h.ident("t")), Span: h.sp()})

	solver := &cannedSolver{}
	_, bag := h.run(t, solver, manifest.ProfileCI)
	require.Contains(t, allMessages(bag), "use-after-consume: 't'")
	var found *diag.Diagnostic
	items := bag.Items()
	for i := range items {
		if strings.Contains(items[i].Message, "use-after-consume") {
			found = &items[i]
		}
	}
	require.NotNil(t, found)
	require.NotEmpty(t, found.Notes)
	require.Equal(t, "consumed here", found.Notes[0].Msg)
}

func TestQuantifierRefusedUnderFastProfile(t *testing.T) {
	h := newHarness()
	inner := h.binary(ast.BinaryGe, h.ident("k"), h.lit(0))
	quant := h.b.NewExpr(ast.Expr{
		Kind:  ast.ExprQuantifier,
		Quant: ast.QuantifierForall,
		Bindings: []ast.QuantBinding{{
			Name: h.b.Intern("k"),
			Sort: h.b.NewType(ast.TypeExpr{Kind: ast.TypeExprU32}),
		}},
		QuantInner: inner, Span: h.sp(),
	})
	h.top(ast.Stmt{Kind: ast.StmtAssert, Expr: quant, Span: h.sp()})

	solver := &cannedSolver{}
	_, bag := h.run(t, solver, manifest.ProfileFast)
	require.Contains(t, allMessages(bag), "quantifiers are disallowed")
	require.Zero(t, solver.calls, "refusal must happen before any SMT call")
}

func TestDeferredRangeProofFailure(t *testing.T) {
	h := newHarness()
	wide := h.b.NewType(ast.TypeExpr{Kind: ast.TypeExprRange, Lo: 0, Hi: 100})
	h.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: h.b.Intern("a"),
		ValType: wide, Value: h.lit(50), Span: h.sp(),
	})
	narrow := h.b.NewType(ast.TypeExpr{Kind: ast.TypeExprRange, Lo: 0, Hi: 10})
	h.top(ast.Stmt{
		Kind: ast.StmtStrandDef, Name: h.b.Intern("b"),
		ValType: narrow, Value: h.ident("a"), Span: h.sp(),
	})

	solver := &cannedSolver{
		statuses: []solverworker.Status{solverworker.StatusUnsat, solverworker.StatusSat},
		model:    map[string]string{"a!1": "#x00000032"},
	}
	_, bag := h.run(t, solver, manifest.ProfileCI)
	require.Contains(t, allMessages(bag), "value may be outside u32[0..10]")
}

func TestProofNotesCarryCoreAndSnippet(t *testing.T) {
	h := newHarness()
	h.top(ast.Stmt{
		Kind: ast.StmtAssert,
		Expr: h.binary(ast.BinaryGe, h.lit(5), h.lit(1)), Span: h.sp(),
	})

	solver := &cannedSolver{}
	outs, bag := h.run(t, solver, manifest.ProfileCI)
	require.False(t, bag.HasErrors())
	require.Len(t, outs, 1)
	require.NotEmpty(t, outs[0].Notes)
	require.Contains(t, outs[0].Notes[0].Message, "proved")
	require.Contains(t, outs[0].Notes[0].Snippet, "bvuge")
}
