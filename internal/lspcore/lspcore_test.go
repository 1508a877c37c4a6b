package lspcore

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/manifest"
	"aura/internal/proofcache"
	"aura/internal/solverworker"
	"aura/internal/source"
)

// lineParser is the test stand-in for the out-of-scope parser: every
// `cell NAME` line becomes a cell whose body asserts a trivial fact, so
// the z3 phase has one obligation per cell.
func lineParser(uri, text string) (*ast.Builder, ast.FileID, []diag.Diagnostic) {
	b := ast.NewBuilder(ast.Hints{}, nil)
	fileID := b.NewFile(source.Span{End: uint32(len(text))})
	offset := uint32(0)
	for _, line := range strings.Split(text, "\n") {
		lineSpan := source.Span{Start: offset, End: offset + uint32(len(line))}
		trimmed := strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(trimmed, "cell "); ok {
			name = strings.Fields(name)[0]
			one := b.NewExpr(ast.Expr{Kind: ast.ExprLitU32, LitU32: 1, Span: lineSpan})
			zero := b.NewExpr(ast.Expr{Kind: ast.ExprLitU32, LitU32: 0, Span: lineSpan})
			cmp := b.NewExpr(ast.Expr{Kind: ast.ExprBinary, BinOp: ast.BinaryGe, LHS: one, RHS: zero, Span: lineSpan})
			assert := b.NewStmt(ast.Stmt{Kind: ast.StmtAssert, Expr: cmp, Span: lineSpan})
			cell := b.NewStmt(ast.Stmt{
				Kind: ast.StmtCellDef, Name: b.Intern(name),
				Body: []ast.StmtID{assert}, Span: lineSpan,
			})
			b.PushStmt(fileID, cell)
		}
		offset += uint32(len(line)) + 1
	}
	return b, fileID, nil
}

type unsatSolver struct{}

func (unsatSolver) Discharge(context.Context, solverworker.Request) (solverworker.Result, error) {
	return solverworker.Result{Status: solverworker.StatusUnsat}, nil
}

type blockingSolver struct{}

func (blockingSolver) Discharge(ctx context.Context, _ solverworker.Request) (solverworker.Result, error) {
	<-ctx.Done()
	return solverworker.Result{}, ctx.Err()
}

type chanNotifier struct{ ch chan StreamEvent }

func (n chanNotifier) Notify(ev StreamEvent) { n.ch <- ev }

func newOrchestrator(t *testing.T, solver interface {
	Discharge(context.Context, solverworker.Request) (solverworker.Result, error)
}, notifier Notifier, phases []string) *Orchestrator {
	t.Helper()
	cache, err := proofcache.Open(proofcache.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	return New(Options{
		Manifest:         manifest.Default(),
		Solver:           solver,
		Cache:            cache,
		Parse:            lineParser,
		Notifier:         notifier,
		PhaseAllowList:   phases,
		TelemetryTimings: true,
		TelemetryCache:   true,
	})
}

// runStream starts a stream and collects events until a terminal state.
func runStream(t *testing.T, o *Orchestrator, params StreamParams) []StreamEvent {
	t.Helper()
	ch := make(chan StreamEvent, 64)
	o.opts.Notifier = chanNotifier{ch}
	o.StreamStart(context.Background(), params)
	var events []StreamEvent
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev := <-ch:
			events = append(events, ev)
			if ev.State == StateDone || ev.State == StateCancelled || ev.State == StateError {
				return events
			}
		case <-deadline:
			t.Fatalf("stream did not finish; got %v", events)
		}
	}
}

const threeCells = `cell alpha // body A
cell beta // body B
cell gamma // body C`

func TestPhaseNotificationsArriveInOrder(t *testing.T) {
	o := newOrchestrator(t, unsatSolver{}, nil, nil)
	events := runStream(t, o, StreamParams{URI: "file:///a.aura", Text: threeCells})

	var states []string
	for _, ev := range events {
		if ev.State == StatePhase {
			states = append(states, ev.Phase)
		} else {
			states = append(states, ev.State)
		}
	}
	require.Equal(t, []string{"start", "parse", "sema", "normalize", "z3", "done"}, states)
}

func TestCommentEditReusesStmtCache(t *testing.T) {
	o := newOrchestrator(t, unsatSolver{}, nil, nil)

	events := runStream(t, o, StreamParams{URI: "file:///a.aura", Text: threeCells})
	done := events[len(events)-1]
	require.NotNil(t, done.Telemetry)
	require.Equal(t, 3, done.Telemetry.StmtMisses)
	require.False(t, done.Telemetry.FullHit)

	// editing only a comment inside cell beta keeps every stmt merkle
	edited := strings.Replace(threeCells, "// body B", "// body B changed", 1)
	events = runStream(t, o, StreamParams{URI: "file:///a.aura", Text: edited})
	done = events[len(events)-1]
	require.NotNil(t, done.Telemetry)
	require.Equal(t, 3, done.Telemetry.StmtHits)
	require.Equal(t, 0, done.Telemetry.StmtMisses)
	require.False(t, done.Telemetry.FullHit)
}

func TestUnchangedRerunIsFullHit(t *testing.T) {
	o := newOrchestrator(t, unsatSolver{}, nil, nil)

	first := runStream(t, o, StreamParams{URI: "file:///a.aura", Text: threeCells})
	second := runStream(t, o, StreamParams{URI: "file:///a.aura", Text: threeCells})

	firstDone := first[len(first)-1]
	secondDone := second[len(second)-1]
	require.True(t, secondDone.Telemetry.FullHit)
	require.Equal(t, len(firstDone.Diagnostics), len(secondDone.Diagnostics))
	// a full hit answers without entering any phase
	require.Len(t, second, 2) // start, done
	for phase, ms := range secondDone.Telemetry.Timings {
		require.Zero(t, ms, "phase %s should report zero on a full hit", phase)
	}
}

func TestAffectedScopeReverifiesOnlyOverlapping(t *testing.T) {
	o := newOrchestrator(t, unsatSolver{}, nil, nil)
	runStream(t, o, StreamParams{URI: "file:///a.aura", Text: threeCells})

	// beta's line overlaps the supplied range; alpha and gamma reuse
	betaStart := uint32(strings.Index(threeCells, "cell beta"))
	events := runStream(t, o, StreamParams{
		URI: "file:///a.aura", Text: threeCells,
		Scope:  "affected",
		Ranges: []Range{{Start: betaStart, End: betaStart + 4}},
	})
	done := events[len(events)-1]
	require.Equal(t, 2, done.Telemetry.StmtHits)
	require.Equal(t, 1, done.Telemetry.StmtMisses)
}

func TestCancelEmitsCancelled(t *testing.T) {
	o := newOrchestrator(t, blockingSolver{}, nil, nil)
	ch := make(chan StreamEvent, 64)
	o.opts.Notifier = chanNotifier{ch}
	id := o.StreamStart(context.Background(), StreamParams{URI: "file:///a.aura", Text: threeCells})

	// wait until the pipeline is inside the z3 phase, then cancel
	deadline := time.After(10 * time.Second)
	for {
		var ev StreamEvent
		select {
		case ev = <-ch:
		case <-deadline:
			t.Fatal("never reached z3 phase")
		}
		if ev.State == StatePhase && ev.Phase == PhaseZ3 {
			break
		}
	}
	require.True(t, o.Cancel(id))
	for {
		var ev StreamEvent
		select {
		case ev = <-ch:
		case <-deadline:
			t.Fatal("never saw terminal state")
		}
		if ev.State == StateCancelled {
			require.Equal(t, "file:///a.aura", ev.URI)
			return
		}
		require.NotEqual(t, StateDone, ev.State)
	}
}

func TestPhaseAllowListSuppressesPhases(t *testing.T) {
	o := newOrchestrator(t, unsatSolver{}, nil, []string{PhaseZ3})
	events := runStream(t, o, StreamParams{URI: "file:///a.aura", Text: threeCells})
	for _, ev := range events {
		if ev.State == StatePhase {
			require.Equal(t, PhaseZ3, ev.Phase)
		}
	}
}

func TestInjectionHintsMapToNearestOccurrence(t *testing.T) {
	text := "val n = 7\nassert n > 8\n"
	assertPos := uint32(strings.Index(text, "n > 8"))
	diags := []diag.Diagnostic{{
		Severity: diag.SevError,
		Code:     diag.VerifyError,
		Message:  "assertion may fail",
		Primary:  source.Span{Start: assertPos, End: assertPos + 5},
		Data: diag.Data{
			Counterexample: &diag.Counterexample{
				Schema: "aura.counterexample.v1",
				Slice:  []diag.CounterexampleBinding{{Name: "n", Value: "7", AuraType: "u32"}},
			},
		},
	}}
	mapCounterexamples(text, diags)
	require.True(t, diags[0].Data.Counterexample.Mapped)
	require.Len(t, diags[0].Data.Meta.Hints, 1)
	require.Contains(t, diags[0].Data.Meta.Hints[0], "/* n = 7 */")
	// the occurrence inside the failing assert wins over the binding site
	require.True(t, strings.HasPrefix(diags[0].Data.Meta.Hints[0], "18:"),
		"hint %q should anchor inside the assert", diags[0].Data.Meta.Hints[0])
}
