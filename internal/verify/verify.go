// Package verify implements the verification engine: a symbolic executor
// that walks the admitted AST per top-level definition, lowers proof
// goals to SMT obligations, synthesizes loop invariants when none is
// written, and reports either proof notes or span-accurate failures with
// model-based counterexamples.
//
// Independent definitions fan out through a bounded semaphore joined by
// an errgroup; the solver itself stays a single message-loop worker, so
// obligations from concurrent definitions serialize at the channel.
package verify

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/manifest"
	"aura/internal/sema"
	"aura/internal/solverworker"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/symstate"
	"aura/internal/types"
)

// Discharger abstracts the background SMT worker so tests can substitute
// a canned solver.
type Discharger interface {
	Discharge(ctx context.Context, req solverworker.Request) (solverworker.Result, error)
}

// Options configure one verification pass.
type Options struct {
	Reporter    diag.Reporter
	Profile     manifest.Profile
	Solver      Discharger
	Table       *symbols.Table
	Types       *types.Interner
	Plugins     []Plugin
	Concurrency int
	// DefFilter limits verification to definitions it accepts; nil means
	// verify everything. The orchestrator's scoped re-verification passes
	// a span-overlap filter here.
	DefFilter func(ast.StmtID) bool
}

// ProofNote records one successfully discharged obligation: its span, a
// human message, the best-available SMT snippet, the UNSAT core, and an
// optional derived lemma.
type ProofNote struct {
	Span    source.Span
	Message string
	Snippet string
	Core    []string
	Lemma   string
}

// DefOutcome is the per-definition verification result, accumulated
// deterministically by source index before anything is reported.
type DefOutcome struct {
	Stmt  ast.StmtID
	Name  string
	Notes []ProofNote
	Diags []diag.Diagnostic
	OK    bool
}

// Session carries state that outlives a single Run: the in-memory
// interpolant cache consulted as the first invariant-synthesis candidate
// when the same loop is re-verified in the same process.
type Session struct {
	mu     sync.Mutex
	lemmas map[string]symstate.Term
}

// NewSession creates an empty verifier session.
func NewSession() *Session {
	return &Session{lemmas: make(map[string]symstate.Term)}
}

func (s *Session) lemmaFor(key string) (symstate.Term, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lemmas[key]
	return t, ok
}

func (s *Session) storeLemma(key string, t symstate.Term) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lemmas[key] = t
}

// unit is one verification scope: a cell/flow/layout/render, or the
// implicit script unit covering loose top-level statements.
type unit struct {
	stmt  ast.StmtID // invalid for the script unit
	name  string
	body  []ast.StmtID
	param []symbols.SymbolID
	span  source.Span
}

// Run verifies every admitted top-level definition of file and returns
// outcomes in source order. Diagnostics are additionally pushed through
// opts.Reporter in the same order.
func (s *Session) Run(ctx context.Context, b *ast.Builder, fileID ast.FileID, res *sema.Result, opts Options) ([]DefOutcome, error) {
	file := b.Files.Get(fileID)
	if file == nil {
		return nil, fmt.Errorf("verify: invalid file")
	}
	units := collectUnits(b, res, opts.Table, file.Stmts, opts.DefFilter)

	conc := opts.Concurrency
	if conc <= 0 {
		conc = runtime.NumCPU()
	}
	sem := semaphore.NewWeighted(int64(conc))
	outcomes := make([]DefOutcome, len(units))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			outcomes[i] = s.runUnit(gctx, b, res, &opts, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.Reporter != nil {
		for _, out := range outcomes {
			for _, d := range out.Diags {
				if br, ok := opts.Reporter.(diag.BagReporter); ok && br.Bag != nil {
					// a bag takes the whole record, Data payload included
					br.Bag.Add(d)
					continue
				}
				opts.Reporter.Report(d.Code, d.Severity, d.Primary, d.Message, d.Notes, d.Fixes)
			}
		}
	}
	return outcomes, nil
}

// collectUnits splits top-level statements into verification units.
// Loose statements (vals, flows, control flow written at file scope)
// form a single script unit so sequencing effects like a top-level move
// stay visible across statements.
func collectUnits(b *ast.Builder, res *sema.Result, table *symbols.Table, stmts []ast.StmtID, filter func(ast.StmtID) bool) []unit {
	var units []unit
	var script unit
	script.name = "(top-level)"
	for _, id := range stmts {
		st := b.Stmts.Get(id)
		if st == nil {
			continue
		}
		switch st.Kind {
		case ast.StmtCellDef:
			u := unit{stmt: id, name: b.String(st.Name), body: st.Body, span: st.Span}
			if table != nil {
				if sym, ok := table.Lookup(res.FileScope, st.Name); ok {
					if sig := table.Symbols.Get(sym).Signature; sig != nil {
						u.param = sig.Params
					}
				}
			}
			units = append(units, u)
		case ast.StmtFlowBlock, ast.StmtLayout, ast.StmtRender:
			name := "(flow)"
			if st.Name != source.NoStringID {
				name = b.String(st.Name)
			}
			units = append(units, unit{stmt: id, name: name, body: st.Body, span: st.Span})
		case ast.StmtImport, ast.StmtTypeAlias, ast.StmtTraitDef,
			ast.StmtRecordDef, ast.StmtEnumDef, ast.StmtExternCell:
			// declaration-only, nothing to prove
		default:
			script.body = append(script.body, id)
			script.span = script.span.Cover(st.Span)
		}
	}
	if len(script.body) > 0 {
		units = append(units, script)
	}
	if filter == nil {
		return units
	}
	kept := units[:0]
	for _, u := range units {
		if !u.stmt.IsValid() || filter(u.stmt) {
			kept = append(kept, u)
		}
	}
	return kept
}

// runUnit symbolically executes one unit, converting a panic anywhere in
// the walk into an internal-error diagnostic so a malformed AST can never
// take the whole pass down.
func (s *Session) runUnit(ctx context.Context, b *ast.Builder, res *sema.Result, opts *Options, u unit) (out DefOutcome) {
	out = DefOutcome{Stmt: u.stmt, Name: u.name, OK: true}
	defer func() {
		if r := recover(); r != nil {
			out.OK = false
			out.Diags = append(out.Diags, diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.InternalError,
				Message:  fmt.Sprintf("verifier panic in '%s': %v", u.name, r),
				Primary:  u.span,
				Data:     diag.Data{StableCode: diag.InternalError.ID()},
			})
		}
	}()

	e := newExecutor(ctx, s, b, res, opts, u)
	for _, pid := range u.param {
		e.bindParam(pid)
	}
	e.execStmts(u.body)

	out.Notes = e.notes
	out.Diags = e.diags
	out.OK = !e.failed
	return out
}
