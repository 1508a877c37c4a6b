// Package lspcore implements the incremental proof orchestrator: the
// phased verification pipeline behind the aura/proofs*
// LSP methods, with streamed progress notifications, cancellation, a
// Merkle-keyed proof cache, and counterexample-to-source mapping. The
// JSON-RPC transport itself lives in internal/lsp; this package is
// wire-format-free apart from the notification payload shapes.
package lspcore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/manifest"
	"aura/internal/observ"
	"aura/internal/project"
	"aura/internal/proofcache"
	"aura/internal/sema"
	"aura/internal/symbols"
	"aura/internal/types"
	"aura/internal/verify"
)

// Phase names in pipeline order.
const (
	PhaseParse     = "parse"
	PhaseSema      = "sema"
	PhaseNormalize = "normalize"
	PhaseZ3        = "z3"
)

// States of a proof stream.
const (
	StateStart     = "start"
	StatePhase     = "phase"
	StateDone      = "done"
	StateCancelled = "cancelled"
	StateError     = "error"
)

// StreamEvent is one aura/proofsStream notification payload.
type StreamEvent struct {
	ID          string            `json:"id"`
	URI         string            `json:"uri"`
	State       string            `json:"state"`
	Phase       string            `json:"phase,omitempty"`
	Diagnostics []diag.Diagnostic `json:"-"`
	Telemetry   *Telemetry        `json:"telemetry,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Telemetry is the opt-in done-event payload: cache effectiveness plus
// per-phase timings in milliseconds.
type Telemetry struct {
	FullHit    bool               `json:"fullHit"`
	StmtHits   int                `json:"stmtHits"`
	StmtMisses int                `json:"stmtMisses"`
	Timings    map[string]float64 `json:"timings,omitempty"`
}

// Notifier receives stream events; the LSP server forwards them as
// aura/proofsStream notifications. Events for one id arrive in order.
type Notifier interface {
	Notify(ev StreamEvent)
}

// ParseFunc stands in for the out-of-scope concrete-syntax parser: it
// turns document text into the admitted AST, reporting parse errors as
// diagnostics (code AUR-P-0001).
type ParseFunc func(uri, text string) (*ast.Builder, ast.FileID, []diag.Diagnostic)

// Range is a byte-offset range supplied with an "affected"-scope request.
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// StreamParams are the aura/proofsStreamStart inputs.
type StreamParams struct {
	URI     string
	Text    string
	Profile manifest.Profile // zero value falls back to the manifest's
	Scope   string           // "full" (default) or "affected"
	Ranges  []Range
}

// Options configure an Orchestrator.
type Options struct {
	Manifest      manifest.Manifest
	WorkspaceRoot string
	Solver        verify.Discharger
	Cache         *proofcache.Store
	Parse         ParseFunc
	Notifier      Notifier
	Plugins       []verify.Plugin
	// PhaseAllowList restricts which phase notifications are emitted;
	// nil permits all (the client's experimental.aura negotiation).
	PhaseAllowList []string
	// Telemetry opt-ins advertised by the client.
	TelemetryTimings bool
	TelemetryCache   bool
}

// Orchestrator owns stream lifecycles: an outbound id → (uri, cancel)
// map, dropped on done/cancelled/error.
type Orchestrator struct {
	opts Options
	sess *verify.Session

	mu      sync.Mutex
	streams map[string]*streamHandle
}

type streamHandle struct {
	uri    string
	cancel context.CancelFunc
}

// New creates an Orchestrator sharing one verifier session (and so one
// derived-lemma cache) across requests.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		opts:    opts,
		sess:    verify.NewSession(),
		streams: make(map[string]*streamHandle),
	}
}

// StreamStart launches the phased pipeline for params and returns the
// stream id immediately; progress arrives through the notifier.
func (o *Orchestrator) StreamStart(ctx context.Context, params StreamParams) string {
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.streams[id] = &streamHandle{uri: params.URI, cancel: cancel}
	o.mu.Unlock()

	go o.run(runCtx, id, params)
	return id
}

// Cancel aborts a running stream; the stream emits `cancelled` with the
// uri remembered at start time.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	h, ok := o.streams[id]
	o.mu.Unlock()
	if !ok {
		return false
	}
	h.cancel()
	return true
}

// Proofs is the synchronous aura/proofs entry point: a full-scope run
// with no streaming, returning the final diagnostics.
func (o *Orchestrator) Proofs(ctx context.Context, uri, text string) []diag.Diagnostic {
	res := o.pipeline(ctx, StreamParams{URI: uri, Text: text}, func(StreamEvent) {})
	return res.diags
}

// ClearCache serves aura/proofCacheClear: uri-scoped when the uri's base
// key is derivable, global otherwise.
func (o *Orchestrator) ClearCache(uri string) {
	if o.opts.Cache == nil {
		return
	}
	if uri == "" {
		o.opts.Cache.Clear(nil)
		return
	}
	base := o.baseKey(uri, o.opts.Manifest.Profile)
	o.opts.Cache.Clear(&base)
}

func (o *Orchestrator) phaseAllowed(phase string) bool {
	if o.opts.PhaseAllowList == nil {
		return true
	}
	for _, p := range o.opts.PhaseAllowList {
		if p == phase {
			return true
		}
	}
	return false
}

func (o *Orchestrator) drop(id string) {
	o.mu.Lock()
	if h, ok := o.streams[id]; ok {
		h.cancel()
		delete(o.streams, id)
	}
	o.mu.Unlock()
}

type pipelineResult struct {
	diags     []diag.Diagnostic
	telemetry *Telemetry
	err       error
}

// run drives one stream to completion, emitting ordered notifications.
func (o *Orchestrator) run(ctx context.Context, id string, params StreamParams) {
	defer o.drop(id)
	emit := func(ev StreamEvent) {
		ev.ID = id
		ev.URI = params.URI
		if ev.State == StatePhase && !o.phaseAllowed(ev.Phase) {
			return
		}
		if o.opts.Notifier != nil {
			o.opts.Notifier.Notify(ev)
		}
	}

	emit(StreamEvent{State: StateStart})
	res := o.pipeline(ctx, params, emit)
	switch {
	case ctx.Err() != nil:
		emit(StreamEvent{State: StateCancelled})
	case res.err != nil:
		emit(StreamEvent{State: StateError, Error: res.err.Error()})
	default:
		emit(StreamEvent{State: StateDone, Diagnostics: res.diags, Telemetry: res.telemetry})
	}
}

// baseKey partitions the cache by file identity (the URI, not the
// content — content hashes key the entries inside a partition), manifest,
// plug-in set, and solver configuration.
func (o *Orchestrator) baseKey(uri string, profile manifest.Profile) project.Digest {
	fileHash := project.HashString(uri)
	manifestHash := project.HashString(fmt.Sprintf("%+v", o.opts.Manifest))
	var pluginNames string
	for _, p := range o.opts.Plugins {
		pluginNames += p.Name() + ";"
	}
	pluginsHash := project.HashString(pluginNames)
	solverHash := project.HashString(fmt.Sprintf("%+v|%s", o.opts.Manifest.Solver, profile))
	return proofcache.BaseKey(fileHash, manifestHash, pluginsHash, solverHash)
}

func (o *Orchestrator) profileOf(params StreamParams) manifest.Profile {
	if params.Profile.Valid() {
		return params.Profile
	}
	return o.opts.Manifest.Profile
}

// pipeline is the shared phase sequence behind both the synchronous and
// streaming entry points. Emissions happen between phases; any panic is
// caught into an AUR-I-9000 diagnostic spanning the whole document.
func (o *Orchestrator) pipeline(ctx context.Context, params StreamParams, emit func(StreamEvent)) (res pipelineResult) {
	defer func() {
		if r := recover(); r != nil {
			d := diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.InternalError,
				Message:  fmt.Sprintf("internal error: %v", r),
				Data:     diag.Data{StableCode: diag.InternalError.ID()},
			}
			d.Primary.End = uint32(len(params.Text))
			res.diags = append(res.diags, d)
			res.err = nil
		}
	}()

	timer := observ.NewTimer()
	fileHash := project.HashString(params.Text)
	base := o.baseKey(params.URI, o.profileOf(params))
	fullScope := params.Scope == "" || params.Scope == "full"

	// whole-file warm start: a full-scope re-run of unchanged text
	// answers entirely from cache with zeroed timings
	if fullScope && o.opts.Cache != nil {
		if verdict, ok := o.opts.Cache.FullHit(base, fileHash); ok {
			res.diags = verdict.Diags
			res.telemetry = o.telemetry(&Telemetry{FullHit: true}, zeroTimings())
			return res
		}
	}

	// parse
	timer.Begin(PhaseParse)
	emit(StreamEvent{State: StatePhase, Phase: PhaseParse})
	if o.opts.Parse == nil {
		res.err = fmt.Errorf("no parser wired")
		return res
	}
	builder, fileID, parseDiags := o.opts.Parse(params.URI, params.Text)
	timer.End(PhaseParse, "")
	res.diags = append(res.diags, parseDiags...)
	if builder == nil || !fileID.IsValid() || hasErrors(parseDiags) {
		return res
	}
	if ctx.Err() != nil {
		return res
	}

	// sema
	timer.Begin(PhaseSema)
	emit(StreamEvent{State: StatePhase, Phase: PhaseSema})
	table := symbols.NewTable(symbols.Hints{}, builder.Strings)
	interner := types.NewInterner(builder.Strings)
	semaBag := diag.NewBag(256)
	semaRes := sema.Check(builder, fileID, sema.Options{
		Reporter:         diag.NewDedupReporter(diag.BagReporter{Bag: semaBag}),
		Table:            table,
		Types:            interner,
		DeferRangeProofs: true,
	})
	timer.End(PhaseSema, "")
	res.diags = append(res.diags, semaBag.Items()...)
	if ctx.Err() != nil {
		return res
	}
	semaFailed := semaBag.HasErrors()

	// normalize
	timer.Begin(PhaseNormalize)
	emit(StreamEvent{State: StatePhase, Phase: PhaseNormalize})
	_ = verify.Normalize(&semaRes, interner)
	timer.End(PhaseNormalize, "")
	if ctx.Err() != nil {
		return res
	}

	// z3: walk definitions one at a time, reusing stmt_merkle-keyed
	// verdicts for units untouched by the affected ranges
	timer.Begin(PhaseZ3)
	emit(StreamEvent{State: StatePhase, Phase: PhaseZ3})
	tel := &Telemetry{}
	if !semaFailed {
		verifyDiags := o.verifyPhase(ctx, params, builder, fileID, &semaRes, table, interner, base, tel)
		res.diags = append(res.diags, verifyDiags...)
		res.diags = append(res.diags, o.uiChecks(params, builder, fileID, base, fileHash)...)
	}
	timer.End(PhaseZ3, "")
	timer.Cache(PhaseZ3, tel.StmtHits, tel.StmtMisses)
	if ctx.Err() != nil {
		return res
	}

	mapCounterexamples(params.Text, res.diags)
	sortRelated(res.diags)

	if fullScope && o.opts.Cache != nil && !semaFailed {
		o.opts.Cache.PutFull(base, fileHash, proofcache.FullVerdict{
			Verified: !hasErrors(res.diags),
			Diags:    res.diags,
		})
		// best-effort, non-blocking persistence after a successful phase
		go func() { _ = o.opts.Cache.Persist() }()
	}

	res.telemetry = o.telemetry(tel, timer.Millis())
	return res
}

// verifyPhase runs scoped verification: cached definitions replay their
// diagnostics, affected ones re-verify, and fresh verdicts for clean
// definitions enter the cache.
func (o *Orchestrator) verifyPhase(ctx context.Context, params StreamParams, builder *ast.Builder, fileID ast.FileID, semaRes *sema.Result, table *symbols.Table, interner *types.Interner, base project.Digest, tel *Telemetry) []diag.Diagnostic {
	defs := collectDefs(builder, fileID)
	imports := depHash(o.opts.WorkspaceRoot, params.Text)
	merkles := stmtMerkles(params.Text, defs, imports)

	// an affected-scope request forces re-verification of any unit whose
	// slice overlaps a supplied range; everything else — and every unit of
	// a full-scope run — may reuse its stmt_merkle-keyed verdict
	reusable := func(d defSlice) bool {
		if params.Scope != "affected" {
			return true
		}
		for _, r := range params.Ranges {
			if d.Start < r.End && r.Start < d.End {
				return false
			}
		}
		return true
	}

	var out []diag.Diagnostic
	rerun := make(map[ast.StmtID]bool)
	cached := make(map[ast.StmtID][]diag.Diagnostic)
	scriptRerun := false
	var scriptCached []diag.Diagnostic
	scriptHasCache := false

	for i, d := range defs {
		hit := false
		if o.opts.Cache != nil {
			if ds, ok := o.opts.Cache.StmtDiagnostics(base, merkles[i]); ok && reusable(d) {
				hit = true
				if d.Stmt.IsValid() {
					cached[d.Stmt] = ds
				} else {
					scriptCached = ds
					scriptHasCache = true
				}
			}
		}
		if hit {
			tel.StmtHits++
			continue
		}
		tel.StmtMisses++
		if d.Stmt.IsValid() {
			rerun[d.Stmt] = true
		} else {
			scriptRerun = true
		}
	}

	outs, err := o.sess.Run(ctx, builder, fileID, semaRes, verify.Options{
		Profile: o.profileOf(params),
		Solver:  o.opts.Solver,
		Table:   table,
		Types:   interner,
		Plugins: o.opts.Plugins,
		DefFilter: func(id ast.StmtID) bool {
			if !id.IsValid() {
				return scriptRerun
			}
			return rerun[id]
		},
	})
	if err != nil {
		d := diag.Diagnostic{
			Severity: diag.SevError,
			Code:     diag.InternalError,
			Message:  fmt.Sprintf("verification failed: %v", err),
			Data:     diag.Data{StableCode: diag.InternalError.ID()},
		}
		d.Primary.End = uint32(len(params.Text))
		return []diag.Diagnostic{d}
	}

	fresh := make(map[ast.StmtID]verify.DefOutcome)
	var scriptOut *verify.DefOutcome
	for i := range outs {
		if outs[i].Stmt.IsValid() {
			fresh[outs[i].Stmt] = outs[i]
		} else {
			scriptOut = &outs[i]
		}
	}

	// accumulate deterministically in source order
	for i, d := range defs {
		var ds []diag.Diagnostic
		switch {
		case d.Stmt.IsValid() && rerun[d.Stmt]:
			if fo, ok := fresh[d.Stmt]; ok {
				ds = fo.Diags
				if o.opts.Cache != nil && fo.OK {
					// cache entries are only written for successful runs
					o.opts.Cache.PutStmtDiagnostics(base, merkles[i], fo.Diags)
				}
			}
		case d.Stmt.IsValid():
			ds = cached[d.Stmt]
		case scriptRerun:
			if scriptOut != nil {
				ds = scriptOut.Diags
				if o.opts.Cache != nil && scriptOut.OK {
					o.opts.Cache.PutStmtDiagnostics(base, merkles[i], scriptOut.Diags)
				}
			}
		case scriptHasCache:
			ds = scriptCached
		}
		out = append(out, ds...)
	}
	return out
}

func (o *Orchestrator) telemetry(tel *Telemetry, timings map[string]float64) *Telemetry {
	if !o.opts.TelemetryTimings && !o.opts.TelemetryCache {
		return nil
	}
	out := &Telemetry{}
	if o.opts.TelemetryCache {
		*out = *tel
	}
	if o.opts.TelemetryTimings {
		out.Timings = timings
	}
	return out
}

// zeroTimings is the telemetry shape of a whole-file cache hit: every
// phase present, none entered.
func zeroTimings() map[string]float64 {
	return map[string]float64{
		PhaseParse: 0, PhaseSema: 0, PhaseNormalize: 0, PhaseZ3: 0,
	}
}

func hasErrors(diags []diag.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity.IsError() {
			return true
		}
	}
	return false
}
