// Package avm is the guarded tree-walking executor: it
// runs a program only after the verifier admits it, re-entering cheaply
// on hot reload through the gate's verdict cache, and exposing the
// structured debug protocol at statement boundaries.
package avm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"aura/internal/ast"
	"aura/internal/avmdebug"
	"aura/internal/avmprof"
	"aura/internal/diag"
	"aura/internal/source"
)

// EnvUIMaxFrames bounds the UI loop's frame count when set.
const EnvUIMaxFrames = "AURA_UI_MAX_FRAMES"

// RuntimeError is a span-carrying execution failure. These paths are
// unreachable on verified code; they exist for the escape-hatch modes.
type RuntimeError struct {
	Span source.Span
	Msg  string
}

func (e *RuntimeError) Error() string { return e.Msg }

func rtErr(span source.Span, format string, args ...any) *RuntimeError {
	return &RuntimeError{Span: span, Msg: fmt.Sprintf(format, args...)}
}

// RejectedError carries the gate's diagnostics when a program fails
// verification; nothing has executed when it is returned.
type RejectedError struct {
	Diags []diag.Diagnostic
}

func (e *RejectedError) Error() string {
	for _, d := range e.Diags {
		if d.Severity.IsError() {
			return "program rejected by verifier: " + d.Message
		}
	}
	return "program rejected by verifier"
}

type slot struct {
	val     Value
	mutable bool
}

// Interp executes one admitted program.
type Interp struct {
	b       *ast.Builder
	file    ast.FileID
	src     string
	srcName string
	lines   []uint32

	env     []map[string]*slot
	cells   map[string]*ast.Stmt
	tensors map[uint64][]uint64
	vectors map[uint64][]uint64
	nextH   uint64

	gate  Gate
	ui    UIPlugin
	debug *avmdebug.Session
	prof  *avmprof.Timeline

	callbacks []callbackEntry
	uiStack   []*UiNode
	maxFrames int
}

type callbackEntry struct {
	body []ast.StmtID
}

// Options configure one Interp.
type Options struct {
	SourceName string
	Source     string
	Gate       Gate
	UI         UIPlugin
	Debug      *avmdebug.Session
	Prof       *avmprof.Timeline
}

// New builds an interpreter over an admitted AST.
func New(b *ast.Builder, fileID ast.FileID, opts Options) *Interp {
	maxFrames := 0
	if v := os.Getenv(EnvUIMaxFrames); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			maxFrames = n
		}
	}
	return &Interp{
		b:         b,
		file:      fileID,
		src:       opts.Source,
		srcName:   opts.SourceName,
		lines:     lineIndex(opts.Source),
		env:       []map[string]*slot{make(map[string]*slot)},
		cells:     make(map[string]*ast.Stmt),
		tensors:   make(map[uint64][]uint64),
		vectors:   make(map[uint64][]uint64),
		gate:      opts.Gate,
		ui:        opts.UI,
		debug:     opts.Debug,
		prof:      opts.Prof,
		maxFrames: maxFrames,
	}
}

func lineIndex(src string) []uint32 {
	out := []uint32{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			out = append(out, uint32(i+1))
		}
	}
	return out
}

func (i *Interp) lineCol(span source.Span) (uint32, uint32) {
	idx := sort.Search(len(i.lines), func(k int) bool { return i.lines[k] > span.Start }) - 1
	if idx < 0 {
		idx = 0
	}
	return uint32(idx + 1), span.Start - i.lines[idx] + 1
}

// Run verifies the program through the gate, then executes every
// top-level statement in order. A rejected program returns the
// verifier's diagnostics without executing anything.
func (i *Interp) Run(ctx context.Context) error {
	return i.run(ctx, "")
}

// RunEntry executes init-style top-level statements, then the named
// entry cell's body.
func (i *Interp) RunEntry(ctx context.Context, entry string) error {
	return i.run(ctx, entry)
}

func (i *Interp) run(ctx context.Context, entry string) error {
	file := i.b.Files.Get(i.file)
	if file == nil {
		return fmt.Errorf("avm: invalid file")
	}
	if i.gate != nil {
		verdict := i.gate.Admit(ctx, i.b, i.file, i.src)
		if !verdict.Verified {
			return &RejectedError{Diags: verdict.Diags}
		}
	}

	// first pass: register callables so order doesn't matter for calls
	for _, id := range file.Stmts {
		st := i.b.Stmts.Get(id)
		if st == nil {
			continue
		}
		switch st.Kind {
		case ast.StmtCellDef, ast.StmtLayout, ast.StmtRender:
			i.cells[i.b.String(st.Name)] = st
		}
	}

	for _, id := range file.Stmts {
		st := i.b.Stmts.Get(id)
		if st == nil {
			continue
		}
		if entry != "" {
			// init-style statements only; the entry cell runs last
			switch st.Kind {
			case ast.StmtStrandDef, ast.StmtImport:
			default:
				continue
			}
		}
		if err := i.execStmt(ctx, id); err != nil {
			return err
		}
	}

	if entry != "" {
		cell, ok := i.cells[entry]
		if !ok {
			return fmt.Errorf("avm: entry cell %q not found", entry)
		}
		if err := i.execBody(ctx, cell.Body); err != nil {
			return err
		}
	}

	if i.debug != nil {
		if i.debug.PerfEnabled() && i.prof != nil {
			i.emitPerfReport()
		}
		i.debug.Finish(i.srcName)
	}
	return nil
}

func (i *Interp) pushScope() { i.env = append(i.env, make(map[string]*slot)) }
func (i *Interp) popScope() {
	if len(i.env) > 1 {
		i.env = i.env[:len(i.env)-1]
	}
}

func (i *Interp) lookup(name string) (*slot, bool) {
	for k := len(i.env) - 1; k >= 0; k-- {
		if s, ok := i.env[k][name]; ok {
			return s, true
		}
	}
	return nil, false
}

func (i *Interp) define(name string, v Value, mutable bool) {
	i.env[len(i.env)-1][name] = &slot{val: v, mutable: mutable}
}

// boundary consults the debug session at a statement boundary; true
// means terminate cooperatively.
func (i *Interp) boundary(span source.Span) bool {
	if i.debug == nil {
		return false
	}
	line, col := i.lineCol(span)
	return i.debug.AtBoundary(avmdebug.Boundary{
		File:      i.srcName,
		Line:      line,
		Col:       col,
		Env:       i.snapshotEnv,
		EvalWatch: i.evalWatch,
	})
}

func (i *Interp) snapshotEnv() map[string]string {
	out := make(map[string]string)
	for _, scope := range i.env {
		for name, s := range scope {
			out[name] = s.val.Render()
		}
	}
	return out
}

// evalWatch evaluates a watch expression in restricted pure mode: calls,
// lambdas, and flow expressions are rejected syntactically before any
// evaluation, keeping breakpoint inspection free of side effects.
func (i *Interp) evalWatch(expr string) (string, error) {
	trimmed := strings.TrimSpace(expr)
	if strings.ContainsAny(trimmed, "(){}") ||
		strings.Contains(trimmed, "->") || strings.Contains(trimmed, "~>") {
		return "", fmt.Errorf("calls, lambdas and flow expressions are not allowed in watches")
	}
	parts := strings.Split(trimmed, ".")
	s, ok := i.lookup(parts[0])
	if !ok {
		return "", fmt.Errorf("unknown name %q", parts[0])
	}
	v := s.val
	for _, field := range parts[1:] {
		if v.Kind != KindStyle {
			return "", fmt.Errorf("%q has no field %q", parts[0], field)
		}
		fv, ok := v.Style[field]
		if !ok {
			return "", fmt.Errorf("unknown field %q", field)
		}
		v = fv
	}
	return v.Render(), nil
}

func (i *Interp) emitPerfReport() {
	samples, _ := jsonMarshal(i.prof.Samples())
	mem, _ := jsonMarshal(avmprof.CaptureMemory())
	i.debug.Emit(avmdebug.Event{
		Type:        avmdebug.EventPerfReport,
		Timeline:    samples,
		FlameFolded: i.prof.FoldedFlame(),
		Memory:      mem,
	})
}

func (i *Interp) execBody(ctx context.Context, body []ast.StmtID) error {
	i.pushScope()
	defer i.popScope()
	for _, id := range body {
		if err := i.execStmt(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (i *Interp) execStmt(ctx context.Context, id ast.StmtID) error {
	st := i.b.Stmts.Get(id)
	if st == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if i.boundary(st.Span) {
		return nil
	}

	switch st.Kind {
	case ast.StmtImport, ast.StmtTypeAlias, ast.StmtTraitDef,
		ast.StmtRecordDef, ast.StmtEnumDef, ast.StmtExternCell,
		ast.StmtCellDef, ast.StmtRequires, ast.StmtEnsures:
		return nil

	case ast.StmtStrandDef:
		v, err := i.evalExpr(ctx, st.Value)
		if err != nil {
			return err
		}
		i.define(i.b.String(st.Name), v, st.Mutable)
		return nil

	case ast.StmtAssign:
		target := i.b.Exprs.Get(st.Target)
		if target == nil || target.Kind != ast.ExprIdent {
			return rtErr(st.Span, "assignment target must be a name")
		}
		v, err := i.evalExpr(ctx, st.RHS)
		if err != nil {
			return err
		}
		s, ok := i.lookup(i.b.String(target.Name))
		if !ok {
			return rtErr(target.Span, "unknown name %q", i.b.String(target.Name))
		}
		if !s.mutable {
			return rtErr(st.Span, "cannot assign to immutable binding")
		}
		s.val = v
		return nil

	case ast.StmtIf:
		cond, err := i.evalExpr(ctx, st.Cond)
		if err != nil {
			return err
		}
		if cond.Kind != KindBool {
			return rtErr(st.Span, "if condition must be bool, got %s", cond.Kind)
		}
		if cond.Bool {
			return i.execBody(ctx, st.ThenBody)
		}
		return i.execBody(ctx, st.ElseBody)

	case ast.StmtWhile:
		for {
			cond, err := i.evalExpr(ctx, st.Cond)
			if err != nil {
				return err
			}
			if cond.Kind != KindBool {
				return rtErr(st.Span, "while condition must be bool, got %s", cond.Kind)
			}
			if !cond.Bool {
				return nil
			}
			if err := i.execBody(ctx, st.Body); err != nil {
				return err
			}
			if i.debug != nil && i.debug.Terminated() {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}

	case ast.StmtMatch:
		return i.execMatch(ctx, st)

	case ast.StmtAssert, ast.StmtAssume:
		v, err := i.evalExpr(ctx, st.Expr)
		if err != nil {
			return err
		}
		if v.Kind != KindBool {
			return rtErr(st.Span, "%s expects bool, got %s", st.Kind, v.Kind)
		}
		if st.Kind == ast.StmtAssert && !v.Bool {
			return rtErr(st.Span, "assertion failed at runtime")
		}
		return nil

	case ast.StmtUnsafeBlock, ast.StmtFlowBlock:
		return i.execBody(ctx, st.Body)

	case ast.StmtLayout, ast.StmtRender:
		return i.execUIBlock(ctx, st)

	case ast.StmtProp:
		v, err := i.evalExpr(ctx, st.PropValue)
		if err != nil {
			return err
		}
		if n := i.currentUI(); n != nil {
			if n.Props == nil {
				n.Props = make(map[string]Value)
			}
			n.Props[i.b.String(st.Name)] = v
		}
		return nil

	case ast.StmtExprStmt:
		v, err := i.evalExpr(ctx, st.Expr)
		if err != nil {
			return err
		}
		if v.Kind == KindUi {
			i.attachUI(v.Ui)
		}
		return nil
	}
	return nil
}

// execMatch matches integer and string literal patterns plus the final
// wildcard. Constructor patterns over enum values are checked by sema;
// the AVM's value set has no enum values, so such patterns never match
// here and fall through to the wildcard arm.
func (i *Interp) execMatch(ctx context.Context, st *ast.Stmt) error {
	scrut, err := i.evalExpr(ctx, st.Scrutinee)
	if err != nil {
		return err
	}
	var wildcard *ast.Arm
	for _, armID := range st.Arms {
		arm := i.b.Arms.Get(armID)
		if arm == nil {
			continue
		}
		pat := i.b.Patterns.Get(arm.Pattern)
		if pat == nil {
			continue
		}
		switch pat.Kind {
		case ast.PatternWildcard:
			wildcard = arm
		case ast.PatternLitU32:
			if scrut.Kind == KindInt && scrut.Int == pat.LitU32 {
				return i.execBody(ctx, arm.Body)
			}
		case ast.PatternLitString:
			if scrut.Kind == KindStr && scrut.Str == pat.LitString {
				return i.execBody(ctx, arm.Body)
			}
		}
	}
	if wildcard != nil {
		return i.execBody(ctx, wildcard.Body)
	}
	return nil
}
