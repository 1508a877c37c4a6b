package verify

import (
	"context"
	"time"

	"aura/internal/ast"
	"aura/internal/symstate"
)

// PluginEnv is the small environment handed to an open-theory plug-in:
// a fresh-symbol factory, a constraint pusher, an obligation prover, and
// an argument evaluator, all scoped to the current definition's state.
type PluginEnv struct {
	Ctx    context.Context
	Fresh  func(hint string) symstate.Term
	Assume func(t symstate.Term, note string)
	Prove  func(goal symstate.Term, msg string) bool
	Eval   func(id ast.ExprID) (symstate.Term, bool)
}

// PluginResult is a claimed call's outcome: the integer symbol standing
// for the call's value, or an error message surfaced as a diagnostic.
type PluginResult struct {
	Term symstate.Term
	Err  string
}

// Plugin models one open-theory provider for the hw.*/ai.* namespaces.
// Call returns nil to mean "not mine", passing the name to the next
// registered plug-in.
type Plugin interface {
	Name() string
	Call(env *PluginEnv, call string, args []ast.ExprID) *PluginResult
}

// dispatchPlugin offers an unknown hw.*/ai.* call to each registered
// plug-in in order. Every plug-in invocation is bounded by the same
// T_profile timeout as an SMT obligation so one misbehaving provider
// cannot hang a verification pass. An unclaimed call defaults to an
// unconstrained u32 symbol.
func (e *executor) dispatchPlugin(name string, ex *ast.Expr, args []ast.ExprID) (symstate.Term, bool) {
	// arguments obey the ordinary move rules; the flow-piped value, if
	// any, is marked consumed again by the flow after dispatch, and
	// re-marking it is idempotent
	moved := make(map[int]bool, len(args))
	for i := range args {
		moved[i] = true
	}
	e.evalArgs(args, moved)

	env := &PluginEnv{
		Ctx: e.ctx,
		Fresh: func(hint string) symstate.Term {
			return symstate.V(e.st.Fresh(symstate.SortU32, hint))
		},
		Assume: func(t symstate.Term, note string) {
			e.st.AssumeLabeled(t, ex.Span, note)
		},
		Prove: func(goal symstate.Term, msg string) bool {
			return e.prove(symstate.ObligationAssert, goal, ex.Span, msg)
		},
		Eval: e.evalExpr,
	}

	for _, p := range e.opts.Plugins {
		res, timedOut := callWithTimeout(e.ctx, e.opts.Profile.Timeout(), p, env, name, args)
		if timedOut {
			e.record(e.verifyError(ex.Span, "plug-in '"+p.Name()+"' timed out handling '"+name+"'"))
			continue
		}
		if res == nil {
			continue
		}
		if res.Err != "" {
			e.record(e.verifyError(ex.Span, "plug-in '"+p.Name()+"': "+res.Err))
			return symstate.Term{}, false
		}
		return res.Term, true
	}

	return symstate.V(e.st.Fresh(symstate.SortU32, pluginHint(name))), true
}

func callWithTimeout(ctx context.Context, timeout time.Duration, p Plugin, env *PluginEnv, name string, args []ast.ExprID) (*PluginResult, bool) {
	done := make(chan *PluginResult, 1)
	go func() {
		done <- p.Call(env, name, args)
	}()
	select {
	case res := <-done:
		return res, false
	case <-time.After(timeout):
		return nil, true
	case <-ctx.Done():
		return nil, true
	}
}

func pluginHint(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r == '.' {
			r = '_'
		}
		out = append(out, r)
	}
	return string(out)
}
