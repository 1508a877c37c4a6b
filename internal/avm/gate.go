package avm

import (
	"context"
	"os"
	"sync"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/manifest"
	"aura/internal/project"
	"aura/internal/sema"
	"aura/internal/symbols"
	"aura/internal/types"
	"aura/internal/verify"
)

// EnvNoZ3 is the test escape hatch: when set, the gate admits programs
// without consulting the verifier.
const EnvNoZ3 = "AURA_AVM_NO_Z3"

// GateResult is a cached admission verdict for one source hash.
type GateResult struct {
	Verified bool
	Diags    []diag.Diagnostic
}

// Gate decides whether a program may execute. The AVM refuses to run
// anything the gate rejects.
type Gate interface {
	Admit(ctx context.Context, b *ast.Builder, fileID ast.FileID, src string) GateResult
}

// VerifierGate runs the full analyzer+verifier pipeline at the
// configured profile, memoizing verdicts by source hash so hot reload
// warms across runs.
type VerifierGate struct {
	Profile manifest.Profile
	Solver  verify.Discharger

	mu      sync.Mutex
	results map[string]GateResult
	sess    *verify.Session
}

// NewVerifierGate builds a gate sharing one verifier session.
func NewVerifierGate(profile manifest.Profile, solver verify.Discharger) *VerifierGate {
	return &VerifierGate{
		Profile: profile,
		Solver:  solver,
		results: make(map[string]GateResult),
		sess:    verify.NewSession(),
	}
}

// SourceHash is the result-cache key for a program text.
func SourceHash(src string) string {
	return project.HashString(src).Hex()
}

// Admit verifies the program unless a cached verdict exists for the
// exact source hash.
func (g *VerifierGate) Admit(ctx context.Context, b *ast.Builder, fileID ast.FileID, src string) GateResult {
	if os.Getenv(EnvNoZ3) != "" {
		return GateResult{Verified: true}
	}
	key := SourceHash(src)
	g.mu.Lock()
	if res, ok := g.results[key]; ok {
		g.mu.Unlock()
		return res
	}
	g.mu.Unlock()

	table := symbols.NewTable(symbols.Hints{}, b.Strings)
	interner := types.NewInterner(b.Strings)
	bag := diag.NewBag(256)
	semaRes := sema.Check(b, fileID, sema.Options{
		Reporter:         diag.BagReporter{Bag: bag},
		Table:            table,
		Types:            interner,
		DeferRangeProofs: true,
	})

	res := GateResult{}
	if !bag.HasErrors() {
		outs, err := g.sess.Run(ctx, b, fileID, &semaRes, verify.Options{
			Profile: g.Profile,
			Solver:  g.Solver,
			Table:   table,
			Types:   interner,
		})
		if err == nil {
			res.Verified = true
			for _, out := range outs {
				if !out.OK {
					res.Verified = false
				}
				res.Diags = append(res.Diags, out.Diags...)
			}
		}
	}
	res.Diags = append(res.Diags, bag.Items()...)

	g.mu.Lock()
	g.results[key] = res
	g.mu.Unlock()
	return res
}
