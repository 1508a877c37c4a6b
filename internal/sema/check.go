// Package sema implements the two-pass semantic analyzer: a first pass
// that registers top-level signatures (trait names, type aliases,
// record/enum shapes, cell/extern-cell signatures and trust flags) and a
// second pass that checks bodies, threading a capability graph alongside
// the ordinary type environment so that move/borrow/consume violations
// are reported at the same point a type error would be.
package sema

import (
	"aura/internal/ast"
	"aura/internal/capgraph"
	"aura/internal/diag"
	"aura/internal/source"
	"aura/internal/symbols"
	"aura/internal/types"
)

// Options configure one semantic pass over a file.
type Options struct {
	Reporter diag.Reporter
	Table    *symbols.Table
	Types    *types.Interner
	// Plugins lists the open-theory call namespace prefixes ("hw." and
	// "ai.") offered to a verifier plug-in instead of being rejected as
	// unresolved calls.
	Plugins []string
	// DeferRangeProofs hands statically unprovable range assignments to
	// the verifier instead of demanding a constant-literal proof.
	DeferRangeProofs bool
}

// Result stores the semantic artefacts produced by one Check call: a typed
// program (expression types, resolved call targets) plus the capability
// facts the verifier seeds its own symbolic alive/consumed state from.
type Result struct {
	ExprTypes    map[ast.ExprID]types.TypeID
	BindingTypes map[symbols.SymbolID]types.TypeID
	CallTarget   map[ast.ExprID]symbols.SymbolID
	// StmtBinding maps each StrandDef statement to the symbol it bound,
	// letting the verifier recover declared types without re-resolving.
	StmtBinding map[ast.StmtID]symbols.SymbolID
	Caps        *capgraph.Graph
	FileScope   symbols.ScopeID
	Builtins    types.Builtins
}

// Check runs both passes over fileID's top-level statements.
func Check(builder *ast.Builder, fileID ast.FileID, opts Options) Result {
	res := Result{
		ExprTypes:    make(map[ast.ExprID]types.TypeID),
		BindingTypes: make(map[symbols.SymbolID]types.TypeID),
		CallTarget:   make(map[ast.ExprID]symbols.SymbolID),
		StmtBinding:  make(map[ast.StmtID]symbols.SymbolID),
		Caps:         capgraph.New(),
	}
	if builder == nil || !fileID.IsValid() || opts.Table == nil {
		return res
	}
	file := builder.Files.Get(fileID)
	if file == nil {
		return res
	}
	if opts.Types == nil {
		opts.Types = types.NewInterner(builder.Strings)
	}
	res.Builtins = types.InternBuiltins(opts.Types)

	fileScope := opts.Table.FileRoot(file.Span.File, file.Span)
	res.FileScope = fileScope

	c := &checker{
		builder:    builder,
		file:       fileID,
		reporter:   opts.Reporter,
		table:      opts.Table,
		types:      opts.Types,
		plugins:    opts.Plugins,
		deferRange: opts.DeferRangeProofs,
		result:     &res,
		fileScope:  fileScope,
	}
	c.scopeStack = []symbols.ScopeID{fileScope}

	c.passOne(file.Stmts)
	c.passTwo(file.Stmts)

	return res
}

// checker carries state threaded through both analysis passes: the current
// scope chain, the unsafe-depth counter incremented around each unsafe
// block's body, and the stack of base scope depths active async lambdas
// were entered at (for the mutable outer-capture check).
type checker struct {
	builder    *ast.Builder
	file       ast.FileID
	reporter   diag.Reporter
	table      *symbols.Table
	types      *types.Interner
	plugins    []string
	deferRange bool
	result     *Result

	fileScope   symbols.ScopeID
	scopeStack  []symbols.ScopeID
	unsafeDepth int
	asyncBase   []int
}

func (c *checker) currentScope() symbols.ScopeID {
	if len(c.scopeStack) == 0 {
		return c.fileScope
	}
	return c.scopeStack[len(c.scopeStack)-1]
}

// scopeDepth is the length of the current scope chain, used by the async
// lambda capture check to decide whether a name's definition scope lies
// outside the lambda's base.
func (c *checker) scopeDepth() int { return len(c.scopeStack) }

func (c *checker) pushScope(kind symbols.ScopeKind, owner symbols.ScopeOwner, span source.Span) symbols.ScopeID {
	id := c.table.Scopes.New(kind, c.currentScope(), owner, span)
	c.scopeStack = append(c.scopeStack, id)
	return id
}

func (c *checker) popScope() {
	if len(c.scopeStack) > 1 {
		c.scopeStack = c.scopeStack[:len(c.scopeStack)-1]
	}
}

func (c *checker) stmt(id ast.StmtID) *ast.Stmt { return c.builder.Stmts.Arena.Get(uint32(id)) }
func (c *checker) expr(id ast.ExprID) *ast.Expr { return c.builder.Exprs.Get(id) }
