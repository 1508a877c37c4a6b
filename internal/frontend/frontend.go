// Package frontend is the seam between this core and the concrete-syntax
// parser, which is an external collaborator: the core consumes an
// admitted AST and never builds one from text itself. A host links a real
// parser by calling Register; without one, every parse reports a single
// AUR-P-0001 diagnostic explaining the missing front end.
package frontend

import (
	"sync"

	"aura/internal/ast"
	"aura/internal/diag"
	"aura/internal/lspcore"
)

var (
	mu     sync.RWMutex
	parser lspcore.ParseFunc
)

// Register installs the host's concrete-syntax parser.
func Register(p lspcore.ParseFunc) {
	mu.Lock()
	defer mu.Unlock()
	parser = p
}

// Parse resolves to the registered parser, or the stub that reports the
// absence of one.
func Parse(uri, text string) (*ast.Builder, ast.FileID, []diag.Diagnostic) {
	mu.RLock()
	p := parser
	mu.RUnlock()
	if p != nil {
		return p(uri, text)
	}
	return nil, ast.NoFileID, []diag.Diagnostic{{
		Severity: diag.SevError,
		Code:     diag.ParseError,
		Message:  "no concrete-syntax parser is linked into this build",
		Data:     diag.Data{StableCode: diag.ParseError.ID()},
	}}
}
