package symbols

import "aura/internal/source"

// Hints provide optional capacity suggestions for the table's arenas.
type Hints struct{ Scopes, Symbols uint }

// Table aggregates the scope and symbol arenas with the shared string
// interner. The scope forest has a single synthetic builtin root; file
// scopes chain to it so the builtin tensor/vector/ai surface resolves
// from every file without per-file re-registration.
type Table struct {
	Scopes  *Scopes
	Symbols *Symbols
	Strings *source.Interner

	builtinRoot ScopeID
	fileRoot    map[source.FileID]ScopeID
}

// NewTable builds a fresh table with optional capacity hints. A nil
// interner allocates a private one.
func NewTable(h Hints, strings *source.Interner) *Table {
	if strings == nil {
		strings = source.NewInterner()
	}
	return &Table{
		Scopes:   NewScopes(uint32(h.Scopes)),
		Symbols:  NewSymbols(uint32(h.Symbols)),
		Strings:  strings,
		fileRoot: make(map[source.FileID]ScopeID),
	}
}

// BuiltinRoot returns (creating on first use) the synthetic root scope
// holding the builtin surface.
func (t *Table) BuiltinRoot() ScopeID {
	if !t.builtinRoot.IsValid() {
		t.builtinRoot = t.Scopes.New(ScopeBuiltin, NoScopeID, ScopeOwner{}, source.Span{})
	}
	return t.builtinRoot
}

// FileRoot returns (creating if needed) the file-level scope for file,
// parented under the builtin root.
func (t *Table) FileRoot(file source.FileID, span source.Span) ScopeID {
	if scope, ok := t.fileRoot[file]; ok {
		return scope
	}
	scope := t.Scopes.New(ScopeFile, t.BuiltinRoot(), ScopeOwner{
		Kind:       ScopeOwnerFile,
		SourceFile: file,
	}, span)
	t.fileRoot[file] = scope
	return scope
}
