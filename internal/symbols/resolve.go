package symbols

import "aura/internal/source"

// Declare allocates sym, attaches it to scope, and indexes it by name.
// Shadowing within one scope is permitted (rebinding resets ownership
// state); LookupIn always answers with the most recent declaration.
func (t *Table) Declare(scope ScopeID, sym Symbol) SymbolID {
	sc := t.Scopes.Get(scope)
	if sc == nil {
		return NoSymbolID
	}
	sym.Scope = scope
	id := t.Symbols.New(sym)
	if sc.NameIndex == nil {
		sc.NameIndex = make(map[source.StringID][]SymbolID)
	}
	sc.NameIndex[sym.Name] = append(sc.NameIndex[sym.Name], id)
	sc.Symbols = append(sc.Symbols, id)
	return id
}

// LookupIn resolves name in exactly one scope, without walking parents.
func (t *Table) LookupIn(scope ScopeID, name source.StringID) (SymbolID, bool) {
	sc := t.Scopes.Get(scope)
	if sc == nil || sc.NameIndex == nil {
		return NoSymbolID, false
	}
	ids := sc.NameIndex[name]
	if len(ids) == 0 {
		return NoSymbolID, false
	}
	return ids[len(ids)-1], true
}

// Lookup resolves name starting at scope and walking the parent chain.
func (t *Table) Lookup(scope ScopeID, name source.StringID) (SymbolID, bool) {
	for scope.IsValid() {
		if id, ok := t.LookupIn(scope, name); ok {
			return id, true
		}
		sc := t.Scopes.Get(scope)
		if sc == nil {
			break
		}
		scope = sc.Parent
	}
	return NoSymbolID, false
}

// Depth reports how many scopes lie on the parent chain from scope to
// the outermost root, scope itself included. The async-capture check compares a binding's
// declaration depth against a lambda's base depth.
func (t *Table) Depth(scope ScopeID) int {
	depth := 0
	for scope.IsValid() {
		depth++
		sc := t.Scopes.Get(scope)
		if sc == nil {
			break
		}
		scope = sc.Parent
	}
	return depth
}
