package source

import "sync"

// StringID is a handle to an interned identifier or literal.
type StringID uint32

// NoStringID marks the absence of a string; it resolves to "".
const NoStringID StringID = 0

// Interner deduplicates strings into dense StringIDs. It is shared by the
// AST builder, the symbol table, and the type interner, so one table
// answers for a whole pipeline run. Safe for concurrent use: the
// orchestrator's verify phase reads identifiers from several definitions
// at once.
type Interner struct {
	mu   sync.RWMutex
	byID []string
	ids  map[string]StringID
}

// NewInterner creates an interner with NoStringID pre-bound to "".
func NewInterner() *Interner {
	return &Interner{
		byID: []string{""},
		ids:  map[string]StringID{"": NoStringID},
	}
}

// Intern returns the canonical ID for s, allocating one on first sight.
func (in *Interner) Intern(s string) StringID {
	in.mu.RLock()
	id, ok := in.ids[s]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if id, ok := in.ids[s]; ok {
		return id
	}
	// copy so the entry never aliases a caller's larger backing buffer
	owned := string(append([]byte(nil), s...))
	id = StringID(len(in.byID))
	in.byID = append(in.byID, owned)
	in.ids[owned] = id
	return id
}

// Lookup resolves id back to its text; ok is false for an unallocated id.
func (in *Interner) Lookup(id StringID) (string, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if int(id) >= len(in.byID) {
		return "", false
	}
	return in.byID[id], true
}

// MustLookup resolves id, panicking on an unallocated one. Only called
// with IDs this interner produced, so a miss is a toolchain bug.
func (in *Interner) MustLookup(id StringID) string {
	s, ok := in.Lookup(id)
	if !ok {
		panic("source: unallocated string ID")
	}
	return s
}

// Len reports the number of interned strings, the empty sentinel
// included.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byID)
}
