package ast

import "aura/internal/source"

// PatternKind enumerates match-arm patterns: constructor patterns
// (introducing fresh bindings over variant field types), integer/string
// literal patterns, and the mandatory catch-all wildcard.
type PatternKind uint8

const (
	PatternInvalid PatternKind = iota
	PatternWildcard
	PatternLitU32
	PatternLitString
	PatternConstructor
)

// PatternField binds one constructor field to a fresh name.
type PatternField struct {
	Name source.StringID // field name in the variant definition
	Bind source.StringID // fresh local name introduced by the match
}

// Pattern is a single match-arm pattern.
type Pattern struct {
	Kind PatternKind
	Span source.Span

	LitU32    uint64
	LitString string

	Variant source.StringID // constructor/variant name
	Fields  []PatternField
}

// Arm is one arm of a Match statement: pattern -> body.
type Arm struct {
	Pattern PatternID
	Body    []StmtID
	Span    source.Span
}

// Patterns manages allocation of Pattern nodes.
type Patterns struct {
	Arena *Arena[Pattern]
}

// NewPatterns creates a Patterns arena with the given capacity hint.
func NewPatterns(capHint uint) *Patterns {
	return &Patterns{Arena: NewArena[Pattern](capHint)}
}

// New allocates a pattern node and returns its ID.
func (p *Patterns) New(pat Pattern) PatternID {
	return PatternID(p.Arena.Allocate(pat))
}

// Get returns the pattern for id, or nil if absent.
func (p *Patterns) Get(id PatternID) *Pattern {
	return p.Arena.Get(uint32(id))
}

// Arms manages allocation of Arm nodes.
type Arms struct {
	Arena *Arena[Arm]
}

// NewArms creates an Arms arena with the given capacity hint.
func NewArms(capHint uint) *Arms {
	return &Arms{Arena: NewArena[Arm](capHint)}
}

// New allocates a match arm and returns its ID.
func (a *Arms) New(arm Arm) ArmID {
	return ArmID(a.Arena.Allocate(arm))
}

// Get returns the arm for id, or nil if absent.
func (a *Arms) Get(id ArmID) *Arm {
	return a.Arena.Get(uint32(id))
}
