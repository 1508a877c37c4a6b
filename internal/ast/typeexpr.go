package ast

import "aura/internal/source"

// TypeExprKind enumerates the syntactic shapes a type annotation can take,
// as written in source, before the semantic analyzer resolves it to a
// types.T. It mirrors the closed semantic variant set one-for-one at the
// syntax level.
type TypeExprKind uint8

const (
	// TypeExprInvalid marks a malformed or missing annotation.
	TypeExprInvalid TypeExprKind = iota
	// TypeExprUnit is the literal "unit" type.
	TypeExprUnit
	// TypeExprBool is the literal "bool" type.
	TypeExprBool
	// TypeExprU32 is the literal "u32" type.
	TypeExprU32
	// TypeExprString is the literal "string" type.
	TypeExprString
	// TypeExprStyle is the literal "style" type.
	TypeExprStyle
	// TypeExprModel is the literal "model" type.
	TypeExprModel
	// TypeExprTensor is "Tensor<elem, [shape...]>"; Shape may be empty (unshaped).
	TypeExprTensor
	// TypeExprNamed is a bare nominal reference, e.g. "Region" or a user record/enum name.
	TypeExprNamed
	// TypeExprApplied is a generic instantiation, e.g. "Box<u32>".
	TypeExprApplied
	// TypeExprRange is "u32[lo..hi]", a refinement literal written inline.
	TypeExprRange
)

// TypeExpr is a syntactic type annotation node.
type TypeExpr struct {
	Kind TypeExprKind
	Span source.Span

	Name source.StringID   // Named / Applied base name
	Args []TypeExprID      // Applied type arguments
	Elem TypeExprID        // Tensor element type
	Dims []ShapeDim        // Tensor declared shape; nil means unshaped
	Lo   uint64            // Range lower bound (TypeExprRange)
	Hi   uint64            // Range upper bound (TypeExprRange)
}

// ShapeDim is one statically-known tensor dimension, or Dynamic if the
// source wrote a placeholder ("_") for that axis.
type ShapeDim struct {
	Size    uint64
	Dynamic bool
}

// TypeExprs manages allocation of TypeExpr nodes.
type TypeExprs struct {
	Arena *Arena[TypeExpr]
}

// NewTypeExprs creates a TypeExprs arena with the given capacity hint.
func NewTypeExprs(capHint uint) *TypeExprs {
	return &TypeExprs{Arena: NewArena[TypeExpr](capHint)}
}

// New allocates a type expression node.
func (t *TypeExprs) New(te TypeExpr) TypeExprID {
	return TypeExprID(t.Arena.Allocate(te))
}

// Get returns the type expression for id, or nil if absent.
func (t *TypeExprs) Get(id TypeExprID) *TypeExpr {
	return t.Arena.Get(uint32(id))
}
