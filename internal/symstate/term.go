// Package symstate implements the verifier's per-cell symbolic state:
// symbolic execution binds fresh symbols at parameters and `val`s,
// accumulates a path condition from `requires` and branch guards, and
// collects obligations from `assert`/`ensures`/implicit safety checks.
// State must be cheaply cloneable so if/while branches and match arms can
// fork and later recombine.
//
// Terms are a small symbolic expression tree, not SMT-LIB2 text: lowering
// to text happens once, at obligation-discharge time, in the verification
// engine that owns the solver worker.
package symstate

import "aura/internal/types"

// Sort is the SMT sort of a term.
type Sort uint8

const (
	SortU32 Sort = iota
	SortBool
)

// TermKind enumerates the symbolic term constructors the executor builds
// while walking the admitted AST.
type TermKind uint8

const (
	TermInvalid TermKind = iota
	TermVar
	TermConstU32
	TermConstBool
	TermNot
	TermNeg
	TermAdd
	TermSub
	TermMul
	TermDiv
	TermMod
	TermEq
	TermNe
	TermLt
	TermLe
	TermGt
	TermGe
	TermAnd
	TermOr
	TermImplies
	TensorDim  // tensor_dim(handle, axis)
	TensorLen  // tensor_len(handle)
	TermAlive  // alive_k(capability generation id) — capability liveness boolean
	TermForall // first-order quantifier over finite sorts
	TermExists
)

// Var names a fresh symbolic variable allocated by the executor.
type Var struct {
	Name string
	Sort Sort
}

// Term is a node in the symbolic expression tree. Payload fields are
// selected by Kind.
type Term struct {
	Kind TermKind
	Sort Sort

	VarName string // TermVar
	U32     uint64 // TermConstU32
	Bool    bool   // TermConstBool

	A, B *Term // unary uses A, binary uses A and B

	// TensorDim / TensorLen
	Handle string
	Axis   uint64

	// TermAlive
	Generation uint32

	// TermForall / TermExists; A holds the body
	Binders []Var
}

// V constructs a reference to a previously allocated symbolic variable.
func V(v Var) Term { return Term{Kind: TermVar, Sort: v.Sort, VarName: v.Name} }

// ConstU32 constructs a U32 literal term.
func ConstU32(v uint64) Term { return Term{Kind: TermConstU32, Sort: SortU32, U32: v} }

// ConstBool constructs a Bool literal term.
func ConstBool(v bool) Term { return Term{Kind: TermConstBool, Sort: SortBool, Bool: v} }

func bin(k TermKind, sort Sort, a, b Term) Term { return Term{Kind: k, Sort: sort, A: &a, B: &b} }
func un(k TermKind, sort Sort, a Term) Term     { return Term{Kind: k, Sort: sort, A: &a} }

func Not(a Term) Term     { return un(TermNot, SortBool, a) }
func Neg(a Term) Term     { return un(TermNeg, SortU32, a) }
func Add(a, b Term) Term  { return bin(TermAdd, SortU32, a, b) }
func Sub(a, b Term) Term  { return bin(TermSub, SortU32, a, b) }
func Mul(a, b Term) Term  { return bin(TermMul, SortU32, a, b) }
func Div(a, b Term) Term  { return bin(TermDiv, SortU32, a, b) }
func Mod(a, b Term) Term  { return bin(TermMod, SortU32, a, b) }
func Eq(a, b Term) Term   { return bin(TermEq, SortBool, a, b) }
func Ne(a, b Term) Term   { return bin(TermNe, SortBool, a, b) }
func Lt(a, b Term) Term   { return bin(TermLt, SortBool, a, b) }
func Le(a, b Term) Term   { return bin(TermLe, SortBool, a, b) }
func Gt(a, b Term) Term   { return bin(TermGt, SortBool, a, b) }
func Ge(a, b Term) Term   { return bin(TermGe, SortBool, a, b) }
func And(a, b Term) Term  { return bin(TermAnd, SortBool, a, b) }
func Or(a, b Term) Term   { return bin(TermOr, SortBool, a, b) }
func Implies(a, b Term) Term { return bin(TermImplies, SortBool, a, b) }

// Dim constructs tensor_dim(handle, axis).
func Dim(handle string, axis uint64) Term {
	return Term{Kind: TensorDim, Sort: SortU32, Handle: handle, Axis: axis}
}

// Len constructs tensor_len(handle).
func Len(handle string) Term {
	return Term{Kind: TensorLen, Sort: SortU32, Handle: handle}
}

// Alive constructs the capability-liveness boolean alive_k for a
// capgraph generation, used to encode use-after-consume as UNSAT goals.
func Alive(gen uint32) Term {
	return Term{Kind: TermAlive, Sort: SortBool, Generation: gen}
}

// Forall constructs a universally quantified term over binders.
func Forall(binders []Var, body Term) Term {
	return Term{Kind: TermForall, Sort: SortBool, Binders: binders, A: &body}
}

// Exists constructs an existentially quantified term over binders.
func Exists(binders []Var, body Term) Term {
	return Term{Kind: TermExists, Sort: SortBool, Binders: binders, A: &body}
}

// HasQuantifier reports whether any subterm is a forall/exists, used by
// the fast/ci profiles to refuse quantified obligations before any SMT
// call is made.
func HasQuantifier(t Term) bool {
	if t.Kind == TermForall || t.Kind == TermExists {
		return true
	}
	if t.A != nil && HasQuantifier(*t.A) {
		return true
	}
	if t.B != nil && HasQuantifier(*t.B) {
		return true
	}
	return false
}

// AndAll folds a conjunction over terms, returning a true literal for an
// empty slice.
func AndAll(terms []Term) Term {
	if len(terms) == 0 {
		return ConstBool(true)
	}
	acc := terms[0]
	for _, t := range terms[1:] {
		acc = And(acc, t)
	}
	return acc
}

// U32DefaultRange is the implicit bound every plain U32 binding carries:
// "0 ≤ v ≤ 2^32-1".
func U32DefaultRange(v Term) Term {
	return And(Ge(v, ConstU32(0)), Le(v, ConstU32(types.U32Max)))
}
