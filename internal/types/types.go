// Package types implements the language's closed type variant set:
//
//	T = Unknown | Unit | Bool | U32 | String | Style | Model
//	  | Tensor{elem:T, shape:Option<[u64]>} | Named(name) | Applied(name, [T])
//	  | ConstrainedRange{base:T, lo:u64, hi:u64}
//
// Types are interned into a compact TypeID-addressed table so structural
// equality is pointer-free ID comparison; the variant set is closed and
// finite-arity (tensor shapes, nominal application, integer refinement
// ranges), so a Kind-tagged struct covers every member.
package types

import (
	"fmt"
	"strings"

	"aura/internal/source"
)

// TypeID identifies an interned type.
type TypeID uint32

// NoTypeID marks the absence of a type (distinct from Unknown, which is a
// real wildcard type with its own TypeID).
const NoTypeID TypeID = 0

// Kind enumerates the closed type variant set.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnknown
	KindUnit
	KindBool
	KindU32
	KindString
	KindStyle
	KindModel
	KindTensor
	KindNamed
	KindApplied
	KindConstrainedRange
)

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindUnit:
		return "unit"
	case KindBool:
		return "bool"
	case KindU32:
		return "u32"
	case KindString:
		return "string"
	case KindStyle:
		return "style"
	case KindModel:
		return "model"
	case KindTensor:
		return "tensor"
	case KindNamed:
		return "named"
	case KindApplied:
		return "applied"
	case KindConstrainedRange:
		return "constrained_range"
	default:
		return "invalid"
	}
}

// U32Max is the inclusive upper bound every plain U32 binding is implicitly
// constrained to by the verifier: 0 ≤ v ≤ 2^32-1.
const U32Max uint64 = 1<<32 - 1

// Type is a compact, value-comparable descriptor for one member of T.
type Type struct {
	Kind Kind

	// Tensor
	Elem    TypeID
	Shape   []uint64 // nil means unshaped ("Option<[u64]>" = None)
	HasElem bool     // false for opaque tensors (elem = Unknown)

	// Named / Applied
	Name source.StringID
	Args []TypeID

	// ConstrainedRange
	Base TypeID
	Lo   uint64
	Hi   uint64
}

// key renders a Type into a canonical string for structural interning.
// The variant set is closed and finite-arity so a textual key is cheap and
// exact; it never needs to round-trip back into a Type.
func (t Type) key(strings_ *source.Interner) string {
	var b strings.Builder
	b.WriteString(t.Kind.String())
	switch t.Kind {
	case KindTensor:
		fmt.Fprintf(&b, "(%d,", t.Elem)
		if t.Shape == nil {
			b.WriteString("?)")
		} else {
			for _, d := range t.Shape {
				fmt.Fprintf(&b, "%d,", d)
			}
			b.WriteString(")")
		}
	case KindNamed:
		fmt.Fprintf(&b, "(%s)", lookupName(strings_, t.Name))
	case KindApplied:
		fmt.Fprintf(&b, "(%s;", lookupName(strings_, t.Name))
		for _, a := range t.Args {
			fmt.Fprintf(&b, "%d,", a)
		}
		b.WriteString(")")
	case KindConstrainedRange:
		fmt.Fprintf(&b, "(%d,%d,%d)", t.Base, t.Lo, t.Hi)
	}
	return b.String()
}

func lookupName(interner *source.Interner, id source.StringID) string {
	if interner == nil {
		return fmt.Sprintf("#%d", id)
	}
	s, _ := interner.Lookup(id)
	return s
}

// Interner deduplicates Type values into stable TypeIDs.
type Interner struct {
	strings *source.Interner
	byID    []Type
	byKey   map[string]TypeID
}

// NewInterner creates an Interner backed by the given string table (for
// resolving Named/Applied names into canonical keys). A nil table allocates
// a private one.
func NewInterner(strings_ *source.Interner) *Interner {
	if strings_ == nil {
		strings_ = source.NewInterner()
	}
	in := &Interner{
		strings: strings_,
		byID:    make([]Type, 1, 64), // index 0 reserved for NoTypeID
		byKey:   make(map[string]TypeID, 64),
	}
	return in
}

// Intern returns the canonical TypeID for t, allocating one if t was not
// seen before.
func (in *Interner) Intern(t Type) TypeID {
	key := t.key(in.strings)
	if id, ok := in.byKey[key]; ok {
		return id
	}
	id := TypeID(len(in.byID))
	in.byID = append(in.byID, t)
	in.byKey[key] = id
	return id
}

// Get returns the Type for id. The zero Type (KindInvalid) is returned for
// NoTypeID or an out-of-range id.
func (in *Interner) Get(id TypeID) Type {
	if id == NoTypeID || int(id) >= len(in.byID) {
		return Type{}
	}
	return in.byID[id]
}

// Well-known singleton type IDs, interned lazily on first use via Builtins.
type Builtins struct {
	Unknown TypeID
	Unit    TypeID
	Bool    TypeID
	U32     TypeID
	String  TypeID
	Style   TypeID
	Model   TypeID
}

// InternBuiltins interns and returns the fixed primitive types.
func InternBuiltins(in *Interner) Builtins {
	return Builtins{
		Unknown: in.Intern(Type{Kind: KindUnknown}),
		Unit:    in.Intern(Type{Kind: KindUnit}),
		Bool:    in.Intern(Type{Kind: KindBool}),
		U32:     in.Intern(Type{Kind: KindU32}),
		String:  in.Intern(Type{Kind: KindString}),
		Style:   in.Intern(Type{Kind: KindStyle}),
		Model:   in.Intern(Type{Kind: KindModel}),
	}
}

// resourceNames is the fixed list of nominal resource types whose values
// move on read, alongside tensors, models, and styles.
var resourceNames = map[string]bool{
	"Region": true, "Socket": true, "File": true,
	"Stream": true, "Vector": true, "HashMap": true,
}

// IsNonCopy reports whether values of id move on read: tensors, models,
// styles, and the fixed nominal resource list.
func (in *Interner) IsNonCopy(id TypeID) bool {
	t := in.Get(id)
	switch t.Kind {
	case KindTensor, KindModel, KindStyle:
		return true
	case KindNamed, KindApplied:
		return resourceNames[lookupName(in.strings, t.Name)]
	default:
		return false
	}
}

// String renders a human-readable type name in source notation, e.g.
// "u32[0..10]" or "Tensor<u32, [4]>".
func (in *Interner) String(id TypeID) string {
	t := in.Get(id)
	switch t.Kind {
	case KindTensor:
		elem := "?"
		if t.HasElem {
			elem = in.String(t.Elem)
		}
		if t.Shape == nil {
			return fmt.Sprintf("Tensor<%s>", elem)
		}
		dims := make([]string, len(t.Shape))
		for i, d := range t.Shape {
			dims[i] = fmt.Sprintf("%d", d)
		}
		return fmt.Sprintf("Tensor<%s, [%s]>", elem, strings.Join(dims, ","))
	case KindNamed:
		return lookupName(in.strings, t.Name)
	case KindApplied:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = in.String(a)
		}
		return fmt.Sprintf("%s<%s>", lookupName(in.strings, t.Name), strings.Join(args, ","))
	case KindConstrainedRange:
		return fmt.Sprintf("%s[%d..%d]", in.String(t.Base), t.Lo, t.Hi)
	default:
		return t.Kind.String()
	}
}
