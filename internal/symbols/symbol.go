package symbols

import (
	"aura/internal/ast"
	"aura/internal/source"
	"aura/internal/types"
)

// SymbolID identifies a symbol; 0 is reserved for "no symbol".
type SymbolID uint32

// NoSymbolID marks the absence of a symbol reference.
const NoSymbolID SymbolID = 0

// IsValid reports whether the symbol ID refers to an allocated symbol.
func (id SymbolID) IsValid() bool { return id != NoSymbolID }

// SymbolKind classifies the semantic meaning of a symbol.
type SymbolKind uint8

const (
	// SymbolInvalid represents an uninitialized or erroneous symbol.
	SymbolInvalid SymbolKind = iota
	SymbolImport
	SymbolTypeAlias
	SymbolTrait
	SymbolRecord
	SymbolEnum
	SymbolEnumVariant
	SymbolStrand // `val` / `val mut` binding
	SymbolCell   // ordinary cell definition
	SymbolExternCell
	SymbolParam
	SymbolLayout
	SymbolRender
)

func (k SymbolKind) String() string {
	switch k {
	case SymbolImport:
		return "import"
	case SymbolTypeAlias:
		return "type_alias"
	case SymbolTrait:
		return "trait"
	case SymbolRecord:
		return "record"
	case SymbolEnum:
		return "enum"
	case SymbolEnumVariant:
		return "enum_variant"
	case SymbolStrand:
		return "strand"
	case SymbolCell:
		return "cell"
	case SymbolExternCell:
		return "extern_cell"
	case SymbolParam:
		return "param"
	case SymbolLayout:
		return "layout"
	case SymbolRender:
		return "render"
	default:
		return "invalid"
	}
}

// SymbolFlags encode misc attributes for quick checks.
type SymbolFlags uint16

const (
	// SymbolFlagMutable indicates a `val mut` strand or a `mut` parameter.
	SymbolFlagMutable SymbolFlags = 1 << iota
	// SymbolFlagImported indicates the symbol was brought in via an import.
	SymbolFlagImported
	SymbolFlagBuiltin
	// SymbolFlagTrusted indicates an extern cell callable without `unsafe`.
	SymbolFlagTrusted
	// SymbolFlagByRef indicates a parameter bound by reference, not by value.
	SymbolFlagByRef
)

// Strings returns a slice of textual flag labels.
func (f SymbolFlags) Strings() []string {
	if f == 0 {
		return nil
	}
	labels := make([]string, 0, 4)
	if f&SymbolFlagMutable != 0 {
		labels = append(labels, "mutable")
	}
	if f&SymbolFlagImported != 0 {
		labels = append(labels, "imported")
	}
	if f&SymbolFlagBuiltin != 0 {
		labels = append(labels, "builtin")
	}
	if f&SymbolFlagTrusted != 0 {
		labels = append(labels, "trusted")
	}
	if f&SymbolFlagByRef != 0 {
		labels = append(labels, "by-ref")
	}
	return labels
}

// SymbolDecl focuses on the AST origin for diagnostics.
type SymbolDecl struct {
	SourceFile source.FileID
	ASTFile    ast.FileID
	Stmt       ast.StmtID
	Expr       ast.ExprID
}

// Signature describes a cell or extern-cell's call shape, used both by the
// analyzer to check call sites and by the verifier to bind fresh symbols
// at parameter positions.
type Signature struct {
	Params     []SymbolID // SymbolParam entries, in declaration order
	ReturnType types.TypeID
}

// Symbol describes a named entity available in a scope.
type Symbol struct {
	Name       source.StringID
	Kind       SymbolKind
	Scope      ScopeID
	Span       source.Span
	Flags      SymbolFlags
	Decl       SymbolDecl
	Type       types.TypeID
	Requires   []SymbolID // optional dependencies (e.g. an import group)
	Signature  *Signature
	ModulePath string // SymbolImport only

	// SymbolEnumVariant
	Owner  SymbolID // the owning SymbolEnum
	Fields []ast.RecordField

	// SymbolRecord / SymbolEnum generic parameters
	TypeParams []source.StringID
}
