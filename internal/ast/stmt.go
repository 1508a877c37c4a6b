package ast

import "aura/internal/source"

// StmtKind enumerates every statement form of the language. Top-level
// definitions (Import, TypeAlias, TraitDef, RecordDef, EnumDef, StrandDef,
// CellDef, ExternCell, Layout, Render) and nested control-flow statements
// (UnsafeBlock, FlowBlock, Prop, Assign, If, Match, While, the proof-
// statement family, ExprStmt) share one arena; StmtKind tells a consumer which payload
// fields on Stmt are meaningful.
type StmtKind uint8

const (
	StmtInvalid StmtKind = iota
	StmtImport
	StmtTypeAlias
	StmtTraitDef
	StmtRecordDef
	StmtEnumDef
	StmtStrandDef // `val` / `val mut`
	StmtCellDef
	StmtExternCell
	StmtUnsafeBlock
	StmtFlowBlock
	StmtLayout
	StmtRender
	StmtProp
	StmtAssign
	StmtIf
	StmtMatch
	StmtWhile
	StmtRequires
	StmtEnsures
	StmtAssert
	StmtAssume
	StmtExprStmt
)

func (k StmtKind) String() string {
	names := [...]string{
		"invalid", "import", "type_alias", "trait_def", "record_def", "enum_def",
		"strand_def", "cell_def", "extern_cell", "unsafe_block", "flow_block",
		"layout", "render", "prop", "assign", "if", "match", "while",
		"requires", "ensures", "assert", "assume", "expr_stmt",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "invalid"
}

// Param is one cell/lambda/extern-cell parameter.
type Param struct {
	Name     source.StringID
	Type     TypeExprID
	Mutable  bool
	Span     source.Span
}

// RecordField declares one field of a record definition.
type RecordField struct {
	Name source.StringID
	Type TypeExprID
	Span source.Span
}

// EnumVariant declares one variant of an enum definition, with its
// constructor's field list (substituted through the scrutinee's type
// arguments at match time).
type EnumVariant struct {
	Name   source.StringID
	Fields []RecordField
	Span   source.Span
}

// TypeParam names one generic parameter of a type alias, record, enum, or cell.
type TypeParam struct {
	Name source.StringID
	Span source.Span
}

// Stmt is a single statement node; the active payload fields are selected by Kind.
type Stmt struct {
	Kind StmtKind
	Span source.Span

	// Import
	PathSegments []source.StringID

	// TypeAlias
	Name       source.StringID
	TypeParams []TypeParam
	AliasOf    TypeExprID // invalid for a generic (template) alias

	// TraitDef: Name only (trait names are tracked, no member checking in scope)

	// RecordDef / EnumDef
	Fields   []RecordField
	Variants []EnumVariant

	// StrandDef (`val`)
	Mutable bool
	ValType TypeExprID // may be invalid (inferred)
	Where   ExprID     // refinement clause, invalid if absent
	Value   ExprID

	// CellDef / ExternCell
	Params     []Param
	ReturnType TypeExprID
	Body       []StmtID
	Trusted    bool // ExternCell only; false requires `unsafe` at call sites

	// UnsafeBlock / FlowBlock reuse Body above

	// Layout / Render reuse Body above (a block of Prop/Assign/ExprStmt)

	// Prop: a single `name: expr` inside a Layout/Render block
	PropValue ExprID

	// Assign: lhs = rhs
	Target ExprID
	RHS    ExprID

	// If
	Cond      ExprID
	ThenBody  []StmtID
	ElseBody  []StmtID // nil if no else

	// Match
	Scrutinee ExprID
	Arms      []ArmID

	// While
	Invariant ExprID // invalid if none given (triggers synthesis)
	Decreases ExprID // invalid if none given

	// Requires/Ensures/Assert/Assume/ExprStmt
	Expr ExprID
}

// Stmts manages allocation of statement nodes.
type Stmts struct {
	Arena *Arena[Stmt]
}

// NewStmts creates a Stmts arena with the given capacity hint.
func NewStmts(capHint uint) *Stmts {
	return &Stmts{Arena: NewArena[Stmt](capHint)}
}

// New allocates a statement node and returns its ID.
func (s *Stmts) New(stmt Stmt) StmtID {
	return StmtID(s.Arena.Allocate(stmt))
}

// Get returns the statement for id, or nil if absent.
func (s *Stmts) Get(id StmtID) *Stmt {
	return s.Arena.Get(uint32(id))
}
