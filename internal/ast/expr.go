package ast

import "aura/internal/source"

// ExprKind enumerates the expression forms: literals,
// identifiers, unary/binary ops, member access, calls (positional and named
// args plus an optional trailing block), style and record literals, lambdas
// (sync or async), flow expressions, and forall/exists quantifiers.
type ExprKind uint8

const (
	ExprInvalid ExprKind = iota
	ExprLitU32
	ExprLitBool
	ExprLitString
	ExprIdent
	ExprUnary
	ExprBinary
	ExprMember
	ExprCall
	ExprStyleLit
	ExprRecordLit
	ExprLambda
	ExprFlow
	ExprQuantifier
)

func (k ExprKind) String() string {
	switch k {
	case ExprLitU32:
		return "lit_u32"
	case ExprLitBool:
		return "lit_bool"
	case ExprLitString:
		return "lit_string"
	case ExprIdent:
		return "ident"
	case ExprUnary:
		return "unary"
	case ExprBinary:
		return "binary"
	case ExprMember:
		return "member"
	case ExprCall:
		return "call"
	case ExprStyleLit:
		return "style_lit"
	case ExprRecordLit:
		return "record_lit"
	case ExprLambda:
		return "lambda"
	case ExprFlow:
		return "flow"
	case ExprQuantifier:
		return "quantifier"
	default:
		return "invalid"
	}
}

// UnaryOp enumerates prefix operators.
type UnaryOp uint8

const (
	UnaryInvalid UnaryOp = iota
	UnaryNeg             // '-' on U32
	UnaryNot             // 'not' on Bool
)

// BinaryOp enumerates infix operators. Arithmetic is U32-only; equality
// and ordering are U32-only; logical ops are Bool-only.
type BinaryOp uint8

const (
	BinaryInvalid BinaryOp = iota
	BinaryAdd
	BinarySub
	BinaryMul
	BinaryDiv
	BinaryMod
	BinaryEq
	BinaryNe
	BinaryLt
	BinaryLe
	BinaryGt
	BinaryGe
	BinaryAnd
	BinaryOr
)

// FlowKind distinguishes the sync '->' operator from the async '~>' operator.
type FlowKind uint8

const (
	FlowSync FlowKind = iota
	FlowAsync
)

// QuantifierKind distinguishes forall from exists.
type QuantifierKind uint8

const (
	QuantifierForall QuantifierKind = iota
	QuantifierExists
)

// Arg is one actual call argument, positional (Name invalid) or named.
type Arg struct {
	Name  source.StringID // NoStringID for positional args
	Value ExprID
	Span  source.Span
}

// FieldInit initializes one field of a style or record literal.
type FieldInit struct {
	Name  source.StringID
	Value ExprID
	Span  source.Span
}

// QuantBinding binds one variable of a forall/exists over a finite sort.
type QuantBinding struct {
	Name source.StringID
	Sort TypeExprID
}

// Expr is a single expression node; the active payload is selected by Kind
// and looked up in the matching Exprs arena field.
type Expr struct {
	Kind ExprKind
	Span source.Span

	// Literals
	LitU32    uint64
	LitBool   bool
	LitString string

	// Ident
	Name source.StringID

	// Unary / Binary
	UnOp  UnaryOp
	BinOp BinaryOp
	LHS   ExprID
	RHS   ExprID

	// Member access: Base.Name
	Base ExprID

	// Call: Callee(args...) { trailing block }
	Callee        ExprID
	Args          []Arg
	TrailingBlock []StmtID

	// Style / record literal
	TypeName source.StringID // for record literals naming the record
	Fields   []FieldInit

	// Lambda
	Async      bool
	Params     []Param
	Body       []StmtID
	ReturnType TypeExprID

	// Flow: LHS -> RHS (Flow field reuses LHS/RHS above)
	Flow FlowKind

	// Quantifier: forall/exists bindings, QuantInner holds the quantified expr
	Quant      QuantifierKind
	Bindings   []QuantBinding
	QuantInner ExprID
}

// Exprs manages allocation of expression nodes.
type Exprs struct {
	Arena *Arena[Expr]
}

// NewExprs creates an Exprs arena with the given capacity hint.
func NewExprs(capHint uint) *Exprs {
	return &Exprs{Arena: NewArena[Expr](capHint)}
}

// New allocates an expression node and returns its ID.
func (e *Exprs) New(expr Expr) ExprID {
	return ExprID(e.Arena.Allocate(expr))
}

// Get returns the expression for id, or nil if absent.
func (e *Exprs) Get(id ExprID) *Expr {
	return e.Arena.Get(uint32(id))
}
