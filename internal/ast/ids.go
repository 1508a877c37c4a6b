package ast

// FileID identifies a parsed file within a Builder.
type FileID uint32

// NoFileID marks the absence of a file reference.
const NoFileID FileID = 0

// IsValid reports whether id refers to an allocated file.
func (id FileID) IsValid() bool { return id != NoFileID }

// StmtID identifies any statement node, top-level or nested. A program
// is a list of statements that treats top-level definitions (CellDef,
// RecordDef, ...) and nested control-flow statements (If, While,
// Assign, ...) uniformly, so a single arena covers both.
type StmtID uint32

// NoStmtID marks the absence of a statement reference.
const NoStmtID StmtID = 0

// IsValid reports whether id refers to an allocated statement.
func (id StmtID) IsValid() bool { return id != NoStmtID }

// ExprID identifies an expression node.
type ExprID uint32

// NoExprID marks the absence of an expression reference.
const NoExprID ExprID = 0

// IsValid reports whether id refers to an allocated expression.
func (id ExprID) IsValid() bool { return id != NoExprID }

// PatternID identifies a match-arm pattern.
type PatternID uint32

// NoPatternID marks the absence of a pattern reference.
const NoPatternID PatternID = 0

// IsValid reports whether id refers to an allocated pattern.
func (id PatternID) IsValid() bool { return id != NoPatternID }

// TypeExprID identifies a syntactic type annotation (as written, pre-resolution).
type TypeExprID uint32

// NoTypeExprID marks the absence of a type-expression reference.
const NoTypeExprID TypeExprID = 0

// IsValid reports whether id refers to an allocated type expression.
func (id TypeExprID) IsValid() bool { return id != NoTypeExprID }

// ParamID identifies a cell/lambda parameter.
type ParamID uint32

// NoParamID marks the absence of a parameter reference.
const NoParamID ParamID = 0

// IsValid reports whether id refers to an allocated parameter.
func (id ParamID) IsValid() bool { return id != NoParamID }

// ArmID identifies a single match arm.
type ArmID uint32

// NoArmID marks the absence of a match-arm reference.
const NoArmID ArmID = 0

// IsValid reports whether id refers to an allocated match arm.
func (id ArmID) IsValid() bool { return id != NoArmID }
