package ast

import "aura/internal/source"

// Hints provides capacity hints for a Builder's arenas.
type Hints struct{ Files, Stmts, Exprs, Types, Patterns, Arms uint }

// Builder aggregates all AST arenas plus the shared string interner. The
// concrete-syntax parser — an external collaborator of this module — is
// the expected producer; the core only consumes what a Builder holds.
type Builder struct {
	Files    *Files
	Stmts    *Stmts
	Exprs    *Exprs
	Types    *TypeExprs
	Patterns *Patterns
	Arms     *Arms
	Strings  *source.Interner
}

// NewBuilder creates a Builder with capacity hints; zero hints fall back to
// modest defaults. A nil interner allocates a fresh one.
func NewBuilder(hints Hints, interner *source.Interner) *Builder {
	if hints.Files == 0 {
		hints.Files = 1 << 4
	}
	if hints.Stmts == 0 {
		hints.Stmts = 1 << 8
	}
	if hints.Exprs == 0 {
		hints.Exprs = 1 << 8
	}
	if hints.Types == 0 {
		hints.Types = 1 << 6
	}
	if hints.Patterns == 0 {
		hints.Patterns = 1 << 5
	}
	if hints.Arms == 0 {
		hints.Arms = 1 << 5
	}
	if interner == nil {
		interner = source.NewInterner()
	}
	return &Builder{
		Files:    NewFiles(hints.Files),
		Stmts:    NewStmts(hints.Stmts),
		Exprs:    NewExprs(hints.Exprs),
		Types:    NewTypeExprs(hints.Types),
		Patterns: NewPatterns(hints.Patterns),
		Arms:     NewArms(hints.Arms),
		Strings:  interner,
	}
}

// NewFile allocates a file node.
func (b *Builder) NewFile(sp source.Span) FileID {
	return b.Files.New(sp)
}

// PushStmt appends a top-level statement to file.
func (b *Builder) PushStmt(file FileID, stmt StmtID) {
	f := b.Files.Get(file)
	if f == nil {
		return
	}
	f.Stmts = append(f.Stmts, stmt)
}

// NewStmt allocates a statement node.
func (b *Builder) NewStmt(s Stmt) StmtID {
	return b.Stmts.New(s)
}

// NewExpr allocates an expression node.
func (b *Builder) NewExpr(e Expr) ExprID {
	return b.Exprs.New(e)
}

// NewType allocates a type-expression node.
func (b *Builder) NewType(t TypeExpr) TypeExprID {
	return b.Types.New(t)
}

// NewPattern allocates a pattern node.
func (b *Builder) NewPattern(p Pattern) PatternID {
	return b.Patterns.New(p)
}

// NewArm allocates a match-arm node.
func (b *Builder) NewArm(a Arm) ArmID {
	return b.Arms.New(a)
}

// Intern interns s into the builder's shared string table.
func (b *Builder) Intern(s string) source.StringID {
	return b.Strings.Intern(s)
}

// String resolves a previously interned ID back to its text.
func (b *Builder) String(id source.StringID) string {
	return b.Strings.MustLookup(id)
}
