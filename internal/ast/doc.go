// Package ast defines the abstract program the semantic analyzer, verifier,
// and interpreter all consume. The concrete-syntax parser that produces it
// is an external collaborator of this module; this package only describes
// the shape an AST must have to be admitted to the pipeline.
//
// Nodes are stored in typed arenas (Files, Stmts, Exprs, Types, Patterns,
// Arms) addressed by 1-based IDs, the same arena-of-IDs idiom the rest of
// the toolchain uses for scopes and symbols. A Builder aggregates the
// arenas plus the shared string interner used for identifiers.
package ast
