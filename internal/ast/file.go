package ast

import "aura/internal/source"

// File represents one parsed source file: its span and the ordered list of
// top-level statements it contains (CellDef, RecordDef, StrandDef, ...).
type File struct {
	Span  source.Span
	Stmts []StmtID
}

// Files manages allocation of File nodes.
type Files struct {
	Arena *Arena[File]
}

// NewFiles creates a Files arena with the given capacity hint.
func NewFiles(capHint uint) *Files {
	return &Files{Arena: NewArena[File](capHint)}
}

// New allocates a file node and returns its ID.
func (f *Files) New(sp source.Span) FileID {
	return FileID(f.Arena.Allocate(File{Span: sp}))
}

// Get returns the file for id, or nil if absent.
func (f *Files) Get(id FileID) *File {
	return f.Arena.Get(uint32(id))
}
