// Package source tracks the program text the toolchain operates on:
// registered files with their kind and line table, byte-offset spans, and
// the shared identifier interner. Spans are plain byte ranges; they only
// become line/column positions at a reporting boundary (diagnostics,
// the LSP wire, the debug protocol).
package source

import "fmt"

// FileID identifies a file registered in a FileSet.
type FileID uint32

// Span is a half-open byte range [Start, End) within one file.
type Span struct {
	File  FileID
	Start uint32
	End   uint32
}

// Empty reports whether the span covers no bytes.
func (s Span) Empty() bool { return s.Start == s.End }

// Len returns the span's width in bytes.
func (s Span) Len() uint32 { return s.End - s.Start }

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// Contains reports whether off falls inside the span.
func (s Span) Contains(off uint32) bool {
	return off >= s.Start && off < s.End
}

// Overlaps reports whether two spans of the same file share any byte.
func (s Span) Overlaps(other Span) bool {
	return s.File == other.File && s.Start < other.End && other.Start < s.End
}

// Cover widens s to include other. Spans of different files are
// incomparable and s is returned unchanged.
func (s Span) Cover(other Span) Span {
	if s.File != other.File {
		return s
	}
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

// LineCol is a 1-based human-readable position.
type LineCol struct {
	Line uint32
	Col  uint32
}
