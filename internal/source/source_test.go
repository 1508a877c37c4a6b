package source

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpanCoverAndOverlap(t *testing.T) {
	a := Span{File: 1, Start: 4, End: 10}
	b := Span{File: 1, Start: 8, End: 20}
	require.True(t, a.Overlaps(b))
	require.Equal(t, Span{File: 1, Start: 4, End: 20}, a.Cover(b))
	require.False(t, a.Overlaps(Span{File: 2, Start: 4, End: 10}))

	other := Span{File: 2, Start: 0, End: 1}
	require.Equal(t, a, a.Cover(other), "spans of different files are incomparable")
}

func TestInternerRoundTrip(t *testing.T) {
	in := NewInterner()
	id := in.Intern("tensor")
	require.Equal(t, id, in.Intern("tensor"))
	require.NotEqual(t, id, in.Intern("model"))

	s, ok := in.Lookup(id)
	require.True(t, ok)
	require.Equal(t, "tensor", s)

	empty, ok := in.Lookup(NoStringID)
	require.True(t, ok)
	require.Equal(t, "", empty)

	_, ok = in.Lookup(StringID(9999))
	require.False(t, ok)
}

func TestFileKindClassification(t *testing.T) {
	require.Equal(t, FileSource, KindOfPath("cells/main.aura"))
	require.Equal(t, FileManifest, KindOfPath("/workspace/aura.toml"))
	require.Equal(t, FileOther, KindOfPath("notes.txt"))

	fs := NewFileSet()
	id := fs.AddVirtual("untitled-1", []byte("val x = 1\n"))
	require.Equal(t, FileVirtual, fs.Get(id).Kind)
}

func TestLineColAcrossNormalizedContent(t *testing.T) {
	fs := NewFileSet()
	// CRLF and a BOM must not shift offsets
	id := fs.Add("a.aura", []byte("\xEF\xBB\xBFval x = 1\r\nval y = 2\r\n"))
	f := fs.Get(id)
	require.Equal(t, "val x = 1\nval y = 2\n", string(f.Content))

	start, end := fs.Resolve(Span{File: id, Start: 10, End: 15})
	require.Equal(t, LineCol{Line: 2, Col: 1}, start)
	require.Equal(t, LineCol{Line: 2, Col: 6}, end)

	require.Equal(t, "val y = 2", f.Line(2))
	require.Equal(t, "", f.Line(5))
}

func TestLatestWinsAfterReAdd(t *testing.T) {
	fs := NewFileSet()
	first := fs.Add("a.aura", []byte("old"))
	second := fs.Add("a.aura", []byte("new"))
	require.NotEqual(t, first, second)

	id, ok := fs.Latest("a.aura")
	require.True(t, ok)
	require.Equal(t, second, id)
	require.Equal(t, "old", string(fs.Get(first).Content), "earlier snapshots stay addressable")
}

func TestDisplayPathRelativeToBase(t *testing.T) {
	fs := NewFileSet()
	fs.SetBaseDir("/workspace")
	id := fs.Add("/workspace/cells/main.aura", []byte(""))
	require.Equal(t, "cells/main.aura", fs.DisplayPath(id))

	outside := fs.Add("/elsewhere/lib.aura", []byte(""))
	require.Equal(t, "/elsewhere/lib.aura", fs.DisplayPath(outside))

	v := fs.AddVirtual("untitled-1", nil)
	require.Equal(t, "untitled-1", fs.DisplayPath(v))
}
