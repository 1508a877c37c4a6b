package capgraph

import (
	"testing"

	"aura/internal/source"
	"aura/internal/symbols"
)

func TestMoveThenUseIsRejected(t *testing.T) {
	g := New()
	p := g.CanonicalPlace(symbols.SymbolID(1), nil)
	g.Introduce(p)

	if issue := g.Move(p, source.Span{}); !issue.IsNone() {
		t.Fatalf("unexpected issue on first move: %v", issue.Kind)
	}
	if issue := g.Use(p); issue.Kind != IssueUseAfterMove {
		t.Fatalf("expected IssueUseAfterMove, got %v", issue.Kind)
	}
}

func TestDoubleMoveIsRejected(t *testing.T) {
	g := New()
	p := g.CanonicalPlace(symbols.SymbolID(1), nil)
	g.Introduce(p)

	g.Move(p, source.Span{})
	if issue := g.Move(p, source.Span{}); issue.Kind != IssueDoubleConsume {
		t.Fatalf("expected IssueDoubleConsume, got %v", issue.Kind)
	}
}

func TestBorrowBlocksMove(t *testing.T) {
	g := New()
	p := g.CanonicalPlace(symbols.SymbolID(1), nil)
	g.Introduce(p)

	g.BeginBorrow(p, source.Span{})
	if issue := g.Move(p, source.Span{}); issue.Kind != IssueMoveBorrowed {
		t.Fatalf("expected IssueMoveBorrowed, got %v", issue.Kind)
	}
	g.EndBorrow(p)
	if issue := g.Move(p, source.Span{}); !issue.IsNone() {
		t.Fatalf("expected move to succeed after borrow released, got %v", issue.Kind)
	}
}

func TestBorrowBlocksMutation(t *testing.T) {
	g := New()
	p := g.CanonicalPlace(symbols.SymbolID(1), nil)
	g.Introduce(p)

	g.BeginBorrow(p, source.Span{})
	if issue := g.Mutate(p); issue.Kind != IssueMutateBorrowed {
		t.Fatalf("expected IssueMutateBorrowed, got %v", issue.Kind)
	}
}

func TestDistinctFieldsAreIndependentPlaces(t *testing.T) {
	g := New()
	root := symbols.SymbolID(1)
	nameID := source.StringID(7)
	otherID := source.StringID(8)

	a := g.CanonicalPlace(root, []Segment{{Kind: SegmentField, Name: nameID}})
	b := g.CanonicalPlace(root, []Segment{{Kind: SegmentField, Name: otherID}})
	g.Introduce(a)
	g.Introduce(b)

	g.Move(a, source.Span{})
	if issue := g.Use(b); !issue.IsNone() {
		t.Fatalf("moving field a must not affect field b, got issue %v", issue.Kind)
	}
	if issue := g.Use(a); issue.Kind != IssueUseAfterMove {
		t.Fatalf("expected field a to be consumed, got %v", issue.Kind)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := New()
	p := g.CanonicalPlace(symbols.SymbolID(1), nil)
	g.Introduce(p)

	clone := g.Clone()
	clone.Move(p, source.Span{})

	if issue := g.Use(p); !issue.IsNone() {
		t.Fatalf("mutating a clone must not affect the original, got %v", issue.Kind)
	}
	if issue := clone.Use(p); issue.Kind != IssueUseAfterMove {
		t.Fatalf("expected clone to see the move, got %v", issue.Kind)
	}
}

func TestReturnIsTerminal(t *testing.T) {
	g := New()
	p := g.CanonicalPlace(symbols.SymbolID(1), nil)
	g.Introduce(p)

	if issue := g.Return(p, source.Span{}); !issue.IsNone() {
		t.Fatalf("unexpected issue on return: %v", issue.Kind)
	}
	if issue := g.Return(p, source.Span{}); issue.Kind != IssueDoubleConsume {
		t.Fatalf("expected second return to be rejected, got %v", issue.Kind)
	}
}
