package symstate

import (
	"testing"

	"aura/internal/source"
	"aura/internal/symbols"
)

func TestFreshU32GetsDefaultRange(t *testing.T) {
	s := New()
	v := s.Fresh(SortU32, "x")
	if v.Sort != SortU32 {
		t.Fatalf("expected SortU32, got %v", v.Sort)
	}
	if len(s.Path) != 1 {
		t.Fatalf("expected one default-range assumption, got %d", len(s.Path))
	}
}

func TestForkIsIndependent(t *testing.T) {
	s := New()
	sym := symbols.SymbolID(1)
	s.Bind(sym, ConstU32(1))

	forked := s.Fork()
	forked.Bind(sym, ConstU32(2))

	if got := s.Lookup(sym); got.U32 != 1 {
		t.Fatalf("original state mutated by fork, got %d", got.U32)
	}
	if got := forked.Lookup(sym); got.U32 != 2 {
		t.Fatalf("expected forked binding 2, got %d", got.U32)
	}
}

func TestObligateCapturesPathCondition(t *testing.T) {
	s := New()
	s.AssumeLabeled(ConstBool(true), source.Span{}, "test")
	s.Obligate(ObligationAssert, ConstBool(true), source.Span{}, "trivial")
	if len(s.Obls) != 1 {
		t.Fatalf("expected one obligation, got %d", len(s.Obls))
	}
	if len(s.Obls[0].Assumptions) != 1 {
		t.Fatalf("expected obligation to snapshot path condition, got %d", len(s.Obls[0].Assumptions))
	}
}

func TestMergeUnifiesDivergentBindings(t *testing.T) {
	s := New()
	sym := symbols.SymbolID(1)
	s.Bind(sym, ConstU32(1))

	other := s.Fork()
	other.Bind(sym, ConstU32(2))

	merged := s.Merge(other, ConstBool(true))
	got := merged.Lookup(sym)
	if got.Kind != TermVar {
		t.Fatalf("expected merged binding to be a fresh join var, got kind %v", got.Kind)
	}
	if len(merged.Path) != 2 {
		t.Fatalf("expected two ite-shaped assumptions from merge, got %d", len(merged.Path))
	}
}
