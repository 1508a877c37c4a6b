package solverworker

import (
	"strings"
	"testing"

	"aura/internal/source"
	"aura/internal/symstate"
)

func TestBuildScriptDeclaresVars(t *testing.T) {
	x := symstate.Var{Name: "x!1", Sort: symstate.SortU32}
	assumptions := []symstate.Label{
		{Name: "a!1", Term: symstate.Ge(symstate.V(x), symstate.ConstU32(0)), Span: source.Span{}},
	}
	goal := symstate.Lt(symstate.V(x), symstate.ConstU32(10))

	script := BuildScript(assumptions, goal)
	if !strings.Contains(script.Text, "declare-const x!1") {
		t.Fatalf("expected x!1 to be declared, got:\n%s", script.Text)
	}
	if !strings.Contains(script.Text, ":named a!1") {
		t.Fatalf("expected labeled assumption a!1, got:\n%s", script.Text)
	}
	if !strings.Contains(script.Text, "goal_negated") {
		t.Fatalf("expected negated goal assertion, got:\n%s", script.Text)
	}
	if len(script.LabelOrder) != 1 || script.LabelOrder[0] != "a!1" {
		t.Fatalf("unexpected label order: %v", script.LabelOrder)
	}
}

func TestLowerTermArithmetic(t *testing.T) {
	x := symstate.V(symstate.Var{Name: "x", Sort: symstate.SortU32})
	got := lowerTerm(symstate.Add(x, symstate.ConstU32(1)))
	want := "(bvadd x (_ bv1 32))"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestParseOutputUnsatCore(t *testing.T) {
	out := "unsat\n(a!1 a!2)\n"
	res := parseOutput(out, []string{"a!1", "a!2", "goal_negated"})
	if res.Status != StatusUnsat {
		t.Fatalf("expected unsat, got %v", res.Status)
	}
	if len(res.Core) != 2 {
		t.Fatalf("expected 2 core labels, got %v", res.Core)
	}
}

func TestParseOutputSatModel(t *testing.T) {
	out := "sat\n(model\n  (define-fun x!1 () (_ BitVec 32) #x0000000b)\n)\n"
	res := parseOutput(out, nil)
	if res.Status != StatusSat {
		t.Fatalf("expected sat, got %v", res.Status)
	}
	if res.Model["x!1"] == "" {
		t.Fatalf("expected a model binding for x!1, got %v", res.Model)
	}
}
