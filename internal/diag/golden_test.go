package diag

import (
	"testing"

	"aura/internal/source"
)

func TestFormatGoldenDiagnostics(t *testing.T) {
	fs := source.NewFileSet()
	fs.SetBaseDir("/workspace")
	file := fs.Add("/workspace/cells/sample.aura", []byte("a\nb\n"))

	diags := []Diagnostic{
		{
			Severity: SevError,
			Code:     ParseError,
			Message:  "first line\nsecond",
			Primary:  source.Span{File: file, Start: 0, End: 1},
			Notes: []Note{
				{Span: source.Span{File: file, Start: 2, End: 3}, Msg: "note line"},
			},
		},
		{
			Severity: SevWarning,
			Code:     SemaError,
			Message:  "another",
			Primary:  source.Span{File: file, Start: 2, End: 3},
		},
	}

	expected := "error AUR-P-0001 cells/sample.aura:1:1 first line second\n" +
		"note AUR-P-0001 cells/sample.aura:2:1 note line\n" +
		"warning AUR-S-0002 cells/sample.aura:2:1 another"

	if got := FormatGoldenDiagnostics(diags, fs, true); got != expected {
		t.Fatalf("unexpected golden diagnostics:\nwant:\n%s\n\ngot:\n%s", expected, got)
	}
}

func TestGoldenIncludesCounterexamplePayload(t *testing.T) {
	fs := source.NewFileSet()
	fs.SetBaseDir("/workspace")
	file := fs.Add("/workspace/cells/sample.aura", []byte("tensor.get(t, 5)\n"))

	diags := []Diagnostic{{
		Severity: SevError,
		Code:     VerifyError,
		Message:  "tensor access may be out of bounds",
		Primary:  source.Span{File: file, Start: 0, End: 16},
		Data: Data{
			StableCode: VerifyError.ID(),
			Counterexample: &Counterexample{
				Schema: "aura.counterexample.v1",
				Slice:  []CounterexampleBinding{{Name: "idx", Value: "5", AuraType: "u32"}},
			},
			Meta: Meta{Suggestions: []string{"weakened loop condition"}},
		},
	}}

	expected := "error AUR-V-0003 cells/sample.aura:1:1 tensor access may be out of bounds\n" +
		"  counterexample idx = 5 (u32)\n" +
		"  suggestion weakened loop condition"

	if got := FormatGoldenDiagnostics(diags, fs, false); got != expected {
		t.Fatalf("unexpected golden diagnostics:\nwant:\n%s\n\ngot:\n%s", expected, got)
	}
}
