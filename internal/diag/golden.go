package diag

import (
	"fmt"
	"sort"
	"strings"

	"aura/internal/source"
)

// The golden format is one line per entry:
//
//	error AUR-V-0003 cells/main.aura:3:5 tensor access may be out of bounds
//	  counterexample idx = 5 (u32)
//	  suggestion weakened loop condition
//	note AUR-V-0003 cells/main.aura:2:1 consumed here
//
// Counterexample bindings and synthesis suggestions indent under their
// diagnostic so a golden file pins the machine payload, not just the
// message text.

type goldenEntry struct {
	severity string
	code     string
	path     string
	pos      source.LineCol
	message  string
	extras   []string
}

// FormatGoldenDiagnostics renders diagnostics into the stable golden
// form: deterministic order, display-relative paths, and the verifier's
// counterexample/suggestion payload included.
func FormatGoldenDiagnostics(diags []Diagnostic, fs *source.FileSet, includeNotes bool) string {
	if fs == nil || len(diags) == 0 {
		return ""
	}
	entries := make([]goldenEntry, 0, len(diags))
	for i := range diags {
		entries = appendGolden(entries, &diags[i], fs, includeNotes)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.path != b.path {
			return a.path < b.path
		}
		if a.pos.Line != b.pos.Line {
			return a.pos.Line < b.pos.Line
		}
		if a.pos.Col != b.pos.Col {
			return a.pos.Col < b.pos.Col
		}
		if a.severity != b.severity {
			return a.severity < b.severity
		}
		if a.code != b.code {
			return a.code < b.code
		}
		return a.message < b.message
	})

	var out strings.Builder
	for i, e := range entries {
		if i > 0 {
			out.WriteByte('\n')
		}
		fmt.Fprintf(&out, "%s %s %s:%d:%d %s", e.severity, e.code, e.path, e.pos.Line, e.pos.Col, e.message)
		for _, extra := range e.extras {
			out.WriteString("\n  ")
			out.WriteString(extra)
		}
	}
	return out.String()
}

func appendGolden(out []goldenEntry, d *Diagnostic, fs *source.FileSet, includeNotes bool) []goldenEntry {
	out = append(out, goldenEntry{
		severity: d.Severity.Label(),
		code:     d.Code.ID(),
		path:     fs.DisplayPath(d.Primary.File),
		pos:      startOf(fs, d.Primary),
		message:  flattenMessage(d.Message),
		extras:   dataExtras(d.Data),
	})
	if includeNotes {
		for _, note := range d.Notes {
			out = append(out, goldenEntry{
				severity: "note",
				code:     d.Code.ID(),
				path:     fs.DisplayPath(note.Span.File),
				pos:      startOf(fs, note.Span),
				message:  flattenMessage(note.Msg),
			})
		}
	}
	return out
}

// dataExtras renders the machine payload lines that distinguish a
// verifier failure from a bare message: the counterexample slice, the
// UNSAT core size, and any invariant-synthesis suggestions.
func dataExtras(data Data) []string {
	var extras []string
	if ce := data.Counterexample; ce != nil {
		for _, b := range ce.Slice {
			extras = append(extras, fmt.Sprintf("counterexample %s = %s (%s)", b.Name, b.Value, b.AuraType))
		}
	}
	if n := len(data.Meta.UnsatCore); n > 0 {
		extras = append(extras, fmt.Sprintf("unsat-core %d clauses", n))
	}
	for _, s := range data.Meta.Suggestions {
		extras = append(extras, "suggestion "+s)
	}
	return extras
}

func startOf(fs *source.FileSet, span source.Span) source.LineCol {
	start, _ := fs.Resolve(span)
	return start
}

func flattenMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\r", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
