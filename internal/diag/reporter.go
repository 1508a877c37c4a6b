package diag

import "aura/internal/source"

// Reporter is the minimal contract a pipeline phase emits through.
// Implementations: BagReporter (collects), DedupReporter (filters
// repeats), and test doubles.
type Reporter interface {
	Report(code Code, sev Severity, primary source.Span, msg string, notes []Note, fixes []Fix)
}

// ReportBuilder accumulates one diagnostic's details before emitting.
type ReportBuilder struct {
	reporter Reporter
	diag     Diagnostic
	emitted  bool
}

// ReportError starts an error-severity diagnostic.
func ReportError(r Reporter, code Code, primary source.Span, msg string) *ReportBuilder {
	return newBuilder(r, SevError, code, primary, msg)
}

// ReportWarning starts a warning-severity diagnostic.
func ReportWarning(r Reporter, code Code, primary source.Span, msg string) *ReportBuilder {
	return newBuilder(r, SevWarning, code, primary, msg)
}

func newBuilder(r Reporter, sev Severity, code Code, primary source.Span, msg string) *ReportBuilder {
	return &ReportBuilder{
		reporter: r,
		diag: Diagnostic{
			Severity: sev,
			Code:     code,
			Message:  msg,
			Primary:  primary,
			Data:     Data{StableCode: code.ID()},
		},
	}
}

// WithNote attaches related information at sp.
func (b *ReportBuilder) WithNote(sp source.Span, msg string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag.Notes = append(b.diag.Notes, Note{Span: sp, Msg: msg})
	return b
}

// WithData attaches the machine payload (model, counterexample, meta),
// preserving the stable code already derived from the diagnostic's Code.
func (b *ReportBuilder) WithData(data Data) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag = b.diag.WithData(data)
	return b
}

// WithFixSuggestion attaches an actionable fix.
func (b *ReportBuilder) WithFixSuggestion(fix Fix) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag = b.diag.WithFixSuggestion(fix)
	return b
}

// Emit sends the diagnostic to the underlying reporter exactly once.
func (b *ReportBuilder) Emit() {
	if b == nil || b.emitted || b.reporter == nil {
		return
	}
	b.emitted = true
	b.reporter.Report(b.diag.Code, b.diag.Severity, b.diag.Primary, b.diag.Message, b.diag.Notes, b.diag.Fixes)
}

// Diagnostic returns the accumulated record without emitting it, for
// callers that route around the Reporter interface (the verifier builds
// its per-definition slices directly).
func (b *ReportBuilder) Diagnostic() Diagnostic {
	if b == nil {
		return Diagnostic{}
	}
	return b.diag
}

// BagReporter collects into a Bag, stamping every entry's stable code so
// machine consumers never see an empty data payload.
type BagReporter struct{ Bag *Bag }

func (r BagReporter) Report(code Code, sev Severity, primary source.Span, msg string, notes []Note, fixes []Fix) {
	if r.Bag == nil {
		return
	}
	r.Bag.Add(Diagnostic{
		Severity: sev,
		Code:     code,
		Message:  msg,
		Primary:  primary,
		Notes:    notes,
		Fixes:    fixes,
		Data:     Data{StableCode: code.ID()},
	})
}
