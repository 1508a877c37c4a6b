package diag

// Severity ranks a diagnostic. The verifier only ever emits errors and
// warnings (a failed obligation is never informational); SevInfo exists
// for host-side notices like cache telemetry surfaced as diagnostics.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevError:
		return "ERROR"
	case SevWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// Label is the lowercase form used by golden files and CLI output.
func (s Severity) Label() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

// LSPSeverity maps onto the wire protocol's DiagnosticSeverity values
// (1=error, 2=warning, 3=information).
func (s Severity) LSPSeverity() int {
	switch s {
	case SevError:
		return 1
	case SevWarning:
		return 2
	default:
		return 3
	}
}

// IsError reports whether the diagnostic blocks admission: the verifier
// gate and the CLI exit code both key off this.
func (s Severity) IsError() bool { return s >= SevError }
