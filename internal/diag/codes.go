package diag

import "fmt"

// Code is one of the four stable diagnostic codes named in the toolchain's
// diagnostic contract: parse, sema, verify, internal. Further
// differentiation (which sema rule fired, which obligation failed) lives in
// a diagnostic's Message and Data, not in additional codes — consumers that
// only understand the stable code still get a correct category.
type Code uint8

const (
	// UnknownCode marks an uninitialized diagnostic; never emitted.
	UnknownCode Code = iota
	// ParseError is produced by the excluded concrete-syntax parser and
	// surfaced verbatim, never recovered inside this module.
	ParseError
	// SemaError covers every semantic-analyzer rejection: unresolved
	// symbols, type mismatches, use-after-move, non-exhaustive match, and
	// similar static checks.
	SemaError
	// VerifyError covers a failed obligation: a SAT result on
	// UNSAT(assumptions ∧ ¬goal), carrying a counterexample in Data.
	VerifyError
	// InternalError wraps a caught panic or other failure not
	// attributable to the input program; spans the whole document.
	InternalError
)

func (c Code) phase() string {
	switch c {
	case ParseError:
		return "P"
	case SemaError:
		return "S"
	case VerifyError:
		return "V"
	case InternalError:
		return "I"
	default:
		return "?"
	}
}

func (c Code) numeral() string {
	switch c {
	case ParseError:
		return "0001"
	case SemaError:
		return "0002"
	case VerifyError:
		return "0003"
	case InternalError:
		return "9000"
	default:
		return "0000"
	}
}

// ID renders the stable string form, e.g. "AUR-S-0002".
func (c Code) ID() string {
	return fmt.Sprintf("AUR-%s-%s", c.phase(), c.numeral())
}

// Title gives a short human label for the code's category.
func (c Code) Title() string {
	switch c {
	case ParseError:
		return "parse error"
	case SemaError:
		return "semantic error"
	case VerifyError:
		return "verification failure"
	case InternalError:
		return "internal error"
	default:
		return "unknown"
	}
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
