package diag

import "aura/internal/source"

// DedupReporter suppresses repeated reports of one defect. The key is
// the primary span plus the message, deliberately not the code: the
// analyzer and the verifier's liveness cross-check both flag a
// use-after-consume at the same site, one as AUR-S-0002 and one as
// AUR-V-0003, and the user needs it once. The first report wins, so the
// earlier pipeline phase's code is the one that surfaces.
type DedupReporter struct {
	next       Reporter
	seen       map[dedupKey]struct{}
	suppressed int
}

type dedupKey struct {
	file  source.FileID
	start uint32
	end   uint32
	msg   string
}

// NewDedupReporter wraps next with duplicate suppression.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(code Code, sev Severity, primary source.Span, msg string, notes []Note, fixes []Fix) {
	if r == nil {
		return
	}
	key := dedupKey{
		file:  primary.File,
		start: primary.Start,
		end:   primary.End,
		msg:   msg,
	}
	if _, dup := r.seen[key]; dup {
		r.suppressed++
		return
	}
	r.seen[key] = struct{}{}
	if r.next != nil {
		r.next.Report(code, sev, primary, msg, notes, fixes)
	}
}

// Suppressed reports how many duplicates were swallowed, for trace
// output when the host wants to mention collapsed reports.
func (r *DedupReporter) Suppressed() int {
	if r == nil {
		return 0
	}
	return r.suppressed
}
