package lspcore

import (
	"fmt"
	"sort"

	"aura/internal/diag"
)

// maxInjectionHints bounds how many ghost-annotation insertions one
// diagnostic may carry.
const maxInjectionHints = 8

// mapCounterexamples locates each reported model binding's identifier
// occurrence in the source — preferring one inside the error span, else
// the closest — and derives injection hints: non-destructive insertions
// of the form ` /* name = value */` a client can apply as ghost text.
func mapCounterexamples(text string, diags []diag.Diagnostic) {
	for i := range diags {
		d := &diags[i]
		ce := d.Data.Counterexample
		if ce == nil || len(ce.Slice) == 0 {
			continue
		}
		hints := make([]string, 0, min(len(ce.Slice), maxInjectionHints))
		for _, bnd := range ce.Slice {
			if len(hints) >= maxInjectionHints {
				break
			}
			pos, ok := nearestOccurrence(text, bnd.Name, d.Primary.Start, d.Primary.End)
			if !ok {
				continue
			}
			insertAt := pos + uint32(len(bnd.Name))
			hints = append(hints, fmt.Sprintf("%d: /* %s = %s */", insertAt, bnd.Name, bnd.Value))
		}
		if len(hints) > 0 {
			d.Data.Meta.Hints = hints
			ce.Mapped = true
		}
	}
}

// nearestOccurrence scans for boundary-aware occurrences of name,
// choosing the one closest to the span — occurrences inside it win.
func nearestOccurrence(text, name string, start, end uint32) (uint32, bool) {
	best := -1
	bestScore := int64(-1)
	from := 0
	for {
		pos := identOccurrence(text, name, from)
		if pos < 0 {
			break
		}
		score := occurrenceScore(uint32(pos), uint32(pos+len(name)), start, end)
		if best < 0 || score < bestScore {
			best = pos
			bestScore = score
		}
		from = pos + 1
	}
	if best < 0 {
		return 0, false
	}
	return uint32(best), true
}

// occurrenceScore ranks candidate occurrences: inside the span scores 0,
// outside scores its byte distance to the nearer edge.
func occurrenceScore(oStart, oEnd, sStart, sEnd uint32) int64 {
	if oStart < sEnd && sStart < oEnd {
		return 0
	}
	if oEnd <= sStart {
		return int64(sStart - oEnd + 1)
	}
	return int64(oStart - sEnd + 1)
}

// sortRelated orders every diagnostic's related information by span
// start, so clients render it in source order.
func sortRelated(diags []diag.Diagnostic) {
	for i := range diags {
		d := &diags[i]
		sort.SliceStable(d.Notes, func(a, b int) bool {
			return d.Notes[a].Span.Start < d.Notes[b].Span.Start
		})
		sort.SliceStable(d.Data.Meta.Related, func(a, b int) bool {
			return d.Data.Meta.Related[a].Span.Start < d.Data.Meta.Related[b].Span.Start
		})
	}
}
