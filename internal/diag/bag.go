package diag

import (
	"fmt"
	"sort"
)

// Bag accumulates diagnostics for one pipeline run. It stores values,
// not pointers: diagnostics are cached, serialized, and replayed by the
// proof cache, so aliasing a producer's mutable record would let a later
// edit rewrite history.
type Bag struct {
	items []Diagnostic
	limit int
}

// NewBag creates a Bag that stops accepting entries past limit; a
// runaway producer (a cascading parse failure, a verifier loop) degrades
// to a truncated report instead of unbounded growth.
func NewBag(limit int) *Bag {
	if limit <= 0 {
		limit = 1
	}
	capHint := limit
	if capHint > 64 {
		capHint = 64
	}
	return &Bag{items: make([]Diagnostic, 0, capHint), limit: limit}
}

// Add appends d, reporting false once the bag is full.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= b.limit {
		return false
	}
	b.items = append(b.items, d)
	return true
}

// Len reports the number of collected diagnostics.
func (b *Bag) Len() int { return len(b.items) }

// Items returns the collected diagnostics. The slice aliases the bag's
// storage; callers that keep it must not Add concurrently.
func (b *Bag) Items() []Diagnostic { return b.items }

// HasErrors reports whether any entry blocks admission.
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity.IsError() {
			return true
		}
	}
	return false
}

// Merge appends every entry of other, widening the limit as needed.
func (b *Bag) Merge(other *Bag) {
	if other == nil {
		return
	}
	if total := len(b.items) + len(other.items); total > b.limit {
		b.limit = total
	}
	b.items = append(b.items, other.items...)
}

// Sort orders entries by file, span, descending severity, then stable
// code, so reports and cached entries are deterministic.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := &b.items[i], &b.items[j]
		if di.Primary.File != dj.Primary.File {
			return di.Primary.File < dj.Primary.File
		}
		if di.Primary.Start != dj.Primary.Start {
			return di.Primary.Start < dj.Primary.Start
		}
		if di.Primary.End != dj.Primary.End {
			return di.Primary.End < dj.Primary.End
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code.ID() < dj.Code.ID()
	})
}

// Dedup drops entries that repeat an earlier one's code, span, and
// message. The analyzer and the verifier's liveness cross-check can both
// flag the same defect; one report is enough.
func (b *Bag) Dedup() {
	seen := make(map[string]bool, len(b.items))
	kept := b.items[:0]
	for _, d := range b.items {
		key := fmt.Sprintf("%s|%s|%s", d.Code.ID(), d.Primary, d.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, d)
	}
	b.items = kept
}
