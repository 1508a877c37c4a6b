// Package observ times the proof pipeline. A Timer tracks the named
// phases of one run (parse, sema, normalize, z3) and, for the cache-aware
// phases, how many per-definition verdicts were reused versus recomputed
// — the two numbers the orchestrator's telemetry reports side by side.
package observ

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Phase is one named pipeline stage's measurements.
type Phase struct {
	Name   string
	Start  time.Time
	Dur    time.Duration
	Hits   int // cached verdicts reused in this phase
	Misses int // verdicts recomputed in this phase
	Note   string
}

// Timer tracks phases by name, in first-Begin order.
type Timer struct {
	order  []string
	phases map[string]*Phase
}

// NewTimer creates an empty Timer.
func NewTimer() *Timer {
	return &Timer{phases: make(map[string]*Phase, 4)}
}

func (t *Timer) phase(name string) *Phase {
	p, ok := t.phases[name]
	if !ok {
		p = &Phase{Name: name}
		t.phases[name] = p
		t.order = append(t.order, name)
	}
	return p
}

// Begin starts (or restarts) the named phase's clock.
func (t *Timer) Begin(name string) {
	t.phase(name).Start = time.Now()
}

// End stops the named phase, accumulating across Begin/End pairs so a
// phase entered once per definition still reports one total.
func (t *Timer) End(name string, note string) {
	p := t.phase(name)
	if !p.Start.IsZero() {
		p.Dur += time.Since(p.Start)
		p.Start = time.Time{}
	}
	if note != "" {
		p.Note = note
	}
}

// Cache records reuse counters against the named phase.
func (t *Timer) Cache(name string, hits, misses int) {
	p := t.phase(name)
	p.Hits += hits
	p.Misses += misses
}

// Millis reports each phase's total duration in milliseconds, the unit
// the telemetry payload carries.
func (t *Timer) Millis() map[string]float64 {
	out := make(map[string]float64, len(t.order))
	for _, name := range t.order {
		out[name] = float64(t.phases[name].Dur) / float64(time.Millisecond)
	}
	return out
}

// Phases returns the recorded phases in first-Begin order.
func (t *Timer) Phases() []Phase {
	out := make([]Phase, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, *t.phases[name])
	}
	return out
}

// Summary renders a human-readable table for the CLI's timing output.
func (t *Timer) Summary() string {
	var b strings.Builder
	b.WriteString("timings:\n")
	var total time.Duration
	for _, p := range t.Phases() {
		total += p.Dur
		fmt.Fprintf(&b, "  %-12s %8.2f ms", p.Name, float64(p.Dur)/float64(time.Millisecond))
		if p.Hits+p.Misses > 0 {
			fmt.Fprintf(&b, "  (%d cached, %d verified)", p.Hits, p.Misses)
		}
		if p.Note != "" {
			b.WriteString("  // " + p.Note)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "  %-12s %8.2f ms\n", "total", float64(total)/float64(time.Millisecond))
	return b.String()
}

// SortedNames returns the phase names alphabetically, for deterministic
// test assertions over Millis keys.
func (t *Timer) SortedNames() []string {
	names := append([]string(nil), t.order...)
	sort.Strings(names)
	return names
}
