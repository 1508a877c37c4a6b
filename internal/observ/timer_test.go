package observ

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPhasesAccumulateAcrossBeginEndPairs(t *testing.T) {
	tm := NewTimer()
	tm.Begin("z3")
	time.Sleep(time.Millisecond)
	tm.End("z3", "")
	first := tm.Millis()["z3"]
	require.Positive(t, first)

	tm.Begin("z3")
	time.Sleep(time.Millisecond)
	tm.End("z3", "second definition")
	require.Greater(t, tm.Millis()["z3"], first)
	require.Len(t, tm.Phases(), 1, "re-entering a phase must not duplicate it")
}

func TestCacheCountersAttachToPhase(t *testing.T) {
	tm := NewTimer()
	tm.Begin("z3")
	tm.End("z3", "")
	tm.Cache("z3", 3, 1)
	tm.Cache("z3", 2, 0)

	phases := tm.Phases()
	require.Len(t, phases, 1)
	require.Equal(t, 5, phases[0].Hits)
	require.Equal(t, 1, phases[0].Misses)

	summary := tm.Summary()
	require.Contains(t, summary, "(5 cached, 1 verified)")
	require.Contains(t, summary, "total")
}

func TestMillisKeepsFirstBeginOrder(t *testing.T) {
	tm := NewTimer()
	for _, name := range []string{"parse", "sema", "normalize", "z3"} {
		tm.Begin(name)
		tm.End(name, "")
	}
	ms := tm.Millis()
	require.Len(t, ms, 4)
	require.Equal(t, []string{"normalize", "parse", "sema", "z3"}, tm.SortedNames())
	var order []string
	for _, p := range tm.Phases() {
		order = append(order, p.Name)
	}
	require.Equal(t, "parse sema normalize z3", strings.Join(order, " "))
}
