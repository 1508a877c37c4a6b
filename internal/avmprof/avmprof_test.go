package avmprof

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTimelineFoldsStacks(t *testing.T) {
	tl := NewTimeline()
	pop := tl.Push("main")
	inner := tl.Push("tensor.len")
	inner()
	pop()

	flame := tl.FoldedFlame()
	require.Contains(t, flame, "main ")
	require.Contains(t, flame, "main;tensor.len ")
	require.Equal(t, 2, strings.Count(flame, "\n"))
}

func TestArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tl := NewTimeline()
	tl.Push("site")()

	mem := CaptureMemory()
	require.NoError(t, Save(dir, "deadbeef", tl, mem))

	art, ok := Load(dir, "deadbeef")
	require.True(t, ok)
	require.Equal(t, "deadbeef", art.FileHash)
	require.Len(t, art.Samples, 1)
	require.Equal(t, "site", art.Samples[0].Site)

	_, ok = Load(dir, "unknown")
	require.False(t, ok)
}

func TestDiffNanosReportsDelta(t *testing.T) {
	prev := Artifact{Samples: []Sample{{Site: "a", Nanos: 100}}}
	tl := NewTimeline()
	tl.Push("a")()
	diff := DiffNanos(prev, tl)
	require.Contains(t, diff, "a")
}
