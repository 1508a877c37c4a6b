// Package avmprof accumulates the interpreter's per-site performance
// timeline, folds it into a flame graph, and snapshots live memory. The
// artifact persists as a versioned msgpack payload under
// .aura/cache/prof/<file_hash>.mp so a hot-reload cycle can diff timings
// against the previous run without re-parsing JSON.
package avmprof

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// schemaVersion increments when the disk payload shape changes.
const schemaVersion = 1

// Sample is one call site's accumulated cost.
type Sample struct {
	Site    string `msgpack:"site" json:"site"`
	Nanos   int64  `msgpack:"nanos" json:"nanos"`
	Count   int64  `msgpack:"count" json:"count"`
}

// MemorySummary is the live-memory snapshot reported at run completion.
type MemorySummary struct {
	HeapAlloc   uint64 `msgpack:"heap_alloc" json:"heap_alloc"`
	HeapObjects uint64 `msgpack:"heap_objects" json:"heap_objects"`
	NumGC       uint32 `msgpack:"num_gc" json:"num_gc"`
}

// Timeline accumulates per-site nanosecond durations, keyed by the
// call-stack path at record time.
type Timeline struct {
	mu    sync.Mutex
	sites map[string]*Sample
	stack []string
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{sites: make(map[string]*Sample)}
}

// Push enters a named frame; the returned func pops it and records the
// elapsed time against the folded stack path.
func (t *Timeline) Push(site string) func() {
	t.mu.Lock()
	t.stack = append(t.stack, site)
	path := strings.Join(t.stack, ";")
	t.mu.Unlock()
	start := time.Now()
	return func() {
		d := time.Since(start)
		t.mu.Lock()
		if len(t.stack) > 0 {
			t.stack = t.stack[:len(t.stack)-1]
		}
		s, ok := t.sites[path]
		if !ok {
			s = &Sample{Site: path}
			t.sites[path] = s
		}
		s.Nanos += d.Nanoseconds()
		s.Count++
		t.mu.Unlock()
	}
}

// Samples returns the accumulated samples sorted by site path.
func (t *Timeline) Samples() []Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sample, 0, len(t.sites))
	for _, s := range t.sites {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Site < out[j].Site })
	return out
}

// FoldedFlame renders the timeline in folded flame-graph format: one
// "path;to;site value" line per sample, value in microseconds.
func (t *Timeline) FoldedFlame() string {
	var b strings.Builder
	for _, s := range t.Samples() {
		fmt.Fprintf(&b, "%s %d\n", s.Site, s.Nanos/1000)
	}
	return b.String()
}

// CaptureMemory snapshots the live heap.
func CaptureMemory() MemorySummary {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemorySummary{
		HeapAlloc:   ms.HeapAlloc,
		HeapObjects: ms.HeapObjects,
		NumGC:       ms.NumGC,
	}
}

// Artifact is the persisted perf payload for one program hash.
type Artifact struct {
	Version  int           `msgpack:"version"`
	FileHash string        `msgpack:"file_hash"`
	Samples  []Sample      `msgpack:"samples"`
	Memory   MemorySummary `msgpack:"memory"`
}

func artifactPath(cacheDir, fileHash string) string {
	return filepath.Join(cacheDir, "prof", fileHash+".mp")
}

// Save writes the artifact atomically (temp + rename).
func Save(cacheDir, fileHash string, tl *Timeline, mem MemorySummary) error {
	art := Artifact{
		Version:  schemaVersion,
		FileHash: fileHash,
		Samples:  tl.Samples(),
		Memory:   mem,
	}
	dir := filepath.Join(cacheDir, "prof")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "prof-*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(&art); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, artifactPath(cacheDir, fileHash))
}

// Load reads a previously saved artifact; ok=false covers both a missing
// file and a schema mismatch.
func Load(cacheDir, fileHash string) (Artifact, bool) {
	f, err := os.Open(artifactPath(cacheDir, fileHash))
	if err != nil {
		return Artifact{}, false
	}
	defer f.Close()
	var art Artifact
	if err := msgpack.NewDecoder(f).Decode(&art); err != nil || art.Version != schemaVersion {
		return Artifact{}, false
	}
	return art, true
}

// DiffNanos reports per-site deltas against a previous run: positive
// means this run was slower.
func DiffNanos(prev Artifact, tl *Timeline) map[string]int64 {
	before := make(map[string]int64, len(prev.Samples))
	for _, s := range prev.Samples {
		before[s.Site] = s.Nanos
	}
	out := make(map[string]int64)
	for _, s := range tl.Samples() {
		out[s.Site] = s.Nanos - before[s.Site]
	}
	return out
}
