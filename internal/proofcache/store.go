package proofcache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"aura/internal/diag"
	"aura/internal/project"
)

const schemaVersion = 1

// Environment toggles recognized at Open time.
const (
	EnvDisable        = "AURA_PROOF_CACHE_DISABLE"
	EnvPersistDisable = "AURA_PROOF_CACHE_PERSIST_DISABLE"
	EnvClearOnStart   = "AURA_PROOF_CACHE_CLEAR_ON_START"
	EnvMaxEntries     = "AURA_PROOF_CACHE_MAX_ENTRIES"
)

// FullVerdict is a whole-file run's cached outcome: whether verification
// passed and the full diagnostic list it produced.
type FullVerdict struct {
	Verified bool              `json:"verified"`
	Diags    []diag.Diagnostic `json:"diags,omitempty"`
}

// Entry is one base_key partition's cached verdicts.
type Entry struct {
	FullByFile map[string]FullVerdict       `json:"full_by_file"` // file_hash -> whole-file outcome
	StmtDiags  map[string][]diag.Diagnostic `json:"stmt_diags"`   // stmt_merkle -> diagnostics
	UIByHash   map[string][]diag.Diagnostic `json:"ui_by_hash"`   // ui_merkle -> diagnostics
	touchedAt  time.Time
}

func newEntry() *Entry {
	return &Entry{
		FullByFile: make(map[string]FullVerdict),
		StmtDiags:  make(map[string][]diag.Diagnostic),
		UIByHash:   make(map[string][]diag.Diagnostic),
	}
}

type diskSchema struct {
	Version int               `json:"version"`
	Entries map[string]*Entry `json:"entries"`
}

// Store is the reader-writer-locked in-memory proof cache, backed by a
// best-effort disk file written atomically (temp + rename).
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	path       string
	maxEntries int
	disabled   bool
	persist    bool
	log        *zap.Logger
}

// Options configures a new Store, normally derived from manifest config
// plus environment overrides.
type Options struct {
	Dir        string
	MaxEntries int
	Log        *zap.Logger
}

// Open loads (or creates) a Store rooted at opts.Dir/proof-cache-v1.json,
// applying the documented environment toggles.
func Open(opts Options) (*Store, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{
		entries:    make(map[string]*Entry),
		path:       filepath.Join(opts.Dir, "proof-cache-v1.json"),
		maxEntries: opts.MaxEntries,
		disabled:   os.Getenv(EnvDisable) != "",
		persist:    os.Getenv(EnvPersistDisable) == "",
		log:        log,
	}
	if v := os.Getenv(EnvMaxEntries); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			s.maxEntries = n
		}
	}
	if s.maxEntries <= 0 {
		s.maxEntries = 512
	}
	if os.Getenv(EnvClearOnStart) != "" {
		return s, nil
	}
	if s.disabled {
		return s, nil
	}
	if err := s.load(); err != nil && !os.IsNotExist(err) {
		log.Warn("proof cache load failed, starting empty", zap.Error(err))
	}
	return s, nil
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, os.ErrInvalid
	}
	return n, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var disk diskSchema
	if err := json.Unmarshal(data, &disk); err != nil {
		return err
	}
	if disk.Version != schemaVersion {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range disk.Entries {
		if e.FullByFile == nil {
			e.FullByFile = make(map[string]FullVerdict)
		}
		if e.StmtDiags == nil {
			e.StmtDiags = make(map[string][]diag.Diagnostic)
		}
		if e.UIByHash == nil {
			e.UIByHash = make(map[string][]diag.Diagnostic)
		}
		e.touchedAt = time.Now()
		s.entries[k] = e
	}
	return nil
}

// Persist writes the store to disk atomically (temp file + rename). It is
// a no-op when disabled or when persistence is turned off.
func (s *Store) Persist() error {
	if s.disabled || !s.persist {
		return nil
	}
	s.mu.RLock()
	disk := diskSchema{Version: schemaVersion, Entries: s.entries}
	data, err := json.MarshalIndent(disk, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "proof-cache-*.tmp")
	if err != nil {
		return err
	}
	tmpName := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpName)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}

// entryFor returns (creating if needed) the Entry for a base key. Caller
// must hold s.mu.
func (s *Store) entryFor(base project.Digest) *Entry {
	k := base.Hex()
	e, ok := s.entries[k]
	if !ok {
		e = newEntry()
		s.entries[k] = e
		s.evictIfNeeded()
	}
	e.touchedAt = time.Now()
	return e
}

func (s *Store) evictIfNeeded() {
	if len(s.entries) <= s.maxEntries {
		return
	}
	type kv struct {
		key string
		at  time.Time
	}
	ordered := make([]kv, 0, len(s.entries))
	for k, e := range s.entries {
		ordered = append(ordered, kv{k, e.touchedAt})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].at.Before(ordered[j].at) })
	for len(s.entries) > s.maxEntries && len(ordered) > 0 {
		delete(s.entries, ordered[0].key)
		ordered = ordered[1:]
	}
}

// FullHit reports whether fileHash has a cached whole-file verdict under
// base.
func (s *Store) FullHit(base project.Digest, fileHash project.Digest) (FullVerdict, bool) {
	if s.disabled {
		return FullVerdict{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, present := s.entries[base.Hex()]
	if !present {
		return FullVerdict{}, false
	}
	v, ok := e.FullByFile[fileHash.Hex()]
	return v, ok
}

// PutFull records a whole-file verdict along with the diagnostics the run
// produced, so a later hit can answer without re-parsing anything.
func (s *Store) PutFull(base, fileHash project.Digest, verdict FullVerdict) {
	if s.disabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(base)
	e.FullByFile[fileHash.Hex()] = verdict
}

// StmtDiagnostics returns the cached diagnostics for a stmt_merkle, if any.
func (s *Store) StmtDiagnostics(base, stmtMerkle project.Digest) ([]diag.Diagnostic, bool) {
	if s.disabled {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[base.Hex()]
	if !ok {
		return nil, false
	}
	d, ok := e.StmtDiags[stmtMerkle.Hex()]
	return d, ok
}

// PutStmtDiagnostics caches diagnostics for a single top-level definition.
func (s *Store) PutStmtDiagnostics(base, stmtMerkle project.Digest, diags []diag.Diagnostic) {
	if s.disabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(base)
	e.StmtDiags[stmtMerkle.Hex()] = diags
}

// UIDiagnostics returns cached whole-program UI-check diagnostics.
func (s *Store) UIDiagnostics(base, uiMerkle project.Digest) ([]diag.Diagnostic, bool) {
	if s.disabled {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[base.Hex()]
	if !ok {
		return nil, false
	}
	d, ok := e.UIByHash[uiMerkle.Hex()]
	return d, ok
}

// PutUIDiagnostics caches whole-program UI-check diagnostics.
func (s *Store) PutUIDiagnostics(base, uiMerkle project.Digest, diags []diag.Diagnostic) {
	if s.disabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryFor(base)
	e.UIByHash[uiMerkle.Hex()] = diags
}

// Clear drops all entries under the given base key, or every entry when
// base is nil, serving the aura/proofCacheClear LSP method.
func (s *Store) Clear(base *project.Digest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if base == nil {
		s.entries = make(map[string]*Entry)
		return
	}
	delete(s.entries, base.Hex())
}

// Len reports the number of base_key partitions currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
