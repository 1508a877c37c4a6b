package manifest

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Profile names one of the three fixed SMT verification profiles. Each
// carries a solver timeout and a quantifier policy.
type Profile string

const (
	ProfileFast     Profile = "fast"
	ProfileCI       Profile = "ci"
	ProfileThorough Profile = "thorough"
)

// Timeout returns T_profile: the per-obligation SMT timeout for the profile.
func (p Profile) Timeout() time.Duration {
	switch p {
	case ProfileFast:
		return 50 * time.Millisecond
	case ProfileCI:
		return 250 * time.Millisecond
	case ProfileThorough:
		return 2000 * time.Millisecond
	default:
		return 250 * time.Millisecond
	}
}

// QuantifiersAllowed reports whether the profile's SMT translation layer
// permits forall/exists terms at all.
func (p Profile) QuantifiersAllowed() bool {
	return p == ProfileThorough
}

// Valid reports whether p is one of the three recognized profiles.
func (p Profile) Valid() bool {
	switch p {
	case ProfileFast, ProfileCI, ProfileThorough:
		return true
	default:
		return false
	}
}

// SolverConfig configures the background SMT worker.
type SolverConfig struct {
	Binary      string `toml:"binary"`
	Incremental bool   `toml:"incremental"`
	Seed        int64  `toml:"seed"`
}

// CacheConfig configures the proof cache's on-disk location.
type CacheConfig struct {
	Dir string `toml:"dir"`
}

// Manifest is the parsed shape of aura.toml.
type Manifest struct {
	Name    string       `toml:"name"`
	Profile Profile      `toml:"profile"`
	Solver  SolverConfig `toml:"solver"`
	Cache   CacheConfig  `toml:"cache"`
}

// Default returns the manifest used when no aura.toml is found: the `ci`
// profile, a `z3` binary resolved from PATH, a fresh solver per
// obligation, and a `.aura/cache` proof cache.
func Default() Manifest {
	return Manifest{
		Profile: ProfileCI,
		Solver:  SolverConfig{Binary: "z3", Incremental: false, Seed: 0},
		Cache:   CacheConfig{Dir: ".aura/cache"},
	}
}

// Load parses the aura.toml at path, filling unset fields from Default.
func Load(path string) (Manifest, error) {
	m := Default()
	if _, err := os.Stat(path); err != nil {
		return m, fmt.Errorf("manifest: stat %q: %w", path, err)
	}
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return Manifest{}, fmt.Errorf("manifest: decode %q: %w", path, err)
	}
	if !m.Profile.Valid() {
		return Manifest{}, fmt.Errorf("manifest: unknown profile %q", m.Profile)
	}
	if m.Solver.Binary == "" {
		m.Solver.Binary = "z3"
	}
	if m.Cache.Dir == "" {
		m.Cache.Dir = ".aura/cache"
	}
	return m, nil
}

// LoadFromRoot locates aura.toml starting at startDir and parses it,
// falling back to Default when no manifest is found anywhere above
// startDir (a single-file script run with no project).
func LoadFromRoot(startDir string) (Manifest, error) {
	path, ok, err := FindAuraToml(startDir)
	if err != nil {
		return Manifest{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// EnvOverride applies the AURA_PROFILE environment variable over m.Profile
// when set, the override mechanism named for aura.toml's profile field.
func EnvOverride(m Manifest) Manifest {
	if v := os.Getenv("AURA_PROFILE"); v != "" {
		if p := Profile(v); p.Valid() {
			m.Profile = p
		}
	}
	return m
}
