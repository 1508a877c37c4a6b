// The aura CLI is deliberately thin: the driver proper is out of this
// core's scope, so these commands only wire the four subsystems together
// for manual testing — check (analyzer+verifier), run (the gated AVM),
// and lsp (the proof orchestrator over stdio).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"aura/internal/manifest"
	"aura/internal/prof"
)

var (
	flagProfile    string
	flagCPUProfile string
	flagMemProfile string
	flagTrace      string
)

var rootCmd = &cobra.Command{
	Use:           "aura",
	Short:         "Aura toolchain: verify-before-run compiler core",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := prof.Start(prof.Options{CPUProfile: flagCPUProfile, Trace: flagTrace})
		if err != nil {
			return err
		}
		profSession = s
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if err := profSession.Stop(); err != nil {
			return err
		}
		if flagMemProfile != "" {
			return prof.WriteHeap(flagMemProfile)
		}
		return nil
	},
}

var profSession *prof.Session

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "SMT profile: fast, ci, or thorough")
	rootCmd.PersistentFlags().StringVar(&flagCPUProfile, "cpuprofile", "", "write a CPU profile to this path")
	rootCmd.PersistentFlags().StringVar(&flagMemProfile, "memprofile", "", "write a heap profile to this path")
	rootCmd.PersistentFlags().StringVar(&flagTrace, "trace", "", "write a runtime trace to this path")
	rootCmd.AddCommand(checkCmd, runCmd, lspCmd)
}

// loadManifest resolves aura.toml upward from the target file (or the
// working directory), then applies flag and env overrides.
func loadManifest(target string) (manifest.Manifest, string, error) {
	start := "."
	if target != "" {
		start = filepath.Dir(target)
	}
	m, err := manifest.LoadFromRoot(start)
	if err != nil {
		return manifest.Manifest{}, "", err
	}
	m = manifest.EnvOverride(m)
	if flagProfile != "" {
		p := manifest.Profile(flagProfile)
		if !p.Valid() {
			return manifest.Manifest{}, "", fmt.Errorf("unknown profile %q", flagProfile)
		}
		m.Profile = p
	}
	root, ok, err := manifest.FindProjectRoot(start)
	if err != nil || !ok {
		if wd, wderr := os.Getwd(); wderr == nil {
			root = wd
		}
	}
	return m, root, nil
}
