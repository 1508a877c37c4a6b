package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"aura/internal/diag"
	"aura/internal/frontend"
	"aura/internal/lspcore"
	"aura/internal/proofcache"
	"aura/internal/solverworker"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Analyze and verify a program without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("check: %w", err)
		}
		m, root, err := loadManifest(path)
		if err != nil {
			return err
		}

		worker := solverworker.NewWorker(m.Solver, nil)
		defer worker.Close()
		cache, err := proofcache.Open(proofcache.Options{
			Dir: filepath.Join(root, m.Cache.Dir),
		})
		if err != nil {
			return err
		}
		orch := lspcore.New(lspcore.Options{
			Manifest:      m,
			WorkspaceRoot: root,
			Solver:        worker,
			Cache:         cache,
			Parse:         frontend.Parse,
		})
		diags := orch.Proofs(cmd.Context(), path, string(data))
		printDiagnostics(string(data), path, diags)
		if err := cache.Persist(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not persist proof cache: %v\n", err)
		}
		if hasErrors(diags) {
			return fmt.Errorf("check failed")
		}
		fmt.Println("ok")
		return nil
	},
}

func hasErrors(diags []diag.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity.IsError() {
			return true
		}
	}
	return false
}

// printDiagnostics renders diagnostics sorted by span, colorized when
// stdout is an interactive terminal.
func printDiagnostics(text, path string, diags []diag.Diagnostic) {
	sorted := append([]diag.Diagnostic(nil), diags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Primary.Start < sorted[j].Primary.Start
	})
	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	errColor := color.New(color.FgRed, color.Bold)
	warnColor := color.New(color.FgYellow)
	for _, d := range sorted {
		line, col := lineColOf(text, d.Primary.Start)
		label := d.Code.ID()
		if isTTY {
			switch {
			case d.Severity.IsError():
				label = errColor.Sprint(label)
			case d.Severity == diag.SevWarning:
				label = warnColor.Sprint(label)
			}
		}
		fmt.Printf("%s:%d:%d: %s: %s\n", path, line, col, label, d.Message)
		for _, n := range d.Notes {
			nl, nc := lineColOf(text, n.Span.Start)
			fmt.Printf("  %s:%d:%d: note: %s\n", path, nl, nc, n.Msg)
		}
	}
}

func lineColOf(text string, off uint32) (int, int) {
	line, col := 1, 1
	for i := 0; i < len(text) && uint32(i) < off; i++ {
		if text[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}
