package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"aura/internal/avm"
	"aura/internal/avmdebug"
	"aura/internal/avmprof"
	"aura/internal/avmui"
	"aura/internal/frontend"
	"aura/internal/solverworker"
)

var (
	flagEntry string
	flagUI    bool
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Verify a program and execute it on the AVM",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		src := string(data)
		m, root, err := loadManifest(path)
		if err != nil {
			return err
		}

		builder, fileID, parseDiags := frontend.Parse(path, src)
		if builder == nil || hasErrors(parseDiags) {
			printDiagnostics(src, path, parseDiags)
			return fmt.Errorf("run failed")
		}

		worker := solverworker.NewWorker(m.Solver, nil)
		defer worker.Close()
		gate := avm.NewVerifierGate(m.Profile, worker)

		var debug *avmdebug.Session
		if os.Getenv(avmdebug.EnvDebugProtocol) != "" {
			debug = avmdebug.NewSession(os.Stdin, os.Stdout)
		}
		prof := avmprof.NewTimeline()

		var ui avm.UIPlugin
		if flagUI && term.IsTerminal(int(os.Stdout.Fd())) {
			ui = avmui.New()
		}

		interp := avm.New(builder, fileID, avm.Options{
			SourceName: path,
			Source:     src,
			Gate:       gate,
			UI:         ui,
			Debug:      debug,
			Prof:       prof,
		})

		if flagEntry != "" {
			err = interp.RunEntry(cmd.Context(), flagEntry)
		} else {
			err = interp.Run(cmd.Context())
		}
		var rejected *avm.RejectedError
		if errors.As(err, &rejected) {
			printDiagnostics(src, path, rejected.Diags)
			return fmt.Errorf("run refused: program failed verification")
		}
		if err != nil {
			return err
		}

		cacheDir := filepath.Join(root, m.Cache.Dir)
		if perr := avmprof.Save(cacheDir, avm.SourceHash(src), prof, avmprof.CaptureMemory()); perr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not persist perf artifact: %v\n", perr)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&flagEntry, "entry", "", "entry cell to execute after init statements")
	runCmd.Flags().BoolVar(&flagUI, "ui", false, "present layout/render blocks interactively")
}
