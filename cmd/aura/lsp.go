package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"aura/internal/frontend"
	"aura/internal/lsp"
	"aura/internal/lspcore"
	"aura/internal/proofcache"
	"aura/internal/solverworker"
)

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Serve the proof orchestrator over stdio JSON-RPC",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, root, err := loadManifest("")
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

		var server *lsp.Server
		build := func(phases []string, timings, cacheTel bool) *lspcore.Orchestrator {
			return lspcore.New(lspcore.Options{
				Manifest:         m,
				WorkspaceRoot:    root,
				Solver:           worker,
				Cache:            cache,
				Parse:            frontend.Parse,
				Notifier:         notifierFunc(func(ev lspcore.StreamEvent) { server.Notify(ev) }),
				PhaseAllowList:   phases,
				TelemetryTimings: timings,
				TelemetryCache:   cacheTel,
			})
		}
		server = lsp.NewServer(os.Stdin, os.Stdout, lsp.ServerOptions{
			Orchestrator: build(nil, false, false),
			Reconfigure:  build,
		})

		err = server.Run(cmd.Context())
		if errors.Is(err, lsp.ErrExit) || errors.Is(err, lsp.ErrExitWithoutShutdown) {
			return nil
		}
		return err
	},
}

type notifierFunc func(lspcore.StreamEvent)

func (f notifierFunc) Notify(ev lspcore.StreamEvent) { f(ev) }
