// Package prof self-profiles the toolchain process (the analyzer,
// verifier, and orchestrator — not the programs the AVM runs; those are
// timed by avmprof). A Session bundles whichever collectors the CLI
// flags requested so commands start and stop them as one unit.
package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// Options name the artifact paths to collect into; empty fields disable
// that collector.
type Options struct {
	CPUProfile string
	Trace      string
}

// Session holds the active collectors between Start and Stop.
type Session struct {
	cpu   *os.File
	trace *os.File
}

// Start begins the requested collectors. A partially failed start stops
// whatever already began before returning the error.
func Start(opts Options) (*Session, error) {
	s := &Session{}
	if opts.CPUProfile != "" {
		f, err := create(opts.CPUProfile)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("prof: start cpu profile: %w", err)
		}
		s.cpu = f
	}
	if opts.Trace != "" {
		f, err := create(opts.Trace)
		if err != nil {
			s.Stop()
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			f.Close()
			s.Stop()
			return nil, fmt.Errorf("prof: start trace: %w", err)
		}
		s.trace = f
	}
	return s, nil
}

// Stop ends every active collector and closes its artifact.
func (s *Session) Stop() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.cpu != nil {
		pprof.StopCPUProfile()
		if err := s.cpu.Close(); err != nil {
			errs = append(errs, fmt.Errorf("prof: close cpu profile: %w", err))
		}
		s.cpu = nil
	}
	if s.trace != nil {
		trace.Stop()
		if err := s.trace.Close(); err != nil {
			errs = append(errs, fmt.Errorf("prof: close trace: %w", err))
		}
		s.trace = nil
	}
	return errors.Join(errs...)
}

// WriteHeap captures a heap profile after a forced collection, so the
// snapshot reflects live memory rather than garbage awaiting sweep.
func WriteHeap(path string) error {
	f, err := create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("prof: write heap profile: %w", err)
	}
	return nil
}

func create(path string) (*os.File, error) {
	// #nosec G304 -- the path comes from the operator's own flag
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("prof: create %q: %w", path, err)
	}
	return f, nil
}
