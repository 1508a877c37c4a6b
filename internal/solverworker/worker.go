package solverworker

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"aura/internal/manifest"
)

// Status is the outcome of one obligation discharge.
type Status uint8

const (
	StatusUnsat Status = iota
	StatusSat
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusUnsat:
		return "unsat"
	case StatusSat:
		return "sat"
	default:
		return "unknown"
	}
}

// Result is what a Worker reports back for one obligation.
type Result struct {
	Status Status
	Core   []string          // UNSAT core labels, only set on StatusUnsat
	Model  map[string]string // variable -> literal value, only set on StatusSat
	Raw    string            // full solver transcript, kept for diagnostics Data.Model
}

// Request is one obligation discharge request, the unit of work handed to
// a Worker's message loop.
type Request struct {
	Script  Script
	Timeout time.Duration
}

// Worker runs obligations against a z3 binary on a single dedicated
// goroutine, one worker per orchestrator. Requests are serialized through
// a channel so callers never share a solver process concurrently.
type Worker struct {
	binary      string
	incremental bool
	seed        int64
	log         *zap.Logger

	reqs chan workItem
	done chan struct{}
	wg   sync.WaitGroup
}

type workItem struct {
	req    Request
	ctx    context.Context
	result chan<- workOutcome
}

type workOutcome struct {
	res Result
	err error
}

// NewWorker starts a Worker's message loop in the background. log may be
// nil, in which case a nop logger is used.
func NewWorker(cfg manifest.SolverConfig, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{
		binary:      cfg.Binary,
		incremental: cfg.Incremental || os.Getenv(EnvIncremental) != "",
		seed:        cfg.Seed,
		log:         log,
		reqs:        make(chan workItem),
		done:        make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// Close stops the worker's message loop and waits for it to exit.
func (w *Worker) Close() {
	close(w.done)
	w.wg.Wait()
}

func (w *Worker) loop() {
	defer w.wg.Done()
	var session *incrementalSession
	defer func() {
		if session != nil {
			session.close()
		}
	}()
	for {
		select {
		case <-w.done:
			return
		case item := <-w.reqs:
			var res Result
			var err error
			if w.incremental {
				if session == nil {
					session, err = startIncremental(w.binary, w.seed, w.log)
				}
				if err == nil {
					res, err = session.run(item.ctx, item.req)
					if err != nil {
						// a wedged session is abandoned; the next request
						// starts a fresh one
						session.close()
						session = nil
					}
				}
			} else {
				res, err = w.run(item.ctx, item.req)
			}
			item.result <- workOutcome{res: res, err: err}
		}
	}
}

// Discharge submits one obligation and blocks until the worker reports a
// result, the context is cancelled, or the worker is closed.
func (w *Worker) Discharge(ctx context.Context, req Request) (Result, error) {
	result := make(chan workOutcome, 1)
	select {
	case w.reqs <- workItem{req: req, ctx: ctx, result: result}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-w.done:
		return Result{}, fmt.Errorf("solverworker: worker closed")
	}
	select {
	case out := <-result:
		return out.res, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context, req Request) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, w.binary, "-in", fmt.Sprintf("smt.random_seed=%d", w.seed))
	cmd.Stdin = strings.NewReader(req.Script.Text)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if cctx.Err() != nil {
		w.log.Warn("solver timed out", zap.Duration("timeout", timeout))
		return Result{Status: StatusUnknown}, nil
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return Result{}, fmt.Errorf("solverworker: %s: %w", w.binary, err)
		}
		return Result{}, fmt.Errorf("solverworker: %s: %s", w.binary, msg)
	}

	return parseOutput(stdout.String(), req.Script.LabelOrder), nil
}

var modelLineRe = regexp.MustCompile(`\(define-fun\s+(\S+)\s+\(\)[^)]*\)\s*(.+)\)?\s*$`)

func parseOutput(out string, labels []string) Result {
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	res := Result{Raw: out, Status: StatusUnknown}
	labelSet := make(map[string]bool, len(labels))
	for _, l := range labels {
		labelSet[l] = true
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "unsat":
			res.Status = StatusUnsat
		case line == "sat":
			res.Status = StatusSat
		case line == "unknown":
			res.Status = StatusUnknown
		case strings.HasPrefix(line, "(") && res.Status == StatusUnsat && res.Core == nil:
			res.Core = parseCoreLine(line, labelSet)
		case strings.Contains(line, "define-fun") && res.Status == StatusSat:
			if m := modelLineRe.FindStringSubmatch(line); m != nil {
				if res.Model == nil {
					res.Model = make(map[string]string)
				}
				res.Model[m[1]] = strings.TrimRight(strings.TrimSpace(m[2]), ")")
			}
		}
	}
	return res
}

func parseCoreLine(line string, labelSet map[string]bool) []string {
	trimmed := strings.Trim(line, "()")
	fields := strings.Fields(trimmed)
	core := make([]string, 0, len(fields))
	for _, f := range fields {
		if labelSet[f] {
			core = append(core, f)
		}
	}
	return core
}
