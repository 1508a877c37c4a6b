package solverworker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EnvIncremental switches the worker to a single long-lived solver
// process with push/pop around each obligation instead of a fresh
// process per query.
const EnvIncremental = "AURA_Z3_INCREMENTAL"

// sentinel delimits one obligation's output on the shared stdout pipe.
const sentinel = "::aura-done::"

// incrementalSession owns one long-lived z3 process. It lives entirely on
// the worker goroutine; nothing else ever touches the pipes.
type incrementalSession struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   *bufio.Scanner
	log   *zap.Logger
}

func startIncremental(binary string, seed int64, log *zap.Logger) (*incrementalSession, error) {
	cmd := exec.Command(binary, "-in", fmt.Sprintf("smt.random_seed=%d", seed))
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("solverworker: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("solverworker: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("solverworker: start %s: %w", binary, err)
	}
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	s := &incrementalSession{cmd: cmd, stdin: stdin, out: sc, log: log}
	if _, err := io.WriteString(stdin, "(set-option :produce-unsat-cores true)\n"); err != nil {
		s.close()
		return nil, fmt.Errorf("solverworker: prime incremental session: %w", err)
	}
	return s, nil
}

func (s *incrementalSession) close() {
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
}

// run wraps one obligation in push/pop and reads its delimited output.
// The script's own option/logic lines are stripped: options are set once
// at session start, and set-logic cannot appear after assertions in a
// long-lived context.
func (s *incrementalSession) run(ctx context.Context, req Request) (Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 250 * time.Millisecond
	}

	var b strings.Builder
	fmt.Fprintf(&b, "(set-option :timeout %d)\n", timeout.Milliseconds())
	b.WriteString("(push 1)\n")
	for _, line := range strings.Split(req.Script.Text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "(set-option") || strings.HasPrefix(trimmed, "(set-logic") {
			continue
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("(pop 1)\n")
	fmt.Fprintf(&b, "(echo \"%s\")\n", sentinel)

	if _, err := io.WriteString(s.stdin, b.String()); err != nil {
		return Result{}, fmt.Errorf("solverworker: incremental write: %w", err)
	}

	type scanOut struct {
		text string
		err  error
	}
	done := make(chan scanOut, 1)
	go func() {
		var lines []string
		for s.out.Scan() {
			line := strings.TrimSpace(s.out.Text())
			if line == sentinel {
				done <- scanOut{text: strings.Join(lines, "\n")}
				return
			}
			// get-unsat-core / get-model error chatter on the non-matching
			// branch is expected and dropped
			if strings.HasPrefix(line, "(error") {
				continue
			}
			lines = append(lines, line)
		}
		done <- scanOut{err: fmt.Errorf("solverworker: incremental session closed: %w", s.out.Err())}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return Result{}, out.err
		}
		return parseOutput(out.text, req.Script.LabelOrder), nil
	case <-ctx.Done():
		// the session is mid-obligation and cannot be reused; the caller
		// restarts it lazily
		s.close()
		return Result{Status: StatusUnknown}, ctx.Err()
	}
}
