package avmdebug

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Boundary is the interpreter's view of one statement boundary: where it
// is and how to stringify state on demand. Snapshots are thunks so an
// un-stopped boundary costs nothing.
type Boundary struct {
	File string
	Line uint32
	Col  uint32
	// Env snapshots the current environment as name -> printed value.
	Env func() map[string]string
	// EvalWatch evaluates one watch expression in restricted pure mode;
	// the error string is shown verbatim for rejected expressions.
	EvalWatch func(expr string) (string, error)
}

// Session mediates between the interpreter and a debug client. Commands
// arrive on a stdin reader goroutine; the interpreter polls at statement
// boundaries and blocks while stopped.
type Session struct {
	mu          sync.Mutex
	cond        *sync.Cond
	out         io.Writer
	enabled     bool
	perf        bool
	paused      bool
	stepPending bool
	terminated  bool
	breakpoints map[uint32]bool
	watches     []string
}

// NewSession wires a session to its output stream and starts consuming
// commands from in.
func NewSession(in io.Reader, out io.Writer) *Session {
	s := &Session{
		out:         out,
		breakpoints: make(map[uint32]bool),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.readLoop(in)
	s.Emit(Event{Type: EventHello, Protocol: 1, Capabilities: []string{
		"breakpoints", "watches", "step", "pause", "perf",
	}})
	return s
}

func (s *Session) readLoop(in io.Reader) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var cmd Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}
		s.apply(cmd)
	}
}

func (s *Session) apply(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch cmd.Type {
	case CmdEnable:
		s.enabled = true
		s.perf = cmd.Perf
		s.paused = cmd.StartPaused
	case CmdPause:
		s.paused = true
	case CmdResume:
		s.paused = false
		s.stepPending = false
	case CmdStep:
		s.paused = false
		s.stepPending = true
	case CmdSetBreakpoints:
		s.breakpoints = make(map[uint32]bool, len(cmd.Lines))
		for _, l := range cmd.Lines {
			s.breakpoints[l] = true
		}
	case CmdSetWatches:
		s.watches = append([]string(nil), cmd.Exprs...)
	case CmdTerminate:
		s.terminated = true
		s.paused = false
	}
	s.cond.Broadcast()
}

// Enable turns the session on programmatically, without waiting for an
// Enable command.
func (s *Session) Enable(startPaused, perf bool) {
	s.apply(Command{Type: CmdEnable, StartPaused: startPaused, Perf: perf})
}

// PerfEnabled reports whether perf collection was requested.
func (s *Session) PerfEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && s.perf
}

// Emit writes one event as a prefixed JSON line.
func (s *Session) Emit(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(s.out, "%s%s\n", EventPrefix, payload)
}

// AtBoundary is consulted at every statement boundary. It decides whether
// to stop, emits the Stopped event with environment and watch values,
// blocks until resumed, and reports whether the program should terminate
// cooperatively.
func (s *Session) AtBoundary(b Boundary) (terminate bool) {
	s.mu.Lock()
	if !s.enabled {
		terminated := s.terminated
		s.mu.Unlock()
		return terminated
	}
	if s.terminated {
		s.mu.Unlock()
		return true
	}

	reason := ""
	switch {
	case s.breakpoints[b.Line]:
		reason = ReasonBreakpoint
	case s.stepPending:
		reason = ReasonStep
		s.stepPending = false
	case s.paused:
		reason = ReasonPause
	}
	if reason == "" {
		s.mu.Unlock()
		return false
	}
	s.paused = true
	watches := append([]string(nil), s.watches...)
	s.mu.Unlock()

	ev := Event{
		Type: EventStopped, Reason: reason,
		File: b.File, Line: b.Line, Col: b.Col,
	}
	if b.Env != nil {
		ev.Env = b.Env()
	}
	if len(watches) > 0 && b.EvalWatch != nil {
		ev.Watches = make(map[string]string, len(watches))
		for _, w := range watches {
			v, err := b.EvalWatch(w)
			if err != nil {
				v = "<error: " + err.Error() + ">"
			}
			ev.Watches[w] = v
		}
	}
	s.Emit(ev)

	s.mu.Lock()
	for s.paused && !s.terminated {
		s.cond.Wait()
	}
	terminated := s.terminated
	s.mu.Unlock()
	return terminated
}

// Terminated reports whether a cooperative terminate was requested.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Finish emits the Terminated event for target.
func (s *Session) Finish(target string) {
	s.Emit(Event{Type: EventTerminated, Target: target})
}
