package avmdebug

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBreakpointStopsThenResumeContinues(t *testing.T) {
	cmdR, cmdW := io.Pipe()
	var out safeBuffer
	s := NewSession(cmdR, &out)
	s.Enable(false, false)
	s.apply(Command{Type: CmdSetBreakpoints, Lines: []uint32{2}})
	s.apply(Command{Type: CmdSetWatches, Exprs: []string{"x"}})

	done := make(chan bool, 1)
	go func() {
		term := s.AtBoundary(Boundary{
			File: "a.aura", Line: 2, Col: 1,
			Env:       func() map[string]string { return map[string]string{"x": "7"} },
			EvalWatch: func(string) (string, error) { return "7", nil },
		})
		done <- term
	}()

	waitFor(t, &out, `"Stopped"`)
	_, err := cmdW.Write([]byte(`{"type":"Resume"}` + "\n"))
	require.NoError(t, err)

	select {
	case term := <-done:
		require.False(t, term)
	case <-time.After(5 * time.Second):
		t.Fatal("boundary never resumed")
	}

	text := out.String()
	require.Contains(t, text, `"reason":"breakpoint"`)
	require.Contains(t, text, `"x":"7"`)
}

func TestTerminateIsHonoredCooperatively(t *testing.T) {
	var out safeBuffer
	s := NewSession(strings.NewReader(""), &out)
	s.Enable(false, false)
	s.apply(Command{Type: CmdTerminate})
	require.True(t, s.AtBoundary(Boundary{File: "a.aura", Line: 1}))
}

func TestUnstoppedBoundaryIsCheap(t *testing.T) {
	var out safeBuffer
	s := NewSession(strings.NewReader(""), &out)
	s.Enable(false, false)
	envCalled := false
	term := s.AtBoundary(Boundary{
		File: "a.aura", Line: 1,
		Env: func() map[string]string { envCalled = true; return nil },
	})
	require.False(t, term)
	require.False(t, envCalled, "snapshot thunks must not run when not stopped")
}

func waitFor(t *testing.T, buf *safeBuffer, substr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), substr) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("never saw %q in %q", substr, buf.String())
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
