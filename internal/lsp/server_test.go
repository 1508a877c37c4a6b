package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"aura/internal/source"
)

func frame(t *testing.T, msgs ...rpcMessage) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, m := range msgs {
		payload, err := json.Marshal(m)
		require.NoError(t, err)
		require.NoError(t, writeMessage(&buf, payload))
	}
	return &buf
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func readAll(t *testing.T, out *bytes.Buffer) []rpcMessage {
	t.Helper()
	r := bufio.NewReader(out)
	var msgs []rpcMessage
	for {
		payload, err := readMessage(r)
		if err != nil {
			return msgs
		}
		var m rpcMessage
		require.NoError(t, json.Unmarshal(payload, &m))
		msgs = append(msgs, m)
	}
}

func TestInitializeAdvertisesAuraCapability(t *testing.T) {
	in := frame(t,
		rpcMessage{JSONRPC: "2.0", ID: raw(t, 1), Method: "initialize", Params: raw(t, initializeParams{})},
		rpcMessage{JSONRPC: "2.0", ID: raw(t, 2), Method: "shutdown"},
		rpcMessage{JSONRPC: "2.0", Method: "exit"},
	)
	var out bytes.Buffer
	s := NewServer(in, &out, ServerOptions{})
	err := s.Run(context.Background())
	require.ErrorIs(t, err, ErrExit)

	msgs := readAll(t, &out)
	require.NotEmpty(t, msgs)
	var res initializeResult
	require.NoError(t, json.Unmarshal(msgs[0].Result, &res))
	require.Equal(t, 1, res.Capabilities.Experimental.Aura.ProtocolVersion)
	require.Contains(t, res.Capabilities.Experimental.Aura.Phases, "z3")
	require.Contains(t, res.Capabilities.Experimental.Aura.Telemetry, "proofTimings")
	require.Contains(t, res.Capabilities.Experimental.Aura.Telemetry, "proofCache")
}

func TestExitWithoutShutdown(t *testing.T) {
	in := frame(t, rpcMessage{JSONRPC: "2.0", Method: "exit"})
	var out bytes.Buffer
	s := NewServer(in, &out, ServerOptions{})
	require.ErrorIs(t, s.Run(context.Background()), ErrExitWithoutShutdown)
}

func TestApplyIncrementalChanges(t *testing.T) {
	text := "val n = 7\n"
	changed := applyChanges(text, []textDocumentContentChangeEvent{{
		Range: &lspRange{
			Start: position{Line: 0, Character: 8},
			End:   position{Line: 0, Character: 9},
		},
		Text: "9",
	}})
	require.Equal(t, "val n = 9\n", changed)
}

func TestRangeForSpanUTF16(t *testing.T) {
	// the emoji is two UTF-16 code units; the span after it must shift
	text := "val \U0001F600x = 1\n"
	starts := lineStarts(text)
	xOff := uint32(strings.Index(text, "x"))
	r := rangeForSpan(text, starts, source.Span{Start: xOff, End: xOff + 1})
	require.Equal(t, 0, r.Start.Line)
	require.Equal(t, 6, r.Start.Character) // "val " is 4 + surrogate pair 2
}

func TestDispatchUnknownMethodAnswersRequests(t *testing.T) {
	in := frame(t,
		rpcMessage{JSONRPC: "2.0", ID: raw(t, 5), Method: "aura/doesNotExist"},
		rpcMessage{JSONRPC: "2.0", ID: raw(t, 6), Method: "shutdown"},
		rpcMessage{JSONRPC: "2.0", Method: "exit"},
	)
	var out bytes.Buffer
	s := NewServer(in, &out, ServerOptions{})
	require.ErrorIs(t, s.Run(context.Background()), ErrExit)
	msgs := readAll(t, &out)
	require.NotEmpty(t, msgs)
	require.NotNil(t, msgs[0].Error)
	require.Equal(t, -32601, msgs[0].Error.Code)
}
