// Package lsp is the JSON-RPC-over-stdio transport for the proof
// orchestrator: document sync, the aura/proofs* methods, and the
// streamed aura/proofsStream notifications.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"aura/internal/diag"
	"aura/internal/lspcore"
	"aura/internal/manifest"
)

var (
	// ErrExit signals a graceful shutdown after receiving "exit".
	ErrExit = errors.New("lsp exit")
	// ErrExitWithoutShutdown signals an "exit" without a preceding "shutdown".
	ErrExitWithoutShutdown = errors.New("lsp exit without shutdown")
)

// EnvTraceLSP enables request/notification tracing on stderr.
const EnvTraceLSP = "AURA_TRACE_LSP"

// ServerOptions configure the LSP server.
type ServerOptions struct {
	Orchestrator *lspcore.Orchestrator
	// Reconfigure rebuilds the orchestrator once the client's
	// experimental.aura capabilities are known at initialize time.
	Reconfigure func(phases []string, timings, cache bool) *lspcore.Orchestrator
	Debounce    time.Duration
}

// Server handles stdio JSON-RPC for the Aura LSP.
type Server struct {
	in     *bufio.Reader
	out    *bufio.Writer
	sendMu sync.Mutex

	mu       sync.Mutex
	openDocs map[string]string
	versions map[string]int

	orch              *lspcore.Orchestrator
	reconfigure       func(phases []string, timings, cache bool) *lspcore.Orchestrator
	debounce          time.Duration
	debounceTimer     *time.Timer
	shutdownRequested bool
	traceLSP          bool
	baseCtx           context.Context
}

// NewServer constructs a server reading from in and writing to out.
func NewServer(in io.Reader, out io.Writer, opts ServerOptions) *Server {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	return &Server{
		in:          bufio.NewReader(in),
		out:         bufio.NewWriter(out),
		openDocs:    make(map[string]string),
		versions:    make(map[string]int),
		orch:        opts.Orchestrator,
		reconfigure: opts.Reconfigure,
		debounce:    debounce,
		traceLSP:    os.Getenv(EnvTraceLSP) != "",
	}
}

// Run serves LSP requests until shutdown/exit or input EOF.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	for {
		payload, err := readMessage(s.in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		var msg rpcMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			s.trace("bad message: %v", err)
			continue
		}
		if err := s.dispatch(ctx, &msg); err != nil {
			if errors.Is(err, ErrExit) || errors.Is(err, ErrExitWithoutShutdown) {
				return err
			}
			return err
		}
	}
}

func (s *Server) trace(format string, args ...any) {
	if s.traceLSP {
		fmt.Fprintf(os.Stderr, "[aura-lsp] "+format+"\n", args...)
	}
}

func (s *Server) dispatch(ctx context.Context, msg *rpcMessage) error {
	s.trace("<- %s", msg.Method)
	switch msg.Method {
	case "initialize":
		return s.handleInitialize(msg)
	case "initialized":
		return nil
	case "shutdown":
		s.mu.Lock()
		s.shutdownRequested = true
		s.mu.Unlock()
		return s.reply(msg.ID, nil, nil)
	case "exit":
		s.mu.Lock()
		requested := s.shutdownRequested
		s.mu.Unlock()
		if requested {
			return ErrExit
		}
		return ErrExitWithoutShutdown
	case "textDocument/didOpen":
		return s.handleDidOpen(msg)
	case "textDocument/didChange":
		return s.handleDidChange(msg)
	case "textDocument/didClose":
		return s.handleDidClose(msg)
	case "aura/proofs":
		return s.handleProofs(ctx, msg)
	case "aura/proofsStreamStart":
		return s.handleStreamStart(msg)
	case "aura/proofsStreamCancel":
		return s.handleStreamCancel(msg)
	case "aura/proofCacheClear":
		return s.handleCacheClear(msg)
	default:
		if msg.ID != nil {
			return s.reply(msg.ID, nil, &rpcError{Code: -32601, Message: "method not found: " + msg.Method})
		}
		return nil
	}
}

func (s *Server) handleInitialize(msg *rpcMessage) error {
	var params initializeParams
	_ = json.Unmarshal(msg.Params, &params)

	if aura := params.Capabilities.Experimental.Aura; aura != nil && s.reconfigure != nil {
		s.mu.Lock()
		s.orch = s.reconfigure(aura.Phases, aura.Telemetry.ProofTimings, aura.Telemetry.ProofCache)
		s.mu.Unlock()
	}

	result := initializeResult{}
	result.Capabilities.TextDocumentSync = textDocumentSyncOptions{OpenClose: true, Change: 2}
	result.Capabilities.Experimental.Aura = auraServerCapabilities{
		ProtocolVersion: 1,
		Phases: []string{
			lspcore.PhaseParse, lspcore.PhaseSema, lspcore.PhaseNormalize, lspcore.PhaseZ3,
		},
		Telemetry: []string{"proofTimings", "proofCache"},
	}
	return s.reply(msg.ID, result, nil)
}

func (s *Server) handleDidOpen(msg *rpcMessage) error {
	var params didOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.mu.Lock()
	s.openDocs[params.TextDocument.URI] = params.TextDocument.Text
	s.versions[params.TextDocument.URI] = params.TextDocument.Version
	s.mu.Unlock()
	s.schedulePublish(params.TextDocument.URI)
	return nil
}

func (s *Server) handleDidChange(msg *rpcMessage) error {
	var params didChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.mu.Lock()
	text := s.openDocs[params.TextDocument.URI]
	text = applyChanges(text, params.ContentChanges)
	s.openDocs[params.TextDocument.URI] = text
	s.versions[params.TextDocument.URI] = params.TextDocument.Version
	s.mu.Unlock()
	s.schedulePublish(params.TextDocument.URI)
	return nil
}

func (s *Server) handleDidClose(msg *rpcMessage) error {
	var params didCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil
	}
	s.mu.Lock()
	delete(s.openDocs, params.TextDocument.URI)
	delete(s.versions, params.TextDocument.URI)
	s.mu.Unlock()
	return s.notify("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI: params.TextDocument.URI, Diagnostics: []lspDiagnostic{},
	})
}

// schedulePublish debounces edit-time diagnostics: the last edit within
// the window wins.
func (s *Server) schedulePublish(uri string) {
	s.mu.Lock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(s.debounce, func() {
		s.publishFor(uri)
	})
	s.mu.Unlock()
}

func (s *Server) publishFor(uri string) {
	s.mu.Lock()
	text, ok := s.openDocs[uri]
	orch := s.orch
	s.mu.Unlock()
	if !ok || orch == nil {
		return
	}
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	diags := orch.Proofs(ctx, uri, text)
	_ = s.notify("textDocument/publishDiagnostics", publishDiagnosticsParams{
		URI:         uri,
		Diagnostics: s.wireDiagnostics(uri, text, diags),
	})
}

func (s *Server) handleProofs(ctx context.Context, msg *rpcMessage) error {
	var params proofsParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.reply(msg.ID, nil, &rpcError{Code: -32602, Message: "invalid params"})
	}
	s.mu.Lock()
	text := s.openDocs[params.URI]
	orch := s.orch
	s.mu.Unlock()
	if orch == nil {
		return s.reply(msg.ID, nil, &rpcError{Code: -32603, Message: "orchestrator not configured"})
	}
	diags := orch.Proofs(ctx, params.URI, text)
	return s.reply(msg.ID, proofsResult{
		URI:         params.URI,
		Diagnostics: s.wireDiagnostics(params.URI, text, diags),
	}, nil)
}

func (s *Server) handleStreamStart(msg *rpcMessage) error {
	var params proofsStreamStartParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.reply(msg.ID, nil, &rpcError{Code: -32602, Message: "invalid params"})
	}
	s.mu.Lock()
	text := s.openDocs[params.URI]
	orch := s.orch
	s.mu.Unlock()
	if orch == nil {
		return s.reply(msg.ID, nil, &rpcError{Code: -32603, Message: "orchestrator not configured"})
	}
	ranges := make([]lspcore.Range, 0, len(params.Ranges))
	for _, r := range params.Ranges {
		ranges = append(ranges, lspcore.Range{Start: r.Start, End: r.End})
	}
	ctx := s.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}
	id := orch.StreamStart(ctx, lspcore.StreamParams{
		URI:     params.URI,
		Text:    text,
		Profile: manifest.Profile(params.Profile),
		Scope:   params.Scope,
		Ranges:  ranges,
	})
	return s.reply(msg.ID, proofsStreamStartResult{ID: id}, nil)
}

func (s *Server) handleStreamCancel(msg *rpcMessage) error {
	var params proofsStreamCancelParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return s.reply(msg.ID, nil, &rpcError{Code: -32602, Message: "invalid params"})
	}
	s.mu.Lock()
	orch := s.orch
	s.mu.Unlock()
	if orch != nil {
		orch.Cancel(params.ID)
	}
	return s.reply(msg.ID, struct{}{}, nil)
}

func (s *Server) handleCacheClear(msg *rpcMessage) error {
	var params proofCacheClearParams
	_ = json.Unmarshal(msg.Params, &params)
	s.mu.Lock()
	orch := s.orch
	s.mu.Unlock()
	if orch != nil {
		orch.ClearCache(params.URI)
	}
	return s.reply(msg.ID, proofCacheClearResult{Cleared: true}, nil)
}

// Notify implements lspcore.Notifier, fanning stream events out as
// aura/proofsStream notifications.
func (s *Server) Notify(ev lspcore.StreamEvent) {
	s.mu.Lock()
	text := s.openDocs[ev.URI]
	s.mu.Unlock()
	_ = s.notify("aura/proofsStream", proofsStreamNotification{
		ID:          ev.ID,
		URI:         ev.URI,
		State:       ev.State,
		Phase:       ev.Phase,
		Diagnostics: s.wireDiagnostics(ev.URI, text, ev.Diagnostics),
		Telemetry:   ev.Telemetry,
		Error:       ev.Error,
	})
}

func (s *Server) wireDiagnostics(uri, text string, diags []diag.Diagnostic) []lspDiagnostic {
	if len(diags) == 0 {
		return []lspDiagnostic{}
	}
	starts := lineStarts(text)
	out := make([]lspDiagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, wireDiagnostic(uri, text, starts, d))
	}
	return out
}

func wireDiagnostic(uri, text string, starts []uint32, d diag.Diagnostic) lspDiagnostic {
	sev := d.Severity.LSPSeverity()
	src := "aura"
	if d.Code == diag.VerifyError {
		src = "aura-nexus"
	}
	related := make([]relatedInformation, 0, len(d.Notes))
	for _, n := range d.Notes {
		related = append(related, relatedInformation{
			Location: location{URI: uri, Range: rangeForSpan(text, starts, n.Span)},
			Message:  n.Msg,
		})
	}
	data := &diagnosticData{
		StableCode: d.Code.ID(),
		Model:      d.Data.Model,
	}
	if ce := d.Data.Counterexample; ce != nil {
		wire := &counterexampleData{Schema: ce.Schema, Mapped: ce.Mapped}
		for _, b := range ce.Slice {
			wire.Slice = append(wire.Slice, counterexampleBinding{Name: b.Name, Value: b.Value, AuraType: b.AuraType})
		}
		data.Counterexample = wire
	}
	for _, b := range d.Data.Meta.Bindings {
		data.Meta.Bindings = append(data.Meta.Bindings, counterexampleBinding{Name: b.Name, Value: b.Value, AuraType: b.AuraType})
	}
	data.Meta.RelevantBindings = d.Data.Meta.RelevantBindings
	for _, n := range d.Data.Meta.Related {
		data.Meta.Related = append(data.Meta.Related, relatedInformation{
			Location: location{URI: uri, Range: rangeForSpan(text, starts, n.Span)},
			Message:  n.Msg,
		})
	}
	data.Meta.UnsatCore = d.Data.Meta.UnsatCore
	data.Meta.Hints = d.Data.Meta.Hints
	data.Meta.Suggestions = d.Data.Meta.Suggestions

	return lspDiagnostic{
		Range:              rangeForSpan(text, starts, d.Primary),
		Severity:           sev,
		Code:               d.Code.ID(),
		Source:             src,
		Message:            d.Message,
		RelatedInformation: related,
		Data:               data,
	}
}

func (s *Server) reply(id json.RawMessage, result any, rpcErr *rpcError) error {
	msg := rpcMessage{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if result != nil && rpcErr == nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		msg.Result = raw
	}
	return s.send(&msg)
}

func (s *Server) notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return s.send(&rpcMessage{JSONRPC: "2.0", Method: method, Params: raw})
}

func (s *Server) send(msg *rpcMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := writeMessage(s.out, payload); err != nil {
		return err
	}
	return s.out.Flush()
}
