package lsp

import "encoding/json"

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type initializeParams struct {
	RootURI      string             `json:"rootUri,omitempty"`
	RootPath     string             `json:"rootPath,omitempty"`
	Capabilities clientCapabilities `json:"capabilities,omitempty"`
}

type clientCapabilities struct {
	Experimental struct {
		Aura *auraClientCapabilities `json:"aura,omitempty"`
	} `json:"experimental,omitempty"`
}

// auraClientCapabilities is the client side of the experimental.aura
// negotiation: a phase allow-list and telemetry opt-ins.
type auraClientCapabilities struct {
	Phases    []string `json:"phases,omitempty"`
	Telemetry struct {
		ProofTimings bool `json:"proofTimings,omitempty"`
		ProofCache   bool `json:"proofCache,omitempty"`
	} `json:"telemetry,omitempty"`
}

// auraServerCapabilities is advertised back under
// capabilities.experimental.aura.
type auraServerCapabilities struct {
	ProtocolVersion int      `json:"protocolVersion"`
	Phases          []string `json:"phases"`
	Telemetry       []string `json:"telemetry"`
}

type textDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

type textDocumentIdentifier struct {
	URI string `json:"uri"`
}

type versionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
}

type position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type lspRange struct {
	Start position `json:"start"`
	End   position `json:"end"`
}

type textDocumentContentChangeEvent struct {
	Range *lspRange `json:"range,omitempty"`
	Text  string    `json:"text"`
}

type didOpenTextDocumentParams struct {
	TextDocument textDocumentItem `json:"textDocument"`
}

type didChangeTextDocumentParams struct {
	TextDocument   versionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []textDocumentContentChangeEvent `json:"contentChanges"`
}

type didCloseTextDocumentParams struct {
	TextDocument textDocumentIdentifier `json:"textDocument"`
}

type textDocumentSyncOptions struct {
	OpenClose bool `json:"openClose"`
	Change    int  `json:"change"`
}

type serverCapabilities struct {
	TextDocumentSync textDocumentSyncOptions `json:"textDocumentSync"`
	Experimental     struct {
		Aura auraServerCapabilities `json:"aura"`
	} `json:"experimental"`
}

type initializeResult struct {
	Capabilities serverCapabilities `json:"capabilities"`
}

type publishDiagnosticsParams struct {
	URI         string          `json:"uri"`
	Diagnostics []lspDiagnostic `json:"diagnostics"`
}

type lspDiagnostic struct {
	Range              lspRange             `json:"range"`
	Severity           int                  `json:"severity,omitempty"`
	Code               string               `json:"code,omitempty"`
	Source             string               `json:"source,omitempty"`
	Message            string               `json:"message"`
	RelatedInformation []relatedInformation `json:"relatedInformation,omitempty"`
	Data               *diagnosticData      `json:"data,omitempty"`
}

type relatedInformation struct {
	Location location `json:"location"`
	Message  string   `json:"message"`
}

type location struct {
	URI   string   `json:"uri"`
	Range lspRange `json:"range"`
}

// diagnosticData is the machine-consumable payload attached to every
// published diagnostic.
type diagnosticData struct {
	StableCode     string              `json:"stable_code"`
	Model          string              `json:"model,omitempty"`
	Counterexample *counterexampleData `json:"counterexample,omitempty"`
	Meta           metaData            `json:"meta"`
}

type counterexampleData struct {
	Schema string                  `json:"schema"`
	Slice  []counterexampleBinding `json:"slice"`
	Mapped bool                    `json:"mapped"`
}

type counterexampleBinding struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	AuraType string `json:"aura_type"`
}

type metaData struct {
	Bindings         []counterexampleBinding `json:"bindings,omitempty"`
	RelevantBindings []string                `json:"relevantBindings,omitempty"`
	Related          []relatedInformation    `json:"related,omitempty"`
	UnsatCore        []string                `json:"unsatCore,omitempty"`
	Hints            []string                `json:"hints,omitempty"`
	Suggestions      []string                `json:"suggestions,omitempty"`
}

// aura/* request and response payloads.

type proofsParams struct {
	URI string `json:"uri"`
}

type proofsResult struct {
	URI         string          `json:"uri"`
	Diagnostics []lspDiagnostic `json:"diagnostics"`
}

type proofsStreamStartParams struct {
	URI     string      `json:"uri"`
	Profile string      `json:"profile,omitempty"`
	Scope   string      `json:"scope,omitempty"`
	Ranges  []byteRange `json:"ranges,omitempty"`
}

type byteRange struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

type proofsStreamStartResult struct {
	ID string `json:"id"`
}

type proofsStreamCancelParams struct {
	ID string `json:"id"`
}

type proofCacheClearParams struct {
	URI string `json:"uri,omitempty"`
}

type proofCacheClearResult struct {
	Cleared bool `json:"cleared"`
}

// proofsStreamNotification is the aura/proofsStream payload.
type proofsStreamNotification struct {
	ID          string          `json:"id"`
	URI         string          `json:"uri"`
	State       string          `json:"state"`
	Phase       string          `json:"phase,omitempty"`
	Diagnostics []lspDiagnostic `json:"diagnostics,omitempty"`
	Telemetry   any             `json:"telemetry,omitempty"`
	Error       string          `json:"error,omitempty"`
}
