// Package avmdebug implements the interpreter's structured debug
// protocol: line-delimited JSON events on stdout (prefixed
// AURA_DEBUG_EVENT) and commands read from stdin on a dedicated reader
// goroutine.
package avmdebug

import "encoding/json"

// EventPrefix precedes every serialized event line on stdout.
const EventPrefix = "AURA_DEBUG_EVENT "

// EnvDebugProtocol enables the protocol when set.
const EnvDebugProtocol = "AURA_DEBUG_PROTOCOL"

// Event is one outbound protocol message; exactly one payload field is
// populated, keyed by Type.
type Event struct {
	Type string `json:"type"`

	// Hello
	Protocol     int      `json:"protocol,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	// Stopped
	Reason  string            `json:"reason,omitempty"`
	File    string            `json:"file,omitempty"`
	Line    uint32            `json:"line,omitempty"`
	Col     uint32            `json:"col,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Watches map[string]string `json:"watches,omitempty"`

	// PerfReport
	Timeline    json.RawMessage `json:"timeline,omitempty"`
	FlameFolded string          `json:"flame_folded,omitempty"`
	Memory      json.RawMessage `json:"memory,omitempty"`

	// Terminated / NativeLaunch / NativeExit
	Target string `json:"target,omitempty"`
	Exe    string `json:"exe,omitempty"`
	Code   int    `json:"code,omitempty"`
}

// Event type tags.
const (
	EventHello        = "Hello"
	EventStopped      = "Stopped"
	EventPerfReport   = "PerfReport"
	EventTerminated   = "Terminated"
	EventNativeLaunch = "NativeLaunch"
	EventNativeExit   = "NativeExit"
)

// Stop reasons carried by a Stopped event.
const (
	ReasonBreakpoint = "breakpoint"
	ReasonStep       = "step"
	ReasonPause      = "pause"
	ReasonEntry      = "entry"
)

// Command is one inbound protocol message.
type Command struct {
	Type string `json:"type"`

	// Enable
	StartPaused bool `json:"start_paused,omitempty"`
	Perf        bool `json:"perf,omitempty"`

	// SetBreakpoints
	Lines []uint32 `json:"lines,omitempty"`

	// SetWatches
	Exprs []string `json:"exprs,omitempty"`
}

// Command type tags.
const (
	CmdEnable         = "Enable"
	CmdPause          = "Pause"
	CmdResume         = "Resume"
	CmdStep           = "Step"
	CmdSetBreakpoints = "SetBreakpoints"
	CmdSetWatches     = "SetWatches"
	CmdTerminate      = "Terminate"
)
