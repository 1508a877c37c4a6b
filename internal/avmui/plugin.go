// Package avmui is the terminal UI plugin for the AVM's callback-driven
// frame loop: each rebuilt UI tree renders through a Bubble Tea program,
// and user interaction flows back as per-frame feedback (close, clicked
// callback id, text input), matching the interpreter's UIPlugin contract.
package avmui

import (
	tea "github.com/charmbracelet/bubbletea"

	"aura/internal/avm"
)

// Plugin bridges the interpreter's frame loop onto one long-lived Bubble
// Tea program. SubmitFrame publishes a tree and blocks until the user
// produces feedback for that frame.
type Plugin struct {
	prog     *tea.Program
	frames   chan *avm.UiNode
	feedback chan avm.Feedback
	done     chan struct{}
}

// New starts the UI program in the background.
func New() *Plugin {
	p := &Plugin{
		frames:   make(chan *avm.UiNode),
		feedback: make(chan avm.Feedback, 1),
		done:     make(chan struct{}),
	}
	m := newModel(p.feedback)
	p.prog = tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		defer close(p.done)
		_, _ = p.prog.Run()
	}()
	return p
}

// SubmitFrame presents root and blocks until the user interacts (or the
// program exits, which reads as a close request).
func (p *Plugin) SubmitFrame(root *avm.UiNode) (avm.Feedback, error) {
	select {
	case <-p.done:
		return avm.Feedback{CloseRequested: true, ClickedCallback: -1}, nil
	default:
	}
	p.prog.Send(frameMsg{root: root})
	select {
	case fb := <-p.feedback:
		return fb, nil
	case <-p.done:
		return avm.Feedback{CloseRequested: true, ClickedCallback: -1}, nil
	}
}

// Close tears the program down.
func (p *Plugin) Close() {
	p.prog.Quit()
	<-p.done
}

var _ avm.UIPlugin = (*Plugin)(nil)

func renderValue(v avm.Value) string {
	return v.Render()
}
