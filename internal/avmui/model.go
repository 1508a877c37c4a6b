package avmui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"aura/internal/avm"
)

type frameMsg struct {
	root *avm.UiNode
}

// focusable is one interactive node in depth-first order.
type focusable struct {
	node *avm.UiNode
}

type model struct {
	root     *avm.UiNode
	focus    int
	targets  []focusable
	input    textinput.Model
	typing   bool
	feedback chan<- avm.Feedback
	width    int

	titleStyle  lipgloss.Style
	buttonStyle lipgloss.Style
	focusStyle  lipgloss.Style
	propStyle   lipgloss.Style
}

func newModel(feedback chan<- avm.Feedback) *model {
	ti := textinput.New()
	ti.CharLimit = 256
	return &model{
		feedback:    feedback,
		input:       ti,
		width:       80,
		titleStyle:  lipgloss.NewStyle().Bold(true),
		buttonStyle: lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.NormalBorder()),
		focusStyle:  lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.DoubleBorder()).Foreground(lipgloss.Color("6")),
		propStyle:   lipgloss.NewStyle().Faint(true),
	}
}

func (m *model) Init() tea.Cmd { return nil }

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.root = msg.root
		m.targets = m.targets[:0]
		collectTargets(m.root, &m.targets)
		if m.focus >= len(m.targets) {
			m.focus = 0
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.typing {
			return m.updateTyping(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.send(avm.Feedback{CloseRequested: true, ClickedCallback: -1})
			return m, tea.Quit
		case "tab", "down":
			if len(m.targets) > 0 {
				m.focus = (m.focus + 1) % len(m.targets)
			}
			return m, nil
		case "shift+tab", "up":
			if len(m.targets) > 0 {
				m.focus = (m.focus - 1 + len(m.targets)) % len(m.targets)
			}
			return m, nil
		case "enter", " ":
			return m.activate()
		}
	}
	return m, nil
}

func (m *model) updateTyping(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.typing = false
		node := m.targets[m.focus].node
		m.send(avm.Feedback{
			ClickedCallback: -1,
			TextInputs: []avm.TextInputEvent{{
				InputID: node.InputID,
				Text:    m.input.Value(),
			}},
		})
		return m, nil
	case "esc":
		m.typing = false
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) activate() (tea.Model, tea.Cmd) {
	if m.focus >= len(m.targets) {
		return m, nil
	}
	node := m.targets[m.focus].node
	if node.InputID >= 0 {
		m.typing = true
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink
	}
	if node.CallbackID >= 0 {
		m.send(avm.Feedback{ClickedCallback: node.CallbackID})
	}
	return m, nil
}

func (m *model) send(fb avm.Feedback) {
	select {
	case m.feedback <- fb:
	default:
	}
}

func collectTargets(n *avm.UiNode, out *[]focusable) {
	if n == nil {
		return
	}
	if n.CallbackID >= 0 || n.InputID >= 0 {
		*out = append(*out, focusable{node: n})
	}
	for _, c := range n.Children {
		collectTargets(c, out)
	}
}

func (m *model) View() string {
	if m.root == nil {
		return "waiting for first frame..."
	}
	var b strings.Builder
	m.renderNode(&b, m.root, 0)
	if m.typing {
		b.WriteString("\n" + m.input.View() + "\n")
	}
	b.WriteString(m.propStyle.Render("\ntab: focus · enter: activate · q: quit") + "\n")
	return b.String()
}

func (m *model) renderNode(b *strings.Builder, n *avm.UiNode, depth int) {
	indent := strings.Repeat("  ", depth)
	switch {
	case n.CallbackID >= 0 || n.InputID >= 0:
		style := m.buttonStyle
		if m.focused(n) {
			style = m.focusStyle
		}
		label := n.Text
		if label == "" {
			label = n.Kind
		}
		b.WriteString(indent + style.Render(label) + "\n")
	case n.Text != "":
		b.WriteString(indent + m.titleStyle.Render(n.Text) + "\n")
	default:
		b.WriteString(indent + n.Kind + "\n")
	}
	if len(n.Props) > 0 {
		b.WriteString(indent + "  " + m.propStyle.Render(propTable(n.Props)) + "\n")
	}
	for _, c := range n.Children {
		m.renderNode(b, c, depth+1)
	}
}

func (m *model) focused(n *avm.UiNode) bool {
	return m.focus < len(m.targets) && m.targets[m.focus].node == n
}

// propTable lines up key/value pairs in two columns, padding by display
// width so wide runes keep the table aligned.
func propTable(props map[string]avm.Value) string {
	keys := make([]string, 0, len(props))
	widest := 0
	for k := range props {
		keys = append(keys, k)
		if w := runewidth.StringWidth(k); w > widest {
			widest = w
		}
	}
	sortStrings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		pad := strings.Repeat(" ", widest-runewidth.StringWidth(k))
		parts = append(parts, k+pad+" = "+renderValue(props[k]))
	}
	return strings.Join(parts, "  ")
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
