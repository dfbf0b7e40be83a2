// Package tui provides the Bubble Tea streaming chat interface.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/davidchris/thoughttree/internal/acp"
	"github.com/davidchris/thoughttree/internal/bridge"
	"github.com/davidchris/thoughttree/internal/graph"
	"github.com/davidchris/thoughttree/internal/permission"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	inputBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	permBorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("226")).
			Padding(0, 1)
)

// Messages delivered into the Bubble Tea loop.
type (
	chunkMsg      bridge.ChunkEvent
	permissionMsg permission.Event
	promptDoneMsg struct {
		stop acp.StopReason
		err  error
	}
)

// ChatModel is the interactive chat model. One lineage of the
// conversation DAG is visible at a time; each Enter extends it with a
// user node and a streaming assistant node.
type ChatModel struct {
	g        *graph.Graph
	br       *bridge.Bridge
	provider string
	workdir  string

	leafID       string
	generatingID string
	busy         bool
	quitting     bool
	lastErr      error

	// Active permission prompt plus any that arrived while one was showing.
	perm      *permission.Event
	permQueue []permission.Event

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	ready    bool
	width    int
	height   int
}

// NewChatModel creates the chat model. leafID may be empty for a fresh
// conversation or name an existing node to resume from.
func NewChatModel(g *graph.Graph, br *bridge.Bridge, providerID, workdir, leafID string) ChatModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textarea.New()
	ti.Placeholder = "Ask something... (Enter to send)"
	ti.CharLimit = 8000
	ti.SetWidth(80)
	ti.SetHeight(3)
	ti.Focus()

	return ChatModel{
		g:        g,
		br:       br,
		provider: providerID,
		workdir:  workdir,
		leafID:   leafID,
		spinner:  s,
		input:    ti,
	}
}

func (m ChatModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		return m.handleWindowSize(msg)

	case chunkMsg:
		if msg.NodeID == m.generatingID {
			m.refreshTranscript()
			m.viewport.GotoBottom()
		}
		return m, nil

	case permissionMsg:
		ev := permission.Event(msg)
		if m.perm == nil {
			m.perm = &ev
		} else {
			m.permQueue = append(m.permQueue, ev)
		}
		return m, nil

	case promptDoneMsg:
		m.busy = false
		m.generatingID = ""
		m.lastErr = msg.err
		m.perm = nil
		m.permQueue = nil
		m.refreshTranscript()
		m.viewport.GotoBottom()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if !m.busy {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.perm != nil {
		return m.handlePermissionKey(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		if m.busy {
			_ = m.br.Cancel(m.generatingID)
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if !m.busy {
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil

	case "enter":
		return m.submit()

	case "alt+enter", "ctrl+j":
		if !m.busy {
			m.input.SetValue(m.input.Value() + "\n")
		}
		return m, nil

	case "ctrl+r":
		return m.regenerate()

	case "up", "down", "pgup", "pgdown":
		if m.busy {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	if !m.busy {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handlePermissionKey resolves the active permission prompt. Number keys
// pick an option, Esc rejects.
func (m ChatModel) handlePermissionKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key := msg.String(); key {
	case "esc":
		_ = m.br.RespondToPermission(m.perm.ID, "")
		m.advancePermission()
		return m, nil

	case "ctrl+c":
		_ = m.br.RespondToPermission(m.perm.ID, "")
		m.advancePermission()
		if m.busy {
			_ = m.br.Cancel(m.generatingID)
		}
		return m, nil

	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			idx := int(key[0] - '1')
			if idx < len(m.perm.Options) {
				_ = m.br.RespondToPermission(m.perm.ID, m.perm.Options[idx].ID)
				m.advancePermission()
			}
		}
		return m, nil
	}
}

func (m *ChatModel) advancePermission() {
	if len(m.permQueue) > 0 {
		next := m.permQueue[0]
		m.permQueue = m.permQueue[1:]
		m.perm = &next
		return
	}
	m.perm = nil
}

// submit appends a user node and a streaming assistant node to the
// visible lineage, then starts the prompt.
func (m ChatModel) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if m.busy || text == "" {
		return m, nil
	}

	userID := graph.NewID()
	if err := m.g.AddNode(&graph.Node{ID: userID, Role: graph.RoleUser, Content: text}); err != nil {
		m.lastErr = err
		return m, nil
	}
	if m.leafID != "" {
		if err := m.g.AddEdge(m.leafID, userID); err != nil {
			m.lastErr = err
			return m, nil
		}
	}

	assistantID := graph.NewID()
	if err := m.g.AddNode(&graph.Node{ID: assistantID, Role: graph.RoleAssistant}); err != nil {
		m.lastErr = err
		return m, nil
	}
	if err := m.g.AddEdge(userID, assistantID); err != nil {
		m.lastErr = err
		return m, nil
	}

	m.input.SetValue("")
	m.leafID = assistantID
	m.generatingID = assistantID
	m.busy = true
	m.lastErr = nil
	m.refreshTranscript()
	m.viewport.GotoBottom()

	return m, tea.Batch(m.spinner.Tick, m.runPrompt(assistantID))
}

// regenerate branches a sibling assistant node under the last user node
// and generates into it. The previous answer stays in the DAG.
func (m ChatModel) regenerate() (tea.Model, tea.Cmd) {
	if m.busy || m.leafID == "" {
		return m, nil
	}
	leaf, err := m.g.Get(m.leafID)
	if err != nil || leaf.Role != graph.RoleAssistant {
		return m, nil
	}
	parent := m.g.ChosenParent(m.leafID)
	if parent == "" {
		return m, nil
	}

	assistantID := graph.NewID()
	if err := m.g.AddNode(&graph.Node{ID: assistantID, Role: graph.RoleAssistant}); err != nil {
		m.lastErr = err
		return m, nil
	}
	if err := m.g.AddEdge(parent, assistantID); err != nil {
		m.lastErr = err
		return m, nil
	}

	m.leafID = assistantID
	m.generatingID = assistantID
	m.busy = true
	m.lastErr = nil
	m.refreshTranscript()
	m.viewport.GotoBottom()

	return m, tea.Batch(m.spinner.Tick, m.runPrompt(assistantID))
}

func (m ChatModel) runPrompt(nodeID string) tea.Cmd {
	br, provider := m.br, m.provider
	return func() tea.Msg {
		stop, err := br.SendPrompt(context.Background(), nodeID, nil, provider, "")
		return promptDoneMsg{stop: stop, err: err}
	}
}

func (m ChatModel) handleWindowSize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 2
	statusHeight := 1
	inputHeight := 5
	vpHeight := msg.Height - headerHeight - statusHeight - inputHeight
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.refreshTranscript()
	m.input.SetWidth(msg.Width - 4)

	return m, nil
}

func (m *ChatModel) refreshTranscript() {
	m.viewport.SetContent(m.transcript())
}

// transcript renders the chosen-parent chain ending at the current leaf.
func (m ChatModel) transcript() string {
	if m.leafID == "" {
		return dimStyle.Render("New conversation. Type a prompt below.")
	}
	path, err := m.g.Path(m.leafID)
	if err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", err))
	}

	var b strings.Builder
	for _, n := range path {
		if n.Role == graph.RoleUser {
			b.WriteString(userStyle.Render("You") + "\n")
		} else {
			label := "Assistant"
			if n.Provider != "" {
				label = fmt.Sprintf("Assistant (%s)", n.Provider)
			}
			b.WriteString(assistantStyle.Render(label) + "\n")
		}
		content := strings.TrimRight(n.Content, "\n")
		if content == "" && n.ID == m.generatingID {
			content = dimStyle.Render("...")
		}
		b.WriteString(content + "\n\n")
	}
	if m.lastErr != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.lastErr)) + "\n")
	}
	return b.String()
}
