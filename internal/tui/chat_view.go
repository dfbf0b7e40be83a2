package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/davidchris/thoughttree/internal/tokens"
)

func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return fmt.Sprintf("\n  %s Starting...", m.spinner.View())
	}

	var b strings.Builder

	header := titleStyle.Render("ThoughtTree") + "  " + dimStyle.Render(m.workdir)
	b.WriteString(header + "\n\n")

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(m.renderStatus() + "\n")
	b.WriteString(m.renderInputArea())

	return b.String()
}

func (m ChatModel) renderInputArea() string {
	if m.perm != nil {
		return m.renderPermissionPrompt()
	}
	if m.busy {
		return fmt.Sprintf("  %s Generating...", m.spinner.View())
	}
	return inputBorderStyle.Width(m.width - 4).Render(m.input.View())
}

// renderPermissionPrompt shows the active tool permission request with
// numbered options.
func (m ChatModel) renderPermissionPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Permission: %s\n", m.perm.Description)
	for i, opt := range m.perm.Options {
		fmt.Fprintf(&b, "  %d) %s\n", i+1, opt.Label)
	}
	b.WriteString(dimStyle.Render("  1-9: choose │ Esc: reject"))
	return permBorderStyle.Width(m.width - 4).Render(b.String())
}

func (m ChatModel) renderStatus() string {
	var parts []string

	parts = append(parts, lipgloss.NewStyle().Bold(true).Render("▸ "+m.provider))

	if m.busy {
		parts = append(parts, "generating")
	} else {
		parts = append(parts, "ready")
	}

	if m.leafID != "" {
		if path, err := m.g.Path(m.leafID); err == nil {
			parts = append(parts, fmt.Sprintf("~%d tokens", tokens.CountPath(path)))
		}
	}

	if pending := len(m.permQueue); pending > 0 {
		parts = append(parts, fmt.Sprintf("%d permission(s) queued", pending))
	}

	if m.busy {
		parts = append(parts, "Ctrl+C: cancel")
	} else {
		parts = append(parts, "Enter: send │ Ctrl+R: branch retry │ Esc: quit")
	}

	return statusStyle.Width(m.width).Render(strings.Join(parts, " │ "))
}
