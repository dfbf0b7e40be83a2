// Package render provides output formatting for terminal consumption.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/davidchris/thoughttree/internal/graph"
	"github.com/davidchris/thoughttree/internal/storage"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer. When pretty is false all output is
// plain text suitable for piping.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Conversation formats the chosen-parent chain ending at nodeID.
func (r *Renderer) Conversation(g *graph.Graph, nodeID string) (string, error) {
	path, err := g.Path(nodeID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, n := range path {
		r.formatNode(&sb, n)
	}
	return sb.String(), nil
}

func (r *Renderer) formatNode(sb *strings.Builder, n graph.Node) {
	label := "User"
	if n.Role == graph.RoleAssistant {
		label = "Assistant"
		if n.Provider != "" {
			label = fmt.Sprintf("Assistant (%s)", n.Provider)
		}
	}

	if r.pretty {
		if n.Role == graph.RoleAssistant {
			sb.WriteString(color.CyanString(label) + "\n")
		} else {
			sb.WriteString(color.GreenString(label) + "\n")
		}
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	} else {
		fmt.Fprintf(sb, "## %s\n", label)
	}

	sb.WriteString(strings.TrimRight(n.Content, "\n"))
	sb.WriteString("\n\n")
}

// Tree formats the whole conversation DAG as an indented outline,
// children under their chosen parent, depth-first.
func (r *Renderer) Tree(g *graph.Graph) string {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return "Empty conversation\n"
	}

	children := make(map[string][]string)
	roots := make([]string, 0)
	for _, n := range nodes {
		p := g.ChosenParent(n.ID)
		if p == "" {
			roots = append(roots, n.ID)
			continue
		}
		children[p] = append(children[p], n.ID)
	}
	sort.Strings(roots)
	for _, kids := range children {
		sort.Strings(kids)
	}

	var sb strings.Builder
	var walk func(id string, depth int)
	walk = func(id string, depth int) {
		n, _ := g.Get(id)
		indent := strings.Repeat("  ", depth)
		preview := firstLine(n.Content, 60)

		marker := "•"
		if n.Streaming {
			marker = "…"
		}
		if r.pretty {
			role := color.GreenString("U")
			if n.Role == graph.RoleAssistant {
				role = color.CyanString("A")
			}
			fmt.Fprintf(&sb, "%s%s %s %s\n", indent, marker, role, preview)
		} else {
			fmt.Fprintf(&sb, "%s%s [%s] %s\n", indent, marker, n.Role, preview)
		}
		for _, c := range children[id] {
			walk(c, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
	return sb.String()
}

// ProviderRow is one line of the providers table.
type ProviderRow struct {
	ID        string
	Command   string
	Available bool
}

// Providers formats the provider availability table.
func (r *Renderer) Providers(rows []ProviderRow) string {
	var sb strings.Builder

	if r.pretty {
		sb.WriteString(color.CyanString("Providers\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
	}

	for _, row := range rows {
		if r.pretty {
			mark := color.GreenString("✓")
			if !row.Available {
				mark = color.RedString("✗")
			}
			fmt.Fprintf(&sb, "  %s %-12s %s\n", mark, row.ID, color.HiBlackString(row.Command))
		} else {
			status := "available"
			if !row.Available {
				status = "missing"
			}
			fmt.Fprintf(&sb, "%s %s %s\n", row.ID, status, row.Command)
		}
	}
	return sb.String()
}

// Projects formats the saved project list, most recently updated first.
func (r *Renderer) Projects(projects []storage.Project) string {
	if len(projects) == 0 {
		return "No projects found\n"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Projects\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}
	for _, p := range projects {
		ts := p.UpdatedAt.Format("2006-01-02 15:04")
		if r.pretty {
			fmt.Fprintf(&sb, "  %s %s %s\n", color.HiBlackString(ts), p.Name, color.HiBlackString(p.ID))
		} else {
			fmt.Fprintf(&sb, "[%s] %s %s\n", ts, p.ID, p.Name)
		}
	}
	return sb.String()
}

// TokenCount formats a context-window usage line.
func (r *Renderer) TokenCount(tokens int, nodes int) string {
	if r.pretty {
		return fmt.Sprintf("%s %d tokens across %d nodes\n", color.CyanString("Context:"), tokens, nodes)
	}
	return fmt.Sprintf("tokens=%d nodes=%d\n", tokens, nodes)
}

func firstLine(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > max {
		s = s[:max] + "…"
	}
	if s == "" {
		s = "(empty)"
	}
	return s
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
