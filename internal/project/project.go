// Package project handles the on-disk side of a workspace: the project
// file inside the notes directory, markdown export, and note search.
package project

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/davidchris/thoughttree/internal/graph"
)

// FileName is the project file kept in the notes directory root.
const FileName = ".thoughttree"

// File is the persisted project document. The graph is stored inline;
// SQLite keeps a mirror for fast listing and resume.
type File struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Provider string       `json:"defaultProvider,omitempty"`
	SavedAt  time.Time    `json:"savedAt"`
	Nodes    []graph.Node `json:"nodes"`
	Edges    []graph.Edge `json:"edges"`
}

// NewID returns a fresh project id.
func NewID() string { return ulid.Make().String() }

// Save writes the project file into notesDir.
func Save(notesDir string, f *File, g *graph.Graph) error {
	f.SavedAt = time.Now().UTC()
	f.Nodes = g.Nodes()
	f.Edges = g.EdgesInOrder()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project: %w", err)
	}
	path := filepath.Join(notesDir, FileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Load reads the project file from notesDir and rebuilds its graph.
func Load(notesDir string) (*File, *graph.Graph, error) {
	path := filepath.Join(notesDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}

	g := graph.New()
	for i := range f.Nodes {
		if err := g.AddNode(&f.Nodes[i]); err != nil {
			return nil, nil, fmt.Errorf("node %s: %w", f.Nodes[i].ID, err)
		}
	}
	// Edge order in the file preserves chosen parents.
	for _, e := range f.Edges {
		if err := g.AddEdge(e.Parent, e.Child); err != nil {
			return nil, nil, fmt.Errorf("edge %s->%s: %w", e.Parent, e.Child, err)
		}
	}
	return &f, g, nil
}

// Exists reports whether notesDir holds a project file.
func Exists(notesDir string) bool {
	_, err := os.Stat(filepath.Join(notesDir, FileName))
	return err == nil
}

// ExportMarkdown renders one conversation thread (the chosen-parent chain
// down to nodeID) as a markdown document.
func ExportMarkdown(f *File, g *graph.Graph, nodeID string) (string, error) {
	path, err := g.Path(nodeID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	title := f.Name
	if title == "" {
		title = "Conversation"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "Exported %s\n\n", time.Now().Format("2006-01-02 15:04"))

	for _, n := range path {
		switch n.Role {
		case graph.RoleAssistant:
			label := "Assistant"
			if n.Provider != "" {
				label = fmt.Sprintf("Assistant (%s)", n.Provider)
			}
			fmt.Fprintf(&sb, "## %s\n\n", label)
		default:
			sb.WriteString("## User\n\n")
		}
		sb.WriteString(strings.TrimSpace(n.Content))
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}

// Leaves returns the ids of nodes without chosen children, sorted. These
// are the exportable thread endpoints.
func Leaves(g *graph.Graph) []string {
	hasChild := make(map[string]bool)
	for _, e := range g.EdgesInOrder() {
		if g.ChosenParent(e.Child) == e.Parent {
			hasChild[e.Parent] = true
		}
	}
	var out []string
	for _, n := range g.Nodes() {
		if !hasChild[n.ID] {
			out = append(out, n.ID)
		}
	}
	sort.Strings(out)
	return out
}
