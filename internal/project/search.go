package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sahilm/fuzzy"
)

// NoteGlob matches the files treated as notes inside the notes directory.
const NoteGlob = "**/*.md"

// noteFiles implements fuzzy.Source over relative note paths.
type noteFiles []string

func (n noteFiles) String(i int) string { return n[i] }
func (n noteFiles) Len() int            { return len(n) }

// ListNotes returns the relative paths of every note under notesDir.
// Notes inside dot-directories (.git, .obsidian, .thoughttree) are not
// notes and are skipped.
func ListNotes(notesDir string) ([]string, error) {
	var out []string
	fsys := os.DirFS(notesDir)
	err := doublestar.GlobWalk(fsys, NoteGlob, func(path string, d fs.DirEntry) error {
		if !d.IsDir() && !hidden(path) {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob notes: %w", err)
	}
	return out, nil
}

// hidden reports whether any segment of the slash-separated relative path
// starts with a dot.
func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

// Match is one search hit.
type Match struct {
	Path  string // relative to the notes directory
	Score int
}

// SearchNotes fuzzy-matches note paths under notesDir against query.
// Results come back best first. An empty query returns every note with a
// zero score.
func SearchNotes(notesDir, query string) ([]Match, error) {
	files, err := ListNotes(notesDir)
	if err != nil {
		return nil, err
	}

	if query == "" {
		out := make([]Match, len(files))
		for i, f := range files {
			out[i] = Match{Path: f}
		}
		return out, nil
	}

	results := fuzzy.FindFrom(query, noteFiles(files))
	out := make([]Match, len(results))
	for i, r := range results {
		out[i] = Match{Path: files[r.Index], Score: r.Score}
	}
	return out, nil
}

// AbsNote resolves a relative note path against the notes directory.
func AbsNote(notesDir, rel string) string {
	return filepath.Join(notesDir, rel)
}
