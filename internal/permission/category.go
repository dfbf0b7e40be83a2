// Package permission intercepts agent tool-permission requests and applies
// policy: destructive tools are rejected outright, read-only tools are
// approved when scoped to the project root, and everything else is put to
// the user.
package permission

import "strings"

// Category is the closed set of tool categories the broker knows. Agent
// tool names arrive as free-form strings and are mapped onto it; anything
// unrecognized is CategoryUnknown, which takes the safest disposition.
type Category string

const (
	CategoryBash         Category = "bash"
	CategoryWrite        Category = "write"
	CategoryEdit         Category = "edit"
	CategoryNotebookEdit Category = "notebook_edit"
	CategoryTodoWrite    Category = "todo_write"
	CategoryTask         Category = "task"
	CategoryRead         Category = "read"
	CategoryGrep         Category = "grep"
	CategoryGlob         Category = "glob"
	CategoryWebSearch    Category = "web_search"
	CategorySkill        Category = "skill"
	CategoryWebFetch     Category = "web_fetch"
	CategoryUnknown      Category = "unknown"
)

// Disposition is what the broker does with a category.
type Disposition int

const (
	// AutoDeny synthesizes a rejection; the request never reaches the user.
	AutoDeny Disposition = iota
	// AutoApproveScoped approves read-only tools whose paths all resolve
	// inside the project root; otherwise downgrades to PromptUser.
	AutoApproveScoped
	// PromptUser suspends until the user decides. No timeout.
	PromptUser
)

// matcher order matters: deny patterns are checked first so a name like
// "Bash: read logs" can never ride an approval pattern.
var matchers = []struct {
	substr string
	cat    Category
}{
	{"NotebookEdit", CategoryNotebookEdit},
	{"TodoWrite", CategoryTodoWrite},
	{"Bash", CategoryBash},
	{"bash", CategoryBash},
	{"Write", CategoryWrite},
	{"write", CategoryWrite},
	{"Edit", CategoryEdit},
	{"edit", CategoryEdit},
	{"Task", CategoryTask},
	{"WebFetch", CategoryWebFetch},
	{"WebSearch", CategoryWebSearch},
	{"Read", CategoryRead},
	{"Grep", CategoryGrep},
	{"Glob", CategoryGlob},
	{"Skill", CategorySkill},
}

// CategoryOf maps an agent tool name (or tool-call kind) to a category by
// substring match, mirroring how the adapter titles its tool calls.
func CategoryOf(name string) Category {
	for _, m := range matchers {
		if strings.Contains(name, m.substr) {
			return m.cat
		}
	}
	return CategoryUnknown
}

// DispositionOf returns the policy for a category. The deny list is closed;
// unknown categories prompt, never approve.
func DispositionOf(cat Category) Disposition {
	switch cat {
	case CategoryBash, CategoryWrite, CategoryEdit, CategoryNotebookEdit, CategoryTodoWrite, CategoryTask:
		return AutoDeny
	case CategoryRead, CategoryGrep, CategoryGlob, CategoryWebSearch, CategorySkill:
		return AutoApproveScoped
	default:
		return PromptUser
	}
}
