// Package tokens estimates prompt sizes using tiktoken-go. Estimates feed
// the UI's context meter and the export summary; nothing hard-limits on
// them.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/davidchris/thoughttree/internal/graph"
)

// messageOverhead approximates the per-message framing cost (role tag,
// separators) on top of the content tokens.
const messageOverhead = 4

// Counter counts tokens with cl100k_base encoding. The encoder loads
// lazily; if loading fails the counter degrades to a rough estimate.
type Counter struct {
	enc  *tiktoken.Tiktoken
	once sync.Once
	err  error
}

var defaultCounter = &Counter{}

// Count returns the number of tokens in text.
func Count(text string) int {
	return defaultCounter.Count(text)
}

// CountPath returns the estimated prompt size of a context chain.
func CountPath(path []graph.Node) int {
	return defaultCounter.CountPath(path)
}

func (c *Counter) init() {
	c.once.Do(func() {
		c.enc, c.err = tiktoken.GetEncoding("cl100k_base")
	})
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	c.init()
	if c.err != nil || c.enc == nil {
		// Rough estimate, about 4 chars per token.
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// CountNode returns the token cost of one message including framing.
func (c *Counter) CountNode(n graph.Node) int {
	return messageOverhead + c.Count(n.Content)
}

// CountPath sums the cost of a context chain.
func (c *Counter) CountPath(path []graph.Node) int {
	total := 0
	for _, n := range path {
		total += c.CountNode(n)
	}
	return total
}
