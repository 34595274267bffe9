package rag

import (
	"fmt"
	"strings"
)

// Context is the assembled, budget-bounded text block handed to the
// downstream generation call. ChunkIDs records which chunks actually
// made it in, for attribution and testing.
type Context struct {
	Text      string
	ChunkIDs  []string
	Truncated bool // true only in the single-oversized-chunk edge case
}

// Empty reports whether the context contains no retrieved text.
func (c Context) Empty() bool { return c.Text == "" }

// blockSeparator joins chunk blocks in the assembled context.
const blockSeparator = "\n\n"

// Assemble packs ranked results into a single context block of at most
// maxChars characters (runes).
//
// Results are consumed in ranked order. Each chunk contributes an
// attribution header plus its text; once the next whole chunk would
// exceed the budget, assembly stops — a chunk is never cut mid-string.
// The one exception: if even the single highest-ranked chunk exceeds
// maxChars on its own, it is included alone and truncated at a
// character boundary to exactly maxChars.
//
// An empty result yields an empty Context, not an error: retrieval
// finding nothing must not fail the downstream generation turn.
func Assemble(results []Result, maxChars int) (Context, error) {
	if maxChars <= 0 {
		return Context{}, fmt.Errorf("%w: max chars must be positive, got %d", ErrInvalidParameter, maxChars)
	}
	if len(results) == 0 {
		return Context{}, nil
	}

	var b strings.Builder
	var ids []string
	used := 0

	for i, res := range results {
		block := formatBlock(res.Chunk)
		cost := len([]rune(block))
		if i > 0 {
			cost += len(blockSeparator)
		}

		if used+cost > maxChars {
			if i > 0 {
				break
			}
			// Highest-ranked chunk alone exceeds the budget: include it
			// truncated at a rune boundary, never a split code point.
			runes := []rune(block)
			return Context{
				Text:      string(runes[:maxChars]),
				ChunkIDs:  []string{res.Chunk.ID},
				Truncated: true,
			}, nil
		}

		if i > 0 {
			b.WriteString(blockSeparator)
		}
		b.WriteString(block)
		used += cost
		ids = append(ids, res.Chunk.ID)
	}

	return Context{Text: b.String(), ChunkIDs: ids}, nil
}

// formatBlock renders one chunk with its source attribution tag.
func formatBlock(c Chunk) string {
	source := c.Metadata[MetaSource]
	if source == "" {
		source = c.DocumentID
	}
	return "[source: " + source + "]\n" + c.Text
}
