package embedding

import (
	"fmt"
	"strings"

	"github.com/yungbote/sitescout-backend/internal/domain/documents"
)

const (
	// chunkBudget is the target chunk size in bytes of text.
	chunkBudget = 1800
	// chunkOverlap is how much of the previous chunk's tail is carried into
	// the next one.
	chunkOverlap = 200
	// chunkFloor drops fragments too small to embed usefully.
	chunkFloor = 100
)

// boundaries are the split levels, strongest first: paragraph, line,
// sentence end, bare space. A piece still over budget after the last level
// is hard-split.
var boundaries = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

// ChunkInput carries one document's text plus the metadata embedded with it,
// so retrieval can match on district and category terms.
type ChunkInput struct {
	DistrictName string
	State        string
	Category     documents.Category
	Text         string
}

// Chunk splits one document into embedding-ready segments. Text at or under
// budget comes back as a single chunk. Each chunk after the first is prefixed
// with the previous chunk's trailing overlap window.
func Chunk(in ChunkInput) []string {
	header := fmt.Sprintf("District: %s | State: %s | Category: %s\n\n", in.DistrictName, in.State, in.Category)
	full := header + in.Text
	if len(full) <= chunkBudget {
		return []string{full}
	}

	pieces := splitByBoundary(full, boundaries)

	chunks := make([]string, 0, len(pieces))
	prevTail := ""
	carry := ""
	for _, piece := range pieces {
		piece = carry + piece
		carry = ""
		if len(piece) < chunkFloor {
			if len(chunks) == 0 {
				// Head fragments (often just the metadata header) ride
				// along to the first real chunk instead of dropping.
				carry = piece
			}
			continue
		}
		if len(chunks) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, prevTail+piece)
		}
		prevTail = tail(chunks[len(chunks)-1], chunkOverlap)
	}
	return chunks
}

// splitByBoundary cuts text at the current boundary level, expands any cut
// still over budget at the next level down, and merges neighbors back
// together up to the budget. Every returned piece fits the budget.
func splitByBoundary(text string, levels [][]string) []string {
	if len(text) <= chunkBudget {
		return []string{text}
	}
	if len(levels) == 0 {
		return hardSplit(text)
	}
	parts := splitAfterAny(text, levels[0])
	if len(parts) == 1 {
		return splitByBoundary(text, levels[1:])
	}

	expanded := make([]string, 0, len(parts))
	for _, part := range parts {
		if len(part) > chunkBudget {
			expanded = append(expanded, splitByBoundary(part, levels[1:])...)
			continue
		}
		expanded = append(expanded, part)
	}

	pieces := make([]string, 0, len(expanded))
	var cur strings.Builder
	for _, part := range expanded {
		if cur.Len() > 0 && cur.Len()+len(part) > chunkBudget {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
		cur.WriteString(part)
	}
	if cur.Len() > 0 {
		pieces = append(pieces, cur.String())
	}
	return pieces
}

// splitAfterAny splits on every separator in the level, keeping separators
// attached to the preceding piece so no text is lost.
func splitAfterAny(text string, seps []string) []string {
	parts := []string{text}
	for _, sep := range seps {
		next := make([]string, 0, len(parts))
		for _, p := range parts {
			next = append(next, strings.SplitAfter(p, sep)...)
		}
		parts = next
	}
	return parts
}

func hardSplit(text string) []string {
	var out []string
	for len(text) > chunkBudget {
		out = append(out, text[:chunkBudget])
		text = text[chunkBudget:]
	}
	if len(text) > 0 {
		out = append(out, text)
	}
	return out
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
