package embedding

import (
	"strings"
	"testing"

	"github.com/yungbote/sitescout-backend/internal/domain/documents"
)

func chunkInput(text string) ChunkInput {
	return ChunkInput{
		DistrictName: "Example Unified",
		State:        "CA",
		Category:     documents.CategoryStrategicPlan,
		Text:         text,
	}
}

func TestChunkShortTextIsSingleChunk(t *testing.T) {
	in := chunkInput("Our strategic plan focuses on every learner.")
	chunks := Chunk(in)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	want := "District: Example Unified | State: CA | Category: strategic_plan\n\n" + in.Text
	if chunks[0] != want {
		t.Fatalf("chunk = %q, want %q", chunks[0], want)
	}
}

func TestChunkHeaderNamesDistrictAndCategory(t *testing.T) {
	chunks := Chunk(chunkInput("short"))
	if !strings.HasPrefix(chunks[0], "District: Example Unified | State: CA | Category: strategic_plan\n\n") {
		t.Fatalf("header missing: %q", chunks[0])
	}
}

func TestChunkLongTextStaysUnderBudgetPlusOverlap(t *testing.T) {
	para := strings.Repeat("The district technology plan funds devices for all students. ", 10)
	text := strings.Repeat(para+"\n\n", 20)
	chunks := Chunk(chunkInput(text))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) > chunkBudget+chunkOverlap {
			t.Fatalf("chunk %d has %d bytes, limit %d", i, len(ch), chunkBudget+chunkOverlap)
		}
	}
}

func TestChunkAdjacentOverlap(t *testing.T) {
	para := strings.Repeat("Board minutes describe the bond referendum planning process. ", 8)
	text := strings.Repeat(para+"\n\n", 25)
	chunks := Chunk(chunkInput(text))
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		overlap := tail(chunks[i-1], chunkOverlap)
		if !strings.HasPrefix(chunks[i], overlap) {
			t.Fatalf("chunk %d does not start with chunk %d's tail", i, i-1)
		}
	}
}

func TestChunkNoTextLost(t *testing.T) {
	para := strings.Repeat("Community engagement listening sessions continue this fall. ", 9)
	text := strings.Repeat(para+"\n", 40)
	in := chunkInput(text)
	chunks := Chunk(in)

	// Stripping each chunk's overlap prefix and concatenating the remainders
	// reconstructs the header plus the original text, minus any sub-floor
	// fragments. This input has no sub-floor fragments.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for i := 1; i < len(chunks); i++ {
		overlap := tail(chunks[i-1], chunkOverlap)
		rebuilt.WriteString(strings.TrimPrefix(chunks[i], overlap))
	}
	want := "District: Example Unified | State: CA | Category: strategic_plan\n\n" + text
	if rebuilt.String() != want {
		t.Fatalf("rebuilt text differs: got %d bytes, want %d", rebuilt.Len(), len(want))
	}
}

func TestChunkDropsSubFloorTail(t *testing.T) {
	header := "District: Example Unified | State: CA | Category: strategic_plan\n\n"
	// Filler sized so header+filler+separator packs to exactly one full
	// piece, leaving "tiny" alone and under the floor.
	filler := strings.Repeat("x", chunkBudget-len(header)-2)
	text := filler + "\n\n" + "tiny"
	chunks := Chunk(chunkInput(text))
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if strings.HasSuffix(chunks[0], "tiny") {
		t.Fatal("sub-floor tail fragment should be dropped")
	}
	if !strings.Contains(chunks[0], filler) {
		t.Fatal("filler text missing from surviving chunk")
	}
}

func TestChunkHeaderSurvivesUnbrokenBody(t *testing.T) {
	// No boundaries anywhere: the header cannot merge with the first
	// hard-split piece, so it must ride along instead of dropping.
	text := strings.Repeat("y", chunkBudget*2)
	chunks := Chunk(chunkInput(text))
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0], "District: Example Unified") {
		t.Fatalf("header lost from first chunk: %q", chunks[0][:40])
	}
}

func TestChunkHardSplitsUnbrokenText(t *testing.T) {
	// No paragraph, line, sentence, or space boundaries at all.
	text := strings.Repeat("a", chunkBudget*3)
	chunks := Chunk(chunkInput(text))
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if len(ch) > chunkBudget+chunkOverlap {
			t.Fatalf("chunk %d has %d bytes, limit %d", i, len(ch), chunkBudget+chunkOverlap)
		}
	}
}

func TestChunkExactBudgetBoundary(t *testing.T) {
	header := "District: Example Unified | State: CA | Category: strategic_plan\n\n"
	text := strings.Repeat("b", chunkBudget-len(header))
	chunks := Chunk(chunkInput(text))
	if len(chunks) != 1 {
		t.Fatalf("text at exactly the budget should be one chunk, got %d", len(chunks))
	}
	if len(chunks[0]) != chunkBudget {
		t.Fatalf("chunk is %d bytes, want %d", len(chunks[0]), chunkBudget)
	}
}
