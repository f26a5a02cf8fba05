package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	docrepos "github.com/yungbote/sitescout-backend/internal/data/repos/documents"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

func TestSearchRejectsEmptyQuery(t *testing.T) {
	store := newSvcStore()
	svc := NewSearchService(nil, logger.NewNop(), &svcAI{}, &svcChunkRepo{s: store})

	if _, err := svc.Search(context.Background(), "   ", 5); err == nil {
		t.Fatal("expected error for blank query")
	}
}

func TestSearchEmbedsQueryAndReturnsMatches(t *testing.T) {
	store := newSvcStore()
	ai := &svcAI{}
	chunks := &svcChunkRepo{
		s: store,
		searchResults: []docrepos.ChunkMatch{
			{ChunkID: uuid.New(), URL: "https://alderunified.org/plan", Similarity: 0.91},
			{ChunkID: uuid.New(), URL: "https://alderunified.org/tech", Similarity: 0.74},
		},
	}
	svc := NewSearchService(nil, logger.NewNop(), ai, chunks)

	matches, err := svc.Search(context.Background(), "district technology plan", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Fatal("matches out of order")
	}
	if ai.callCount() != 1 {
		t.Fatalf("embed calls = %d, want 1", ai.callCount())
	}
	if chunks.lastLimit != defaultSearchLimit {
		t.Fatalf("limit = %d, want default %d", chunks.lastLimit, defaultSearchLimit)
	}
}

func TestSearchCapsLimit(t *testing.T) {
	store := newSvcStore()
	chunks := &svcChunkRepo{s: store}
	svc := NewSearchService(nil, logger.NewNop(), &svcAI{}, chunks)

	if _, err := svc.Search(context.Background(), "budget", 500); err != nil {
		t.Fatalf("search: %v", err)
	}
	if chunks.lastLimit != maxSearchLimit {
		t.Fatalf("limit = %d, want cap %d", chunks.lastLimit, maxSearchLimit)
	}
}

func TestSearchSurfacesEmbedFailure(t *testing.T) {
	store := newSvcStore()
	ai := &svcAI{embedFn: func([]string) ([][]float32, error) {
		return nil, errors.New("model offline")
	}}
	svc := NewSearchService(nil, logger.NewNop(), ai, &svcChunkRepo{s: store})

	_, err := svc.Search(context.Background(), "strategic plan", 5)
	if err == nil || !strings.Contains(err.Error(), "embed query") {
		t.Fatalf("err = %v, want embed query wrap", err)
	}
}
