package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	docrepos "github.com/yungbote/sitescout-backend/internal/data/repos/documents"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/platform/openai"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// SearchService answers free-text queries over the embedded corpus.
type SearchService interface {
	Search(ctx context.Context, query string, limit int) ([]docrepos.ChunkMatch, error)
}

type searchService struct {
	db     *gorm.DB
	log    *logger.Logger
	ai     openai.Client
	chunks docrepos.DocumentChunkRepo
}

func NewSearchService(db *gorm.DB, baseLog *logger.Logger, ai openai.Client, chunks docrepos.DocumentChunkRepo) SearchService {
	return &searchService{
		db:     db,
		log:    baseLog.With("service", "SearchService"),
		ai:     ai,
		chunks: chunks,
	}
}

// Search embeds the query with the same model as the corpus and returns the
// nearest chunks by cosine similarity.
func (s *searchService) Search(ctx context.Context, query string, limit int) ([]docrepos.ChunkMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty search query")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	vecs, _, err := s.ai.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors for one input", len(vecs))
	}

	matches, err := s.chunks.Search(ctx, nil, pgvector.NewVector(vecs[0]), limit)
	if err != nil {
		return nil, err
	}
	s.log.Debug("search served", "query_len", len(query), "matches", len(matches))
	return matches, nil
}
