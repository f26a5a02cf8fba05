package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	"github.com/yungbote/sitescout-backend/internal/domain/scoring"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// =========================
		// Roster (loader-owned)
		// =========================
		&districts.District{},

		// =========================
		// Crawl output + audit
		// =========================
		&documents.Document{},
		&crawl.Attempt{},
		&crawl.Batch{},
		&crawl.URLCorrection{},

		// =========================
		// Scoring + embeddings
		// =========================
		&scoring.KeywordScore{},
		&documents.DocumentChunk{},
	)
}

func EnsureCrawlIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_document_district_url ON document (district_id, url);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chunk_document_index ON document_chunk (document_id, chunk_index);`,
		`CREATE INDEX IF NOT EXISTS idx_attempt_batch_outcome ON crawl_attempt (batch_id, outcome);`,
		`CREATE INDEX IF NOT EXISTS idx_correction_district ON url_correction (district_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_keyword_score_detail ON keyword_score USING GIN (match_detail);`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("ensure crawl indexes: %w", err)
		}
	}
	return nil
}

// EnsureVectorIndex creates the approximate-nearest-neighbor index over chunk
// embeddings. lists follows the pgvector guidance of sqrt(row count); callers
// recreate the index as the corpus grows (see RebuildVectorIndex).
func EnsureVectorIndex(db *gorm.DB, lists int) error {
	if lists < 10 {
		lists = 10
	}
	if lists > 1000 {
		lists = 1000
	}
	stmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS idx_chunk_embedding ON document_chunk
		 USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`, lists)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}
	return nil
}

func RebuildVectorIndex(db *gorm.DB, lists int) error {
	if err := db.Exec(`DROP INDEX IF EXISTS idx_chunk_embedding;`).Error; err != nil {
		return fmt.Errorf("drop vector index: %w", err)
	}
	return EnsureVectorIndex(db, lists)
}

// EnsureSearchFunction installs match_document_chunks, the similarity-search
// entry point used by the search service. Cosine distance, nearest first.
func EnsureSearchFunction(db *gorm.DB) error {
	stmt := `
CREATE OR REPLACE FUNCTION match_document_chunks(
	query_embedding vector(1536),
	match_count int DEFAULT 10
)
RETURNS TABLE (
	chunk_id uuid,
	document_id uuid,
	district_id uuid,
	url text,
	title text,
	category varchar(32),
	chunk_text text,
	similarity float
)
LANGUAGE sql STABLE
AS $$
	SELECT
		dc.id,
		d.id,
		d.district_id,
		d.url,
		d.title,
		d.category,
		dc.text,
		1 - (dc.embedding <=> query_embedding)
	FROM document_chunk dc
	JOIN document d ON d.id = dc.document_id
	WHERE dc.embedding IS NOT NULL
	ORDER BY dc.embedding <=> query_embedding
	LIMIT match_count;
$$;`
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("ensure search function: %w", err)
	}
	return nil
}
