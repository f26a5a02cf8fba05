package documents

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

// ChunkMatch is one similarity-search hit from match_document_chunks.
type ChunkMatch struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	DocumentID uuid.UUID `json:"document_id"`
	DistrictID uuid.UUID `json:"district_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	ChunkText  string    `json:"chunk_text"`
	Similarity float64   `json:"similarity"`
}

type DocumentChunkRepo interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*documents.DocumentChunk) error
	Create(ctx context.Context, tx *gorm.DB, chunk *documents.DocumentChunk) error
	DeleteByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error
	CountAll(ctx context.Context, tx *gorm.DB) (int64, error)
	HasChunks(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (bool, error)
	Search(ctx context.Context, tx *gorm.DB, embedding pgvector.Vector, limit int) ([]ChunkMatch, error)
}

type documentChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentChunkRepo(db *gorm.DB, log *logger.Logger) DocumentChunkRepo {
	return &documentChunkRepo{db: db, log: log.With("repo", "DocumentChunkRepo")}
}

func (r *documentChunkRepo) CreateBatch(ctx context.Context, tx *gorm.DB, chunks []*documents.DocumentChunk) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if len(chunks) == 0 {
		return nil
	}
	if err := dbx.WithContext(ctx).CreateInBatches(chunks, 100).Error; err != nil {
		return fmt.Errorf("failed to create document chunks: %w", err)
	}
	return nil
}

func (r *documentChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunk *documents.DocumentChunk) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if err := dbx.WithContext(ctx).Create(chunk).Error; err != nil {
		return fmt.Errorf("failed to create document chunk: %w", err)
	}
	return nil
}

func (r *documentChunkRepo) DeleteByDocument(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	err := dbx.WithContext(ctx).
		Where("document_id = ?", documentID).
		Delete(&documents.DocumentChunk{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

func (r *documentChunkRepo) CountAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var n int64
	if err := dbx.WithContext(ctx).Model(&documents.DocumentChunk{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count document chunks: %w", err)
	}
	return n, nil
}

func (r *documentChunkRepo) HasChunks(ctx context.Context, tx *gorm.DB, documentID uuid.UUID) (bool, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var n int64
	err := dbx.WithContext(ctx).
		Model(&documents.DocumentChunk{}).
		Where("document_id = ?", documentID).
		Limit(1).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check document chunks: %w", err)
	}
	return n > 0, nil
}

func (r *documentChunkRepo) Search(ctx context.Context, tx *gorm.DB, embedding pgvector.Vector, limit int) ([]ChunkMatch, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if limit <= 0 {
		limit = 10
	}
	var out []ChunkMatch
	err := dbx.WithContext(ctx).
		Raw(`SELECT chunk_id, document_id, district_id, url, title, category, chunk_text, similarity
		     FROM match_document_chunks(?, ?)`, embedding, limit).
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search document chunks: %w", err)
	}
	return out, nil
}
