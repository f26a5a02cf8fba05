package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	apperrors "github.com/yungbote/sitescout-backend/internal/pkg/errors"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type DocumentRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, doc *documents.Document) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*documents.Document, error)
	GetByDistrictAndURL(ctx context.Context, tx *gorm.DB, districtID uuid.UUID, url string) (*documents.Document, error)
	ListByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID, minTextLength int) ([]documents.Document, error)
	ListMissingChunks(ctx context.Context, tx *gorm.DB, excludeIDs []uuid.UUID, limit int) ([]documents.Document, error)
	ListEmbeddedHashes(ctx context.Context, tx *gorm.DB) ([]string, error)
	CountByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID) (int64, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, log *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: log.With("repo", "DocumentRepo")}
}

// Upsert inserts the document or, when (district_id, url) already exists,
// refreshes the crawl-derived columns in place. discovered_at keeps its
// original value; the row id is populated either way.
func (r *documentRepo) Upsert(ctx context.Context, tx *gorm.DB, doc *documents.Document) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	err := dbx.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "district_id"}, {Name: "url"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"content_type", "title", "category", "text", "text_length",
				"extraction_method", "link_depth", "content_hash", "last_crawled_at",
			}),
		},
		clause.Returning{Columns: []clause.Column{{Name: "id"}, {Name: "discovered_at"}}},
	).Create(doc).Error
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*documents.Document, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var d documents.Document
	if err := dbx.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &d, nil
}

func (r *documentRepo) GetByDistrictAndURL(ctx context.Context, tx *gorm.DB, districtID uuid.UUID, url string) (*documents.Document, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var d documents.Document
	err := dbx.WithContext(ctx).
		Where("district_id = ? AND url = ?", districtID, url).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document by url: %w", err)
	}
	return &d, nil
}

func (r *documentRepo) ListByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID, minTextLength int) ([]documents.Document, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var out []documents.Document
	q := dbx.WithContext(ctx).Where("district_id = ?", districtID)
	if minTextLength > 0 {
		q = q.Where("text_length >= ?", minTextLength)
	}
	if err := q.Order("discovered_at").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list documents by district: %w", err)
	}
	return out, nil
}

// categoryPriority orders embedding work so plans go out before news.
const categoryPriority = `CASE category
	WHEN 'strategic_plan' THEN 0
	WHEN 'technology_plan' THEN 1
	WHEN 'budget' THEN 2
	WHEN 'board_minutes' THEN 3
	WHEN 'news' THEN 4
	ELSE 5 END`

// ListMissingChunks pages through documents that have no chunk rows yet,
// highest-value categories first, shortest text first within a category.
func (r *documentRepo) ListMissingChunks(ctx context.Context, tx *gorm.DB, excludeIDs []uuid.UUID, limit int) ([]documents.Document, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var out []documents.Document
	q := dbx.WithContext(ctx).
		Where("text_length > 0").
		Where("NOT EXISTS (SELECT 1 FROM document_chunk dc WHERE dc.document_id = document.id)")
	if len(excludeIDs) > 0 {
		q = q.Where("id NOT IN ?", excludeIDs)
	}
	err := q.Order(categoryPriority + ", text_length ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents missing chunks: %w", err)
	}
	return out, nil
}

// ListEmbeddedHashes returns the distinct content hashes that already have
// chunk rows. This set is the durable dedup record for the embedding pipeline.
func (r *documentRepo) ListEmbeddedHashes(ctx context.Context, tx *gorm.DB) ([]string, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var hashes []string
	err := dbx.WithContext(ctx).
		Model(&documents.Document{}).
		Distinct("content_hash").
		Where("content_hash <> ''").
		Where("EXISTS (SELECT 1 FROM document_chunk dc WHERE dc.document_id = document.id)").
		Pluck("content_hash", &hashes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list embedded hashes: %w", err)
	}
	return hashes, nil
}

func (r *documentRepo) CountByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID) (int64, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var n int64
	err := dbx.WithContext(ctx).
		Model(&documents.Document{}).
		Where("district_id = ?", districtID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}
