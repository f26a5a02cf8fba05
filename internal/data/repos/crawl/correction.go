package crawl

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type URLCorrectionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, correction *crawl.URLCorrection) error
	ListByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID) ([]crawl.URLCorrection, error)
	ListUnvalidated(ctx context.Context, tx *gorm.DB, limit int) ([]crawl.URLCorrection, error)
}

type urlCorrectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewURLCorrectionRepo(db *gorm.DB, log *logger.Logger) URLCorrectionRepo {
	return &urlCorrectionRepo{db: db, log: log.With("repo", "URLCorrectionRepo")}
}

func (r *urlCorrectionRepo) Create(ctx context.Context, tx *gorm.DB, correction *crawl.URLCorrection) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if err := dbx.WithContext(ctx).Create(correction).Error; err != nil {
		return fmt.Errorf("failed to create url correction: %w", err)
	}
	return nil
}

func (r *urlCorrectionRepo) ListByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID) ([]crawl.URLCorrection, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var out []crawl.URLCorrection
	err := dbx.WithContext(ctx).
		Where("district_id = ?", districtID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list url corrections: %w", err)
	}
	return out, nil
}

func (r *urlCorrectionRepo) ListUnvalidated(ctx context.Context, tx *gorm.DB, limit int) ([]crawl.URLCorrection, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var out []crawl.URLCorrection
	err := dbx.WithContext(ctx).
		Where("validated = false").
		Order("created_at").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unvalidated corrections: %w", err)
	}
	return out, nil
}
