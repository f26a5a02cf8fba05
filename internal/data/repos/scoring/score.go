package scoring

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/sitescout-backend/internal/domain/scoring"
	apperrors "github.com/yungbote/sitescout-backend/internal/pkg/errors"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type KeywordScoreRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, score *scoring.KeywordScore) error
	GetByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID) (*scoring.KeywordScore, error)
	ListByTier(ctx context.Context, tx *gorm.DB, tier int) ([]scoring.KeywordScore, error)
	ListTop(ctx context.Context, tx *gorm.DB, limit int) ([]scoring.KeywordScore, error)
}

type keywordScoreRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKeywordScoreRepo(db *gorm.DB, log *logger.Logger) KeywordScoreRepo {
	return &keywordScoreRepo{db: db, log: log.With("repo", "KeywordScoreRepo")}
}

// Upsert replaces the district's score row wholesale. Scoring runs always
// recompute from scratch, so every column is overwritten.
func (r *keywordScoreRepo) Upsert(ctx context.Context, tx *gorm.DB, score *scoring.KeywordScore) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	err := dbx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "district_id"}},
		UpdateAll: true,
	}).Create(score).Error
	if err != nil {
		return fmt.Errorf("failed to upsert keyword score: %w", err)
	}
	return nil
}

func (r *keywordScoreRepo) GetByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID) (*scoring.KeywordScore, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var s scoring.KeywordScore
	if err := dbx.WithContext(ctx).First(&s, "district_id = ?", districtID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get keyword score: %w", err)
	}
	return &s, nil
}

func (r *keywordScoreRepo) ListByTier(ctx context.Context, tx *gorm.DB, tier int) ([]scoring.KeywordScore, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var out []scoring.KeywordScore
	err := dbx.WithContext(ctx).
		Where("tier = ?", tier).
		Order("composite_score DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scores by tier: %w", err)
	}
	return out, nil
}

func (r *keywordScoreRepo) ListTop(ctx context.Context, tx *gorm.DB, limit int) ([]scoring.KeywordScore, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if limit <= 0 {
		limit = 50
	}
	var out []scoring.KeywordScore
	err := dbx.WithContext(ctx).
		Order("composite_score DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list top scores: %w", err)
	}
	return out, nil
}
