package crawl

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type AttemptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, attempt *crawl.Attempt) error
	ListByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) ([]crawl.Attempt, error)
	ListByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID, limit int) ([]crawl.Attempt, error)
	CountByBatchOutcome(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (map[crawl.Outcome]int, error)
}

type attemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttemptRepo(db *gorm.DB, log *logger.Logger) AttemptRepo {
	return &attemptRepo{db: db, log: log.With("repo", "AttemptRepo")}
}

func (r *attemptRepo) Create(ctx context.Context, tx *gorm.DB, attempt *crawl.Attempt) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if err := dbx.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to create crawl attempt: %w", err)
	}
	return nil
}

func (r *attemptRepo) ListByBatch(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) ([]crawl.Attempt, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var out []crawl.Attempt
	err := dbx.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts by batch: %w", err)
	}
	return out, nil
}

func (r *attemptRepo) ListByDistrict(ctx context.Context, tx *gorm.DB, districtID uuid.UUID, limit int) ([]crawl.Attempt, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var out []crawl.Attempt
	q := dbx.WithContext(ctx).
		Where("district_id = ?", districtID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list attempts by district: %w", err)
	}
	return out, nil
}

func (r *attemptRepo) CountByBatchOutcome(ctx context.Context, tx *gorm.DB, batchID uuid.UUID) (map[crawl.Outcome]int, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	type row struct {
		Outcome crawl.Outcome
		N       int
	}
	var rows []row
	err := dbx.WithContext(ctx).
		Model(&crawl.Attempt{}).
		Select("outcome, COUNT(*) AS n").
		Where("batch_id = ?", batchID).
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count attempts by outcome: %w", err)
	}
	out := make(map[crawl.Outcome]int, len(rows))
	for _, rr := range rows {
		out[rr.Outcome] = rr.N
	}
	return out, nil
}
