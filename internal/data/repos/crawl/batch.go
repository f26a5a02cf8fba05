package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/sitescout-backend/internal/domain/crawl"
	apperrors "github.com/yungbote/sitescout-backend/internal/pkg/errors"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
	"github.com/yungbote/sitescout-backend/internal/pkg/pointers"
)

type BatchRepo interface {
	Create(ctx context.Context, tx *gorm.DB, batch *crawl.Batch) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*crawl.Batch, error)
	Update(ctx context.Context, tx *gorm.DB, batch *crawl.Batch) error
	ClaimNextQueued(ctx context.Context) (*crawl.Batch, error)
	ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]crawl.Batch, error)
}

type batchRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBatchRepo(db *gorm.DB, log *logger.Logger) BatchRepo {
	return &batchRepo{db: db, log: log.With("repo", "BatchRepo")}
}

func (r *batchRepo) Create(ctx context.Context, tx *gorm.DB, batch *crawl.Batch) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if err := dbx.WithContext(ctx).Create(batch).Error; err != nil {
		return fmt.Errorf("failed to create crawl batch: %w", err)
	}
	return nil
}

func (r *batchRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*crawl.Batch, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var b crawl.Batch
	if err := dbx.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get crawl batch: %w", err)
	}
	return &b, nil
}

func (r *batchRepo) Update(ctx context.Context, tx *gorm.DB, batch *crawl.Batch) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if err := dbx.WithContext(ctx).Save(batch).Error; err != nil {
		return fmt.Errorf("failed to update crawl batch: %w", err)
	}
	return nil
}

// ClaimNextQueued atomically takes the oldest queued batch and marks it
// running. SKIP LOCKED keeps multiple workers from claiming the same run.
// Returns (nil, nil) when nothing is queued.
func (r *batchRepo) ClaimNextQueued(ctx context.Context) (*crawl.Batch, error) {
	var claimed *crawl.Batch
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b crawl.Batch
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", crawl.BatchQueued).
			Order("created_at").
			First(&b).Error
		if err != nil {
			return err
		}
		b.Status = crawl.BatchRunning
		b.StartedAt = pointers.Time(time.Now().UTC())
		if err := tx.Save(&b).Error; err != nil {
			return err
		}
		claimed = &b
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim queued batch: %w", err)
	}
	return claimed, nil
}

func (r *batchRepo) ListRecent(ctx context.Context, tx *gorm.DB, limit int) ([]crawl.Batch, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var out []crawl.Batch
	err := dbx.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent batches: %w", err)
	}
	return out, nil
}
