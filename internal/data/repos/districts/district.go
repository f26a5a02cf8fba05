package districts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	apperrors "github.com/yungbote/sitescout-backend/internal/pkg/errors"
	"github.com/yungbote/sitescout-backend/internal/pkg/logger"
)

type DistrictRepo interface {
	Create(ctx context.Context, tx *gorm.DB, district *districts.District) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*districts.District, error)
	ListAll(ctx context.Context, tx *gorm.DB) ([]districts.District, error)
	ListByState(ctx context.Context, tx *gorm.DB, state string) ([]districts.District, error)
	ListByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]districts.District, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type districtRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDistrictRepo(db *gorm.DB, log *logger.Logger) DistrictRepo {
	return &districtRepo{db: db, log: log.With("repo", "DistrictRepo")}
}

func (r *districtRepo) Create(ctx context.Context, tx *gorm.DB, district *districts.District) error {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if err := dbx.WithContext(ctx).Create(district).Error; err != nil {
		return fmt.Errorf("failed to create district: %w", err)
	}
	return nil
}

func (r *districtRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*districts.District, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var d districts.District
	if err := dbx.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get district: %w", err)
	}
	return &d, nil
}

func (r *districtRepo) ListAll(ctx context.Context, tx *gorm.DB) ([]districts.District, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var out []districts.District
	if err := dbx.WithContext(ctx).Order("state, name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list districts: %w", err)
	}
	return out, nil
}

func (r *districtRepo) ListByState(ctx context.Context, tx *gorm.DB, state string) ([]districts.District, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var out []districts.District
	if err := dbx.WithContext(ctx).Where("state = ?", state).Order("name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list districts by state: %w", err)
	}
	return out, nil
}

func (r *districtRepo) ListByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]districts.District, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var out []districts.District
	if err := dbx.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list districts by ids: %w", err)
	}
	return out, nil
}

func (r *districtRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	dbx := tx
	if dbx == nil {
		dbx = r.db
	}
	var n int64
	if err := dbx.WithContext(ctx).Model(&districts.District{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count districts: %w", err)
	}
	return n, nil
}
