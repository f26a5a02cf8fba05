package crawl

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// BatchStatus is the lifecycle of one crawl run.
type BatchStatus string

const (
	BatchQueued    BatchStatus = "queued"
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// Batch is the per-run summary row: totals by outcome and by discovery
// strategy, created queued, claimed by the run worker, finalized when the
// run ends.
type Batch struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Status             BatchStatus    `gorm:"type:varchar(16);not null;default:'queued';index" json:"status"`
	DistrictsTotal     int            `gorm:"not null;default:0" json:"districts_total"`
	DistrictsSucceeded int            `gorm:"not null;default:0" json:"districts_succeeded"`
	DistrictsFailed    int            `gorm:"not null;default:0" json:"districts_failed"`
	AttemptCounts      datatypes.JSON `gorm:"type:jsonb" json:"attempt_counts"`
	StrategyCounts     datatypes.JSON `gorm:"type:jsonb" json:"strategy_counts"`
	Notes              string         `json:"notes"`
	CreatedAt          time.Time      `json:"created_at"`
	StartedAt          *time.Time     `json:"started_at,omitempty"`
	FinishedAt         *time.Time     `json:"finished_at,omitempty"`
}

func (Batch) TableName() string { return "crawl_batch" }
