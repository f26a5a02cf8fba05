package crawl

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// URLRole distinguishes how a fetched URL entered the crawl.
type URLRole string

const (
	// RoleEntry is the district's discovered entry point.
	RoleEntry URLRole = "entry"
	// RoleInternalLink is a same-host page reached from the entry page.
	RoleInternalLink URLRole = "internal_link"
	// RoleDocumentLink is a linked document file (PDF).
	RoleDocumentLink URLRole = "document_link"
)

// Outcome is the terminal state of one fetch.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
	OutcomeTimeout Outcome = "timeout"
)

// Attempt is the append-only audit record: exactly one row per fetch the
// orchestrator issues, successful or not.
type Attempt struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DistrictID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"district_id"`
	BatchID         uuid.UUID      `gorm:"type:uuid;index" json:"batch_id"`
	URL             string         `gorm:"not null" json:"url"`
	URLRole         URLRole        `gorm:"type:varchar(16);not null" json:"url_role"`
	Outcome         Outcome        `gorm:"type:varchar(16);not null;index" json:"outcome"`
	HTTPStatus      int            `json:"http_status"`
	ErrorDetail     string         `json:"error_detail"`
	ContentType     string         `json:"content_type"`
	Extracted       bool           `gorm:"not null;default:false" json:"extracted"`
	MatchedKeywords datatypes.JSON `gorm:"type:jsonb" json:"matched_keywords"`
	LatencyMS       int64          `json:"latency_ms"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
}

func (Attempt) TableName() string { return "crawl_attempt" }
