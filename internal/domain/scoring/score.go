package scoring

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// KeywordScore is the scored readiness profile for one district. Exactly one
// row per district; every scoring run fully recomputes and replaces it.
type KeywordScore struct {
	DistrictID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"district_id"`
	ReadinessScore    float64        `gorm:"not null;default:0" json:"readiness_score"`
	TechnologyScore   float64        `gorm:"not null;default:0" json:"technology_score"`
	FundingScore      float64        `gorm:"not null;default:0" json:"funding_score"`
	EngagementScore   float64        `gorm:"not null;default:0" json:"engagement_score"`
	CompositeScore    float64        `gorm:"not null;default:0;index" json:"composite_score"`
	Tier              int            `gorm:"not null;default:3" json:"tier"`
	MatchDetail       datatypes.JSON `gorm:"type:jsonb" json:"match_detail"`
	DocumentsAnalyzed int            `gorm:"not null;default:0" json:"documents_analyzed"`
	ScoredAt          time.Time      `json:"scored_at"`
}

func (KeywordScore) TableName() string { return "keyword_score" }

// KeywordMatch is one piece of score evidence, serialized into MatchDetail
// keyed by category.
type KeywordMatch struct {
	Keyword     string  `json:"keyword"`
	Weight      float64 `json:"weight"`
	DocumentURL string  `json:"document_url"`
	Context     string  `json:"context"`
}
