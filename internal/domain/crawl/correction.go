package crawl

import (
	"time"

	"github.com/google/uuid"
)

// URLCorrection records that discovery landed on a different registrable
// domain than every loader hint. One row per (district, new URL) finding;
// rows feed the eventual roster cleanup.
type URLCorrection struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DistrictID uuid.UUID `gorm:"type:uuid;not null;index" json:"district_id"`
	OldURL     string    `json:"old_url"`
	NewURL     string    `gorm:"not null" json:"new_url"`
	Strategy   string    `gorm:"type:varchar(32);not null" json:"strategy"`
	Confidence float64   `gorm:"not null" json:"confidence"`
	Detail     string    `json:"detail"`
	Validated  bool      `gorm:"not null;default:false" json:"validated"`
	CreatedAt  time.Time `json:"created_at"`
}

func (URLCorrection) TableName() string { return "url_correction" }
