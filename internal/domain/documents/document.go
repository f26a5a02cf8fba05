package documents

import (
	"time"

	"github.com/google/uuid"
)

// ContentType records what kind of payload a document was parsed from.
type ContentType string

const (
	// ContentTypeHTML is a fetched HTML page.
	ContentTypeHTML ContentType = "html"
	// ContentTypePDF is a URL that served a PDF directly.
	ContentTypePDF ContentType = "pdf"
	// ContentTypePDFEmbedded is a PDF reached through a document link on a page.
	ContentTypePDFEmbedded ContentType = "pdf_embedded"
)

// Category is the coarse document class assigned at crawl time.
type Category string

const (
	CategoryStrategicPlan  Category = "strategic_plan"
	CategoryTechnologyPlan Category = "technology_plan"
	CategoryBudget         Category = "budget"
	CategoryBoardMinutes   Category = "board_minutes"
	CategoryNews           Category = "news"
	CategoryOther          Category = "other"
)

// ExtractionMethod names the parser that produced Document.Text.
type ExtractionMethod string

const (
	ExtractionHTMLStrip ExtractionMethod = "html_strip"
	ExtractionPDFParse  ExtractionMethod = "pdf_parse"
)

// MaxTextLength caps stored document text. Longer extractions are truncated
// before hashing so the hash always matches the stored text.
const MaxTextLength = 500_000

// Document is one extracted page or file. (district_id, url) is unique: a
// re-crawl of the same URL updates the row in place.
type Document struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DistrictID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"district_id"`
	URL              string           `gorm:"not null" json:"url"`
	ContentType      ContentType      `gorm:"type:varchar(16);not null" json:"content_type"`
	Title            string           `json:"title"`
	Category         Category         `gorm:"type:varchar(32);not null;default:'other';index" json:"category"`
	Text             string           `gorm:"type:text" json:"-"`
	TextLength       int              `gorm:"not null;default:0" json:"text_length"`
	ExtractionMethod ExtractionMethod `gorm:"type:varchar(16)" json:"extraction_method"`
	LinkDepth        int              `gorm:"not null;default:0" json:"link_depth"`
	ContentHash      string           `gorm:"type:char(64);index" json:"content_hash"`
	DiscoveredAt     time.Time        `json:"discovered_at"`
	LastCrawledAt    time.Time        `json:"last_crawled_at"`
}

func (Document) TableName() string { return "document" }
