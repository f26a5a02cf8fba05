package districts

import (
	"time"

	"github.com/google/uuid"
)

// District is the crawl target roster. Rows are produced by external loaders
// (state registries, directory exports, contact lists); the crawler treats the
// hint columns as untrusted input and never writes back to them.
type District struct {
	ID           uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	State        string    `gorm:"type:char(2);not null;index" json:"state"`
	RegistryURL  string    `json:"registry_url"`
	DirectoryURL string    `json:"directory_url"`
	ContactURL   string    `json:"contact_url"`
	ContactEmail string    `json:"contact_email"`
	Enrollment   *int      `json:"enrollment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (District) TableName() string { return "district" }

// HintURLs returns the loader-provided site hints in priority order,
// skipping empty columns.
func (d District) HintURLs() []string {
	hints := make([]string, 0, 3)
	for _, h := range []string{d.RegistryURL, d.DirectoryURL, d.ContactURL} {
		if h != "" {
			hints = append(hints, h)
		}
	}
	return hints
}
