package crawl

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/sitescout-backend/internal/data/repos/testutil"
	"github.com/yungbote/sitescout-backend/internal/domain/crawl"
)

func TestURLCorrectionRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	ctx := context.Background()
	repo := NewURLCorrectionRepo(db, testutil.Logger(t))

	lincoln := testutil.SeedDistrict(t, ctx, tx, "Lincoln Unified School District", "CA")
	mesa := testutil.SeedDistrict(t, ctx, tx, "Mesa Public Schools", "AZ")

	now := time.Now().UTC()
	searchHit := &crawl.URLCorrection{
		ID:         uuid.New(),
		DistrictID: lincoln.ID,
		OldURL:     "https://old.lincolnusd.org",
		NewURL:     "https://www.lincolnusd.org",
		Strategy:   "web_search",
		Confidence: 0.75,
		Detail:     "found via name search",
		CreatedAt:  now.Add(-2 * time.Hour),
	}
	repairHit := &crawl.URLCorrection{
		ID:         uuid.New(),
		DistrictID: lincoln.ID,
		OldURL:     "https://ww.lincolnusd.org",
		NewURL:     "https://www.lincolnusd.org",
		Strategy:   "repair_known",
		Confidence: 0.95,
		Validated:  true,
		CreatedAt:  now.Add(-time.Hour),
	}
	mesaHit := &crawl.URLCorrection{
		ID:         uuid.New(),
		DistrictID: mesa.ID,
		NewURL:     "https://www.mpsaz.org",
		Strategy:   "name_pattern",
		Confidence: 0.60,
		CreatedAt:  now,
	}
	for _, c := range []*crawl.URLCorrection{searchHit, repairHit, mesaHit} {
		if err := repo.Create(ctx, tx, c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	byDistrict, err := repo.ListByDistrict(ctx, tx, lincoln.ID)
	if err != nil {
		t.Fatalf("ListByDistrict: %v", err)
	}
	if len(byDistrict) != 2 || byDistrict[0].ID != repairHit.ID || byDistrict[1].ID != searchHit.ID {
		t.Fatalf("ListByDistrict: wrong rows")
	}

	// Unvalidated rows come back oldest first for review.
	pending, err := repo.ListUnvalidated(ctx, tx, 0)
	if err != nil {
		t.Fatalf("ListUnvalidated: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != searchHit.ID || pending[1].ID != mesaHit.ID {
		t.Fatalf("ListUnvalidated: wrong rows")
	}

	one, err := repo.ListUnvalidated(ctx, tx, 1)
	if err != nil {
		t.Fatalf("ListUnvalidated limit: %v", err)
	}
	if len(one) != 1 || one[0].ID != searchHit.ID {
		t.Fatalf("ListUnvalidated limit: wrong row")
	}
}
