package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/yungbote/sitescout-backend/internal/domain/crawl"
	"github.com/yungbote/sitescout-backend/internal/domain/districts"
	"github.com/yungbote/sitescout-backend/internal/domain/documents"
	"github.com/yungbote/sitescout-backend/internal/pkg/pointers"
)

func SeedDistrict(tb testing.TB, ctx context.Context, tx *gorm.DB, name, state string) *districts.District {
	tb.Helper()
	d := &districts.District{
		ID:          uuid.New(),
		Name:        name,
		State:       state,
		RegistryURL: "https://www." + uuid.NewString()[:8] + ".k12." + state + ".us",
		Enrollment:  pointers.Int(1200),
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed district: %v", err)
	}
	return d
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, districtID uuid.UUID, url, text string) *documents.Document {
	tb.Helper()
	sum := sha256.Sum256([]byte(text))
	now := time.Now().UTC()
	doc := &documents.Document{
		ID:               uuid.New(),
		DistrictID:       districtID,
		URL:              url,
		ContentType:      documents.ContentTypeHTML,
		Title:            "seeded page",
		Category:         documents.CategoryOther,
		Text:             text,
		TextLength:       len(text),
		ExtractionMethod: documents.ExtractionHTMLStrip,
		ContentHash:      hex.EncodeToString(sum[:]),
		DiscoveredAt:     now,
		LastCrawledAt:    now,
	}
	if err := tx.WithContext(ctx).Create(doc).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return doc
}

func SeedBatch(tb testing.TB, ctx context.Context, tx *gorm.DB, status crawl.BatchStatus) *crawl.Batch {
	tb.Helper()
	b := &crawl.Batch{
		ID:     uuid.New(),
		Status: status,
	}
	if err := tx.WithContext(ctx).Create(b).Error; err != nil {
		tb.Fatalf("seed batch: %v", err)
	}
	return b
}

// SeedChunk stores a chunk with a unit embedding along axis index, so search
// tests get distinct, well-defined cosine distances.
func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, documentID uuid.UUID, index int, text string) *documents.DocumentChunk {
	tb.Helper()
	vec := make([]float32, documents.EmbeddingDim)
	vec[index%documents.EmbeddingDim] = 1
	c := &documents.DocumentChunk{
		ID:         uuid.New(),
		DocumentID: documentID,
		ChunkIndex: index,
		Text:       text,
		Embedding:  pgvector.NewVector(vec),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}
