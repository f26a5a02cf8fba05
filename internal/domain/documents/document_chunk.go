package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingDim is the width of the vector column. It must match the embedding
// model configured on the embeddings client.
const EmbeddingDim = 1536

// DocumentChunk is one embedded slice of a document. Chunk rows are the
// durable record of what has been embedded: a document with chunk rows (or
// whose content hash matches a document that has them) is never re-sent to
// the embedding service.
type DocumentChunk struct {
	ID         uuid.UUID       `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID       `gorm:"type:uuid;not null;index" json:"document_id"`
	ChunkIndex int             `gorm:"not null" json:"chunk_index"`
	Text       string          `gorm:"type:text;not null" json:"text"`
	Embedding  pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (DocumentChunk) TableName() string { return "document_chunk" }
