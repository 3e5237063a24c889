package model

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a paragraph of a document together with its embedding.
type Chunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Ref returns the record reference of the chunk.
func (c *Chunk) Ref() RecordRef {
	return RecordRef{Table: TableChunk, ID: c.ID.String()}
}

// ChunkMatch is a chunk returned by a similarity query.
type ChunkMatch struct {
	Chunk      *Chunk  `json:"chunk"`
	Similarity float64 `json:"similarity"`
}
