package model

import (
	"time"

	"github.com/google/uuid"
)

// Document is one ingested text. Documents are written once and never updated.
type Document struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title,omitempty"`
	Source    string    `json:"source,omitempty"`
	Text      string    `json:"text"`
	Weight    float64   `json:"weight"`
	Embedding []float32 `json:"-"`
	Metadata  Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Ref returns the record reference of the document.
func (d *Document) Ref() RecordRef {
	return RecordRef{Table: TableDocument, ID: d.ID.String()}
}
