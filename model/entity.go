package model

import "time"

// CanonicalEntity is the deduplicated node for one concept.
// Key is derived from the normalized label the entity was first seen with.
type CanonicalEntity struct {
	Key            string    `json:"key"`
	Label          string    `json:"label"`
	Data           Metadata  `json:"data,omitempty"`
	LabelEmbedding []float32 `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Ref returns the record reference of the entity.
func (e *CanonicalEntity) Ref() RecordRef {
	return RecordRef{Table: TableEntity, ID: e.Key}
}

// Disambiguation is a label embedding stored under a canonical key,
// used only for nearest neighbor identity lookups.
type Disambiguation struct {
	EntityKey string    `json:"entity_key"`
	Label     string    `json:"label"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Candidate is a nearest neighbor hit of an identity lookup.
type Candidate struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Similarity float64 `json:"similarity"`
}

// DuplicatePair reports two canonical entities whose label embeddings
// are closer than a reconciliation threshold.
type DuplicatePair struct {
	LeftKey    string  `json:"left_key"`
	LeftLabel  string  `json:"left_label"`
	RightKey   string  `json:"right_key"`
	RightLabel string  `json:"right_label"`
	Similarity float64 `json:"similarity"`
}
