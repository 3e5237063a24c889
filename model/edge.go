package model

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordTable names the kind of record an edge endpoint points to.
type RecordTable string

const (
	TableDocument RecordTable = "document"
	TableChunk    RecordTable = "chunk"
	TableEntity   RecordTable = "entity"
)

// RelationMentions is the relation type of document to entity edges.
const RelationMentions = "mentions"

// Valid reports whether t is a known record table.
func (t RecordTable) Valid() bool {
	switch t {
	case TableDocument, TableChunk, TableEntity:
		return true
	}
	return false
}

// RecordRef addresses a stored record. Documents and chunks are addressed
// by their uuid, entities by their canonical key.
type RecordRef struct {
	Table RecordTable `json:"table"`
	ID    string      `json:"id"`
}

// EntityRef returns the reference of the entity with the given canonical key.
func EntityRef(key string) RecordRef {
	return RecordRef{Table: TableEntity, ID: key}
}

// ParseRecordRef parses the "table:id" form returned by RecordRef.String.
func ParseRecordRef(s string) (RecordRef, error) {
	table, id, ok := strings.Cut(s, ":")
	if !ok {
		return RecordRef{}, NewKindError(ErrValidation, "parse record reference", fmt.Errorf("expected table:id, got %q", s))
	}
	ref := RecordRef{Table: RecordTable(table), ID: id}
	return ref, ref.Validate()
}

func (r RecordRef) String() string {
	return string(r.Table) + ":" + r.ID
}

// Validate checks the table name and, for uuid addressed tables, the id format.
func (r RecordRef) Validate() error {
	if !r.Table.Valid() {
		return NewKindError(ErrValidation, "validate record reference", fmt.Errorf("unknown table %q", r.Table))
	}
	if strings.TrimSpace(r.ID) == "" {
		return NewKindError(ErrValidation, "validate record reference", fmt.Errorf("empty id"))
	}
	if r.Table != TableEntity {
		if _, err := uuid.Parse(r.ID); err != nil {
			return NewKindError(ErrValidation, "validate record reference", fmt.Errorf("invalid %s id %q: %w", r.Table, r.ID, err))
		}
	}
	return nil
}

// Edge is a directed, typed, weighted relation between two records.
// There is at most one edge per (source, relation, target).
type Edge struct {
	ID        uuid.UUID `json:"id"`
	Source    RecordRef `json:"source"`
	Relation  string    `json:"relation"`
	Target    RecordRef `json:"target"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Other returns the endpoint of the edge that is not ref.
// A self loop returns ref itself. ok is false when ref is not an endpoint.
func (e *Edge) Other(ref RecordRef) (other RecordRef, ok bool) {
	switch ref {
	case e.Source:
		return e.Target, true
	case e.Target:
		return e.Source, true
	}
	return RecordRef{}, false
}

// WeightMerge is the rule combining a stored edge weight with a new write.
type WeightMerge string

const (
	WeightMergeMax     WeightMerge = "max"
	WeightMergeReplace WeightMerge = "replace"
	WeightMergeAverage WeightMerge = "average"
	WeightMergeSum     WeightMerge = "sum"
)

// Valid reports whether w is a known merge rule.
func (w WeightMerge) Valid() bool {
	switch w {
	case WeightMergeMax, WeightMergeReplace, WeightMergeAverage, WeightMergeSum:
		return true
	}
	return false
}

// Merge combines the stored weight with a new one. Both inputs and the
// result are clamped to [0,1]. An unknown rule behaves like max.
func (w WeightMerge) Merge(stored, incoming float64) float64 {
	stored = ClampWeight(stored)
	incoming = ClampWeight(incoming)

	switch w {
	case WeightMergeReplace:
		return incoming
	case WeightMergeAverage:
		return ClampWeight((stored + incoming) / 2)
	case WeightMergeSum:
		return ClampWeight(stored + incoming)
	default:
		return math.Max(stored, incoming)
	}
}

// ClampWeight clamps w to [0,1]; NaN becomes 0.
func ClampWeight(w float64) float64 {
	if math.IsNaN(w) || w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
