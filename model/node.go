package model

import "github.com/google/uuid"

// Neighbor is one edge of a node seen from that node: the other endpoint,
// the edge weight and the edge relation type.
type Neighbor struct {
	Record       RecordRef `json:"referenced_record"`
	Weight       float64   `json:"weight"`
	RelationType string    `json:"relation_type"`
}

// NodeView is a stored record with its direction-normalized neighbors.
// Content is the record serialized as JSON.
type NodeView struct {
	Record    RecordRef   `json:"record"`
	Neighbors []*Neighbor `json:"neighbors"`
	Content   string      `json:"content"`
}

// DocumentMatch is a document returned by a similarity search together
// with the entities it mentions.
type DocumentMatch struct {
	DocumentID uuid.UUID   `json:"document_id"`
	Similarity float64     `json:"similarity"`
	Mentions   []RecordRef `json:"mentions"`
}
