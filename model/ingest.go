package model

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// IngestRequest is one text to ingest. Weight is applied to every edge
// written by the request and must lie in [0,1].
type IngestRequest struct {
	Title    string   `json:"title,omitempty"`
	Source   string   `json:"source,omitempty"`
	Text     string   `json:"text" validate:"required"`
	Weight   float64  `json:"weight"`
	Metadata Metadata `json:"metadata,omitempty"`
}

// NewIngestRequestFromFile reads a file into an ingest request.
// The title defaults to the filename without extension, the source to the path.
func NewIngestRequestFromFile(filePath string, weight float64, metadata Metadata) (*IngestRequest, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if title == "" {
		title = filename
	}

	return &IngestRequest{
		Title:    title,
		Source:   filePath,
		Text:     string(content),
		Weight:   weight,
		Metadata: metadata,
	}, nil
}

// Validate checks the request. Failures are ErrValidation.
func (r *IngestRequest) Validate() error {
	if r == nil {
		return NewKindError(ErrValidation, "validate ingest request", fmt.Errorf("request is nil"))
	}
	if err := validateStruct(ErrValidation, "validate ingest request", r); err != nil {
		return err
	}
	if strings.TrimSpace(r.Text) == "" {
		return NewKindError(ErrValidation, "validate ingest request", fmt.Errorf("text is blank"))
	}
	if math.IsNaN(r.Weight) || r.Weight < 0 || r.Weight > 1 {
		return NewKindError(ErrValidation, "validate ingest request", fmt.Errorf("weight %v is outside [0,1]", r.Weight))
	}
	return nil
}

// EntityReference is a label to resolve, optionally with its embedding.
type EntityReference struct {
	Label     string
	Embedding []float32
}

// Resolution is the outcome of resolving one reference.
// Matched is true when an existing canonical entity was found; otherwise
// Registered holds the disambiguation record minted for the new key.
type Resolution struct {
	Key        string
	Label      string
	Embedding  []float32
	Similarity float64
	Matched    bool
	Registered *Disambiguation
}

// IngestionBatch holds every write of one ingestion request.
// It is committed in a single transaction, in field order.
// Mentions only carry their target; their source is the created document.
type IngestionBatch struct {
	Document        *Document
	Chunks          []*Chunk
	Disambiguations []*Disambiguation
	Entities        []*CanonicalEntity
	Mentions        []*Edge
	Relations       []*Edge
	WeightMerge     WeightMerge
}
