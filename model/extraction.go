package model

import (
	"fmt"
	"strings"
)

// CandidateGraph is the structured output of the extraction model.
type CandidateGraph struct {
	Entities  []CandidateEntity   `json:"entities" validate:"dive"`
	Relations []CandidateRelation `json:"relations" validate:"dive"`
}

// CandidateEntity is an extracted entity label with its payload object.
type CandidateEntity struct {
	Label   string   `json:"title" validate:"required,max=512"`
	Payload Metadata `json:"data,omitempty"`
}

// CandidateRelation is an extracted (from, relation, to) triple over entity labels.
type CandidateRelation struct {
	From     string `json:"from" validate:"required,max=512"`
	To       string `json:"to" validate:"required,max=512"`
	Relation string `json:"relation" validate:"required,max=128"`
}

// Validate checks the graph shape. Failures are reported as ErrExtraction
// since a malformed graph means the model output was unusable.
func (g *CandidateGraph) Validate() error {
	if g == nil {
		return NewKindError(ErrExtraction, "validate candidate graph", fmt.Errorf("graph is nil"))
	}
	if err := validateStruct(ErrExtraction, "validate candidate graph", g); err != nil {
		return err
	}

	for i, e := range g.Entities {
		if strings.TrimSpace(e.Label) == "" {
			return NewKindError(ErrExtraction, "validate candidate graph", fmt.Errorf("entity %d has a blank label", i))
		}
	}
	for i, r := range g.Relations {
		if strings.TrimSpace(r.From) == "" || strings.TrimSpace(r.To) == "" || strings.TrimSpace(r.Relation) == "" {
			return NewKindError(ErrExtraction, "validate candidate graph", fmt.Errorf("relation %d has a blank field", i))
		}
	}
	return nil
}
