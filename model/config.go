package model

// IdentityScheme selects where entity resolution looks for known entities.
type IdentityScheme string

const (
	// IdentitySchemeDisambiguation searches the disambiguation records.
	IdentitySchemeDisambiguation IdentityScheme = "disambiguation"
	// IdentitySchemeEntity searches the label embeddings of the entities.
	IdentitySchemeEntity IdentityScheme = "entity"
)

// GraphConfig holds the tuning parameters of resolution, ingestion and search.
type GraphConfig struct {
	SimilarityThreshold float64        `json:"similarity_threshold" validate:"gte=0,lte=1"`
	CandidateLimit      int            `json:"candidate_limit" validate:"gte=1,lte=100"`
	IdentityScheme      IdentityScheme `json:"identity_scheme" validate:"oneof=disambiguation entity"`
	WeightMerge         WeightMerge    `json:"weight_merge" validate:"oneof=max replace average sum"`
	SearchLimit         int            `json:"search_limit" validate:"gte=1"`
}

// DefaultGraphConfig returns the default configuration:
// threshold 0.9, one candidate, disambiguation records, max merge, 300 results.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		SimilarityThreshold: 0.9,
		CandidateLimit:      1,
		IdentityScheme:      IdentitySchemeDisambiguation,
		WeightMerge:         WeightMergeMax,
		SearchLimit:         300,
	}
}

// Validate checks every field against its allowed range.
func (c GraphConfig) Validate() error {
	return validateStruct(ErrValidation, "validate graph config", c)
}
