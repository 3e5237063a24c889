package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/siherrmann/graphrag/core/pipeline"
	"github.com/siherrmann/graphrag/model"
)

// DefaultDuplicateLimit is used by FindDuplicates for non-positive limits.
const DefaultDuplicateLimit = 100

// CandidateStore finds the canonical entities nearest to an embedding.
type CandidateStore interface {
	SelectNearest(ctx context.Context, embedding []float32, k int) ([]*model.Candidate, error)
}

// DisambiguationWriter registers disambiguation records and reports near duplicates among them.
type DisambiguationWriter interface {
	InsertDisambiguation(ctx context.Context, d *model.Disambiguation) error
	SelectDuplicates(ctx context.Context, minSimilarity float64, limit int) ([]*model.DuplicatePair, error)
}

// Resolver maps entity labels to canonical keys by embedding similarity.
//
// Lookups and registrations are not isolated from concurrent resolutions.
// Two requests resolving the same new concept at the same time may both mint
// a key. Identical labels mint the same key and converge on upsert; different
// labels for one concept can end up as two entities, which FindDuplicates reports.
type Resolver struct {
	candidates CandidateStore
	writer     DisambiguationWriter
	embedder   pipeline.Embedder
	config     model.GraphConfig
	logger     *slog.Logger
}

// NewResolver creates a resolver. writer may be nil in the entity identity
// scheme, where new keys are only created through entity upserts.
func NewResolver(candidates CandidateStore, writer DisambiguationWriter, embedder pipeline.Embedder, config model.GraphConfig, logger *slog.Logger) (*Resolver, error) {
	if candidates == nil {
		return nil, model.NewKindError(model.ErrValidation, "new resolver", fmt.Errorf("candidate store is nil"))
	}
	if embedder == nil {
		return nil, model.NewKindError(model.ErrValidation, "new resolver", fmt.Errorf("embedder is nil"))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if writer == nil && config.IdentityScheme == model.IdentitySchemeDisambiguation {
		return nil, model.NewKindError(model.ErrValidation, "new resolver", fmt.Errorf("disambiguation scheme needs a writer"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		candidates: candidates,
		writer:     writer,
		embedder:   embedder,
		config:     config,
		logger:     logger.With("component", "resolver"),
	}, nil
}

// Config returns the graph configuration of the resolver.
func (r *Resolver) Config() model.GraphConfig {
	return r.config
}

// Resolve returns the canonical key of reference. When no stored entity is
// similar enough a key is minted from the normalized label and, in the
// disambiguation scheme, registered right away.
func (r *Resolver) Resolve(ctx context.Context, reference model.EntityReference) (*model.Resolution, error) {
	label, key, err := prepareLabel(reference.Label)
	if err != nil {
		return nil, err
	}

	embedding, err := r.embed(ctx, label, reference.Embedding)
	if err != nil {
		return nil, err
	}

	best, err := r.nearest(ctx, embedding)
	if err != nil {
		return nil, err
	}
	if best != nil && best.Similarity >= r.config.SimilarityThreshold {
		return matched(best, embedding), nil
	}

	resolution := r.mint(key, label, embedding)
	if resolution.Registered != nil {
		err = r.writer.InsertDisambiguation(ctx, resolution.Registered)
		if err != nil {
			return nil, model.NewKindError(model.ErrStorage, "register disambiguation", err)
		}
	}

	return resolution, nil
}

// FindDuplicates reports pairs of canonical entities whose disambiguation
// embeddings have at least threshold similarity. It never modifies the graph.
func (r *Resolver) FindDuplicates(ctx context.Context, threshold float64, limit int) ([]*model.DuplicatePair, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, model.NewKindError(model.ErrValidation, "find duplicates", fmt.Errorf("threshold %v is outside [0,1]", threshold))
	}
	if r.writer == nil {
		return nil, model.NewKindError(model.ErrValidation, "find duplicates", fmt.Errorf("no disambiguation store configured"))
	}
	if limit <= 0 {
		limit = DefaultDuplicateLimit
	}

	pairs, err := r.writer.SelectDuplicates(ctx, threshold, limit)
	if err != nil {
		return nil, model.NewKindError(model.ErrStorage, "find duplicates", err)
	}

	r.logger.Debug("Found duplicate candidates", "threshold", threshold, "pairs", len(pairs))

	return pairs, nil
}

func (r *Resolver) embed(ctx context.Context, label string, embedding []float32) ([]float32, error) {
	if len(embedding) > 0 {
		return embedding, nil
	}

	embedding, err := r.embedder.EmbedText(ctx, label)
	if err != nil {
		return nil, model.NewKindError(model.ErrEmbedding, "embed label", err)
	}
	if len(embedding) == 0 {
		return nil, model.NewKindError(model.ErrEmbedding, "embed label", fmt.Errorf("empty embedding for %q", label))
	}

	return embedding, nil
}

func (r *Resolver) nearest(ctx context.Context, embedding []float32) (*model.Candidate, error) {
	candidates, err := r.candidates.SelectNearest(ctx, embedding, r.config.CandidateLimit)
	if err != nil {
		return nil, model.NewKindError(model.ErrStorage, "select nearest candidates", err)
	}

	var best *model.Candidate
	for _, c := range candidates {
		if best == nil || c.Similarity > best.Similarity {
			best = c
		}
	}
	return best, nil
}

func (r *Resolver) mint(key string, label string, embedding []float32) *model.Resolution {
	resolution := &model.Resolution{
		Key:       key,
		Label:     label,
		Embedding: embedding,
	}
	if r.config.IdentityScheme == model.IdentitySchemeDisambiguation {
		resolution.Registered = &model.Disambiguation{
			EntityKey: key,
			Label:     label,
			Embedding: embedding,
		}
	}

	r.logger.Debug("Minted canonical key", "key", key, "label", label)

	return resolution
}

func matched(candidate *model.Candidate, embedding []float32) *model.Resolution {
	return &model.Resolution{
		Key:        candidate.Key,
		Label:      candidate.Label,
		Embedding:  embedding,
		Similarity: candidate.Similarity,
		Matched:    true,
	}
}

func prepareLabel(raw string) (label string, key string, err error) {
	label = strings.TrimSpace(raw)
	if label == "" {
		return "", "", model.NewKindError(model.ErrValidation, "resolve entity", fmt.Errorf("label is blank"))
	}
	key = NormalizeLabel(label)
	if key == "" {
		return "", "", model.NewKindError(model.ErrValidation, "resolve entity", fmt.Errorf("label %q normalizes to an empty key", raw))
	}
	return label, key, nil
}
