package resolver

import (
	"context"

	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// Session resolves the entities of one ingestion request.
// New keys are staged instead of written so the caller can commit them with
// the rest of the request. Labels of the same request that are similar
// enough resolve to one key. A Session is not safe for concurrent use.
type Session struct {
	resolver *Resolver
	memo     map[string]*model.Resolution
	staged   []*model.Resolution
}

// NewSession starts a resolution session.
func (r *Resolver) NewSession() *Session {
	return &Session{
		resolver: r,
		memo:     make(map[string]*model.Resolution),
	}
}

// Resolve returns the canonical key of reference, staging a new key when
// neither a stored nor a staged entity is similar enough.
func (s *Session) Resolve(ctx context.Context, reference model.EntityReference) (*model.Resolution, error) {
	label, key, err := prepareLabel(reference.Label)
	if err != nil {
		return nil, err
	}
	if resolution, ok := s.memo[key]; ok {
		return resolution, nil
	}

	embedding, err := s.resolver.embed(ctx, label, reference.Embedding)
	if err != nil {
		return nil, err
	}

	best, err := s.resolver.nearest(ctx, embedding)
	if err != nil {
		return nil, err
	}
	if staged := s.nearestStaged(embedding); staged != nil && (best == nil || staged.Similarity > best.Similarity) {
		best = staged
	}

	var resolution *model.Resolution
	if best != nil && best.Similarity >= s.resolver.config.SimilarityThreshold {
		resolution = matched(best, embedding)
	} else {
		resolution = s.resolver.mint(key, label, embedding)
		s.staged = append(s.staged, resolution)
	}

	s.memo[key] = resolution
	return resolution, nil
}

// Pending returns the disambiguation records staged by the session.
// It is empty in the entity identity scheme.
func (s *Session) Pending() []*model.Disambiguation {
	var pending []*model.Disambiguation
	for _, r := range s.staged {
		if r.Registered != nil {
			pending = append(pending, r.Registered)
		}
	}
	return pending
}

func (s *Session) nearestStaged(embedding []float32) *model.Candidate {
	var best *model.Candidate
	for _, r := range s.staged {
		similarity := helper.CosineSimilarity(embedding, r.Embedding)
		if best == nil || similarity > best.Similarity {
			best = &model.Candidate{Key: r.Key, Label: r.Label, Similarity: similarity}
		}
	}
	return best
}
