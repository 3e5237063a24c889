package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/graphrag/helper"
	"github.com/siherrmann/graphrag/model"
)

// MemoryStore is an in-memory storage engine.
// It mirrors the behavior of the PostgreSQL handlers: ingestion batches are
// applied atomically, entity data is merged key by key and edge weights are
// combined with the batch merge rule.
type MemoryStore struct {
	// FailCommit, if set, is called with the batch before it is applied.
	// A returned error aborts the commit without any write.
	FailCommit func(batch *model.IngestionBatch) error

	mu    sync.RWMutex
	state *memoryState
}

type memoryState struct {
	documents       map[uuid.UUID]*model.Document
	chunks          map[uuid.UUID]*model.Chunk
	entities        map[string]*model.CanonicalEntity
	disambiguations map[string]*model.Disambiguation
	edges           map[edgeKey]*model.Edge
}

type edgeKey struct {
	source   model.RecordRef
	relation string
	target   model.RecordRef
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		documents:       make(map[uuid.UUID]*model.Document),
		chunks:          make(map[uuid.UUID]*model.Chunk),
		entities:        make(map[string]*model.CanonicalEntity),
		disambiguations: make(map[string]*model.Disambiguation),
		edges:           make(map[edgeKey]*model.Edge),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.documents {
		c.documents[k] = v
	}
	for k, v := range s.chunks {
		c.chunks[k] = v
	}
	for k, v := range s.entities {
		entity := *v
		c.entities[k] = &entity
	}
	for k, v := range s.disambiguations {
		c.disambiguations[k] = v
	}
	for k, v := range s.edges {
		edge := *v
		c.edges[k] = &edge
	}
	return c
}

// SelectNearest returns the k disambiguation records most similar to embedding.
func (m *MemoryStore) SelectNearest(ctx context.Context, embedding []float32, k int) ([]*model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewKindError(model.ErrStorage, "select nearest", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	candidates := make([]*model.Candidate, 0, len(m.state.disambiguations))
	for _, d := range m.state.disambiguations {
		candidates = append(candidates, &model.Candidate{
			Key:        d.EntityKey,
			Label:      d.Label,
			Similarity: helper.CosineSimilarity(embedding, d.Embedding),
		})
	}
	return nearest(candidates, k), nil
}

// EntityCandidates returns a candidate store over the label embeddings of
// stored entities instead of disambiguation records.
func (m *MemoryStore) EntityCandidates() *EntityCandidateStore {
	return &EntityCandidateStore{store: m}
}

// EntityCandidateStore looks up canonical entities by label embedding.
type EntityCandidateStore struct {
	store *MemoryStore
}

// SelectNearest returns the k entities whose label embedding is most similar to embedding.
func (e *EntityCandidateStore) SelectNearest(ctx context.Context, embedding []float32, k int) ([]*model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, model.NewKindError(model.ErrStorage, "select nearest entities", err)
	}

	e.store.mu.RLock()
	defer e.store.mu.RUnlock()

	candidates := make([]*model.Candidate, 0, len(e.store.state.entities))
	for _, entity := range e.store.state.entities {
		if len(entity.LabelEmbedding) == 0 {
			continue
		}
		candidates = append(candidates, &model.Candidate{
			Key:        entity.Key,
			Label:      entity.Label,
			Similarity: helper.CosineSimilarity(embedding, entity.LabelEmbedding),
		})
	}
	return nearest(candidates, k), nil
}

func nearest(candidates []*model.Candidate, k int) []*model.Candidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Key < candidates[j].Key
	})
	if k >= 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// InsertDisambiguation stores the record unless its key is already registered.
func (m *MemoryStore) InsertDisambiguation(ctx context.Context, d *model.Disambiguation) error {
	if len(d.Embedding) == 0 {
		return model.NewKindError(model.ErrValidation, "insert disambiguation", fmt.Errorf("embedding of %q is empty", d.EntityKey))
	}
	if err := ctx.Err(); err != nil {
		return model.NewKindError(model.ErrStorage, "insert disambiguation", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	insertDisambiguation(m.state, d)
	return nil
}

func insertDisambiguation(state *memoryState, d *model.Disambiguation) {
	if stored, ok := state.disambiguations[d.EntityKey]; ok {
		d.Label = stored.Label
		d.CreatedAt = stored.CreatedAt
		return
	}
	d.CreatedAt = time.Now()
	stored := *d
	state.disambiguations[d.EntityKey] = &stored
}

// SelectDisambiguation returns the record of a canonical key.
func (m *MemoryStore) SelectDisambiguation(ctx context.Context, key string) (*model.Disambiguation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.state.disambiguations[key]
	if !ok {
		return nil, model.NewKindError(model.ErrNotFound, "select disambiguation", fmt.Errorf("key %q", key))
	}
	out := *d
	return &out, nil
}

// SelectDuplicates returns pairs of distinct keys with at least minSimilarity.
func (m *MemoryStore) SelectDuplicates(ctx context.Context, minSimilarity float64, limit int) ([]*model.DuplicatePair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pairs []*model.DuplicatePair
	for _, a := range m.state.disambiguations {
		for _, b := range m.state.disambiguations {
			if a.EntityKey >= b.EntityKey {
				continue
			}
			similarity := helper.CosineSimilarity(a.Embedding, b.Embedding)
			if similarity < minSimilarity {
				continue
			}
			pairs = append(pairs, &model.DuplicatePair{
				LeftKey:    a.EntityKey,
				LeftLabel:  a.Label,
				RightKey:   b.EntityKey,
				RightLabel: b.Label,
				Similarity: similarity,
			})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Similarity != pairs[j].Similarity {
			return pairs[i].Similarity > pairs[j].Similarity
		}
		if pairs[i].LeftKey != pairs[j].LeftKey {
			return pairs[i].LeftKey < pairs[j].LeftKey
		}
		return pairs[i].RightKey < pairs[j].RightKey
	})
	if limit >= 0 && len(pairs) > limit {
		pairs = pairs[:limit]
	}
	return pairs, nil
}

// CommitIngestion applies the whole batch or nothing.
func (m *MemoryStore) CommitIngestion(ctx context.Context, batch *model.IngestionBatch) error {
	if batch == nil || batch.Document == nil {
		return model.NewKindError(model.ErrValidation, "commit ingestion", fmt.Errorf("batch has no document"))
	}
	if err := ctx.Err(); err != nil {
		return model.NewKindError(model.ErrStorage, "commit ingestion", err)
	}
	if m.FailCommit != nil {
		if err := m.FailCommit(batch); err != nil {
			return model.NewKindError(model.ErrStorage, "commit ingestion", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.state.clone()
	if err := apply(next, batch); err != nil {
		return err
	}
	m.state = next

	return nil
}

func apply(state *memoryState, batch *model.IngestionBatch) error {
	now := time.Now()

	doc := batch.Document
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if _, ok := state.documents[doc.ID]; ok {
		return model.NewKindError(model.ErrStorage, "insert document", fmt.Errorf("document %s already exists", doc.ID))
	}
	doc.CreatedAt = now
	storedDoc := *doc
	state.documents[doc.ID] = &storedDoc

	for i, c := range batch.Chunks {
		if len(c.Embedding) == 0 {
			return model.NewKindError(model.ErrStorage, "insert chunks", fmt.Errorf("chunk %d has no embedding", i))
		}
		c.ID = uuid.New()
		c.DocumentID = doc.ID
		c.Index = i
		c.CreatedAt = now
		stored := *c
		state.chunks[c.ID] = &stored
	}

	for _, d := range batch.Disambiguations {
		if len(d.Embedding) == 0 {
			return model.NewKindError(model.ErrValidation, "insert disambiguation", fmt.Errorf("embedding of %q is empty", d.EntityKey))
		}
		insertDisambiguation(state, d)
	}

	for _, e := range batch.Entities {
		upsertEntity(state, e, now)
	}

	for _, mention := range batch.Mentions {
		mention.Source = doc.Ref()
		if mention.Relation == "" {
			mention.Relation = model.RelationMentions
		}
		if err := upsertEdge(state, mention, batch.WeightMerge, now); err != nil {
			return err
		}
	}

	for _, relation := range batch.Relations {
		if err := upsertEdge(state, relation, batch.WeightMerge, now); err != nil {
			return err
		}
	}

	return nil
}

func upsertEntity(state *memoryState, e *model.CanonicalEntity, now time.Time) {
	stored, ok := state.entities[e.Key]
	if !ok {
		stored = &model.CanonicalEntity{
			Key:       e.Key,
			Label:     e.Label,
			Data:      model.Metadata{},
			CreatedAt: now,
		}
		state.entities[e.Key] = stored
	}

	stored.Data = stored.Data.Merge(e.Data)
	// The first label embedding of a key is kept.
	if len(stored.LabelEmbedding) == 0 && len(e.LabelEmbedding) > 0 {
		stored.LabelEmbedding = e.LabelEmbedding
	}
	stored.UpdatedAt = now

	e.Label = stored.Label
	e.Data = stored.Data
	e.CreatedAt = stored.CreatedAt
	e.UpdatedAt = stored.UpdatedAt
}

func upsertEdge(state *memoryState, edge *model.Edge, merge model.WeightMerge, now time.Time) error {
	if err := edge.Source.Validate(); err != nil {
		return err
	}
	if err := edge.Target.Validate(); err != nil {
		return err
	}
	if edge.Relation == "" {
		return model.NewKindError(model.ErrValidation, "upsert edge", fmt.Errorf("relation is empty"))
	}

	key := edgeKey{source: edge.Source, relation: edge.Relation, target: edge.Target}
	stored, ok := state.edges[key]
	if !ok {
		stored = &model.Edge{
			ID:        uuid.New(),
			Source:    edge.Source,
			Relation:  edge.Relation,
			Target:    edge.Target,
			Weight:    model.ClampWeight(edge.Weight),
			CreatedAt: now,
		}
		state.edges[key] = stored
	} else {
		stored.Weight = merge.Merge(stored.Weight, edge.Weight)
	}
	stored.UpdatedAt = now

	*edge = *stored
	return nil
}

// SelectRecord returns a *model.Document, *model.Chunk or *model.CanonicalEntity.
func (m *MemoryStore) SelectRecord(ctx context.Context, ref model.RecordRef) (interface{}, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	switch ref.Table {
	case model.TableDocument:
		if doc, ok := m.state.documents[uuid.MustParse(ref.ID)]; ok {
			out := *doc
			return &out, nil
		}
	case model.TableChunk:
		if chunk, ok := m.state.chunks[uuid.MustParse(ref.ID)]; ok {
			out := *chunk
			return &out, nil
		}
	case model.TableEntity:
		if entity, ok := m.state.entities[ref.ID]; ok {
			out := *entity
			return &out, nil
		}
	}

	return nil, model.NewKindError(model.ErrNotFound, "select record", fmt.Errorf("record %s", ref))
}

// SelectEntity returns the entity stored under key.
func (m *MemoryStore) SelectEntity(ctx context.Context, key string) (*model.CanonicalEntity, error) {
	record, err := m.SelectRecord(ctx, model.EntityRef(key))
	if err != nil {
		return nil, err
	}
	return record.(*model.CanonicalEntity), nil
}

// SelectEdgesConnected returns every edge touching ref, ascending by weight.
func (m *MemoryStore) SelectEdgesConnected(ctx context.Context, ref model.RecordRef) ([]*model.Edge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var edges []*model.Edge
	for _, e := range m.state.edges {
		if e.Source == ref || e.Target == ref {
			out := *e
			edges = append(edges, &out)
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight < edges[j].Weight
		}
		if edges[i].Relation != edges[j].Relation {
			return edges[i].Relation < edges[j].Relation
		}
		return edges[i].ID.String() < edges[j].ID.String()
	})
	return edges, nil
}

// Edges returns every stored edge.
func (m *MemoryStore) Edges() []*model.Edge {
	m.mu.RLock()
	defer m.mu.RUnlock()

	edges := make([]*model.Edge, 0, len(m.state.edges))
	for _, e := range m.state.edges {
		out := *e
		edges = append(edges, &out)
	}
	return edges
}

// Counts returns the number of stored documents, chunks, entities,
// disambiguations and edges.
func (m *MemoryStore) Counts() (documents, chunks, entities, disambiguations, edges int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.state.documents), len(m.state.chunks), len(m.state.entities), len(m.state.disambiguations), len(m.state.edges)
}

// SelectDocumentsBySimilarity returns documents by embedding similarity
// with the entities they mention.
func (m *MemoryStore) SelectDocumentsBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.DocumentMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*model.DocumentMatch
	for _, doc := range m.state.documents {
		if len(doc.Embedding) == 0 {
			continue
		}
		similarity := helper.CosineSimilarity(embedding, doc.Embedding)
		if similarity < minSimilarity {
			continue
		}

		mentions := []model.RecordRef{}
		for _, e := range m.state.edges {
			if e.Source == doc.Ref() && e.Relation == model.RelationMentions {
				mentions = append(mentions, e.Target)
			}
		}
		sort.Slice(mentions, func(i, j int) bool { return mentions[i].ID < mentions[j].ID })

		matches = append(matches, &model.DocumentMatch{
			DocumentID: doc.ID,
			Similarity: similarity,
			Mentions:   mentions,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].DocumentID.String() < matches[j].DocumentID.String()
	})
	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// SelectChunksBySimilarity returns chunks by embedding similarity.
func (m *MemoryStore) SelectChunksBySimilarity(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]*model.ChunkMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*model.ChunkMatch
	for _, chunk := range m.state.chunks {
		similarity := helper.CosineSimilarity(embedding, chunk.Embedding)
		if similarity < minSimilarity {
			continue
		}
		out := *chunk
		matches = append(matches, &model.ChunkMatch{Chunk: &out, Similarity: similarity})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Chunk.ID.String() < matches[j].Chunk.ID.String()
	})
	if limit >= 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
