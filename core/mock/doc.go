// Package mock provides in-memory test doubles for the embedding and
// extraction adapters and for the storage engine.
//
// MemoryStore implements every storage interface the core consumes, so the
// resolver, the ingestor and the query service can run without PostgreSQL:
//
//	store := mock.NewMemoryStore()
//	embedder := mock.NewMockEmbedder(16)
//	res, err := resolver.NewResolver(store, store, embedder, model.DefaultGraphConfig(), nil)
//
// MockEmbedder returns deterministic vectors derived from a hash of the text
// unless a fixed vector is registered for it. MockExtractor returns registered
// graphs or, by default, one entity per capitalized word.
package mock
