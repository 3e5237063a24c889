package mock

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/siherrmann/graphrag/model"
)

// MockExtractor is a test double for pipeline.Extractor.
type MockExtractor struct {
	// ExtractFunc is called by Extract if set.
	ExtractFunc func(ctx context.Context, text string) (*model.CandidateGraph, error)

	// Graphs are returned for their exact text.
	Graphs map[string]*model.CandidateGraph

	mu        sync.Mutex
	callCount int
}

// NewMockExtractor creates a mock extractor with no registered graphs.
func NewMockExtractor() *MockExtractor {
	return &MockExtractor{
		Graphs: make(map[string]*model.CandidateGraph),
	}
}

// Extract returns the registered graph for text or one entity per
// capitalized word without relations.
func (m *MockExtractor) Extract(ctx context.Context, text string) (*model.CandidateGraph, error) {
	m.mu.Lock()
	m.callCount++
	graph, ok := m.Graphs[text]
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, text)
	}
	if ok {
		return graph, nil
	}

	return CapitalizedWordsGraph(text), nil
}

// CallCount returns the number of Extract calls.
func (m *MockExtractor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// CapitalizedWordsGraph creates one entity for every distinct capitalized word of text.
func CapitalizedWordsGraph(text string) *model.CandidateGraph {
	graph := &model.CandidateGraph{}
	seen := make(map[string]bool)

	for _, word := range strings.Fields(text) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if word == "" || !unicode.IsUpper([]rune(word)[0]) || seen[word] {
			continue
		}
		seen[word] = true
		graph.Entities = append(graph.Entities, model.CandidateEntity{Label: word})
	}

	return graph
}
