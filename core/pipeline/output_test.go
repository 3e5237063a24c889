package pipeline

import (
	"testing"

	"github.com/siherrmann/graphrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanModelOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "Plain object is kept",
			output: `{"entities": []}`,
			want:   `{"entities": []}`,
		},
		{
			name:   "Reasoning block is removed",
			output: "<think>\nthe user wants {a graph}\n</think>\n{\"entities\": []}",
			want:   `{"entities": []}`,
		},
		{
			name:   "Code fence with json tag is removed",
			output: "```json\n{\"entities\": []}\n```",
			want:   `{"entities": []}`,
		},
		{
			name:   "Text around the object is cut",
			output: "Here is the graph: {\"relations\": [{\"from\": \"a\"}]} Hope it helps.",
			want:   `{"relations": [{"from": "a"}]}`,
		},
		{
			name:   "No object stays as is",
			output: "  nothing  ",
			want:   "nothing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanModelOutput(tt.output))
		})
	}
}

func TestRepairJSON(t *testing.T) {
	t.Run("Missing opening quote before key is added", func(t *testing.T) {
		assert.Equal(t, `{"title": "Acme", "data": {}}`, repairJSON(`{title": "Acme", data": {}}`))
	})

	t.Run("Valid JSON is unchanged", func(t *testing.T) {
		valid := `{"title": "Acme, Inc", "data": {"type": "company"}}`
		assert.Equal(t, valid, repairJSON(valid))
	})
}

func TestParseCandidateGraph(t *testing.T) {
	t.Run("Valid answer", func(t *testing.T) {
		graph, err := ParseCandidateGraph("```json\n" + `{
			"entities": [{"title": "Alice"}, {"title": "Acme", "data": {"type": "company"}}],
			"relations": [{"from": "Alice", "to": "Acme", "relation": "works at"}]
		}` + "\n```")
		require.NoError(t, err)
		require.Len(t, graph.Entities, 2)
		assert.Equal(t, "Acme", graph.Entities[1].Label)
		assert.Equal(t, "company", graph.Entities[1].Payload["type"])
		require.Len(t, graph.Relations, 1)
		assert.Equal(t, "works at", graph.Relations[0].Relation)
	})

	t.Run("Payload key containing a comma is kept", func(t *testing.T) {
		graph, err := ParseCandidateGraph(`{"entities":[{"title":"Acme","data":{"city, state": "Springfield, IL"}}],"relations":[]}`)
		require.NoError(t, err)
		require.Len(t, graph.Entities, 1)
		assert.Equal(t, "Springfield, IL", graph.Entities[0].Payload["city, state"])
	})

	t.Run("Key missing its opening quote is repaired", func(t *testing.T) {
		graph, err := ParseCandidateGraph(`{"entities": [{title": "Acme"}], "relations": []}`)
		require.NoError(t, err)
		require.Len(t, graph.Entities, 1)
		assert.Equal(t, "Acme", graph.Entities[0].Label)
	})

	t.Run("Malformed JSON is an extraction error", func(t *testing.T) {
		_, err := ParseCandidateGraph(`{"entities": [`)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Empty answer is an extraction error", func(t *testing.T) {
		_, err := ParseCandidateGraph("<think>hmm</think>")
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Payload that is not an object is an extraction error", func(t *testing.T) {
		_, err := ParseCandidateGraph(`{"entities": [{"title": "Acme", "data": "company"}], "relations": []}`)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})

	t.Run("Relation without endpoint is an extraction error", func(t *testing.T) {
		_, err := ParseCandidateGraph(`{"entities": [], "relations": [{"from": "Alice", "relation": "knows"}]}`)
		assert.ErrorIs(t, err, model.ErrExtraction)
	})
}
