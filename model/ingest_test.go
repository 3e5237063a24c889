package model

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestRequestFromFile(t *testing.T) {
	t.Run("Successfully reads file and creates request", func(t *testing.T) {
		filePath := filepath.Join(t.TempDir(), "acme.txt")
		content := "Alice works at Acme."
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))

		req, err := NewIngestRequestFromFile(filePath, 0.8, Metadata{"author": "test"})

		require.NoError(t, err)
		assert.Equal(t, "acme", req.Title, "Title should be filename without extension")
		assert.Equal(t, filePath, req.Source, "Source should be file path")
		assert.Equal(t, content, req.Text)
		assert.Equal(t, 0.8, req.Weight)
		assert.Equal(t, "test", req.Metadata["author"])
	})

	t.Run("Returns error for non-existent file", func(t *testing.T) {
		req, err := NewIngestRequestFromFile("/non/existent/file.txt", 1, nil)

		require.Error(t, err)
		assert.Nil(t, req)
	})

	t.Run("Hidden file keeps its full name as title", func(t *testing.T) {
		filePath := filepath.Join(t.TempDir(), ".notes")
		require.NoError(t, os.WriteFile(filePath, []byte("text"), 0644))

		req, err := NewIngestRequestFromFile(filePath, 1, nil)
		require.NoError(t, err)
		assert.Equal(t, ".notes", req.Title)
	})
}

func TestIngestRequestValidate(t *testing.T) {
	t.Run("Valid request", func(t *testing.T) {
		req := &IngestRequest{Text: "Alice works at Acme.", Weight: 0.8}
		assert.NoError(t, req.Validate())
	})

	t.Run("Boundary weights are valid", func(t *testing.T) {
		assert.NoError(t, (&IngestRequest{Text: "x", Weight: 0}).Validate())
		assert.NoError(t, (&IngestRequest{Text: "x", Weight: 1}).Validate())
	})

	invalid := []struct {
		name string
		req  *IngestRequest
	}{
		{"Nil request", nil},
		{"Empty text", &IngestRequest{Text: "", Weight: 0.5}},
		{"Blank text", &IngestRequest{Text: " \n\n ", Weight: 0.5}},
		{"Weight above one", &IngestRequest{Text: "x", Weight: 1.5}},
		{"Negative weight", &IngestRequest{Text: "x", Weight: -0.1}},
		{"NaN weight", &IngestRequest{Text: "x", Weight: math.NaN()}},
	}
	for _, tt := range invalid {
		t.Run(tt.name+" is rejected", func(t *testing.T) {
			err := tt.req.Validate()
			assert.True(t, errors.Is(err, ErrValidation), "Expected a validation error, got %v", err)
		})
	}
}
