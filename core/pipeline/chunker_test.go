package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParagraphChunker(t *testing.T) {
	chunker := ParagraphChunker()

	t.Run("Split on blank lines and trim", func(t *testing.T) {
		chunks, err := chunker("  First paragraph.  \n\nSecond\nparagraph.\n\n")
		require.NoError(t, err)
		assert.Equal(t, []string{"First paragraph.", "Second\nparagraph."}, chunks)
	})

	t.Run("Drop empty paragraphs", func(t *testing.T) {
		chunks, err := chunker("One.\n\n\n\n   \n\nTwo.")
		require.NoError(t, err)
		assert.Equal(t, []string{"One.", "Two."}, chunks)
	})

	t.Run("Windows line endings", func(t *testing.T) {
		chunks, err := chunker("One.\r\n\r\nTwo.")
		require.NoError(t, err)
		assert.Equal(t, []string{"One.", "Two."}, chunks)
	})

	t.Run("Whitespace only text has no chunks", func(t *testing.T) {
		chunks, err := chunker(" \n\n \t ")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestSentenceChunker(t *testing.T) {
	t.Run("Valid chunking with multiple sentences", func(t *testing.T) {
		chunks, err := SentenceChunker(2)("This is sentence one. This is sentence two. This is sentence three.")
		require.NoError(t, err)
		assert.Equal(t, []string{
			"This is sentence one. This is sentence two.",
			"This is sentence three.",
		}, chunks)
	})

	t.Run("Single sentence", func(t *testing.T) {
		chunks, err := SentenceChunker(1)("This is a single sentence.")
		require.NoError(t, err)
		assert.Equal(t, []string{"This is a single sentence."}, chunks)
	})

	t.Run("Error with zero max sentences", func(t *testing.T) {
		_, err := SentenceChunker(0)("Some text.")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")
	})

	t.Run("Empty text", func(t *testing.T) {
		chunks, err := SentenceChunker(3)("   ")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}
