package pipeline

import (
	"fmt"
	"strings"
)

// ParagraphChunker creates a chunker that splits by paragraphs.
// Paragraphs are separated by blank lines, trimmed, and dropped when empty.
func ParagraphChunker() ChunkFunc {
	return func(text string) ([]string, error) {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		paragraphs := strings.Split(text, "\n\n")

		chunks := make([]string, 0, len(paragraphs))
		for _, para := range paragraphs {
			para = strings.TrimSpace(para)
			if para == "" {
				continue
			}
			chunks = append(chunks, para)
		}

		return chunks, nil
	}
}

// SentenceChunker creates a chunker that groups up to maxSentencesPerChunk
// sentences into one chunk
func SentenceChunker(maxSentencesPerChunk int) ChunkFunc {
	return func(text string) ([]string, error) {
		if maxSentencesPerChunk <= 0 {
			return nil, fmt.Errorf("max sentences per chunk must be positive")
		}

		text = strings.ReplaceAll(text, "! ", "!|")
		text = strings.ReplaceAll(text, "? ", "?|")
		text = strings.ReplaceAll(text, ". ", ".|")

		var chunks []string
		var current []string
		for _, sentence := range strings.Split(text, "|") {
			sentence = strings.Join(strings.Fields(sentence), " ")
			if sentence == "" {
				continue
			}

			current = append(current, sentence)
			if len(current) >= maxSentencesPerChunk {
				chunks = append(chunks, strings.Join(current, " "))
				current = nil
			}
		}

		// Add remaining sentences
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}

		return chunks, nil
	}
}
