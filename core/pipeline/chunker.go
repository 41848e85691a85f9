package pipeline

import (
	"fmt"
	"strings"
)

// ChunkFunc is a function that splits text into ordered chunks.
type ChunkFunc func(text string) ([]ChunkWithIndex, error)

// ChunkWithIndex represents a chunk and its position within the document.
type ChunkWithIndex struct {
	Content    string
	ChunkIndex int
	StartPos   int
	EndPos     int
}

// OverlapChunker creates a chunker that splits text into overlapping segments
// of roughly targetSize characters. When a cut point falls mid-text it searches
// backward up to lookback characters for a sentence end (". ") or a newline and
// cuts there instead; otherwise it cuts at the raw budget point. Consecutive
// chunks share overlap characters. Identical input always yields the identical
// chunk sequence.
func OverlapChunker(targetSize int, overlap int, lookback int) ChunkFunc {
	return func(text string) ([]ChunkWithIndex, error) {
		if targetSize <= 0 {
			return nil, fmt.Errorf("chunk target size must be positive")
		}
		if overlap < 0 || overlap >= targetSize {
			return nil, fmt.Errorf("chunk overlap must be in [0, target size)")
		}
		if lookback < 0 {
			return nil, fmt.Errorf("boundary lookback must not be negative")
		}

		// Handle empty or whitespace-only text
		if strings.TrimSpace(text) == "" {
			return []ChunkWithIndex{}, nil
		}

		var chunks []ChunkWithIndex
		textLen := len(text)
		start := 0
		chunkIdx := 0

		for start < textLen {
			end := start + targetSize

			if end < textLen {
				// Look for a sentence boundary in the last lookback chars of the chunk
				searchStart := end - lookback
				if searchStart < start {
					searchStart = start
				}
				window := text[searchStart:end]
				breakPoint := -1
				if p := strings.LastIndex(window, ". "); p >= 0 {
					breakPoint = searchStart + p
				}
				if p := strings.LastIndex(window, "\n"); p >= 0 && searchStart+p > breakPoint {
					breakPoint = searchStart + p
				}
				if breakPoint > start {
					end = breakPoint + 1 // include the period/newline
				}
			} else {
				end = textLen
			}

			content := strings.TrimSpace(text[start:end])
			if content != "" {
				chunks = append(chunks, ChunkWithIndex{
					Content:    content,
					ChunkIndex: chunkIdx,
					StartPos:   start,
					EndPos:     end,
				})
				chunkIdx++
			}

			if end >= textLen {
				break
			}
			next := end - overlap
			if next <= start {
				// overlap would stall forward progress
				next = end
			}
			start = next
		}

		return chunks, nil
	}
}
