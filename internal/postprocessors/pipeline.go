package postprocessors

import (
	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ChunkPipeline = (*Pipeline)(nil)

// Pipeline implements ChunkPipeline with a fixed-window chunker.
// Fixed windows (no sentence or paragraph snapping) keep chunk
// boundaries reproducible, which citation mapping depends on: a
// (blob_id, chunk_index) pair must resolve to the same text across
// re-indexing runs.
type Pipeline struct {
	chunker *Chunker
}

// NewPipeline creates a pipeline around the given chunker.
func NewPipeline(chunker *Chunker) *Pipeline {
	return &Pipeline{chunker: chunker}
}

// DefaultPipeline creates a pipeline with the default chunker.
func DefaultPipeline() *Pipeline {
	return NewPipeline(NewChunker(DefaultChunkConfig()))
}

// Process splits content into ordered chunks. Empty content yields zero
// chunks.
func (p *Pipeline) Process(content string) []driven.Chunk {
	return p.chunker.Split(content)
}

// ChunkConfig configures the chunker behavior.
type ChunkConfig struct {
	// WindowSize is the characters (runes) per chunk
	WindowSize int

	// Overlap is the character overlap between consecutive chunks
	Overlap int
}

// DefaultChunkConfig returns the standard 1000/200 windowing.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		WindowSize: 1000,
		Overlap:    200,
	}
}

// Chunker splits content into fixed-size overlapping windows.
type Chunker struct {
	config ChunkConfig
}

// NewChunker creates a new chunker with the given config. Invalid
// configs fall back to defaults.
func NewChunker(config ChunkConfig) *Chunker {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultChunkConfig().WindowSize
	}
	if config.Overlap < 0 || config.Overlap >= config.WindowSize {
		config.Overlap = config.WindowSize / 5
	}
	return &Chunker{config: config}
}

// Split windows content into chunks. For text of rune length L with
// window W and overlap O: one chunk for 0 < L <= W, zero chunks for
// L == 0, otherwise windows start every W-O runes and the last window
// may be shorter.
func (c *Chunker) Split(content string) []driven.Chunk {
	if content == "" {
		return nil
	}

	runes := []rune(content)
	if len(runes) <= c.config.WindowSize {
		return []driven.Chunk{{
			Content:     content,
			Position:    0,
			StartOffset: 0,
			EndOffset:   len(runes),
		}}
	}

	var chunks []driven.Chunk
	step := c.config.WindowSize - c.config.Overlap
	position := 0

	for start := 0; start < len(runes); start += step {
		end := start + c.config.WindowSize
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, driven.Chunk{
			Content:     string(runes[start:end]),
			Position:    position,
			StartOffset: start,
			EndOffset:   end,
		})
		position++

		if end >= len(runes) {
			break
		}
	}

	return chunks
}
