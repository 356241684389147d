package driven

// Chunk is a windowed piece of extracted text.
type Chunk struct {
	Content     string
	Position    int
	StartOffset int
	EndOffset   int
}

// ChunkPipeline splits extracted text into retrieval chunks. Splitting
// must be deterministic: the same text always yields identical chunk
// boundaries and count, so citations stay stable across re-indexing.
type ChunkPipeline interface {
	// Process splits content into ordered chunks. Empty content yields
	// zero chunks.
	Process(content string) []Chunk
}
