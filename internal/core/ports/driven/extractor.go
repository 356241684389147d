package driven

// TextExtractor turns raw uploaded bytes into plain text for chunking.
type TextExtractor interface {
	// Extract returns the plain text content of the payload.
	Extract(content []byte) (string, error)

	// Name identifies the extractor.
	Name() string
}

// ExtractorRegistry resolves an extractor by filename extension.
type ExtractorRegistry interface {
	// Get returns the extractor for the extension (without dot, lower
	// case), or nil if the extension is unsupported.
	Get(extension string) TextExtractor

	// Supported lists registered extensions.
	Supported() []string
}
