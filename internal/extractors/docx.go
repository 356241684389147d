package extractors

import (
	"bytes"
	"fmt"

	"github.com/nguyenthenguyen/docx"

	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TextExtractor = (*DOCXExtractor)(nil)

// DOCXExtractor extracts plain text from Word documents.
type DOCXExtractor struct{}

// NewDOCXExtractor creates a new DOCXExtractor
func NewDOCXExtractor() *DOCXExtractor {
	return &DOCXExtractor{}
}

// Extract returns the document body text.
func (e *DOCXExtractor) Extract(content []byte) (string, error) {
	reader, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer reader.Close()

	return reader.Editable().GetContent(), nil
}

// Name identifies the extractor.
func (e *DOCXExtractor) Name() string {
	return "docx"
}
