package extractors

import (
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.TextExtractor = (*PlainTextExtractor)(nil)

// PlainTextExtractor passes UTF-8 text through, dropping invalid byte
// sequences rather than failing the whole document.
type PlainTextExtractor struct{}

// NewPlainTextExtractor creates a new PlainTextExtractor
func NewPlainTextExtractor() *PlainTextExtractor {
	return &PlainTextExtractor{}
}

// Extract decodes the payload as UTF-8 text.
func (e *PlainTextExtractor) Extract(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}

	// Salvage what decodes; skip invalid sequences
	var sb strings.Builder
	sb.Grow(len(content))
	for len(content) > 0 {
		r, size := utf8.DecodeRune(content)
		if r != utf8.RuneError || size > 1 {
			sb.WriteRune(r)
		}
		content = content[size:]
	}
	return sb.String(), nil
}

// Name identifies the extractor.
func (e *PlainTextExtractor) Name() string {
	return "plaintext"
}
