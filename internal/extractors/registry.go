package extractors

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/docvault-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry implements ExtractorRegistry keyed by filename extension.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]driven.TextExtractor
}

// NewRegistry creates an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[string]driven.TextExtractor),
	}
}

// Register binds an extractor to one or more extensions (without dot).
func (r *Registry) Register(extractor driven.TextExtractor, extensions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ext := range extensions {
		r.extractors[strings.ToLower(ext)] = extractor
	}
}

// Get retrieves the extractor for an extension, or nil if unsupported.
func (r *Registry) Get(extension string) driven.TextExtractor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.extractors[strings.ToLower(strings.TrimPrefix(extension, "."))]
}

// Supported lists registered extensions, sorted.
func (r *Registry) Supported() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// DefaultRegistry creates a registry with the standard extractors:
// PDF, DOCX, and plain text for markdown/code/source extensions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewPDFExtractor(), "pdf")
	r.Register(NewDOCXExtractor(), "docx")
	r.Register(NewPlainTextExtractor(),
		"txt", "md", "go", "py", "js", "ts", "java", "c", "cpp", "h", "rs", "json", "yaml", "yml")
	return r
}
