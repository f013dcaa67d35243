// Package extract turns raw PDF and DOCX bytes into ordered text sections.
// Extractors never perform I/O beyond reading the supplied buffer.
package extract

import (
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
)

// Supported mime types.
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Section is a run of text with its position in the source document. PDF
// sections carry a 1-based Page, DOCX sections the Heading that opened them.
type Section struct {
	Content string
	Page    int
	Heading string
}

// Extractor converts one document format into sections.
type Extractor interface {
	Extract(data []byte) ([]Section, error)
}

// Registry dispatches on mime type.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the PDF and DOCX extractors installed.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register(MimePDF, PDF{})
	r.Register(MimeDOCX, DOCX{})
	return r
}

// Register installs e for mimeType, replacing any previous extractor.
func (r *Registry) Register(mimeType string, e Extractor) {
	r.extractors[strings.ToLower(mimeType)] = e
}

// Supports reports whether an extractor is registered for mimeType.
func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.extractors[normalizeMime(mimeType)]
	return ok
}

// Extract runs the extractor registered for mimeType. Unknown types fail
// with ErrUnsupportedFormat.
func (r *Registry) Extract(data []byte, mimeType string) ([]Section, error) {
	e, ok := r.extractors[normalizeMime(mimeType)]
	if !ok {
		return nil, apperrors.Unsupported(mimeType)
	}
	return e.Extract(data)
}

// Flatten joins section contents into the single text that gets embedded.
func Flatten(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if c := strings.TrimSpace(s.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}

// normalizeMime drops parameters such as "; charset=binary".
func normalizeMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
