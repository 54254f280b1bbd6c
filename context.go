package format

import (
	"context"
	"strings"
)

// SnifferContext bundles everything a classifier may look at: declared or
// guessed media types, file extensions, and optionally the asset content.
// Hint order encodes precedence, most-specific first. The context is
// immutable once built and is handed to every classifier of a pipeline run.
type SnifferContext struct {
	mediaTypes     []MediaType
	fileExtensions []string
	content        SnifferContent
}

// NewSnifferContext builds a context from pre-parsed hints. The sniffer
// entry points normally do this; it is exported for tests and for callers
// invoking a single classifier directly.
func NewSnifferContext(content SnifferContent, mediaTypes []MediaType, fileExtensions []string) SnifferContext {
	exts := make([]string, 0, len(fileExtensions))
	for _, ext := range fileExtensions {
		exts = append(exts, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	return SnifferContext{
		mediaTypes:     mediaTypes,
		fileExtensions: exts,
		content:        content,
	}
}

// MediaTypes returns the media type hints, most trustworthy first
func (sc SnifferContext) MediaTypes() []MediaType {
	return sc.mediaTypes
}

// FileExtensions returns the lowercased extension hints, most trustworthy first
func (sc SnifferContext) FileExtensions() []string {
	return sc.fileExtensions
}

// Content returns the asset content, or nil during the light round
func (sc SnifferContext) Content() SnifferContent {
	return sc.content
}

// HasContent reports whether byte-level inspection is possible in this round
func (sc SnifferContext) HasContent() bool {
	return sc.content != nil
}

// HasMediaType reports whether any hint matches any of the raw candidates
func (sc SnifferContext) HasMediaType(raws ...string) bool {
	for _, hint := range sc.mediaTypes {
		if hint.MatchesRaw(raws...) {
			return true
		}
	}
	return false
}

// HasFileExtension reports whether any hint equals any of the candidates
// (leading dots and casing are ignored).
func (sc SnifferContext) HasFileExtension(exts ...string) bool {
	for _, hint := range sc.fileExtensions {
		for _, ext := range exts {
			if hint == strings.ToLower(strings.TrimPrefix(ext, ".")) {
				return true
			}
		}
	}
	return false
}

// Charset returns the charset carried by the first hint that has one
func (sc SnifferContext) Charset() string {
	for _, hint := range sc.mediaTypes {
		if charset := hint.Charset(); charset != "" {
			return charset
		}
	}
	return ""
}

// The helpers below proxy the content views so classifiers never reach
// around the context for I/O. Without content they fail with
// ErrContentUnavailable, which classifiers treat as "found nothing".

// ReadRange reads the half-open byte range [start, end) of the content
func (sc SnifferContext) ReadRange(ctx context.Context, start, end int64) ([]byte, error) {
	if sc.content == nil {
		return nil, ErrContentUnavailable
	}
	return sc.content.Read(ctx, start, end)
}

// ContentAsString decodes the content with the hinted charset
func (sc SnifferContext) ContentAsString(ctx context.Context) (string, error) {
	if sc.content == nil {
		return "", ErrContentUnavailable
	}
	return sc.content.AsString(ctx, sc.Charset())
}

// ContentAsXML exposes the root element of the content
func (sc SnifferContext) ContentAsXML(ctx context.Context) (*XMLRoot, error) {
	if sc.content == nil {
		return nil, ErrContentUnavailable
	}
	return sc.content.AsXML(ctx)
}

// ContentAsJSON parses the content as a JSON object
func (sc SnifferContext) ContentAsJSON(ctx context.Context) (map[string]interface{}, error) {
	if sc.content == nil {
		return nil, ErrContentUnavailable
	}
	return sc.content.AsJSON(ctx)
}

// ContentAsArchive opens the content as a ZIP container
func (sc SnifferContext) ContentAsArchive(ctx context.Context) (*Archive, error) {
	if sc.content == nil {
		return nil, ErrContentUnavailable
	}
	return sc.content.AsArchive(ctx)
}
