package format

import (
	"context"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

// File is a filesystem entry paired with its lazily-resolved Format. The
// format is computed at most once per handle: concurrent callers of Format
// join the same in-flight sniff instead of duplicating it, and the outcome
// (including a nil format) sticks for the handle's lifetime. The cache is
// keyed by the handle, not process-wide.
type File struct {
	fs        afero.Fs
	path      string
	mediaType string
	sniffer   *Sniffer

	group  singleflight.Group
	mu     sync.Mutex
	done   bool
	format *Format
	err    error
}

// NewFile creates a handle over path. The declared media type, when known,
// becomes a sniffing hint; an empty string means no hint. A nil sniffer
// falls back to the default pipeline.
func NewFile(fs afero.Fs, path string, mediaType string, sniffer *Sniffer) *File {
	if sniffer == nil {
		sniffer = defaultSniffer
	}
	return &File{fs: fs, path: path, mediaType: mediaType, sniffer: sniffer}
}

// Path returns the filesystem path of the entry
func (f *File) Path() string {
	return f.path
}

// Format resolves the entry's format, once. A nil Format with nil error
// means the entry was not recognized; that outcome is cached like any other.
func (f *File) Format(ctx context.Context) (*Format, error) {
	f.mu.Lock()
	if f.done {
		defer f.mu.Unlock()
		return f.format, f.err
	}
	f.mu.Unlock()

	result, err, _ := f.group.Do("format", func() (interface{}, error) {
		// A caller that lost the race with a settled flight lands here on a
		// fresh one; serve the cached outcome instead of sniffing again.
		f.mu.Lock()
		if f.done {
			defer f.mu.Unlock()
			return f.format, f.err
		}
		f.mu.Unlock()

		var mediaTypes []string
		if f.mediaType != "" {
			mediaTypes = append(mediaTypes, f.mediaType)
		}
		resolved, err := f.sniffer.ResolveFile(ctx, f.fs, f.path, mediaTypes...)

		f.mu.Lock()
		defer f.mu.Unlock()
		// A cancelled sniff must stay retryable; only settled outcomes stick.
		if err == nil || ctx.Err() == nil {
			f.done = true
			f.format = resolved
			f.err = err
		}
		return resolved, err
	})
	if result == nil {
		return nil, err
	}
	return result.(*Format), err
}
