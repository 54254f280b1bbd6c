package format

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// Resource is a handle to a single named byte-stream within a container.
// Constructing one never proves the target exists: the unopened → available
// or unopened → errored transition happens on the first access attempt, and
// once errored every further operation returns that same cached error.
// Close is valid from any state and idempotent. A Resource is not safe for a
// concurrent close+read on the same handle.
type Resource interface {
	// Link identifies the resource within its container.
	Link() Link

	// Length returns the byte length of the stream.
	Length(ctx context.Context) (int64, error)

	// Read returns the bytes in the half-open range [start, end); a negative
	// end reads through the end of the stream.
	Read(ctx context.Context, start, end int64) ([]byte, error)

	// Close releases the underlying handle, if one was opened.
	Close() error
}

// mapFSError converts a filesystem failure into the Resource error taxonomy
func mapFSError(href string, err error, frame xerrors.Frame) *ResourceError {
	switch {
	case os.IsNotExist(err):
		return notFoundError(href, frame)
	case os.IsPermission(err):
		return forbiddenError(href, frame)
	default:
		return ioError(href, err, frame)
	}
}

// fileResource serves a filesystem entry. No I/O happens before the first
// Length or Read call.
type fileResource struct {
	link Link
	fs   afero.Fs
	path string

	mu     sync.Mutex
	file   afero.File
	fail   *ResourceError
	closed bool
}

// NewFileResource creates a Resource over a filesystem entry, which may or
// may not exist; a missing file surfaces as ErrNotFound on first access.
func NewFileResource(link Link, fs afero.Fs, path string) Resource {
	return &fileResource{link: link, fs: fs, path: path}
}

func (r *fileResource) Link() Link {
	return r.link
}

func (r *fileResource) open() (afero.File, *ResourceError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return nil, r.fail
	}
	if r.closed {
		return nil, otherError(r.link.Href, ErrClosed, xerrors.Caller(xErrorsFrameCaller))
	}
	if r.file != nil {
		return r.file, nil
	}
	file, err := r.fs.Open(r.path)
	if err != nil {
		r.fail = mapFSError(r.link.Href, err, xerrors.Caller(xErrorsFrameCaller))
		return nil, r.fail
	}
	r.file = file
	return file, nil
}

func (r *fileResource) Length(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	file, fail := r.open()
	if fail != nil {
		return 0, fail
	}
	info, err := file.Stat()
	if err != nil {
		return 0, r.cache(ioError(r.link.Href, err, xerrors.Caller(xErrorsFrameCaller)))
	}
	return info.Size(), nil
}

func (r *fileResource) Read(ctx context.Context, start, end int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, fail := r.open()
	if fail != nil {
		return nil, fail
	}
	if end < 0 {
		size, err := r.Length(ctx)
		if err != nil {
			return nil, err
		}
		end = size
	}
	if end <= start {
		return []byte{}, nil
	}
	buf := make([]byte, end-start)
	n, err := file.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, r.cache(ioError(r.link.Href, err, xerrors.Caller(xErrorsFrameCaller)))
	}
	return buf[:n], nil
}

func (r *fileResource) cache(fail *ResourceError) *ResourceError {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail == nil {
		r.fail = fail
	}
	return r.fail
}

func (r *fileResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.file != nil {
		file := r.file
		r.file = nil
		return file.Close()
	}
	return nil
}

// bytesResource serves an in-memory buffer behind a lazy producer
type bytesResource struct {
	link Link
	load func() ([]byte, error)
	data view[[]byte]
}

// NewBytesResource creates a Resource over a lazily-produced buffer; the
// producer runs at most once, on first access.
func NewBytesResource(link Link, load func() ([]byte, error)) Resource {
	return &bytesResource{link: link, load: load}
}

func (r *bytesResource) Link() Link {
	return r.link
}

func (r *bytesResource) bytes() ([]byte, *ResourceError) {
	data, err := r.data.resolve(func() ([]byte, error) {
		raw, err := r.load()
		if err != nil {
			return nil, ioError(r.link.Href, err, xerrors.Caller(xErrorsFrameCaller))
		}
		return raw, nil
	})
	if err != nil {
		return nil, err.(*ResourceError)
	}
	return data, nil
}

func (r *bytesResource) Length(ctx context.Context) (int64, error) {
	raw, fail := r.bytes()
	if fail != nil {
		return 0, fail
	}
	return int64(len(raw)), nil
}

func (r *bytesResource) Read(ctx context.Context, start, end int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, fail := r.bytes()
	if fail != nil {
		return nil, fail
	}
	if start > int64(len(raw)) {
		start = int64(len(raw))
	}
	if end < 0 || end > int64(len(raw)) {
		end = int64(len(raw))
	}
	if end <= start {
		return []byte{}, nil
	}
	return raw[start:end], nil
}

func (r *bytesResource) Close() error {
	return nil
}

// failureResource always fails with the same error; it is the null object
// handed out when a container cannot even name the target.
type failureResource struct {
	link Link
	fail *ResourceError
}

// NewFailureResource creates a Resource whose every access fails with err
func NewFailureResource(link Link, err *ResourceError) Resource {
	return &failureResource{link: link, fail: err}
}

func (r *failureResource) Link() Link {
	return r.link
}

func (r *failureResource) Length(ctx context.Context) (int64, error) {
	return 0, r.fail
}

func (r *failureResource) Read(ctx context.Context, start, end int64) ([]byte, error) {
	return nil, r.fail
}

func (r *failureResource) Close() error {
	return nil
}

// archiveResource serves one entry of an open ZIP container. It stays valid
// only while its owning ArchiveFetcher is open.
type archiveResource struct {
	link  Link
	entry *zip.File
}

func (r *archiveResource) Link() Link {
	return r.link
}

func (r *archiveResource) Length(ctx context.Context) (int64, error) {
	return int64(r.entry.UncompressedSize64), nil
}

func (r *archiveResource) Read(ctx context.Context, start, end int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := r.entry.Open()
	if err != nil {
		return nil, ioError(r.link.Href, err, xerrors.Caller(xErrorsFrameCaller))
	}
	defer rc.Close()

	// The entry stream is sequential; skip to the range start
	if start > 0 {
		if _, err := io.CopyN(io.Discard, rc, start); err != nil {
			if err == io.EOF {
				return []byte{}, nil
			}
			return nil, ioError(r.link.Href, err, xerrors.Caller(xErrorsFrameCaller))
		}
	}
	var reader io.Reader = rc
	if end >= 0 {
		if end <= start {
			return []byte{}, nil
		}
		reader = io.LimitReader(rc, end-start)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, ioError(r.link.Href, err, xerrors.Caller(xErrorsFrameCaller))
	}
	return raw, nil
}

func (r *archiveResource) Close() error {
	return nil
}
