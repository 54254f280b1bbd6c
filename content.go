package format

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"
)

// SnifferContent is lazy, read-once-cached access to the bytes of a
// candidate asset. Each decoded view (string, XML root, JSON object,
// archive listing) is attempted at most once per instance — the string view
// at most once per charset; a failed decode caches the failure and is not
// retried, and a failure in one view never poisons the others. Instances
// live for a single sniff and must be closed once the pipeline returns.
type SnifferContent interface {
	// Length returns the total byte length of the asset.
	Length(ctx context.Context) (int64, error)

	// Read returns the bytes in the half-open range [start, end). A negative
	// end reads through the end of the asset. Bounded prefix reads never
	// force the whole asset into memory.
	Read(ctx context.Context, start, end int64) ([]byte, error)

	// AsString decodes the whole asset with the given charset; an empty
	// charset means utf-8. The decode runs at most once per charset and its
	// outcome is cached, so repeated calls are free.
	AsString(ctx context.Context, charset string) (string, error)

	// AsXML parses the asset far enough to expose its root element.
	AsXML(ctx context.Context) (*XMLRoot, error)

	// AsJSON parses the asset as a single JSON object.
	AsJSON(ctx context.Context) (map[string]interface{}, error)

	// AsArchive opens the asset as a ZIP container.
	AsArchive(ctx context.Context) (*Archive, error)

	// Close releases any underlying handle. Idempotent.
	Close() error
}

// XMLRoot is the first start element of an XML document, which is all the
// classifiers need to recognize a format.
type XMLRoot struct {
	Name  xml.Name
	Attrs []xml.Attr
}

// ArchiveEntry describes one entry of a ZIP container
type ArchiveEntry struct {
	Path             string
	Length           uint64
	CompressedLength uint64
}

// Archive is the decoded container view of a SnifferContent
type Archive struct {
	entries []ArchiveEntry
	reader  *zip.Reader
}

// Entries lists the container entries in archive order
func (a *Archive) Entries() []ArchiveEntry {
	return a.entries
}

// Entry returns the entry at the exact path, if present
func (a *Archive) Entry(path string) (ArchiveEntry, bool) {
	for _, entry := range a.entries {
		if entry.Path == path {
			return entry, true
		}
	}
	return ArchiveEntry{}, false
}

// ReadEntry reads the full content of the entry at the exact path
func (a *Archive) ReadEntry(path string) ([]byte, error) {
	for _, file := range a.reader.File {
		if file.Name == path {
			rc, err := file.Open()
			if err != nil {
				return nil, contentUnavailableError(path, err, xerrors.Caller(xErrorsFrameCaller))
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				return nil, contentUnavailableError(path, err, xerrors.Caller(xErrorsFrameCaller))
			}
			return data, nil
		}
	}
	return nil, contentUnavailableError(path, ErrNotFound, xerrors.Caller(xErrorsFrameCaller))
}

func contentUnavailableError(context string, cause error, frame xerrors.Frame) *Error {
	return &Error{
		Context: context,
		Code:    ContentNotReadable,
		Message: "content not readable",
		Cause:   cause,
		Frame:   frame,
	}
}

func malformedEncodingError(context string, cause error, frame xerrors.Frame) *Error {
	return &Error{
		Context: context,
		Code:    MalformedEncoding,
		Message: "malformed encoding",
		Cause:   cause,
		Frame:   frame,
	}
}

// contentSource is the closed set of byte backends a SnifferContent can
// wrap: a filesystem entry, an in-memory buffer behind a lazy producer, or a
// remote URL. New backends are new variants of this interface, not new
// SnifferContent implementations, so the view caching stays in one place.
type contentSource interface {
	length(ctx context.Context) (int64, error)
	readRange(ctx context.Context, start, end int64) ([]byte, error)
	readerAt(ctx context.Context) (io.ReaderAt, int64, error)
	close() error
}

// view is a compute-once cell: the load function runs on first use and both
// its value and its error stick for the lifetime of the cell.
type view[T any] struct {
	once  sync.Once
	value T
	err   error
}

func (v *view[T]) resolve(load func() (T, error)) (T, error) {
	v.once.Do(func() {
		v.value, v.err = load()
	})
	return v.value, v.err
}

// stringOutcome is one settled AsString decode, success or failure
type stringOutcome struct {
	text string
	err  error
}

type snifferContent struct {
	source contentSource

	strMu        sync.Mutex
	strByCharset map[string]stringOutcome

	xmlRoot view[*XMLRoot]
	jsonObj view[map[string]interface{}]
	archive view[*Archive]
}

// NewFileContent wraps a filesystem entry. The file is opened lazily, on the
// first access that needs it.
func NewFileContent(fs afero.Fs, path string) SnifferContent {
	return &snifferContent{source: &fileSource{fs: fs, path: path}}
}

// NewBytesContent wraps an in-memory buffer produced by a zero-argument
// closure, which allows deferred acquisition; the closure is invoked at most
// once.
func NewBytesContent(load func() ([]byte, error)) SnifferContent {
	return &snifferContent{source: &bytesSource{load: load}}
}

// NewRemoteContent wraps a remote URL. Prefix reads are translated into
// ranged requests when the transport honors them and otherwise fall back to
// reading and discarding. A file:// URL is served from the local filesystem.
func NewRemoteContent(u *url.URL, client *http.Client) SnifferContent {
	if u.Scheme == "file" {
		return NewFileContent(afero.NewOsFs(), u.Path)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &snifferContent{source: &remoteSource{url: u, client: client}}
}

func (c *snifferContent) Length(ctx context.Context) (int64, error) {
	return c.source.length(ctx)
}

func (c *snifferContent) Read(ctx context.Context, start, end int64) ([]byte, error) {
	if start < 0 || (end >= 0 && end < start) {
		return nil, contentUnavailableError(fmt.Sprintf("range %d-%d", start, end), nil, xerrors.Caller(xErrorsFrameCaller))
	}
	return c.source.readRange(ctx, start, end)
}

func (c *snifferContent) AsString(ctx context.Context, charset string) (string, error) {
	if charset == "" {
		charset = "utf-8"
	}
	c.strMu.Lock()
	defer c.strMu.Unlock()
	if out, ok := c.strByCharset[charset]; ok {
		return out.text, out.err
	}

	var out stringOutcome
	raw, err := c.source.readRange(ctx, 0, -1)
	if err != nil {
		out.err = err
	} else {
		out.text, out.err = decodeString(raw, charset)
	}
	if c.strByCharset == nil {
		c.strByCharset = make(map[string]stringOutcome)
	}
	c.strByCharset[charset] = out
	return out.text, out.err
}

func (c *snifferContent) AsXML(ctx context.Context) (*XMLRoot, error) {
	return c.xmlRoot.resolve(func() (*XMLRoot, error) {
		raw, err := c.source.readRange(ctx, 0, -1)
		if err != nil {
			return nil, err
		}
		return decodeXMLRoot(raw)
	})
}

func (c *snifferContent) AsJSON(ctx context.Context) (map[string]interface{}, error) {
	return c.jsonObj.resolve(func() (map[string]interface{}, error) {
		raw, err := c.source.readRange(ctx, 0, -1)
		if err != nil {
			return nil, err
		}
		var obj map[string]interface{}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, malformedEncodingError("json", err, xerrors.Caller(xErrorsFrameCaller))
		}
		return obj, nil
	})
}

func (c *snifferContent) AsArchive(ctx context.Context) (*Archive, error) {
	return c.archive.resolve(func() (*Archive, error) {
		ra, size, err := c.source.readerAt(ctx)
		if err != nil {
			return nil, err
		}
		reader, err := zip.NewReader(ra, size)
		if err != nil {
			return nil, malformedEncodingError("zip", err, xerrors.Caller(xErrorsFrameCaller))
		}
		entries := make([]ArchiveEntry, 0, len(reader.File))
		for _, file := range reader.File {
			entries = append(entries, ArchiveEntry{
				Path:             file.Name,
				Length:           file.UncompressedSize64,
				CompressedLength: file.CompressedSize64,
			})
		}
		return &Archive{entries: entries, reader: reader}, nil
	})
}

func (c *snifferContent) Close() error {
	return c.source.close()
}

func decodeString(raw []byte, charset string) (string, error) {
	if charset == "" {
		charset = "utf-8"
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", malformedEncodingError(charset, err, xerrors.Caller(xErrorsFrameCaller))
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return "", malformedEncodingError(charset, err, xerrors.Caller(xErrorsFrameCaller))
	}
	return string(decoded), nil
}

func decodeXMLRoot(raw []byte) (*XMLRoot, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, malformedEncodingError("xml", err, xerrors.Caller(xErrorsFrameCaller))
		}
		if start, ok := token.(xml.StartElement); ok {
			attrs := make([]xml.Attr, len(start.Attr))
			copy(attrs, start.Attr)
			return &XMLRoot{Name: start.Name, Attrs: attrs}, nil
		}
	}
}

// fileSource backs content with a filesystem entry. The handle opens once,
// lazily, and sticks until close.
type fileSource struct {
	fs   afero.Fs
	path string

	mu     sync.Mutex
	file   afero.File
	closed bool
}

func (s *fileSource) open() (afero.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, contentUnavailableError(s.path, ErrClosed, xerrors.Caller(xErrorsFrameCaller))
	}
	if s.file != nil {
		return s.file, nil
	}
	file, err := s.fs.Open(s.path)
	if err != nil {
		return nil, contentUnavailableError(s.path, err, xerrors.Caller(xErrorsFrameCaller))
	}
	s.file = file
	return file, nil
}

func (s *fileSource) length(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	file, err := s.open()
	if err != nil {
		return 0, err
	}
	info, err := file.Stat()
	if err != nil {
		return 0, contentUnavailableError(s.path, err, xerrors.Caller(xErrorsFrameCaller))
	}
	return info.Size(), nil
}

func (s *fileSource) readRange(ctx context.Context, start, end int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := s.open()
	if err != nil {
		return nil, err
	}
	if end < 0 {
		size, err := s.length(ctx)
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
		return nil, contentUnavailableError(s.path, err, xerrors.Caller(xErrorsFrameCaller))
	}
	return buf[:n], nil
}

func (s *fileSource) readerAt(ctx context.Context) (io.ReaderAt, int64, error) {
	size, err := s.length(ctx)
	if err != nil {
		return nil, 0, err
	}
	file, err := s.open()
	if err != nil {
		return nil, 0, err
	}
	return file, size, nil
}

func (s *fileSource) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file != nil {
		file := s.file
		s.file = nil
		return file.Close()
	}
	return nil
}

// bytesSource backs content with a lazily-produced in-memory buffer
type bytesSource struct {
	load func() ([]byte, error)
	data view[[]byte]
}

func (s *bytesSource) bytes() ([]byte, error) {
	return s.data.resolve(func() ([]byte, error) {
		raw, err := s.load()
		if err != nil {
			return nil, contentUnavailableError("bytes", err, xerrors.Caller(xErrorsFrameCaller))
		}
		return raw, nil
	})
}

func (s *bytesSource) length(ctx context.Context) (int64, error) {
	raw, err := s.bytes()
	if err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}

func (s *bytesSource) readRange(ctx context.Context, start, end int64) ([]byte, error) {
	raw, err := s.bytes()
	if err != nil {
		return nil, err
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

func (s *bytesSource) readerAt(ctx context.Context) (io.ReaderAt, int64, error) {
	raw, err := s.bytes()
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(raw), int64(len(raw)), nil
}

func (s *bytesSource) close() error {
	return nil
}

// remoteSource backs content with an HTTP(S) URL
type remoteSource struct {
	url    *url.URL
	client *http.Client
	full   view[[]byte]
}

func (s *remoteSource) length(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.url.String(), nil)
	if err != nil {
		return 0, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}

	// HEAD was refused or carried no length; pay for the whole body once
	raw, err := s.readAll(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(raw)), nil
}

func (s *remoteSource) readRange(ctx context.Context, start, end int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
	if err != nil {
		return nil, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
	}
	if end < 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(start, 10)+"-")
	} else {
		if end <= start {
			return []byte{}, nil
		}
		req.Header.Set("Range", "bytes="+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end-1, 10))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
		}
		return raw, nil
	case http.StatusOK:
		// The server ignored the Range header; discard the prefix instead
		if start > 0 {
			if _, err := io.CopyN(io.Discard, resp.Body, start); err != nil {
				if err == io.EOF {
					return []byte{}, nil
				}
				return nil, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
			}
		}
		var reader io.Reader = resp.Body
		if end >= 0 {
			reader = io.LimitReader(resp.Body, end-start)
		}
		raw, err := io.ReadAll(reader)
		if err != nil {
			return nil, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
		}
		return raw, nil
	default:
		cause := fmt.Errorf("unexpected HTTP response status code %d", resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			cause = ErrNotFound
		} else if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			cause = ErrForbidden
		}
		return nil, contentUnavailableError(s.url.String(), cause, xerrors.Caller(xErrorsFrameCaller))
	}
}

func (s *remoteSource) readAll(ctx context.Context) ([]byte, error) {
	return s.full.resolve(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url.String(), nil)
		if err != nil {
			return nil, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, contentUnavailableError(s.url.String(), fmt.Errorf("unexpected HTTP response status code %d", resp.StatusCode), xerrors.Caller(xErrorsFrameCaller))
		}
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, contentUnavailableError(s.url.String(), err, xerrors.Caller(xErrorsFrameCaller))
		}
		return raw, nil
	})
}

func (s *remoteSource) readerAt(ctx context.Context) (io.ReaderAt, int64, error) {
	// archive/zip needs random access; a remote asset is paged in whole, once
	raw, err := s.readAll(ctx)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(raw), int64(len(raw)), nil
}

func (s *remoteSource) close() error {
	return nil
}
