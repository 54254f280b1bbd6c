package format

import (
	"archive/zip"
	"context"
	"mime"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// Link names one resource reachable through a Fetcher: an href, an optional
// declared media type hint, and whether the href carries URI template
// parameters. Hrefs are percent-decoded by the caller before they get here.
type Link struct {
	Href      string
	MediaType string
	Templated bool
}

// Fetcher maps link identifiers to Resources. The link list follows the
// medium's inherent order when there is one (an archive's entry order),
// otherwise lexicographic by href, and it is not necessarily exhaustive:
// Get may reach resources that were never listed. A Fetcher owns every
// handle it opened; closing it invalidates the Resources it produced.
type Fetcher interface {
	// Links enumerates the known resources.
	Links(ctx context.Context) ([]Link, error)

	// Get returns a handle for the link, always synchronously: a medium that
	// cannot cheaply prove existence defers the failure to the Resource's own
	// accessors. Parameters fill the href template when the link is
	// templated; they are already percent-decoded.
	Get(link Link, parameters map[string]string) Resource

	// Close releases the container. Idempotent.
	Close() error
}

var templateQueryRegex = regexp.MustCompile(`\{\?[^}]+\}`)
var templateVarRegex = regexp.MustCompile(`\{([^}?][^}]*)\}`)

// expandHref performs the minimal URI template expansion the publication
// models rely on: simple {var} substitution and {?a,b} query expansion.
func expandHref(link Link, parameters map[string]string) string {
	href := link.Href
	if !link.Templated || !strings.Contains(href, "{") {
		return href
	}

	href = templateQueryRegex.ReplaceAllStringFunc(href, func(expr string) string {
		names := strings.Split(expr[2:len(expr)-1], ",")
		var pairs []string
		for _, name := range names {
			if value, ok := parameters[name]; ok {
				pairs = append(pairs, name+"="+value)
			}
		}
		if len(pairs) == 0 {
			return ""
		}
		return "?" + strings.Join(pairs, "&")
	})
	href = templateVarRegex.ReplaceAllStringFunc(href, func(expr string) string {
		if value, ok := parameters[expr[1:len(expr)-1]]; ok {
			return value
		}
		return ""
	})
	return href
}

// FileFetcher serves the files under a directory root. Hrefs are
// slash-separated paths relative to the root, with a leading slash.
type FileFetcher struct {
	fs   afero.Fs
	root string

	mu     sync.Mutex
	opened []Resource
	closed bool
}

// NewFileFetcher creates a Fetcher over the directory root of fs
func NewFileFetcher(fs afero.Fs, root string) *FileFetcher {
	return &FileFetcher{fs: fs, root: root}
}

// Links walks the directory tree; hrefs come back in lexicographic order
// with a media type hint guessed from each file's extension.
func (f *FileFetcher) Links(ctx context.Context) ([]Link, error) {
	var links []Link
	err := afero.Walk(f.fs, f.root, func(walkPath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if info.IsDir() {
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(walkPath, f.root), "/")
		links = append(links, Link{
			Href:      "/" + path.Clean(strings.ReplaceAll(rel, string(os.PathSeparator), "/")),
			MediaType: mime.TypeByExtension(path.Ext(walkPath)),
		})
		return nil
	})
	if err != nil {
		return nil, contentUnavailableError(f.root, err, xerrors.Caller(xErrorsFrameCaller))
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Href < links[j].Href })
	return links, nil
}

// Get returns a lazily-opened Resource for the link. An href escaping the
// root yields a Forbidden resource; closing the fetcher beforehand yields a
// failed resource as well, never a panic.
func (f *FileFetcher) Get(link Link, parameters map[string]string) Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return NewFailureResource(link, otherError(link.Href, ErrClosed, xerrors.Caller(xErrorsFrameCaller)))
	}

	// Clean the relative form: rooted cleaning would swallow a leading ".."
	// instead of exposing it.
	href := expandHref(link, parameters)
	cleaned := path.Clean(strings.TrimPrefix(href, "/"))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return NewFailureResource(link, forbiddenError(link.Href, xerrors.Caller(xErrorsFrameCaller)))
	}

	resource := NewFileResource(link, f.fs, path.Join(f.root, cleaned))
	f.opened = append(f.opened, resource)
	return resource
}

// Close closes every Resource this fetcher produced. Idempotent.
func (f *FileFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	var firstErr error
	for _, resource := range f.opened {
		if err := resource.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.opened = nil
	return firstErr
}

// ArchiveFetcher serves the entries of a ZIP container
type ArchiveFetcher struct {
	file    afero.File
	entries map[string]*zip.File
	links   []Link

	mu     sync.Mutex
	closed bool
}

// NewArchiveFetcher opens the ZIP container at archivePath. Unlike Get,
// construction does fail eagerly: a fetcher over an unreadable archive
// would have nothing to serve.
func NewArchiveFetcher(fs afero.Fs, archivePath string) (*ArchiveFetcher, error) {
	file, err := fs.Open(archivePath)
	if err != nil {
		return nil, mapFSError(archivePath, err, xerrors.Caller(xErrorsFrameCaller))
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ioError(archivePath, err, xerrors.Caller(xErrorsFrameCaller))
	}
	reader, err := zip.NewReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, ioError(archivePath, err, xerrors.Caller(xErrorsFrameCaller))
	}

	result := &ArchiveFetcher{
		file:    file,
		entries: make(map[string]*zip.File, len(reader.File)),
	}
	for _, entry := range reader.File {
		if strings.HasSuffix(entry.Name, "/") {
			continue
		}
		result.entries[entry.Name] = entry
		// Archive order is the medium's inherent order; keep it.
		result.links = append(result.links, Link{
			Href:      "/" + entry.Name,
			MediaType: mime.TypeByExtension(path.Ext(entry.Name)),
		})
	}
	return result, nil
}

// Links lists the entries in archive order
func (f *ArchiveFetcher) Links(ctx context.Context) ([]Link, error) {
	result := make([]Link, len(f.links))
	copy(result, f.links)
	return result, nil
}

// Get returns a Resource over the named entry; a missing entry yields a
// NotFound resource rather than an error.
func (f *ArchiveFetcher) Get(link Link, parameters map[string]string) Resource {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return NewFailureResource(link, otherError(link.Href, ErrClosed, xerrors.Caller(xErrorsFrameCaller)))
	}
	href := strings.TrimPrefix(expandHref(link, parameters), "/")
	entry, ok := f.entries[href]
	if !ok {
		return NewFailureResource(link, notFoundError(link.Href, xerrors.Caller(xErrorsFrameCaller)))
	}
	return &archiveResource{link: link, entry: entry}
}

// Close releases the archive handle. Idempotent.
func (f *ArchiveFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}

// EmptyFetcher is the canonical null object: no links, and every Get yields
// a Resource that fails with NotFound.
type EmptyFetcher struct{}

// Links returns no links
func (EmptyFetcher) Links(ctx context.Context) ([]Link, error) {
	return nil, nil
}

// Get returns a Resource whose every access fails with ErrNotFound
func (EmptyFetcher) Get(link Link, parameters map[string]string) Resource {
	return NewFailureResource(link, notFoundError(link.Href, xerrors.Caller(xErrorsFrameCaller)))
}

// Close is a no-op
func (EmptyFetcher) Close() error {
	return nil
}
