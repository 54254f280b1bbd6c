package format

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/xerrors"
)

// Sniffer resolves the Format of an asset by running an ordered classifier
// list over hints first (light round), then over the actual content (heavy
// round), and finally consulting the system registry. A Sniffer is immutable
// after construction and safe for concurrent use; each Resolve call holds no
// shared mutable state beyond the classifier list.
type Sniffer struct {
	classifiers       []Classifier
	clientProvider    httpClientProvider
	provideClientFunc func(ctx context.Context) *http.Client
	warningTracker    warningTracker
}

type httpClientProvider interface {
	HTTPClient(context.Context) *http.Client
}

type warningTracker interface {
	OnWarning(ctx context.Context, code, message string)
}

// NewSniffer creates a sniffer over DefaultClassifiers. Options are scanned
// by type: a Classifier or []Classifier is prepended to the default list
// (custom rules must win over the generic ones, so they run first), an
// httpClientProvider or a func(ctx) *http.Client supplies the client used
// for remote content, and a warningTracker receives non-fatal diagnostics.
func NewSniffer(options ...interface{}) *Sniffer {
	result := &Sniffer{}
	result.warningTracker = result // we implemented a default version
	var prepend []Classifier

	for _, option := range options {
		if wt, ok := option.(warningTracker); ok {
			result.warningTracker = wt
		}
		if instance, ok := option.(httpClientProvider); ok {
			result.clientProvider = instance
		}
		if fn, ok := option.(func(ctx context.Context) *http.Client); ok {
			result.provideClientFunc = fn
		}
		if c, ok := option.(Classifier); ok {
			prepend = append(prepend, c)
		}
		if fn, ok := option.(func(context.Context, SnifferContext) *Format); ok {
			prepend = append(prepend, fn)
		}
		if cs, ok := option.([]Classifier); ok {
			prepend = append(prepend, cs...)
		}
	}

	result.classifiers = make([]Classifier, 0, len(prepend)+len(DefaultClassifiers))
	result.classifiers = append(result.classifiers, prepend...)
	result.classifiers = append(result.classifiers, DefaultClassifiers...)
	return result
}

func (s *Sniffer) httpClient(ctx context.Context) *http.Client {
	if s.clientProvider != nil {
		return s.clientProvider.HTTPClient(ctx)
	}
	if s.provideClientFunc != nil {
		return s.provideClientFunc(ctx)
	}
	return &http.Client{
		Timeout: time.Second * 90,
	}
}

func (s *Sniffer) OnWarning(ctx context.Context, code string, message string) {
	// this is the default tracker if nothing else is provided in NewSniffer()
}

// Resolve runs the two-round pipeline. A nil Format with a nil error means
// no classifier nor the system registry recognized the asset; that is an
// expected outcome, not a failure. The only error surfaced here is a
// malformed media type hint, which is a caller bug. Content, when given,
// stays open; closing it remains the caller's job.
func (s *Sniffer) Resolve(ctx context.Context, mediaTypes []string, fileExtensions []string, content SnifferContent) (*Format, error) {
	hints := make([]MediaType, 0, len(mediaTypes))
	for _, raw := range mediaTypes {
		hint, err := NewMediaType(raw)
		if err != nil {
			return nil, err
		}
		if charset := hint.Charset(); charset != "" {
			if _, err := htmlindex.Get(charset); err != nil {
				s.warningTracker.OnWarning(ctx, UnableToGuessCharset, "declared charset "+charset+" is not a recognized encoding")
			}
		}
		hints = append(hints, hint)
	}

	// Light round: hints only. Classifiers willing to branch on content see
	// none and fall through, so this never costs I/O.
	light := NewSnifferContext(nil, hints, fileExtensions)
	for _, classify := range s.classifiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f := classify(ctx, light); f != nil {
			return f, nil
		}
	}

	// Heavy round: the same rules again, now content-backed, from the start.
	heavy := light
	if content != nil {
		heavy = NewSnifferContext(content, hints, fileExtensions)
		for _, classify := range s.classifiers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if f := classify(ctx, heavy); f != nil {
				return f, nil
			}
		}
	}

	// System registry last, so content-aware rules always outrank the
	// generic extension tables for ambiguous containers.
	return s.sniffSystem(ctx, heavy), nil
}

// ResolveFile sniffs a filesystem entry, deriving an extension hint from the
// path and closing the content it opened before returning.
func (s *Sniffer) ResolveFile(ctx context.Context, fs afero.Fs, filePath string, mediaTypes ...string) (*Format, error) {
	content := NewFileContent(fs, filePath)
	defer content.Close()
	return s.Resolve(ctx, mediaTypes, extensionHints(filePath), content)
}

// ResolveBytes sniffs an in-memory asset behind a lazy byte producer
func (s *Sniffer) ResolveBytes(ctx context.Context, load func() ([]byte, error), mediaTypes []string, fileExtensions []string) (*Format, error) {
	content := NewBytesContent(load)
	defer content.Close()
	return s.Resolve(ctx, mediaTypes, fileExtensions, content)
}

// ResolveRemote sniffs a remote asset, deriving an extension hint from the
// URL path. The HTTP client comes from the sniffer options.
func (s *Sniffer) ResolveRemote(ctx context.Context, rawURL string, mediaTypes ...string) (*Format, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &Error{
			Context: rawURL,
			Code:    ContentNotReadable,
			Message: "unable to parse remote URL",
			Cause:   err,
			Frame:   xerrors.Caller(xErrorsFrameCaller),
		}
	}
	content := NewRemoteContent(u, s.httpClient(ctx))
	defer content.Close()
	return s.Resolve(ctx, mediaTypes, extensionHints(u.Path), content)
}

// ResolveResource sniffs the target of a fetched Resource, using the link's
// declared media type and href extension as hints.
func (s *Sniffer) ResolveResource(ctx context.Context, resource Resource) (*Format, error) {
	link := resource.Link()
	var mediaTypes []string
	if link.MediaType != "" {
		mediaTypes = append(mediaTypes, link.MediaType)
	}
	content := NewBytesContent(func() ([]byte, error) {
		return resource.Read(ctx, 0, -1)
	})
	defer content.Close()
	return s.Resolve(ctx, mediaTypes, extensionHints(link.Href), content)
}

// ResolveHints sniffs from hints alone; content-based rules never run
func (s *Sniffer) ResolveHints(ctx context.Context, mediaTypes []string, fileExtensions []string) (*Format, error) {
	return s.Resolve(ctx, mediaTypes, fileExtensions, nil)
}

func extensionHints(assetPath string) []string {
	ext := strings.TrimPrefix(path.Ext(path.Base(assetPath)), ".")
	if ext == "" {
		return nil
	}
	return []string{ext}
}

var defaultSniffer = NewSniffer()

// Resolve runs the default pipeline; see Sniffer.Resolve
func Resolve(ctx context.Context, mediaTypes []string, fileExtensions []string, content SnifferContent) (*Format, error) {
	return defaultSniffer.Resolve(ctx, mediaTypes, fileExtensions, content)
}

// ResolveFile runs the default pipeline over a filesystem entry
func ResolveFile(ctx context.Context, fs afero.Fs, filePath string, mediaTypes ...string) (*Format, error) {
	return defaultSniffer.ResolveFile(ctx, fs, filePath, mediaTypes...)
}
