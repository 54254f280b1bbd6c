package format

import (
	"context"
	"mime"
	"strings"

	filetype "github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

// fileHeaderLength is how much of the asset the magic-byte tables need;
// filetype matchers never look past the first 261 bytes.
const fileHeaderLength = 261

// sniffSystem is the last-resort registry consulted once every classifier
// has passed: platform extension and media-type tables first, then a
// magic-byte match on the content header, and only then an ad-hoc format
// from an unconfirmed declared type. It runs strictly after the heavy round
// so that a ZIP-based publication is never reported as a generic ZIP while a
// content-aware rule could still have named it.
func (s *Sniffer) sniffSystem(ctx context.Context, sc SnifferContext) *Format {
	for _, hint := range sc.MediaTypes() {
		if known, ok := knownFormatFor(hint); ok {
			return &known
		}
	}

	for _, ext := range sc.FileExtensions() {
		if name := mime.TypeByExtension("." + ext); name != "" {
			if f := formatFromRaw(name, ext); f != nil {
				return f
			}
		}
		if t := filetype.GetType(ext); t != types.Unknown {
			if f := formatFromType(t); f != nil {
				return f
			}
		}
	}

	if sc.HasContent() {
		// We only have to pass the file header = first 261 bytes
		head, err := sc.ReadRange(ctx, 0, fileHeaderLength)
		if err != nil {
			s.warningTracker.OnWarning(ctx, ContentNotReadable, "unable to read content header for magic sniffing")
		} else if t, err := filetype.Match(head); err == nil && t != types.Unknown {
			if t.Extension == "zip" {
				if _, err := sc.ContentAsArchive(ctx); err != nil {
					s.warningTracker.OnWarning(ctx, UnableToListArchive, "content carries a ZIP signature but its entries cannot be listed")
				}
			}
			if f := formatFromType(t); f != nil {
				return f
			}
		}
	}

	// Nothing confirmed the declared type, but at this point it is the best
	// information left. A declared octet-stream carries no format
	// information, so it never produces an ad-hoc Format.
	for _, hint := range sc.MediaTypes() {
		if hint.Equal(MediaTypeBinary) {
			continue
		}
		return formatFromMediaType(hint, "")
	}
	return nil
}

func formatFromRaw(raw string, ext string) *Format {
	mediaType, err := NewMediaType(raw)
	if err != nil {
		return nil
	}
	return formatFromMediaType(mediaType, ext)
}

func formatFromType(t types.Type) *Format {
	mediaType, err := NewMediaType(t.MIME.Value)
	if err != nil {
		return nil
	}
	return formatFromMediaType(mediaType, t.Extension)
}

func formatFromMediaType(mediaType MediaType, ext string) *Format {
	if known, ok := knownFormatFor(mediaType); ok {
		return &known
	}
	if ext == "" {
		if exts, err := mime.ExtensionsByType(mediaType.String()); err == nil && len(exts) > 0 {
			ext = strings.TrimPrefix(exts[0], ".")
		}
	}
	name := strings.ToUpper(ext)
	if name == "" {
		name = mediaType.String()
	}
	return &Format{Name: name, MediaType: mediaType, FileExtension: ext}
}
