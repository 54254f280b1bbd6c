package format

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// Classifier is a single sniffing rule. It returns the recognized Format or
// nil when this rule cannot decide; there is no distinct "maybe" value. A
// classifier must not mutate the context and must not perform I/O beyond the
// context's content accessors, so that all read caching stays centralized.
type Classifier func(ctx context.Context, sc SnifferContext) *Format

// DefaultClassifiers is the ordered rule list used when a Sniffer is built
// without custom classifiers. Order is part of the contract: several formats
// are strict subsets of others (every EPUB is a ZIP, every OPDS 2 feed is
// JSON), so the specific rules must come before anything generic. Generic
// ZIP/XML/JSON detection deliberately has no classifier at all here; it is
// the system fallback's job, after every content-aware rule had its chance.
var DefaultClassifiers = []Classifier{
	ClassifyWebPubManifest,
	ClassifyW3CWPUB,
	ClassifyOPDS,
	ClassifyLCPLicense,
	ClassifyEPUB,
	ClassifyLPF,
	ClassifyWebPubPackage,
	ClassifyMediaArchive,
	ClassifyHTML,
	ClassifyPDF,
	ClassifyBitmap,
	ClassifyAudio,
}

// ClassifyWebPubManifest recognizes the JSON manifest flavors of web
// publications: audiobook, visual narrative and the generic form.
func ClassifyWebPubManifest(ctx context.Context, sc SnifferContext) *Format {
	switch {
	case sc.HasMediaType("application/audiobook+json"):
		return &FormatAudiobookManifest
	case sc.HasMediaType("application/divina+json"):
		return &FormatDiViNaManifest
	case sc.HasMediaType("application/webpub+json"):
		return &FormatWebPubManifest
	}

	obj, err := sc.ContentAsJSON(ctx)
	if err != nil {
		return nil
	}
	if _, ok := obj["metadata"]; !ok {
		return nil
	}
	links, ok := obj["readingOrder"].([]interface{})
	if !ok || len(links) == 0 {
		return nil
	}
	switch {
	case allLinksMatch(links, MediaType.IsAudio):
		return &FormatAudiobookManifest
	case allLinksMatch(links, MediaType.IsBitmap):
		return &FormatDiViNaManifest
	default:
		return &FormatWebPubManifest
	}
}

// ClassifyW3CWPUB recognizes a W3C Web Publication manifest by its @context
func ClassifyW3CWPUB(ctx context.Context, sc SnifferContext) *Format {
	obj, err := sc.ContentAsJSON(ctx)
	if err != nil {
		return nil
	}
	if jsonContextContains(obj, "https://www.w3.org/ns/wp-context") {
		return &FormatW3CWPUBManifest
	}
	return nil
}

// ClassifyOPDS recognizes OPDS 1 (Atom) and OPDS 2 (JSON) catalog documents
func ClassifyOPDS(ctx context.Context, sc SnifferContext) *Format {
	// An OPDS 1 entry differs from a feed only by the type parameter, which
	// wildcard matching would gloss over, so the hint is inspected directly.
	for _, hint := range sc.MediaTypes() {
		if hint.Type() != "application" || hint.SubType() != "atom+xml" {
			continue
		}
		if profile, _ := hint.Parameter("profile"); profile != "opds-catalog" {
			continue
		}
		if kind, _ := hint.Parameter("type"); kind == "entry" {
			return &FormatOPDS1Entry
		}
		return &FormatOPDS1Feed
	}
	switch {
	case sc.HasMediaType("application/opds+json"):
		return &FormatOPDS2Feed
	case sc.HasMediaType("application/opds-publication+json"):
		return &FormatOPDS2Publication
	case sc.HasMediaType("application/opds-authentication+json", "application/vnd.opds.authentication.v1.0+json"):
		return &FormatOPDSAuthentication
	}

	if root, err := sc.ContentAsXML(ctx); err == nil && root.Name.Space == "http://www.w3.org/2005/Atom" {
		switch root.Name.Local {
		case "feed":
			return &FormatOPDS1Feed
		case "entry":
			return &FormatOPDS1Entry
		}
	}

	obj, err := sc.ContentAsJSON(ctx)
	if err != nil {
		return nil
	}
	if _, ok := obj["authentication"]; ok {
		return &FormatOPDSAuthentication
	}
	if _, hasLinks := obj["links"]; hasLinks {
		if _, ok := obj["navigation"]; ok {
			return &FormatOPDS2Feed
		}
		if _, ok := obj["publications"]; ok {
			return &FormatOPDS2Feed
		}
		if _, ok := obj["groups"]; ok {
			return &FormatOPDS2Feed
		}
		if _, hasMeta := obj["metadata"]; hasMeta {
			if _, ok := obj["images"]; ok {
				return &FormatOPDS2Publication
			}
		}
	}
	return nil
}

// ClassifyLCPLicense recognizes a standalone LCP license document
func ClassifyLCPLicense(ctx context.Context, sc SnifferContext) *Format {
	if sc.HasFileExtension("lcpl") ||
		sc.HasMediaType("application/vnd.readium.lcp.license.v1.0+json") {
		return &FormatLCPLicense
	}
	obj, err := sc.ContentAsJSON(ctx)
	if err != nil {
		return nil
	}
	if hasKeys(obj, "id", "issued", "provider", "encryption") {
		return &FormatLCPLicense
	}
	return nil
}

// epubMarkerEntry is the well-known mimetype entry of an EPUB container
const epubMarkerEntry = "mimetype"

// epubContainerEntry locates the package document of an EPUB container
const epubContainerEntry = "META-INF/container.xml"

// ClassifyEPUB recognizes an EPUB container by hints, by the mimetype
// marker entry, or by the presence of META-INF/container.xml.
func ClassifyEPUB(ctx context.Context, sc SnifferContext) *Format {
	if sc.HasFileExtension("epub") || sc.HasMediaType("application/epub+zip") {
		return &FormatEPUB
	}

	archive, err := sc.ContentAsArchive(ctx)
	if err != nil {
		return nil
	}
	if marker, err := archive.ReadEntry(epubMarkerEntry); err == nil {
		if strings.TrimSpace(string(marker)) == "application/epub+zip" {
			return &FormatEPUB
		}
		return nil
	}
	if _, ok := archive.Entry(epubContainerEntry); ok {
		return &FormatEPUB
	}
	return nil
}

// ClassifyLPF recognizes a W3C Lightweight Packaging Format container
func ClassifyLPF(ctx context.Context, sc SnifferContext) *Format {
	if sc.HasFileExtension("lpf") || sc.HasMediaType("application/lpf+zip") {
		return &FormatLPF
	}
	archive, err := sc.ContentAsArchive(ctx)
	if err != nil {
		return nil
	}
	if _, ok := archive.Entry("publication.json"); ok {
		return &FormatLPF
	}
	return nil
}

// ClassifyWebPubPackage recognizes the packaged (ZIP) flavors of web
// publications, including the LCP-protected variants.
func ClassifyWebPubPackage(ctx context.Context, sc SnifferContext) *Format {
	switch {
	case sc.HasFileExtension("audiobook") || sc.HasMediaType("application/audiobook+zip"):
		return &FormatAudiobook
	case sc.HasFileExtension("divina") || sc.HasMediaType("application/divina+zip"):
		return &FormatDiViNa
	case sc.HasFileExtension("webpub") || sc.HasMediaType("application/webpub+zip"):
		return &FormatWebPub
	case sc.HasFileExtension("lcpa") || sc.HasMediaType("application/audiobook+lcp"):
		return &FormatLCPProtectedAudiobook
	case sc.HasFileExtension("lcpdf") || sc.HasMediaType("application/pdf+lcp"):
		return &FormatLCPProtectedPDF
	}

	archive, err := sc.ContentAsArchive(ctx)
	if err != nil {
		return nil
	}
	raw, err := archive.ReadEntry("manifest.json")
	if err != nil {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	links, ok := obj["readingOrder"].([]interface{})
	if !ok || len(links) == 0 {
		return nil
	}
	_, protected := archive.Entry("license.lcpl")
	switch {
	case allLinksMatch(links, MediaType.IsAudio):
		if protected {
			return &FormatLCPProtectedAudiobook
		}
		return &FormatAudiobook
	case allLinksMatch(links, MediaType.IsBitmap):
		return &FormatDiViNa
	case protected && allLinksMatch(links, func(m MediaType) bool { return m.Matches(MediaTypePDF) }):
		return &FormatLCPProtectedPDF
	default:
		return &FormatWebPub
	}
}

// ClassifyMediaArchive recognizes ZIP containers that hold nothing but
// bitmaps (comic book archive) or nothing but audio clips (zipped audio
// book). It must run before any generic ZIP handling but after the
// publication packages, which it is itself a superset of.
func ClassifyMediaArchive(ctx context.Context, sc SnifferContext) *Format {
	switch {
	case sc.HasFileExtension("cbz") || sc.HasMediaType("application/vnd.comicbook+zip", "application/x-cbz", "application/x-cbr"):
		return &FormatCBZ
	case sc.HasFileExtension("zab"):
		return &FormatZAB
	}

	archive, err := sc.ContentAsArchive(ctx)
	if err != nil {
		return nil
	}
	if archiveEntriesAllHaveExtension(archive, cbzEntryExtensions) {
		return &FormatCBZ
	}
	if archiveEntriesAllHaveExtension(archive, zabEntryExtensions) {
		return &FormatZAB
	}
	return nil
}

// ClassifyHTML recognizes HTML and XHTML documents
func ClassifyHTML(ctx context.Context, sc SnifferContext) *Format {
	switch {
	case sc.HasFileExtension("xhtml", "xht") || sc.HasMediaType("application/xhtml+xml"):
		return &FormatXHTML
	case sc.HasFileExtension("html", "htm") || sc.HasMediaType("text/html"):
		return &FormatHTML
	}

	// An XHTML document presents itself as XML first
	if root, err := sc.ContentAsXML(ctx); err == nil {
		if root.Name.Local == "html" {
			if root.Name.Space == "http://www.w3.org/1999/xhtml" {
				return &FormatXHTML
			}
			return &FormatHTML
		}
	}

	text, err := sc.ContentAsString(ctx)
	if err != nil {
		return nil
	}
	tokenizer := html.NewTokenizer(strings.NewReader(text))
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return nil
		case html.DoctypeToken:
			if strings.EqualFold(strings.TrimSpace(string(tokenizer.Text())), "html") {
				return &FormatHTML
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if string(name) == "html" {
				return &FormatHTML
			}
			return nil
		}
	}
}

// pdfMagic is the signature every PDF document starts with
var pdfMagic = []byte("%PDF-")

// ClassifyPDF recognizes PDF documents
func ClassifyPDF(ctx context.Context, sc SnifferContext) *Format {
	if sc.HasFileExtension("pdf") || sc.HasMediaType("application/pdf") {
		return &FormatPDF
	}
	head, err := sc.ReadRange(ctx, 0, int64(len(pdfMagic)))
	if err != nil {
		return nil
	}
	if bytes.Equal(head, pdfMagic) {
		return &FormatPDF
	}
	return nil
}

// bitmapSignature pairs a raster format with its magic bytes at an offset
type bitmapSignature struct {
	format *Format
	offset int
	magic  []byte
}

var bitmapSignatures = []bitmapSignature{
	{&FormatPNG, 0, []byte("\x89PNG\r\n\x1a\n")},
	{&FormatJPEG, 0, []byte{0xFF, 0xD8, 0xFF}},
	{&FormatGIF, 0, []byte("GIF87a")},
	{&FormatGIF, 0, []byte("GIF89a")},
	{&FormatBMP, 0, []byte("BM")},
	{&FormatWebP, 8, []byte("WEBP")},
	{&FormatTIFF, 0, []byte("II*\x00")},
	{&FormatTIFF, 0, []byte("MM\x00*")},
}

var bitmapExtensions = map[string]*Format{
	"avif": &FormatAVIF,
	"bmp":  &FormatBMP,
	"dib":  &FormatBMP,
	"gif":  &FormatGIF,
	"jpeg": &FormatJPEG,
	"jpg":  &FormatJPEG,
	"jpe":  &FormatJPEG,
	"png":  &FormatPNG,
	"tif":  &FormatTIFF,
	"tiff": &FormatTIFF,
	"webp": &FormatWebP,
}

// ClassifyBitmap recognizes raster image formats by hints or magic bytes
func ClassifyBitmap(ctx context.Context, sc SnifferContext) *Format {
	for ext, f := range bitmapExtensions {
		if sc.HasFileExtension(ext) || sc.HasMediaType(f.MediaType.String()) {
			return f
		}
	}

	head, err := sc.ReadRange(ctx, 0, 16)
	if err != nil {
		return nil
	}
	for _, sig := range bitmapSignatures {
		end := sig.offset + len(sig.magic)
		if len(head) >= end && bytes.Equal(head[sig.offset:end], sig.magic) {
			return sig.format
		}
	}
	return nil
}

var audioExtensions = map[string]*Format{
	"aac":  &FormatAAC,
	"aiff": &FormatAIFF,
	"flac": &FormatFLAC,
	"m4a":  &FormatMP4,
	"m4b":  &FormatMP4,
	"mp3":  &FormatMP3,
	"oga":  &FormatOGG,
	"ogg":  &FormatOGG,
	"opus": &FormatOpus,
	"wav":  &FormatWAV,
}

// ClassifyAudio recognizes standalone audio clips from hints alone
func ClassifyAudio(ctx context.Context, sc SnifferContext) *Format {
	for ext, f := range audioExtensions {
		if sc.HasFileExtension(ext) || sc.HasMediaType(f.MediaType.String()) {
			return f
		}
	}
	return nil
}

// Entry extension tables for ClassifyMediaArchive. A container qualifies
// only if every visible entry matches.

var cbzEntryExtensions = map[string]bool{
	"avif": true, "bmp": true, "dib": true, "gif": true, "jpeg": true,
	"jpg": true, "jpe": true, "jxl": true, "png": true, "tif": true,
	"tiff": true, "webp": true,
}

var zabEntryExtensions = map[string]bool{
	"aac": true, "aiff": true, "flac": true, "m4a": true, "m4b": true,
	"mp3": true, "oga": true, "ogg": true, "opus": true, "wav": true,
	"webm": true,
}

func archiveEntriesAllHaveExtension(archive *Archive, allowed map[string]bool) bool {
	matched := 0
	for _, entry := range archive.Entries() {
		if strings.HasSuffix(entry.Path, "/") {
			continue
		}
		base := path.Base(entry.Path)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(entry.Path, "__MACOSX") || base == "Thumbs.db" {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(base), "."))
		if !allowed[ext] {
			return false
		}
		matched++
	}
	return matched > 0
}

func hasKeys(obj map[string]interface{}, keys ...string) bool {
	for _, key := range keys {
		if _, ok := obj[key]; !ok {
			return false
		}
	}
	return true
}

// allLinksMatch reports whether every link object carries a type whose media
// type satisfies the predicate. Links without a parsable type fail the test.
func allLinksMatch(links []interface{}, pred func(MediaType) bool) bool {
	for _, raw := range links {
		link, ok := raw.(map[string]interface{})
		if !ok {
			return false
		}
		typ, ok := link["type"].(string)
		if !ok {
			return false
		}
		mediaType, err := NewMediaType(typ)
		if err != nil || !pred(mediaType) {
			return false
		}
	}
	return true
}

func jsonContextContains(obj map[string]interface{}, wanted string) bool {
	switch ctx := obj["@context"].(type) {
	case string:
		return ctx == wanted
	case []interface{}:
		for _, entry := range ctx {
			if s, ok := entry.(string); ok && s == wanted {
				return true
			}
		}
	}
	return false
}
