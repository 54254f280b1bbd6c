package format

// Well-known media types used by the default classifiers and the Format
// registry. These are plain immutable values; callers needing a type not
// listed here build their own with NewMediaType.
var (
	MediaTypeAAC                    = MustMediaType("audio/aac")
	MediaTypeAIFF                   = MustMediaType("audio/aiff")
	MediaTypeAudiobook              = MustMediaType("application/audiobook+zip")
	MediaTypeAudiobookManifest      = MustMediaType("application/audiobook+json")
	MediaTypeAVIF                   = MustMediaType("image/avif")
	MediaTypeBinary                 = MustMediaType("application/octet-stream")
	MediaTypeBMP                    = MustMediaType("image/bmp")
	MediaTypeCBZ                    = MustMediaType("application/vnd.comicbook+zip")
	MediaTypeDiViNa                 = MustMediaType("application/divina+zip")
	MediaTypeDiViNaManifest         = MustMediaType("application/divina+json")
	MediaTypeEPUB                   = MustMediaType("application/epub+zip")
	MediaTypeFLAC                   = MustMediaType("audio/flac")
	MediaTypeGIF                    = MustMediaType("image/gif")
	MediaTypeGZ                     = MustMediaType("application/gzip")
	MediaTypeHTML                   = MustMediaType("text/html")
	MediaTypeJPEG                   = MustMediaType("image/jpeg")
	MediaTypeJSON                   = MustMediaType("application/json")
	MediaTypeLCPLicenseDocument     = MustMediaType("application/vnd.readium.lcp.license.v1.0+json")
	MediaTypeLCPProtectedAudiobook  = MustMediaType("application/audiobook+lcp")
	MediaTypeLCPProtectedPDF        = MustMediaType("application/pdf+lcp")
	MediaTypeLPF                    = MustMediaType("application/lpf+zip")
	MediaTypeMP3                    = MustMediaType("audio/mpeg")
	MediaTypeMP4                    = MustMediaType("audio/mp4")
	MediaTypeOGG                    = MustMediaType("audio/ogg")
	MediaTypeOPDS1                  = MustMediaType("application/atom+xml;profile=opds-catalog")
	MediaTypeOPDS1Entry             = MustMediaType("application/atom+xml;type=entry;profile=opds-catalog")
	MediaTypeOPDS2                  = MustMediaType("application/opds+json")
	MediaTypeOPDS2Publication       = MustMediaType("application/opds-publication+json")
	MediaTypeOPDSAuthentication     = MustMediaType("application/opds-authentication+json")
	MediaTypeOpus                   = MustMediaType("audio/opus")
	MediaTypePDF                    = MustMediaType("application/pdf")
	MediaTypePNG                    = MustMediaType("image/png")
	MediaTypeTIFF                   = MustMediaType("image/tiff")
	MediaTypeW3CWPUBManifest        = MustMediaType("application/x.web-publication+json")
	MediaTypeWAV                    = MustMediaType("audio/wav")
	MediaTypeWebP                   = MustMediaType("image/webp")
	MediaTypeWebPubManifest         = MustMediaType("application/webpub+json")
	MediaTypeWebPub                 = MustMediaType("application/webpub+zip")
	MediaTypeXHTML                  = MustMediaType("application/xhtml+xml")
	MediaTypeXML                    = MustMediaType("application/xml")
	MediaTypeZAB                    = MustMediaType("application/x.zab+zip")
	MediaTypeZIP                    = MustMediaType("application/zip")
)

// The structural predicates below are driven by these tables plus the
// registered suffix of the subtype, so a new format only needs a table entry
// to participate in the comparisons.

var zipBasedSubTypes = map[string]bool{
	"application/zip":                true,
	"application/x-zip-compressed":   true,
	"application/vnd.comicbook+zip":  true,
	"application/x-cbz":              true,
	"application/java-archive":       true,
	"application/vnd.android.package-archive": true,
}

var jsonBasedSubTypes = map[string]bool{
	"application/json":         true,
	"application/problem+json": true,
	"application/ld+json":      true,
}

var xmlBasedSubTypes = map[string]bool{
	"application/xml": true,
	"text/xml":        true,
	"image/svg+xml":   true,
}

var bitmapSubTypes = map[string]bool{
	"image/avif": true,
	"image/bmp":  true,
	"image/gif":  true,
	"image/jpeg": true,
	"image/jxl":  true,
	"image/png":  true,
	"image/tiff": true,
	"image/webp": true,
}

var htmlSubTypes = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
}

var publicationMediaTypes = map[string]bool{
	"application/audiobook+zip":  true,
	"application/audiobook+json": true,
	"application/divina+zip":     true,
	"application/divina+json":    true,
	"application/epub+zip":       true,
	"application/lpf+zip":        true,
	"application/pdf":            true,
	"application/webpub+json":    true,
	"application/webpub+zip":     true,
	"application/x.zab+zip":      true,
	"application/vnd.comicbook+zip": true,
}

func (m MediaType) typeSubType() string {
	return m.mainType + "/" + m.subType
}

// IsZIPBased reports whether the format is packaged as a ZIP container,
// either through the +zip structured suffix or the known-types table.
func (m MediaType) IsZIPBased() bool {
	return m.structuredSuffix() == "zip" || zipBasedSubTypes[m.typeSubType()]
}

// IsJSONBased reports whether the payload is a JSON document
func (m MediaType) IsJSONBased() bool {
	return m.structuredSuffix() == "json" || jsonBasedSubTypes[m.typeSubType()]
}

// IsXMLBased reports whether the payload is an XML document
func (m MediaType) IsXMLBased() bool {
	return m.structuredSuffix() == "xml" || xmlBasedSubTypes[m.typeSubType()]
}

// IsBitmap reports whether the format is a raster image
func (m MediaType) IsBitmap() bool {
	return bitmapSubTypes[m.typeSubType()]
}

// IsAudio reports whether the format carries audio
func (m MediaType) IsAudio() bool {
	return m.mainType == "audio"
}

// IsVideo reports whether the format carries video
func (m MediaType) IsVideo() bool {
	return m.mainType == "video"
}

// IsHTML reports whether the payload is an HTML or XHTML document
func (m MediaType) IsHTML() bool {
	return htmlSubTypes[m.typeSubType()]
}

// IsPublication reports whether the format is a known publication container
// or manifest rather than a standalone media asset.
func (m MediaType) IsPublication() bool {
	return publicationMediaTypes[m.typeSubType()]
}
