package format

// Format is a resolved, named classification of an asset: a display name,
// the canonical media type and the default file extension. It is a plain
// value, freely copied.
type Format struct {
	Name          string
	MediaType     MediaType
	FileExtension string
}

// Equal reports whether two Formats denote the same format. The canonical
// media type is the sole identity; names and extensions are presentation.
func (f Format) Equal(other Format) bool {
	return f.MediaType.Equal(other.MediaType)
}

// Key returns a string usable as a map key or hash input. Two equal Formats
// always produce the same key.
func (f Format) Key() string {
	return f.MediaType.String()
}

func (f Format) String() string {
	return f.Name + " (" + f.MediaType.String() + ")"
}

// Well-known formats. These are read-only process-wide values, not a mutable
// registry: a caller wanting different definitions passes its own Formats to
// its own classifiers.
var (
	FormatAAC                   = Format{Name: "AAC", MediaType: MediaTypeAAC, FileExtension: "aac"}
	FormatAIFF                  = Format{Name: "AIFF", MediaType: MediaTypeAIFF, FileExtension: "aiff"}
	FormatAudiobook             = Format{Name: "Audiobook", MediaType: MediaTypeAudiobook, FileExtension: "audiobook"}
	FormatAudiobookManifest     = Format{Name: "Audiobook", MediaType: MediaTypeAudiobookManifest, FileExtension: "json"}
	FormatAVIF                  = Format{Name: "AVIF", MediaType: MediaTypeAVIF, FileExtension: "avif"}
	FormatBMP                   = Format{Name: "BMP", MediaType: MediaTypeBMP, FileExtension: "bmp"}
	FormatCBZ                   = Format{Name: "Comic Book Archive", MediaType: MediaTypeCBZ, FileExtension: "cbz"}
	FormatDiViNa                = Format{Name: "Digital Visual Narratives", MediaType: MediaTypeDiViNa, FileExtension: "divina"}
	FormatDiViNaManifest        = Format{Name: "Digital Visual Narratives", MediaType: MediaTypeDiViNaManifest, FileExtension: "json"}
	FormatEPUB                  = Format{Name: "EPUB", MediaType: MediaTypeEPUB, FileExtension: "epub"}
	FormatFLAC                  = Format{Name: "FLAC", MediaType: MediaTypeFLAC, FileExtension: "flac"}
	FormatGIF                   = Format{Name: "GIF", MediaType: MediaTypeGIF, FileExtension: "gif"}
	FormatGZ                    = Format{Name: "GZIP", MediaType: MediaTypeGZ, FileExtension: "gz"}
	FormatHTML                  = Format{Name: "HTML", MediaType: MediaTypeHTML, FileExtension: "html"}
	FormatJPEG                  = Format{Name: "JPEG", MediaType: MediaTypeJPEG, FileExtension: "jpg"}
	FormatLCPLicense            = Format{Name: "LCP License", MediaType: MediaTypeLCPLicenseDocument, FileExtension: "lcpl"}
	FormatLCPProtectedAudiobook = Format{Name: "LCP Protected Audiobook", MediaType: MediaTypeLCPProtectedAudiobook, FileExtension: "lcpa"}
	FormatLCPProtectedPDF       = Format{Name: "LCP Protected PDF", MediaType: MediaTypeLCPProtectedPDF, FileExtension: "lcpdf"}
	FormatLPF                   = Format{Name: "Lightweight Packaging Format", MediaType: MediaTypeLPF, FileExtension: "lpf"}
	FormatMP3                   = Format{Name: "MP3", MediaType: MediaTypeMP3, FileExtension: "mp3"}
	FormatMP4                   = Format{Name: "MPEG-4 Audio", MediaType: MediaTypeMP4, FileExtension: "m4a"}
	FormatOGG                   = Format{Name: "Ogg", MediaType: MediaTypeOGG, FileExtension: "ogg"}
	FormatOpus                  = Format{Name: "Opus", MediaType: MediaTypeOpus, FileExtension: "opus"}
	FormatOPDS1Feed             = Format{Name: "OPDS", MediaType: MediaTypeOPDS1, FileExtension: "atom"}
	FormatOPDS1Entry            = Format{Name: "OPDS", MediaType: MediaTypeOPDS1Entry, FileExtension: "atom"}
	FormatOPDS2Feed             = Format{Name: "OPDS", MediaType: MediaTypeOPDS2, FileExtension: "json"}
	FormatOPDS2Publication      = Format{Name: "OPDS", MediaType: MediaTypeOPDS2Publication, FileExtension: "json"}
	FormatOPDSAuthentication    = Format{Name: "OPDS Authentication", MediaType: MediaTypeOPDSAuthentication, FileExtension: "json"}
	FormatPDF                   = Format{Name: "PDF", MediaType: MediaTypePDF, FileExtension: "pdf"}
	FormatPNG                   = Format{Name: "PNG", MediaType: MediaTypePNG, FileExtension: "png"}
	FormatTIFF                  = Format{Name: "TIFF", MediaType: MediaTypeTIFF, FileExtension: "tiff"}
	FormatW3CWPUBManifest       = Format{Name: "Web Publication", MediaType: MediaTypeW3CWPUBManifest, FileExtension: "json"}
	FormatWAV                   = Format{Name: "WAV", MediaType: MediaTypeWAV, FileExtension: "wav"}
	FormatWebP                  = Format{Name: "WebP", MediaType: MediaTypeWebP, FileExtension: "webp"}
	FormatWebPub                = Format{Name: "Web Publication", MediaType: MediaTypeWebPub, FileExtension: "webpub"}
	FormatWebPubManifest        = Format{Name: "Web Publication", MediaType: MediaTypeWebPubManifest, FileExtension: "json"}
	FormatXHTML                 = Format{Name: "XHTML", MediaType: MediaTypeXHTML, FileExtension: "xhtml"}
	FormatZAB                   = Format{Name: "Zipped Audio Book", MediaType: MediaTypeZAB, FileExtension: "zab"}
	FormatZIP                   = Format{Name: "ZIP", MediaType: MediaTypeZIP, FileExtension: "zip"}
)

// knownFormats lets the system fallback upgrade a bare media type into the
// canonical named Format when one exists.
var knownFormats = []Format{
	FormatAAC, FormatAIFF, FormatAudiobook, FormatAudiobookManifest,
	FormatAVIF, FormatBMP, FormatCBZ, FormatDiViNa, FormatDiViNaManifest,
	FormatEPUB, FormatFLAC, FormatGIF, FormatGZ, FormatHTML, FormatJPEG,
	FormatLCPLicense, FormatLCPProtectedAudiobook, FormatLCPProtectedPDF,
	FormatLPF, FormatMP3, FormatMP4, FormatOGG, FormatOpus, FormatOPDS1Feed,
	FormatOPDS1Entry, FormatOPDS2Feed, FormatOPDS2Publication,
	FormatOPDSAuthentication, FormatPDF, FormatPNG, FormatTIFF,
	FormatW3CWPUBManifest, FormatWAV, FormatWebP, FormatWebPub,
	FormatWebPubManifest, FormatXHTML, FormatZAB, FormatZIP,
}

func knownFormatFor(mediaType MediaType) (Format, bool) {
	for _, known := range knownFormats {
		if known.MediaType.Equal(mediaType) {
			return known, true
		}
	}
	return Format{}, false
}
