package format

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/suite"
)

type SnifferSuite struct {
	suite.Suite
	sniffer *Sniffer
}

func (suite *SnifferSuite) SetupTest() {
	suite.sniffer = NewSniffer()
}

func (suite *SnifferSuite) TestHintsOnlyEPUB() {
	heavyCalls := 0
	heavyOnly := Classifier(func(ctx context.Context, sc SnifferContext) *Format {
		if sc.HasContent() {
			heavyCalls++
		}
		return nil
	})
	sniffer := NewSniffer(heavyOnly)

	raw := epubZip(suite.T())
	content := NewBytesContent(func() ([]byte, error) { return raw, nil })
	defer content.Close()

	f, err := sniffer.Resolve(context.Background(), []string{"application/epub+zip"}, []string{"epub"}, content)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatEPUB))
	suite.Equal(0, heavyCalls, "the light round must settle this without touching content")
}

func (suite *SnifferSuite) TestHeavyRoundEPUBFromMarkerEntry() {
	raw := epubZip(suite.T())
	content := NewBytesContent(func() ([]byte, error) { return raw, nil })
	defer content.Close()

	f, err := suite.sniffer.Resolve(context.Background(), nil, nil, content)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatEPUB))
}

func (suite *SnifferSuite) TestHeavyRoundEPUBFromContainerEntry() {
	raw := buildZip(suite.T(), []zipFixtureEntry{
		{"META-INF/container.xml", `<?xml version="1.0"?><container/>`},
		{"OEBPS/content.opf", "<package/>"},
	})
	content := NewBytesContent(func() ([]byte, error) { return raw, nil })
	defer content.Close()

	f, err := suite.sniffer.Resolve(context.Background(), nil, nil, content)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatEPUB))
}

func (suite *SnifferSuite) TestUnmarkedZIPFallsThroughToSystemRegistry() {
	raw := buildZip(suite.T(), []zipFixtureEntry{
		{"notes.txt", "just some notes"},
		{"data.bin", "\x00\x01\x02"},
	})
	content := NewBytesContent(func() ([]byte, error) { return raw, nil })
	defer content.Close()

	f, err := suite.sniffer.Resolve(context.Background(), nil, nil, content)
	suite.NoError(err)
	suite.Require().NotNil(f, "a well-formed ZIP must classify as generic ZIP, not fail")
	suite.True(f.Equal(FormatZIP))
	suite.False(f.Equal(FormatEPUB))
}

func (suite *SnifferSuite) TestNoMatchIsNilNotError() {
	content := NewBytesContent(func() ([]byte, error) {
		return []byte{0xDE, 0xAD, 0xBE, 0xEF}, nil
	})
	defer content.Close()

	f, err := suite.sniffer.Resolve(context.Background(), nil, nil, content)
	suite.NoError(err)
	suite.Nil(f)
}

func (suite *SnifferSuite) TestMalformedHintIsSurfacedImmediately() {
	_, err := suite.sniffer.Resolve(context.Background(), []string{"not a media type"}, nil, nil)
	suite.Require().Error(err)
	coded, ok := err.(*Error)
	suite.Require().True(ok)
	suite.Equal(InvalidMediaType, coded.Code)
}

func (suite *SnifferSuite) TestCustomClassifierRunsFirst() {
	custom := Format{Name: "Custom", MediaType: MustMediaType("application/x-custom"), FileExtension: "cst"}
	sniffer := NewSniffer(Classifier(func(ctx context.Context, sc SnifferContext) *Format {
		if sc.HasFileExtension("epub") {
			return &custom
		}
		return nil
	}))

	f, err := sniffer.ResolveHints(context.Background(), nil, []string{"epub"})
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(custom), "a prepended classifier must win over the defaults")
}

func (suite *SnifferSuite) TestContentClassifierBeatsUnconfirmedDeclaredType() {
	// A declared type nothing recognizes must not outrank what the bytes say.
	f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return []byte("%PDF-1.7\n..."), nil
	}, []string{"application/x-unknown-declared"}, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatPDF))
}

func (suite *SnifferSuite) TestDeclaredTypeSurvivesAsLastResort() {
	f, err := suite.sniffer.ResolveHints(context.Background(), []string{"application/x-proprietary"}, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.Equal("application/x-proprietary", f.MediaType.String())
}

func (suite *SnifferSuite) TestWebPubManifestFlavors() {
	audiobook := `{"metadata":{"title":"t"},"readingOrder":[{"href":"/a.mp3","type":"audio/mpeg"}]}`
	divina := `{"metadata":{"title":"t"},"readingOrder":[{"href":"/p1.png","type":"image/png"}]}`
	webpub := `{"metadata":{"title":"t"},"readingOrder":[{"href":"/c1.html","type":"text/html"}]}`

	cases := []struct {
		manifest string
		expected Format
	}{
		{audiobook, FormatAudiobookManifest},
		{divina, FormatDiViNaManifest},
		{webpub, FormatWebPubManifest},
	}
	for _, tc := range cases {
		manifest := tc.manifest
		f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
			return []byte(manifest), nil
		}, nil, nil)
		suite.NoError(err)
		suite.Require().NotNil(f)
		suite.True(f.Equal(tc.expected), "manifest %s", manifest)
	}
}

func (suite *SnifferSuite) TestOPDSFeeds() {
	atom := `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"></feed>`
	f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return []byte(atom), nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatOPDS1Feed))

	opds2 := `{"metadata":{"title":"c"},"links":[],"navigation":[]}`
	f, err = suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return []byte(opds2), nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatOPDS2Feed))

	f, err = suite.sniffer.ResolveHints(context.Background(), []string{"application/atom+xml;profile=opds-catalog"}, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatOPDS1Feed))
}

func (suite *SnifferSuite) TestLCPLicenseDocument() {
	license := `{"id":"l-1","issued":"2020-01-01","provider":"example.org","encryption":{}}`
	f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return []byte(license), nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatLCPLicense))
}

func (suite *SnifferSuite) TestHTMLAndXHTML() {
	f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return []byte("<!DOCTYPE html><html><head></head><body></body></html>"), nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatHTML))

	xhtml := `<?xml version="1.0"?><html xmlns="http://www.w3.org/1999/xhtml"><body/></html>`
	f, err = suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return []byte(xhtml), nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatXHTML))
}

func (suite *SnifferSuite) TestBitmapMagic() {
	png := []byte("\x89PNG\r\n\x1a\nrest-of-the-image")
	f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return png, nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatPNG))
}

func (suite *SnifferSuite) TestComicBookArchive() {
	raw := buildZip(suite.T(), []zipFixtureEntry{
		{"p001.jpg", "fake"},
		{"p002.jpg", "fake"},
		{"p003.png", "fake"},
	})
	f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return raw, nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatCBZ))
}

func (suite *SnifferSuite) TestPackagedAudiobook() {
	raw := buildZip(suite.T(), []zipFixtureEntry{
		{"manifest.json", `{"metadata":{"title":"t"},"readingOrder":[{"href":"c1.mp3","type":"audio/mpeg"}]}`},
		{"c1.mp3", "fake"},
	})
	f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return raw, nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatAudiobook))
}

func (suite *SnifferSuite) TestResolveFileDerivesExtensionHint() {
	fs := afero.NewMemMapFs()
	suite.Require().NoError(afero.WriteFile(fs, "/shelf/book.epub", epubZip(suite.T()), 0o644))

	f, err := suite.sniffer.ResolveFile(context.Background(), fs, "/shelf/book.epub")
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatEPUB))
}

func (suite *SnifferSuite) TestResolveRemoteSniffsOverHTTP() {
	raw := epubZip(suite.T())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "book.bin", time.Time{}, bytes.NewReader(raw))
	}))
	defer server.Close()

	f, err := suite.sniffer.ResolveRemote(context.Background(), server.URL+"/book.bin")
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatEPUB))
}

func (suite *SnifferSuite) TestResolveResourceUsesLinkHints() {
	link := Link{Href: "/chapter-1.html", MediaType: "text/html"}
	resource := NewBytesResource(link, func() ([]byte, error) {
		return []byte("<html></html>"), nil
	})
	defer resource.Close()

	f, err := suite.sniffer.ResolveResource(context.Background(), resource)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatHTML))
}

// codeRecorder collects the warning codes a sniff emitted
type codeRecorder struct {
	codes []string
}

func (r *codeRecorder) OnWarning(ctx context.Context, code, message string) {
	r.codes = append(r.codes, code)
}

func (suite *SnifferSuite) TestCorruptZIPStillClassifiesWithWarning() {
	recorder := &codeRecorder{}
	sniffer := NewSniffer(recorder)

	// A ZIP signature with no central directory behind it
	raw := append([]byte("PK\x03\x04"), make([]byte, 64)...)
	f, err := sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return raw, nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatZIP))
	suite.Contains(recorder.codes, UnableToListArchive)
}

func (suite *SnifferSuite) TestUnknownDeclaredCharsetWarns() {
	recorder := &codeRecorder{}
	sniffer := NewSniffer(recorder)

	_, err := sniffer.ResolveHints(context.Background(), []string{"text/html; charset=x-bogus-charset"}, nil)
	suite.NoError(err)
	suite.Contains(recorder.codes, UnableToGuessCharset)

	recorder.codes = nil
	_, err = sniffer.ResolveHints(context.Background(), []string{"text/html; charset=ISO-8859-1"}, nil)
	suite.NoError(err)
	suite.Empty(recorder.codes, "a recognized charset must not warn")
}

func (suite *SnifferSuite) TestOctetStreamHintAloneResolvesNothing() {
	f, err := suite.sniffer.ResolveHints(context.Background(), []string{"application/octet-stream"}, nil)
	suite.NoError(err)
	suite.Nil(f, "a declared octet-stream carries no format information")

	f, err = suite.sniffer.ResolveHints(context.Background(), []string{"application/octet-stream", "application/x-proprietary"}, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.Equal("application/x-proprietary", f.MediaType.String())
}

func (suite *SnifferSuite) TestGZIPMagicUpgradesToKnownFormat() {
	raw := append([]byte{0x1F, 0x8B, 0x08}, make([]byte, 16)...)
	f, err := suite.sniffer.ResolveBytes(context.Background(), func() ([]byte, error) {
		return raw, nil
	}, nil, nil)
	suite.NoError(err)
	suite.Require().NotNil(f)
	suite.True(f.Equal(FormatGZ))
	suite.Equal("gz", f.FileExtension)
}

func (suite *SnifferSuite) TestCancelledContextStopsThePipeline() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := suite.sniffer.ResolveHints(ctx, nil, []string{"epub"})
	suite.Error(err)
}

func TestSnifferSuite(t *testing.T) {
	suite.Run(t, new(SnifferSuite))
}
