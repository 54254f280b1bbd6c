package format

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// zipFixtureEntry is one entry of an in-memory test archive
type zipFixtureEntry struct {
	path string
	data string
}

func buildZip(t *testing.T, entries []zipFixtureEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, entry := range entries {
		f, err := w.Create(entry.path)
		require.NoError(t, err)
		_, err = f.Write([]byte(entry.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func epubZip(t *testing.T) []byte {
	return buildZip(t, []zipFixtureEntry{
		{"mimetype", "application/epub+zip"},
		{"META-INF/container.xml", `<?xml version="1.0"?><container/>`},
		{"OEBPS/content.opf", "<package/>"},
	})
}

func TestBytesContentLoaderRunsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	calls := 0
	content := NewBytesContent(func() ([]byte, error) {
		calls++
		return []byte("hello"), nil
	})
	defer content.Close()

	for i := 0; i < 3; i++ {
		raw, err := content.Read(ctx, 0, -1)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(raw))
	}
	length, err := content.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, length)
	assert.Equal(t, 1, calls)
}

func TestBytesContentLoaderFailureIsCached(t *testing.T) {
	ctx := context.Background()
	calls := 0
	content := NewBytesContent(func() ([]byte, error) {
		calls++
		return nil, errors.New("backend gone")
	})
	defer content.Close()

	_, err := content.Read(ctx, 0, -1)
	require.Error(t, err)
	_, err = content.Length(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentUnavailable))
	assert.Equal(t, 1, calls)
}

func TestReadBoundedPrefix(t *testing.T) {
	ctx := context.Background()
	content := NewBytesContent(func() ([]byte, error) {
		return []byte("0123456789"), nil
	})
	defer content.Close()

	head, err := content.Read(ctx, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(head))

	middle, err := content.Read(ctx, 4, 7)
	require.NoError(t, err)
	assert.Equal(t, "456", string(middle))

	tail, err := content.Read(ctx, 8, -1)
	require.NoError(t, err)
	assert.Equal(t, "89", string(tail))

	past, err := content.Read(ctx, 20, 30)
	require.NoError(t, err)
	assert.Empty(t, past)

	_, err = content.Read(ctx, -1, 2)
	assert.Error(t, err)
}

func TestAsStringHonorsCharset(t *testing.T) {
	ctx := context.Background()
	content := NewBytesContent(func() ([]byte, error) {
		// "café" in ISO-8859-1
		return []byte{0x63, 0x61, 0x66, 0xE9}, nil
	})
	defer content.Close()

	text, err := content.AsString(ctx, "iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestAsStringMemoizesPerCharset(t *testing.T) {
	ctx := context.Background()
	loads := 0
	content := NewBytesContent(func() ([]byte, error) {
		loads++
		// 0xE4 is "ä" in ISO-8859-1 but "ф" in ISO-8859-5
		return []byte{0xE4}, nil
	})
	defer content.Close()

	latin, err := content.AsString(ctx, "iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "ä", latin)

	cyrillic, err := content.AsString(ctx, "iso-8859-5")
	require.NoError(t, err)
	assert.Equal(t, "ф", cyrillic, "a different charset must trigger a fresh decode")

	again, err := content.AsString(ctx, "iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "ä", again)
	assert.Equal(t, 1, loads, "the raw bytes are still fetched only once")
}

// rangeBlindHandler serves the whole payload on every GET, ignoring the
// Range header, and refuses HEAD outright.
func rangeBlindHandler(payload []byte, sawRange *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if sawRange != nil && r.Header.Get("Range") != "" {
			*sawRange = r.Header.Get("Range")
		}
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	})
}

func TestRemoteReadFallsBackWhenRangeIgnored(t *testing.T) {
	ctx := context.Background()
	payload := []byte("0123456789abcdef")
	var sawRange string
	server := httptest.NewServer(rangeBlindHandler(payload, &sawRange))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	content := NewRemoteContent(u, server.Client())
	defer content.Close()

	middle, err := content.Read(ctx, 4, 8)
	require.NoError(t, err)
	assert.Equal(t, "4567", string(middle), "the prefix must be discarded when the server ignores Range")
	assert.NotEmpty(t, sawRange, "a ranged request was attempted first")

	tail, err := content.Read(ctx, 10, -1)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(tail))

	past, err := content.Read(ctx, int64(len(payload))+5, -1)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func TestRemoteLengthWithoutHEADSupport(t *testing.T) {
	ctx := context.Background()
	payload := []byte("0123456789abcdef")
	server := httptest.NewServer(rangeBlindHandler(payload, nil))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	content := NewRemoteContent(u, server.Client())
	defer content.Close()

	length, err := content.Length(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), length, "a refused HEAD falls back to the body length")
}

func TestFailedViewDoesNotPoisonOthers(t *testing.T) {
	ctx := context.Background()
	content := NewBytesContent(func() ([]byte, error) {
		return []byte("<feed xmlns=\"http://www.w3.org/2005/Atom\"></feed>"), nil
	})
	defer content.Close()

	_, errJSON := content.AsJSON(ctx)
	require.Error(t, errJSON, "atom XML is not a JSON object")
	assert.True(t, errors.Is(errJSON, ErrMalformedEncoding))

	root, err := content.AsXML(ctx)
	require.NoError(t, err)
	assert.Equal(t, "feed", root.Name.Local)
	assert.Equal(t, "http://www.w3.org/2005/Atom", root.Name.Space)

	// The JSON failure is cached, not retried
	_, err2 := content.AsJSON(ctx)
	assert.Equal(t, errJSON, err2)
}

func TestAsArchiveListsEntriesInArchiveOrder(t *testing.T) {
	ctx := context.Background()
	raw := epubZip(t)
	content := NewBytesContent(func() ([]byte, error) { return raw, nil })
	defer content.Close()

	archive, err := content.AsArchive(ctx)
	require.NoError(t, err)
	entries := archive.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "mimetype", entries[0].Path)
	assert.Equal(t, "META-INF/container.xml", entries[1].Path)

	marker, err := archive.ReadEntry("mimetype")
	require.NoError(t, err)
	assert.Equal(t, "application/epub+zip", string(marker))

	_, err = archive.ReadEntry("nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	entry, ok := archive.Entry("OEBPS/content.opf")
	assert.True(t, ok)
	assert.EqualValues(t, len("<package/>"), entry.Length)
}

func TestFileContentReadsLazilyFromFS(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/book.epub", epubZip(t), 0o644))

	content := NewFileContent(fs, "/book.epub")
	defer content.Close()

	length, err := content.Length(ctx)
	require.NoError(t, err)
	assert.Positive(t, length)

	archive, err := content.AsArchive(ctx)
	require.NoError(t, err)
	_, ok := archive.Entry("mimetype")
	assert.True(t, ok)
}

func TestFileContentMissingFile(t *testing.T) {
	ctx := context.Background()
	content := NewFileContent(afero.NewMemMapFs(), "/missing.bin")
	defer content.Close()

	_, err := content.Read(ctx, 0, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContentUnavailable))
}

func TestContentCloseIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/a.txt", []byte("x"), 0o644))
	content := NewFileContent(fs, "/a.txt")

	_, err := content.Read(context.Background(), 0, -1)
	require.NoError(t, err)
	assert.NoError(t, content.Close())
	assert.NoError(t, content.Close())

	_, err = content.Read(context.Background(), 0, -1)
	assert.Error(t, err, "reads after close must fail, not reopen")
}
