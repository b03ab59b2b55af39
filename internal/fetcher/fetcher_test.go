package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/scribe-bot/internal/models"
	"go.uber.org/zap"
)

type stubResolver struct {
	url   string
	calls int
}

func (r *stubResolver) FileURL(fileID string) (string, error) {
	r.calls++
	return r.url + "/" + fileID, nil
}

func newTestFetcher(t *testing.T, resolver FileResolver, maxSize int64) *Fetcher {
	t.Helper()
	f, err := New(resolver, maxSize, t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return f
}

func voiceMessage(size int64) *models.AudioMessage {
	return &models.AudioMessage{
		ChatID:   1,
		UserID:   2,
		FileID:   "file-123",
		Kind:     models.KindVoice,
		MimeType: "audio/ogg",
		Size:     size,
	}
}

func TestFetchRejectsOversizeBeforeNetwork(t *testing.T) {
	resolver := &stubResolver{url: "http://unused"}
	f := newTestFetcher(t, resolver, 25*1024*1024)

	_, _, err := f.Fetch(context.Background(), voiceMessage(30*1024*1024))

	var oversize *OversizeError
	require.ErrorAs(t, err, &oversize)
	assert.Equal(t, int64(30*1024*1024), oversize.Size)
	assert.Zero(t, resolver.calls, "no network call expected for oversize input")
}

func TestFetchRejectsUnsupportedFormat(t *testing.T) {
	resolver := &stubResolver{url: "http://unused"}
	f := newTestFetcher(t, resolver, 1024)

	msg := &models.AudioMessage{
		FileID:   "file-123",
		Kind:     models.KindAudioDocument,
		MimeType: "audio/webm",
		FileName: "clip.webm",
		Size:     100,
	}

	_, _, err := f.Fetch(context.Background(), msg)

	var unsupported *UnsupportedFormatError
	require.ErrorAs(t, err, &unsupported)
	assert.Zero(t, resolver.calls)
}

func TestFetchDownloadsAndCleanupRemoves(t *testing.T) {
	payload := []byte("fake ogg bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	f := newTestFetcher(t, &stubResolver{url: srv.URL}, 1024)

	path, size, err := f.Fetch(context.Background(), voiceMessage(int64(len(payload))))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), size)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	f.Cleanup(path)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFetchDeletesFileWhenActualSizeExceedsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	f := newTestFetcher(t, &stubResolver{url: srv.URL}, 1024)

	// Declared size lies; the on-disk check still rejects it
	path, _, err := f.Fetch(context.Background(), voiceMessage(100))

	var oversize *OversizeError
	require.ErrorAs(t, err, &oversize)
	assert.Empty(t, path)

	entries, err := os.ReadDir(f.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial download should be deleted")
}

func TestCleanupOldRemovesStaleFiles(t *testing.T) {
	f := newTestFetcher(t, &stubResolver{}, 1024)

	stale := f.uploadDir + "/audio_stale.ogg"
	fresh := f.uploadDir + "/audio_fresh.ogg"
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	removed := f.CleanupOld(24 * time.Hour)
	assert.Equal(t, 1, removed)

	_, err := os.Stat(fresh)
	assert.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestExtensionForVoiceDefaultsToOgg(t *testing.T) {
	ext, err := extensionFor(voiceMessage(10))
	require.NoError(t, err)
	assert.Equal(t, ".ogg", ext)
}
