package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/scribe-bot/pkg/retry"
	"go.uber.org/zap"
)

func writeAudioFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.ogg")
	require.NoError(t, os.WriteFile(path, []byte("fake audio"), 0o644))
	return path
}

func newTestClient(url string, attempts int) *Client {
	return New(
		Config{APIKey: "test-key", Model: "scribe_v1", BaseURL: url},
		retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond},
		zap.NewNop(),
	)
}

func TestTranscribeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/speech-to-text", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "scribe_v1", r.FormValue("model_id"))
		_, _, err := r.FormFile("file")
		assert.NoError(t, err)

		w.Write([]byte(`{"text":"hello world","language_code":"en","language_probability":0.97}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	result, err := c.Transcribe(context.Background(), writeAudioFixture(t))

	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Text)
	assert.Equal(t, "en", result.Language)
	assert.InDelta(t, 0.97, result.Confidence, 1e-9)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestTranscribeDoesNotRetryAuthError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	_, err := c.Transcribe(context.Background(), writeAudioFixture(t))

	var apiErr *TranscriptionError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "upstream hiccup", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"text":"eventually fine","detected_language":"fr","language_probability":0.8}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 3)
	result, err := c.Transcribe(context.Background(), writeAudioFixture(t))

	require.NoError(t, err)
	assert.Equal(t, "eventually fine", result.Text)
	assert.Equal(t, "fr", result.Language)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTranscribeExhaustedRetriesSurfaceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "still down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 2)
	_, err := c.Transcribe(context.Background(), writeAudioFixture(t))

	var apiErr *TranscriptionError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/user" && r.Header.Get("xi-api-key") == "test-key" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 1)
	assert.NoError(t, c.Health(context.Background()))
}
