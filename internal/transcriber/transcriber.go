// Package transcriber wraps the ElevenLabs speech-to-text API. All speech
// recognition is delegated upstream; this client only moves bytes and maps
// errors onto the retry policy.
package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/xaenox/scribe-bot/internal/models"
	"github.com/xaenox/scribe-bot/pkg/retry"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// TranscriptionError is a terminal upstream failure with the provider's
// status and message attached.
type TranscriptionError struct {
	StatusCode int
	Message    string
}

func (e *TranscriptionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transcription failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transcription failed: %s", e.Message)
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	client *http.Client
	policy retry.Policy
	logger *zap.Logger
}

func New(cfg Config, policy retry.Policy, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		policy: policy,
		logger: logger,
	}
}

type speechToTextResponse struct {
	Text                string  `json:"text"`
	LanguageCode        string  `json:"language_code"`
	DetectedLanguage    string  `json:"detected_language"`
	LanguageProbability float64 `json:"language_probability"`
}

// Transcribe submits a local audio file and returns the transcript.
// Transport errors and 429/5xx responses are retried per the injected
// policy; other API errors surface immediately as a TranscriptionError.
func (c *Client) Transcribe(ctx context.Context, path string) (*models.TranscriptionResult, error) {
	start := time.Now()

	var parsed speechToTextResponse
	err := c.policy.Do(ctx, func() error {
		return c.transcribeOnce(ctx, path, &parsed)
	})
	if err != nil {
		return nil, err
	}

	language := parsed.LanguageCode
	if language == "" {
		language = parsed.DetectedLanguage
	}
	if language == "" {
		language = "unknown"
	}

	result := &models.TranscriptionResult{
		Text:       parsed.Text,
		Language:   language,
		Confidence: clamp01(parsed.LanguageProbability),
		Duration:   time.Since(start),
	}

	c.logger.Info("Transcription completed",
		zap.String("language", result.Language),
		zap.Float64("confidence", result.Confidence),
		zap.Duration("duration", result.Duration))

	return result, nil
}

func (c *Client) transcribeOnce(ctx context.Context, path string, out *speechToTextResponse) error {
	file, err := os.Open(path)
	if err != nil {
		return retry.Permanent(&TranscriptionError{Message: fmt.Sprintf("cannot open audio file: %v", err)})
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("model_id", c.cfg.Model); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/speech-to-text", pr)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		// Transport/timeout errors are retryable
		return fmt.Errorf("speech-to-text request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		apiErr := &TranscriptionError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
		if retryableStatus(resp.StatusCode) {
			c.logger.Warn("Retryable transcription error",
				zap.Int("status", resp.StatusCode))
			return apiErr
		}
		return retry.Permanent(apiErr)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return retry.Permanent(&TranscriptionError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("malformed response: %v", err),
		})
	}
	return nil
}

// Health probes the API with the account endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/user", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &TranscriptionError{StatusCode: resp.StatusCode, Message: "health check failed"}
	}
	return nil
}

// Model returns the configured model id, for status reporting.
func (c *Client) Model() string {
	return c.cfg.Model
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
