// Package fetcher downloads Telegram audio payloads to scoped temporary
// files and enforces the size and format limits before any bytes move.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/xaenox/scribe-bot/internal/models"
	"go.uber.org/zap"
)

// OversizeError is returned when the declared or actual payload exceeds the
// configured maximum. It is raised before any network call when the platform
// declares the size up front.
type OversizeError struct {
	Size    int64
	MaxSize int64
}

func (e *OversizeError) Error() string {
	return fmt.Sprintf("file too large: %.1fMB > %.1fMB",
		float64(e.Size)/(1024*1024), float64(e.MaxSize)/(1024*1024))
}

// UnsupportedFormatError is returned for media the transcription service
// cannot accept.
type UnsupportedFormatError struct {
	MimeType  string
	Extension string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Extension != "" {
		return fmt.Sprintf("unsupported audio format: %s", e.Extension)
	}
	return fmt.Sprintf("unsupported audio format: %s", e.MimeType)
}

// FileResolver turns a platform file reference into a downloadable URL.
type FileResolver interface {
	FileURL(fileID string) (string, error)
}

type telegramResolver struct {
	api   *tgbotapi.BotAPI
	token string
}

func (r *telegramResolver) FileURL(fileID string) (string, error) {
	file, err := r.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to resolve file: %w", err)
	}
	return file.Link(r.token), nil
}

// NewTelegramResolver wraps the bot API as a FileResolver.
func NewTelegramResolver(api *tgbotapi.BotAPI, token string) FileResolver {
	return &telegramResolver{api: api, token: token}
}

var supportedExtensions = map[string]struct{}{
	".ogg": {}, ".oga": {}, ".opus": {}, ".mp3": {}, ".wav": {},
	".m4a": {}, ".aac": {}, ".flac": {}, ".mp4": {},
}

type Fetcher struct {
	resolver  FileResolver
	client    *http.Client
	maxSize   int64
	uploadDir string
	logger    *zap.Logger
}

func New(resolver FileResolver, maxSize int64, uploadDir string, logger *zap.Logger) (*Fetcher, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	return &Fetcher{
		resolver:  resolver,
		client:    &http.Client{Timeout: 2 * time.Minute},
		maxSize:   maxSize,
		uploadDir: uploadDir,
		logger:    logger,
	}, nil
}

// Fetch downloads the message's audio to a temp file and returns its path
// and on-disk size. The caller owns the file and must Cleanup it on every
// exit path.
func (f *Fetcher) Fetch(ctx context.Context, msg *models.AudioMessage) (string, int64, error) {
	// Declared size is checked before touching the network
	if msg.Size > f.maxSize {
		return "", 0, &OversizeError{Size: msg.Size, MaxSize: f.maxSize}
	}

	ext, err := extensionFor(msg)
	if err != nil {
		return "", 0, err
	}

	url, err := f.resolver.FileURL(msg.FileID)
	if err != nil {
		return "", 0, err
	}

	path := filepath.Join(f.uploadDir, "audio_"+uuid.New().String()+ext)

	size, err := f.download(ctx, url, path)
	if err != nil {
		f.Cleanup(path)
		return "", 0, err
	}

	f.logger.Info("Audio file downloaded",
		zap.String("path", path),
		zap.Int64("size", size),
		zap.String("kind", string(msg.Kind)))

	return path, size, nil
}

func (f *Fetcher) download(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to download audio: unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer out.Close()

	// The declared size is client input; re-check what actually arrives
	written, err := io.Copy(out, io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return 0, fmt.Errorf("failed to write audio file: %w", err)
	}
	if written > f.maxSize {
		return 0, &OversizeError{Size: written, MaxSize: f.maxSize}
	}
	if written == 0 {
		return 0, fmt.Errorf("downloaded audio file is empty")
	}

	return written, nil
}

// Cleanup removes a downloaded temp file. Best effort; a missing file is
// not an error.
func (f *Fetcher) Cleanup(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		f.logger.Warn("Failed to delete temp file",
			zap.Error(err),
			zap.String("path", path))
	}
}

// CleanupOld deletes files in the upload dir older than maxAge and returns
// how many were removed. Run periodically to keep stale downloads from
// accumulating after crashes.
func (f *Fetcher) CleanupOld(maxAge time.Duration) int {
	entries, err := os.ReadDir(f.uploadDir)
	if err != nil {
		f.logger.Warn("Failed to read upload dir", zap.Error(err))
		return 0
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(f.uploadDir, entry.Name())); err == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		f.logger.Info("Cleaned up old audio files", zap.Int("count", removed))
	}
	return removed
}

func extensionFor(msg *models.AudioMessage) (string, error) {
	ext := strings.ToLower(filepath.Ext(msg.FileName))
	if ext == "" {
		switch msg.Kind {
		case models.KindVoice:
			ext = ".ogg"
		case models.KindVideoNote:
			ext = ".mp4"
		default:
			ext = extensionFromMime(msg.MimeType)
		}
	}

	if _, ok := supportedExtensions[ext]; !ok {
		return "", &UnsupportedFormatError{MimeType: msg.MimeType, Extension: ext}
	}
	return ext, nil
}

func extensionFromMime(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return ".m4a"
	case "audio/aac":
		return ".aac"
	case "audio/flac", "audio/x-flac":
		return ".flac"
	default:
		return ""
	}
}
