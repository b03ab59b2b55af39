package bot

import (
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/scribe-bot/internal/fetcher"
	"github.com/xaenox/scribe-bot/internal/models"
	"github.com/xaenox/scribe-bot/internal/transcriber"
)

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain text", "hello world", "hello world"},
		{"dots and bangs", "Hi there. Nice!", "Hi there\\. Nice\\!"},
		{"underscores and stars", "a_b *c*", "a\\_b \\*c\\*"},
		{"backslash first", `a\b.c`, `a\\b\.c`},
		{"brackets", "[link](url)", "\\[link\\]\\(url\\)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, escapeMarkdown(tt.input))
		})
	}
}

func TestAudioMessageFrom(t *testing.T) {
	base := func() *tgbotapi.Message {
		return &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 42},
			From: &tgbotapi.User{ID: 7},
		}
	}

	t.Run("voice", func(t *testing.T) {
		msg := base()
		msg.Voice = &tgbotapi.Voice{FileID: "v1", MimeType: "audio/ogg", FileSize: 1024}

		audio := audioMessageFrom(msg)
		require.NotNil(t, audio)
		assert.Equal(t, models.KindVoice, audio.Kind)
		assert.Equal(t, "v1", audio.FileID)
		assert.Equal(t, int64(42), audio.ChatID)
		assert.Equal(t, int64(7), audio.UserID)
		assert.Equal(t, int64(1024), audio.Size)
	})

	t.Run("audio file", func(t *testing.T) {
		msg := base()
		msg.Audio = &tgbotapi.Audio{FileID: "a1", MimeType: "audio/mpeg", FileName: "song.mp3"}

		audio := audioMessageFrom(msg)
		require.NotNil(t, audio)
		assert.Equal(t, models.KindAudio, audio.Kind)
		assert.Equal(t, "song.mp3", audio.FileName)
	})

	t.Run("video note", func(t *testing.T) {
		msg := base()
		msg.VideoNote = &tgbotapi.VideoNote{FileID: "n1"}

		audio := audioMessageFrom(msg)
		require.NotNil(t, audio)
		assert.Equal(t, models.KindVideoNote, audio.Kind)
	})

	t.Run("audio document", func(t *testing.T) {
		msg := base()
		msg.Document = &tgbotapi.Document{FileID: "d1", MimeType: "audio/flac", FileName: "take.flac"}

		audio := audioMessageFrom(msg)
		require.NotNil(t, audio)
		assert.Equal(t, models.KindAudioDocument, audio.Kind)
	})

	t.Run("non-audio document ignored", func(t *testing.T) {
		msg := base()
		msg.Document = &tgbotapi.Document{FileID: "d2", MimeType: "application/pdf"}

		assert.Nil(t, audioMessageFrom(msg))
	})

	t.Run("text message ignored", func(t *testing.T) {
		msg := base()
		msg.Text = "hello"

		assert.Nil(t, audioMessageFrom(msg))
	})
}

func TestErrorText(t *testing.T) {
	t.Run("oversize", func(t *testing.T) {
		err := &fetcher.OversizeError{Size: 30 << 20, MaxSize: 25 << 20}
		text := errorText(err)
		assert.Contains(t, text, "smaller file")
	})

	t.Run("unsupported format", func(t *testing.T) {
		err := &fetcher.UnsupportedFormatError{Extension: ".xyz"}
		text := errorText(err)
		assert.Contains(t, text, "Supported formats")
	})

	t.Run("transcription", func(t *testing.T) {
		err := &transcriber.TranscriptionError{StatusCode: 500, Message: "boom"}
		text := errorText(err)
		assert.Contains(t, text, "Transcription failed")
	})

	t.Run("unknown", func(t *testing.T) {
		text := errorText(assert.AnError)
		assert.Contains(t, text, "try again later")
	})
}

func TestFormatResult(t *testing.T) {
	result := &models.TranscriptionResult{
		Text:       "i goes to school",
		Language:   "en",
		Confidence: 0.97,
		Duration:   2300 * time.Millisecond,
	}

	t.Run("with corrections", func(t *testing.T) {
		analysis := &models.GrammarAnalysis{
			CorrectedText: "I go to school",
			Issues:        []models.Issue{{Issue: "i goes", Explanation: "subject-verb agreement"}},
			Tips:          []string{"Match the verb to the subject"},
			Confidence:    0.95,
			Improvements:  2,
			Method:        models.MethodStructured,
		}

		text := formatResult(result, analysis)
		assert.Contains(t, text, "i goes to school")
		assert.Contains(t, text, "I go to school")
		assert.Contains(t, text, "Issues found")
		assert.Contains(t, text, "subject\\-verb agreement")
		assert.Contains(t, text, "Speaking tips")
		assert.Contains(t, text, "Corrections: 2")
		assert.Contains(t, text, "97%")
	})

	t.Run("no corrections needed", func(t *testing.T) {
		analysis := &models.GrammarAnalysis{
			CorrectedText: "i goes to school",
			Confidence:    0.95,
			Method:        models.MethodStructured,
		}

		text := formatResult(result, analysis)
		assert.Contains(t, text, "No corrections needed")
		assert.NotContains(t, text, "Grammar corrected")
	})

	t.Run("grammar fallback shows transcript as is", func(t *testing.T) {
		analysis := &models.GrammarAnalysis{
			CorrectedText: result.Text,
			Method:        models.MethodFallback,
		}

		text := formatResult(result, analysis)
		assert.Contains(t, text, "Grammar check unavailable")
		assert.Contains(t, text, "i goes to school")
		assert.NotContains(t, text, "Corrections:")
	})

	t.Run("markdown specials escaped", func(t *testing.T) {
		spiky := &models.TranscriptionResult{
			Text:     "well... it's *fine*",
			Language: "en",
		}
		analysis := &models.GrammarAnalysis{
			CorrectedText: spiky.Text,
			Method:        models.MethodStructured,
		}

		text := formatResult(spiky, analysis)
		assert.Contains(t, text, `well\.\.\. it's \*fine\*`)
	})
}

func TestAuthorized(t *testing.T) {
	t.Run("no whitelist allows everyone", func(t *testing.T) {
		b := &Bot{}
		assert.True(t, b.authorized(123))
	})

	t.Run("whitelist enforced", func(t *testing.T) {
		b := &Bot{whitelist: map[int64]struct{}{7: {}}}
		assert.True(t, b.authorized(7))
		assert.False(t, b.authorized(8))
	})
}

func TestFormatResultEndsWithProcessingTime(t *testing.T) {
	result := &models.TranscriptionResult{Text: "ok", Language: "en", Duration: 1500 * time.Millisecond}
	analysis := &models.GrammarAnalysis{CorrectedText: "ok", Method: models.MethodStructured}

	text := formatResult(result, analysis)
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	assert.Contains(t, lines[len(lines)-1], "Processing time: 1\\.5s")
}
