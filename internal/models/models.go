package models

import "time"

// AudioKind identifies which Telegram media type carried the audio.
type AudioKind string

const (
	KindVoice         AudioKind = "voice"
	KindAudio         AudioKind = "audio"
	KindVideoNote     AudioKind = "video_note"
	KindAudioDocument AudioKind = "audio_document"
)

// AudioMessage describes a single inbound media item. It lives for the
// duration of one request: created when an update arrives, discarded after
// the reply is sent and the downloaded temp file is deleted.
type AudioMessage struct {
	ChatID   int64
	UserID   int64
	FileID   string
	Kind     AudioKind
	MimeType string
	FileName string
	Size     int64
}

// TranscriptionResult holds the speech-to-text output for one AudioMessage.
// Immutable after creation.
type TranscriptionResult struct {
	Text       string
	Language   string
	Confidence float64
	Duration   time.Duration
}

// AnalysisMethod tags which parsing strategy produced a GrammarAnalysis.
type AnalysisMethod string

const (
	MethodStructured AnalysisMethod = "structured"
	MethodLegacy     AnalysisMethod = "legacy"
	MethodFallback   AnalysisMethod = "fallback"
)

// Issue is a single grammar problem found in the transcript.
type Issue struct {
	Issue       string `json:"issue"`
	Explanation string `json:"explanation"`
}

// GrammarAnalysis is the outcome of the grammar-correction stage.
// Invariants: Confidence in [0,1], Improvements >= 0. Every fallback branch
// produces one of these; Method records which branch it was.
type GrammarAnalysis struct {
	CorrectedText string
	Issues        []Issue
	Tips          []string
	Confidence    float64
	Improvements  int
	Method        AnalysisMethod
}

// Corrected reports whether the corrected text differs from the original.
func (a *GrammarAnalysis) Corrected(original string) bool {
	return a != nil && a.CorrectedText != "" && a.CorrectedText != original
}

// UsageStats are per-user running counters backing the /stats command.
// With the in-memory store they reset on process restart.
type UsageStats struct {
	UserID                int64     `json:"user_id"`
	MessagesProcessed     int64     `json:"messages_processed"`
	TranscriptionFailures int64     `json:"transcription_failures"`
	GrammarFailures       int64     `json:"grammar_failures"`
	LastActivity          time.Time `json:"last_activity"`
}
