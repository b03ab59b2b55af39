package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/scribe-bot/internal/fetcher"
	"github.com/xaenox/scribe-bot/internal/grammar"
	"github.com/xaenox/scribe-bot/internal/models"
	"github.com/xaenox/scribe-bot/internal/storage"
	"github.com/xaenox/scribe-bot/internal/transcriber"
	"github.com/xaenox/scribe-bot/pkg/config"
	"go.uber.org/zap"
)

const (
	downloadTimeout   = 2 * time.Minute
	transcribeTimeout = 2 * time.Minute
	grammarTimeout    = 90 * time.Second
	statusTimeout     = 15 * time.Second
)

type Bot struct {
	api            *tgbotapi.BotAPI
	fetcher        *fetcher.Fetcher
	transcriber    *transcriber.Client
	grammar        *grammar.Client
	storage        storage.Storage
	whitelist      map[int64]struct{}
	maxFileSize    int64
	pollingTimeout int
	logger         *zap.Logger
}

func New(cfg *config.Config, transcriberClient *transcriber.Client, grammarClient *grammar.Client, store storage.Storage, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	audioFetcher, err := fetcher.New(
		fetcher.NewTelegramResolver(api, cfg.Telegram.Token),
		cfg.Files.MaxFileSize,
		cfg.Files.UploadDir,
		logger,
	)
	if err != nil {
		return nil, err
	}

	var whitelist map[int64]struct{}
	if cfg.Whitelist.Enabled {
		whitelist = make(map[int64]struct{}, len(cfg.Whitelist.UserIDs))
		for _, id := range cfg.Whitelist.UserIDs {
			whitelist[id] = struct{}{}
		}
	}

	return &Bot{
		api:            api,
		fetcher:        audioFetcher,
		transcriber:    transcriberClient,
		grammar:        grammarClient,
		storage:        store,
		whitelist:      whitelist,
		maxFileSize:    cfg.Files.MaxFileSize,
		pollingTimeout: cfg.Telegram.PollingTimeout,
		logger:         logger,
	}, nil
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.pollingTimeout

	updates := b.api.GetUpdatesChan(u)

	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for update := range updates {
		if update.Message == nil {
			continue
		}

		go b.handleMessage(update.Message)
	}

	return nil
}

// Stop shuts down the update channel; in-flight handlers finish on their own.
func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

// CleanupOldFiles removes downloaded audio older than maxAge.
func (b *Bot) CleanupOldFiles(maxAge time.Duration) {
	b.fetcher.CleanupOld(maxAge)
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	if message.From == nil {
		return
	}

	if !b.authorized(message.From.ID) {
		b.sendMessage(message.Chat.ID, "Sorry, this bot is restricted. Contact the administrator for access.")
		b.logger.Warn("Unauthorized user", zap.Int64("user_id", message.From.ID))
		return
	}

	if message.IsCommand() {
		b.handleCommand(message)
		return
	}

	if audioMsg := audioMessageFrom(message); audioMsg != nil {
		b.handleAudio(message, audioMsg)
		return
	}

	b.handleUnsupported(message)
}

func (b *Bot) authorized(userID int64) bool {
	if b.whitelist == nil {
		return true
	}
	_, ok := b.whitelist[userID]
	return ok
}

func (b *Bot) handleCommand(message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "status":
		b.handleStatus(message)
	case "stats":
		b.handleStats(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := fmt.Sprintf(`Welcome to Scribe Bot, %s! 🎤

Send me any voice message, audio file, or video note and I will:
1. Transcribe the speech
2. Check and correct the grammar
3. Reply with both versions plus speaking tips

File size limit: %dMB. Use /help for all commands.`,
		message.From.FirstName, b.maxFileSize/(1024*1024))

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/status - Check bot and service status
/stats - Show your usage statistics

You can send:
- Voice messages
- Audio files (MP3, WAV, M4A, AAC, FLAC, OGG)
- Video notes
- Audio documents

I'll transcribe the speech and correct its grammar!`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleStatus(message *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	transcriptionStatus := "✅ Healthy"
	if err := b.transcriber.Health(ctx); err != nil {
		transcriptionStatus = "❌ Error"
		b.logger.Warn("Transcription health check failed", zap.Error(err))
	}

	grammarStatus := "✅ Healthy"
	if err := b.grammar.Health(ctx); err != nil {
		grammarStatus = "❌ Error"
		b.logger.Warn("Grammar health check failed", zap.Error(err))
	}

	activeUsers, err := b.storage.ActiveUsers(ctx)
	if err != nil {
		b.logger.Error("Failed to count active users", zap.Error(err))
	}

	status := fmt.Sprintf(`📊 Bot Status

🤖 Bot: ✅ Running
🎤 Transcription (%s): %s
📝 Grammar (%s/%s): %s

Max file size: %dMB
Active users: %d`,
		b.transcriber.Model(), transcriptionStatus,
		b.grammar.ProviderName(), b.grammar.ProviderModel(), grammarStatus,
		b.maxFileSize/(1024*1024), activeUsers)

	b.sendMessage(message.Chat.ID, status)
}

func (b *Bot) handleStats(message *tgbotapi.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	stats, err := b.storage.GetStats(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to get usage stats",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID))
		b.sendErrorMessage(message.Chat.ID, "Sorry, I couldn't retrieve your statistics. Please try again later.")
		return
	}

	if stats.MessagesProcessed == 0 && stats.TranscriptionFailures == 0 && stats.GrammarFailures == 0 {
		b.sendMessage(message.Chat.ID, "No statistics yet. Send some audio messages first!")
		return
	}

	text := fmt.Sprintf(`📊 Your Statistics

🎵 Messages processed: %d
🎤 Transcription failures: %d
📝 Grammar fallbacks: %d
🕒 Last activity: %s`,
		stats.MessagesProcessed,
		stats.TranscriptionFailures,
		stats.GrammarFailures,
		stats.LastActivity.Format("2006-01-02 15:04"))

	b.sendMessage(message.Chat.ID, text)
}

func (b *Bot) handleAudio(message *tgbotapi.Message, audioMsg *models.AudioMessage) {
	b.logger.Info("Processing audio message",
		zap.Int64("user_id", audioMsg.UserID),
		zap.String("kind", string(audioMsg.Kind)),
		zap.Int64("declared_size", audioMsg.Size))

	processing := b.sendReply(message.Chat.ID, message.MessageID,
		"🔄 Processing your audio...\nTranscribing speech and checking grammar, this usually takes 10-30 seconds.")

	result, analysis, err := b.process(audioMsg)
	if err != nil {
		b.recordFailure(audioMsg.UserID, storage.StageTranscription)
		b.editOrSend(message.Chat.ID, processing, errorText(err), "")
		b.logger.Warn("Audio processing failed",
			zap.Error(err),
			zap.Int64("user_id", audioMsg.UserID))
		return
	}

	b.recordProcessed(audioMsg.UserID)
	if analysis.Method == models.MethodFallback {
		b.recordFailure(audioMsg.UserID, storage.StageGrammar)
	}

	b.editOrSend(message.Chat.ID, processing, formatResult(result, analysis), "MarkdownV2")
}

// process runs the download, transcription and grammar stages. The temp file
// is deleted on every exit path.
func (b *Bot) process(audioMsg *models.AudioMessage) (*models.TranscriptionResult, *models.GrammarAnalysis, error) {
	downloadCtx, cancelDownload := context.WithTimeout(context.Background(), downloadTimeout)
	defer cancelDownload()

	path, _, err := b.fetcher.Fetch(downloadCtx, audioMsg)
	if err != nil {
		return nil, nil, err
	}
	defer b.fetcher.Cleanup(path)

	transcribeCtx, cancelTranscribe := context.WithTimeout(context.Background(), transcribeTimeout)
	defer cancelTranscribe()

	result, err := b.transcriber.Transcribe(transcribeCtx, path)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(result.Text) == "" {
		return nil, nil, &transcriber.TranscriptionError{Message: "no speech detected in audio"}
	}

	grammarCtx, cancelGrammar := context.WithTimeout(context.Background(), grammarTimeout)
	defer cancelGrammar()

	analysis, err := b.grammar.Check(grammarCtx, result.Text)
	if err != nil {
		// A grammar failure never suppresses a successful transcription
		b.logger.Warn("Grammar check unavailable", zap.Error(err))
		analysis = &models.GrammarAnalysis{
			CorrectedText: result.Text,
			Method:        models.MethodFallback,
		}
	}

	return result, analysis, nil
}

func (b *Bot) handleUnsupported(message *tgbotapi.Message) {
	b.sendMessage(message.Chat.ID, `🚫 I can only process audio content:
- Voice messages
- Audio files (MP3, WAV, M4A, AAC, FLAC, OGG)
- Video notes
- Audio documents

Please send an audio file or use /help for more information.`)
}

// audioMessageFrom picks the audio payload out of a message, or returns nil
// when there is none.
func audioMessageFrom(message *tgbotapi.Message) *models.AudioMessage {
	base := models.AudioMessage{
		ChatID: message.Chat.ID,
		UserID: message.From.ID,
	}

	switch {
	case message.Voice != nil:
		base.Kind = models.KindVoice
		base.FileID = message.Voice.FileID
		base.MimeType = message.Voice.MimeType
		base.Size = int64(message.Voice.FileSize)
	case message.Audio != nil:
		base.Kind = models.KindAudio
		base.FileID = message.Audio.FileID
		base.MimeType = message.Audio.MimeType
		base.FileName = message.Audio.FileName
		base.Size = int64(message.Audio.FileSize)
	case message.VideoNote != nil:
		base.Kind = models.KindVideoNote
		base.FileID = message.VideoNote.FileID
		base.Size = int64(message.VideoNote.FileSize)
	case message.Document != nil && strings.HasPrefix(message.Document.MimeType, "audio"):
		base.Kind = models.KindAudioDocument
		base.FileID = message.Document.FileID
		base.MimeType = message.Document.MimeType
		base.FileName = message.Document.FileName
		base.Size = int64(message.Document.FileSize)
	default:
		return nil
	}

	return &base
}

// errorText maps pipeline errors onto user-facing messages by kind.
func errorText(err error) string {
	var oversize *fetcher.OversizeError
	if errors.As(err, &oversize) {
		return fmt.Sprintf("❌ %s\n\nPlease send a smaller file.", oversize.Error())
	}

	var unsupported *fetcher.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		return "❌ " + unsupported.Error() + "\n\nSupported formats: OGG, MP3, WAV, M4A, AAC, FLAC."
	}

	var transcription *transcriber.TranscriptionError
	if errors.As(err, &transcription) {
		return `❌ Transcription failed.

Suggestions:
- Check that the audio is clear and not corrupted
- Ensure the audio contains speech
- Try again in a few moments`
	}

	return "💥 Something went wrong on our end. Please try again later."
}

func formatResult(result *models.TranscriptionResult, analysis *models.GrammarAnalysis) string {
	var sb strings.Builder

	sb.WriteString("✅ *Audio processed\\!*\n\n")
	sb.WriteString("🎤 *Transcription:*\n_")
	sb.WriteString(escapeMarkdown(result.Text))
	sb.WriteString("_\n\n")

	switch {
	case analysis.Method == models.MethodFallback:
		sb.WriteString("⚠️ *Grammar check unavailable*, transcript shown as is\\.\n\n")
	case analysis.Corrected(result.Text):
		sb.WriteString("📝 *Grammar corrected:*\n_")
		sb.WriteString(escapeMarkdown(analysis.CorrectedText))
		sb.WriteString("_\n\n")
	default:
		sb.WriteString("✨ *Grammar:* Perfect\\! No corrections needed\\.\n\n")
	}

	if len(analysis.Issues) > 0 {
		sb.WriteString("*Issues found:*\n")
		for i, issue := range analysis.Issues {
			line := issue.Issue
			if issue.Explanation != "" {
				line += ": " + issue.Explanation
			}
			sb.WriteString(fmt.Sprintf("%d\\. %s\n", i+1, escapeMarkdown(line)))
		}
		sb.WriteString("\n")
	}

	if len(analysis.Tips) > 0 {
		sb.WriteString("💡 *Speaking tips:*\n")
		for _, tip := range analysis.Tips {
			sb.WriteString("• " + escapeMarkdown(tip) + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("📊 *Details:*\n")
	sb.WriteString("• Language: " + escapeMarkdown(result.Language) + "\n")
	if result.Confidence > 0 {
		sb.WriteString(fmt.Sprintf("• Transcription confidence: %s%%\n",
			escapeMarkdown(fmt.Sprintf("%.0f", result.Confidence*100))))
	}
	if analysis.Method != models.MethodFallback {
		sb.WriteString(fmt.Sprintf("• Corrections: %d \\(confidence %s\\)\n",
			analysis.Improvements,
			escapeMarkdown(fmt.Sprintf("%.2f", analysis.Confidence))))
	}
	sb.WriteString(fmt.Sprintf("• Processing time: %ss\n",
		escapeMarkdown(fmt.Sprintf("%.1f", result.Duration.Seconds()))))

	return sb.String()
}

// escapeMarkdown escapes special characters for MarkdownV2.
func escapeMarkdown(text string) string {
	specialChars := []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}
	escaped := text
	for _, char := range specialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

func (b *Bot) recordProcessed(userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	if err := b.storage.RecordProcessed(ctx, userID); err != nil {
		b.logger.Error("Failed to record processed message",
			zap.Error(err),
			zap.Int64("user_id", userID))
	}
}

func (b *Bot) recordFailure(userID int64, stage string) {
	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	if err := b.storage.RecordFailure(ctx, userID, stage); err != nil {
		b.logger.Error("Failed to record failure",
			zap.Error(err),
			zap.Int64("user_id", userID),
			zap.String("stage", stage))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendErrorMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, "⚠️ "+text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send error message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// sendReply sends a reply message and returns its id, or 0 on failure.
func (b *Bot) sendReply(chatID int64, replyToID int, text string) int {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyToID

	sent, err := b.api.Send(msg)
	if err != nil {
		b.logger.Error("Failed to send processing message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
		return 0
	}
	return sent.MessageID
}

// editOrSend edits the processing message in place, falling back to a fresh
// message when the edit fails.
func (b *Bot) editOrSend(chatID int64, messageID int, text, parseMode string) {
	if messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		edit.ParseMode = parseMode
		if _, err := b.api.Send(edit); err == nil {
			return
		} else {
			b.logger.Warn("Failed to edit processing message, sending new one",
				zap.Error(err),
				zap.Int64("chat_id", chatID))
		}
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send result message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
