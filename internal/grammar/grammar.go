// Package grammar wraps a hosted LLM for grammar correction. One request
// walks a three-state fallback chain: a structured, schema-validated attempt;
// a lenient legacy parse; and a plain fallback that returns the transcript
// untouched. Every branch yields a GrammarAnalysis — the only error the
// caller ever sees is an empty transcript.
package grammar

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/scribe-bot/internal/models"
	"github.com/xaenox/scribe-bot/pkg/retry"
	"go.uber.org/zap"
)

// ErrEmptyTranscript is returned when there is no text to analyze at all.
var ErrEmptyTranscript = errors.New("no transcript text to analyze")

// Provider is a hosted LLM endpoint that turns a prompt into raw text plus
// the upstream finish reason.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, prompt string) (text string, finishReason string, err error)
}

type Client struct {
	provider Provider
	policy   retry.Policy
	validate *validator.Validate
	logger   *zap.Logger
}

func New(provider Provider, policy retry.Policy, logger *zap.Logger) *Client {
	return &Client{
		provider: provider,
		policy:   policy,
		validate: validator.New(),
		logger:   logger,
	}
}

// structuredResponse is the strict shape of a schema-constrained reply.
// Pointer fields distinguish "absent" (take the default) from zero values.
type structuredResponse struct {
	CorrectedText    string         `json:"corrected_text" validate:"required"`
	GrammarIssues    []models.Issue `json:"grammar_issues"`
	SpeakingTips     []string       `json:"speaking_tips"`
	ConfidenceScore  *float64       `json:"confidence_score" validate:"omitempty,gte=0,lte=1"`
	ImprovementsMade *int           `json:"improvements_made" validate:"omitempty,gte=0"`
}

// Check runs the fallback chain for one transcript. Structured parsing is
// preferred; the legacy parse is attempted exactly once; the plain fallback
// always succeeds.
func (c *Client) Check(ctx context.Context, text string) (*models.GrammarAnalysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	raw, finishReason, err := c.complete(ctx, structuredPrompt(text))
	if err != nil {
		c.logger.Warn("Structured grammar call failed, using plain fallback",
			zap.Error(err),
			zap.String("provider", c.provider.Name()))
		return c.plainFallback(text), nil
	}

	if raw == "" {
		// Distinct failure case: the model accepted the request but sent
		// nothing back, usually content filtering
		c.logger.Warn("Empty structured grammar response",
			zap.String("provider", c.provider.Name()),
			zap.String("finish_reason", finishReason))
		return c.legacyAttempt(ctx, text), nil
	}

	if analysis := c.parseStructured(raw); analysis != nil {
		c.logger.Info("Grammar check completed",
			zap.String("method", string(analysis.Method)),
			zap.Int("improvements", analysis.Improvements))
		return analysis, nil
	}

	c.logger.Warn("Structured grammar parse failed, falling back to legacy parsing")
	if analysis := c.legacyParse(raw, text); analysis != nil {
		return analysis, nil
	}
	return c.plainFallback(text), nil
}

// legacyAttempt re-asks the model without the strict schema, once.
func (c *Client) legacyAttempt(ctx context.Context, text string) *models.GrammarAnalysis {
	raw, finishReason, err := c.provider.Complete(ctx, legacyPrompt(text))
	if err != nil || raw == "" {
		c.logger.Warn("Legacy grammar call failed, using plain fallback",
			zap.Error(err),
			zap.String("finish_reason", finishReason))
		return c.plainFallback(text)
	}
	if analysis := c.legacyParse(raw, text); analysis != nil {
		return analysis
	}
	return c.plainFallback(text)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, string, error) {
	var raw, finishReason string
	err := c.policy.Do(ctx, func() error {
		var err error
		raw, finishReason, err = c.provider.Complete(ctx, prompt)
		if err != nil {
			if terminalProviderError(err) {
				return retry.Permanent(err)
			}
			return err
		}
		return nil
	})
	return raw, finishReason, err
}

func (c *Client) parseStructured(raw string) *models.GrammarAnalysis {
	var resp structuredResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		c.logger.Debug("Structured JSON decode failed", zap.Error(err))
		return nil
	}
	if err := c.validate.Struct(&resp); err != nil {
		c.logger.Debug("Structured response validation failed", zap.Error(err))
		return nil
	}

	confidence := 0.95
	if resp.ConfidenceScore != nil {
		confidence = *resp.ConfidenceScore
	}
	improvements := 0
	if resp.ImprovementsMade != nil {
		improvements = *resp.ImprovementsMade
	}

	return &models.GrammarAnalysis{
		CorrectedText: resp.CorrectedText,
		Issues:        resp.GrammarIssues,
		Tips:          resp.SpeakingTips,
		Confidence:    confidence,
		Improvements:  improvements,
		Method:        models.MethodStructured,
	}
}

func (c *Client) plainFallback(text string) *models.GrammarAnalysis {
	return &models.GrammarAnalysis{
		CorrectedText: text,
		Confidence:    0,
		Improvements:  0,
		Method:        models.MethodFallback,
	}
}

// Health probes the provider with a minimal completion.
func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.provider.Complete(ctx, `Reply with the JSON object {"ok": true}.`)
	return err
}

// ProviderName returns the active provider, for status reporting.
func (c *Client) ProviderName() string { return c.provider.Name() }

// ProviderModel returns the active model id, for status reporting.
func (c *Client) ProviderModel() string { return c.provider.Model() }

func terminalProviderError(err error) bool {
	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		return !retryableStatus(openaiErr.HTTPStatusCode)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !retryableStatus(apiErr.StatusCode)
	}
	return false
}

func retryableStatus(status int) bool {
	return status == 429 || status >= 500
}
