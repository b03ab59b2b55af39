package grammar

import (
	"encoding/json"
	"strings"

	"github.com/xaenox/scribe-bot/internal/models"
	"go.uber.org/zap"
)

// legacyParse extracts a GrammarAnalysis from unconstrained model text:
// strip markdown fences, find a JSON object substring, decode it leniently
// accepting historical field-name variants. If no JSON can be recovered the
// whole reply is treated as the corrected text. Returns nil only when the
// reply is effectively empty.
func (c *Client) legacyParse(raw, original string) *models.GrammarAnalysis {
	cleaned := stripFences(raw)

	if obj := jsonObject(cleaned); obj != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(obj), &parsed); err == nil {
			return c.fromLooseJSON(parsed, original)
		}
		c.logger.Debug("Legacy JSON substring did not parse", zap.String("raw", truncate(obj, 200)))
	}

	corrected := cleanPlainReply(cleaned)
	if corrected == "" {
		return nil
	}

	return &models.GrammarAnalysis{
		CorrectedText: corrected,
		Issues: []models.Issue{{
			Issue:       "Analysis unavailable",
			Explanation: "The grammar service reply could not be fully analyzed.",
		}},
		Tips:         []string{"Try speaking more clearly and use complete sentences."},
		Confidence:   0.70,
		Improvements: wordDiff(original, corrected),
		Method:       models.MethodLegacy,
	}
}

func (c *Client) fromLooseJSON(parsed map[string]any, original string) *models.GrammarAnalysis {
	corrected := firstString(parsed, "corrected_text", "correctedtext", "corrected")
	if corrected == "" {
		corrected = original
	}

	return &models.GrammarAnalysis{
		CorrectedText: corrected,
		Issues:        looseIssues(firstValue(parsed, "grammar_issues", "grammarissues", "issues")),
		Tips:          looseTips(firstValue(parsed, "speaking_tips", "speakingtips", "tips")),
		Confidence:    0.90,
		Improvements:  wordDiff(original, corrected),
		Method:        models.MethodLegacy,
	}
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// jsonObject returns the substring from the first '{' to the last '}', or
// "" when no object-shaped span exists.
func jsonObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// cleanPlainReply strips the prefixes and decoration models wrap around a
// bare corrected text.
func cleanPlainReply(s string) string {
	cleaned := strings.TrimSpace(s)

	prefixes := []string{
		"CORRECTED TEXT:",
		"Corrected text:",
		"corrected text:",
		"CORRECTED:",
		"Corrected:",
		"Here is the corrected text:",
		"The corrected text is:",
		"The corrected version is:",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
			break
		}
	}

	if len(cleaned) >= 2 {
		if (cleaned[0] == '"' && cleaned[len(cleaned)-1] == '"') ||
			(cleaned[0] == '\'' && cleaned[len(cleaned)-1] == '\'') {
			cleaned = strings.TrimSpace(cleaned[1 : len(cleaned)-1])
		}
	}

	cleaned = strings.ReplaceAll(cleaned, "**", "")
	cleaned = strings.ReplaceAll(cleaned, "*", "")

	return strings.TrimSpace(cleaned)
}

func firstValue(m map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// looseIssues accepts issues as a single string, a list of strings, or a
// list of {issue, explanation} objects.
func looseIssues(v any) []models.Issue {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []models.Issue{{Issue: val}}
	case []any:
		var issues []models.Issue
		for _, item := range val {
			switch entry := item.(type) {
			case string:
				if entry != "" {
					issues = append(issues, models.Issue{Issue: entry})
				}
			case map[string]any:
				issue := models.Issue{
					Issue:       firstString(entry, "issue", "title"),
					Explanation: firstString(entry, "explanation", "detail"),
				}
				if issue.Issue != "" || issue.Explanation != "" {
					issues = append(issues, issue)
				}
			}
		}
		return issues
	}
	return nil
}

// looseTips accepts tips as a single string, a list of strings, or a list
// of {tip|suggestion} objects.
func looseTips(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []any:
		var tips []string
		for _, item := range val {
			switch entry := item.(type) {
			case string:
				if entry != "" {
					tips = append(tips, entry)
				}
			case map[string]any:
				if tip := firstString(entry, "tip", "suggestion"); tip != "" {
					tips = append(tips, tip)
				}
			}
		}
		return tips
	}
	return nil
}

// wordDiff estimates the number of corrections as the positional word
// mismatches plus the length difference.
func wordDiff(original, corrected string) int {
	if strings.TrimSpace(original) == strings.TrimSpace(corrected) {
		return 0
	}

	origWords := strings.Fields(original)
	corrWords := strings.Fields(corrected)

	changes := len(origWords) - len(corrWords)
	if changes < 0 {
		changes = -changes
	}

	n := len(origWords)
	if len(corrWords) < n {
		n = len(corrWords)
	}
	for i := 0; i < n; i++ {
		if origWords[i] != corrWords[i] {
			changes++
		}
	}
	return changes
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
