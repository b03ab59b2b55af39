package grammar

import "fmt"

const systemPrompt = "You are a professional grammar expert. Always respond with valid JSON."

// grammarSchema is embedded verbatim into the structured prompt so the model
// is constrained to the exact response shape the parser expects.
const grammarSchema = `{
  "type": "object",
  "properties": {
    "corrected_text": {
      "type": "string",
      "description": "The grammatically corrected version of the input text"
    },
    "grammar_issues": {
      "type": "array",
      "description": "List of grammar, spelling, and punctuation issues found",
      "items": {
        "type": "object",
        "properties": {
          "issue": {"type": "string", "description": "Brief description of the grammar issue"},
          "explanation": {"type": "string", "description": "Detailed explanation of why this is an issue and how to fix it"}
        },
        "required": ["issue", "explanation"]
      }
    },
    "speaking_tips": {
      "type": "array",
      "description": "List of specific suggestions for improving speaking and communication skills",
      "items": {"type": "string"}
    },
    "confidence_score": {
      "type": "number",
      "description": "Confidence level of the grammar corrections (0.0 to 1.0)"
    },
    "improvements_made": {
      "type": "integer",
      "description": "Number of grammar improvements made to the original text"
    }
  },
  "required": ["corrected_text", "grammar_issues", "speaking_tips", "confidence_score", "improvements_made"]
}`

func structuredPrompt(text string) string {
	return fmt.Sprintf(`You are a professional editor and grammar expert. Analyze the provided text and return a comprehensive grammar analysis.

Your task is to:
1. Correct all grammar, spelling, punctuation, and clarity issues while preserving the original meaning and tone
2. Identify specific grammar mistakes with detailed explanations
3. Provide practical speaking improvement suggestions
4. Assess the quality of your corrections with a confidence score

RULES:
- Preserve the original meaning and intent completely
- Maintain the original tone (formal/informal)
- Fix grammar, spelling, punctuation, and word choice errors
- Improve clarity and flow where appropriate
- If the text is already perfect, acknowledge this but still provide general speaking tips
- Do not add new information or change the core message
- Count the actual number of improvements made

CONTEXT: This text is transcribed speech. Adjust the correction style accordingly.

TEXT TO ANALYZE:
"%s"

You MUST respond with valid JSON matching this exact schema:
%s

Respond ONLY with the JSON object, no additional text.`, text, grammarSchema)
}

func legacyPrompt(text string) string {
	return fmt.Sprintf(`You are a professional editor and grammar expert. Your task is to correct grammar, spelling, punctuation, and improve clarity while preserving the original meaning and tone. Additionally, you will provide feedback on grammar mistakes and speaking improvement suggestions.

RULES:
1. First, provide the corrected text in a clear, formatted section
2. Then explain any grammar, spelling, or punctuation mistakes you found
3. Offer specific suggestions for improving speaking and communication skills
4. Preserve the original meaning and intent in your corrections
5. Maintain the original tone (formal/informal)
6. Fix grammar, spelling, punctuation, and word choice errors
7. Improve clarity and flow where needed
8. If the text is already correct, acknowledge this and still provide general speaking tips
9. Do not add new information or change the core message

You MUST respond with valid JSON in this exact format:
{
  "corrected_text": "The grammatically corrected version of the text",
  "grammar_issues": [
    {
      "issue": "Issue title",
      "explanation": "Detailed explanation of the grammar issue"
    }
  ],
  "speaking_tips": ["List of specific suggestions for improving speaking and communication"]
}

TEXT TO CORRECT:
"%s"

Respond ONLY with the JSON object, no additional text.`, text)
}
