package classify

import (
	"fmt"
	"strings"
	"unicode"
)

const promptTemplate = `You are an expert helpdesk classifier.
%s
Ticket: %q
%s
Return ONLY JSON with:
{
  "category": "ACCOUNT|ORDER|BILLING|TECHNICAL|SUBSCRIPTION|OTHER",
  "subcategory": "specific_issue_type",
  "summary": "short summary",
  "response": "helpful short reply"
}
`

const strictSuffix = `
Your previous answer was not valid JSON. Return only the JSON object: no prose, no code fences, double-quoted keys and string values, all four fields present and non-empty.`

// buildPrompt assembles the classification prompt from the cleaned ticket
// text, optional retrieved context, and optional conversation history. The
// strict variant appends a "JSON only" repair instruction.
func buildPrompt(text, contextText, history string, strict bool) string {
	contextBlock := ""
	if contextText != "" {
		contextBlock = "Use these examples as context:\n" + contextText + "\n"
	}

	historyBlock := ""
	if history != "" {
		historyBlock = "\nPrior conversation:\n" + history + "\n"
	}

	prompt := fmt.Sprintf(promptTemplate, contextBlock, cleanText(text), historyBlock)
	if strict {
		prompt += strictSuffix
	}
	return prompt
}

// cleanText straightens smart quotes and drops non-ASCII runes so prompt
// content is stable across ticket sources.
func cleanText(text string) string {
	replacer := strings.NewReplacer("’", "'", "‘", "'", "“", `"`, "”", `"`)
	text = replacer.Replace(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String())
}
