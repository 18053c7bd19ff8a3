// Package extract recovers a candidate decision mapping from raw model
// output. Model completions are not guaranteed to be pure JSON: they arrive
// wrapped in prose, single-quoted, truncated mid-object, or followed by
// commentary. Recovery stages are tried in increasing order of leniency so
// well-formed output is never touched by the repair paths.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Stages reported by ExtractionError.
const (
	StageStrict    = "strict"
	StageBraceScan = "brace_scan"
	StageLenient   = "lenient"
)

// ExtractionError carries the raw text and the last stage that failed.
type ExtractionError struct {
	Raw   string
	Stage string
}

func (e *ExtractionError) Error() string {
	return "no parseable structure in model output (stage: " + e.Stage + ")"
}

// Extract attempts to recover a JSON object from raw model text.
//
//  1. Strict parse of the entire text.
//  2. Strict parse of the first balanced brace-delimited region.
//  3. Lenient repair (quote normalization, trailing commas, truncation
//     close), then stages 1-2 again on the repaired text.
func Extract(raw string) (map[string]interface{}, *ExtractionError) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, &ExtractionError{Raw: raw, Stage: StageStrict}
	}

	if m, ok := strictParse(text); ok {
		return m, nil
	}

	if region, found := balancedRegion(text); found {
		if m, ok := strictParse(region); ok {
			return m, nil
		}
	}

	repaired := repair(text)
	if m, ok := strictParse(repaired); ok {
		return m, nil
	}
	if region, found := balancedRegion(repaired); found {
		if m, ok := strictParse(region); ok {
			return m, nil
		}
	}

	return nil, &ExtractionError{Raw: raw, Stage: StageLenient}
}

// strictParse accepts only a JSON object.
func strictParse(text string) (map[string]interface{}, bool) {
	var m map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&m); err != nil || m == nil {
		return nil, false
	}
	// Reject text with trailing non-whitespace: that is the brace scanner's
	// job, and accepting it here would blur the stage boundaries.
	var trailing json.RawMessage
	if err := dec.Decode(&trailing); err == nil {
		return nil, false
	}
	return m, true
}

// balancedRegion returns the first balanced {...} substring, tracking
// nesting depth and skipping braces inside double-quoted strings.
func balancedRegion(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}

	return "", false
}

var (
	smartQuotes = strings.NewReplacer(
		"‘", "'", // left single
		"’", "'", // right single
		"“", `"`, // left double
		"”", `"`, // right double
	)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
)

// repair applies the lenient recovery stage: straighten smart quotes,
// convert single-quoted keys/values to double quotes, drop trailing commas,
// and close a truncated object. Commentary after the last balanced brace is
// handled by the brace scanner on the repaired text.
func repair(text string) string {
	text = smartQuotes.Replace(text)
	text = singleToDouble(text)
	text = trailingComma.ReplaceAllString(text, "$1")
	text = closeTruncated(text)
	return text
}

// singleToDouble rewrites single-quoted JSON strings to double-quoted ones.
// A single quote only opens a string after a structural character ({ , : [)
// and only closes one before a structural character, so apostrophes inside
// words survive.
func singleToDouble(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inDouble := false
	inSingle := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]

		if escaped {
			b.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			b.WriteByte(c)
			escaped = true
			continue
		}

		switch {
		case inDouble:
			if c == '"' {
				inDouble = false
			}
			b.WriteByte(c)
		case inSingle:
			if c == '\'' && nextStructural(text, i+1) {
				b.WriteByte('"')
				inSingle = false
			} else if c == '"' {
				b.WriteString(`\"`)
			} else {
				b.WriteByte(c)
			}
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\'' && prevStructural(text, i-1):
			inSingle = true
			b.WriteByte('"')
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func prevStructural(text string, i int) bool {
	for ; i >= 0; i-- {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[', ',', ':':
			return true
		default:
			return false
		}
	}
	return false
}

func nextStructural(text string, i int) bool {
	for ; i < len(text); i++ {
		switch text[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case '}', ']', ',', ':':
			return true
		default:
			return false
		}
	}
	// End of text counts: a truncated object may end right after a value.
	return true
}

// closeTruncated appends the quotes and braces needed to balance an object
// that was cut off mid-generation. Text that already balances is returned
// unchanged.
func closeTruncated(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return text
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text
				}
			}
		}
	}

	repaired := strings.TrimRight(text, " \t\n\r")
	if inString {
		repaired += `"`
	}
	repaired = strings.TrimSuffix(repaired, ",")
	if strings.HasSuffix(repaired, ":") {
		repaired += ` ""`
	}
	repaired += strings.Repeat("}", depth)
	return repaired
}
