// Package textutil cleans raw model output: markdown stripping, code-fence
// unwrapping and tolerant JSON recovery. All functions are pure.
package textutil

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	headingRe   = regexp.MustCompile(`(?m)^\s*#+\s*`)
	boldRe      = regexp.MustCompile(`\*\*(.*?)\*\*`)
	listMarkRe  = regexp.MustCompile(`(?m)^[\s>\-\*•]+`)
	hrRe        = regexp.MustCompile(`\n[-*_]{3,}\n`)
	backticksRe = regexp.MustCompile("`+")
	jsonTagRe   = regexp.MustCompile(`(?i)^json\s*`)
)

// ToPlainText strips markdown artifacts (headings, bold markers, list and
// blockquote prefixes, horizontal rules, backticks), trims every line and
// collapses runs of blank lines to one. Idempotent.
func ToPlainText(text string) string {
	t := headingRe.ReplaceAllString(text, "")
	t = boldRe.ReplaceAllString(t, "$1")
	t = listMarkRe.ReplaceAllString(t, "")
	t = hrRe.ReplaceAllString(t, "\n")
	t = backticksRe.ReplaceAllString(t, "")

	var out []string
	prevBlank := false
	for _, ln := range strings.Split(t, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			if !prevBlank {
				out = append(out, "")
			}
			prevBlank = true
			continue
		}
		out = append(out, ln)
		prevBlank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// StripCodeFences unwraps text fully enclosed in triple-backtick fences and
// drops an optional leading "json" language tag (case-insensitive). A bare
// leading "json" token is stripped too. No-op on plain text.
func StripCodeFences(text string) string {
	t := strings.TrimSpace(text)
	if strings.HasPrefix(t, "```") && strings.HasSuffix(t, "```") {
		t = strings.Trim(t, "`")
		t = jsonTagRe.ReplaceAllString(t, "")
		t = strings.TrimSpace(t)
	}
	return jsonTagRe.ReplaceAllString(t, "")
}

// ExtractJSON recovers a JSON object from a model reply that may be fenced or
// wrapped in prose. It tries a direct parse of the fence-stripped text, then
// the substring from the first '{' to the last '}'. Returns nil when neither
// parses; it never fails loudly, the caller falls back to plain-text handling.
func ExtractJSON(text string) map[string]any {
	t := StripCodeFences(text)

	var obj map[string]any
	if err := json.Unmarshal([]byte(t), &obj); err == nil {
		return obj
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start == -1 || end <= start {
		return nil
	}
	obj = nil
	if err := json.Unmarshal([]byte(t[start:end+1]), &obj); err == nil {
		return obj
	}
	return nil
}
