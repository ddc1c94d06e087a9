package diagnosis

import (
	"regexp"
	"strings"

	"medai-backend/textutil"
)

var linePrefixRe = regexp.MustCompile(`^\s*(?:\d+>\s*|>\s*)`)

var sectionTitles = map[string]bool{
	"要点":    true,
	"可能诊断":  true,
	"建议":    true,
	"下一步建议": true,
	"需要警惕":  true,
	"体格检查":  true,
	"辅助检查":  true,
	"初步诊断":  true,
	"诊疗计划":  true,
}

// NormalizeSummaryHTML turns a summary that may arrive as plain text or
// loosely formatted markdown into structured HTML. Input that already
// contains block tags is passed through after line cleanup.
func NormalizeSummaryHTML(raw string) string {
	txt := textutil.StripCodeFences(raw)

	cleaned := make([]string, 0, 16)
	for _, ln := range strings.Split(txt, "\n") {
		ln = linePrefixRe.ReplaceAllString(ln, "")
		cleaned = append(cleaned, strings.TrimSpace(ln))
	}
	text := strings.Join(cleaned, "\n")

	if strings.Contains(text, "<h3") || strings.Contains(text, "<p") ||
		strings.Contains(text, "<ul") || strings.Contains(text, "<ol") {
		return text
	}

	var sections []string
	var current []string
	title := ""
	push := func() {
		if title != "" {
			sections = append(sections, "<h3>"+title+"</h3>")
		}
		if len(current) > 0 {
			sections = append(sections, "<p>"+strings.Join(current, "</p><p>")+"</p>")
		}
		title = ""
		current = nil
	}
	for _, ln := range strings.Split(text, "\n") {
		if sectionTitles[ln] {
			push()
			title = ln
		} else if ln != "" {
			current = append(current, ln)
		}
	}
	push()

	if len(sections) == 0 {
		return textutil.ToPlainText(text)
	}
	return strings.Join(sections, "")
}
