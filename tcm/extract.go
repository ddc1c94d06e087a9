package tcm

import "strings"

// NoAnalysis is the sentinel returned when no section matches.
const NoAnalysis = "暂无相关分析"

var suggestionFallback = []string{"请咨询专业中医师获得个性化建议"}

var suggestionTriggers = []string{"建议", "调理", "注意", "养生"}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "##") || strings.HasPrefix(line, "**")
}

func isNumbered(line string) bool {
	for _, p := range []string{"1.", "2.", "3."} {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// ExtractSection pulls the paragraph around the first line mentioning any
// of the keywords. Collection stops at the next heading or blank line.
func ExtractSection(content string, keywords []string) string {
	var relevant []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		matched := false
		for _, kw := range keywords {
			if strings.Contains(line, kw) {
				matched = true
				break
			}
		}
		if matched {
			relevant = append(relevant, line)
			continue
		}
		if len(relevant) > 0 && line != "" && !isHeading(line) && !isNumbered(line) {
			relevant = append(relevant, line)
		} else if len(relevant) > 0 && (isHeading(line) || line == "") {
			break
		}
	}
	result := strings.TrimSpace(strings.Join(relevant, " "))
	if result == "" {
		return NoAnalysis
	}
	return result
}

// ExtractSuggestions collects up to five advice lines. Collection starts at
// the first line containing an advice trigger word and ends at a heading.
func ExtractSuggestions(content string) []string {
	var suggestions []string
	inSuggestions := false
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		triggered := false
		for _, kw := range suggestionTriggers {
			if strings.Contains(line, kw) {
				triggered = true
				break
			}
		}
		if triggered {
			inSuggestions = true
			if idx := strings.Index(line, "："); idx >= 0 {
				suggestions = append(suggestions, strings.TrimSpace(line[idx+len("："):]))
			} else {
				suggestions = append(suggestions, line)
			}
			continue
		}
		if !inSuggestions || line == "" {
			continue
		}
		if isHeading(line) {
			break
		}
		suggestions = append(suggestions, strings.TrimLeft(line, "123456789.-• "))
	}
	if len(suggestions) == 0 {
		return append([]string(nil), suggestionFallback...)
	}
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}
