package emr

import (
	"fmt"
	"regexp"
	"strings"
)

// Grounding rule for generated records: no clinical datum may appear in the
// output unless it is traceable to the source brief. Anything the model
// invented (vital sign values, lab results, history) is collapsed into a
// placeholder.

var (
	// The leading group keeps the match from firing inside longer terms
	// such as 上呼吸道感染 or 高血压病史.
	tempValRe  = regexp.MustCompile(`(^|[>（(，。；;、：:\s])体温\s*[:：]?\s*[^，。<\n]*`)
	pulseValRe = regexp.MustCompile(`(^|[>（(，。；;、：:\s])脉搏\s*[:：]?\s*[^，。<\n]*`)
	respValRe  = regexp.MustCompile(`(^|[>（(，。；;、：:\s])呼吸\s*[:：]?\s*[^，。<\n]*`)
	bpValRe    = regexp.MustCompile(`(^|[>（(，。；;、：:\s])血压\s*[:：]?\s*[^，。<\n]*`)

	labResultRe = regexp.MustCompile(`(血常规|CRP|降钙素原|胸部X线|胸片|CT)[^。；;<\n]*?(示|提示|显示|见)[^。；;<\n]*`)
	auxParaRe   = regexp.MustCompile(`<h3>\s*辅助检查\s*</h3>\s*<p>[^<]*</p>`)
)

const safePhysicalExam = `<ul>` +
	`<li>生命体征：待查（体温/脉搏/呼吸/血压）</li>` +
	`<li>一般状况：待查</li>` +
	`<li>呼吸系统/心血管系统/腹部/神经系统：待查</li>` +
	`</ul>`

// sectionSpan locates the body of the <h3>title</h3> section: byte offsets
// of the heading and of the body end (the next <h3> or end of input).
func sectionSpan(html, title string) (headStart, bodyStart, bodyEnd int, ok bool) {
	re := regexp.MustCompile(`<h3>\s*` + regexp.QuoteMeta(title) + `\s*</h3>`)
	loc := re.FindStringIndex(html)
	if loc == nil {
		return 0, 0, 0, false
	}
	bodyEnd = len(html)
	if next := strings.Index(html[loc[1]:], "<h3>"); next >= 0 {
		bodyEnd = loc[1] + next
	}
	return loc[0], loc[1], bodyEnd, true
}

// replaceSectionBody swaps the body of a section for replacement text,
// keeping the heading. Returns html unchanged when the section is absent.
// Splicing by offsets keeps the replacement verbatim; a regexp substitution
// would expand $ sequences inside user text.
func replaceSectionBody(html, title, body string) (string, bool) {
	headStart, _, bodyEnd, ok := sectionSpan(html, title)
	if !ok {
		return html, false
	}
	return html[:headStart] + "<h3>" + title + "</h3>" + body + html[bodyEnd:], true
}

// insertAfterSection places addition right after the full body of the named
// section.
func insertAfterSection(html, title, addition string) (string, bool) {
	_, _, bodyEnd, ok := sectionSpan(html, title)
	if !ok {
		return html, false
	}
	return html[:bodyEnd] + addition + html[bodyEnd:], true
}

// SanitizeHTML normalizes a generated record so it carries no fabricated
// findings. Vital sign values become 待查, result-bearing lab sentences
// become 未完善, and the history sections are rebuilt from the brief alone.
func SanitizeHTML(sourceBrief, html string) string {
	if html == "" {
		return html
	}
	out := html

	out = tempValRe.ReplaceAllString(out, "${1}体温：待查")
	out = pulseValRe.ReplaceAllString(out, "${1}脉搏：待查")
	out = respValRe.ReplaceAllString(out, "${1}呼吸：待查")
	out = bpValRe.ReplaceAllString(out, "${1}血压：待查")

	out = labResultRe.ReplaceAllString(out, "${1}：未完善，建议根据病情完善检查")
	out = auxParaRe.ReplaceAllString(out, "<h3>辅助检查</h3><p>未完善，建议根据病情完善相应检查项目。</p>")

	out, _ = replaceSectionBody(out, "体格检查", safePhysicalExam)

	brief := strings.TrimSpace(sourceBrief)
	safeHPI := "<p>患者主述待补充。</p>"
	if brief != "" {
		safeHPI = fmt.Sprintf("<p>依据当前描述：%s</p><p>更多关键信息（起病诱因、伴随症状、病程演变、用药情况）待补充。</p>", brief)
	}
	if replaced, ok := replaceSectionBody(out, "现病史", safeHPI); ok {
		out = replaced
	} else if inserted, ok := insertAfterSection(out, "主诉", "<h3>现病史</h3>"+safeHPI); ok {
		out = inserted
	} else {
		out = "<h3>现病史</h3>" + safeHPI + out
	}

	for _, title := range []string{"既往史", "过敏史"} {
		if replaced, ok := replaceSectionBody(out, title, "<p>未提及，待补充。</p>"); ok {
			out = replaced
		} else {
			out += "<h3>" + title + "</h3><p>未提及，待补充。</p>"
		}
	}
	return out
}

// SanitizeStrict is the aggressive variant: sections are rebuilt entirely
// from ParseBrief facts, so even well-formed model output is discarded
// unless the brief backs it.
func SanitizeStrict(sourceBrief, html string) string {
	if html == "" {
		return html
	}
	out := html
	brief := strings.ToLower(sourceBrief)

	if strings.Contains(out, "<h3>体格检查</h3>") {
		if !containsAny(brief, "体温", "脉搏", "呼吸", "血压", "肺部", "心脏", "腹部") {
			out, _ = replaceSectionBody(out, "体格检查", "<p>待查（需进行详细的体格检查以评估患者状况）</p>")
		}
	}
	if strings.Contains(out, "<h3>辅助检查</h3>") {
		if !containsAny(brief, "血常规", "尿常规", "胸片", "ct", "b超", "心电图") {
			out, _ = replaceSectionBody(out, "辅助检查", "<p>待完善（建议根据病情需要完善相关检查项目）</p>")
		}
	}

	info := ParseBrief(sourceBrief)
	if strings.Contains(out, "<h3>现病史</h3>") {
		out, _ = replaceSectionBody(out, "现病史", strictHPI(info))
	}
	if strings.Contains(out, "<h3>既往史</h3>") {
		body := "<p>待补充。</p>"
		if info.History != "" {
			body = "<p>" + info.History + "。</p>"
		}
		out, _ = replaceSectionBody(out, "既往史", body)
	}
	if strings.Contains(out, "<h3>过敏史</h3>") {
		body := "<p>待补充。</p>"
		if info.Allergies != "" {
			body = "<p>" + info.Allergies + "。</p>"
		}
		out, _ = replaceSectionBody(out, "过敏史", body)
	}
	return out
}

func strictHPI(info BriefInfo) string {
	symptoms := "待补充"
	if len(info.Symptoms) > 0 {
		symptoms = strings.Join(info.Symptoms, "、")
	}
	var b strings.Builder
	b.WriteString("<p>患者")
	if info.Gender != "" || info.Age > 0 {
		b.WriteString(info.Gender)
		if info.Age > 0 {
			b.WriteString(fmt.Sprintf("%d岁", info.Age))
		}
		b.WriteString("，")
	}
	b.WriteString("主诉：" + symptoms + "。")
	var vitals []string
	if info.Temperature != "" {
		vitals = append(vitals, "体温："+info.Temperature)
	}
	if info.BloodPressure != "" {
		vitals = append(vitals, "血压："+info.BloodPressure)
	}
	if len(vitals) > 0 {
		b.WriteString("生命体征：" + strings.Join(vitals, "、") + "。")
	}
	b.WriteString("</p>")
	return b.String()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
