package emr

import (
	"regexp"
	"strconv"
	"strings"
)

// BriefInfo is what the strict sanitizer is allowed to restate: only facts
// literally present in the doctor's brief.
type BriefInfo struct {
	Age           int
	Gender        string
	Symptoms      []string
	Temperature   string
	BloodPressure string
	History       string
	Allergies     string
}

var (
	ageRe  = regexp.MustCompile(`(\d+)\s*岁`)
	tempRe = regexp.MustCompile(`体温[^℃]*?([0-9.]+)\s*℃`)
	bpRe   = regexp.MustCompile(`血压[^0-9]*([0-9/]+)\s*mmhg`)
)

var symptomKeywords = []string{"发热", "咳嗽", "咽痛", "头痛", "腹痛", "胸痛", "气促", "恶心", "呕吐", "腹泻"}

// ParseBrief extracts structured facts from a free-text brief. Symptoms
// keep the keyword list's order, not the order of appearance.
func ParseBrief(brief string) BriefInfo {
	var info BriefInfo
	text := strings.ToLower(brief)

	if m := ageRe.FindStringSubmatch(text); m != nil {
		info.Age, _ = strconv.Atoi(m[1])
	}
	if strings.Contains(text, "女") {
		info.Gender = "女"
	} else if strings.Contains(text, "男") {
		info.Gender = "男"
	}
	for _, kw := range symptomKeywords {
		if strings.Contains(text, kw) {
			info.Symptoms = append(info.Symptoms, kw)
		}
	}
	if strings.Contains(text, "体温") && strings.Contains(text, "℃") {
		if m := tempRe.FindStringSubmatch(text); m != nil {
			info.Temperature = m[1] + "℃"
		}
	}
	if strings.Contains(text, "血压") && strings.Contains(text, "mmhg") {
		if m := bpRe.FindStringSubmatch(text); m != nil {
			info.BloodPressure = m[1]
		}
	}
	if strings.Contains(text, "既往") && (strings.Contains(text, "体健") || strings.Contains(text, "健康")) {
		info.History = "既往体健"
	}
	if strings.Contains(text, "过敏") {
		if strings.Contains(text, "无") || strings.Contains(text, "否认") {
			info.Allergies = "无药物过敏"
		} else {
			info.Allergies = "有药物过敏史"
		}
	}
	return info
}
