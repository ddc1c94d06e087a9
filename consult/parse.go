package consult

import "strings"

// Triage levels ordered by severity. Emergency keywords always win over
// urgent ones regardless of where they appear in the text.
var (
	emergencyKeywords = []string{"胸痛", "呼吸困难", "意识障碍", "大出血", "急性", "严重"}
	urgentKeywords    = []string{"发烧", "持续", "剧烈", "头痛", "腹痛"}
)

const (
	colorEmergency = "#e74c3c"
	colorUrgent    = "#f39c12"
	colorNormal    = "#27ae60"
)

// Urgency is the triage verdict attached to a symptom analysis.
type Urgency struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Color   string `json:"color"`
}

// RiskAssessment is the coarse risk bucket derived from the urgency level.
type RiskAssessment struct {
	RiskLevel string `json:"risk_level"`
	RiskScore int    `json:"risk_score"`
}

// Analysis is the /api/analyze-symptoms response payload.
type Analysis struct {
	Success         bool           `json:"success"`
	DiagnosisAdvice string         `json:"diagnosis_advice"`
	UrgencyLevel    Urgency        `json:"urgency_level"`
	Recommendations []string       `json:"recommendations"`
	RiskAssessment  RiskAssessment `json:"risk_assessment"`
	Source          string         `json:"source"`
}

// classifySymptoms derives the triage level from the PATIENT'S OWN words,
// not from the model output, so a flowery model reply cannot downgrade an
// emergency.
func classifySymptoms(symptoms string) Urgency {
	for _, kw := range emergencyKeywords {
		if strings.Contains(symptoms, kw) {
			return Urgency{Level: "emergency", Message: "症状可能较为严重，建议立即就医", Color: colorEmergency}
		}
	}
	for _, kw := range urgentKeywords {
		if strings.Contains(symptoms, kw) {
			return Urgency{Level: "urgent", Message: "建议尽快就医检查", Color: colorUrgent}
		}
	}
	return Urgency{Level: "normal", Message: "症状相对较轻，可观察并适当治疗", Color: colorNormal}
}

func buildAnalysis(advice, symptoms string) Analysis {
	urgency := classifySymptoms(symptoms)
	risk := RiskAssessment{RiskLevel: "低风险", RiskScore: 15}
	if urgency.Level == "urgent" {
		risk = RiskAssessment{RiskLevel: "中等风险", RiskScore: 30}
	}
	return Analysis{
		Success:         true,
		DiagnosisAdvice: advice,
		UrgencyLevel:    urgency,
		Recommendations: []string{
			"记录症状的发生时间和严重程度",
			"保持充足的休息和睡眠",
			"注意饮食健康，多喝水",
			"如症状持续或加重，请及时就医",
		},
		RiskAssessment: risk,
		Source:         "qwen-api",
	}
}

// Drug is one recommended medication entry.
type Drug struct {
	Name       string `json:"name"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	Indication string `json:"indication"`
}

// DrugAdvice is the /api/drug-recommendation response payload.
type DrugAdvice struct {
	Success          bool     `json:"success"`
	RecommendedDrugs []Drug   `json:"recommended_drugs"`
	DetailedAdvice   string   `json:"detailed_advice"`
	Warnings         []string `json:"warnings"`
	Source           string   `json:"source"`
}

func buildDrugAdvice(advice string) DrugAdvice {
	return DrugAdvice{
		Success: true,
		RecommendedDrugs: []Drug{{
			Name:       "根据AI建议",
			Dosage:     "详见AI分析",
			Frequency:  "按医嘱",
			Indication: "对症治疗",
		}},
		DetailedAdvice: advice,
		Warnings:       []string{"请在医生指导下使用", "注意药物相互作用", "遵循说明书用药"},
		Source:         "qwen-api",
	}
}

// Triage is the /api/emergency-assessment response payload.
type Triage struct {
	UrgencyLevel string `json:"urgency_level"`
	Message      string `json:"message"`
	Action       string `json:"action"`
	Color        string `json:"color"`
}

// parseEmergencyReply grades the assessment text itself: 紧急/立即 beats
// 急迫/尽快, anything else reads as normal.
func parseEmergencyReply(reply string) Triage {
	switch {
	case strings.Contains(reply, "紧急") || strings.Contains(reply, "立即"):
		return Triage{UrgencyLevel: "emergency", Message: "建议立即就医", Action: "请前往急诊科", Color: colorEmergency}
	case strings.Contains(reply, "急迫") || strings.Contains(reply, "尽快"):
		return Triage{UrgencyLevel: "urgent", Message: "建议尽快就医", Action: "请及时预约就诊", Color: colorUrgent}
	default:
		return Triage{UrgencyLevel: "normal", Message: "可以观察症状变化", Action: "注意休息，必要时就医", Color: colorNormal}
	}
}
