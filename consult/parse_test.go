package consult

import "testing"

func TestClassifySymptoms(t *testing.T) {
	cases := []struct {
		symptoms string
		want     string
	}{
		{"突发胸痛，出冷汗", "emergency"},
		{"呼吸困难伴口唇发绀", "emergency"},
		{"持续头痛三天", "urgent"},
		{"发烧38度", "urgent"},
		{"轻微流鼻涕", "normal"},
		{"", "normal"},
	}
	for _, tc := range cases {
		if got := classifySymptoms(tc.symptoms); got.Level != tc.want {
			t.Errorf("classifySymptoms(%q).Level = %q, want %q", tc.symptoms, got.Level, tc.want)
		}
	}
}

func TestEmergencyKeywordsWin(t *testing.T) {
	// both keyword classes present: the emergency class decides
	got := classifySymptoms("持续剧烈胸痛")
	if got.Level != "emergency" || got.Color != colorEmergency {
		t.Fatalf("got %+v", got)
	}
}

func TestBuildAnalysisRisk(t *testing.T) {
	urgent := buildAnalysis("advice", "持续腹痛")
	if urgent.RiskAssessment.RiskLevel != "中等风险" || urgent.RiskAssessment.RiskScore != 30 {
		t.Errorf("urgent risk = %+v", urgent.RiskAssessment)
	}
	normal := buildAnalysis("advice", "流鼻涕")
	if normal.RiskAssessment.RiskLevel != "低风险" || normal.RiskAssessment.RiskScore != 15 {
		t.Errorf("normal risk = %+v", normal.RiskAssessment)
	}
	if !normal.Success || normal.DiagnosisAdvice != "advice" || len(normal.Recommendations) == 0 {
		t.Errorf("analysis envelope = %+v", normal)
	}
}

func TestParseEmergencyReply(t *testing.T) {
	cases := []struct {
		reply string
		want  string
	}{
		{"属于紧急情况，请马上处理", "emergency"},
		{"请立即前往医院", "emergency"},
		{"情况急迫，需要处理", "urgent"},
		{"建议尽快到门诊检查", "urgent"},
		{"可以先观察，多休息", "normal"},
	}
	for _, tc := range cases {
		if got := parseEmergencyReply(tc.reply); got.UrgencyLevel != tc.want {
			t.Errorf("parseEmergencyReply(%q) = %q, want %q", tc.reply, got.UrgencyLevel, tc.want)
		}
	}
}

func TestParseEmergencyPrecedence(t *testing.T) {
	got := parseEmergencyReply("情况紧急，请尽快就医")
	if got.UrgencyLevel != "emergency" {
		t.Fatalf("got %+v", got)
	}
}
