package emr

import (
	"strings"
	"testing"
)

func TestSanitizeReplacesInventedVitals(t *testing.T) {
	html := "<h3>体格检查</h3><p>体温 38.5℃，脉搏 92次/分，呼吸 20次/分，血压 135/85mmHg</p>"
	out := SanitizeHTML("患者男，35岁，发热2天", html)

	for _, leaked := range []string{"38.5", "92次", "20次", "135/85"} {
		if strings.Contains(out, leaked) {
			t.Errorf("invented vital %q survived: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "生命体征：待查（体温/脉搏/呼吸/血压）") {
		t.Errorf("physical exam placeholder missing: %s", out)
	}
}

func TestSanitizeCollapsesLabResults(t *testing.T) {
	html := "<h3>辅助检查</h3><p>血常规示白细胞计数升高</p>"
	out := SanitizeHTML("", html)
	if strings.Contains(out, "白细胞") {
		t.Errorf("lab result survived: %s", out)
	}
	if !strings.Contains(out, "未完善") {
		t.Errorf("placeholder missing: %s", out)
	}
}

func TestSanitizeKeepsBriefVerbatim(t *testing.T) {
	brief := "患者男，35岁，发热2天"
	html := "<h3>主诉</h3><p>发热</p><h3>现病史</h3><p>患者两天前受凉后出现高热，伴畏寒、乏力，自服布洛芬无效。</p><h3>初步诊断</h3><p>上呼吸道感染，排除高血压危象</p>"
	out := SanitizeHTML(brief, html)

	if !strings.Contains(out, "依据当前描述："+brief) {
		t.Fatalf("brief not restated verbatim: %s", out)
	}
	if strings.Contains(out, "布洛芬") {
		t.Errorf("invented history survived: %s", out)
	}
	// diagnosis terms embedding 呼吸/血压 are not vital-sign mentions
	if !strings.Contains(out, "<h3>初步诊断</h3><p>上呼吸道感染，排除高血压危象</p>") {
		t.Errorf("diagnosis section damaged: %s", out)
	}
}

func TestSanitizeInsertsMissingSections(t *testing.T) {
	out := SanitizeHTML("头痛1天", "<h3>主诉</h3><p>头痛</p>")
	for _, title := range []string{"现病史", "既往史", "过敏史"} {
		if !strings.Contains(out, "<h3>"+title+"</h3>") {
			t.Errorf("section %s missing: %s", title, out)
		}
	}
	// present illness inserted right after the chief complaint
	hpi := strings.Index(out, "<h3>现病史</h3>")
	cc := strings.Index(out, "<h3>主诉</h3>")
	if hpi < cc {
		t.Errorf("section order wrong: %s", out)
	}
}

func TestSanitizeEmptyBrief(t *testing.T) {
	out := SanitizeHTML("   ", "<h3>现病史</h3><p>病程三天。</p>")
	if !strings.Contains(out, "患者主述待补充") {
		t.Fatalf("empty brief placeholder missing: %s", out)
	}
	if SanitizeHTML("x", "") != "" {
		t.Fatal("empty html must pass through")
	}
}

func TestSanitizeIdempotentOnPlaceholders(t *testing.T) {
	brief := "患者女，28岁，咳嗽3天"
	once := SanitizeHTML(brief, "<h3>主诉</h3><p>咳嗽</p><h3>体格检查</h3><p>体温 37.9℃</p>")
	twice := SanitizeHTML(brief, once)
	if once != twice {
		t.Fatalf("not stable:\nonce:  %s\ntwice: %s", once, twice)
	}
}

func TestSanitizeStrictRebuildsFromBrief(t *testing.T) {
	brief := "患者男，35岁，发热2天，体温38.2℃，既往体健，否认药物过敏"
	html := "<h3>现病史</h3><p>患者长期吸烟，一周前接触流感患者。</p>" +
		"<h3>既往史</h3><p>高血压十年。</p>" +
		"<h3>过敏史</h3><p>青霉素过敏。</p>" +
		"<h3>辅助检查</h3><p>CT示双肺斑片影。</p>"
	out := SanitizeStrict(brief, html)

	for _, leaked := range []string{"吸烟", "流感", "高血压", "青霉素", "斑片影"} {
		if strings.Contains(out, leaked) {
			t.Errorf("invented datum %q survived: %s", leaked, out)
		}
	}
	if !strings.Contains(out, "患者男35岁，主诉：发热。") {
		t.Errorf("HPI not rebuilt from brief: %s", out)
	}
	if !strings.Contains(out, "体温：38.2℃") {
		t.Errorf("stated vital dropped: %s", out)
	}
	if !strings.Contains(out, "既往体健") || !strings.Contains(out, "无药物过敏") {
		t.Errorf("stated history dropped: %s", out)
	}
}

func TestSanitizeStrictKeepsProvidedExams(t *testing.T) {
	brief := "发热2天，血常规已查"
	html := "<h3>辅助检查</h3><p>血常规：白细胞11.2</p>"
	out := SanitizeStrict(brief, html)
	if !strings.Contains(out, "白细胞11.2") {
		t.Fatalf("brief-backed exam removed: %s", out)
	}
}

func TestParseBrief(t *testing.T) {
	info := ParseBrief("患者男，35岁，发热、咳嗽2天，体温38.2℃，血压120/80mmHg，既往体健，否认药物过敏")
	if info.Age != 35 || info.Gender != "男" {
		t.Errorf("age/gender = %d/%q", info.Age, info.Gender)
	}
	if len(info.Symptoms) != 2 || info.Symptoms[0] != "发热" || info.Symptoms[1] != "咳嗽" {
		t.Errorf("symptoms = %v", info.Symptoms)
	}
	if info.Temperature != "38.2℃" || info.BloodPressure != "120/80" {
		t.Errorf("vitals = %q / %q", info.Temperature, info.BloodPressure)
	}
	if info.History != "既往体健" || info.Allergies != "无药物过敏" {
		t.Errorf("history/allergies = %q / %q", info.History, info.Allergies)
	}

	prefixed := ParseBrief("发热3天，体温最高达39.1℃")
	if prefixed.Temperature != "39.1℃" {
		t.Errorf("temperature = %q", prefixed.Temperature)
	}

	empty := ParseBrief("最近睡眠不佳")
	if empty.Age != 0 || empty.Gender != "" || len(empty.Symptoms) != 0 {
		t.Errorf("empty brief parsed as %+v", empty)
	}
}
