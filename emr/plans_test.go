package emr

import (
	"context"
	"testing"

	"medai-backend/qwen"
)

type fakeAI struct {
	reply string
	err   error

	gotModel    string
	gotMessages []qwen.Message
}

func (f *fakeAI) ChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (qwen.Completion, error) {
	f.gotModel = model
	f.gotMessages = messages
	if f.err != nil {
		return qwen.Completion{}, f.err
	}
	return qwen.Completion{Text: f.reply, ModelUsed: model}, nil
}

func TestPlansRankedByScore(t *testing.T) {
	ai := &fakeAI{reply: `{"plans":[
		{"name":"A","score":60,"reason":"ra","html":"<h3>治疗目标</h3><p>a</p>"},
		{"name":"B","score":85,"reason":"rb","html":"<h3>治疗目标</h3><p>b</p>"},
		{"name":"C","score":75,"reason":"rc","html":"<h3>治疗目标</h3><p>c</p>"}
	]}`}
	svc := NewService(ai, "qwen-plus")

	set, err := svc.GenerateTreatmentPlans(context.Background(), "<h3>主诉</h3>", nil, 3)
	if err != nil {
		t.Fatalf("GenerateTreatmentPlans: %v", err)
	}
	if set.TotalPlans != 3 || len(set.Plans) != 3 {
		t.Fatalf("total = %d, plans = %d", set.TotalPlans, len(set.Plans))
	}
	var scores []int
	for _, p := range set.Plans {
		scores = append(scores, p.Score)
	}
	if scores[0] != 85 || scores[1] != 75 || scores[2] != 60 {
		t.Fatalf("scores = %v, want [85 75 60]", scores)
	}
	if set.Plans[0].Name != "B" || set.Plans[0].Confidence != 0.85 {
		t.Fatalf("top plan = %+v", set.Plans[0])
	}
}

func TestPlansScoreClampAndConfidence(t *testing.T) {
	ai := &fakeAI{reply: `{"plans":[
		{"name":"hot","score":130,"reason":"r","html":"<h3>治疗目标</h3>"},
		{"name":"cold","score":-5,"reason":"r","html":"<h3>治疗目标</h3>"}
	]}`}
	svc := NewService(ai, "qwen-plus")

	set, err := svc.GenerateTreatmentPlans(context.Background(), "emr", nil, 2)
	if err != nil {
		t.Fatalf("GenerateTreatmentPlans: %v", err)
	}
	if set.Plans[0].Score != 100 || set.Plans[0].Confidence != 1.0 {
		t.Errorf("clamped high = %+v", set.Plans[0])
	}
	if set.Plans[1].Score != 0 || set.Plans[1].Confidence != 0 {
		t.Errorf("clamped low = %+v", set.Plans[1])
	}
}

func TestPlansSkipIncompleteAndTopUp(t *testing.T) {
	// one valid plan plus one missing its html field
	ai := &fakeAI{reply: `{"plans":[
		{"name":"好方案","score":90,"reason":"r","html":"<h3>治疗目标</h3>"},
		{"name":"残缺","score":70,"reason":"r"}
	]}`}
	svc := NewService(ai, "qwen-plus")

	set, err := svc.GenerateTreatmentPlans(context.Background(), "emr", nil, 3)
	if err != nil {
		t.Fatalf("GenerateTreatmentPlans: %v", err)
	}
	if len(set.Plans) != 3 {
		t.Fatalf("got %d plans", len(set.Plans))
	}
	if set.Plans[0].Name != "好方案" {
		t.Fatalf("first plan = %q", set.Plans[0].Name)
	}
	// presets keep their fixed order
	if set.Plans[1].Name != "保守治疗方案" || set.Plans[2].Name != "积极治疗方案" {
		t.Fatalf("top-up plans = %q, %q", set.Plans[1].Name, set.Plans[2].Name)
	}
}

func TestPlansTopUpKeepsDescendingOrder(t *testing.T) {
	// a parsed plan scoring below the presets must not stay in front
	ai := &fakeAI{reply: `{"plans":[
		{"name":"温和方案","score":60,"reason":"r","html":"<h3>治疗目标</h3>"}
	]}`}
	svc := NewService(ai, "qwen-plus")

	set, err := svc.GenerateTreatmentPlans(context.Background(), "emr", nil, 3)
	if err != nil {
		t.Fatalf("GenerateTreatmentPlans: %v", err)
	}
	if len(set.Plans) != 3 {
		t.Fatalf("got %d plans", len(set.Plans))
	}
	for i := 1; i < len(set.Plans); i++ {
		if set.Plans[i].Score > set.Plans[i-1].Score {
			t.Fatalf("plans not descending: %+v", set.Plans)
		}
	}
	if set.Plans[0].Name != "保守治疗方案" || set.Plans[1].Name != "温和方案" {
		t.Fatalf("order = %q, %q", set.Plans[0].Name, set.Plans[1].Name)
	}
}

func TestPlansUnparseableFallsBackToPresets(t *testing.T) {
	ai := &fakeAI{reply: "非常抱歉，我无法输出JSON。"}
	svc := NewService(ai, "qwen-plus")

	set, err := svc.GenerateTreatmentPlans(context.Background(), "emr", nil, 3)
	if err != nil {
		t.Fatalf("GenerateTreatmentPlans: %v", err)
	}
	if set.ModelUsed != "fallback" || set.Note == "" {
		t.Fatalf("fallback not flagged: %+v", set)
	}
	if len(set.Plans) != 3 || set.Plans[0].Name != "保守治疗方案" {
		t.Fatalf("preset plans = %+v", set.Plans)
	}
}

func TestPlansNumPlansClamped(t *testing.T) {
	ai := &fakeAI{reply: `{"plans":[]}`}
	svc := NewService(ai, "qwen-plus")
	set, err := svc.GenerateTreatmentPlans(context.Background(), "emr", nil, 99)
	if err != nil {
		t.Fatalf("GenerateTreatmentPlans: %v", err)
	}
	if len(set.Plans) != 3 {
		t.Fatalf("out-of-range num_plans gave %d plans", len(set.Plans))
	}
}

func TestFormatPlanHTMLFallback(t *testing.T) {
	if got := formatPlanHTML("<h3>治疗目标</h3><p>自定义</p>"); got != "<h3>治疗目标</h3><p>自定义</p>" {
		t.Errorf("well-formed html replaced: %q", got)
	}
	got := formatPlanHTML("纯文本方案")
	if got == "纯文本方案" || len(got) == 0 {
		t.Errorf("skeleton not applied: %q", got)
	}
}
