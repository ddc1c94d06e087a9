package emr

import (
	"context"
	"errors"
	"strings"
	"testing"

	"medai-backend/qwen"
)

func TestGenerateSanitizesModelOutput(t *testing.T) {
	ai := &fakeAI{reply: "<h3>主诉</h3><p>发热2天</p>" +
		"<h3>现病史</h3><p>患者自述曾于外院静脉输液治疗。</p>" +
		"<h3>体格检查</h3><p>体温 39.1℃，血压 150/95mmHg</p>"}
	svc := NewService(ai, "qwen-plus")

	brief := "患者男，35岁，发热2天"
	html, modelUsed, err := svc.Generate(context.Background(), brief, map[string]any{"age": 35}, false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if modelUsed != "qwen-plus" {
		t.Errorf("model_used = %q", modelUsed)
	}
	if strings.Contains(html, "39.1") || strings.Contains(html, "150/95") || strings.Contains(html, "静脉输液") {
		t.Fatalf("invented content survived: %s", html)
	}
	if !strings.Contains(html, "依据当前描述："+brief) {
		t.Fatalf("brief not carried into record: %s", html)
	}

	// prompt carries the profile and the brief
	user := ai.gotMessages[len(ai.gotMessages)-1]
	if !strings.Contains(user.Content, brief) || !strings.Contains(user.Content, `"age":35`) {
		t.Errorf("user message = %q", user.Content)
	}
	if ai.gotMessages[0].Role != qwen.RoleSystem {
		t.Errorf("first message role = %q", ai.gotMessages[0].Role)
	}
}

func TestGenerateStrictVariant(t *testing.T) {
	ai := &fakeAI{reply: "<h3>现病史</h3><p>长期饮酒史。</p><h3>既往史</h3><p>糖尿病。</p>"}
	svc := NewService(ai, "qwen-plus")

	html, _, err := svc.Generate(context.Background(), "咳嗽3天", nil, true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if strings.Contains(html, "饮酒") || strings.Contains(html, "糖尿病") {
		t.Fatalf("strict pass kept invented data: %s", html)
	}
	if !strings.Contains(html, "主诉：咳嗽。") {
		t.Fatalf("strict HPI missing: %s", html)
	}
}

func TestGenerateAppendKeepsModelOutput(t *testing.T) {
	ai := &fakeAI{reply: "<h3>主诉</h3><p>合并后的主诉</p>"}
	svc := NewService(ai, "qwen-plus")

	html, _, err := svc.GenerateAppend(context.Background(), "新增：体温恢复正常", "<h3>主诉</h3><p>发热</p>", nil)
	if err != nil {
		t.Fatalf("GenerateAppend: %v", err)
	}
	if html != "<h3>主诉</h3><p>合并后的主诉</p>" {
		t.Fatalf("append output altered: %s", html)
	}
	user := ai.gotMessages[len(ai.gotMessages)-1].Content
	if !strings.Contains(user, "【现有病历内容】") || !strings.Contains(user, "新增：体温恢复正常") {
		t.Errorf("user message = %q", user)
	}
}

func TestGeneratePropagatesError(t *testing.T) {
	ai := &fakeAI{err: errors.New("all transports down")}
	svc := NewService(ai, "qwen-plus")
	if _, _, err := svc.Generate(context.Background(), "发热", nil, false); err == nil {
		t.Fatal("expected error")
	}
}
