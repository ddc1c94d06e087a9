package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"medai-backend/qwen"
)

type fakeAI struct {
	reply       string
	err         error
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

func TestResolveKind(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"drug", KindDrug},
		{"Medicine", KindDrug},
		{"pill", KindDrug},
		{"box", KindDrug},
		{"report", KindReport},
		{"lab", KindReport},
		{"检验单", KindReport},
		{"检查", KindReport},
		{"skin", KindSkin},
		{"auto", KindSkin},
		{"", KindSkin},
		{"随便什么", KindSkin},
	}
	for _, tc := range cases {
		if got := ResolveKind(tc.in); got != tc.want {
			t.Errorf("ResolveKind(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAnalyzeBuildsMultimodalMessage(t *testing.T) {
	ai := &fakeAI{reply: "<h3>药品名称</h3><p>布洛芬</p>"}
	svc := NewService(ai, "qwen-vl-max")

	res, err := svc.Analyze(context.Background(), "data:image/png;base64,AAA", "pill", "饭后服用吗")
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != KindDrug {
		t.Fatalf("kind = %q", res.Kind)
	}
	if res.ModelUsed != "qwen-vl-max" || ai.gotModel != "qwen-vl-max" {
		t.Fatalf("model = %q", ai.gotModel)
	}
	if len(ai.gotMessages) != 2 {
		t.Fatalf("got %d messages", len(ai.gotMessages))
	}
	sys := ai.gotMessages[0]
	if sys.Role != qwen.RoleSystem || !strings.Contains(sys.Content, "临床药师") {
		t.Fatalf("system prompt = %q", sys.Content)
	}
	user := ai.gotMessages[1]
	if len(user.Parts) != 2 {
		t.Fatalf("user parts = %d", len(user.Parts))
	}
	if !strings.Contains(user.Parts[0].Text, "补充说明：饭后服用吗") {
		t.Fatalf("note missing: %q", user.Parts[0].Text)
	}
	if user.Parts[1].ImageURL == nil || user.Parts[1].ImageURL.URL != "data:image/png;base64,AAA" {
		t.Fatalf("image part = %+v", user.Parts[1])
	}
}

func TestAnalyzePromptMatchesKind(t *testing.T) {
	ai := &fakeAI{reply: "ok"}
	svc := NewService(ai, "qwen-vl-max")

	if _, err := svc.Analyze(context.Background(), "data:image/jpeg;base64,BBB", "检验单", ""); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ai.gotMessages[0].Content, "检验科/影像科") {
		t.Fatalf("report prompt not used: %q", ai.gotMessages[0].Content)
	}

	if _, err := svc.Analyze(context.Background(), "data:image/jpeg;base64,BBB", "auto", ""); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(ai.gotMessages[0].Content, "皮肤科") {
		t.Fatalf("skin prompt not used: %q", ai.gotMessages[0].Content)
	}
}

func newTestRouter(ai *fakeAI) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(NewService(ai, "qwen-vl-max")).RegisterRoutes(r)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerRejectsNonImage(t *testing.T) {
	r := newTestRouter(&fakeAI{reply: "ok"})
	for _, body := range []string{
		`{}`,
		`{"image":""}`,
		`{"image":"https://example.com/a.png"}`,
	} {
		w := postJSON(r, "/api/vision-analyze", body)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, w.Code)
		}
		if !strings.Contains(w.Body.String(), "请上传有效的图片") {
			t.Fatalf("body = %s", w.Body.String())
		}
	}
}

func TestHandlerEnvelope(t *testing.T) {
	ai := &fakeAI{reply: "<h3>报告信息</h3>"}
	r := newTestRouter(ai)
	w := postJSON(r, "/api/vision-analyze", `{"image":"data:image/png;base64,AAA","kind":"exam"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["success"] != true || resp["kind"] != "report" || resp["html"] != "<h3>报告信息</h3>" {
		t.Fatalf("resp = %v", resp)
	}
	if resp["model_used"] != "qwen-vl-max" {
		t.Fatalf("model_used = %v", resp["model_used"])
	}
}
