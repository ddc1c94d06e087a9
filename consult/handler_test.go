package consult

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
	"medai-backend/session"
	"medai-backend/store"
)

type fakeAI struct {
	reply string

	gotModel    string
	gotMessages []qwen.Message
}

func (f *fakeAI) ChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (qwen.Completion, error) {
	f.gotModel = model
	f.gotMessages = messages
	return qwen.Completion{Text: f.reply, ModelUsed: model}, nil
}

type consultEnv struct {
	r   *gin.Engine
	ai  *fakeAI
	sid string
}

func newConsultEnv(t *testing.T, reply string) *consultEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	users, _ := db.LoadUsers()
	users["pat"] = &store.User{PasswordHash: "x", Role: "user", ActiveRecordID: "r1"}
	db.SaveUsers(users)
	all, _ := db.LoadRecords()
	all["pat"] = []*store.Record{{RecordID: "r1", Name: "张三", Allergies: []string{"青霉素"}}}
	db.SaveRecords(all)

	sessions := session.NewMemoryStore()
	ai := &fakeAI{reply: reply}
	r := gin.New()
	NewHandler(NewService(ai, "qwen-plus", "qwen-vl-max"), db, sessions).RegisterRoutes(r)
	return &consultEnv{r: r, ai: ai, sid: sessions.Create("pat")}
}

func (e *consultEnv) post(path string, body any, withSession bool) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if withSession {
		req.Header.Set("X-Session-Id", e.sid)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeSymptomsEnvelope(t *testing.T) {
	e := newConsultEnv(t, "可能为上呼吸道感染。")
	w := e.post("/api/analyze-symptoms", gin.H{"symptoms": "持续头痛"}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp Analysis
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.UrgencyLevel.Level != "urgent" || resp.UrgencyLevel.Color != colorUrgent {
		t.Fatalf("urgency = %+v", resp.UrgencyLevel)
	}
	if resp.DiagnosisAdvice == "" || resp.Source != "qwen-api" {
		t.Fatalf("envelope = %+v", resp)
	}
	if e.ai.gotModel != "qwen-plus" {
		t.Errorf("model = %q", e.ai.gotModel)
	}
}

func TestAnalyzeSymptomsMergesActiveRecord(t *testing.T) {
	e := newConsultEnv(t, "分析结果")
	w := e.post("/api/analyze-symptoms", gin.H{"symptoms": "流鼻涕", "patient_info": gin.H{"age": 30}}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	user := e.ai.gotMessages[len(e.ai.gotMessages)-1].Content
	if !strings.Contains(user, "青霉素") || !strings.Contains(user, `"age":30`) {
		t.Fatalf("profile not merged: %q", user)
	}
	if strings.Contains(user, "record_id") {
		t.Errorf("record_id leaked into prompt: %q", user)
	}
}

func TestAnalyzeSymptomsRequiresSymptoms(t *testing.T) {
	e := newConsultEnv(t, "")
	if w := e.post("/api/analyze-symptoms", gin.H{}, false); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDrugRecommendation(t *testing.T) {
	e := newConsultEnv(t, "建议对乙酰氨基酚。")
	w := e.post("/api/drug-recommendation", gin.H{"symptoms": "发烧"}, false)
	var resp DrugAdvice
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Success || len(resp.RecommendedDrugs) != 1 || len(resp.Warnings) != 3 {
		t.Fatalf("advice = %+v", resp)
	}
}

func TestHealthConsultationCarriesContext(t *testing.T) {
	e := newConsultEnv(t, "多喝水，注意休息。")
	w := e.post("/api/health-consultation", gin.H{
		"question": "我该怎么办？",
		"context": []gin.H{
			{"role": "user", "content": "我最近总是失眠"},
			{"role": "assistant", "content": "失眠持续多久了？"},
		},
	}, false)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if len(e.ai.gotMessages) != 4 {
		t.Fatalf("got %d messages", len(e.ai.gotMessages))
	}
	if e.ai.gotMessages[1].Content != "我最近总是失眠" || e.ai.gotMessages[2].Role != qwen.RoleAssistant {
		t.Fatalf("context order wrong: %+v", e.ai.gotMessages)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["response"] != "多喝水，注意休息。" {
		t.Fatalf("response = %v", resp)
	}
}

func TestEmergencyAssessmentUsesVisionModel(t *testing.T) {
	e := newConsultEnv(t, "情况紧急，请立即就医。")
	w := e.post("/api/emergency-assessment", gin.H{"symptoms": "胸痛"}, false)
	var resp Triage
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.UrgencyLevel != "emergency" || resp.Action != "请前往急诊科" {
		t.Fatalf("triage = %+v", resp)
	}
	if e.ai.gotModel != "qwen-vl-max" {
		t.Errorf("model = %q", e.ai.gotModel)
	}
}

func TestTranslate(t *testing.T) {
	e := newConsultEnv(t, "**标题**：新的临床研究")
	w := e.post("/api/translate", gin.H{"text": "New clinical study"}, false)
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	// markdown is stripped from the translation
	if resp["translated"] != "标题：新的临床研究" {
		t.Fatalf("translated = %v", resp)
	}
	if w := e.post("/api/translate", gin.H{"text": "  "}, false); w.Code != http.StatusBadRequest {
		t.Fatalf("blank text status = %d", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	e := newConsultEnv(t, "")
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != "healthy" || resp["model"] != "qwen-vl-max" {
		t.Fatalf("health = %v", resp)
	}
}
