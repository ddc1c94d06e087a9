package emr

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"medai-backend/qwen"
	"medai-backend/session"
	"medai-backend/store"
)

type fakeStreamer struct {
	chunks []string
}

func (f *fakeStreamer) StreamChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (<-chan string, error) {
	ch := make(chan string, len(f.chunks))
	for _, c := range f.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

type handlerEnv struct {
	r   *gin.Engine
	db  *store.DB
	sid string
}

func newHandlerEnv(t *testing.T, ai *fakeAI, streamer Streamer) *handlerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	users, _ := db.LoadUsers()
	users["doc"] = &store.User{PasswordHash: "x", Role: "doctor", ActiveRecordID: "r1"}
	db.SaveUsers(users)
	all, _ := db.LoadRecords()
	all["doc"] = []*store.Record{{RecordID: "r1", Name: "张三"}}
	db.SaveRecords(all)

	sessions := session.NewMemoryStore()
	r := gin.New()
	NewHandler(NewService(ai, "qwen-plus"), streamer, db, sessions).RegisterRoutes(r)
	return &handlerEnv{r: r, db: db, sid: sessions.Create("doc")}
}

func (e *handlerEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Id", e.sid)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func TestGenerateEndpointValidation(t *testing.T) {
	e := newHandlerEnv(t, &fakeAI{reply: "<h3>主诉</h3>"}, &fakeStreamer{})
	if w := e.do("POST", "/api/doctor/generate-emr", gin.H{"brief": "  "}); w.Code != http.StatusBadRequest {
		t.Fatalf("blank brief status = %d", w.Code)
	}
	if w := e.do("POST", "/api/generate-emr", gin.H{}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing brief_text status = %d", w.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	e := newHandlerEnv(t, &fakeAI{reply: "<h3>主诉</h3><p>发热2天</p>"}, &fakeStreamer{})
	w := e.do("POST", "/api/doctor/generate-emr", gin.H{"brief": "发热2天"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["success"] != true || resp["model_used"] != "qwen-plus" {
		t.Fatalf("response = %v", resp)
	}
}

func TestGenerateStreamEndpoint(t *testing.T) {
	e := newHandlerEnv(t, &fakeAI{}, &fakeStreamer{chunks: []string{"<h3>", "主诉", "</h3>"}})
	srv := httptest.NewServer(e.r)
	defer srv.Close()

	body := bytes.NewReader([]byte(`{"brief":"发热2天"}`))
	req, _ := http.NewRequest("POST", srv.URL+"/api/doctor/generate-emr-stream", body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Id", e.sid)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if string(raw) != "<h3>主诉</h3>" {
		t.Fatalf("streamed body = %q", raw)
	}
}

func TestEMRContextRoundTrip(t *testing.T) {
	e := newHandlerEnv(t, &fakeAI{}, &fakeStreamer{})

	// unauthenticated
	req := httptest.NewRequest("GET", "/api/doctor/emr/context", nil)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", w.Code)
	}

	// nothing saved yet
	w = e.do("GET", "/api/doctor/emr/context", nil)
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["context"] != nil {
		t.Fatalf("fresh context = %v", resp["context"])
	}

	// save merges field by field
	if w := e.do("POST", "/api/doctor/emr/context", gin.H{"brief": "发热2天"}); w.Code != http.StatusOK {
		t.Fatalf("save status = %d body=%s", w.Code, w.Body.String())
	}
	if w := e.do("POST", "/api/doctor/emr/context", gin.H{"emr_html": "<h3>主诉</h3>"}); w.Code != http.StatusOK {
		t.Fatalf("save status = %d", w.Code)
	}

	w = e.do("GET", "/api/doctor/emr/context", nil)
	var got struct {
		Context struct {
			Brief     string `json:"brief"`
			EMRHTML   string `json:"emr_html"`
			UpdatedAt string `json:"updated_at"`
		} `json:"context"`
	}
	json.Unmarshal(w.Body.Bytes(), &got)
	if got.Context.Brief != "发热2天" || got.Context.EMRHTML != "<h3>主诉</h3>" || got.Context.UpdatedAt == "" {
		t.Fatalf("context = %+v", got.Context)
	}

	// clear removes it
	if w := e.do("POST", "/api/doctor/emr/context/clear", gin.H{}); w.Code != http.StatusOK {
		t.Fatalf("clear status = %d", w.Code)
	}
	w = e.do("GET", "/api/doctor/emr/context", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["context"] != nil {
		t.Fatalf("context after clear = %v", resp["context"])
	}
}

func TestEMRContextUnknownRecord(t *testing.T) {
	e := newHandlerEnv(t, &fakeAI{}, &fakeStreamer{})
	if w := e.do("POST", "/api/doctor/emr/context", gin.H{"record_id": "missing", "brief": "x"}); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}
