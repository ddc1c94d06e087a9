package records

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"medai-backend/session"
	"medai-backend/store"
)

type env struct {
	r   *gin.Engine
	db  *store.DB
	sid string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	users, _ := db.LoadUsers()
	users["alice"] = &store.User{PasswordHash: "x", Role: "user"}
	db.SaveUsers(users)

	sessions := session.NewMemoryStore()
	r := gin.New()
	NewHandler(db, sessions).RegisterRoutes(r)
	return &env{r: r, db: db, sid: sessions.Create("alice")}
}

func (e *env) do(method, path string, body any) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-Id", e.sid)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func (e *env) createRecord(t *testing.T, name string) string {
	t.Helper()
	w := e.do("POST", "/api/records", gin.H{"name": name, "age": 35, "gender": "male"})
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d body=%s", w.Code, w.Body.String())
	}
	var resp struct {
		Record struct {
			RecordID string `json:"record_id"`
		} `json:"record"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.Record.RecordID
}

func TestUnauthenticated(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest("GET", "/api/records", nil)
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCreateActivatesFirstRecord(t *testing.T) {
	e := newEnv(t)
	first := e.createRecord(t, "张三")
	e.createRecord(t, "李四")

	users, _ := e.db.LoadUsers()
	if users["alice"].ActiveRecordID != first {
		t.Fatalf("active = %q, want first record %q", users["alice"].ActiveRecordID, first)
	}
}

func TestCreateRequiresName(t *testing.T) {
	e := newEnv(t)
	if w := e.do("POST", "/api/records", gin.H{"name": "  "}); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestActivateAndList(t *testing.T) {
	e := newEnv(t)
	e.createRecord(t, "张三")
	second := e.createRecord(t, "李四")

	if w := e.do("POST", "/api/records/activate", gin.H{"record_id": "missing"}); w.Code != http.StatusNotFound {
		t.Fatalf("activate missing status = %d", w.Code)
	}
	if w := e.do("POST", "/api/records/activate", gin.H{"record_id": second}); w.Code != http.StatusOK {
		t.Fatalf("activate status = %d", w.Code)
	}

	w := e.do("GET", "/api/records", nil)
	var resp struct {
		Records        []json.RawMessage `json:"records"`
		ActiveRecordID string            `json:"active_record_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Records) != 2 || resp.ActiveRecordID != second {
		t.Fatalf("list = %d records, active %q", len(resp.Records), resp.ActiveRecordID)
	}
}

func TestUpdateAllowedFieldsOnly(t *testing.T) {
	e := newEnv(t)
	id := e.createRecord(t, "张三")

	w := e.do("PUT", "/api/records/"+id, gin.H{
		"name":      "张三丰",
		"allergies": []string{"青霉素"},
		"record_id": "hijack",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}
	all, _ := e.db.LoadRecords()
	rec := all["alice"][0]
	if rec.Name != "张三丰" || len(rec.Allergies) != 1 {
		t.Fatalf("record after update = %+v", rec)
	}
	if rec.RecordID != id {
		t.Fatalf("record_id changed to %q", rec.RecordID)
	}
}

func TestDeleteReassignsActive(t *testing.T) {
	e := newEnv(t)
	first := e.createRecord(t, "张三")
	second := e.createRecord(t, "李四")

	if w := e.do("DELETE", "/api/records/"+first, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	users, _ := e.db.LoadUsers()
	if users["alice"].ActiveRecordID != second {
		t.Fatalf("active after delete = %q, want %q", users["alice"].ActiveRecordID, second)
	}

	if w := e.do("DELETE", "/api/records/"+second, nil); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	users, _ = e.db.LoadUsers()
	if users["alice"].ActiveRecordID != "" {
		t.Fatalf("active after deleting all = %q", users["alice"].ActiveRecordID)
	}
}

func TestReportsNewestFirst(t *testing.T) {
	e := newEnv(t)
	id := e.createRecord(t, "张三")

	e.do("POST", "/api/records/"+id+"/reports", gin.H{"title": "第一份"})
	e.do("POST", "/api/records/"+id+"/reports", gin.H{"title": "第二份", "type": "tcm_pulse"})

	w := e.do("GET", "/api/records/"+id+"/reports", nil)
	var resp struct {
		Reports []struct {
			Title string `json:"title"`
			Type  string `json:"type"`
		} `json:"reports"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Reports) != 2 {
		t.Fatalf("got %d reports", len(resp.Reports))
	}
	if resp.Reports[0].Title != "第二份" || resp.Reports[0].Type != "tcm_pulse" {
		t.Fatalf("newest report = %+v", resp.Reports[0])
	}
}

func TestActiveResolution(t *testing.T) {
	e := newEnv(t)
	first := e.createRecord(t, "张三")
	second := e.createRecord(t, "李四")

	rec, _, err := Active(e.db, "alice", "")
	if err != nil || rec == nil || rec.RecordID != first {
		t.Fatalf("Active default = %v, %v", rec, err)
	}
	rec, _, err = Active(e.db, "alice", second)
	if err != nil || rec == nil || rec.RecordID != second {
		t.Fatalf("Active override = %v, %v", rec, err)
	}
}
