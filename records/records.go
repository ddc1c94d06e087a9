package records

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medai-backend/session"
	"medai-backend/store"
)

// Handler serves per-user health records (archives) and the reports saved
// under them.
type Handler struct {
	db       *store.DB
	sessions session.Store
}

func NewHandler(db *store.DB, sessions session.Store) *Handler {
	return &Handler{db: db, sessions: sessions}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/records", h.list)
	r.POST("/api/records", h.create)
	r.POST("/api/records/activate", h.activate)
	r.PUT("/api/records/:record_id", h.update)
	r.DELETE("/api/records/:record_id", h.remove)
	r.GET("/api/records/:record_id/reports", h.listReports)
	r.POST("/api/records/:record_id/reports", h.addReport)
}

func (h *Handler) requireUser(c *gin.Context) (string, bool) {
	username := session.FromRequest(c, h.sessions)
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "未登录"})
		return "", false
	}
	return username, true
}

func (h *Handler) list(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	users, err := h.db.LoadUsers()
	if err != nil {
		h.fail(c, "load users", err)
		return
	}
	all, err := h.db.LoadRecords()
	if err != nil {
		h.fail(c, "load records", err)
		return
	}
	userRecords := all[username]
	if userRecords == nil {
		userRecords = []*store.Record{}
	}
	active := ""
	if u := users[username]; u != nil {
		active = u.ActiveRecordID
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"records":          userRecords,
		"active_record_id": active,
	})
}

type createRequest struct {
	Name               string   `json:"name"`
	Age                any      `json:"age"`
	Gender             string   `json:"gender"`
	Height             any      `json:"height"`
	Weight             any      `json:"weight"`
	Allergies          []string `json:"allergies"`
	Diagnoses          []string `json:"diagnoses"`
	CurrentMedications []string `json:"current_medications"`
	Notes              string   `json:"notes"`
}

func (h *Handler) create(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "请求格式错误"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "姓名必填"})
		return
	}
	gender := req.Gender
	if gender == "" {
		gender = "unknown"
	}
	rec := &store.Record{
		RecordID:           strings.ReplaceAll(uuid.NewString(), "-", ""),
		Name:               name,
		Age:                req.Age,
		Gender:             gender,
		Height:             req.Height,
		Weight:             req.Weight,
		Allergies:          emptyIfNil(req.Allergies),
		Diagnoses:          emptyIfNil(req.Diagnoses),
		CurrentMedications: emptyIfNil(req.CurrentMedications),
		Notes:              req.Notes,
	}

	all, err := h.db.LoadRecords()
	if err != nil {
		h.fail(c, "load records", err)
		return
	}
	all[username] = append(all[username], rec)
	if err := h.db.SaveRecords(all); err != nil {
		h.fail(c, "save records", err)
		return
	}

	// first record becomes the active one
	users, err := h.db.LoadUsers()
	if err != nil {
		h.fail(c, "load users", err)
		return
	}
	if u := users[username]; u != nil && u.ActiveRecordID == "" {
		u.ActiveRecordID = rec.RecordID
		if err := h.db.SaveUsers(users); err != nil {
			h.fail(c, "save users", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "record": rec})
}

func (h *Handler) activate(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req struct {
		RecordID string `json:"record_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RecordID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "record_id 缺失"})
		return
	}
	all, err := h.db.LoadRecords()
	if err != nil {
		h.fail(c, "load records", err)
		return
	}
	if findRecord(all[username], req.RecordID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "档案不存在"})
		return
	}
	users, err := h.db.LoadUsers()
	if err != nil {
		h.fail(c, "load users", err)
		return
	}
	if u := users[username]; u != nil {
		u.ActiveRecordID = req.RecordID
	}
	if err := h.db.SaveUsers(users); err != nil {
		h.fail(c, "save users", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "active_record_id": req.RecordID})
}

func (h *Handler) update(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	recordID := c.Param("record_id")
	var patch map[string]any
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "请求格式错误"})
		return
	}
	all, err := h.db.LoadRecords()
	if err != nil {
		h.fail(c, "load records", err)
		return
	}
	rec := findRecord(all[username], recordID)
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "档案不存在"})
		return
	}
	applyPatch(rec, patch)
	if err := h.db.SaveRecords(all); err != nil {
		h.fail(c, "save records", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "record": rec})
}

func (h *Handler) remove(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	recordID := c.Param("record_id")
	all, err := h.db.LoadRecords()
	if err != nil {
		h.fail(c, "load records", err)
		return
	}
	userRecords := all[username]
	idx := -1
	for i, r := range userRecords {
		if r.RecordID == recordID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "档案不存在"})
		return
	}
	userRecords = append(userRecords[:idx], userRecords[idx+1:]...)
	all[username] = userRecords
	if err := h.db.SaveRecords(all); err != nil {
		h.fail(c, "save records", err)
		return
	}

	// deleting the active record re-points activation
	users, err := h.db.LoadUsers()
	if err != nil {
		h.fail(c, "load users", err)
		return
	}
	if u := users[username]; u != nil && u.ActiveRecordID == recordID {
		u.ActiveRecordID = ""
		if len(userRecords) > 0 {
			u.ActiveRecordID = userRecords[0].RecordID
		}
		if err := h.db.SaveUsers(users); err != nil {
			h.fail(c, "save users", err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": recordID})
}

func (h *Handler) listReports(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	all, err := h.db.LoadRecords()
	if err != nil {
		h.fail(c, "load records", err)
		return
	}
	rec := findRecord(all[username], c.Param("record_id"))
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "档案不存在"})
		return
	}
	reports := rec.Reports
	if reports == nil {
		reports = []*store.Report{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reports": reports})
}

type reportRequest struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content any    `json:"content"`
}

func (h *Handler) addReport(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req reportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "请求格式错误"})
		return
	}
	all, err := h.db.LoadRecords()
	if err != nil {
		h.fail(c, "load records", err)
		return
	}
	rec := findRecord(all[username], c.Param("record_id"))
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "档案不存在"})
		return
	}
	report := &store.Report{
		ReportID:  strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:      defaultStr(req.Type, "tcm_wang"),
		Title:     defaultStr(req.Title, "中医望诊报告"),
		CreatedAt: store.NowISO(),
		Content:   req.Content,
	}
	// newest first
	rec.Reports = append([]*store.Report{report}, rec.Reports...)
	if err := h.db.SaveRecords(all); err != nil {
		h.fail(c, "save records", err)
		return
	}
	log.Printf("[records] report saved record=%s reports=%d", rec.RecordID, len(rec.Reports))
	c.JSON(http.StatusOK, gin.H{"success": true, "report": report})
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	log.Printf("[records][error] %s: %v", op, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "服务异常"})
}

func findRecord(list []*store.Record, id string) *store.Record {
	for _, r := range list {
		if r.RecordID == id {
			return r
		}
	}
	return nil
}

// Active resolves the record a doctor-side request should work on: an
// explicit record_id wins, otherwise the user's active record.
func Active(db *store.DB, username, recordID string) (*store.Record, map[string][]*store.Record, error) {
	all, err := db.LoadRecords()
	if err != nil {
		return nil, nil, err
	}
	if recordID != "" {
		return findRecord(all[username], recordID), all, nil
	}
	users, err := db.LoadUsers()
	if err != nil {
		return nil, nil, err
	}
	u := users[username]
	if u == nil || u.ActiveRecordID == "" {
		return nil, all, nil
	}
	return findRecord(all[username], u.ActiveRecordID), all, nil
}

func applyPatch(rec *store.Record, patch map[string]any) {
	for key, val := range patch {
		switch key {
		case "name":
			if s, ok := val.(string); ok {
				rec.Name = s
			}
		case "age":
			rec.Age = val
		case "gender":
			if s, ok := val.(string); ok {
				rec.Gender = s
			}
		case "height":
			rec.Height = val
		case "weight":
			rec.Weight = val
		case "allergies":
			rec.Allergies = toStrings(val)
		case "diagnoses":
			rec.Diagnoses = toStrings(val)
		case "current_medications":
			rec.CurrentMedications = toStrings(val)
		case "notes":
			if s, ok := val.(string); ok {
				rec.Notes = s
			}
		}
	}
}

func toStrings(val any) []string {
	items, ok := val.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
