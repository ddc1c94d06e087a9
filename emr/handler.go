package emr

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medai-backend/records"
	"medai-backend/session"
	"medai-backend/store"
	"medai-backend/stream"
)

// Handler exposes the doctor-side EMR surface: generation, treatment plans
// and the per-record draft context.
type Handler struct {
	svc      *Service
	streamer Streamer
	db       *store.DB
	sessions session.Store
}

func NewHandler(svc *Service, streamer Streamer, db *store.DB, sessions session.Store) *Handler {
	return &Handler{svc: svc, streamer: streamer, db: db, sessions: sessions}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/doctor/generate-emr", h.generateDoctor)
	r.POST("/api/doctor/generate-emr-stream", h.generateStream)
	r.POST("/api/doctor/generate-treatment", h.generateTreatment)
	r.GET("/api/doctor/emr/context", h.contextGet)
	r.POST("/api/doctor/emr/context", h.contextSave)
	r.POST("/api/doctor/emr/context/clear", h.contextClear)
	r.POST("/api/generate-emr", h.generate)
	r.POST("/api/generate-treatment-plans", h.generatePlans)
}

type generateRequest struct {
	Brief       string         `json:"brief"`
	BriefText   string         `json:"brief_text"`
	Profile     map[string]any `json:"patient_profile"`
	AppendMode  bool           `json:"append_mode"`
	ExistingEMR string         `json:"existing_emr"`
	Strict      bool           `json:"strict"`
}

func (h *Handler) generateDoctor(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Brief) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请输入关键信息"})
		return
	}
	html, modelUsed, err := h.svc.Generate(c.Request.Context(), req.Brief, req.Profile, req.Strict)
	if err != nil {
		log.Printf("[emr][error] generate: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "病历生成失败，请稍后重试", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "html": html, "model_used": modelUsed})
}

// generate is the patient-app variant; it adds append mode.
func (h *Handler) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.BriefText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "病情描述不能为空"})
		return
	}
	var (
		html      string
		modelUsed string
		err       error
	)
	if req.AppendMode && req.ExistingEMR != "" {
		html, modelUsed, err = h.svc.GenerateAppend(c.Request.Context(), req.BriefText, req.ExistingEMR, req.Profile)
	} else {
		html, modelUsed, err = h.svc.Generate(c.Request.Context(), req.BriefText, req.Profile, req.Strict)
	}
	if err != nil {
		log.Printf("[emr][error] generate: %v", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "病历生成失败，请稍后重试", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "html": html, "model_used": modelUsed})
}

func (h *Handler) generateStream(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Brief) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请输入关键信息"})
		return
	}
	ch, err := h.svc.StreamGenerate(c.Request.Context(), h.streamer, req.Brief, req.Profile)
	if err != nil {
		log.Printf("[emr][error] generate stream: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "服务异常"})
		return
	}
	stream.PlainChunks(c, ch)
}

type treatmentRequest struct {
	EMR        string         `json:"emr"`
	EMRContent string         `json:"emr_content"`
	Profile    map[string]any `json:"patient_profile"`
	NumPlans   int            `json:"num_plans"`
}

func (h *Handler) generateTreatment(c *gin.Context) {
	var req treatmentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.EMR) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请先提供病历内容"})
		return
	}
	set, err := h.svc.GenerateTreatmentPlans(c.Request.Context(), req.EMR, req.Profile, 3)
	if err != nil {
		log.Printf("[emr][error] treatment plans: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "治疗方案生成失败，请稍后重试", "error": err.Error()})
		return
	}
	h.writePlanSet(c, set)
}

func (h *Handler) generatePlans(c *gin.Context) {
	var req treatmentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.EMRContent == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "病历内容不能为空"})
		return
	}
	set, err := h.svc.GenerateTreatmentPlans(c.Request.Context(), req.EMRContent, req.Profile, req.NumPlans)
	if err != nil {
		log.Printf("[emr][error] treatment plans: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	h.writePlanSet(c, set)
}

func (h *Handler) writePlanSet(c *gin.Context, set PlanSet) {
	resp := gin.H{
		"success":     true,
		"plans":       set.Plans,
		"total_plans": set.TotalPlans,
		"model_used":  set.ModelUsed,
	}
	if set.Note != "" {
		resp["note"] = set.Note
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) requireUser(c *gin.Context) (string, bool) {
	username := session.FromRequest(c, h.sessions)
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "未登录"})
		return "", false
	}
	return username, true
}

func (h *Handler) contextGet(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	rec, _, err := records.Active(h.db, username, c.Query("record_id"))
	if err != nil {
		log.Printf("[emr][error] load context: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "服务异常"})
		return
	}
	if rec == nil || rec.EMRContext == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "context": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "context": rec.EMRContext})
}

type contextRequest struct {
	RecordID string  `json:"record_id"`
	Brief    *string `json:"brief"`
	EMRHTML  *string `json:"emr_html"`
}

func (h *Handler) contextSave(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req contextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "请求格式错误"})
		return
	}
	rec, all, err := records.Active(h.db, username, req.RecordID)
	if err != nil {
		log.Printf("[emr][error] load context: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "服务异常"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "未找到档案或未激活档案"})
		return
	}
	ctx := rec.EMRContext
	if ctx == nil {
		ctx = &store.EMRContext{}
	}
	if req.Brief != nil {
		ctx.Brief = *req.Brief
	}
	if req.EMRHTML != nil {
		ctx.EMRHTML = *req.EMRHTML
	}
	ctx.UpdatedAt = store.NowISO()
	rec.EMRContext = ctx
	if err := h.db.SaveRecords(all); err != nil {
		log.Printf("[emr][error] save context: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "服务异常"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) contextClear(c *gin.Context) {
	username, ok := h.requireUser(c)
	if !ok {
		return
	}
	var req contextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "请求格式错误"})
		return
	}
	rec, all, err := records.Active(h.db, username, req.RecordID)
	if err != nil {
		log.Printf("[emr][error] clear context: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "服务异常"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "未找到档案或未激活档案"})
		return
	}
	rec.EMRContext = nil
	if err := h.db.SaveRecords(all); err != nil {
		log.Printf("[emr][error] save records: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "服务异常"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
