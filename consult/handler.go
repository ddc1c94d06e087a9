package consult

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"medai-backend/qwen"
	"medai-backend/records"
	"medai-backend/session"
	"medai-backend/store"
)

// Handler serves the patient-side consultation API.
type Handler struct {
	svc      *Service
	db       *store.DB
	sessions session.Store
}

func NewHandler(svc *Service, db *store.DB, sessions session.Store) *Handler {
	return &Handler{svc: svc, db: db, sessions: sessions}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/analyze-symptoms", h.analyzeSymptoms)
	r.POST("/api/drug-recommendation", h.drugRecommendation)
	r.POST("/api/health-consultation", h.healthConsultation)
	r.POST("/api/emergency-assessment", h.emergencyAssessment)
	r.POST("/api/translate", h.translate)
	r.GET("/api/health", h.health)
}

// mergeActiveRecord folds the caller's active health record into the profile
// map so the model sees allergies, diagnoses and medications without the
// client resending them. Record fields win over client-sent ones; empty
// record fields never erase client data.
func (h *Handler) mergeActiveRecord(c *gin.Context, base map[string]any, overrideID string) map[string]any {
	username := session.FromRequest(c, h.sessions)
	if username == "" {
		return base
	}
	rec, _, err := records.Active(h.db, username, overrideID)
	if err != nil || rec == nil {
		return base
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return base
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return base
	}
	delete(fields, "record_id")
	merged := map[string]any{}
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range fields {
		if v == nil {
			continue
		}
		merged[k] = v
	}
	return merged
}

type analyzeRequest struct {
	Symptoms       string         `json:"symptoms"`
	PatientInfo    map[string]any `json:"patient_info"`
	ActiveRecordID string         `json:"active_record_id"`
}

func (h *Handler) analyzeSymptoms(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Symptoms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "症状描述不能为空"})
		return
	}
	overrideID := req.ActiveRecordID
	if s, ok := req.PatientInfo["active_record_id"].(string); ok && s != "" {
		overrideID = s
	}
	info := h.mergeActiveRecord(c, req.PatientInfo, overrideID)

	result, err := h.svc.AnalyzeSymptoms(c.Request.Context(), req.Symptoms, info)
	if err != nil {
		log.Printf("[consult][error] analyze symptoms: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"error":           true,
			"message":         "AI分析服务暂时不可用",
			"error_detail":    err.Error(),
			"fallback_advice": "请记录症状详情，如症状持续或加重请及时就医",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

type drugRequest struct {
	Symptoms       string         `json:"symptoms"`
	MedicalHistory map[string]any `json:"medical_history"`
	ActiveRecordID string         `json:"active_record_id"`
}

func (h *Handler) drugRecommendation(c *gin.Context) {
	var req drugRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Symptoms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "症状描述不能为空"})
		return
	}
	overrideID := req.ActiveRecordID
	if s, ok := req.MedicalHistory["active_record_id"].(string); ok && overrideID == "" {
		overrideID = s
	}
	history := h.mergeActiveRecord(c, req.MedicalHistory, overrideID)

	result, err := h.svc.DrugRecommendation(c.Request.Context(), req.Symptoms, history)
	if err != nil {
		log.Printf("[consult][error] drug recommendation: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"error":        true,
			"message":      "药物推荐服务暂时不可用",
			"error_detail": err.Error(),
			"fallback_drugs": []Drug{{
				Name:       "对乙酰氨基酚",
				Dosage:     "500mg",
				Frequency:  "每6-8小时一次",
				Indication: "退热止痛",
			}},
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

type consultationRequest struct {
	Question       string `json:"question"`
	Context        []turn `json:"context"`
	ActiveRecordID string `json:"active_record_id"`
}

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *Handler) healthConsultation(c *gin.Context) {
	var req consultationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Question == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "问题不能为空"})
		return
	}

	question := req.Question
	profile := h.mergeActiveRecord(c, nil, req.ActiveRecordID)
	if len(profile) > 0 {
		question += "\n[患者档案] " + jsonText(profile)
	}

	history := make([]qwen.Message, 0, len(req.Context))
	for _, t := range req.Context {
		history = append(history, qwen.Text(t.Role, t.Content))
	}

	reply, modelUsed, err := h.svc.HealthConsultation(c.Request.Context(), question, history)
	if err != nil {
		log.Printf("[consult][error] health consultation: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"error":             true,
			"message":           "咨询服务暂时不可用",
			"error_detail":      err.Error(),
			"fallback_response": "感谢您的咨询。建议您详细记录症状情况，如有需要请及时就医咨询专业医生。",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"response":   reply,
		"source":     "qwen-api",
		"model_used": modelUsed,
	})
}

func (h *Handler) emergencyAssessment(c *gin.Context) {
	var req struct {
		Symptoms string `json:"symptoms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Symptoms == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "症状描述不能为空"})
		return
	}
	result, err := h.svc.EmergencyAssessment(c.Request.Context(), req.Symptoms)
	if err != nil {
		log.Printf("[consult][error] emergency assessment: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"urgency_level": "unknown",
			"message":       "无法评估，建议咨询医生",
			"error_detail":  err.Error(),
			"action":        "如有疑虑请及时就医",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) translate(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "text 不能为空"})
		return
	}
	translated, err := h.svc.Translate(c.Request.Context(), strings.TrimSpace(req.Text))
	if err != nil {
		log.Printf("[consult][error] translate: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "翻译失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "translated": translated})
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "医疗AI后端服务",
		"model":     h.svc.visionModel,
	})
}
