package medication

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler exposes the medication manager. The caller identifies the user
// through an explicit username parameter, matching the mobile client.
type Handler struct {
	mgr *Manager
	ai  *AI
}

func NewHandler(mgr *Manager, ai *AI) *Handler {
	return &Handler{mgr: mgr, ai: ai}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/medications", h.listMedications)
	r.POST("/api/medications", h.addMedication)
	r.PUT("/api/medications/:medication_id", h.updateMedication)
	r.DELETE("/api/medications/:medication_id", h.deleteMedication)
	r.GET("/api/medications/reminders", h.listReminders)
	r.POST("/api/medications/reminders", h.addReminder)
	r.PUT("/api/medications/reminders/:reminder_id", h.updateReminder)
	r.DELETE("/api/medications/reminders/:reminder_id", h.deleteReminder)
	r.GET("/api/medications/today", h.todaySchedule)
	r.GET("/api/medications/intake-records", h.listIntakes)
	r.POST("/api/medications/intake-records", h.recordIntake)
	r.GET("/api/medications/adherence-stats", h.adherenceStats)
	r.POST("/api/medications/ai-analyze", h.aiAnalyze)
	r.POST("/api/medications/recognize-photo", h.recognizePhoto)
}

func missingUsername(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "缺少用户名"})
}

func (h *Handler) listMedications(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		missingUsername(c)
		return
	}
	meds, err := h.mgr.Medications(username, c.Query("status"), c.Query("record_id"))
	if err != nil {
		log.Printf("[medication][error] list: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取用药记录失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "medications": meds, "count": len(meds)})
}

func (h *Handler) addMedication(c *gin.Context) {
	var req struct {
		Username   string     `json:"username"`
		Medication Medication `json:"medication"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		missingUsername(c)
		return
	}
	if strings.TrimSpace(req.Medication.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "缺少药品名称"})
		return
	}
	med, err := h.mgr.AddMedication(req.Username, &req.Medication)
	if err != nil {
		log.Printf("[medication][error] add: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "保存失败"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "medication_id": med.ID, "data": med})
}

func (h *Handler) updateMedication(c *gin.Context) {
	var req struct {
		Username   string         `json:"username"`
		Medication map[string]any `json:"medication"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		missingUsername(c)
		return
	}
	med, err := h.mgr.UpdateMedication(req.Username, c.Param("medication_id"), req.Medication)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "未找到该用药记录"})
		return
	}
	if err != nil {
		log.Printf("[medication][error] update: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "保存失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": med})
}

func (h *Handler) deleteMedication(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		missingUsername(c)
		return
	}
	err := h.mgr.DeleteMedication(username, c.Param("medication_id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "未找到该用药记录"})
		return
	}
	if err != nil {
		log.Printf("[medication][error] delete: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "保存失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) listReminders(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		missingUsername(c)
		return
	}
	rems, err := h.mgr.Reminders(username, c.Query("record_id"))
	if err != nil {
		log.Printf("[medication][error] list reminders: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取提醒列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reminders": rems, "count": len(rems)})
}

func (h *Handler) addReminder(c *gin.Context) {
	var req struct {
		Username string   `json:"username"`
		Reminder Reminder `json:"reminder"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		missingUsername(c)
		return
	}
	rem, err := h.mgr.AddReminder(req.Username, &req.Reminder)
	if err != nil {
		log.Printf("[medication][error] add reminder: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "保存失败"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "reminder_id": rem.ID, "data": rem})
}

func (h *Handler) updateReminder(c *gin.Context) {
	var req struct {
		Username string         `json:"username"`
		Reminder map[string]any `json:"reminder"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		missingUsername(c)
		return
	}
	rem, err := h.mgr.UpdateReminder(req.Username, c.Param("reminder_id"), req.Reminder)
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "未找到该提醒"})
		return
	}
	if err != nil {
		log.Printf("[medication][error] update reminder: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "保存失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": rem})
}

func (h *Handler) deleteReminder(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		missingUsername(c)
		return
	}
	err := h.mgr.DeleteReminder(username, c.Param("reminder_id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "未找到该提醒"})
		return
	}
	if err != nil {
		log.Printf("[medication][error] delete reminder: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "保存失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) todaySchedule(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		missingUsername(c)
		return
	}
	entries, err := h.mgr.TodaySchedule(username, c.Query("record_id"))
	if err != nil {
		log.Printf("[medication][error] today schedule: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取今日用药计划失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"date":     time.Now().Format("2006-01-02"),
		"schedule": entries,
		"count":    len(entries),
	})
}

func (h *Handler) listIntakes(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		missingUsername(c)
		return
	}
	records, err := h.mgr.Intakes(username,
		c.Query("medication_id"), c.Query("start_date"), c.Query("end_date"), c.Query("record_id"))
	if err != nil {
		log.Printf("[medication][error] list intakes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取服药记录失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "records": records, "count": len(records)})
}

func (h *Handler) recordIntake(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Intake   Intake `json:"intake"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		missingUsername(c)
		return
	}
	record, err := h.mgr.RecordIntake(req.Username, &req.Intake)
	if err != nil {
		log.Printf("[medication][error] record intake: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "保存失败"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "record_id": record.ID, "data": record})
}

func (h *Handler) adherenceStats(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		missingUsername(c)
		return
	}
	days := 7
	if v := c.Query("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}
	stats, err := h.mgr.Adherence(username, c.Query("record_id"), days)
	if err != nil {
		log.Printf("[medication][error] adherence: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取用药统计失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"total_medications":    stats.TotalMedications,
		"total_doses_expected": stats.TotalDosesExpected,
		"total_doses_taken":    stats.TotalDosesTaken,
		"adherence_rate":       stats.AdherenceRate,
		"days":                 stats.Days,
	})
}

func (h *Handler) aiAnalyze(c *gin.Context) {
	var req struct {
		Username    string        `json:"username"`
		Medications []*Medication `json:"medications"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		missingUsername(c)
		return
	}
	meds := req.Medications
	if len(meds) == 0 {
		var err error
		meds, err = h.mgr.Medications(req.Username, StatusActive, "")
		if err != nil {
			log.Printf("[medication][error] load for analyze: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取用药记录失败"})
			return
		}
	}
	if len(meds) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"analysis": Analysis{
				Summary:      "当前没有活跃的用药记录",
				Interactions: []any{},
				Warnings:     []any{},
				Suggestions:  []any{},
			},
		})
		return
	}
	analysis, err := h.ai.Analyze(c.Request.Context(), meds)
	if err != nil {
		log.Printf("[medication][error] ai analyze: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "AI分析失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"analysis":             analysis,
		"medications_analyzed": len(meds),
	})
}

func (h *Handler) recognizePhoto(c *gin.Context) {
	var req struct {
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Image == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "缺少图片数据"})
		return
	}
	list, modelUsed, err := h.ai.RecognizePhoto(c.Request.Context(), req.Image)
	if err != nil {
		log.Printf("[medication][error] recognize photo: %v", err)
		// the client falls back to manual entry on an empty list
		c.JSON(http.StatusOK, gin.H{
			"success":         true,
			"medication_list": []RecognizedMedication{},
			"count":           0,
			"message":         "识别失败，请手动填写药品信息",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"medication_list": list,
		"count":           len(list),
		"model_used":      modelUsed,
	})
}
