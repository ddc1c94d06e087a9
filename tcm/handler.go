package tcm

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc      *Service
	archives *Archives
}

func NewHandler(svc *Service, archives *Archives) *Handler {
	return &Handler{svc: svc, archives: archives}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/tcm-vision-analyze", h.visionAnalyze)
	r.POST("/api/tcm-inquiry-analyze", h.inquiryAnalyze)
	r.POST("/api/tcm-pulse-analyze", h.pulseAnalyze)
	r.GET("/api/tcm/archives", h.listArchives)
	r.POST("/api/tcm/archives", h.createArchive)
	r.GET("/api/tcm/archives/:archive_id", h.getArchive)
}

func (h *Handler) visionAnalyze(c *gin.Context) {
	var req struct {
		Images    []InspectionImage `json:"images"`
		ArchiveID string            `json:"archive_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求数据不能为空"})
		return
	}
	if len(req.Images) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "图像数据不能为空"})
		return
	}
	result, err := h.svc.VisionAnalyze(c.Request.Context(), req.Images)
	if err != nil {
		log.Printf("[tcm][error] vision analyze: %v", err)
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	if req.ArchiveID != "" {
		if err := h.archives.AppendDiagnosis(req.ArchiveID, "vision", result, ""); err != nil {
			log.Printf("[tcm][warn] save diagnosis to archive %s: %v", req.ArchiveID, err)
		}
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) inquiryAnalyze(c *gin.Context) {
	var req struct {
		PatientInfo PatientInfo `json:"patient_info"`
		Symptoms    []string    `json:"symptoms"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求数据不能为空"})
		return
	}
	if len(req.Symptoms) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "症状信息不能为空"})
		return
	}
	result, err := h.svc.InquiryAnalyze(c.Request.Context(), req.PatientInfo, req.Symptoms)
	if err != nil {
		log.Printf("[tcm][error] inquiry analyze: %v", err)
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) pulseAnalyze(c *gin.Context) {
	var req struct {
		PulseCharacteristics PulseCharacteristics `json:"pulse_characteristics"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求数据不能为空"})
		return
	}
	if req.PulseCharacteristics.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "脉象特征不能为空"})
		return
	}
	result, err := h.svc.PulseAnalyze(c.Request.Context(), req.PulseCharacteristics)
	if err != nil {
		log.Printf("[tcm][error] pulse analyze: %v", err)
		c.JSON(http.StatusOK, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) listArchives(c *gin.Context) {
	list, err := h.archives.List()
	if err != nil {
		log.Printf("[tcm][error] list archives: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取档案列表失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "archives": list})
}

func (h *Handler) createArchive(c *gin.Context) {
	var req struct {
		Name    string `json:"name"`
		Gender  string `json:"gender"`
		Age     any    `json:"age"`
		Contact string `json:"contact"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请求数据不能为空"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "档案名称不能为空"})
		return
	}
	archive, err := h.archives.Create(req.Name, req.Gender, req.Age, req.Contact)
	if err != nil {
		log.Printf("[tcm][error] create archive: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "创建档案失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "archive": archive, "message": "档案创建成功"})
}

func (h *Handler) getArchive(c *gin.Context) {
	archive, err := h.archives.Get(c.Param("archive_id"))
	if err != nil {
		log.Printf("[tcm][error] get archive: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "获取档案详情失败"})
		return
	}
	if archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "档案不存在"})
		return
	}
	var recent *Diagnosis
	if n := len(archive.Diagnoses); n > 0 {
		recent = archive.Diagnoses[n-1]
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"archive": archive,
		"recent_diagnosis": recent,
	})
}
