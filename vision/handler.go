package vision

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/vision-analyze", h.analyze)
}

type analyzeRequest struct {
	Image string `json:"image"`
	Kind  string `json:"kind"`
	Note  string `json:"note"`
}

func (h *Handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil || !strings.HasPrefix(req.Image, "data:image") {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "请上传有效的图片"})
		return
	}
	result, err := h.svc.Analyze(c.Request.Context(), req.Image, req.Kind, req.Note)
	if err != nil {
		log.Printf("[vision][error] analyze failed: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "图像分析失败，请稍后重试",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"kind":       result.Kind,
		"html":       result.HTML,
		"model_used": result.ModelUsed,
	})
}
