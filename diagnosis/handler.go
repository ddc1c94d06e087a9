package diagnosis

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"medai-backend/qwen"
)

// Handler exposes the intake dialogue over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/diagnosis-chat", h.chat)
}

type chatRequest struct {
	Message string `json:"message"`
	Context []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"context"`
}

func (h *Handler) chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "问题不能为空"})
		return
	}
	history := make([]qwen.Message, 0, len(req.Context))
	for _, m := range req.Context {
		history = append(history, qwen.Text(m.Role, m.Content))
	}
	reply, err := h.svc.Chat(c.Request.Context(), req.Message, history)
	if err != nil {
		log.Printf("[diagnosis][error] chat failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "问诊暂不可用",
			"error":   err.Error(),
		})
		return
	}
	out := gin.H{"success": true, "mode": reply.Mode}
	if reply.Mode == "ask" {
		out["question"] = reply.Question
	} else {
		out["summary_html"] = reply.SummaryHTML
		out["next_steps"] = reply.NextSteps
		out["red_flags"] = reply.RedFlags
	}
	c.JSON(http.StatusOK, out)
}
