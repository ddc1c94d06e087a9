package login

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"medai-backend/session"
	"medai-backend/store"
)

// Handler serves registration, login and session introspection.
type Handler struct {
	db       *store.DB
	sessions session.Store
}

func NewHandler(db *store.DB, sessions session.Store) *Handler {
	return &Handler{db: db, sessions: sessions}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.POST("/api/auth/register", h.register)
	r.POST("/api/auth/login", h.login)
	r.POST("/api/auth/logout", h.logout)
	r.GET("/api/auth/me", h.me)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

func (h *Handler) register(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "请求格式错误"})
		return
	}
	username := strings.TrimSpace(req.Username)
	if len(username) < 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "用户名至少3个字符"})
		return
	}
	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "密码至少6位"})
		return
	}
	role := req.Role
	if role != "user" && role != "doctor" {
		role = "user"
	}

	users, err := h.db.LoadUsers()
	if err != nil {
		log.Printf("[login][error] load users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "注册失败"})
		return
	}
	if _, exists := users[username]; exists {
		c.JSON(http.StatusConflict, gin.H{"error": true, "message": "用户名已存在"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[login][error] hash password: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "注册失败"})
		return
	}
	users[username] = &store.User{PasswordHash: string(hash), Role: role}
	if err := h.db.SaveUsers(users); err != nil {
		log.Printf("[login][error] save users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "注册失败"})
		return
	}

	sid := h.sessions.Create(username)
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"username":         username,
		"role":             role,
		"session_id":       sid,
		"active_record_id": "",
	})
}

func (h *Handler) login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "请求格式错误"})
		return
	}
	username := strings.TrimSpace(req.Username)

	users, err := h.db.LoadUsers()
	if err != nil {
		log.Printf("[login][error] load users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "登录失败"})
		return
	}
	user, ok := users[username]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "用户不存在"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "密码错误"})
		return
	}

	sid := h.sessions.Create(username)
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"username":         username,
		"session_id":       sid,
		"active_record_id": user.ActiveRecordID,
	})
}

func (h *Handler) logout(c *gin.Context) {
	if sid := session.Token(c); sid != "" {
		h.sessions.Destroy(sid)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) me(c *gin.Context) {
	username := session.FromRequest(c, h.sessions)
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "未登录"})
		return
	}
	users, err := h.db.LoadUsers()
	if err != nil {
		log.Printf("[login][error] load users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "查询失败"})
		return
	}
	active := ""
	if u := users[username]; u != nil {
		active = u.ActiveRecordID
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"username":         username,
		"active_record_id": active,
	})
}

// IsAdmin reports whether username may moderate the community. The account
// named admin always qualifies, as does any account with the admin role.
func IsAdmin(db *store.DB, username string) bool {
	if username == "" {
		return false
	}
	if strings.EqualFold(username, "admin") {
		return true
	}
	users, err := db.LoadUsers()
	if err != nil {
		return false
	}
	u := users[username]
	return u != nil && u.Role == "admin"
}
