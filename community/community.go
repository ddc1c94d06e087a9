// Package community implements the patient community: posts with tags and
// images, comments, like and bookmark toggles, a trending ranking, and
// image upload for post attachments.
package community

import (
	"encoding/base64"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"medai-backend/login"
	"medai-backend/session"
	"medai-backend/store"
)

const (
	maxPostContent    = 2000
	maxCommentContent = 1000
	maxTags           = 5
	maxImages         = 6
	commentPreview    = 20
)

type Handler struct {
	db       *store.DB
	sessions session.Store
}

func NewHandler(db *store.DB, sessions session.Store) *Handler {
	return &Handler{db: db, sessions: sessions}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/api/community/posts", h.list)
	r.POST("/api/community/posts", h.create)
	r.GET("/api/community/trending", h.trending)
	r.GET("/api/community/posts/:post_id/comments", h.listComments)
	r.POST("/api/community/posts/:post_id/comments", h.createComment)
	r.POST("/api/community/posts/:post_id/like", h.toggleLike)
	r.POST("/api/community/posts/:post_id/bookmark", h.toggleBookmark)
	r.POST("/api/community/posts/:post_id/pin", h.togglePin)
	r.DELETE("/api/community/posts/:post_id", h.delete)
	r.POST("/api/community/upload", h.upload)
}

func (h *Handler) username(c *gin.Context) string {
	return session.FromRequest(c, h.sessions)
}

func findPost(posts []*store.Post, id string) *store.Post {
	for _, p := range posts {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// sortPosts orders pinned posts first, newest first within each group.
func sortPosts(posts []*store.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		if posts[i].Pinned != posts[j].Pinned {
			return posts[i].Pinned
		}
		return posts[i].CreatedAt > posts[j].CreatedAt
	})
}

func queryInt(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (h *Handler) list(c *gin.Context) {
	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", 10)
	tag := strings.TrimSpace(c.Query("tag"))
	search := strings.TrimSpace(c.Query("search"))

	all, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "加载失败"})
		return
	}
	posts := append([]*store.Post(nil), all...)
	sortPosts(posts)

	if tag != "" {
		filtered := posts[:0]
		for _, p := range posts {
			if contains(p.Tags, tag) {
				filtered = append(filtered, p)
			}
		}
		posts = filtered
	}
	if search != "" {
		needle := strings.ToLower(search)
		filtered := posts[:0]
		for _, p := range posts {
			if strings.Contains(strings.ToLower(p.Content), needle) ||
				strings.Contains(strings.ToLower(p.Author), needle) {
				filtered = append(filtered, p)
			}
		}
		posts = filtered
	}

	start := offset
	if start > len(posts) {
		start = len(posts)
	}
	end := start + limit
	if end > len(posts) {
		end = len(posts)
	}

	username := h.username(c)
	items := make([]gin.H, 0, end-start)
	for _, p := range posts[start:end] {
		comments := p.Comments
		if len(comments) > commentPreview {
			comments = comments[:commentPreview]
		}
		if comments == nil {
			comments = []*store.Comment{}
		}
		items = append(items, gin.H{
			"id":             p.ID,
			"author":         p.Author,
			"content":        p.Content,
			"created_at":     p.CreatedAt,
			"like_count":     len(p.Likes),
			"liked":          username != "" && contains(p.Likes, username),
			"bookmark_count": len(p.Bookmarks),
			"bookmarked":     username != "" && contains(p.Bookmarks, username),
			"comments":       comments,
			"tags":           p.Tags,
			"images":         p.Images,
			"pinned":         p.Pinned,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"items":    items,
		"has_more": offset+limit < len(posts),
	})
}

// Heat scores a post for the trending ranking. Comments weigh more than
// likes, images and pinning add flat bonuses, and age decays the score on
// a 24 hour scale.
func Heat(p *store.Post, now time.Time) float64 {
	base := float64(len(p.Likes)*2 + len(p.Comments)*3)
	if len(p.Images) > 0 {
		base += 5
	}
	if p.Pinned {
		base += 10
	}
	ageHours := 0.0
	if created, err := store.ParseISO(p.CreatedAt); err == nil {
		if d := now.Sub(created).Hours(); d > 0 {
			ageHours = d
		}
	}
	decay := 1.0 / (1.0 + ageHours/24.0)
	return math.Round(base*decay*1e6) / 1e6
}

func (h *Handler) trending(c *gin.Context) {
	limit := queryInt(c, "limit", 8)

	posts, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "加载热度排行失败"})
		return
	}
	now := time.Now().UTC()
	type scored struct {
		heat float64
		post *store.Post
	}
	ranked := make([]scored, 0, len(posts))
	for _, p := range posts {
		ranked = append(ranked, scored{heat: Heat(p, now), post: p})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].heat > ranked[j].heat })
	if limit < len(ranked) {
		ranked = ranked[:limit]
	}

	items := make([]gin.H, 0, len(ranked))
	for idx, s := range ranked {
		content := []rune(s.post.Content)
		if len(content) > 120 {
			content = content[:120]
		}
		items = append(items, gin.H{
			"rank":          idx + 1,
			"id":            s.post.ID,
			"author":        s.post.Author,
			"content":       string(content),
			"created_at":    s.post.CreatedAt,
			"like_count":    len(s.post.Likes),
			"comment_count": len(s.post.Comments),
			"tags":          s.post.Tags,
			"pinned":        s.post.Pinned,
			"heat":          s.heat,
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": items})
}

func (h *Handler) create(c *gin.Context) {
	username := h.username(c)
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "请先登录"})
		return
	}
	var req struct {
		Content string   `json:"content"`
		Tags    []string `json:"tags"`
		Images  []string `json:"images"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "内容不能为空"})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "内容不能为空"})
		return
	}
	if r := []rune(content); len(r) > maxPostContent {
		content = string(r[:maxPostContent])
	}
	tags := req.Tags
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	if tags == nil {
		tags = []string{}
	}
	images := req.Images
	if len(images) > maxImages {
		images = images[:maxImages]
	}
	if images == nil {
		images = []string{}
	}

	posts, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "发布失败"})
		return
	}
	post := &store.Post{
		ID:        newID(),
		Author:    username,
		Content:   content,
		CreatedAt: store.NowISO(),
		Likes:     []string{},
		Comments:  []*store.Comment{},
		Tags:      tags,
		Images:    images,
	}
	posts = append(posts, post)
	if err := h.db.SavePosts(posts); err != nil {
		log.Printf("[community][error] save posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "发布失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": post.ID})
}

func (h *Handler) listComments(c *gin.Context) {
	posts, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "加载失败"})
		return
	}
	p := findPost(posts, c.Param("post_id"))
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "未找到帖子"})
		return
	}
	comments := p.Comments
	if comments == nil {
		comments = []*store.Comment{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "items": comments})
}

func (h *Handler) createComment(c *gin.Context) {
	username := h.username(c)
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "请先登录"})
		return
	}
	var req struct {
		Content  string `json:"content"`
		ParentID string `json:"parent_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "内容不能为空"})
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "内容不能为空"})
		return
	}
	if r := []rune(content); len(r) > maxCommentContent {
		content = string(r[:maxCommentContent])
	}

	posts, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "评论失败"})
		return
	}
	p := findPost(posts, c.Param("post_id"))
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "未找到帖子"})
		return
	}
	comment := &store.Comment{
		ID:        newID(),
		Author:    username,
		Content:   content,
		CreatedAt: store.NowISO(),
		ParentID:  req.ParentID,
	}
	p.Comments = append(p.Comments, comment)
	if err := h.db.SavePosts(posts); err != nil {
		log.Printf("[community][error] save posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "评论失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": comment.ID})
}

func toggle(list []string, username string) ([]string, bool) {
	for i, v := range list {
		if v == username {
			return append(list[:i], list[i+1:]...), false
		}
	}
	return append(list, username), true
}

func (h *Handler) toggleLike(c *gin.Context) {
	username := h.username(c)
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "请先登录"})
		return
	}
	posts, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "操作失败"})
		return
	}
	p := findPost(posts, c.Param("post_id"))
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "未找到帖子"})
		return
	}
	p.Likes, _ = toggle(p.Likes, username)
	if err := h.db.SavePosts(posts); err != nil {
		log.Printf("[community][error] save posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "操作失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "like_count": len(p.Likes)})
}

func (h *Handler) toggleBookmark(c *gin.Context) {
	// Anonymous callers fall back to a fixed test identity. Kept for the
	// frontend's pre-login bookmark flow.
	username := h.username(c)
	if username == "" {
		username = "testuser"
	}
	posts, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "操作失败"})
		return
	}
	p := findPost(posts, c.Param("post_id"))
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "未找到帖子"})
		return
	}
	var bookmarked bool
	p.Bookmarks, bookmarked = toggle(p.Bookmarks, username)
	if err := h.db.SavePosts(posts); err != nil {
		log.Printf("[community][error] save posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "操作失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"bookmarked":     bookmarked,
		"bookmark_count": len(p.Bookmarks),
	})
}

func (h *Handler) togglePin(c *gin.Context) {
	if !login.IsAdmin(h.db, h.username(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": true, "message": "需要管理员权限"})
		return
	}
	posts, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "操作失败"})
		return
	}
	p := findPost(posts, c.Param("post_id"))
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "未找到帖子"})
		return
	}
	p.Pinned = !p.Pinned
	if err := h.db.SavePosts(posts); err != nil {
		log.Printf("[community][error] save posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "操作失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pinned": p.Pinned})
}

func (h *Handler) delete(c *gin.Context) {
	if !login.IsAdmin(h.db, h.username(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": true, "message": "需要管理员权限"})
		return
	}
	posts, err := h.db.LoadPosts()
	if err != nil {
		log.Printf("[community][error] load posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "删除失败"})
		return
	}
	id := c.Param("post_id")
	kept := posts[:0]
	for _, p := range posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(posts) {
		c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "未找到帖子"})
		return
	}
	if err := h.db.SavePosts(kept); err != nil {
		log.Printf("[community][error] save posts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "删除失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// upload accepts either a multipart file field or a base64 data URL and
// stores it under the uploads directory. The returned URL is served by
// the static /uploads route.
func (h *Handler) upload(c *gin.Context) {
	username := h.username(c)
	if username == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "请先登录"})
		return
	}

	if file, err := c.FormFile("file"); err == nil {
		ext := strings.ToLower(filepath.Ext(file.Filename))
		if ext == "" {
			ext = ".png"
		}
		fname := newID() + ext
		if err := c.SaveUploadedFile(file, filepath.Join(h.db.UploadDir(), fname)); err != nil {
			log.Printf("[community][error] save upload: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "上传失败"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "url": "/uploads/" + fname})
		return
	}

	var req struct {
		ImageBase64 string `json:"image_base64"`
	}
	if err := c.ShouldBindJSON(&req); err == nil {
		dataURL := strings.TrimSpace(req.ImageBase64)
		if strings.HasPrefix(dataURL, "data:image") && strings.Contains(dataURL, ";base64,") {
			parts := strings.SplitN(dataURL, ";base64,", 2)
			header, b64 := parts[0], parts[1]
			ext := ".png"
			if strings.Contains(header, "image/jpeg") || strings.Contains(header, "image/jpg") {
				ext = ".jpg"
			}
			if strings.Contains(header, "image/webp") {
				ext = ".webp"
			}
			raw, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "无效上传"})
				return
			}
			fname := newID() + ext
			if err := os.WriteFile(filepath.Join(h.db.UploadDir(), fname), raw, 0o644); err != nil {
				log.Printf("[community][error] save upload: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "上传失败"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "url": "/uploads/" + fname})
			return
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "无效上传"})
}
