package stream

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PlainChunks writes every token from ch to the response as it arrives,
// as chunked text/plain. The frontend reads the body as a ReadableStream
// and renders incrementally.
func PlainChunks(c *gin.Context, ch <-chan string) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	for msg := range ch {
		if msg == "" {
			continue
		}
		_, _ = c.Writer.Write([]byte(msg))
		flusher.Flush()
	}
}
