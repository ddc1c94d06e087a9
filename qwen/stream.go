package qwen

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamChatCompletion issues a streaming completion over direct HTTP and
// yields incremental text chunks on the returned channel. The sequence is
// lazy, finite and non-restartable; the channel closes on [DONE], on stream
// end, or when ctx is cancelled. Lines that don't parse are skipped.
func (c *Client) StreamChatCompletion(ctx context.Context, model string, messages []Message, temperature float32, maxTokens int) (<-chan string, error) {
	body := wireRequest{
		Model:       model,
		Messages:    encodeMessages(messages, false),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.streamc.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		return nil, fmt.Errorf("qwen_api_%d: %s", resp.StatusCode, snippet(raw, 300))
	}

	ch := make(chan string)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			chunk := strings.TrimSpace(line[len("data:"):])
			if chunk == "[DONE]" {
				return
			}
			delta := parseStreamDelta(chunk)
			if delta == "" {
				continue
			}
			select {
			case ch <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// parseStreamDelta extracts the incremental content from one SSE chunk:
// choices[0].delta.content, falling back to choices[0].message.content.
func parseStreamDelta(chunk string) string {
	var obj struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(chunk), &obj); err != nil {
		return ""
	}
	if len(obj.Choices) == 0 {
		return ""
	}
	if obj.Choices[0].Delta.Content != "" {
		return obj.Choices[0].Delta.Content
	}
	return obj.Choices[0].Message.Content
}
