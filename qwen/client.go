package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultBaseURL       = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultTextModel     = "qwen-plus"
	defaultVisionModel   = "qwen-vl-max"
	defaultFallbackModel = "qwen-plus"

	requestTimeout = 60 * time.Second
	streamTimeout  = 300 * time.Second
)

// Client talks to an OpenAI-compatible chat completion endpoint over two
// transports: the SDK client and direct HTTP POST. Dispatch escalates across
// transports and models, returning the first success.
type Client struct {
	api     *openai.Client
	httpc   *http.Client
	streamc *http.Client
	baseURL string
	apiKey  string

	TextModel     string
	VisionModel   string
	FallbackModel string
}

// NewClient builds a client from environment configuration.
func NewClient() *Client {
	key := os.Getenv("DASHSCOPE_API_KEY")
	base := os.Getenv("QWEN_BASE_URL")
	if base == "" {
		base = defaultBaseURL
	}
	c := NewClientWith(base, key)
	if m := os.Getenv("QWEN_TEXT_MODEL"); m != "" {
		c.TextModel = m
	}
	if m := os.Getenv("QWEN_VISION_MODEL"); m != "" {
		c.VisionModel = m
	}
	if m := os.Getenv("QWEN_FALLBACK_MODEL"); m != "" {
		c.FallbackModel = m
	}
	return c
}

// NewClientWith builds a client against a specific endpoint. Tests point it
// at a local httptest server.
func NewClientWith(baseURL, apiKey string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Client{
		api:           openai.NewClientWithConfig(cfg),
		httpc:         &http.Client{Timeout: requestTimeout},
		streamc:       &http.Client{Timeout: streamTimeout},
		baseURL:       baseURL,
		apiKey:        apiKey,
		TextModel:     defaultTextModel,
		VisionModel:   defaultVisionModel,
		FallbackModel: defaultFallbackModel,
	}
}

// ChatCompletion resolves messages to text with the tiered fallback policy:
//
//	1) primary model via SDK
//	2) primary model via direct HTTP
//	3) fallback model via SDK
//	4) fallback model via direct HTTP
//
// Attempts run strictly in order, one at a time; the first success wins and
// later attempts never run. When all four fail the last failure is surfaced
// inside an ExhaustedError. This is a fallback policy, not a retry policy:
// no backoff, no caching, no racing.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []Message, temperature float32, maxTokens int) (Completion, error) {
	type attempt struct {
		transport string
		model     string
		call      func(string) (string, error)
	}
	attempts := []attempt{
		{"sdk", model, func(m string) (string, error) { return c.viaSDK(ctx, m, messages, temperature, maxTokens) }},
		{"http", model, func(m string) (string, error) { return c.viaHTTP(ctx, m, messages, temperature, maxTokens) }},
		{"sdk", c.FallbackModel, func(m string) (string, error) { return c.viaSDK(ctx, m, messages, temperature, maxTokens) }},
		{"http", c.FallbackModel, func(m string) (string, error) { return c.viaHTTP(ctx, m, messages, temperature, maxTokens) }},
	}

	var last error
	for i, at := range attempts {
		text, err := at.call(at.model)
		if err == nil {
			return Completion{Text: text, ModelUsed: at.model}, nil
		}
		last = &TransportError{Transport: at.transport, Model: at.model, Err: err}
		if i < len(attempts)-1 {
			log.Printf("[qwen][dispatch][warn] attempt=%d/%d transport=%s model=%s err=%v", i+1, len(attempts), at.transport, at.model, err)
		} else {
			log.Printf("[qwen][dispatch][error] attempt=%d/%d transport=%s model=%s exhausted err=%v", i+1, len(attempts), at.transport, at.model, err)
		}
	}
	return Completion{}, &ExhaustedError{Last: last}
}

// viaSDK issues the request through the OpenAI SDK client.
func (c *Client) viaSDK(ctx context.Context, model string, messages []Message, temperature float32, maxTokens int) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("sdk client unavailable: missing api key")
	}
	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    sdkMessages(messages),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

func sdkMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.Parts == nil {
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
			continue
		}
		parts := make([]openai.ChatMessagePart, 0, len(m.Parts))
		for _, p := range m.Parts {
			switch p.Type {
			case PartImageURL:
				url := ""
				if p.ImageURL != nil {
					url = p.ImageURL.URL
				}
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: url},
				})
			default:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			}
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts})
	}
	return out
}

// viaHTTP issues the request as a direct POST. On a 400 it retries once with
// the alternate content encoding (scalar strings wrapped in content arrays)
// before reporting the tier as failed.
func (c *Client) viaHTTP(ctx context.Context, model string, messages []Message, temperature float32, maxTokens int) (string, error) {
	body := wireRequest{Model: model, Messages: encodeMessages(messages, false), Temperature: temperature, MaxTokens: maxTokens}
	text, status, err := c.postCompletion(ctx, body)
	if err == nil {
		return text, nil
	}
	if status == http.StatusBadRequest {
		alt := wireRequest{Model: model, Messages: encodeMessages(messages, true), Temperature: temperature, MaxTokens: maxTokens}
		text2, _, err2 := c.postCompletion(ctx, alt)
		if err2 == nil {
			return text2, nil
		}
		return "", fmt.Errorf("alt encoding retry failed: %w (original: %v)", err2, err)
	}
	return "", err
}

// postCompletion sends one /chat/completions request and extracts the reply
// text. Returns the HTTP status so the caller can decide on the 400 retry.
func (c *Client) postCompletion(ctx context.Context, body wireRequest) (string, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", resp.StatusCode, fmt.Errorf("qwen_api_%d: %s", resp.StatusCode, snippet(raw, 300))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", resp.StatusCode, errors.New("empty choices in response")
	}
	return parsed.Choices[0].Message.Content, resp.StatusCode, nil
}

func snippet(raw []byte, n int) string {
	if len(raw) > n {
		raw = raw[:n]
	}
	return string(raw)
}
