package qwen

// Message roles accepted by the chat completion API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content part types for multimodal messages.
const (
	PartText     = "text"
	PartImageURL = "image_url"
)

// ImageURL wraps an embedded data URI (data:image/...;base64,xxx).
type ImageURL struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// Message is a chat message. Content carries the scalar text form; Parts
// carries the content-array form used for vision requests. At most one of
// the two is set.
type Message struct {
	Role    string
	Content string
	Parts   []ContentPart
}

// Text builds a plain text message.
func Text(role, content string) Message {
	return Message{Role: role, Content: content}
}

// Multimodal builds a content-array message.
func Multimodal(role string, parts ...ContentPart) Message {
	return Message{Role: role, Parts: parts}
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartText, Text: text}
}

// ImagePart builds an image content part from a data URI.
func ImagePart(dataURL string) ContentPart {
	return ContentPart{Type: PartImageURL, ImageURL: &ImageURL{URL: dataURL}}
}

// Completion is one successful request/response exchange with the model.
type Completion struct {
	Text      string
	ModelUsed string
}

// wireMessage is the JSON shape sent on the direct HTTP transport. Content is
// either a string or a []ContentPart, matching the OpenAI-compatible API.
type wireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// wireRequest is the /chat/completions request body.
type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream,omitempty"`
}

// encodeMessages converts messages to the wire shape. When forceParts is set,
// scalar contents are wrapped into one-element content arrays; some gateways
// reject the scalar encoding with a 400.
func encodeMessages(messages []Message, forceParts bool) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, m := range messages {
		if m.Parts != nil {
			out = append(out, wireMessage{Role: m.Role, Content: m.Parts})
			continue
		}
		if forceParts {
			out = append(out, wireMessage{Role: m.Role, Content: []ContentPart{TextPart(m.Content)}})
			continue
		}
		out = append(out, wireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}
