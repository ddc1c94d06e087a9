package diagnosis

import (
	"context"

	"medai-backend/qwen"
	"medai-backend/textutil"
)

// Completer is the text-model dependency. *qwen.Client satisfies it.
type Completer interface {
	ChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (qwen.Completion, error)
}

const systemPrompt = "你是一位有同理心的全科医生，进行病情问诊。请用安抚、可信赖的语气，专业且通俗的表达。\n" +
	"目标：通过2-5次追问获取关键要点（起病时间、伴随症状、严重程度、既往史、用药情况、危险信号等），在信息充分时给出总结。\n" +
	"请严格输出JSON，不要任何额外说明。结构：{\n" +
	"  \"status\": \"ask\"|\"final\",\n" +
	"  \"ask\": { \"question\": string },\n" +
	"  \"final\": { \"summary_html\": string, \"next_steps\": [string], \"red_flags\": [string] }\n" +
	"}。当信息不足时输出 ask；当已足够时输出 final，summary_html 用中文结构化HTML（含 <h3>要点</h3>、<h3>可能诊断</h3>、<h3>建议</h3>）。"

const defaultQuestion = "为了更了解您的情况，您能再补充一下症状的持续时间和严重程度吗？"

// Reply is one turn of the intake conversation. Mode is "ask" while
// questions remain and "final" once the doctor summary is ready.
type Reply struct {
	Mode        string   `json:"mode"`
	Question    string   `json:"question,omitempty"`
	SummaryHTML string   `json:"summary_html,omitempty"`
	NextSteps   []string `json:"next_steps,omitempty"`
	RedFlags    []string `json:"red_flags,omitempty"`
}

// Service runs the multi-turn intake dialogue.
type Service struct {
	ai    Completer
	model string
}

func NewService(ai Completer, model string) *Service {
	return &Service{ai: ai, model: model}
}

// Chat sends one user turn with its history and interprets the model's
// strict-JSON envelope. A reply that is not valid JSON degrades to a final
// summary built from the raw text, so the conversation always terminates.
func (s *Service) Chat(ctx context.Context, userInput string, history []qwen.Message) (Reply, error) {
	messages := make([]qwen.Message, 0, len(history)+2)
	messages = append(messages, qwen.Text(qwen.RoleSystem, systemPrompt))
	for _, m := range history {
		if (m.Role == qwen.RoleUser || m.Role == qwen.RoleAssistant) && m.Content != "" {
			messages = append(messages, m)
		}
	}
	messages = append(messages, qwen.Text(qwen.RoleUser, userInput))

	out, err := s.ai.ChatCompletion(ctx, s.model, messages, 0.3, 1000)
	if err != nil {
		return Reply{}, err
	}

	data := textutil.ExtractJSON(out.Text)
	if data == nil {
		return Reply{
			Mode:        "final",
			SummaryHTML: NormalizeSummaryHTML(textutil.ToPlainText(out.Text)),
			NextSteps:   []string{},
			RedFlags:    []string{},
		}, nil
	}

	if status, _ := data["status"].(string); status == "ask" {
		question := defaultQuestion
		if ask, ok := data["ask"].(map[string]any); ok {
			if q, ok := ask["question"].(string); ok && q != "" {
				question = q
			}
		}
		return Reply{Mode: "ask", Question: textutil.ToPlainText(question)}, nil
	}

	final, _ := data["final"].(map[string]any)
	html, _ := final["summary_html"].(string)
	if html == "" {
		html = textutil.ToPlainText(out.Text)
	}
	return Reply{
		Mode:        "final",
		SummaryHTML: NormalizeSummaryHTML(html),
		NextSteps:   stringSlice(final["next_steps"]),
		RedFlags:    stringSlice(final["red_flags"]),
	}, nil
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
