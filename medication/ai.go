package medication

import (
	"context"
	"encoding/json"
	"strings"

	"medai-backend/qwen"
	"medai-backend/textutil"
)

type Completer interface {
	ChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (qwen.Completion, error)
}

const analyzeSystemPrompt = "你是一位专业的临床药师，擅长分析药物相互作用和用药安全。"

const recognizeSystemPrompt = "你是一位专业的药剂师，擅长识别药品包装和说明书。\n" +
	"请仔细观察图片中的所有药品信息。如果图片中有多个药品，请识别所有的药品。\n\n" +
	"对于每个药品，提取以下字段（如有则填写，没有则留空）：\n" +
	"- 药品名称（通用名或商品名）\n" +
	"- 剂量规格（如\"100mg/片\"）\n" +
	"- 服用频率（如\"每日3次\"、\"一日一次\"）\n" +
	"- 疗程（如\"7天\"、\"连续服用2周\"）\n" +
	"- 药品分类（西药/中药/营养品）\n" +
	"- 注意事项或备注\n\n" +
	"请以JSON数组格式返回，每个元素是一个药品对象，字段名为：name, dosage, frequency, duration, category, notes\n" +
	"如果识别出多个药品，返回数组；如果只识别出一个，也返回包含一个元素的数组。\n" +
	"例如：[{\"name\": \"布洛芬\", \"dosage\": \"100mg\", ...}, {\"name\": \"...\"}]\n" +
	"如果某个字段无法从图片中获取，请设置为空字符串。"

// Analysis is the interaction report for a medication set.
type Analysis struct {
	Summary      string `json:"summary"`
	Interactions []any  `json:"interactions"`
	Warnings     []any  `json:"warnings"`
	Suggestions  []any  `json:"suggestions"`
}

// RecognizedMedication is one medication extracted from a package photo.
type RecognizedMedication struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `json:"frequency"`
	Duration  string `json:"duration"`
	Category  string `json:"category"`
	Notes     string `json:"notes"`
}

// AI runs the two model-backed medication helpers.
type AI struct {
	client      Completer
	textModel   string
	visionModel string
}

func NewAI(client Completer, textModel, visionModel string) *AI {
	return &AI{client: client, textModel: textModel, visionModel: visionModel}
}

func orUnknown(s string) string {
	if s == "" {
		return "未知"
	}
	return s
}

// Analyze asks the text model for an interaction and safety review of the
// given medications. A non-JSON reply degrades to a summary-only report.
func (a *AI) Analyze(ctx context.Context, meds []*Medication) (Analysis, error) {
	details := make([]string, 0, len(meds))
	for _, m := range meds {
		details = append(details,
			"药品："+orUnknown(m.Name)+"\n"+
				"剂量："+orUnknown(m.Dosage)+"\n"+
				"频率："+orUnknown(m.Frequency)+"\n"+
				"分类："+orUnknown(m.Category))
	}
	prompt := "作为专业的药师，请分析以下用药方案：\n\n" +
		strings.Join(details, "\n") + "\n\n" +
		"请提供以下分析：\n" +
		"1. 药物相互作用（Drug Interactions）：分析这些药物之间是否存在相互作用\n" +
		"2. 安全警告（Safety Warnings）：是否有需要注意的安全事项\n" +
		"3. 用药建议（Recommendations）：给出专业的用药建议\n\n" +
		"请以JSON格式返回，包含：\n" +
		"- summary: 总体评估\n" +
		"- interactions: 药物相互作用列表，每项包含 drug1, drug2, severity (高/中/低), description\n" +
		"- warnings: 警告列表，每项包含 type, severity, description\n" +
		"- suggestions: 建议列表\n\n" +
		"注意：请只返回JSON格式的数据，不要包含其他文字说明。"

	out, err := a.client.ChatCompletion(ctx, a.textModel, []qwen.Message{
		qwen.Text(qwen.RoleSystem, analyzeSystemPrompt),
		qwen.Text(qwen.RoleUser, prompt),
	}, 0.3, 2000)
	if err != nil {
		return Analysis{}, err
	}

	data := textutil.ExtractJSON(out.Text)
	if data == nil {
		summary := out.Text
		if r := []rune(summary); len(r) > 200 {
			summary = string(r[:200])
		}
		return Analysis{
			Summary:      summary,
			Interactions: []any{},
			Warnings:     []any{},
			Suggestions:  []any{out.Text},
		}, nil
	}
	summary, _ := data["summary"].(string)
	return Analysis{
		Summary:      summary,
		Interactions: anyList(data["interactions"]),
		Warnings:     anyList(data["warnings"]),
		Suggestions:  anyList(data["suggestions"]),
	}, nil
}

func anyList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{}
}

// RecognizePhoto extracts medication entries from a package photo. Entries
// without a name are dropped; a reply that is not a JSON array yields an
// empty list rather than an error.
func (a *AI) RecognizePhoto(ctx context.Context, imageDataURL string) ([]RecognizedMedication, string, error) {
	out, err := a.client.ChatCompletion(ctx, a.visionModel, []qwen.Message{
		qwen.Text(qwen.RoleSystem, recognizeSystemPrompt),
		qwen.Multimodal(qwen.RoleUser,
			qwen.TextPart("请识别这张图片中的所有药品，提取药品信息并以JSON数组格式返回。如有多个药品，请全部识别。"),
			qwen.ImagePart(imageDataURL),
		),
	}, 0.2, 2000)
	if err != nil {
		return nil, "", err
	}

	validated := make([]RecognizedMedication, 0, 4)
	for _, med := range extractMedicationList(out.Text) {
		if med.Name == "" {
			continue
		}
		if med.Category == "" {
			med.Category = "西药"
		}
		validated = append(validated, med)
	}
	return validated, out.ModelUsed, nil
}

// extractMedicationList parses the model reply as a JSON array, accepting
// a bare object as a one-element list and tolerating code fences.
func extractMedicationList(raw string) []RecognizedMedication {
	t := strings.TrimSpace(textutil.StripCodeFences(raw))

	var list []RecognizedMedication
	if err := json.Unmarshal([]byte(t), &list); err == nil {
		return list
	}
	var single RecognizedMedication
	if err := json.Unmarshal([]byte(t), &single); err == nil && single.Name != "" {
		return []RecognizedMedication{single}
	}
	start := strings.Index(t, "[")
	end := strings.LastIndex(t, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(t[start:end+1]), &list); err == nil {
			return list
		}
	}
	return nil
}
