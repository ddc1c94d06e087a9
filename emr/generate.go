package emr

import (
	"context"
	"encoding/json"

	"medai-backend/qwen"
)

// Completer is the text-model dependency. *qwen.Client satisfies it.
type Completer interface {
	ChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (qwen.Completion, error)
}

// Streamer is the streaming dependency used by the incremental EMR route.
type Streamer interface {
	StreamChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (<-chan string, error)
}

const disclaimer = "<small style='color:#64748b;'>本病历仅供参考，需结合临床实际情况</small>"

const generateSystemPrompt = "你是一名专业的临床医生助手，请基于医生提供的问诊信息生成规范的结构化病历。\n\n" +
	"输出格式要求：\n" +
	"- 输出为HTML片段，包含以下一级标题（按顺序）：\n" +
	"  <h3>主诉</h3>、<h3>现病史</h3>、<h3>既往史</h3>、<h3>过敏史</h3>、\n" +
	"  <h3>体格检查</h3>、<h3>辅助检查</h3>、<h3>初步诊断</h3>、<h3>诊疗计划</h3>\n\n" +
	"内容填写规则：\n" +
	"1. **主诉**：提取最主要的症状及持续时间（如：胃痛伴恶心2天）\n" +
	"2. **现病史**：\n" +
	"   - 详细描述症状特点（部位、性质、程度、诱因、缓解因素）\n" +
	"   - 伴随症状\n" +
	"   - 相关病史（如用药史、饮食习惯等）\n" +
	"   - 充分利用医生提供的所有关键信息\n" +
	"   - 用医学术语规范描述，但保留所有重要细节\n" +
	"3. **既往史**：如医生提供相关信息则详细记录，否则填'否认特殊既往史'或'待补充'\n" +
	"4. **过敏史**：如医生提供则记录，否则填'否认药物及食物过敏史'或'待补充'\n" +
	"5. **体格检查**：如医生提供检查结果则记录，否则填'待完善体格检查'并建议需要的检查项目\n" +
	"6. **辅助检查**：如医生提供检查结果则记录，否则填'待完善'并根据症状建议需要的检查\n" +
	"7. **初步诊断**：基于症状和信息给出合理诊断（可列多个），如医生已提供诊断则优先使用\n" +
	"8. **诊疗计划**：\n" +
	"   - 一般治疗建议（如休息、饮食调整）\n" +
	"   - 可能的药物治疗方向（不写具体剂量）\n" +
	"   - 复诊建议和注意事项\n\n" +
	"重要原则：\n" +
	"- 充分利用医生输入的所有信息，不要遗漏关键细节\n" +
	"- 用规范的医学术语组织，但要完整保留医生提供的信息\n" +
	"- 信息不足时用规范用语说明需补充，不要编造\n" +
	"- 末尾添加：" + disclaimer

const appendSystemPrompt = "你是一名专业的临床医生助手，请将新的问诊信息与现有病历合并，生成更新后的结构化病历。\n\n" +
	"输出格式要求：\n" +
	"- 输出为HTML片段，包含以下一级标题（按顺序）：\n" +
	"  <h3>主诉</h3>、<h3>现病史</h3>、<h3>既往史</h3>、<h3>过敏史</h3>、\n" +
	"  <h3>体格检查</h3>、<h3>辅助检查</h3>、<h3>初步诊断</h3>、<h3>诊疗计划</h3>\n\n" +
	"合并规则：\n" +
	"1. **主诉**：整合新旧主诉，保留核心症状，去重\n" +
	"2. **现病史**：\n" +
	"   - 保留原有病史内容\n" +
	"   - 追加新的症状变化、治疗经过等信息\n" +
	"   - 按时间顺序组织，形成连贯的病史记录\n" +
	"3. **既往史/过敏史**：如新信息中有明确提及则更新，否则保留原有\n" +
	"4. **体格检查/辅助检查**：如新信息中有新的检查结果则补充，否则保留原有\n" +
	"5. **初步诊断**：基于合并后的完整信息重新评估，可能更新诊断\n" +
	"6. **诊疗计划**：基于最新情况调整治疗方案\n\n" +
	"重要原则：\n" +
	"- 充分利用新提供的所有信息\n" +
	"- 保留原有病历的有价值内容\n" +
	"- 形成连贯、完整的病历记录\n" +
	"- 末尾添加：" + disclaimer

const streamSystemPrompt = "你是一名临床医生助手，请基于给定的关键信息生成'结构化中文病历'。" +
	"输出为HTML片段，必须包含：<h3>主诉</h3>、<h3>现病史</h3>、<h3>既往史</h3>、<h3>过敏史</h3>、" +
	"<h3>体格检查</h3>、<h3>辅助检查</h3>、<h3>初步诊断</h3>、<h3>诊疗计划</h3>。" +
	"信息不足时使用规范化占位描述，末尾加<small>本建议仅供参考</small>。"

// Service generates structured medical records through the model client.
type Service struct {
	ai    Completer
	model string
}

func NewService(ai Completer, model string) *Service {
	return &Service{ai: ai, model: model}
}

func profileJSON(profile map[string]any) string {
	if len(profile) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Generate produces a new structured record from a doctor's brief, then
// runs the grounding sanitizer over the model output. When strict is set
// the aggressive variant runs too.
func (s *Service) Generate(ctx context.Context, brief string, profile map[string]any, strict bool) (string, string, error) {
	userMessage := "【患者档案信息】\n" + profileJSON(profile) + "\n\n" +
		"【医生提供的问诊信息】\n" + brief + "\n\n" +
		"请基于以上信息生成详细的结构化病历，充分利用医生提供的所有关键信息。"
	out, err := s.ai.ChatCompletion(ctx, s.model, []qwen.Message{
		qwen.Text(qwen.RoleSystem, generateSystemPrompt),
		qwen.Text(qwen.RoleUser, userMessage),
	}, 0.3, 2000)
	if err != nil {
		return "", "", err
	}
	html := SanitizeHTML(brief, out.Text)
	if strict {
		html = SanitizeStrict(brief, html)
	}
	return html, out.ModelUsed, nil
}

// GenerateAppend merges new findings into an existing record.
func (s *Service) GenerateAppend(ctx context.Context, brief, existingEMR string, profile map[string]any) (string, string, error) {
	userMessage := "【患者档案信息】\n" + profileJSON(profile) + "\n\n" +
		"【现有病历内容】\n" + existingEMR + "\n\n" +
		"【新增问诊信息】\n" + brief + "\n\n" +
		"请将新信息与现有病历合并，生成更新后的完整病历。"
	out, err := s.ai.ChatCompletion(ctx, s.model, []qwen.Message{
		qwen.Text(qwen.RoleSystem, appendSystemPrompt),
		qwen.Text(qwen.RoleUser, userMessage),
	}, 0.3, 2500)
	if err != nil {
		return "", "", err
	}
	return out.Text, out.ModelUsed, nil
}

// StreamGenerate yields record HTML incrementally. The stream is raw model
// output; sanitation happens when the client saves the final text.
func (s *Service) StreamGenerate(ctx context.Context, streamer Streamer, brief string, profile map[string]any) (<-chan string, error) {
	userMessage := "患者概况：" + profileJSON(profile) + "\n" +
		"关键信息/问诊要点：" + brief + "\n" +
		"请直接输出HTML，不要附加解释或Markdown。"
	return streamer.StreamChatCompletion(ctx, s.model, []qwen.Message{
		qwen.Text(qwen.RoleSystem, streamSystemPrompt),
		qwen.Text(qwen.RoleUser, userMessage),
	}, 0.2, 1600)
}
