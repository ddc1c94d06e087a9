package consult

import (
	"context"
	"encoding/json"

	"medai-backend/qwen"
	"medai-backend/textutil"
)

// Completer is the text-model dependency. *qwen.Client satisfies it.
type Completer interface {
	ChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (qwen.Completion, error)
}

const analyzeSystemPrompt = `你是一位专业的医疗AI助手，具有丰富的临床经验。请根据患者的症状描述，提供专业的医疗建议。

你需要：
1. 分析症状的可能原因
2. 评估紧急程度（低、中、高）
3. 提供初步诊疗建议
4. 推荐适当的检查项目
5. 给出生活方式建议

注意：
- 你的建议仅供参考，不能替代专业医疗诊断
- 对于严重或紧急症状，建议立即就医
- 药物推荐需要强调在医生指导下使用
- 保持专业、准确、负责任的态度

请用中文回复，结构化输出你的分析结果。`

const drugSystemPrompt = `你是一位专业的临床药师，请根据患者症状和病史，推荐合适的药物治疗方案。

要求：
1. 推荐常用的OTC（非处方药）药物
2. 明确标注用法用量
3. 列出注意事项和禁忌症
4. 强调需要医生指导
5. 提供药物相互作用提醒

注意：
- 仅推荐安全的常用药物
- 对于严重症状建议就医而非自行用药
- 特殊人群（孕妇、儿童、老人）需要特别说明
- 强调用药安全

请用中文回复，提供结构化的药物推荐。`

const consultationSystemPrompt = `你是一位经验丰富的全科医生，为患者提供专业的健康咨询服务。

你的特点：
1. 专业知识丰富，能够准确分析健康问题
2. 沟通亲切，耐心解答患者疑问
3. 注重患者安全，适时建议就医
4. 提供实用的健康建议和预防措施

回复要求：
- 语言通俗易懂，避免过多医学术语
- 结构清晰，条理分明
- 针对性强，解决患者具体问题
- 适时提醒就医和用药安全

请用温和、专业的语气回复患者的健康咨询。`

const emergencySystemPrompt = `你是一位急诊科医生，请快速评估患者症状的紧急程度。

评估标准：
- 紧急（立即就医）：威胁生命的症状
- 急迫（尽快就医）：需要及时处理的症状
- 一般（可观察）：可以观察或居家处理的症状

请简洁明确地给出评估结果和建议。`

const translateSystemPrompt = "你是专业的中英互译助手，请将输入的英文或混合文本翻译成简洁准确的中文。"

// Service drives the patient-facing consultation endpoints. Text tasks go
// to the text model; quick assessment and translation ride the multimodal
// model like the rest of the vision surface.
type Service struct {
	ai          Completer
	model       string
	visionModel string
}

func NewService(ai Completer, textModel, visionModel string) *Service {
	return &Service{ai: ai, model: textModel, visionModel: visionModel}
}

func jsonText(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// AnalyzeSymptoms returns the model's free-text analysis wrapped in the
// keyword-derived triage envelope.
func (s *Service) AnalyzeSymptoms(ctx context.Context, symptoms string, patientInfo map[string]any) (Analysis, error) {
	userMessage := "患者症状描述：" + symptoms
	if len(patientInfo) > 0 {
		userMessage += "\n患者信息：" + jsonText(patientInfo)
	}
	out, err := s.ai.ChatCompletion(ctx, s.model, []qwen.Message{
		qwen.Text(qwen.RoleSystem, analyzeSystemPrompt),
		qwen.Text(qwen.RoleUser, userMessage),
	}, 0.3, 1500)
	if err != nil {
		return Analysis{}, err
	}
	return buildAnalysis(textutil.ToPlainText(out.Text), symptoms), nil
}

// DrugRecommendation returns the pharmacist-style advice text with fixed
// safety warnings.
func (s *Service) DrugRecommendation(ctx context.Context, symptoms string, history map[string]any) (DrugAdvice, error) {
	userMessage := "症状：" + symptoms
	if len(history) > 0 {
		userMessage += "\n病史：" + jsonText(history)
	}
	out, err := s.ai.ChatCompletion(ctx, s.model, []qwen.Message{
		qwen.Text(qwen.RoleSystem, drugSystemPrompt),
		qwen.Text(qwen.RoleUser, userMessage),
	}, 0.2, 1200)
	if err != nil {
		return DrugAdvice{}, err
	}
	return buildDrugAdvice(textutil.ToPlainText(out.Text)), nil
}

// HealthConsultation answers one chat turn given the prior context.
func (s *Service) HealthConsultation(ctx context.Context, question string, history []qwen.Message) (string, string, error) {
	messages := make([]qwen.Message, 0, len(history)+2)
	messages = append(messages, qwen.Text(qwen.RoleSystem, consultationSystemPrompt))
	messages = append(messages, history...)
	messages = append(messages, qwen.Text(qwen.RoleUser, question))

	out, err := s.ai.ChatCompletion(ctx, s.model, messages, 0.4, 1000)
	if err != nil {
		return "", "", err
	}
	return textutil.ToPlainText(out.Text), out.ModelUsed, nil
}

// EmergencyAssessment maps the model's verdict to a triage level.
func (s *Service) EmergencyAssessment(ctx context.Context, symptoms string) (Triage, error) {
	out, err := s.ai.ChatCompletion(ctx, s.visionModel, []qwen.Message{
		qwen.Text(qwen.RoleSystem, emergencySystemPrompt),
		qwen.Text(qwen.RoleUser, "请评估以下症状的紧急程度："+symptoms),
	}, 0.1, 500)
	if err != nil {
		return Triage{}, err
	}
	return parseEmergencyReply(textutil.ToPlainText(out.Text)), nil
}

// Translate renders English or mixed text into Chinese.
func (s *Service) Translate(ctx context.Context, text string) (string, error) {
	out, err := s.ai.ChatCompletion(ctx, s.visionModel, []qwen.Message{
		qwen.Text(qwen.RoleSystem, translateSystemPrompt),
		qwen.Text(qwen.RoleUser, text),
	}, 0.1, 400)
	if err != nil {
		return "", err
	}
	return textutil.ToPlainText(out.Text), nil
}
