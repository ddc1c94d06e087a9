// Package vision interprets patient-uploaded photos with the multimodal
// model. Three image kinds are supported, each with its own task prompt:
// drug packaging, lab or exam reports, and skin or wound photos.
package vision

import (
	"context"
	"strings"

	"medai-backend/qwen"
)

type Completer interface {
	ChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (qwen.Completion, error)
}

const (
	KindDrug   = "drug"
	KindReport = "report"
	KindSkin   = "skin"
)

const drugPrompt = "你是一名资深临床药师与药事管理专家，请对上传的药品包装/瓶盒进行OCR与语义理解，" +
	"抽取关键信息并输出专业、中文、结构化HTML且尽量贴合以下栏目：\n" +
	"<h3>药品名称</h3>（通用名/商品名）；<h3>适应症</h3>；<h3>一般用法用量</h3>；" +
	"<h3>不良反应/副作用</h3>；<h3>重要成分</h3>；<h3>注意事项/禁忌</h3>；" +
	"<h3>识别结果附录</h3>（规格、剂型、生产厂家/批次、批准文号等如可见）。"

const reportPrompt = "你是一名三甲医院的检验科/影像科主治医师，请对上传的检验/检查报告进行OCR与临床解读，" +
	"输出中文、结构化HTML：\n" +
	"包含：<h3>报告信息</h3>（姓名/性别/年龄、标本、检查名称、报告时间等可识别项）；" +
	"<h3>关键指标</h3>使用<table><thead><tr><th>项目</th><th>结果</th><th>单位</th><th>参考区间</th><th>解读</th></tr></thead><tbody>...</tbody></table>；" +
	"<h3>总体解读</h3>（结合异常指标说明可能意义与建议）；<h3>建议与随访</h3>（复查/就医提示）。"

const skinPrompt = "你是一名皮肤科与创伤科联合门诊医生，请对上传的皮肤/外伤图像进行面向患者的专业解释（非最终诊断），" +
	"输出中文、结构化HTML，并满足以下栏目与约束：\n" +
	"<h3>可能疾病（按优先级）</h3>：列出1-3个候选并排序；每条给出不含'因为…所以…'等因果措辞的'依据'，改用客观可见征象描述。\n" +
	"<h3>可用药品</h3>：如需用药，列出常见外用/口服药物及用法要点。\n" +
	"<h3>治疗方案</h3>：居家处理/门诊处理建议与何时就医。\n" +
	"<h3>注意事项</h3>：护理要点、避免事项、复查建议与红旗信号。"

// ResolveKind maps the loose kind aliases clients send to one of the three
// canonical kinds. Anything unrecognized is treated as a skin photo.
func ResolveKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "drug", "medicine", "med", "pill", "box":
		return KindDrug
	case "report", "exam", "check", "lab", "检验单", "检验", "检查":
		return KindReport
	default:
		return KindSkin
	}
}

func taskPrompt(kind string) string {
	switch kind {
	case KindDrug:
		return drugPrompt
	case KindReport:
		return reportPrompt
	default:
		return skinPrompt
	}
}

// Result is the analysis envelope returned to the client. HTML is kept
// as produced by the model so the frontend can render it directly.
type Result struct {
	Kind      string `json:"kind"`
	HTML      string `json:"html"`
	ModelUsed string `json:"model_used"`
}

type Service struct {
	ai    Completer
	model string
}

// NewService wires the vision model. model should be the multimodal
// deployment, not the text one.
func NewService(ai Completer, model string) *Service {
	return &Service{ai: ai, model: model}
}

// Analyze runs the structured interpretation for one image. imageDataURL
// must be a data:image/...;base64 URL; note is an optional free-text hint
// from the patient.
func (s *Service) Analyze(ctx context.Context, imageDataURL, kind, note string) (Result, error) {
	resolved := ResolveKind(kind)
	userText := "请基于该图片完成上面的结构化分析，并直接以HTML输出。"
	if note != "" {
		userText += "\n补充说明：" + note
	}
	messages := []qwen.Message{
		qwen.Text(qwen.RoleSystem, taskPrompt(resolved)),
		qwen.Multimodal(qwen.RoleUser,
			qwen.TextPart(userText),
			qwen.ImagePart(imageDataURL),
		),
	}
	out, err := s.ai.ChatCompletion(ctx, s.model, messages, 0.2, 1800)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: resolved, HTML: out.Text, ModelUsed: out.ModelUsed}, nil
}
