package emr

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"medai-backend/qwen"
	"medai-backend/textutil"
)

// TreatmentPlan is one ranked therapy proposal.
type TreatmentPlan struct {
	Name       string  `json:"name"`
	Score      int     `json:"score"`
	Reason     string  `json:"reason"`
	HTML       string  `json:"html"`
	Confidence float64 `json:"confidence"`
}

// PlanSet is the result of a treatment-plan generation request.
type PlanSet struct {
	Plans      []TreatmentPlan `json:"plans"`
	TotalPlans int             `json:"total_plans"`
	ModelUsed  string          `json:"model_used"`
	Note       string          `json:"note,omitempty"`
}

const plansSystemPrompt = "你是一名临床医生助手，请基于病历内容生成多个治疗方案。" +
	"输出严格JSON格式：{'plans': [{'name': '方案名称', 'score': 85, 'reason': '推荐理由', 'html': 'HTML内容'}, ...]}。" +
	"每个方案包含：<h3>治疗目标</h3>、<h3>药物治疗</h3>（通用原则+常见方案）、<h3>非药物治疗</h3>、<h3>下一步检查</h3>、<h3>复诊与随访</h3>、<h3>预警信号</h3>。" +
	"根据病历特点给出2-4个不同治疗策略的方案，按推荐度排序。"

// GenerateTreatmentPlans asks the model for up to numPlans ranked plans.
// Valid plans are clamped to score 0..100 and sorted by score descending;
// shortfalls are topped up from the preset plans. An unparseable response
// degrades to the presets entirely.
func (s *Service) GenerateTreatmentPlans(ctx context.Context, emrContent string, profile map[string]any, numPlans int) (PlanSet, error) {
	if numPlans < 1 || numPlans > 5 {
		numPlans = 3
	}
	userMessage := "患者概况：" + profileJSON(profile) + "\n" +
		"以下为病历内容（HTML或文本）：\n" + strings.TrimSpace(emrContent) + "\n" +
		fmt.Sprintf("请生成%d个治疗方案，按推荐度从高到低排序（score 0-100）。直接输出JSON，不要解释。", numPlans)

	out, err := s.ai.ChatCompletion(ctx, s.model, []qwen.Message{
		qwen.Text(qwen.RoleSystem, plansSystemPrompt),
		qwen.Text(qwen.RoleUser, userMessage),
	}, 0.3, 2000)
	if err != nil {
		return PlanSet{}, err
	}

	plans, ok := parsePlans(out.Text, numPlans)
	if !ok {
		log.Printf("[emr][plans][warn] unparseable model response, serving presets")
		presets := defaultPlans(numPlans)
		return PlanSet{
			Plans:      presets,
			TotalPlans: len(presets),
			ModelUsed:  "fallback",
			Note:       "由于AI服务暂时不可用，使用预设方案",
		}, nil
	}
	if len(plans) < numPlans {
		plans = append(plans, defaultPlans(numPlans-len(plans))...)
		sort.SliceStable(plans, func(i, j int) bool { return plans[i].Score > plans[j].Score })
	}
	return PlanSet{Plans: plans, TotalPlans: len(plans), ModelUsed: out.ModelUsed}, nil
}

func parsePlans(text string, numPlans int) ([]TreatmentPlan, bool) {
	data := textutil.ExtractJSON(text)
	if data == nil {
		return nil, false
	}
	rawPlans, ok := data["plans"].([]any)
	if !ok {
		return nil, false
	}
	var plans []TreatmentPlan
	for _, rp := range rawPlans {
		if len(plans) >= numPlans {
			break
		}
		m, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		name, nameOK := m["name"].(string)
		reason, reasonOK := m["reason"].(string)
		html, htmlOK := m["html"].(string)
		score, scoreOK := m["score"].(float64)
		if !nameOK || !reasonOK || !htmlOK || !scoreOK {
			continue
		}
		n := int(score)
		if n < 0 {
			n = 0
		}
		if n > 100 {
			n = 100
		}
		conf := float64(n) / 100.0
		if conf > 1 {
			conf = 1
		}
		plans = append(plans, TreatmentPlan{
			Name:       name,
			Score:      n,
			Reason:     reason,
			HTML:       formatPlanHTML(html),
			Confidence: conf,
		})
	}
	sort.SliceStable(plans, func(i, j int) bool { return plans[i].Score > plans[j].Score })
	return plans, true
}

// formatPlanHTML falls back to a skeleton when the model sent no usable
// section structure.
func formatPlanHTML(html string) string {
	if html != "" && strings.Contains(html, "<h3>") {
		return html
	}
	return `<h3>治疗目标</h3>
<p>根据患者病情，制定个性化的治疗目标。</p>
<h3>药物治疗</h3>
<p><strong>治疗原则：</strong>根据患者具体情况选择合适的药物治疗方案。</p>
<p><strong>推荐药物：</strong>医生将根据患者病情开具处方药物。</p>
<h3>非药物治疗</h3>
<ul>
<li>生活方式调整：保持规律作息，适量运动</li>
<li>饮食指导：清淡饮食，避免刺激性食物</li>
<li>心理支持：保持良好心态，避免过度焦虑</li>
</ul>
<h3>下一步检查</h3>
<ul>
<li>根据病情需要，完善相关实验室检查</li>
<li>必要时进行影像学检查以明确诊断</li>
<li>监测相关生理指标的变化</li>
</ul>
<h3>复诊与随访</h3>
<ul>
<li>建议1-2周后复诊，评估治疗效果</li>
<li>定期监测相关指标变化</li>
<li>根据病情变化及时调整治疗方案</li>
</ul>
<h3>预警信号</h3>
<ul>
<li>症状加重或出现新症状</li>
<li>药物不良反应</li>
<li>重要生命体征异常</li>
</ul>`
}

func defaultPlans(n int) []TreatmentPlan {
	presets := []TreatmentPlan{
		{
			Name:       "保守治疗方案",
			Score:      75,
			Reason:     "适合大多数患者，风险较低",
			HTML:       conservativePlanHTML,
			Confidence: 0.75,
		},
		{
			Name:       "积极治疗方案",
			Score:      60,
			Reason:     "针对症状较重的患者，疗效更快但风险稍高",
			HTML:       aggressivePlanHTML,
			Confidence: 0.60,
		},
		{
			Name:       "综合治疗方案",
			Score:      85,
			Reason:     "结合药物和非药物治疗，全面改善",
			HTML:       comprehensivePlanHTML,
			Confidence: 0.85,
		},
	}
	if n > len(presets) {
		n = len(presets)
	}
	return presets[:n]
}

const conservativePlanHTML = `<h3>治疗目标</h3>
<p>缓解症状，改善生活质量，避免过度医疗干预。</p>
<h3>药物治疗</h3>
<p><strong>治疗原则：</strong>优先选择相对安全的药物，从小剂量开始。</p>
<p><strong>推荐药物：</strong>对症治疗药物，医生根据病情开具。</p>
<h3>非药物治疗</h3>
<ul>
<li>休息：保证充足睡眠，避免过度劳累</li>
<li>饮食：清淡饮食，多喝水</li>
<li>生活方式：规律作息，避免不良习惯</li>
</ul>
<h3>复诊与随访</h3>
<ul>
<li>1周后复诊评估症状改善情况</li>
<li>如症状无改善或加重，及时就医</li>
</ul>
<h3>预警信号</h3>
<ul>
<li>症状持续加重</li>
<li>出现新的严重症状</li>
</ul>`

const aggressivePlanHTML = `<h3>治疗目标</h3>
<p>快速缓解症状，尽快恢复正常生活和工作。</p>
<h3>药物治疗</h3>
<p><strong>治疗原则：</strong>采用更积极的药物治疗策略，争取快速见效。</p>
<p><strong>推荐药物：</strong>根据病情选择疗效较好的药物组合。</p>
<h3>非药物治疗</h3>
<ul>
<li>休息：适当休息，避免剧烈活动</li>
<li>饮食：营养丰富，促进恢复</li>
<li>康复：配合适当的康复锻炼</li>
</ul>
<h3>复诊与随访</h3>
<ul>
<li>3-5天后复诊，评估治疗效果</li>
<li>定期监测病情变化</li>
</ul>
<h3>预警信号</h3>
<ul>
<li>治疗无效或症状加重</li>
<li>药物不良反应</li>
</ul>`

const comprehensivePlanHTML = `<h3>治疗目标</h3>
<p>全面改善症状，提高整体健康水平，预防复发。</p>
<h3>药物治疗</h3>
<p><strong>治疗原则：</strong>药物治疗结合非药物治疗，形成综合治疗体系。</p>
<p><strong>推荐药物：</strong>根据患者具体情况选择合适的药物。</p>
<h3>非药物治疗</h3>
<ul>
<li>生活方式干预：改善作息、饮食和运动习惯</li>
<li>心理支持：必要时寻求心理咨询</li>
<li>康复治疗：配合物理治疗等辅助手段</li>
</ul>
<h3>复诊与随访</h3>
<ul>
<li>定期复诊，监测治疗效果</li>
<li>根据病情调整治疗方案</li>
<li>长期随访，预防疾病复发</li>
</ul>
<h3>预警信号</h3>
<ul>
<li>症状反复或加重</li>
<li>出现并发症迹象</li>
<li>治疗效果不佳</li>
</ul>`
