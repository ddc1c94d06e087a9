package tcm

import "encoding/json"

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func strList(v any) []string {
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

func objOrEmpty(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func listOrEmpty(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{}
}

// parseVisionReply prefers the strict JSON envelope. When the model answered
// in prose, the face and tongue sections are recovered by keyword scan over
// the text, keyed off which image types were actually uploaded.
func parseVisionReply(content string, images []InspectionImage) map[string]any {
	var data map[string]any
	if err := json.Unmarshal([]byte(content), &data); err == nil && data != nil {
		face := objOrEmpty(data["face"])
		tongue := objOrEmpty(data["tongue"])
		faceAnalysis := str(face, "analysis")
		if faceAnalysis == "" {
			faceAnalysis = str(face, "complexion")
		}
		result := map[string]any{
			"face": map[string]any{
				"analysis":     faceAnalysis,
				"constitution": str(face, "constitution"),
				"complexion":   str(face, "complexion"),
				"features":     strList(face["features"]),
			},
			"tongue": map[string]any{
				"analysis":         str(tongue, "analysis"),
				"constitution":     str(tongue, "constitution"),
				"bodyColor":        str(tongue, "bodyColor"),
				"bodyShape":        str(tongue, "bodyShape"),
				"coatingColor":     str(tongue, "coatingColor"),
				"coatingThickness": str(tongue, "coatingThickness"),
				"moisture":         str(tongue, "moisture"),
			},
			"zangfu":    objOrEmpty(data["zangfu"]),
			"syndromes": listOrEmpty(data["syndromes"]),
			"treatment": objOrEmpty(data["treatment"]),
		}
		lifestyle := objOrEmpty(data["lifestyle"])
		suggestions := []string{}
		for _, k := range []string{"diet", "exercise", "sleep", "emotion"} {
			suggestions = append(suggestions, strList(lifestyle[k])...)
		}
		result["suggestions"] = suggestions
		return result
	}

	result := map[string]any{}
	for _, img := range images {
		switch img.Type {
		case "face":
			if _, done := result["face"]; !done {
				result["face"] = map[string]any{
					"analysis":     ExtractSection(content, []string{"面诊", "面色", "气色"}),
					"constitution": ExtractSection(content, []string{"体质", "面诊体质"}),
					"suggestions":  ExtractSuggestions(content),
				}
			}
		case "tongue":
			if _, done := result["tongue"]; !done {
				result["tongue"] = map[string]any{
					"analysis":     ExtractSection(content, []string{"舌诊", "舌象", "舌质", "舌苔"}),
					"constitution": ExtractSection(content, []string{"体质", "舌诊体质"}),
					"suggestions":  ExtractSuggestions(content),
				}
			}
		}
	}
	if len(result) == 0 {
		result = map[string]any{
			"general_analysis": content,
			"suggestions":      []string{"请咨询专业中医师获得更详细的诊断"},
		}
	}
	return result
}

func parseInquiryReply(content string) map[string]any {
	return map[string]any{
		"syndrome_differentiation": ExtractSection(content, []string{"辨证", "证候", "诊断"}),
		"constitution_type":        ExtractSection(content, []string{"体质", "体质类型"}),
		"treatment_principle":      ExtractSection(content, []string{"治疗原则", "治则", "治法"}),
		"herbal_formula":           ExtractSection(content, []string{"方剂", "药方", "中药"}),
		"lifestyle_suggestions":    ExtractSuggestions(content),
		"follow_up":                ExtractSection(content, []string{"复诊", "随访", "注意事项"}),
	}
}

func parsePulseReply(content string) map[string]any {
	return map[string]any{
		"pulse_analysis":          ExtractSection(content, []string{"脉象分析", "脉诊", "脉象"}),
		"constitution_assessment": ExtractSection(content, []string{"体质", "体质评估"}),
		"health_status":           ExtractSection(content, []string{"健康状况", "病理", "状态"}),
		"treatment_suggestions":   ExtractSuggestions(content),
		"meridian_status":         ExtractSection(content, []string{"经络", "气血", "经脉"}),
		"follow_up_advice":        ExtractSection(content, []string{"建议", "注意", "调理"}),
	}
}
