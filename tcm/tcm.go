// Package tcm implements the traditional Chinese medicine diagnostics:
// visual inspection of face and tongue photos, symptom inquiry, and pulse
// reading, plus a small health-archive store for diagnosis history.
package tcm

import (
	"context"
	"encoding/json"
	"strings"

	"medai-backend/qwen"
)

type Completer interface {
	ChatCompletion(ctx context.Context, model string, messages []qwen.Message, temperature float32, maxTokens int) (qwen.Completion, error)
}

const visionSystemPrompt = "你是一位资深的中医专家，依据望诊（面诊与舌诊）给出结构化、专业且通俗易懂的分析与建议。回复中不要包含本提示语。"

const inquirySystemPrompt = "你是一位经验丰富的中医师，依据患者信息与症状进行辨证与建议。回复中不要包含本提示语。"

const pulseSystemPrompt = "你是一位精通脉诊的中医师，根据脉象特征给出分析与建议。回复中不要包含本提示语。"

const visionJSONInstruction = "请基于以上面诊/舌诊图像输出严格的JSON（仅JSON，不要额外说明）。" +
	"字段结构：{\n" +
	"  \"face\": { \"complexion\": string, \"features\": [string], \"constitution\": string, \"analysis\": string },\n" +
	"  \"tongue\": { \"bodyColor\": string, \"bodyShape\": string, \"coatingColor\": string, \"coatingThickness\": string, \"moisture\": string, \"constitution\": string, \"analysis\": string },\n" +
	"  \"zangfu\": { \"liver\": string, \"heart\": string, \"spleen\": string, \"lung\": string, \"kidney\": string },\n" +
	"  \"syndromes\": [ { \"name\": string, \"basis\": [string] } ],\n" +
	"  \"treatment\": { \"principle\": string, \"formula\": string, \"acupoints\": [string], \"herbal\": [string] },\n" +
	"  \"lifestyle\": { \"diet\": [string], \"exercise\": [string], \"sleep\": [string], \"emotion\": [string] }\n" +
	"}。仅输出JSON，且所有字段尽量完整，不要包含提示语或说明性文字。"

// InspectionImage is one uploaded photo for the visual exam. Type is
// "face" or "tongue"; Data carries the data URL.
type InspectionImage struct {
	Type        string `json:"type"`
	Data        string `json:"data"`
	Description string `json:"description"`
}

// PatientInfo is the minimal demographic block for the inquiry exam.
type PatientInfo struct {
	Age    any    `json:"age"`
	Gender string `json:"gender"`
}

// PulseCharacteristics describes a felt pulse for the pulse exam.
type PulseCharacteristics struct {
	Rate        string `json:"rate"`
	Strength    string `json:"strength"`
	Form        string `json:"form"`
	Description string `json:"description"`
}

// Empty reports whether no characteristic was provided.
func (p PulseCharacteristics) Empty() bool {
	return p.Rate == "" && p.Strength == "" && p.Form == "" && p.Description == ""
}

// Service runs the three TCM exams against the multimodal model.
type Service struct {
	ai    Completer
	model string
}

func NewService(ai Completer, model string) *Service {
	return &Service{ai: ai, model: model}
}

// VisionAnalyze interprets face and tongue photos. The model is asked for
// strict JSON; free-text replies degrade to keyword section extraction.
func (s *Service) VisionAnalyze(ctx context.Context, images []InspectionImage) (map[string]any, error) {
	parts := make([]qwen.ContentPart, 0, len(images)*2+1)
	for _, img := range images {
		switch img.Type {
		case "face":
			parts = append(parts, qwen.TextPart("请分析这张面部图像的中医特征："+img.Description))
		case "tongue":
			parts = append(parts, qwen.TextPart("请分析这张舌象图像的中医特征："+img.Description))
		}
		parts = append(parts, qwen.ImagePart(img.Data))
	}
	parts = append(parts, qwen.TextPart(visionJSONInstruction))

	messages := []qwen.Message{
		qwen.Text(qwen.RoleSystem, visionSystemPrompt),
		qwen.Multimodal(qwen.RoleUser, parts...),
	}
	out, err := s.ai.ChatCompletion(ctx, s.model, messages, 0.3, 1200)
	if err != nil {
		return nil, err
	}
	return parseVisionReply(out.Text, images), nil
}

// InquiryAnalyze performs syndrome differentiation from reported symptoms.
func (s *Service) InquiryAnalyze(ctx context.Context, patient PatientInfo, symptoms []string) (map[string]any, error) {
	symptomsText := "无特殊症状"
	if len(symptoms) > 0 {
		symptomsText = strings.Join(symptoms, "、")
	}
	age := "未知"
	if patient.Age != nil {
		if b, err := json.Marshal(patient.Age); err == nil {
			age = strings.Trim(string(b), `"`)
		}
	}
	gender := "女性"
	if patient.Gender == "male" {
		gender = "男性"
	}
	userMessage := "\n患者基本信息：\n" +
		"- 年龄：" + age + "岁\n" +
		"- 性别：" + gender + "\n\n" +
		"主要症状：" + symptomsText + "\n\n" +
		"请进行中医辨证分析并给出相应的治疗建议。\n"

	messages := []qwen.Message{
		qwen.Text(qwen.RoleSystem, inquirySystemPrompt),
		qwen.Text(qwen.RoleUser, userMessage),
	}
	out, err := s.ai.ChatCompletion(ctx, s.model, messages, 0.3, 1200)
	if err != nil {
		return nil, err
	}
	return parseInquiryReply(out.Text), nil
}

// PulseAnalyze interprets a described pulse.
func (s *Service) PulseAnalyze(ctx context.Context, pulse PulseCharacteristics) (map[string]any, error) {
	var desc []string
	if pulse.Rate != "" {
		desc = append(desc, "脉率："+pulse.Rate)
	}
	if pulse.Strength != "" {
		desc = append(desc, "脉力："+pulse.Strength)
	}
	if pulse.Form != "" {
		desc = append(desc, "脉形："+pulse.Form)
	}
	if pulse.Description != "" {
		desc = append(desc, "详细描述："+pulse.Description)
	}
	pulseText := "脉象信息不完整"
	if len(desc) > 0 {
		pulseText = strings.Join(desc, "、")
	}
	userMessage := "患者脉象特征：" + pulseText + "\n\n请进行专业的中医脉诊分析。"

	messages := []qwen.Message{
		qwen.Text(qwen.RoleSystem, pulseSystemPrompt),
		qwen.Text(qwen.RoleUser, userMessage),
	}
	out, err := s.ai.ChatCompletion(ctx, s.model, messages, 0.3, 1000)
	if err != nil {
		return nil, err
	}
	return parsePulseReply(out.Text), nil
}
