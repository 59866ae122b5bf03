package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/storymaker/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrPromptSettingsInvalid 表示持久化的提示词配置无法解析。
	ErrPromptSettingsInvalid = errors.New("prompt settings blob is not valid JSON")
	// ErrPromptNotFound 表示找不到指定 ID 的提示词。
	ErrPromptNotFound = errors.New("prompt not found")
)

const (
	defaultStoryModel     = "gpt-4o-mini"
	defaultSystemContent  = "You are a professional blog writer. Respond with a JSON object containing title, content, excerpt, references and tags."
	defaultStoryMaxTokens = 1500
	defaultStoryTimeout   = 30
)

// DefaultSettings 描述所有提示词共享的生成默认值。
type DefaultSettings struct {
	Model         string `json:"model"`
	SystemContent string `json:"system_content"`
	MaxTokens     int    `json:"max_tokens"`
	Timeout       int    `json:"timeout"`
}

// PromptSpec 描述一条内容生成请求的配置。
// Model/SystemContent/MaxTokens/Timeout 为可选覆盖项，非零值优先于默认值。
type PromptSpec struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Category      string `json:"category"`
	PhotoCount    int    `json:"photos"`
	Active        bool   `json:"active"`
	AutoPublish   bool   `json:"auto_publish"`
	Author        string `json:"author,omitempty"`
	Model         string `json:"model,omitempty"`
	SystemContent string `json:"system_content,omitempty"`
	MaxTokens     int    `json:"max_tokens,omitempty"`
	Timeout       int    `json:"timeout,omitempty"`
}

// Runnable 判断提示词是否满足处理条件：有 ID、有正文且处于启用状态。
func (p PromptSpec) Runnable() bool {
	return strings.TrimSpace(p.ID) != "" && strings.TrimSpace(p.Text) != "" && p.Active
}

// PromptSettings 对应持久化的 {default_settings, prompts} JSON 配置。
type PromptSettings struct {
	Defaults DefaultSettings `json:"default_settings"`
	Prompts  []PromptSpec    `json:"prompts"`
}

// MergedSettings 是默认值与单条提示词覆盖项逐字段合并后的结果，
// 每次运行按提示词重新计算，不做持久化。
type MergedSettings struct {
	Model         string
	SystemContent string
	MaxTokens     int
	Timeout       int
}

// Merge 按"提示词覆盖项优先"的规则合并生成设置。
func (d DefaultSettings) Merge(p PromptSpec) MergedSettings {
	merged := MergedSettings{
		Model:         strings.TrimSpace(d.Model),
		SystemContent: strings.TrimSpace(d.SystemContent),
		MaxTokens:     d.MaxTokens,
		Timeout:       d.Timeout,
	}

	if v := strings.TrimSpace(p.Model); v != "" {
		merged.Model = v
	}
	if v := strings.TrimSpace(p.SystemContent); v != "" {
		merged.SystemContent = v
	}
	if p.MaxTokens > 0 {
		merged.MaxTokens = p.MaxTokens
	}
	if p.Timeout > 0 {
		merged.Timeout = p.Timeout
	}

	if merged.Model == "" {
		merged.Model = defaultStoryModel
	}
	if merged.SystemContent == "" {
		merged.SystemContent = defaultSystemContent
	}
	if merged.MaxTokens <= 0 {
		merged.MaxTokens = defaultStoryMaxTokens
	}
	if merged.Timeout <= 0 {
		merged.Timeout = defaultStoryTimeout
	}

	return merged
}

// PromptSettingService 管理提示词配置 JSON 的读写。
type PromptSettingService struct {
	db *gorm.DB
}

// NewPromptSettingService 构造 PromptSettingService。
func NewPromptSettingService(gdb *gorm.DB) *PromptSettingService {
	return &PromptSettingService{db: gdb}
}

// Get 读取并解析提示词配置。未配置时返回空集，解析失败返回
// ErrPromptSettingsInvalid。
func (s *PromptSettingService) Get() (PromptSettings, error) {
	var record db.Setting
	err := s.db.Where("key = ?", db.SettingKeyPromptSettings).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PromptSettings{}, nil
		}
		return PromptSettings{}, fmt.Errorf("load prompt settings: %w", err)
	}

	raw := strings.TrimSpace(record.Value)
	if raw == "" {
		return PromptSettings{}, nil
	}

	var settings PromptSettings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return PromptSettings{}, fmt.Errorf("%w: %v", ErrPromptSettingsInvalid, err)
	}

	return settings, nil
}

// Save 序列化并保存提示词配置，为缺失 ID 的提示词补齐 UUID。
func (s *PromptSettingService) Save(settings PromptSettings) (PromptSettings, error) {
	for i := range settings.Prompts {
		settings.Prompts[i].Text = strings.TrimSpace(settings.Prompts[i].Text)
		settings.Prompts[i].Category = strings.TrimSpace(settings.Prompts[i].Category)
		if strings.TrimSpace(settings.Prompts[i].ID) == "" {
			settings.Prompts[i].ID = uuid.New().String()
		}
		if settings.Prompts[i].PhotoCount < 0 {
			settings.Prompts[i].PhotoCount = 0
		}
	}

	encoded, err := json.Marshal(settings)
	if err != nil {
		return PromptSettings{}, fmt.Errorf("encode prompt settings: %w", err)
	}

	if err := upsertSetting(s.db, db.SettingKeyPromptSettings, string(encoded)); err != nil {
		return PromptSettings{}, fmt.Errorf("save prompt settings: %w", err)
	}

	return settings, nil
}

// AddPrompt 追加一条提示词并返回补齐 ID 后的结果。
func (s *PromptSettingService) AddPrompt(prompt PromptSpec) (PromptSpec, error) {
	settings, err := s.Get()
	if err != nil {
		return PromptSpec{}, err
	}

	if strings.TrimSpace(prompt.ID) == "" {
		prompt.ID = uuid.New().String()
	}
	settings.Prompts = append(settings.Prompts, prompt)

	saved, err := s.Save(settings)
	if err != nil {
		return PromptSpec{}, err
	}
	return saved.Prompts[len(saved.Prompts)-1], nil
}

// UpdatePrompt 按 ID 替换提示词内容。
func (s *PromptSettingService) UpdatePrompt(prompt PromptSpec) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	for i := range settings.Prompts {
		if settings.Prompts[i].ID == prompt.ID {
			settings.Prompts[i] = prompt
			_, err = s.Save(settings)
			return err
		}
	}

	return ErrPromptNotFound
}

// DeletePrompt 按 ID 删除提示词。
func (s *PromptSettingService) DeletePrompt(id string) error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	kept := settings.Prompts[:0]
	found := false
	for _, prompt := range settings.Prompts {
		if prompt.ID == id {
			found = true
			continue
		}
		kept = append(kept, prompt)
	}
	if !found {
		return ErrPromptNotFound
	}

	settings.Prompts = kept
	_, err = s.Save(settings)
	return err
}
