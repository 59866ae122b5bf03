package db

import "gorm.io/gorm"

// Setting 存储后台可配置的系统级键值对。
type Setting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (Setting) TableName() string {
	return "settings"
}

const (
	// SettingKeyOpenAIAPIKey 表示本地 OpenAI API Key。
	SettingKeyOpenAIAPIKey = "openai_api_key"
	// SettingKeyUnsplashAPIKey 表示 Unsplash 图片搜索 API Key。
	SettingKeyUnsplashAPIKey = "unsplash_api_key"
	// SettingKeyMasterURL 表示 Master 服务的基础地址。
	SettingKeyMasterURL = "master_url"
	// SettingKeyIntervalDays 表示自动生成的间隔天数，0 表示关闭。
	SettingKeyIntervalDays = "interval_days"
	// SettingKeyShowAttribution 表示是否在文章末尾追加生成标注。
	SettingKeyShowAttribution = "show_attribution"
	// SettingKeyPromptSettings 保存 {default_settings, prompts} JSON 配置。
	SettingKeyPromptSettings = "prompt_settings"
)
