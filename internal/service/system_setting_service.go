package service

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/storymaker/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAPIKeyMissing = errors.New("api key is required")

// SystemSettings 描述后台可配置的系统信息。
type SystemSettings struct {
	OpenAIAPIKey    string
	UnsplashAPIKey  string
	MasterURL       string
	IntervalDays    int
	ShowAttribution bool
}

// SystemSettingsInput 用于更新系统设置。
type SystemSettingsInput struct {
	OpenAIAPIKey    string
	UnsplashAPIKey  string
	MasterURL       string
	IntervalDays    int
	ShowAttribution bool
}

// SystemSettingService 提供系统设置的读取与更新能力。
type SystemSettingService struct {
	db *gorm.DB
}

// NewSystemSettingService 构造 SystemSettingService。
func NewSystemSettingService(gdb *gorm.DB) *SystemSettingService {
	return &SystemSettingService{db: gdb}
}

var systemSettingKeys = []string{
	db.SettingKeyOpenAIAPIKey,
	db.SettingKeyUnsplashAPIKey,
	db.SettingKeyMasterURL,
	db.SettingKeyIntervalDays,
	db.SettingKeyShowAttribution,
}

// GetSettings 读取系统设置。数据库中未配置的 Key 回退到同名环境变量，
// 便于在容器环境中注入密钥。
func (s *SystemSettingService) GetSettings() (SystemSettings, error) {
	result := SystemSettings{}

	var records []db.Setting
	if err := s.db.Where("key IN ?", systemSettingKeys).Find(&records).Error; err != nil {
		return result, fmt.Errorf("load system settings: %w", err)
	}

	for _, record := range records {
		value := strings.TrimSpace(record.Value)
		switch record.Key {
		case db.SettingKeyOpenAIAPIKey:
			result.OpenAIAPIKey = value
		case db.SettingKeyUnsplashAPIKey:
			result.UnsplashAPIKey = value
		case db.SettingKeyMasterURL:
			result.MasterURL = strings.TrimRight(value, "/")
		case db.SettingKeyIntervalDays:
			if days, err := strconv.Atoi(value); err == nil && days >= 0 {
				result.IntervalDays = days
			}
		case db.SettingKeyShowAttribution:
			result.ShowAttribution = value == "1" || strings.EqualFold(value, "true")
		}
	}

	if result.OpenAIAPIKey == "" {
		result.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if result.UnsplashAPIKey == "" {
		result.UnsplashAPIKey = strings.TrimSpace(os.Getenv("UNSPLASH_API_KEY"))
	}
	if result.MasterURL == "" {
		result.MasterURL = strings.TrimRight(strings.TrimSpace(os.Getenv("MASTER_URL")), "/")
	}

	return result, nil
}

// UpdateSettings 保存系统设置。
func (s *SystemSettingService) UpdateSettings(input SystemSettingsInput) (SystemSettings, error) {
	if input.IntervalDays < 0 {
		input.IntervalDays = 0
	}

	sanitized := SystemSettings{
		OpenAIAPIKey:    strings.TrimSpace(input.OpenAIAPIKey),
		UnsplashAPIKey:  strings.TrimSpace(input.UnsplashAPIKey),
		MasterURL:       strings.TrimRight(strings.TrimSpace(input.MasterURL), "/"),
		IntervalDays:    input.IntervalDays,
		ShowAttribution: input.ShowAttribution,
	}

	attribution := "0"
	if sanitized.ShowAttribution {
		attribution = "1"
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := upsertSetting(tx, db.SettingKeyOpenAIAPIKey, sanitized.OpenAIAPIKey); err != nil {
			return err
		}
		if err := upsertSetting(tx, db.SettingKeyUnsplashAPIKey, sanitized.UnsplashAPIKey); err != nil {
			return err
		}
		if err := upsertSetting(tx, db.SettingKeyMasterURL, sanitized.MasterURL); err != nil {
			return err
		}
		if err := upsertSetting(tx, db.SettingKeyIntervalDays, strconv.Itoa(sanitized.IntervalDays)); err != nil {
			return err
		}
		return upsertSetting(tx, db.SettingKeyShowAttribution, attribution)
	})
	if err != nil {
		return SystemSettings{}, fmt.Errorf("save system settings: %w", err)
	}

	return sanitized, nil
}

func upsertSetting(tx *gorm.DB, key, value string) error {
	record := db.Setting{Key: key, Value: value}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error
}
