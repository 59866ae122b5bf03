package db

import "time"

const (
	// LogTypeInfo 表示普通信息。
	LogTypeInfo = "info"
	// LogTypeSuccess 表示一次成功的生成。
	LogTypeSuccess = "success"
	// LogTypeError 表示失败事件。
	LogTypeError = "error"
)

// GenerationLog 记录生成流程的审计日志，按时间追加。
type GenerationLog struct {
	ID        uint   `gorm:"primaryKey"`
	Type      string `gorm:"size:20;index"`
	Message   string `gorm:"type:text"`
	RequestID string `gorm:"size:64;index"`
	CreatedAt time.Time
}

// TableName 指定自定义表名。
func (GenerationLog) TableName() string {
	return "generation_logs"
}
