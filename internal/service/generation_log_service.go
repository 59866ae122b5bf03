package service

import (
	"log"
	"strings"
	"unicode/utf8"

	"github.com/storymaker/internal/db"
	"gorm.io/gorm"
)

const maxLogSnippetRunes = 1024

// GenerationLogService 负责生成流程的审计日志：追加写入数据库并同步输出到进程日志。
type GenerationLogService struct {
	db *gorm.DB
}

// NewGenerationLogService 构造 GenerationLogService。
func NewGenerationLogService(gdb *gorm.DB) *GenerationLogService {
	return &GenerationLogService{db: gdb}
}

// Info 记录一条普通信息。
func (s *GenerationLogService) Info(requestID, message string) {
	s.append(db.LogTypeInfo, requestID, message)
}

// Success 记录一次成功的生成。
func (s *GenerationLogService) Success(requestID, message string) {
	s.append(db.LogTypeSuccess, requestID, message)
}

// Error 记录一次失败事件。
func (s *GenerationLogService) Error(requestID, message string) {
	s.append(db.LogTypeError, requestID, message)
}

// Recent 返回最新的 limit 条日志，供后台日志表展示。
func (s *GenerationLogService) Recent(limit int) ([]db.GenerationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []db.GenerationLog
	if err := s.db.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GenerationLogService) append(kind, requestID, message string) {
	trimmed := strings.TrimSpace(message)
	snippet := trimmed
	if utf8.RuneCountInString(snippet) > maxLogSnippetRunes {
		snippet = string([]rune(snippet)[:maxLogSnippetRunes]) + "…(truncated)"
	}
	log.Printf("[generation %s] %s: %s", kind, requestID, snippet)

	record := db.GenerationLog{Type: kind, Message: trimmed, RequestID: strings.TrimSpace(requestID)}
	if err := s.db.Create(&record).Error; err != nil {
		// 审计日志写入失败不应中断生成流程
		log.Printf("[generation] failed to persist log entry: %v", err)
	}
}
