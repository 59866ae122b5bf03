package service

import (
	"time"

	"github.com/storymaker/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	generationLockName = "story_generation"
	// generationLockTTL 是锁的自愈时限：持锁进程崩溃后锁到期自动失效。
	generationLockTTL = 10 * time.Minute
)

// RunLockService 基于带过期时间的数据库行实现跨请求互斥，
// 保证同一时刻至多一个生成任务在执行。
type RunLockService struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewRunLockService 构造 RunLockService。
func NewRunLockService(gdb *gorm.DB) *RunLockService {
	return &RunLockService{db: gdb, ttl: generationLockTTL, now: time.Now}
}

// TryAcquire 在锁未被持有时写入锁记录并返回 true；已被持有时返回 false。
// 过期的锁记录在尝试获取前被清理。
func (s *RunLockService) TryAcquire() (bool, error) {
	now := s.now()

	if err := s.db.Where("name = ? AND expires_at <= ?", generationLockName, now).
		Delete(&db.RunLock{}).Error; err != nil {
		return false, err
	}

	record := db.RunLock{Name: generationLockName, ExpiresAt: now.Add(s.ttl)}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&record)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected > 0, nil
}

// ForceAcquire 无条件接管锁，仅供后台手动触发的强制生成使用。
func (s *RunLockService) ForceAcquire() error {
	if err := s.Release(); err != nil {
		return err
	}
	record := db.RunLock{Name: generationLockName, ExpiresAt: s.now().Add(s.ttl)}
	return s.db.Create(&record).Error
}

// Release 无条件清除锁记录。所有生成路径都必须保证其执行。
func (s *RunLockService) Release() error {
	return s.db.Where("name = ?", generationLockName).Delete(&db.RunLock{}).Error
}

// Locked 报告当前是否存在未过期的锁。
func (s *RunLockService) Locked() (bool, error) {
	var count int64
	err := s.db.Model(&db.RunLock{}).
		Where("name = ? AND expires_at > ?", generationLockName, s.now()).
		Count(&count).Error
	return count > 0, err
}
