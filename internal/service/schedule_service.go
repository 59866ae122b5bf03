package service

import (
	"errors"
	"time"

	"github.com/storymaker/internal/db"
	"gorm.io/gorm"
)

// ScheduleService 维护全表至多一行的下一次自动生成时间。
type ScheduleService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewScheduleService 构造 ScheduleService。
func NewScheduleService(gdb *gorm.DB) *ScheduleService {
	return &ScheduleService{db: gdb, now: time.Now}
}

// ScheduleNext 清除已有排期并按间隔天数写入下一次运行时间。
// intervalDays 为 0 时只做清除，即关闭自动生成。
// 每次生成结束后必须无条件调用，保证单次失败不会终止后续的自动运行。
func (s *ScheduleService) ScheduleNext(intervalDays int) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&db.ScheduledRun{}).Error; err != nil {
			return err
		}
		if intervalDays <= 0 {
			return nil
		}
		next := s.now().Add(time.Duration(intervalDays) * 24 * time.Hour)
		return tx.Create(&db.ScheduledRun{NextRunAt: next}).Error
	})
}

// NextRun 返回当前排期时间；不存在排期时第二个返回值为 false。
func (s *ScheduleService) NextRun() (time.Time, bool, error) {
	var record db.ScheduledRun
	err := s.db.Order("id desc").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return record.NextRunAt, true, nil
}

// Due 报告是否存在已到期的排期。
func (s *ScheduleService) Due() (bool, error) {
	next, ok, err := s.NextRun()
	if err != nil || !ok {
		return false, err
	}
	return !next.After(s.now()), nil
}
