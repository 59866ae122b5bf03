package db

import "time"

// ScheduledRun 保存下一次自动生成的时间，全表至多一行。
type ScheduledRun struct {
	ID        uint      `gorm:"primaryKey"`
	NextRunAt time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定自定义表名。
func (ScheduledRun) TableName() string {
	return "scheduled_runs"
}
