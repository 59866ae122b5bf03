package db

import "time"

// RunLock 是带过期时间的全局互斥标记，用于防止生成任务并发执行。
type RunLock struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:100;uniqueIndex;not null"`
	ExpiresAt time.Time
	CreatedAt time.Time
}

// TableName 指定自定义表名。
func (RunLock) TableName() string {
	return "run_locks"
}
