package db

import "gorm.io/gorm"

// Tag 定义了标签模型。标签来自模型输出的 tags 字段，
// 入库时按名称去重复用已有记录。
type Tag struct {
	gorm.Model
	Name  string `gorm:"unique;not null"`
	Posts []Post `gorm:"many2many:post_tags;"`
}
