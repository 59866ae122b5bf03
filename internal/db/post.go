package db

import "gorm.io/gorm"

const (
	// PostStatusPublished 表示已发布的文章。
	PostStatusPublished = "publish"
	// PostStatusDraft 表示草稿。
	PostStatusDraft = "draft"
)

// Post 定义了生成文章模型
type Post struct {
	gorm.Model
	Title         string
	Content       string `gorm:"type:text"`
	Excerpt       string
	Status        string `gorm:"size:20;index;default:'draft'"`
	CategoryID    uint   `gorm:"index"`
	Category      Category
	AuthorID      uint `gorm:"index"`
	Author        User
	FeaturedImage string
	Tags          []Tag `gorm:"many2many:post_tags;"`
}
