package db

import "time"

// PostMeta 以键值对形式保存文章的附加元数据。
type PostMeta struct {
	ID        uint   `gorm:"primaryKey"`
	PostID    uint   `gorm:"index:idx_post_meta_post_key,unique"`
	Key       string `gorm:"size:100;index:idx_post_meta_post_key,unique"`
	Value     string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 指定自定义表名，避免自动复数化导致的歧义。
func (PostMeta) TableName() string {
	return "post_meta"
}

const (
	// MetaKeySources 保存参考来源列表（JSON）。
	MetaKeySources = "sources"
	// MetaKeyTotalTokens 保存本次生成消耗的 token 总数。
	MetaKeyTotalTokens = "total_tokens"
	// MetaKeyRequestID 保存生成请求的关联 ID。
	MetaKeyRequestID = "request_id"
	// MetaKeyGeneratedVia 标记生成通道：master_api 或 openai_api。
	MetaKeyGeneratedVia = "generated_via"
)
