package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/storymaker/internal/db"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gorm.io/gorm"
)

var (
	ErrPostNotFound = errors.New("post not found")
)

// fallbackAuthorID is the site owner account used when neither the prompt
// author nor a logged-in user can be resolved.
const fallbackAuthorID uint = 1

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
	goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
)

var contentSanitizer = buildContentSanitizer()

func buildContentSanitizer() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("src", "alt").OnElements("img")
	policy.AllowAttrs("class").OnElements("p", "figure")
	return policy
}

// RecentPost 是去重上下文中的一条近期文章摘要。
type RecentPost struct {
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

// StoryPostInput bundles everything needed to persist one generated story.
type StoryPostInput struct {
	Story         GeneratedStory
	Content       string
	Category      string
	AuthorLogin   string
	CurrentUserID uint
	AutoPublish   bool
	FeaturedImage string
	RequestID     string
	TotalTokens   int
	GeneratedVia  string
}

// PostService wraps post related database operations.
type PostService struct {
	db *gorm.DB
}

// NewPostService creates a PostService instance.
func NewPostService(gdb *gorm.DB) *PostService {
	return &PostService{db: gdb}
}

// RecentPublished returns title and excerpt of the most recently published
// posts in the given category, newest first, capped at limit.
func (s *PostService) RecentPublished(category string, limit int) ([]RecentPost, error) {
	if limit <= 0 {
		limit = 20
	}

	query := s.db.Model(&db.Post{}).
		Where("posts.status = ?", db.PostStatusPublished).
		Order("posts.created_at desc").
		Limit(limit)

	category = strings.TrimSpace(category)
	if category != "" {
		query = query.
			Joins("JOIN categories ON categories.id = posts.category_id").
			Where("categories.name = ?", category)
	}

	var rows []RecentPost
	if err := query.Select("posts.title, posts.excerpt").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateStoryPost persists a generated story as a post with its category,
// tags, author and metadata inside one transaction. input.Content is the
// final HTML after image resolution and attribution; when empty the raw story
// content is used.
func (s *PostService) CreateStoryPost(input StoryPostInput) (*db.Post, error) {
	content := input.Content
	if strings.TrimSpace(content) == "" {
		content = input.Story.Content
	}
	content = renderStoryContent(content)

	status := db.PostStatusDraft
	if input.AutoPublish {
		status = db.PostStatusPublished
	}

	post := db.Post{
		Title:         strings.TrimSpace(input.Story.Title),
		Content:       content,
		Excerpt:       strings.TrimSpace(input.Story.Excerpt),
		Status:        status,
		AuthorID:      s.AuthorID(input.AuthorLogin, input.CurrentUserID),
		FeaturedImage: strings.TrimSpace(input.FeaturedImage),
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		category, err := resolveCategory(tx, input.Category)
		if err != nil {
			return err
		}
		if category != nil {
			post.CategoryID = category.ID
		}

		tags, err := resolveTags(tx, input.Story.Tags)
		if err != nil {
			return err
		}
		post.Tags = tags

		if err := tx.Create(&post).Error; err != nil {
			return fmt.Errorf("insert post: %w", err)
		}

		return createStoryMeta(tx, post.ID, input)
	})
	if err != nil {
		return nil, err
	}

	return &post, nil
}

// GetPost loads one post with its associations.
func (s *PostService) GetPost(id uint) (*db.Post, error) {
	var post db.Post
	if err := s.db.Preload("Category").Preload("Tags").Preload("Author").First(&post, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	return &post, nil
}

// ListRecent returns the latest posts for the admin listing.
func (s *PostService) ListRecent(limit int) ([]db.Post, error) {
	if limit <= 0 {
		limit = 50
	}
	var posts []db.Post
	if err := s.db.Preload("Category").Preload("Tags").Order("created_at desc").Limit(limit).Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// AuthorID resolves the post author: the prompt's author login when it maps
// to an account, otherwise the triggering user, otherwise the site owner.
func (s *PostService) AuthorID(authorLogin string, currentUserID uint) uint {
	var loginUserID uint
	login := strings.TrimSpace(authorLogin)
	if login != "" {
		var user db.User
		if err := s.db.Where("username = ?", login).First(&user).Error; err == nil {
			loginUserID = user.ID
		}
	}
	return resolveAuthor(loginUserID, currentUserID, fallbackAuthorID)
}

// resolveAuthor 按"提示词作者 → 当前用户 → 站点默认作者"的优先级取作者 ID。
func resolveAuthor(loginUserID, currentUserID, fallbackID uint) uint {
	if loginUserID != 0 {
		return loginUserID
	}
	if currentUserID != 0 {
		return currentUserID
	}
	return fallbackID
}

func resolveCategory(tx *gorm.DB, name string) (*db.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var category db.Category
	if err := tx.Where("name = ?", name).FirstOrCreate(&category, db.Category{Name: name}).Error; err != nil {
		return nil, fmt.Errorf("resolve category %q: %w", name, err)
	}
	return &category, nil
}

func resolveTags(tx *gorm.DB, names []string) ([]db.Tag, error) {
	tags := make([]db.Tag, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		var tag db.Tag
		if err := tx.Where("name = ?", name).FirstOrCreate(&tag, db.Tag{Name: name}).Error; err != nil {
			return nil, fmt.Errorf("resolve tag %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func createStoryMeta(tx *gorm.DB, postID uint, input StoryPostInput) error {
	sources, err := json.Marshal(input.Story.References)
	if err != nil {
		return fmt.Errorf("encode references: %w", err)
	}

	meta := []db.PostMeta{
		{PostID: postID, Key: db.MetaKeySources, Value: string(sources)},
		{PostID: postID, Key: db.MetaKeyTotalTokens, Value: fmt.Sprintf("%d", input.TotalTokens)},
		{PostID: postID, Key: db.MetaKeyRequestID, Value: input.RequestID},
		{PostID: postID, Key: db.MetaKeyGeneratedVia, Value: input.GeneratedVia},
	}
	if err := tx.Create(&meta).Error; err != nil {
		return fmt.Errorf("insert post meta: %w", err)
	}
	return nil
}

// renderStoryContent sanitizes model HTML before storage. Content without any
// markup is treated as markdown and rendered first; models fall back to
// markdown often enough that this path is worth keeping.
func renderStoryContent(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	if !htmlTagPattern.MatchString(trimmed) {
		var buf bytes.Buffer
		if err := markdownEngine.Convert([]byte(trimmed), &buf); err == nil {
			trimmed = buf.String()
		}
	}

	return contentSanitizer.Sanitize(trimmed)
}
