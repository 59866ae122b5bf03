package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storymaker/internal/db"
	"github.com/storymaker/internal/service"
)

// GetPosts 返回最近生成的文章列表，供后台查看。
func (a *API) GetPosts(c *gin.Context) {
	posts, err := a.posts.ListRecent(50)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load posts")
		return
	}
	c.JSON(http.StatusOK, posts)
}

// ShowPost 返回单篇文章的公开视图，草稿不对外可见。
func (a *API) ShowPost(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	post, err := a.posts.GetPost(id)
	if err != nil {
		if errors.Is(err, service.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, "post not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to load post")
		return
	}

	if post.Status != db.PostStatusPublished {
		respondError(c, http.StatusNotFound, "post not found")
		return
	}

	tags := make([]string, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tags = append(tags, tag.Name)
	}

	c.JSON(http.StatusOK, gin.H{
		"id":             post.ID,
		"title":          post.Title,
		"content":        post.Content,
		"excerpt":        post.Excerpt,
		"category":       post.Category.Name,
		"tags":           tags,
		"featured_image": post.FeaturedImage,
		"published_at":   post.CreatedAt,
	})
}
