package router

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/storymaker/internal/config"
	"github.com/storymaker/internal/handler"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(cfg config.AppConfig, api *handler.API) *gin.Engine {
	r := gin.Default()

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions("storymaker_session", store))

	// 旁路下载的特色图通过静态路径对外提供
	r.Static(cfg.UploadURLPath, cfg.UploadDir)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// 公开文章视图
	r.GET("/posts/:id", api.ShowPost)

	// 后台管理路由
	admin := r.Group("/admin")
	{
		admin.POST("/login", api.Login)
		admin.GET("/logout", api.Logout)

		// 需要认证的后台路由
		auth := admin.Group("")
		auth.Use(handler.AuthRequired())
		{
			authAPI := auth.Group("/api")
			{
				authAPI.POST("/generate", api.TriggerGeneration)
				authAPI.GET("/generate/status", api.GenerationStatus)

				authAPI.GET("/posts", api.GetPosts)

				authAPI.GET("/prompts", api.GetPromptSettings)
				authAPI.PUT("/prompts", api.UpdatePromptSettings)
				authAPI.POST("/prompts", api.CreatePrompt)
				authAPI.PUT("/prompts/:id", api.UpdatePrompt)
				authAPI.DELETE("/prompts/:id", api.DeletePrompt)

				authAPI.GET("/settings", api.GetSystemSettings)
				authAPI.PUT("/settings", api.UpdateSystemSettings)

				authAPI.GET("/logs", api.GetLogs)
			}
		}
	}

	return r
}
