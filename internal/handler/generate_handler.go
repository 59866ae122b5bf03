package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storymaker/internal/service"
)

// TriggerGeneration 处理后台手动触发的生成请求。
// force=1 时跳过锁检查，强制开始一次新的运行。
func (a *API) TriggerGeneration(c *gin.Context) {
	force := c.Query("force") == "1" || c.Query("force") == "true"

	result, err := a.runner.Run(c.Request.Context(), force, currentUserID(c))
	if err != nil {
		if errors.Is(err, service.ErrGenerationLocked) {
			respondError(c, http.StatusConflict, err.Error())
			return
		}
		// setup 级失败：锁已释放、排期已更新，把错误返回给后台
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     err.Error(),
			"successes": result.Successes,
			"errors":    result.Errors,
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GenerationStatus 返回锁状态与最近日志，供后台面板轮询。
func (a *API) GenerationStatus(c *gin.Context) {
	locked, err := a.lock.Locked()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to read lock state")
		return
	}

	logs, err := a.logs.Recent(20)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to load logs")
		return
	}

	c.JSON(http.StatusOK, gin.H{"running": locked, "logs": logs})
}
