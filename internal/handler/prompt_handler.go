package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storymaker/internal/service"
)

// GetPromptSettings 返回完整的提示词配置（默认值 + 提示词列表）。
func (a *API) GetPromptSettings(c *gin.Context) {
	settings, err := a.prompts.Get()
	if err != nil {
		if errors.Is(err, service.ErrPromptSettingsInvalid) {
			respondError(c, http.StatusInternalServerError, err.Error())
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to load prompt settings")
		return
	}
	c.JSON(http.StatusOK, settings)
}

// UpdatePromptSettings 整体保存提示词配置。
func (a *API) UpdatePromptSettings(c *gin.Context) {
	var settings service.PromptSettings
	if !bindJSON(c, &settings, "invalid prompt settings payload") {
		return
	}

	saved, err := a.prompts.Save(settings)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to save prompt settings")
		return
	}
	c.JSON(http.StatusOK, saved)
}

// CreatePrompt 追加一条提示词。
func (a *API) CreatePrompt(c *gin.Context) {
	var prompt service.PromptSpec
	if !bindJSON(c, &prompt, "invalid prompt payload") {
		return
	}

	created, err := a.prompts.AddPrompt(prompt)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "failed to add prompt")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdatePrompt 按 ID 更新提示词。
func (a *API) UpdatePrompt(c *gin.Context) {
	var prompt service.PromptSpec
	if !bindJSON(c, &prompt, "invalid prompt payload") {
		return
	}
	prompt.ID = c.Param("id")

	if err := a.prompts.UpdatePrompt(prompt); err != nil {
		if errors.Is(err, service.ErrPromptNotFound) {
			respondError(c, http.StatusNotFound, "prompt not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to update prompt")
		return
	}
	c.JSON(http.StatusOK, prompt)
}

// DeletePrompt 按 ID 删除提示词。
func (a *API) DeletePrompt(c *gin.Context) {
	if err := a.prompts.DeletePrompt(c.Param("id")); err != nil {
		if errors.Is(err, service.ErrPromptNotFound) {
			respondError(c, http.StatusNotFound, "prompt not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "failed to delete prompt")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "prompt deleted"})
}
