package handler

import (
	"github.com/storymaker/internal/config"
	"github.com/storymaker/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db      *gorm.DB
	system  *service.SystemSettingService
	prompts *service.PromptSettingService
	posts   *service.PostService
	logs    *service.GenerationLogService
	lock    *service.RunLockService
	runner  *service.GenerationRunner
}

// NewAPI constructs a handler set with shared services wired the way the
// generation pipeline expects them.
func NewAPI(gdb *gorm.DB, cfg config.AppConfig) *API {
	system := service.NewSystemSettingService(gdb)
	prompts := service.NewPromptSettingService(gdb)
	logs := service.NewGenerationLogService(gdb)
	posts := service.NewPostService(gdb)
	lock := service.NewRunLockService(gdb)
	schedule := service.NewScheduleService(gdb)

	master := service.NewMasterClient(system)
	openai := service.NewOpenAIStoryClient()
	images := service.NewImageService(system, logs, cfg.UploadDir, cfg.UploadURLPath)

	generator := service.NewStoryGenerator(
		system, prompts, master, openai, images, posts, logs,
		cfg.SiteDomain, cfg.SiteBaseURL,
	)
	runner := service.NewGenerationRunner(lock, schedule, system, generator, logs)

	return &API{
		db:      gdb,
		system:  system,
		prompts: prompts,
		posts:   posts,
		logs:    logs,
		lock:    lock,
		runner:  runner,
	}
}

// Runner exposes the generation entry point for the background loop.
func (a *API) Runner() *service.GenerationRunner {
	return a.runner
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}
