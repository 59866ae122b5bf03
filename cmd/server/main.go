package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/storymaker/internal/config"
	"github.com/storymaker/internal/db"
	"github.com/storymaker/internal/handler"
	"github.com/storymaker/internal/router"
)

func main() {
	cfg := config.Load()

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}

	// 确保站点管理员账号存在
	if err := db.EnsureUser(cfg.SuperRootUserName, cfg.SuperRootPassword); err != nil {
		log.Fatalf("failed to ensure root user: %v", err)
	}

	api := handler.NewAPI(db.DB, cfg)

	// 后台排期循环：到期后自动触发一次生成
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go api.Runner().RunLoop(ctx)

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(cfg, api)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to run server: %v", err)
	}
}
