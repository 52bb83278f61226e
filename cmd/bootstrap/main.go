// Package main 数据库初始化：建表与索引
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"chat-artifact-api/internal/config"
	"chat-artifact-api/internal/domain/entity"
	"chat-artifact-api/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层
	dataLayer, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 迁移表结构
	fmt.Println("Migrating artifact_versions schema...")
	if err := dataLayer.PgClient.AutoMigrate(&entity.ArtifactVersion{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	fmt.Println("Bootstrap completed.")
}
