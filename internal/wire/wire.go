//go:build wireinject
// +build wireinject

// Package wire 提供依赖注入配置
package wire

import (
	"context"

	"github.com/google/wire"

	"chat-artifact-api/internal/application/artifact"
	"chat-artifact-api/internal/config"
	"chat-artifact-api/internal/domain/repository"
	"chat-artifact-api/internal/infrastructure/llm"
	"chat-artifact-api/internal/infrastructure/persistence/postgres"
	"chat-artifact-api/internal/infrastructure/persistence/redis"
	"chat-artifact-api/internal/interfaces/http/handler"
	"chat-artifact-api/internal/interfaces/http/middleware"
	"chat-artifact-api/internal/interfaces/http/router"
)

// DataLayer 数据层依赖容器
type DataLayer struct {
	PgClient    *postgres.Client
	VersionRepo *postgres.ArtifactVersionRepository

	RedisClient *redis.Client
	Cache       *redis.Cache
	RateLimiter *redis.RateLimiter
}

// InitializeDataLayer 初始化数据层
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		wire.Struct(new(DataLayer), "*"),
	)
	return nil, nil, nil
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	wire.Build(
		PostgresSet,
		RedisSet,
		EngineSet,
		RouterSet,
	)
	return nil, nil, nil
}

// PostgresSet PostgreSQL 提供者集合
var PostgresSet = wire.NewSet(
	ProvidePostgresClient,
	ProvideVersionRepository,
	wire.Bind(new(repository.VersionStore), new(*postgres.ArtifactVersionRepository)),
)

// RedisSet Redis 提供者集合
var RedisSet = wire.NewSet(
	ProvideRedisClient,
	redis.NewCache,
	redis.NewRateLimiter,
	wire.Bind(new(artifact.CacheInvalidator), new(*redis.Cache)),
	wire.Bind(new(middleware.RateLimiter), new(*redis.RateLimiter)),
)

// EngineSet 构件引擎提供者集合
var EngineSet = wire.NewSet(
	llm.NewEinoFactory,
	llm.NewArtifactProducer,
	wire.Bind(new(artifact.ContentProducer), new(*llm.ArtifactProducer)),
	artifact.NewController,
	ProvideArtifactQuery,
)

// RouterSet 路由器提供者集合
var RouterSet = wire.NewSet(
	handler.NewHealthHandler,
	handler.NewArtifactHandler,
	handler.NewGenerateHandler,
	router.New,
)

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideVersionRepository 提供构件版本 Repository
func ProvideVersionRepository(client *postgres.Client, cfg *config.Config) *postgres.ArtifactVersionRepository {
	return postgres.NewArtifactVersionRepository(client).WithWriteRetries(cfg.Artifact.WriteRetries)
}

// ProvideRedisClient 提供 Redis 客户端
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideArtifactQuery 提供构件读服务
func ProvideArtifactQuery(store repository.VersionStore, cache *redis.Cache, cfg *config.Config) *artifact.Query {
	return artifact.NewQuery(store, cache, cfg.Artifact.CacheTTL)
}
