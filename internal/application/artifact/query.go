package artifact

import (
	"context"
	"encoding/json"
	"time"

	"chat-artifact-api/internal/domain/entity"
	"chat-artifact-api/internal/domain/repository"
	"chat-artifact-api/internal/infrastructure/persistence/redis"
	apperrors "chat-artifact-api/pkg/errors"
	"chat-artifact-api/pkg/logger"
)

// Query 构件读路径：版本列表、按号读取、带缓存的最新版本
type Query struct {
	store    repository.VersionStore
	cache    *redis.Cache
	cacheTTL time.Duration
}

// NewQuery 创建读服务；cache 可为 nil，此时直接读库
func NewQuery(store repository.VersionStore, cache *redis.Cache, cacheTTL time.Duration) *Query {
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &Query{
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// GetLatest 返回最新版本，经 Redis Read-Through 缓存
func (q *Query) GetLatest(ctx context.Context, artifactID string) (*entity.ArtifactVersion, error) {
	if q.cache == nil {
		return q.store.GetLatest(ctx, artifactID)
	}

	key := redis.LatestVersionKey(artifactID)
	data, err := q.cache.GetOrLoadSafe(ctx, key, q.cacheTTL, func() (interface{}, error) {
		return q.store.GetLatest(ctx, artifactID)
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		// 缓存层故障时降级读库
		logger.Warn(ctx, "latest-version cache unavailable, falling back to store", "error", err.Error())
		return q.store.GetLatest(ctx, artifactID)
	}

	var v entity.ArtifactVersion
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, apperrors.ErrCache.WithError(err)
	}
	return &v, nil
}

// GetByNumber 按版本号读取
func (q *Query) GetByNumber(ctx context.Context, artifactID string, versionNo int) (*entity.ArtifactVersion, error) {
	return q.store.GetByNumber(ctx, artifactID, versionNo)
}

// ListVersions 按版本号降序分页列出
func (q *Query) ListVersions(ctx context.Context, artifactID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ArtifactVersion], error) {
	return q.store.ListVersions(ctx, artifactID, pagination)
}

// ListVersionsSince 返回某时间点之后创建的版本
func (q *Query) ListVersionsSince(ctx context.Context, artifactID string, since time.Time) ([]*entity.ArtifactVersion, error) {
	return q.store.ListVersionsSince(ctx, artifactID, since)
}

// DeleteVersionsAfter 删除某时间点之后的版本并使缓存失效
// （"从此处重新生成"语义，由外围对话层触发）
func (q *Query) DeleteVersionsAfter(ctx context.Context, artifactID string, after time.Time) (int64, error) {
	deleted, err := q.store.DeleteVersionsAfter(ctx, artifactID, after)
	if err != nil {
		return 0, err
	}
	if deleted > 0 && q.cache != nil {
		if err := q.cache.InvalidateArtifact(ctx, artifactID); err != nil {
			logger.Warn(ctx, "failed to invalidate latest-version cache", "error", err.Error())
		}
	}
	return deleted, nil
}
