// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"chat-artifact-api/internal/domain/entity"
)

// VersionStore 构件版本存储
// 版本是只追加的：编辑总是产生新版本，已写入的行不会被修改。
type VersionStore interface {
	// Create 持久化新版本并原子分配 version_no
	// (当前最大值 +1，由 (artifact_id, version_no) 唯一约束保护)。
	// 成功后回填 version.VersionNo / version.RowID / version.CreatedAt。
	Create(ctx context.Context, version *entity.ArtifactVersion) error

	// GetLatest 返回 version_no 最大的版本
	GetLatest(ctx context.Context, artifactID string) (*entity.ArtifactVersion, error)

	// GetByNumber 按版本号返回版本
	GetByNumber(ctx context.Context, artifactID string, versionNo int) (*entity.ArtifactVersion, error)

	// ListVersions 按 version_no 降序分页列出版本
	ListVersions(ctx context.Context, artifactID string, pagination Pagination) (*PagedResult[*entity.ArtifactVersion], error)

	// ListVersionsSince 返回某时间点之后创建的版本 (version_no 升序)
	ListVersionsSince(ctx context.Context, artifactID string, since time.Time) ([]*entity.ArtifactVersion, error)

	// DeleteVersionsAfter 批量删除某时间点之后的版本 (用于"从此处重新生成")
	DeleteVersionsAfter(ctx context.Context, artifactID string, after time.Time) (int64, error)
}
