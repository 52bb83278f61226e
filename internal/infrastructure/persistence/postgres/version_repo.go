// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "chat-artifact-api/pkg/errors"
	"chat-artifact-api/pkg/metrics"

	"chat-artifact-api/internal/domain/entity"
	"chat-artifact-api/internal/domain/repository"
)

// pgUniqueViolation PostgreSQL 唯一约束冲突错误码
const pgUniqueViolation = "23505"

// defaultWriteRetries 版本号冲突时的默认重试次数
const defaultWriteRetries = 3

// versionInsertSQL 原子分配版本号并插入
// 读最大值与写入在同一条语句中完成，(artifact_id, version_no)
// 唯一索引兜底：并发写入者冲突时其一收到 23505 并重试。
const versionInsertSQL = `
INSERT INTO artifact_versions
    (artifact_id, version_no, title, kind, content, parent_version_id, owner_id, conversation_id, metadata, created_at)
SELECT ?, COALESCE(MAX(version_no), 0) + 1, ?, ?, ?, ?, ?, ?, ?, NOW()
FROM artifact_versions
WHERE artifact_id = ?
RETURNING row_id, version_no, created_at`

// ArtifactVersionRepository 构件版本存储的 PostgreSQL 实现
type ArtifactVersionRepository struct {
	client       *Client
	writeRetries int
}

var _ repository.VersionStore = (*ArtifactVersionRepository)(nil)

// NewArtifactVersionRepository 创建构件版本 Repository
func NewArtifactVersionRepository(client *Client) *ArtifactVersionRepository {
	return &ArtifactVersionRepository{
		client:       client,
		writeRetries: defaultWriteRetries,
	}
}

// WithWriteRetries 覆盖冲突重试次数（非正数时保持默认）
func (r *ArtifactVersionRepository) WithWriteRetries(n int) *ArtifactVersionRepository {
	if n > 0 {
		r.writeRetries = n
	}
	return r
}

// Create 持久化新版本并原子分配 version_no
func (r *ArtifactVersionRepository) Create(ctx context.Context, version *entity.ArtifactVersion) error {
	ctx, span := tracer.Start(ctx, "postgres.ArtifactVersionRepository.Create")
	defer span.End()

	db := r.client.db.WithContext(ctx)

	var lastErr error
	for attempt := 0; attempt <= r.writeRetries; attempt++ {
		var assigned struct {
			RowID     string    `gorm:"column:row_id"`
			VersionNo int       `gorm:"column:version_no"`
			CreatedAt time.Time `gorm:"column:created_at"`
		}
		err := db.Raw(versionInsertSQL,
			version.ArtifactID,
			version.Title,
			version.Kind,
			version.Content,
			version.ParentVersionID,
			version.OwnerID,
			version.ConversationID,
			version.Metadata,
			version.ArtifactID,
		).Scan(&assigned).Error
		if err == nil {
			version.RowID = assigned.RowID
			version.VersionNo = assigned.VersionNo
			version.CreatedAt = assigned.CreatedAt
			return nil
		}

		if !isUniqueViolation(err) {
			span.RecordError(err)
			return apperrors.ErrPersistence.WithError(fmt.Errorf("failed to create artifact version: %w", err))
		}

		// 并发写入者抢到了同一个版本号，重读最大值再试
		metrics.VersionWriteConflicts.WithLabelValues(string(version.Kind)).Inc()
		lastErr = err
	}

	span.RecordError(lastErr)
	return apperrors.ErrPersistence.WithError(
		fmt.Errorf("version number conflict persisted after %d retries: %w", r.writeRetries, lastErr))
}

// GetLatest 返回 version_no 最大的版本
func (r *ArtifactVersionRepository) GetLatest(ctx context.Context, artifactID string) (*entity.ArtifactVersion, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArtifactVersionRepository.GetLatest")
	defer span.End()

	db := r.client.db.WithContext(ctx)
	var v entity.ArtifactVersion
	if err := db.Where("artifact_id = ?", artifactID).
		Order("version_no DESC").
		First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrArtifactNotFound
		}
		span.RecordError(err)
		return nil, apperrors.ErrPersistence.WithError(fmt.Errorf("failed to get latest artifact version: %w", err))
	}
	return &v, nil
}

// GetByNumber 按版本号返回版本
func (r *ArtifactVersionRepository) GetByNumber(ctx context.Context, artifactID string, versionNo int) (*entity.ArtifactVersion, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArtifactVersionRepository.GetByNumber")
	defer span.End()

	db := r.client.db.WithContext(ctx)
	var v entity.ArtifactVersion
	if err := db.Where("artifact_id = ? AND version_no = ?", artifactID, versionNo).
		First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrVersionNotFound
		}
		span.RecordError(err)
		return nil, apperrors.ErrPersistence.WithError(fmt.Errorf("failed to get artifact version: %w", err))
	}
	return &v, nil
}

// ListVersions 按 version_no 降序分页列出版本
func (r *ArtifactVersionRepository) ListVersions(ctx context.Context, artifactID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ArtifactVersion], error) {
	ctx, span := tracer.Start(ctx, "postgres.ArtifactVersionRepository.ListVersions")
	defer span.End()

	db := r.client.db.WithContext(ctx)
	query := db.Model(&entity.ArtifactVersion{}).Where("artifact_id = ?", artifactID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.ErrPersistence.WithError(fmt.Errorf("failed to count artifact versions: %w", err))
	}

	var versions []*entity.ArtifactVersion
	if err := query.Order("version_no DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&versions).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.ErrPersistence.WithError(fmt.Errorf("failed to list artifact versions: %w", err))
	}

	return repository.NewPagedResult(versions, total, pagination), nil
}

// ListVersionsSince 返回某时间点之后创建的版本
func (r *ArtifactVersionRepository) ListVersionsSince(ctx context.Context, artifactID string, since time.Time) ([]*entity.ArtifactVersion, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArtifactVersionRepository.ListVersionsSince")
	defer span.End()

	db := r.client.db.WithContext(ctx)
	var versions []*entity.ArtifactVersion
	if err := db.Where("artifact_id = ? AND created_at > ?", artifactID, since).
		Order("version_no ASC").
		Find(&versions).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.ErrPersistence.WithError(fmt.Errorf("failed to list artifact versions since: %w", err))
	}
	return versions, nil
}

// DeleteVersionsAfter 批量删除某时间点之后的版本
func (r *ArtifactVersionRepository) DeleteVersionsAfter(ctx context.Context, artifactID string, after time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.ArtifactVersionRepository.DeleteVersionsAfter")
	defer span.End()

	db := r.client.db.WithContext(ctx)
	result := db.Where("artifact_id = ? AND created_at > ?", artifactID, after).
		Delete(&entity.ArtifactVersion{})
	if result.Error != nil {
		span.RecordError(result.Error)
		return 0, apperrors.ErrPersistence.WithError(fmt.Errorf("failed to delete artifact versions: %w", result.Error))
	}
	return result.RowsAffected, nil
}

// isUniqueViolation 判断是否为 (artifact_id, version_no) 唯一约束冲突
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
