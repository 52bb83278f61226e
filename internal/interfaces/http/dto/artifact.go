// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"chat-artifact-api/internal/domain/entity"
)

// GenerateArtifactRequest 模型生成创建请求
type GenerateArtifactRequest struct {
	Kind           string `json:"kind" binding:"required"`
	Title          string `json:"title" binding:"required"`
	Instruction    string `json:"instruction" binding:"required"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	OwnerID        string `json:"owner_id"`
	ConversationID string `json:"conversation_id"`
}

// InjectArtifactRequest 字面内容注入请求
type InjectArtifactRequest struct {
	Kind           string `json:"kind" binding:"required"`
	Title          string `json:"title" binding:"required"`
	Content        string `json:"content" binding:"required"`
	OwnerID        string `json:"owner_id"`
	ConversationID string `json:"conversation_id"`
}

// LineRangeRequest 1-indexed 闭区间行范围
type LineRangeRequest struct {
	Start int `json:"start" binding:"required,min=1"`
	End   int `json:"end" binding:"required,min=1"`
}

// UpdateArtifactRequest 更新请求：instruction 与 content 二选一
type UpdateArtifactRequest struct {
	Instruction    string            `json:"instruction"`
	Content        string            `json:"content"`
	LineRange      *LineRangeRequest `json:"line_range"`
	UpdateType     string            `json:"update_type"`
	Provider       string            `json:"provider"`
	Model          string            `json:"model"`
	OwnerID        string            `json:"owner_id"`
	ConversationID string            `json:"conversation_id"`
}

// ArtifactResultResponse 生命周期操作结果
type ArtifactResultResponse struct {
	ID        string `json:"id"`
	VersionNo int    `json:"version_no"`
	Content   string `json:"content"`
}

// ArtifactVersionResponse 构件版本响应
type ArtifactVersionResponse struct {
	ID              string                 `json:"id"`
	VersionNo       int                    `json:"version_no"`
	Title           string                 `json:"title"`
	Kind            string                 `json:"kind"`
	Content         string                 `json:"content"`
	ParentVersionID *string                `json:"parent_version_id,omitempty"`
	OwnerID         string                 `json:"owner_id,omitempty"`
	ConversationID  string                 `json:"conversation_id,omitempty"`
	Metadata        entity.VersionMetadata `json:"metadata"`
	CreatedAt       time.Time              `json:"created_at"`
}

// FromVersion 转换领域实体为响应结构
func FromVersion(v *entity.ArtifactVersion) *ArtifactVersionResponse {
	return &ArtifactVersionResponse{
		ID:              v.ArtifactID,
		VersionNo:       v.VersionNo,
		Title:           v.Title,
		Kind:            string(v.Kind),
		Content:         v.Content,
		ParentVersionID: v.ParentVersionID,
		OwnerID:         v.OwnerID,
		ConversationID:  v.ConversationID,
		Metadata:        v.Metadata,
		CreatedAt:       v.CreatedAt,
	}
}

// FromVersions 批量转换
func FromVersions(versions []*entity.ArtifactVersion) []*ArtifactVersionResponse {
	out := make([]*ArtifactVersionResponse, 0, len(versions))
	for _, v := range versions {
		out = append(out, FromVersion(v))
	}
	return out
}

// BindArtifactID 提取路径中的构件 ID
func BindArtifactID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("aid"))
}

// BindVersionNo 提取路径中的版本号
func BindVersionNo(c *gin.Context) (int, bool) {
	no, err := strconv.Atoi(strings.TrimSpace(c.Param("vno")))
	if err != nil || no < 1 {
		return 0, false
	}
	return no, true
}

// BindPagination 提取分页查询参数
func BindPagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	return page, pageSize
}
