package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"chat-artifact-api/internal/application/artifact"
	"chat-artifact-api/internal/domain/repository"
	"chat-artifact-api/internal/interfaces/http/dto"
	"chat-artifact-api/pkg/errors"
	"chat-artifact-api/pkg/logger"
)

// ArtifactHandler 构件版本读处理器
type ArtifactHandler struct {
	query *artifact.Query
}

// NewArtifactHandler 创建构件读处理器
func NewArtifactHandler(query *artifact.Query) *ArtifactHandler {
	return &ArtifactHandler{query: query}
}

// respondAppError 按 AppError 映射 HTTP 状态码返回错误
func respondAppError(c *gin.Context, err error) {
	if errors.IsAppError(err) {
		appErr := errors.AsAppError(err)
		c.JSON(appErr.HTTPStatus, dto.ErrorResponse{
			Code:    appErr.HTTPStatus,
			Message: appErr.Message,
			Error: &dto.ErrorDetail{
				ErrorCode: string(appErr.Code),
				Details:   appErr.Detail,
			},
			TraceID: c.GetString("trace_id"),
		})
		return
	}
	logger.Error(c.Request.Context(), "request failed", err)
	dto.InternalError(c, "internal server error")
}

// ListVersions 列出构件版本
// @Summary 列出构件版本
// @Description 按版本号降序分页列出构件的全部版本；传 since 时改为返回该时间点之后创建的版本（升序）
// @Tags Artifacts
// @Produce json
// @Param aid path string true "构件 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Param since query string false "RFC3339 时间点"
// @Success 200 {object} dto.Response[[]dto.ArtifactVersionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/artifacts/{aid}/versions [get]
func (h *ArtifactHandler) ListVersions(c *gin.Context) {
	ctx := c.Request.Context()
	artifactID := dto.BindArtifactID(c)
	if artifactID == "" {
		dto.BadRequest(c, "artifact id is required")
		return
	}

	if sinceRaw := c.Query("since"); sinceRaw != "" {
		since, err := time.Parse(time.RFC3339, sinceRaw)
		if err != nil {
			dto.BadRequest(c, "since must be an RFC3339 timestamp")
			return
		}
		versions, err := h.query.ListVersionsSince(ctx, artifactID, since)
		if err != nil {
			respondAppError(c, err)
			return
		}
		dto.Success(c, dto.FromVersions(versions))
		return
	}

	page, pageSize := dto.BindPagination(c)
	result, err := h.query.ListVersions(ctx, artifactID, repository.NewPagination(page, pageSize))
	if err != nil {
		respondAppError(c, err)
		return
	}

	dto.SuccessWithPage(c, dto.FromVersions(result.Items),
		dto.NewPageMeta(result.Page, result.PageSize, int(result.Total)))
}

// GetVersion 按版本号获取构件版本
// @Summary 获取指定版本
// @Description 按版本号获取构件的某个历史版本
// @Tags Artifacts
// @Produce json
// @Param aid path string true "构件 ID"
// @Param vno path int true "版本号"
// @Success 200 {object} dto.Response[dto.ArtifactVersionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/artifacts/{aid}/versions/{vno} [get]
func (h *ArtifactHandler) GetVersion(c *gin.Context) {
	ctx := c.Request.Context()
	artifactID := dto.BindArtifactID(c)
	if artifactID == "" {
		dto.BadRequest(c, "artifact id is required")
		return
	}
	versionNo, ok := dto.BindVersionNo(c)
	if !ok {
		dto.BadRequest(c, "version number must be a positive integer")
		return
	}

	version, err := h.query.GetByNumber(ctx, artifactID, versionNo)
	if err != nil {
		respondAppError(c, err)
		return
	}
	dto.Success(c, dto.FromVersion(version))
}

// GetLatest 获取最新构件版本
// @Summary 获取最新版本
// @Description 获取构件的最新版本（经缓存）
// @Tags Artifacts
// @Produce json
// @Param aid path string true "构件 ID"
// @Success 200 {object} dto.Response[dto.ArtifactVersionResponse]
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/artifacts/{aid}/latest [get]
func (h *ArtifactHandler) GetLatest(c *gin.Context) {
	ctx := c.Request.Context()
	artifactID := dto.BindArtifactID(c)
	if artifactID == "" {
		dto.BadRequest(c, "artifact id is required")
		return
	}

	version, err := h.query.GetLatest(ctx, artifactID)
	if err != nil {
		respondAppError(c, err)
		return
	}
	dto.Success(c, dto.FromVersion(version))
}

// DeleteVersionsAfter 删除某时间点之后的版本
// @Summary 删除某时间点之后的版本
// @Description 对话回溯时裁剪该时间点之后产生的版本
// @Tags Artifacts
// @Produce json
// @Param aid path string true "构件 ID"
// @Param after query string true "RFC3339 时间点"
// @Success 200 {object} dto.Response[gin.H]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /v1/artifacts/{aid}/versions [delete]
func (h *ArtifactHandler) DeleteVersionsAfter(c *gin.Context) {
	ctx := c.Request.Context()
	artifactID := dto.BindArtifactID(c)
	if artifactID == "" {
		dto.BadRequest(c, "artifact id is required")
		return
	}
	afterRaw := c.Query("after")
	if afterRaw == "" {
		dto.BadRequest(c, "after is required")
		return
	}
	after, err := time.Parse(time.RFC3339, afterRaw)
	if err != nil {
		dto.BadRequest(c, "after must be an RFC3339 timestamp")
		return
	}

	deleted, err := h.query.DeleteVersionsAfter(ctx, artifactID, after)
	if err != nil {
		respondAppError(c, err)
		return
	}
	dto.Success(c, gin.H{"deleted": deleted})
}
