package handler

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-artifact-api/internal/application/artifact"
	"chat-artifact-api/internal/config"
	"chat-artifact-api/internal/domain/entity"
	"chat-artifact-api/internal/interfaces/http/dto"
	"chat-artifact-api/pkg/logger"
)

// GenerateHandler 构件生命周期处理器：SSE 生成 / 更新与 JSON 注入
type GenerateHandler struct {
	cfg        *config.Config
	controller *artifact.Controller
}

// NewGenerateHandler 创建生命周期处理器
func NewGenerateHandler(cfg *config.Config, controller *artifact.Controller) *GenerateHandler {
	return &GenerateHandler{
		cfg:        cfg,
		controller: controller,
	}
}

// resolveProviderModel 解析 LLM Provider 和 Model
func resolveProviderModel(cfg *config.Config, provider, model string) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("server config not configured")
	}

	p := strings.TrimSpace(provider)
	if p == "" {
		p = strings.TrimSpace(cfg.LLM.DefaultProvider)
	}
	if p == "" {
		return "", "", fmt.Errorf("llm provider not specified")
	}

	providerCfg, ok := cfg.LLM.Providers[p]
	if !ok {
		return "", "", fmt.Errorf("llm provider not found: %s", p)
	}

	m := strings.TrimSpace(model)
	if m == "" {
		m = strings.TrimSpace(providerCfg.Model)
	}
	if len(m) > 64 {
		return "", "", fmt.Errorf("llm model too long")
	}
	return p, m, nil
}

// sseSink 把引擎流事件桥接到 SSE 渲染协程。
// 客户端断开后 Send 返回 ctx 错误，引擎据此停止发射但继续持久化。
type sseSink struct {
	ctx context.Context
	ch  chan artifact.StreamEvent
}

func (s *sseSink) Send(event artifact.StreamEvent) error {
	select {
	case s.ch <- event:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// noopSink 丢弃流事件（JSON 路径不需要事件流）
type noopSink struct{}

func (noopSink) Send(artifact.StreamEvent) error { return nil }

// streamEvents 以 SSE 形式渲染事件流直至通道关闭
func (h *GenerateHandler) streamEvents(c *gin.Context, eventCh <-chan artifact.StreamEvent) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		event, ok := <-eventCh
		if !ok {
			return false
		}

		switch event.Type {
		case artifact.EventContentDelta:
			name := event.Name
			if name == "" {
				name = string(event.Type)
			}
			c.SSEvent(name, event.Payload)
		case artifact.EventClear, artifact.EventFinish:
			c.SSEvent(string(event.Type), gin.H{})
		case artifact.EventError:
			c.SSEvent(string(event.Type), gin.H{"message": event.Payload})
		default:
			c.SSEvent(string(event.Type), event.Payload)
		}
		return true
	})
}

// Generate SSE 流式创建构件
// @Summary 流式创建构件
// @Description 按指令驱动模型生成内容，以 SSE 事件流输出并持久化版本 1
// @Tags Artifacts
// @Accept json
// @Produce text/event-stream
// @Param body body dto.GenerateArtifactRequest true "创建请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/artifacts/generate [post]
func (h *GenerateHandler) Generate(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.GenerateArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	kind, err := entity.ParseArtifactKind(req.Kind)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	provider, model, err := resolveProviderModel(h.cfg, req.Provider, req.Model)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	ctx = requestContext(ctx, req.OwnerID, req.ConversationID)

	eventCh := make(chan artifact.StreamEvent, 16)
	sink := &sseSink{ctx: ctx, ch: eventCh}

	go func() {
		defer close(eventCh)
		_, opErr := h.controller.Create(ctx, &artifact.CreateRequest{
			Kind:           kind,
			Title:          req.Title,
			Instruction:    req.Instruction,
			OwnerID:        req.OwnerID,
			ConversationID: req.ConversationID,
			Provider:       provider,
			Model:          model,
		}, sink)
		if opErr != nil {
			logger.Error(ctx, "artifact create failed", opErr)
		}
	}()

	h.streamEvents(c, eventCh)
}

// Inject 注入字面内容创建构件
// @Summary 注入构件
// @Description 从调用方提供的字面内容创建构件，不调用模型，同步返回 JSON
// @Tags Artifacts
// @Accept json
// @Produce json
// @Param body body dto.InjectArtifactRequest true "注入请求"
// @Success 201 {object} dto.Response[dto.ArtifactResultResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 422 {object} dto.ErrorResponse
// @Router /v1/artifacts/inject [post]
func (h *GenerateHandler) Inject(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.InjectArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	kind, err := entity.ParseArtifactKind(req.Kind)
	if err != nil {
		dto.BadRequest(c, err.Error())
		return
	}
	if err := h.checkContentSize(req.Content); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	ctx = requestContext(ctx, req.OwnerID, req.ConversationID)

	result, err := h.controller.Inject(ctx, &artifact.InjectRequest{
		Kind:           kind,
		Title:          req.Title,
		Content:        req.Content,
		OwnerID:        req.OwnerID,
		ConversationID: req.ConversationID,
	}, noopSink{})
	if err != nil {
		respondAppError(c, err)
		return
	}

	dto.Created(c, &dto.ArtifactResultResponse{
		ID:        result.ID,
		VersionNo: result.VersionNo,
		Content:   result.Content,
	})
}

// Update SSE 流式更新构件
// @Summary 流式更新构件
// @Description 对现有构件追加新版本；line_range 存在时只替换该行块。以 SSE 事件流输出
// @Tags Artifacts
// @Accept json
// @Produce text/event-stream
// @Param aid path string true "构件 ID"
// @Param body body dto.UpdateArtifactRequest true "更新请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/artifacts/{aid}/update [post]
func (h *GenerateHandler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	artifactID := dto.BindArtifactID(c)
	if artifactID == "" {
		dto.BadRequest(c, "artifact id is required")
		return
	}

	var req dto.UpdateArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Instruction == "" && req.Content == "" {
		dto.BadRequest(c, "either instruction or content is required")
		return
	}

	if err := h.checkContentSize(req.Content); err != nil {
		dto.BadRequest(c, err.Error())
		return
	}

	updateType := entity.UpdateType(req.UpdateType)
	switch updateType {
	case "", entity.UpdateTypeUpdate, entity.UpdateTypeFix:
	default:
		dto.BadRequest(c, "update_type must be update or fix")
		return
	}

	provider := req.Provider
	model := req.Model
	if req.Instruction != "" {
		var err error
		provider, model, err = resolveProviderModel(h.cfg, req.Provider, req.Model)
		if err != nil {
			dto.BadRequest(c, err.Error())
			return
		}
	}

	var lineRange *artifact.LineRange
	if req.LineRange != nil {
		lineRange = &artifact.LineRange{Start: req.LineRange.Start, End: req.LineRange.End}
	}

	ctx = requestContext(ctx, req.OwnerID, req.ConversationID)

	eventCh := make(chan artifact.StreamEvent, 16)
	sink := &sseSink{ctx: ctx, ch: eventCh}

	go func() {
		defer close(eventCh)
		_, opErr := h.controller.Update(ctx, &artifact.UpdateRequest{
			ArtifactID:     artifactID,
			Instruction:    req.Instruction,
			Content:        req.Content,
			LineRange:      lineRange,
			UpdateType:     updateType,
			OwnerID:        req.OwnerID,
			ConversationID: req.ConversationID,
			Provider:       provider,
			Model:          model,
		}, sink)
		if opErr != nil {
			logger.Error(ctx, "artifact update failed", opErr)
		}
	}()

	h.streamEvents(c, eventCh)
}

// checkContentSize 校验字面内容不超过配置上限
func (h *GenerateHandler) checkContentSize(content string) error {
	if h.cfg == nil || h.cfg.Artifact.MaxContentBytes <= 0 {
		return nil
	}
	if len(content) > h.cfg.Artifact.MaxContentBytes {
		return fmt.Errorf("content exceeds %d bytes", h.cfg.Artifact.MaxContentBytes)
	}
	return nil
}

// requestContext 把请求主体标识注入日志 Context
func requestContext(ctx context.Context, ownerID, conversationID string) context.Context {
	if ownerID != "" {
		ctx = logger.WithContext(ctx, logger.OwnerIDKey, ownerID)
	}
	if conversationID != "" {
		ctx = logger.WithContext(ctx, logger.ConversationIDKey, conversationID)
	}
	return ctx
}
