// Package artifact 实现统一的版本化构件引擎：
// 一次生命周期操作（create / inject / update）端到端地驱动
// 模型生成或注入内容、行范围补丁、内容校验、流事件发射与版本持久化。
package artifact

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"chat-artifact-api/internal/domain/entity"
	"chat-artifact-api/internal/domain/repository"
	apperrors "chat-artifact-api/pkg/errors"
	"chat-artifact-api/pkg/logger"
	"chat-artifact-api/pkg/metrics"
)

const engineAgent = "artifact-engine"

// CacheInvalidator 新版本落库后的缓存失效钩子
type CacheInvalidator interface {
	InvalidateArtifact(ctx context.Context, artifactID string) error
}

// Controller 生成控制器。
// 无共享可变状态；同一构件的并发写入由存储层的原子版本号分配保证串行化。
type Controller struct {
	store    repository.VersionStore
	producer ContentProducer
	cache    CacheInvalidator
}

// NewController 创建生成控制器；cache 可为 nil
func NewController(store repository.VersionStore, producer ContentProducer, cache CacheInvalidator) *Controller {
	return &Controller{
		store:    store,
		producer: producer,
		cache:    cache,
	}
}

// CreateRequest 创建请求：Instruction 与 Content 二选一
type CreateRequest struct {
	Kind           entity.ArtifactKind
	Title          string
	Instruction    string
	Content        string
	OwnerID        string
	ConversationID string
	Provider       string
	Model          string
}

// InjectRequest 注入请求：仅接受字面内容，不调用模型
type InjectRequest struct {
	Kind           entity.ArtifactKind
	Title          string
	Content        string
	OwnerID        string
	ConversationID string
}

// UpdateRequest 更新请求：Instruction 与 Content 二选一；
// LineRange 存在时新内容只替换该闭区间行块
type UpdateRequest struct {
	ArtifactID     string
	Instruction    string
	Content        string
	LineRange      *LineRange
	UpdateType     entity.UpdateType
	OwnerID        string
	ConversationID string
	Provider       string
	Model          string
}

// Result 操作结果
type Result struct {
	ID        string `json:"id"`
	VersionNo int    `json:"version_no"`
	Content   string `json:"content"`
}

// opStream 单次操作的流包装。
// 消费端关闭后停止后续发射，但生成与持久化照常跑完。
type opStream struct {
	ctx    context.Context
	em     *Emitter
	closed bool
}

func (s *opStream) send(fn func() error) {
	if s.closed {
		return
	}
	if err := fn(); err != nil {
		s.closed = true
		logger.Warn(s.ctx, "stream consumer closed, suppressing further events", "error", err.Error())
	}
}

// fail 尽力发射 error 事件后返回原始错误；发射失败只记日志，从不覆盖原错误
func (s *opStream) fail(err error) error {
	s.send(func() error { return s.em.Error(apperrors.AsAppError(err).Message) })
	return err
}

// Create 创建新构件并持久化版本 1。
// 给定指令时驱动模型流式生成，否则把字面内容作为单个增量发射。
// 校验失败不阻断创建，仅记录日志与版本元数据。
func (c *Controller) Create(ctx context.Context, req *CreateRequest, sink EventSink) (*Result, error) {
	policy, ok := PolicyFor(req.Kind)
	if !ok {
		return nil, apperrors.ErrInvalidParam.WithDetail("unknown artifact kind: " + string(req.Kind))
	}
	if err := validateContentArgs(req.Title, req.Instruction, req.Content); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.ArtifactIDKey, id)

	res, err := c.run(ctx, "create", policy, sink, func(st *opStream) (*Result, error) {
		st.send(st.em.Kind)
		st.send(func() error { return st.em.ID(id) })
		st.send(func() error { return st.em.Title(req.Title) })

		content, info, err := c.resolveContent(ctx, st, policy, &GenerateRequest{
			Kind:        req.Kind,
			Title:       req.Title,
			Instruction: req.Instruction,
			Provider:    req.Provider,
			Model:       req.Model,
		}, req.Content)
		if err != nil {
			return nil, st.fail(err)
		}

		version, err := c.persist(ctx, st, policy, &entity.ArtifactVersion{
			ArtifactID:     id,
			Title:          req.Title,
			Kind:           req.Kind,
			Content:        content,
			OwnerID:        req.OwnerID,
			ConversationID: req.ConversationID,
		}, entity.UpdateTypeCreate, info, false)
		if err != nil {
			return nil, err
		}

		st.send(st.em.Finish)
		return &Result{ID: id, VersionNo: version.VersionNo, Content: content}, nil
	})
	return res, err
}

// Inject 从字面内容创建构件，不调用模型。
// 与 Create 的区别：图表类构件校验失败是硬性错误，拒绝持久化。
func (c *Controller) Inject(ctx context.Context, req *InjectRequest, sink EventSink) (*Result, error) {
	policy, ok := PolicyFor(req.Kind)
	if !ok {
		return nil, apperrors.ErrInvalidParam.WithDetail("unknown artifact kind: " + string(req.Kind))
	}
	if err := validateContentArgs(req.Title, "", req.Content); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ctx = logger.WithContext(ctx, logger.ArtifactIDKey, id)

	res, err := c.run(ctx, "inject", policy, sink, func(st *opStream) (*Result, error) {
		st.send(st.em.Kind)
		st.send(func() error { return st.em.ID(id) })
		st.send(func() error { return st.em.Title(req.Title) })
		st.send(func() error { return st.em.Delta(req.Content) })

		version, err := c.persist(ctx, st, policy, &entity.ArtifactVersion{
			ArtifactID:     id,
			Title:          req.Title,
			Kind:           req.Kind,
			Content:        req.Content,
			OwnerID:        req.OwnerID,
			ConversationID: req.ConversationID,
		}, entity.UpdateTypeInject, ProducerInfo{}, policy.StrictInject)
		if err != nil {
			return nil, err
		}

		st.send(st.em.Finish)
		return &Result{ID: id, VersionNo: version.VersionNo, Content: req.Content}, nil
	})
	return res, err
}

// Update 更新现有构件并追加新版本。
// 存在 LineRange 时模型只生成替换块，经补丁引擎拼入原文；
// 否则新内容整体替换。流上先发 clear 让消费端丢弃过期内容。
func (c *Controller) Update(ctx context.Context, req *UpdateRequest, sink EventSink) (*Result, error) {
	if req.ArtifactID == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("artifact id is required")
	}
	if req.Instruction == "" && req.Content == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("either instruction or content is required")
	}
	updateType := req.UpdateType
	if updateType == "" {
		updateType = entity.UpdateTypeUpdate
	}

	ctx = logger.WithContext(ctx, logger.ArtifactIDKey, req.ArtifactID)

	current, err := c.store.GetLatest(ctx, req.ArtifactID)
	if err != nil {
		// 读取基版本失败（不存在或存储错误）时也要先给流消费者一个 error 事件
		return nil, failEarly(ctx, sink, err)
	}

	policy, ok := PolicyFor(current.Kind)
	if !ok {
		return nil, failEarly(ctx, sink, apperrors.ErrInvalidParam.WithDetail("unknown artifact kind: "+string(current.Kind)))
	}

	res, err := c.run(ctx, string(updateType), policy, sink, func(st *opStream) (*Result, error) {
		st.send(st.em.Kind)
		st.send(func() error { return st.em.ID(current.ArtifactID) })
		st.send(func() error { return st.em.Title(current.Title) })
		st.send(st.em.Clear)

		replacement, info, err := c.resolveContent(ctx, st, policy, &GenerateRequest{
			Kind:           current.Kind,
			Title:          current.Title,
			Instruction:    req.Instruction,
			CurrentContent: current.Content,
			ReplaceBlock:   req.LineRange != nil,
			Provider:       req.Provider,
			Model:          req.Model,
		}, req.Content)
		if err != nil {
			return nil, st.fail(err)
		}

		content := replacement
		if req.LineRange != nil {
			content, err = PatchLines(current.Content, replacement, *req.LineRange)
			if err != nil {
				return nil, st.fail(err)
			}
		}

		parentID := current.ArtifactID
		version, err := c.persist(ctx, st, policy, &entity.ArtifactVersion{
			ArtifactID:      current.ArtifactID,
			Title:           current.Title,
			Kind:            current.Kind,
			Content:         content,
			ParentVersionID: &parentID,
			OwnerID:         req.OwnerID,
			ConversationID:  req.ConversationID,
		}, updateType, info, false)
		if err != nil {
			return nil, err
		}

		st.send(st.em.Finish)
		return &Result{ID: current.ArtifactID, VersionNo: version.VersionNo, Content: content}, nil
	})
	return res, err
}

// failEarly 在操作流建立之前出错时，按文本策略建流并发射 error 事件再上抛
func failEarly(ctx context.Context, sink EventSink, err error) error {
	policy, _ := PolicyFor(entity.ArtifactKindText)
	st := &opStream{ctx: ctx, em: NewEmitter(sink, policy)}
	return st.fail(err)
}

// run 包装一次生命周期操作：建流、计时、记指标
func (c *Controller) run(ctx context.Context, operation string, policy KindPolicy, sink EventSink, fn func(st *opStream) (*Result, error)) (*Result, error) {
	st := &opStream{ctx: ctx, em: NewEmitter(sink, policy)}
	start := time.Now()

	res, err := fn(st)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ArtifactOperationsTotal.WithLabelValues(string(policy.Kind), operation, status).Inc()
	metrics.ArtifactOperationDuration.WithLabelValues(string(policy.Kind), operation).Observe(time.Since(start).Seconds())
	return res, err
}

// resolveContent 取得最终内容：有指令走模型流式生成并转发增量，
// 否则把字面内容作为单个增量发射
func (c *Controller) resolveContent(ctx context.Context, st *opStream, policy KindPolicy, genReq *GenerateRequest, literal string) (string, ProducerInfo, error) {
	if genReq.Instruction == "" {
		st.send(func() error { return st.em.Delta(literal) })
		return literal, ProducerInfo{}, nil
	}

	stream, info, err := c.producer.Stream(ctx, genReq)
	if err != nil {
		return "", info, apperrors.ErrLLMCallFailed.WithError(err)
	}
	defer stream.Close()

	var full string
	for {
		snapshot, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", info, apperrors.ErrGenerationFailed.WithError(err)
		}
		if delta := suffixDelta(full, snapshot); delta != "" {
			st.send(func() error { return st.em.Delta(delta) })
		}
		if len(snapshot) > len(full) {
			full = snapshot
		}
	}
	return full, info, nil
}

// persist 校验并原子持久化新版本；strict 时校验失败拒绝写入
func (c *Controller) persist(ctx context.Context, st *opStream, policy KindPolicy, version *entity.ArtifactVersion, updateType entity.UpdateType, info ProducerInfo, strict bool) (*entity.ArtifactVersion, error) {
	valid, reason := policy.Validate(version.Content)

	validationStatus := "pass"
	if !valid {
		validationStatus = "fail"
	}
	metrics.ValidationTotal.WithLabelValues(string(policy.Kind), validationStatus).Inc()

	if !valid {
		if strict {
			err := apperrors.ErrValidationFailed.WithDetail(reason)
			return nil, st.fail(err)
		}
		logger.Warn(ctx, "content validation failed, persisting anyway",
			"kind", string(policy.Kind),
			"reason", reason,
		)
	}

	version.Metadata = entity.VersionMetadata{
		Agent:            engineAgent,
		UpdateType:       updateType,
		Provider:         info.Provider,
		Model:            info.Model,
		Valid:            &valid,
		ValidationReason: reason,
		GeneratedAt:      time.Now().UTC(),
	}

	if err := c.store.Create(ctx, version); err != nil {
		return nil, st.fail(err)
	}
	metrics.ArtifactContentBytes.WithLabelValues(string(policy.Kind)).Observe(float64(len(version.Content)))

	if c.cache != nil {
		if err := c.cache.InvalidateArtifact(ctx, version.ArtifactID); err != nil {
			// 缓存失效失败不影响操作结果
			logger.Warn(ctx, "failed to invalidate latest-version cache", "error", err.Error())
		}
	}

	logger.Info(ctx, "artifact version persisted",
		"kind", string(policy.Kind),
		"update_type", string(updateType),
		"version_no", version.VersionNo,
		"content_bytes", len(version.Content),
	)
	return version, nil
}

func validateContentArgs(title, instruction, content string) error {
	if title == "" {
		return apperrors.ErrInvalidParam.WithDetail("title is required")
	}
	if instruction == "" && content == "" {
		return apperrors.ErrInvalidParam.WithDetail("either instruction or content is required")
	}
	if instruction != "" && content != "" {
		return apperrors.ErrInvalidParam.WithDetail("instruction and content are mutually exclusive")
	}
	return nil
}
