package artifact

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-artifact-api/internal/domain/entity"
	"chat-artifact-api/internal/domain/repository"
	apperrors "chat-artifact-api/pkg/errors"
)

// memStore 内存版 VersionStore，版本号分配用互斥锁模拟存储层的原子性
type memStore struct {
	mu       sync.Mutex
	versions map[string][]*entity.ArtifactVersion
}

func newMemStore() *memStore {
	return &memStore{versions: map[string][]*entity.ArtifactVersion{}}
}

func (s *memStore) Create(_ context.Context, version *entity.ArtifactVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.versions[version.ArtifactID]
	version.VersionNo = len(existing) + 1
	version.CreatedAt = time.Now().UTC()

	clone := *version
	s.versions[version.ArtifactID] = append(existing, &clone)
	return nil
}

func (s *memStore) GetLatest(_ context.Context, artifactID string) (*entity.ArtifactVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.versions[artifactID]
	if len(vs) == 0 {
		return nil, apperrors.ErrArtifactNotFound
	}
	clone := *vs[len(vs)-1]
	return &clone, nil
}

func (s *memStore) GetByNumber(_ context.Context, artifactID string, versionNo int) (*entity.ArtifactVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range s.versions[artifactID] {
		if v.VersionNo == versionNo {
			clone := *v
			return &clone, nil
		}
	}
	return nil, apperrors.ErrVersionNotFound
}

func (s *memStore) ListVersions(_ context.Context, artifactID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ArtifactVersion], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs := s.versions[artifactID]
	items := make([]*entity.ArtifactVersion, len(vs))
	for i, v := range vs {
		clone := *v
		items[len(vs)-1-i] = &clone // 降序
	}
	return repository.NewPagedResult(items, int64(len(items)), pagination), nil
}

func (s *memStore) ListVersionsSince(_ context.Context, artifactID string, since time.Time) ([]*entity.ArtifactVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.ArtifactVersion
	for _, v := range s.versions[artifactID] {
		if v.CreatedAt.After(since) {
			clone := *v
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *memStore) DeleteVersionsAfter(_ context.Context, artifactID string, after time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*entity.ArtifactVersion
	var deleted int64
	for _, v := range s.versions[artifactID] {
		if v.CreatedAt.After(after) {
			deleted++
			continue
		}
		kept = append(kept, v)
	}
	s.versions[artifactID] = kept
	return deleted, nil
}

var _ repository.VersionStore = (*memStore)(nil)

// fakeProducer 按预设快照序列回放的内容生产者
type fakeProducer struct {
	snapshots []string
	recvErr   error
	startErr  error
}

type fakeStream struct {
	snapshots []string
	pos       int
	recvErr   error
}

func (p *fakeProducer) Stream(context.Context, *GenerateRequest) (SnapshotStream, ProducerInfo, error) {
	if p.startErr != nil {
		return nil, ProducerInfo{}, p.startErr
	}
	return &fakeStream{snapshots: p.snapshots, recvErr: p.recvErr},
		ProducerInfo{Provider: "openai", Model: "gpt-4o-mini"}, nil
}

func (s *fakeStream) Recv() (string, error) {
	if s.pos >= len(s.snapshots) {
		if s.recvErr != nil {
			return "", s.recvErr
		}
		return "", io.EOF
	}
	snap := s.snapshots[s.pos]
	s.pos++
	return snap, nil
}

func (s *fakeStream) Close() {}

func deltaPayloads(events []StreamEvent) []string {
	var out []string
	for _, e := range events {
		if e.Type == EventContentDelta {
			out = append(out, e.Payload)
		}
	}
	return out
}

func TestCreateStreamsCumulativeSnapshots(t *testing.T) {
	store := newMemStore()
	producer := &fakeProducer{snapshots: []string{"def f():", "def f():\n    pass"}}
	ctrl := NewController(store, producer, nil)

	sink := &recordSink{}
	res, err := ctrl.Create(context.Background(), &CreateRequest{
		Kind:        entity.ArtifactKindCode,
		Title:       "demo function",
		Instruction: "write a stub function",
	}, sink)
	require.NoError(t, err)
	require.NotNil(t, res)

	// 固定事件序：kind, id, title, 两个增量, finish；无 error
	assert.Equal(t, []EventType{
		EventKind, EventID, EventTitle,
		EventContentDelta, EventContentDelta,
		EventFinish,
	}, sink.types())
	assert.Equal(t, []string{"def f():", "\n    pass"}, deltaPayloads(sink.events))

	// 增量拼接可还原最终内容
	assert.Equal(t, 1, res.VersionNo)
	assert.Equal(t, "def f():\n    pass", res.Content)

	v, err := store.GetLatest(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNo)
	assert.Equal(t, "def f():\n    pass", v.Content)
	assert.Equal(t, entity.UpdateTypeCreate, v.Metadata.UpdateType)
	require.NotNil(t, v.Metadata.Valid)
	assert.True(t, *v.Metadata.Valid)
	assert.Equal(t, "openai", v.Metadata.Provider)
}

func TestCreateWithLiteralContent(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(store, &fakeProducer{}, nil)

	sink := &recordSink{}
	res, err := ctrl.Create(context.Background(), &CreateRequest{
		Kind:    entity.ArtifactKindText,
		Title:   "notes",
		Content: "hello world",
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{"hello world"}, deltaPayloads(sink.events))
	assert.Equal(t, 1, res.VersionNo)
}

// 创建路径的校验失败只是警告：版本照常落库并带上失败标记
func TestCreateValidationFailureIsWarning(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(store, &fakeProducer{}, nil)

	sink := &recordSink{}
	res, err := ctrl.Create(context.Background(), &CreateRequest{
		Kind:    entity.ArtifactKindCode,
		Title:   "not code",
		Content: "just a plain sentence",
	}, sink)
	require.NoError(t, err)

	v, err := store.GetLatest(context.Background(), res.ID)
	require.NoError(t, err)
	require.NotNil(t, v.Metadata.Valid)
	assert.False(t, *v.Metadata.Valid)
	assert.NotEmpty(t, v.Metadata.ValidationReason)
	assert.Equal(t, EventFinish, sink.events[len(sink.events)-1].Type)
}

func TestCreateArgValidation(t *testing.T) {
	ctrl := NewController(newMemStore(), &fakeProducer{}, nil)
	ctx := context.Background()

	_, err := ctrl.Create(ctx, &CreateRequest{Kind: entity.ArtifactKindText, Instruction: "x"}, &recordSink{})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	_, err = ctrl.Create(ctx, &CreateRequest{Kind: entity.ArtifactKindText, Title: "t"}, &recordSink{})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	_, err = ctrl.Create(ctx, &CreateRequest{Kind: entity.ArtifactKindText, Title: "t", Instruction: "i", Content: "c"}, &recordSink{})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)

	_, err = ctrl.Create(ctx, &CreateRequest{Kind: "image", Title: "t", Content: "c"}, &recordSink{})
	assert.Equal(t, apperrors.CodeInvalidParam, apperrors.AsAppError(err).Code)
}

// 注入路径：图表校验失败是硬性错误，拒绝持久化
func TestInjectDiagramStrictValidation(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(store, &fakeProducer{}, nil)

	sink := &recordSink{}
	_, err := ctrl.Inject(context.Background(), &InjectRequest{
		Kind:    entity.ArtifactKindDiagram,
		Title:   "broken",
		Content: "this is not mermaid",
	}, sink)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidationFailed, apperrors.AsAppError(err).Code)

	// 流以 error 事件收尾，无 finish
	assert.Equal(t, EventError, sink.events[len(sink.events)-1].Type)
	for _, e := range sink.events {
		assert.NotEqual(t, EventFinish, e.Type)
	}

	// 没有任何版本写入
	assert.Empty(t, store.versions)
}

func TestInjectValidDiagram(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(store, &fakeProducer{}, nil)

	sink := &recordSink{}
	res, err := ctrl.Inject(context.Background(), &InjectRequest{
		Kind:    entity.ArtifactKindDiagram,
		Title:   "flow",
		Content: "flowchart TD\n  A --> B",
	}, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, res.VersionNo)

	v, err := store.GetLatest(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.UpdateTypeInject, v.Metadata.UpdateType)
}

func TestUpdateNotFound(t *testing.T) {
	ctrl := NewController(newMemStore(), &fakeProducer{}, nil)

	sink := &recordSink{}
	_, err := ctrl.Update(context.Background(), &UpdateRequest{
		ArtifactID: "missing",
		Content:    "x",
	}, sink)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeArtifactNotFound, apperrors.AsAppError(err).Code)

	require.Len(t, sink.events, 1)
	assert.Equal(t, EventError, sink.events[0].Type)
}

// brokenStore 读取基版本即报存储错误
type brokenStore struct {
	*memStore
}

func (s *brokenStore) GetLatest(context.Context, string) (*entity.ArtifactVersion, error) {
	return nil, apperrors.ErrPersistence
}

// 存储读失败与构件不存在一样：先发 error 事件再把错误上抛
func TestUpdateStoreReadFailureEmitsErrorEvent(t *testing.T) {
	ctrl := NewController(&brokenStore{newMemStore()}, &fakeProducer{}, nil)

	sink := &recordSink{}
	_, err := ctrl.Update(context.Background(), &UpdateRequest{
		ArtifactID: "aid",
		Content:    "x",
	}, sink)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodePersistenceError, apperrors.AsAppError(err).Code)

	require.Len(t, sink.events, 1)
	assert.Equal(t, EventError, sink.events[0].Type)
}

func seedVersion(t *testing.T, store *memStore, kind entity.ArtifactKind, content string) string {
	t.Helper()
	v := &entity.ArtifactVersion{
		ArtifactID: "11111111-1111-1111-1111-111111111111",
		Title:      "seeded",
		Kind:       kind,
		Content:    content,
	}
	require.NoError(t, store.Create(context.Background(), v))
	return v.ArtifactID
}

func TestUpdateEmitsClearAndAppendsVersion(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(store, &fakeProducer{}, nil)
	id := seedVersion(t, store, entity.ArtifactKindText, "old content")

	sink := &recordSink{}
	res, err := ctrl.Update(context.Background(), &UpdateRequest{
		ArtifactID: id,
		Content:    "new content",
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventKind, EventID, EventTitle, EventClear,
		EventContentDelta, EventFinish,
	}, sink.types())
	assert.Equal(t, 2, res.VersionNo)

	v, err := store.GetLatest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "new content", v.Content)
	require.NotNil(t, v.ParentVersionID)
	assert.Equal(t, id, *v.ParentVersionID)
	assert.Equal(t, entity.UpdateTypeUpdate, v.Metadata.UpdateType)

	// 旧版本保持不变
	v1, err := store.GetByNumber(context.Background(), id, 1)
	require.NoError(t, err)
	assert.Equal(t, "old content", v1.Content)
}

func TestUpdateWithLineRange(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(store, &fakeProducer{}, nil)
	id := seedVersion(t, store, entity.ArtifactKindCode, "a = 1\nb = 2\nc = 3\nd = 4")

	sink := &recordSink{}
	res, err := ctrl.Update(context.Background(), &UpdateRequest{
		ArtifactID: id,
		Content:    "x = 9\ny = 8",
		LineRange:  &LineRange{Start: 2, End: 3},
		UpdateType: entity.UpdateTypeFix,
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, "a = 1\nx = 9\ny = 8\nd = 4", res.Content)

	v, err := store.GetLatest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.UpdateTypeFix, v.Metadata.UpdateType)
}

func TestUpdateInvalidLineRange(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(store, &fakeProducer{}, nil)
	id := seedVersion(t, store, entity.ArtifactKindText, "a\nb")

	sink := &recordSink{}
	_, err := ctrl.Update(context.Background(), &UpdateRequest{
		ArtifactID: id,
		Content:    "X",
		LineRange:  &LineRange{Start: 2, End: 1},
	}, sink)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeInvalidLineRange, apperrors.AsAppError(err).Code)
	assert.Equal(t, EventError, sink.events[len(sink.events)-1].Type)

	// 失败的更新不产生新版本
	v, err := store.GetLatest(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, v.VersionNo)
}

func TestUpdateGenerationError(t *testing.T) {
	store := newMemStore()
	producer := &fakeProducer{snapshots: []string{"partial"}, recvErr: assert.AnError}
	ctrl := NewController(store, producer, nil)
	id := seedVersion(t, store, entity.ArtifactKindText, "old")

	sink := &recordSink{}
	_, err := ctrl.Update(context.Background(), &UpdateRequest{
		ArtifactID:  id,
		Instruction: "rewrite it",
	}, sink)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeGenerationFailed, apperrors.AsAppError(err).Code)
	assert.Equal(t, EventError, sink.events[len(sink.events)-1].Type)
}

// 消费端中途关闭只抑制事件发射，生成与持久化照常完成
func TestConsumerClosedStillPersists(t *testing.T) {
	store := newMemStore()
	producer := &fakeProducer{snapshots: []string{"hello", "hello world"}}
	ctrl := NewController(store, producer, nil)

	sink := &recordSink{failAt: 3} // title 之后断开
	res, err := ctrl.Create(context.Background(), &CreateRequest{
		Kind:        entity.ArtifactKindText,
		Title:       "t",
		Instruction: "write",
	}, sink)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Len(t, sink.events, 3)

	v, err := store.GetLatest(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello world", v.Content)
}

// N 个并发写者下版本号保持稠密且唯一
func TestConcurrentUpdatesAssignUniqueVersions(t *testing.T) {
	store := newMemStore()
	ctrl := NewController(store, &fakeProducer{}, nil)
	id := seedVersion(t, store, entity.ArtifactKindText, "v1")

	const writers = 8
	var wg sync.WaitGroup
	results := make([]int, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := ctrl.Update(context.Background(), &UpdateRequest{
				ArtifactID: id,
				Content:    "update",
			}, &recordSink{})
			if assert.NoError(t, err) {
				results[i] = res.VersionNo
			}
		}(i)
	}
	wg.Wait()

	sort.Ints(results)
	for i, no := range results {
		assert.Equal(t, i+2, no)
	}
}
