package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-artifact-api/internal/application/artifact"
	"chat-artifact-api/internal/config"
	"chat-artifact-api/internal/domain/entity"
	"chat-artifact-api/internal/domain/repository"
	apperrors "chat-artifact-api/pkg/errors"
)

// stubStore 内存版 VersionStore，仅覆盖处理器测试所需路径
type stubStore struct {
	mu       sync.Mutex
	versions map[string][]*entity.ArtifactVersion
}

func newStubStore() *stubStore {
	return &stubStore{versions: map[string][]*entity.ArtifactVersion{}}
}

func (s *stubStore) Create(_ context.Context, v *entity.ArtifactVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.VersionNo = len(s.versions[v.ArtifactID]) + 1
	v.CreatedAt = time.Now().UTC()
	clone := *v
	s.versions[v.ArtifactID] = append(s.versions[v.ArtifactID], &clone)
	return nil
}

func (s *stubStore) GetLatest(_ context.Context, artifactID string) (*entity.ArtifactVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.versions[artifactID]
	if len(vs) == 0 {
		return nil, apperrors.ErrArtifactNotFound
	}
	clone := *vs[len(vs)-1]
	return &clone, nil
}

func (s *stubStore) GetByNumber(_ context.Context, artifactID string, versionNo int) (*entity.ArtifactVersion, error) {
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

func (s *stubStore) ListVersions(_ context.Context, artifactID string, pagination repository.Pagination) (*repository.PagedResult[*entity.ArtifactVersion], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vs := s.versions[artifactID]
	items := make([]*entity.ArtifactVersion, len(vs))
	for i, v := range vs {
		clone := *v
		items[len(vs)-1-i] = &clone
	}
	return repository.NewPagedResult(items, int64(len(items)), pagination), nil
}

func (s *stubStore) ListVersionsSince(_ context.Context, artifactID string, since time.Time) ([]*entity.ArtifactVersion, error) {
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

func (s *stubStore) DeleteVersionsAfter(_ context.Context, artifactID string, after time.Time) (int64, error) {
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

func setupTestEngine(t *testing.T) (*gin.Engine, *stubStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := newStubStore()
	ctrl := artifact.NewController(store, nil, nil)
	query := artifact.NewQuery(store, nil, 0)

	cfg := &config.Config{}
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.Providers = map[string]config.ProviderConfig{
		"openai": {Model: "gpt-4o-mini"},
	}

	generateHandler := NewGenerateHandler(cfg, ctrl)
	artifactHandler := NewArtifactHandler(query)

	engine := gin.New()
	v1 := engine.Group("/v1")
	artifacts := v1.Group("/artifacts")
	artifacts.POST("/inject", generateHandler.Inject)
	artifacts.POST("/:aid/update", generateHandler.Update)
	artifacts.GET("/:aid/latest", artifactHandler.GetLatest)
	artifacts.GET("/:aid/versions", artifactHandler.ListVersions)
	artifacts.GET("/:aid/versions/:vno", artifactHandler.GetVersion)
	artifacts.DELETE("/:aid/versions", artifactHandler.DeleteVersionsAfter)

	return engine, store
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

// sseRecorder 为 c.Stream 提供 CloseNotify 支持
type sseRecorder struct {
	*httptest.ResponseRecorder
	closeCh chan bool
}

func (r *sseRecorder) CloseNotify() <-chan bool { return r.closeCh }

func doSSE(t *testing.T, engine *gin.Engine, path string, body any) *sseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := &sseRecorder{ResponseRecorder: httptest.NewRecorder(), closeCh: make(chan bool)}
	engine.ServeHTTP(w, req)
	return w
}

func TestInjectEndpoint(t *testing.T) {
	engine, _ := setupTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/artifacts/inject", gin.H{
		"kind":    "text",
		"title":   "notes",
		"content": "hello world",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Data struct {
			ID        string `json:"id"`
			VersionNo int    `json:"version_no"`
			Content   string `json:"content"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.ID)
	assert.Equal(t, 1, resp.Data.VersionNo)
	assert.Equal(t, "hello world", resp.Data.Content)

	// 注入后可读回最新版本
	w = doJSON(t, engine, http.MethodGet, "/v1/artifacts/"+resp.Data.ID+"/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestInjectUnknownKind(t *testing.T) {
	engine, _ := setupTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/artifacts/inject", gin.H{
		"kind":    "image",
		"title":   "t",
		"content": "c",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInjectInvalidDiagramRejected(t *testing.T) {
	engine, store := setupTestEngine(t)

	w := doJSON(t, engine, http.MethodPost, "/v1/artifacts/inject", gin.H{
		"kind":    "diagram",
		"title":   "broken",
		"content": "not a diagram",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, store.versions)
}

func TestGetLatestNotFound(t *testing.T) {
	engine, _ := setupTestEngine(t)

	w := doJSON(t, engine, http.MethodGet, "/v1/artifacts/does-not-exist/latest", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListVersionsPaged(t *testing.T) {
	engine, store := setupTestEngine(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(context.Background(), &entity.ArtifactVersion{
			ArtifactID: "aid-1",
			Title:      "t",
			Kind:       entity.ArtifactKindText,
			Content:    "v",
		}))
	}

	w := doJSON(t, engine, http.MethodGet, "/v1/artifacts/aid-1/versions?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []struct {
			VersionNo int `json:"version_no"`
		} `json:"data"`
		Meta struct {
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	// 降序
	require.Len(t, resp.Data, 3) // stub 不分片，只验证排序与元数据
	assert.Equal(t, 3, resp.Data[0].VersionNo)
}

// 非法或为零的分页参数回落到默认值，不产生 500
func TestListVersionsPaginationFallback(t *testing.T) {
	engine, store := setupTestEngine(t)

	require.NoError(t, store.Create(context.Background(), &entity.ArtifactVersion{
		ArtifactID: "aid-pg",
		Title:      "t",
		Kind:       entity.ArtifactKindText,
		Content:    "v",
	}))

	for _, query := range []string{"page_size=abc", "page_size=0", "page=-1&page_size=-5"} {
		w := doJSON(t, engine, http.MethodGet, "/v1/artifacts/aid-pg/versions?"+query, nil)
		require.Equal(t, http.StatusOK, w.Code, query)

		var resp struct {
			Meta struct {
				Page     int `json:"page"`
				PageSize int `json:"page_size"`
			} `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Meta.Page, query)
		assert.Equal(t, 20, resp.Meta.PageSize, query)
	}
}

func TestGetVersionByNumber(t *testing.T) {
	engine, store := setupTestEngine(t)

	require.NoError(t, store.Create(context.Background(), &entity.ArtifactVersion{
		ArtifactID: "aid-2",
		Title:      "t",
		Kind:       entity.ArtifactKindText,
		Content:    "first",
	}))

	w := doJSON(t, engine, http.MethodGet, "/v1/artifacts/aid-2/versions/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/v1/artifacts/aid-2/versions/9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, engine, http.MethodGet, "/v1/artifacts/aid-2/versions/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStreamsSSE(t *testing.T) {
	engine, store := setupTestEngine(t)

	require.NoError(t, store.Create(context.Background(), &entity.ArtifactVersion{
		ArtifactID: "aid-sse",
		Title:      "doc",
		Kind:       entity.ArtifactKindText,
		Content:    "old",
	}))

	w := doSSE(t, engine, "/v1/artifacts/aid-sse/update", gin.H{
		"content": "brand new body",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	// 事件序：kind, id, title, clear, 按类型命名的增量, finish
	assert.Contains(t, body, "event:kind")
	assert.Contains(t, body, "event:clear")
	assert.Contains(t, body, "event:text-delta")
	assert.Contains(t, body, "brand new body")
	assert.Contains(t, body, "event:finish")
	assert.NotContains(t, body, "event:error")

	v, err := store.GetLatest(context.Background(), "aid-sse")
	require.NoError(t, err)
	assert.Equal(t, 2, v.VersionNo)
	assert.Equal(t, "brand new body", v.Content)
}

func TestUpdateMissingArtifactEmitsErrorEvent(t *testing.T) {
	engine, _ := setupTestEngine(t)

	w := doSSE(t, engine, "/v1/artifacts/nope/update", gin.H{
		"content": "x",
	})
	require.Equal(t, http.StatusOK, w.Code) // SSE 已开流，错误走 error 事件
	assert.Contains(t, w.Body.String(), "event:error")
}

func TestDeleteVersionsAfterRequiresTimestamp(t *testing.T) {
	engine, _ := setupTestEngine(t)

	w := doJSON(t, engine, http.MethodDelete, "/v1/artifacts/aid-3/versions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, engine, http.MethodDelete, "/v1/artifacts/aid-3/versions?after=not-a-time", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
