package eino

import (
	"context"
	"strings"
)

type llmCtxKey string

const llmCtxKeyProvider llmCtxKey = "llm_provider"

// WithProvider 把 LLM 提供商名写入 Context，供回调处理器打标
func WithProvider(ctx context.Context, provider string) context.Context {
	if ctx == nil {
		return nil
	}
	p := strings.TrimSpace(provider)
	if p == "" {
		return ctx
	}
	return context.WithValue(ctx, llmCtxKeyProvider, p)
}

// ProviderFromContext 读取 Context 中的提供商名
func ProviderFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(llmCtxKeyProvider).(string); ok {
		return v
	}
	return ""
}
