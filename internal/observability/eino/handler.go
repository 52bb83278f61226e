package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-artifact-api/pkg/metrics"
)

// startTimeKey 用于在 Context 中存储调用开始时间
// 这样可以在 OnEnd/OnError 时计算总耗时
type startTimeKey struct{}

// newChatModelCallbackHandler 创建模型调用的回调处理器。
// 每次模型生成内容时触发，记录调用次数、耗时、Token 消耗与追踪信息。
func newChatModelCallbackHandler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			provider := ProviderFromContext(ctx)
			modelName := modelNameFromInput(input)

			attrs := []attribute.KeyValue{
				attribute.String("llm.provider", provider),
				attribute.String("llm.model", modelName),
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			provider := ProviderFromContext(ctx)
			modelName := modelNameFromOutput(output)

			metrics.LLMCallTotal.WithLabelValues(provider, modelName, "success").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(provider, modelName).Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			if output != nil && output.TokenUsage != nil {
				metrics.LLMTokensUsed.WithLabelValues(provider, modelName, "prompt").Add(float64(output.TokenUsage.PromptTokens))
				metrics.LLMTokensUsed.WithLabelValues(provider, modelName, "completion").Add(float64(output.TokenUsage.CompletionTokens))

				if span != nil {
					span.SetAttributes(
						attribute.Int("llm.prompt_tokens", output.TokenUsage.PromptTokens),
						attribute.Int("llm.completion_tokens", output.TokenUsage.CompletionTokens),
					)
				}
			}
			if span != nil {
				span.End()
			}
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			provider := ProviderFromContext(ctx)
			modelName := ""
			if info != nil {
				modelName = info.Type
			}

			metrics.LLMCallTotal.WithLabelValues(provider, modelName, "error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.LLMCallDuration.WithLabelValues(provider, modelName).Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			if span != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				span.End()
			}
			return ctx
		},
	}
}

// elapsedSeconds 计算从 OnStart 到当前的时间差（秒）
func elapsedSeconds(ctx context.Context) float64 {
	v := ctx.Value(startTimeKey{})
	start, ok := v.(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

// modelNameFromInput 从输入配置中提取模型名称
func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

// modelNameFromOutput 从输出配置中提取模型名称
func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
