package artifact

import (
	"context"

	"chat-artifact-api/internal/domain/entity"
)

// GenerateRequest 内容生成请求
type GenerateRequest struct {
	Kind        entity.ArtifactKind
	Title       string
	Instruction string

	// CurrentContent 更新时的当前全文，作为生成上下文
	CurrentContent string
	// ReplaceBlock 行范围更新：只生成替换块而非整篇文档
	ReplaceBlock bool

	Provider string
	Model    string
}

// ProducerInfo 本次生成实际使用的提供商与模型
type ProducerInfo struct {
	Provider string
	Model    string
}

// SnapshotStream 惰性、有限、不可重放的快照序列。
// 每个快照是截至当前的累计全文而非增量；io.EOF 表示正常结束。
type SnapshotStream interface {
	Recv() (string, error)
	Close()
}

// ContentProducer 模型生成端口。
// 引擎把模型视为不透明的增量内容来源；增量由调用方按
// latest[len(previous):] 计算。
type ContentProducer interface {
	Stream(ctx context.Context, req *GenerateRequest) (SnapshotStream, ProducerInfo, error)
}

// suffixDelta 计算两个累计快照之间的后缀增量
func suffixDelta(previous, latest string) string {
	if len(latest) <= len(previous) {
		return ""
	}
	return latest[len(previous):]
}
