package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"chat-artifact-api/internal/application/artifact"
	"chat-artifact-api/internal/domain/entity"
	einoobs "chat-artifact-api/internal/observability/eino"
)

// kindInstructions 按构件类型的生成约束
var kindInstructions = map[entity.ArtifactKind]string{
	entity.ArtifactKindText:    "You write well-structured documents. Output only the document body, no surrounding commentary.",
	entity.ArtifactKindSheet:   "You produce spreadsheet data as CSV. Output only the CSV rows, no surrounding commentary.",
	entity.ArtifactKindCode:    "You write clean, runnable source code. Output only the code, no markdown fences, no commentary.",
	entity.ArtifactKindDiagram: "You produce diagrams in Mermaid syntax. The first line must declare the diagram type. Output only the diagram source.",
}

// ArtifactProducer 基于 Eino 流式 ChatModel 的内容生产者
type ArtifactProducer struct {
	factory *EinoFactory
}

var _ artifact.ContentProducer = (*ArtifactProducer)(nil)

// NewArtifactProducer 创建内容生产者
func NewArtifactProducer(factory *EinoFactory) *ArtifactProducer {
	return &ArtifactProducer{factory: factory}
}

// Stream 发起流式生成，返回累计快照序列；调用方负责 Close()
func (p *ArtifactProducer) Stream(ctx context.Context, req *artifact.GenerateRequest) (artifact.SnapshotStream, artifact.ProducerInfo, error) {
	chatModel, err := p.factory.Get(ctx, req.Provider)
	if err != nil {
		return nil, artifact.ProducerInfo{}, err
	}

	provider, modelName := p.factory.DefaultModelName(req.Provider)
	if strings.TrimSpace(req.Model) != "" {
		modelName = strings.TrimSpace(req.Model)
	}
	info := artifact.ProducerInfo{Provider: provider, Model: modelName}

	msgs := buildProducerMessages(req)

	opts := make([]model.Option, 0, 1)
	if strings.TrimSpace(req.Model) != "" {
		opts = append(opts, model.WithModel(strings.TrimSpace(req.Model)))
	}

	ctx = einoobs.WithProvider(ctx, provider)
	reader, err := chatModel.Stream(ctx, msgs, opts...)
	if err != nil {
		return nil, info, fmt.Errorf("failed to start llm stream: %w", err)
	}

	return &einoSnapshotStream{reader: reader}, info, nil
}

func buildProducerMessages(req *artifact.GenerateRequest) []*schema.Message {
	system := kindInstructions[req.Kind]
	if req.ReplaceBlock {
		system += " You are replacing a block of lines inside an existing artifact: output only the replacement lines, not the whole artifact."
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Artifact title: %s\n", strings.TrimSpace(req.Title))
	if strings.TrimSpace(req.CurrentContent) != "" {
		fmt.Fprintf(&user, "\nCurrent artifact content:\n%s\n", req.CurrentContent)
	}
	fmt.Fprintf(&user, "\nInstruction: %s", strings.TrimSpace(req.Instruction))

	return []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user.String()),
	}
}

// einoSnapshotStream 把 Eino 的增量消息流折叠为累计快照流。
// 约定：流尾可能出现 Content 为空但带 Usage 的消息，跳过即可。
type einoSnapshotStream struct {
	reader *schema.StreamReader[*schema.Message]
	buf    strings.Builder
}

func (s *einoSnapshotStream) Recv() (string, error) {
	for {
		msg, err := s.reader.Recv()
		if err != nil {
			// io.EOF 原样透传，表示正常结束
			return "", err
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		s.buf.WriteString(msg.Content)
		return s.buf.String(), nil
	}
}

func (s *einoSnapshotStream) Close() {
	s.reader.Close()
}
