package artifact

import (
	"chat-artifact-api/internal/domain/entity"
)

// KindPolicy 按构件类型的差异化能力集。
// 三类生成逻辑只在校验策略和增量事件名上不同，其余共用同一个控制器。
type KindPolicy struct {
	Kind entity.ArtifactKind

	// Validate 内容校验，返回是否通过与原因；从不自行抛错
	Validate func(content string) (ok bool, reason string)

	// DeltaEventName 增量事件在流上的事件名
	DeltaEventName string

	// StrictInject 注入时校验失败是否硬性拒绝持久化
	StrictInject bool
}

var kindPolicies = map[entity.ArtifactKind]KindPolicy{
	entity.ArtifactKindText: {
		Kind:           entity.ArtifactKindText,
		Validate:       ValidateAny,
		DeltaEventName: "text-delta",
	},
	entity.ArtifactKindSheet: {
		Kind:           entity.ArtifactKindSheet,
		Validate:       ValidateAny,
		DeltaEventName: "sheet-delta",
	},
	entity.ArtifactKindCode: {
		Kind:           entity.ArtifactKindCode,
		Validate:       ValidateCode,
		DeltaEventName: "code-delta",
	},
	entity.ArtifactKindDiagram: {
		Kind:           entity.ArtifactKindDiagram,
		Validate:       ValidateDiagram,
		DeltaEventName: "diagram-delta",
		StrictInject:   true,
	},
}

// PolicyFor 返回指定构件类型的策略
func PolicyFor(kind entity.ArtifactKind) (KindPolicy, bool) {
	p, ok := kindPolicies[kind]
	return p, ok
}
