package artifact

import (
	"chat-artifact-api/pkg/metrics"
)

// EventType 流事件类型
type EventType string

const (
	EventKind         EventType = "kind"
	EventID           EventType = "id"
	EventTitle        EventType = "title"
	EventContentDelta EventType = "content-delta"
	EventClear        EventType = "clear"
	EventFinish       EventType = "finish"
	EventError        EventType = "error"
)

// StreamEvent 单次生命周期操作内的流事件。
// Name 仅对 content-delta 有效，携带按构件类型区分的事件名；
// 同一操作内事件的发送顺序必须保留。
type StreamEvent struct {
	Type    EventType `json:"type"`
	Name    string    `json:"name,omitempty"`
	Payload string    `json:"payload,omitempty"`
}

// EventSink 下游 UI 流消费者。
// 顺序敏感，无确认/背压信号。
type EventSink interface {
	Send(event StreamEvent) error
}

// Emitter 类型化的流事件发射器。
// 不做缓冲：每次调用同步转发给底层消费者，保证到达顺序即调用顺序。
// 固定事件顺序：kind -> id -> title -> (更新时 clear) -> content-delta* -> finish | error。
type Emitter struct {
	sink   EventSink
	policy KindPolicy
}

// NewEmitter 创建发射器
func NewEmitter(sink EventSink, policy KindPolicy) *Emitter {
	return &Emitter{sink: sink, policy: policy}
}

func (e *Emitter) send(event StreamEvent) error {
	metrics.StreamEventsTotal.WithLabelValues(string(event.Type)).Inc()
	return e.sink.Send(event)
}

// Kind 发送构件类型事件
func (e *Emitter) Kind() error {
	return e.send(StreamEvent{Type: EventKind, Payload: string(e.policy.Kind)})
}

// ID 发送构件 ID 事件
func (e *Emitter) ID(id string) error {
	return e.send(StreamEvent{Type: EventID, Payload: id})
}

// Title 发送标题事件
func (e *Emitter) Title(title string) error {
	return e.send(StreamEvent{Type: EventTitle, Payload: title})
}

// Clear 通知消费者丢弃过期内容（仅更新路径）
func (e *Emitter) Clear() error {
	return e.send(StreamEvent{Type: EventClear})
}

// Delta 发送内容增量
func (e *Emitter) Delta(delta string) error {
	return e.send(StreamEvent{Type: EventContentDelta, Name: e.policy.DeltaEventName, Payload: delta})
}

// Finish 发送成功终止事件
func (e *Emitter) Finish() error {
	return e.send(StreamEvent{Type: EventFinish})
}

// Error 发送失败终止事件
func (e *Emitter) Error(msg string) error {
	return e.send(StreamEvent{Type: EventError, Payload: msg})
}
