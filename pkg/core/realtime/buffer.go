package realtime

import (
	"sync/atomic"
)

// EventBuffer 订阅者的有界事件缓冲区
// 发布方从不阻塞：缓冲区满时丢弃新事件并计数
type EventBuffer struct {
	data     chan *ExecutionEvent
	capacity int

	totalIn  int64 // atomic，总入队数
	totalOut int64 // atomic，总出队数
	dropped  int64 // atomic，丢弃数
}

// NewEventBuffer 创建事件缓冲区
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 1024
	}
	return &EventBuffer{
		data:     make(chan *ExecutionEvent, capacity),
		capacity: capacity,
	}
}

// Push 推入事件（非阻塞）
// 返回 true 表示成功，false 表示缓冲区已满（事件被丢弃）
func (b *EventBuffer) Push(ev *ExecutionEvent) bool {
	select {
	case b.data <- ev:
		atomic.AddInt64(&b.totalIn, 1)
		return true
	default:
		atomic.AddInt64(&b.dropped, 1)
		return false
	}
}

// Pop 弹出事件（非阻塞）
func (b *EventBuffer) Pop() (*ExecutionEvent, bool) {
	select {
	case ev, ok := <-b.data:
		if !ok {
			return nil, false
		}
		atomic.AddInt64(&b.totalOut, 1)
		return ev, true
	default:
		return nil, false
	}
}

// C 事件通道，关闭表示订阅结束
func (b *EventBuffer) C() <-chan *ExecutionEvent {
	return b.data
}

// Len 获取当前缓冲区长度
func (b *EventBuffer) Len() int {
	return len(b.data)
}

// Cap 获取缓冲区容量
func (b *EventBuffer) Cap() int {
	return b.capacity
}

// Usage 获取使用率
func (b *EventBuffer) Usage() float64 {
	return float64(len(b.data)) / float64(b.capacity)
}

// Stats 获取统计信息
func (b *EventBuffer) Stats() (totalIn, totalOut, dropped int64) {
	return atomic.LoadInt64(&b.totalIn),
		atomic.LoadInt64(&b.totalOut),
		atomic.LoadInt64(&b.dropped)
}

// GetDropped 获取丢弃数
func (b *EventBuffer) GetDropped() int64 {
	return atomic.LoadInt64(&b.dropped)
}

// close 只能由唯一的写入方调用
func (b *EventBuffer) close() {
	close(b.data)
}
