package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// LogBus 执行事件总线，每个执行一个主题（对外导出）
// 基于watermill gochannel，进程内、非持久：订阅前发布的事件不会补发，
// 订阅方应先订阅再从存储读取历史日志，并按日志ID去重
type LogBus struct {
	pubsub     *gochannel.GoChannel
	logger     watermill.LoggerAdapter
	bufferSize int
	published  int64 // atomic
	closed     int32 // atomic
}

// Option LogBus选项
type Option func(*LogBus)

// WithBufferSize 设置每个订阅者的缓冲区大小
func WithBufferSize(n int) Option {
	return func(b *LogBus) { b.bufferSize = n }
}

// WithLogger 设置watermill日志适配器
func WithLogger(l watermill.LoggerAdapter) Option {
	return func(b *LogBus) { b.logger = l }
}

// NewLogBus 创建事件总线
func NewLogBus(opts ...Option) *LogBus {
	b := &LogBus{
		logger:     watermill.NewStdLogger(false, false),
		bufferSize: 1024,
	}
	for _, opt := range opts {
		opt(b)
	}
	// 发布阻塞到所有订阅者确认，保证同一执行的事件按发布顺序送达；
	// 订阅者的确认只是非阻塞地放入缓冲区，不会拖慢执行
	b.pubsub = gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: true,
		},
		b.logger,
	)
	return b
}

func topic(executionID string) string {
	return "execution." + executionID
}

// Publish 发布事件
func (b *LogBus) Publish(ev *ExecutionEvent) error {
	if atomic.LoadInt32(&b.closed) == 1 {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set("event_type", string(ev.Type))
	msg.Metadata.Set("execution_id", ev.ExecutionID)
	msg.Metadata.Set("timestamp", ev.Timestamp.Format(time.RFC3339Nano))
	if err := b.pubsub.Publish(topic(ev.ExecutionID), msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	atomic.AddInt64(&b.published, 1)
	return nil
}

// PublishLog 发布执行日志
func (b *LogBus) PublishLog(l *storage.ExecutionLog) error {
	return b.Publish(NewLogEvent(l))
}

// PublishFinished 发布执行终态
func (b *LogBus) PublishFinished(e *storage.Execution) error {
	return b.Publish(NewFinishedEvent(e))
}

// Published 已发布事件数
func (b *LogBus) Published() int64 {
	return atomic.LoadInt64(&b.published)
}

// Subscription 一个执行的事件订阅
type Subscription struct {
	buf  *EventBuffer
	done chan struct{}
}

// Events 事件通道；ctx结束或总线关闭后通道关闭
func (s *Subscription) Events() <-chan *ExecutionEvent {
	return s.buf.C()
}

// Dropped 因缓冲区满而丢弃的事件数
func (s *Subscription) Dropped() int64 {
	return s.buf.GetDropped()
}

// Done 订阅结束信号
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Subscribe 订阅某个执行的事件，ctx取消即退订
func (b *LogBus) Subscribe(ctx context.Context, executionID string) (*Subscription, error) {
	msgs, err := b.pubsub.Subscribe(ctx, topic(executionID))
	if err != nil {
		return nil, fmt.Errorf("订阅执行事件失败: %w", err)
	}
	sub := &Subscription{buf: NewEventBuffer(b.bufferSize), done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer sub.buf.close()
		for msg := range msgs {
			var ev ExecutionEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				logger.L().Warnf("⚠️ [事件总线] 解析事件失败: %v", err)
				msg.Ack()
				continue
			}
			if !sub.buf.Push(&ev) {
				logger.L().Warnf("⚠️ [事件总线] 订阅缓冲区已满，丢弃事件: ExecutionID=%s", executionID)
			}
			msg.Ack()
		}
	}()
	return sub, nil
}

// Close 关闭总线，所有订阅随之结束
func (b *LogBus) Close() error {
	if !atomic.CompareAndSwapInt32(&b.closed, 0, 1) {
		return nil
	}
	return b.pubsub.Close()
}
