package service

import (
	"fmt"
	"sync"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"
)

// TopicAdmin 管理端全量进度主题
const TopicAdmin = "admin"

// ConnectionTopic 单连接进度主题名
func ConnectionTopic(connectionID int64) string {
	return fmt.Sprintf("connection:%d", connectionID)
}

// subscriber 单个订阅者，带缓冲通道
type subscriber struct {
	ch chan *model.ProgressEvent
}

// ProgressBroadcaster 续期进度广播器
// 发布永不阻塞：订阅者缓冲满时丢弃该订阅者的这条事件，
// 慢消费者只影响自己；新订阅者入场先收到各操作的最新快照
type ProgressBroadcaster struct {
	log         *logger.Log
	mu          sync.RWMutex
	subscribers map[string]map[*subscriber]bool
	latest      map[string]*model.ProgressEvent // operationID -> 最近事件
	bufferSize  int
}

// NewProgressBroadcaster 创建进度广播器
func NewProgressBroadcaster(log *logger.Log) *ProgressBroadcaster {
	return &ProgressBroadcaster{
		log:         log.WithEntryName("ProgressBroadcaster"),
		subscribers: make(map[string]map[*subscriber]bool),
		latest:      make(map[string]*model.ProgressEvent),
		bufferSize:  16,
	}
}

// Publish 向单连接主题与管理端主题发布进度事件
func (b *ProgressBroadcaster) Publish(event *model.ProgressEvent) {
	b.mu.Lock()
	b.latest[event.OperationID] = event
	targets := b.collect(ConnectionTopic(event.ConnectionID), TopicAdmin)
	b.mu.Unlock()

	for _, sub := range targets {
		b.deliver(sub, event)
	}
}

// Forget 清除操作的最新事件缓存（操作出保留期时调用）
func (b *ProgressBroadcaster) Forget(operationID string) {
	b.mu.Lock()
	delete(b.latest, operationID)
	b.mu.Unlock()
}

// Subscribe 订阅主题，返回事件通道与退订函数
// 订阅瞬间把已知操作的最新事件作为快照塞入通道
func (b *ProgressBroadcaster) Subscribe(topic string) (<-chan *model.ProgressEvent, func()) {
	sub := &subscriber{ch: make(chan *model.ProgressEvent, b.bufferSize)}

	b.mu.Lock()
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = make(map[*subscriber]bool)
	}
	b.subscribers[topic][sub] = true

	snapshot := make([]*model.ProgressEvent, 0, len(b.latest))
	for _, event := range b.latest {
		if topic == TopicAdmin || topic == ConnectionTopic(event.ConnectionID) {
			snapshot = append(snapshot, event)
		}
	}
	b.mu.Unlock()

	for _, event := range snapshot {
		b.deliver(sub, event)
	}

	unsubscribe := func() {
		b.mu.Lock()
		if subs, ok := b.subscribers[topic]; ok {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.subscribers, topic)
			}
		}
		b.mu.Unlock()
		close(sub.ch)
	}
	return sub.ch, unsubscribe
}

// SubscriberCount 主题当前订阅者数量
func (b *ProgressBroadcaster) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

func (b *ProgressBroadcaster) collect(topics ...string) []*subscriber {
	var targets []*subscriber
	for _, topic := range topics {
		for sub := range b.subscribers[topic] {
			targets = append(targets, sub)
		}
	}
	return targets
}

// deliver 非阻塞投递，缓冲满则丢弃
func (b *ProgressBroadcaster) deliver(sub *subscriber, event *model.ProgressEvent) {
	defer func() {
		// 退订与投递并发时通道可能已关闭
		_ = recover()
	}()
	select {
	case sub.ch <- event:
	default:
		b.log.WithField("operationId", event.OperationID).Debug("订阅者缓冲已满，丢弃进度事件")
	}
}
