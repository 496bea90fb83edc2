package service

import (
	"fmt"
	"testing"
	"xiaozhengshu/system/renewal/internal/model"
)

func TestBroadcasterPublish(t *testing.T) {
	b := NewProgressBroadcaster(testLog())

	connCh, unsubConn := b.Subscribe(ConnectionTopic(1))
	defer unsubConn()
	adminCh, unsubAdmin := b.Subscribe(TopicAdmin)
	defer unsubAdmin()
	otherCh, unsubOther := b.Subscribe(ConnectionTopic(2))
	defer unsubOther()

	b.Publish(&model.ProgressEvent{
		OperationID:  "op-1",
		ConnectionID: 1,
		Status:       model.StatusGeneratingCSR,
		Progress:     10,
	})

	// 单连接主题与管理端主题都应收到
	select {
	case event := <-connCh:
		if event.OperationID != "op-1" {
			t.Errorf("连接主题收到事件 %s, 期望 op-1", event.OperationID)
		}
	default:
		t.Fatal("连接主题未收到事件")
	}
	select {
	case <-adminCh:
	default:
		t.Fatal("管理端主题未收到事件")
	}

	// 无关连接的主题不应收到
	select {
	case <-otherCh:
		t.Fatal("无关连接主题不应收到事件")
	default:
	}
}

func TestBroadcasterSnapshotOnSubscribe(t *testing.T) {
	b := NewProgressBroadcaster(testLog())

	b.Publish(&model.ProgressEvent{OperationID: "op-1", ConnectionID: 1, Progress: 10})
	b.Publish(&model.ProgressEvent{OperationID: "op-1", ConnectionID: 1, Progress: 50})
	b.Publish(&model.ProgressEvent{OperationID: "op-2", ConnectionID: 2, Progress: 30})

	// 迟到订阅者入场先收到各操作的最新快照
	ch, unsub := b.Subscribe(ConnectionTopic(1))
	defer unsub()

	select {
	case event := <-ch:
		if event.OperationID != "op-1" || event.Progress != 50 {
			t.Errorf("快照事件 = %s/%d, 期望 op-1/50", event.OperationID, event.Progress)
		}
	default:
		t.Fatal("订阅时未收到快照")
	}
	// 其他连接的操作不在快照内
	select {
	case event := <-ch:
		t.Fatalf("不应再收到事件: %s", event.OperationID)
	default:
	}

	// 管理端快照覆盖全部操作
	adminCh, unsubAdmin := b.Subscribe(TopicAdmin)
	defer unsubAdmin()
	if got := len(adminCh); got != 2 {
		t.Errorf("管理端快照事件数 = %d, 期望 2", got)
	}

	// 清除缓存后新订阅者不再收到快照
	b.Forget("op-1")
	b.Forget("op-2")
	lateCh, unsubLate := b.Subscribe(TopicAdmin)
	defer unsubLate()
	if got := len(lateCh); got != 0 {
		t.Errorf("Forget 后快照事件数 = %d, 期望 0", got)
	}
}

func TestBroadcasterNeverBlocks(t *testing.T) {
	b := NewProgressBroadcaster(testLog())

	ch, unsub := b.Subscribe(ConnectionTopic(1))
	defer unsub()

	// 订阅者不消费时发布方也不能被拖住，超出缓冲的事件被丢弃
	for i := 0; i < 64; i++ {
		b.Publish(&model.ProgressEvent{
			OperationID:  "op-1",
			ConnectionID: 1,
			Message:      fmt.Sprintf("event-%d", i),
		})
	}

	if got := len(ch); got != b.bufferSize {
		t.Errorf("缓冲事件数 = %d, 期望 %d", got, b.bufferSize)
	}
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewProgressBroadcaster(testLog())

	topic := ConnectionTopic(1)
	ch, unsub := b.Subscribe(topic)
	if count := b.SubscriberCount(topic); count != 1 {
		t.Errorf("SubscriberCount = %d, 期望 1", count)
	}

	unsub()
	if count := b.SubscriberCount(topic); count != 0 {
		t.Errorf("退订后 SubscriberCount = %d, 期望 0", count)
	}

	// 退订后通道关闭，消费循环可以正常退出
	if _, ok := <-ch; ok {
		t.Error("退订后通道应已关闭")
	}

	// 向无订阅者的主题发布不恐慌
	b.Publish(&model.ProgressEvent{OperationID: "op-1", ConnectionID: 1})
}
