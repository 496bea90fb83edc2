package service

import (
	"fmt"
	"sync"
	"time"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"

	"github.com/google/uuid"
)

// registryEntry 单个续期操作的注册表条目
// 每条目独立加锁，互不影响
type registryEntry struct {
	mu         sync.Mutex
	op         *model.RenewalOperation
	cancelCh   chan struct{}
	cancelOnce sync.Once
}

// OperationRegistry 续期操作注册表
// 维护所有进行中与近期完成的操作，保证同一连接同一时刻
// 最多一个非终态操作；终态操作保留一段时间后自动清除
type OperationRegistry struct {
	log       *logger.Log
	err       *errorc.ErrorBuilder
	mu        sync.RWMutex
	entries   map[string]*registryEntry
	active    map[int64]string // connectionID -> 非终态操作 ID
	retention time.Duration
}

// NewOperationRegistry 创建操作注册表，retention 为终态操作的保留时长
func NewOperationRegistry(log *logger.Log, retention time.Duration) *OperationRegistry {
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &OperationRegistry{
		log:       log.WithEntryName("OperationRegistry"),
		err:       errorc.NewErrorBuilder("OperationRegistry"),
		entries:   make(map[string]*registryEntry),
		active:    make(map[int64]string),
		retention: retention,
	}
}

// Begin 为连接登记一个新的续期操作
// 同一连接已有非终态操作时直接拒绝，不排队
func (r *OperationRegistry) Begin(connectionID int64, createdBy model.CreatedBy) (*model.RenewalOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.active[connectionID]; ok {
		return nil, r.err.New(fmt.Sprintf("连接 %d 已有进行中的续期操作 %s", connectionID, existingID), nil).ValidWithCtx()
	}

	op := &model.RenewalOperation{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Status:       model.StatusPending,
		Progress:     model.StatusPending.Progress(),
		Message:      "续期操作已创建",
		StartTime:    time.Now(),
		CreatedBy:    createdBy,
	}
	op.Logs = append(op.Logs, model.OperationLogLine{Time: op.StartTime, Message: op.Message})

	r.entries[op.ID] = &registryEntry{
		op:       op,
		cancelCh: make(chan struct{}),
	}
	r.active[connectionID] = op.ID

	r.log.WithFields(map[string]interface{}{
		"operationId":  op.ID,
		"connectionId": connectionID,
		"createdBy":    createdBy,
	}).Info("续期操作已登记")

	return op.Clone(), nil
}

// Get 按操作 ID 返回操作快照
func (r *OperationRegistry) Get(operationID string) (*model.RenewalOperation, error) {
	r.mu.RLock()
	entry, ok := r.entries[operationID]
	r.mu.RUnlock()
	if !ok {
		return nil, r.err.New(fmt.Sprintf("续期操作 %s 不存在", operationID), nil).NotFound()
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.op.Clone(), nil
}

// GetByConnection 返回连接当前非终态操作的快照，无则返回 nil
func (r *OperationRegistry) GetByConnection(connectionID int64) *model.RenewalOperation {
	r.mu.RLock()
	operationID, ok := r.active[connectionID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	op, err := r.Get(operationID)
	if err != nil {
		return nil
	}
	return op
}

// List 返回全部已登记操作的快照
func (r *OperationRegistry) List() []*model.RenewalOperation {
	r.mu.RLock()
	entries := make([]*registryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	ops := make([]*model.RenewalOperation, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		ops = append(ops, entry.op.Clone())
		entry.mu.Unlock()
	}
	return ops
}

// Update 在条目锁内应用修改并返回更新后的快照
// 操作进入终态时释放连接占用并调度保留期清除
func (r *OperationRegistry) Update(operationID string, mutate func(op *model.RenewalOperation)) (*model.RenewalOperation, error) {
	r.mu.RLock()
	entry, ok := r.entries[operationID]
	r.mu.RUnlock()
	if !ok {
		return nil, r.err.New(fmt.Sprintf("续期操作 %s 不存在", operationID), nil).NotFound()
	}

	entry.mu.Lock()
	wasTerminal := entry.op.Status.IsTerminal()
	mutate(entry.op)
	snapshot := entry.op.Clone()
	entry.mu.Unlock()

	if !wasTerminal && snapshot.Status.IsTerminal() {
		r.release(snapshot.ConnectionID, operationID)
	}
	return snapshot, nil
}

// release 释放连接占用并调度终态操作的保留期清除
func (r *OperationRegistry) release(connectionID int64, operationID string) {
	r.mu.Lock()
	if r.active[connectionID] == operationID {
		delete(r.active, connectionID)
	}
	r.mu.Unlock()

	time.AfterFunc(r.retention, func() {
		r.mu.Lock()
		delete(r.entries, operationID)
		r.mu.Unlock()
		r.log.WithField("operationId", operationID).Debug("终态续期操作已过保留期清除")
	})
}

// Cancel 请求取消操作
// 取消是协作式的：置位后由执行协程在状态边界与轮询循环内响应
func (r *OperationRegistry) Cancel(operationID string) error {
	r.mu.RLock()
	entry, ok := r.entries[operationID]
	r.mu.RUnlock()
	if !ok {
		return r.err.New(fmt.Sprintf("续期操作 %s 不存在", operationID), nil).NotFound()
	}

	entry.mu.Lock()
	if entry.op.Status.IsTerminal() {
		entry.mu.Unlock()
		return r.err.New(fmt.Sprintf("续期操作 %s 已结束，无法取消", operationID), nil).ValidWithCtx()
	}
	entry.op.Cancelled = true
	entry.mu.Unlock()

	entry.cancelOnce.Do(func() { close(entry.cancelCh) })
	r.log.WithField("operationId", operationID).Info("续期操作取消请求已受理")
	return nil
}

// CancelChan 返回操作的取消信号通道，供轮询循环 select 使用
func (r *OperationRegistry) CancelChan(operationID string) <-chan struct{} {
	r.mu.RLock()
	entry, ok := r.entries[operationID]
	r.mu.RUnlock()
	if !ok {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return entry.cancelCh
}

// IsCancelled 检查操作是否已请求取消
func (r *OperationRegistry) IsCancelled(operationID string) bool {
	r.mu.RLock()
	entry, ok := r.entries[operationID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.op.Cancelled
}

// ActiveCount 当前非终态操作数
func (r *OperationRegistry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
