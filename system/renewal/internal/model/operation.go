package model

import (
	"time"
)

// ManualDNSEntry 手动 DNS 模式下需要操作员添加的记录
type ManualDNSEntry struct {
	RecordName   string `json:"recordName"`
	RecordValue  string `json:"recordValue"`
	Instructions string `json:"instructions"`
}

// OperationLogLine 操作日志行
type OperationLogLine struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// RenewalOperation 一次端到端的证书续期操作
// 由编排器创建并独占修改，活动操作注册表持有其引用；
// 外部读取必须通过注册表返回的快照，不允许直接访问
type RenewalOperation struct {
	ID           string          `json:"id"`
	ConnectionID int64           `json:"connectionId"`
	Status       OperationStatus `json:"status"`
	Progress     int             `json:"progress"`
	Message      string          `json:"message"`

	Logs []OperationLogLine `json:"logs"`

	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`

	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	CreatedBy CreatedBy `json:"createdBy"`

	// 仅在 waiting_manual_dns 状态下非空
	ManualDNSEntry *ManualDNSEntry `json:"manualDnsEntry,omitempty"`

	Cancelled bool `json:"cancelled"`
}

// Clone 返回操作的深拷贝快照
func (o *RenewalOperation) Clone() *RenewalOperation {
	c := *o
	c.Logs = make([]OperationLogLine, len(o.Logs))
	copy(c.Logs, o.Logs)
	if o.ManualDNSEntry != nil {
		entry := *o.ManualDNSEntry
		c.ManualDNSEntry = &entry
	}
	if o.EndTime != nil {
		t := *o.EndTime
		c.EndTime = &t
	}
	return &c
}

// ProgressEvent 进度广播事件
type ProgressEvent struct {
	OperationID  string          `json:"operationId"`
	ConnectionID int64           `json:"connectionId"`
	Status       OperationStatus `json:"status"`
	Progress     int             `json:"progress"`
	Message      string          `json:"message"`
}
