package model

import (
	"time"
	"xiaozhengshu/pkg/core/model/common"
)

// RenewalHistory 续期操作历史记录
// 操作到达终态后由编排器写入，用于审计与管理端展示
type RenewalHistory struct {
	common.Model
	ConnectionID int64           `gorm:"not null;index" json:"connectionId" comment:"连接 ID"`
	OperationID  string          `gorm:"size:64;not null;index" json:"operationId" comment:"操作 ID"`
	TriggerType  TriggerType     `gorm:"size:20;not null" json:"triggerType" comment:"触发方式"`
	Status       OperationStatus `gorm:"size:50;not null" json:"status" comment:"终态"`
	StartTime    time.Time       `json:"startTime" comment:"开始时间"`
	EndTime      *time.Time      `json:"endTime" comment:"结束时间"`
	ErrorMessage string          `gorm:"type:text" json:"errorMessage" comment:"错误信息"`
	ErrorKind    string          `gorm:"size:50" json:"errorKind" comment:"错误类别"`
}

// TableName 指定表名
func (RenewalHistory) TableName() string {
	return "renewal_histories"
}
