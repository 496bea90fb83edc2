package service

import (
	"context"
	"fmt"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"
)

// DeployResult 部署适配器的结构化结果
// 预期内的失败（认证失败、目标不可达、API 拒绝）通过 Success=false 返回，
// 只有意外故障才返回 error 并进入错误分类
type DeployResult struct {
	Success bool                   `json:"success"`
	Details map[string]interface{} `json:"details"`
}

// DeployAdapter 部署目标策略接口
type DeployAdapter interface {
	TargetType() model.TargetType
	// Deploy 将证书捆绑包安装到目标设备，可安全重试
	Deploy(ctx context.Context, conn *model.Connection, bundle *model.CertificateBundle) (*DeployResult, error)
	// SupportsRestart 目标是否配置了部署后重启
	SupportsRestart(conn *model.Connection) bool
	// RestartService 重启依赖服务
	RestartService(ctx context.Context, conn *model.Connection) (*DeployResult, error)
}

// CSRGenerator 由目标设备生成 CSR 的适配器实现此接口
type CSRGenerator interface {
	// FetchCSR 从目标管理 API 获取 PEM 格式 CSR
	FetchCSR(ctx context.Context, conn *model.Connection) (string, error)
}

// DeployService 部署适配器注册与分发
type DeployService struct {
	log      *logger.Log
	err      *errorc.ErrorBuilder
	adapters map[model.TargetType]DeployAdapter
}

// NewDeployService 创建部署服务实例并注册全部适配器
func NewDeployService(log *logger.Log, crypto *CryptoService) *DeployService {
	s := &DeployService{
		log:      log.WithEntryName("DeployService"),
		err:      errorc.NewErrorBuilder("DeployService"),
		adapters: make(map[model.TargetType]DeployAdapter),
	}

	caller := newFasthttpCaller(0)
	s.Register(NewVoiceDeployAdapter(log, crypto, caller))
	s.Register(NewIdentityDeployAdapter(log, crypto, caller))
	s.Register(NewSSHDeployAdapter(log, crypto))

	return s
}

// Register 注册部署适配器
func (s *DeployService) Register(adapter DeployAdapter) {
	s.adapters[adapter.TargetType()] = adapter
}

// Adapter 按目标类型选择适配器
func (s *DeployService) Adapter(targetType model.TargetType) (DeployAdapter, error) {
	adapter, ok := s.adapters[targetType]
	if !ok {
		return nil, NewValidationError(fmt.Sprintf("不支持的部署目标类型: %s", targetType))
	}
	return adapter, nil
}
