package renewal

import (
	"context"
	"xiaozhengshu/system/renewal/internal/app"
)

// Module 证书续期组件模块门面（对外暴露的根对象）
// 封装了内部 app，只暴露需要的能力
type Module struct {
	// internalApp 内部应用实例，不对外暴露，仅供组件内部使用
	internalApp *app.App
}

// NewModule 创建证书续期模块实例
func NewModule() *Module {
	return &Module{
		internalApp: app.NewApp(),
	}
}

// RenewDueConnections 扫描并续期即将过期的连接
// 供调度器任务调用
func (m *Module) RenewDueConnections(ctx context.Context) error {
	return m.internalApp.RenewDueConnections(ctx)
}

// CronExpr 自动续期扫描的 cron 表达式
func (m *Module) CronExpr() string {
	return m.internalApp.CronExpr()
}
