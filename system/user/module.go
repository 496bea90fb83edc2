package user

import (
	"context"
	"xiaozhengshu/base"
	"xiaozhengshu/system/user/internal/app"
)

// Module 用户组件模块门面（对外暴露的根对象）
type Module struct {
	// internalApp 内部应用实例，不对外暴露，仅供组件内部使用
	internalApp *app.App
}

// NewModule 创建用户组件模块实例
func NewModule() *Module {
	return &Module{
		internalApp: app.NewApp(),
	}
}

// EnsureBootstrapSuperAdmin 确保存在默认超级管理员
// 当 user_admin 表为空时，自动创建账号/密码均为 admin 的超级管理员
func (m *Module) EnsureBootstrapSuperAdmin(ctx context.Context) error {
	count, err := m.internalApp.AdminService.Count(ctx)
	if err != nil {
		base.Logger.WithErr(err).Error("检查管理员数量失败")
		return err
	}

	if count > 0 {
		return nil
	}

	admin, err := m.internalApp.AdminService.CreateSuperAdmin(ctx, "admin", "admin", "系统默认超级管理员")
	if err != nil {
		base.Logger.WithErr(err).Error("创建默认超级管理员失败")
		return err
	}

	base.Logger.WithField("adminId", admin.ID).WithField("account", admin.Account).Info("已创建默认超级管理员 admin/admin，请尽快修改密码")
	return nil
}
