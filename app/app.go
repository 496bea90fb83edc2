package app

import (
	"xiaozhengshu/system/renewal"
	"xiaozhengshu/system/user"
)

// App 应用组合根，持有所有业务组件模块
type App struct {
	UserModule    *user.Module
	RenewalModule *renewal.Module
}

// NewApp 创建应用组合根，按依赖顺序初始化各组件模块
func NewApp() *App {
	// 用户组件（管理员登录）
	userModule := user.NewModule()

	// 证书续期组件
	renewalModule := renewal.NewModule()

	return &App{
		UserModule:    userModule,
		RenewalModule: renewalModule,
	}
}
