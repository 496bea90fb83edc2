package app

import (
	"xiaozhengshu/base"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/user/internal/dao"
	"xiaozhengshu/system/user/internal/service"

	"gorm.io/gorm"
)

// App 用户组件应用组合根
type App struct {
	AdminService *service.AdminService
	log          *logger.Log
	err          *errorc.ErrorBuilder
	db           *gorm.DB
}

// NewApp 创建用户应用实例
func NewApp() *App {
	log := base.Logger.WithEntryName("UserApp")

	adminDao := dao.NewAdminDao(base.DB, log)
	adminService := service.NewAdminService(adminDao, log)

	return &App{
		AdminService: adminService,
		log:          log,
		err:          errorc.NewErrorBuilder("UserApp"),
		db:           base.DB,
	}
}
