package user

import (
	controller "xiaozhengshu/system/user/external/http"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes 注册用户组件路由
func RegisterRoutes(m *Module, api, admin fiber.Router) {
	adminController := controller.NewAdminController(m.internalApp)

	// 管理员路由（包含登录接口）
	adminController.RegisterRoutes(admin)
}
