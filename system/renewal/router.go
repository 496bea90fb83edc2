package renewal

import (
	controller "xiaozhengshu/system/renewal/external/http"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes 注册证书续期组件的所有 HTTP 路由
// 此函数在 renewal 包内，可以访问 Module 的私有字段 internalApp
func RegisterRoutes(m *Module, api, admin fiber.Router) {
	// 后台管理接口（依赖 internal/app.App）
	renewalController := controller.NewRenewalController(m.internalApp)
	renewalController.RegisterRoutes(admin)
}
