package router

import (
	"xiaozhengshu/app"
	"xiaozhengshu/base"
	"xiaozhengshu/pkg/core/fiber_handle"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal"
	"xiaozhengshu/system/user"

	"github.com/gofiber/fiber/v2"
)

// Register 负责集中注册所有 HTTP 路由。
// 约定：
//   - 只依赖 app.App（业务编排入口）和 fiber.App（HTTP Server）。
//   - 不直接依赖任何 DAO / Service / system/internal 包。
//   - 不包含业务逻辑，只做分组与路由绑定。
func Register(a *app.App, f *fiber.App) {
	// 公共 API 分组
	api := f.Group("/api", fiber_handle.NewApiTracer(), logger.NewApiLogger(logger.Config{Logger: base.Logger}))

	// 简单存活检查路由
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"msg": "ok"})
	})

	// 后台管理路由分组
	admin := f.Group("/admin", fiber_handle.NewApiTracer(), logger.NewAdminLogger(logger.AdminConfig{Logger: base.Logger}))

	// 注册用户组件路由（管理员登录、管理员管理）
	user.RegisterRoutes(a.UserModule, api, admin)

	// 注册证书续期组件路由
	renewal.RegisterRoutes(a.RenewalModule, api, admin)
}
