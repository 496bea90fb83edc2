package app

import (
	"xiaozhengshu/pkg/core/start"

	"github.com/gofiber/fiber/v2"
)

// GetApp 创建 Fiber 应用（错误处理、跨域、panic 恢复、健康检查）
func GetApp() *fiber.App {
	return start.GetApp()
}
