package fiber_handle

import (
	"context"
	"xiaozhengshu/pkg/core/consts"

	"github.com/gofiber/fiber/v2"
	uuid "github.com/satori/go.uuid"
)

// NewApiTracer 为每个请求生成链路 ID 并写入上下文
func NewApiTracer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := uuid.NewV4().String()

		ctx := context.WithValue(c.UserContext(), consts.TraceKey, traceID)
		c.SetUserContext(ctx)
		c.Locals(consts.TraceKey, traceID)
		return c.Next()
	}
}

// NewInternalTracer 内部调用优先沿用上游透传的链路 ID
func NewInternalTracer() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(consts.TraceHeaderName)
		if traceID == "" {
			traceID = uuid.NewV4().String()
		}

		ctx := context.WithValue(c.UserContext(), consts.TraceKey, traceID)
		c.SetUserContext(ctx)
		c.Locals(consts.TraceKey, traceID)
		return c.Next()
	}
}
