package app

import (
	"os"
	"testing"
	"xiaozhengshu/base"
	"xiaozhengshu/pkg/core/config"
	"xiaozhengshu/pkg/core/start"
)

func TestMain(m *testing.M) {
	// 测试环境只需要加密盐值，不依赖 Redis 和全局数据库
	base.Configures = &start.Configures{
		Config: start.Config{
			ConfigCenter: config.ConfigCenterConfig{
				EncryptionSalt: "unit-test-salt",
			},
		},
	}
	os.Exit(m.Run())
}
