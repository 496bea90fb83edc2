package dao

import (
	"context"
	"testing"
	"time"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.Connection{}, &model.DnsCredential{}, &model.RenewalHistory{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}
	return db
}

func seedConnection(t *testing.T, db *gorm.DB, name string, mutate func(*model.Connection)) *model.Connection {
	t.Helper()
	expiresAt := time.Now().Add(10 * 24 * time.Hour)
	conn := &model.Connection{
		Name:            name,
		TargetType:      model.TargetTypeSSH,
		Hostname:        "host.example.com",
		Domain:          "example.com",
		AcmeEnv:         model.AcmeEnvProduction,
		AcmeEmail:       "ops@example.com",
		DnsProvider:     model.DnsProviderCloudflare,
		DnsCredentialID: 1,
		AutoRenew:       1,
		IsEnabled:       1,
		RenewBeforeDays: 30,
		ExpiresAt:       &expiresAt,
	}
	if mutate != nil {
		mutate(conn)
	}
	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("写入测试连接失败: %v", err)
	}
	return conn
}

func TestFindConnectionsToRenew(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*model.Connection)
		eligible bool
	}{
		{
			name:     "窗口内的自动连接",
			mutate:   nil,
			eligible: true,
		},
		{
			name: "已过期的连接",
			mutate: func(c *model.Connection) {
				expired := time.Now().Add(-24 * time.Hour)
				c.ExpiresAt = &expired
			},
			eligible: true,
		},
		{
			name: "尚未进入续期窗口",
			mutate: func(c *model.Connection) {
				far := time.Now().Add(90 * 24 * time.Hour)
				c.ExpiresAt = &far
			},
			eligible: false,
		},
		{
			name: "已禁用的连接",
			mutate: func(c *model.Connection) {
				c.IsEnabled = 0
			},
			eligible: false,
		},
		{
			name: "未开启自动续期",
			mutate: func(c *model.Connection) {
				c.AutoRenew = 0
			},
			eligible: false,
		},
		{
			name: "手动 DNS 服务商",
			mutate: func(c *model.Connection) {
				c.DnsProvider = model.DnsProviderCustom
				c.DnsCredentialID = 0
			},
			eligible: false,
		},
		{
			name: "从未续期过、无过期时间",
			mutate: func(c *model.Connection) {
				c.ExpiresAt = nil
			},
			eligible: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			d := NewConnectionDao(db, logger.GetLogger())
			seedConnection(t, db, tt.name, tt.mutate)

			got, err := d.FindConnectionsToRenew(context.Background())
			if err != nil {
				t.Fatalf("查询失败: %v", err)
			}
			if tt.eligible && len(got) != 1 {
				t.Errorf("命中数 = %d, 期望 1", len(got))
			}
			if !tt.eligible && len(got) != 0 {
				t.Errorf("命中数 = %d, 期望 0", len(got))
			}

			count, err := d.CountConnectionsToRenew(context.Background())
			if err != nil {
				t.Fatalf("统计失败: %v", err)
			}
			if count != int64(len(got)) {
				t.Errorf("统计 = %d, 与查询结果 %d 不一致", count, len(got))
			}
		})
	}
}

func TestFindConnectionsToRenewMixed(t *testing.T) {
	db := newTestDB(t)
	d := NewConnectionDao(db, logger.GetLogger())

	seedConnection(t, db, "due", nil)
	seedConnection(t, db, "not-due", func(c *model.Connection) {
		far := time.Now().Add(90 * 24 * time.Hour)
		c.ExpiresAt = &far
	})
	seedConnection(t, db, "disabled", func(c *model.Connection) {
		c.IsEnabled = 0
	})

	got, err := d.FindConnectionsToRenew(context.Background())
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(got) != 1 || got[0].Name != "due" {
		t.Fatalf("期望只命中 due, 实际 %d 条", len(got))
	}
}

func TestUpdateRenewalResult(t *testing.T) {
	db := newTestDB(t)
	d := NewConnectionDao(db, logger.GetLogger())
	conn := seedConnection(t, db, "target", nil)

	renewedAt := time.Now()
	err := d.UpdateRenewalResult(context.Background(), conn.ID, map[string]interface{}{
		"last_renewal_status": "completed",
		"last_renewal_at":     renewedAt,
		"last_error":          "",
	})
	if err != nil {
		t.Fatalf("更新失败: %v", err)
	}

	var got model.Connection
	if err := db.First(&got, conn.ID).Error; err != nil {
		t.Fatalf("读取失败: %v", err)
	}
	if got.LastRenewalStatus != "completed" {
		t.Errorf("last_renewal_status = %q", got.LastRenewalStatus)
	}
}
