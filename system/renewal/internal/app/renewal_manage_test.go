package app

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/dao"
	"xiaozhengshu/system/renewal/internal/model"
	"xiaozhengshu/system/renewal/internal/service"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newSweepTestApp 在内存数据库上装配完整应用层
// 共享缓存的具名内存库保证续期协程和用例看到同一份表
func newSweepTestApp(t *testing.T) (*App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&model.DnsCredential{}, &model.Connection{}, &model.RenewalHistory{}); err != nil {
		t.Fatalf("迁移测试表失败: %v", err)
	}

	log := logger.GetLogger()
	connectionDao := dao.NewConnectionDao(db, log)
	dnsCredDao := dao.NewDnsCredentialDao(db, log)
	historyDao := dao.NewRenewalHistoryDao(db, log)

	cryptoSvc := service.NewCryptoService(log)
	acmeSvc := service.NewAcmeService(log, nil)
	deploySvc := service.NewDeployService(log, cryptoSvc)
	dnsFactory := service.NewDNSProviderFactory(log, nil)
	bundleStore := service.NewBundleStore(log, t.TempDir())

	renewalConfig := service.DefaultRenewalConfig()
	renewalConfig.Retention = time.Minute

	registry := service.NewOperationRegistry(log, renewalConfig.Retention)
	broadcaster := service.NewProgressBroadcaster(log)
	orchestrator := service.NewRenewalOrchestrator(
		log, registry, broadcaster,
		acmeSvc, dnsFactory, deploySvc, bundleStore, cryptoSvc,
		connectionDao, historyDao,
		renewalConfig,
	)

	return &App{
		ConnectionDao:    connectionDao,
		DnsCredentialDao: dnsCredDao,
		HistoryDao:       historyDao,
		CryptoService:    cryptoSvc,
		AcmeService:      acmeSvc,
		DeployService:    deploySvc,
		DnsFactory:       dnsFactory,
		BundleStore:      bundleStore,
		Registry:         registry,
		Broadcaster:      broadcaster,
		Orchestrator:     orchestrator,
		cronExpr:         "0 30 2 * * *",
		log:              log,
		err:              errorc.NewErrorBuilder("RenewalApp"),
	}, db
}

// seedDueConnection 写入一条已进入续期窗口的连接及其凭证
func seedDueConnection(t *testing.T, db *gorm.DB, mutate func(conn *model.Connection, cred *model.DnsCredential)) *model.Connection {
	t.Helper()

	cred := &model.DnsCredential{
		Name:      "cf-cred",
		Provider:  model.DnsProviderCloudflare,
		AccessKey: "cf-api-token",
		Status:    1,
	}
	expiresAt := time.Now().Add(10 * 24 * time.Hour)
	conn := &model.Connection{
		Name:            "due-conn",
		TargetType:      model.TargetTypeSSH,
		Hostname:        "host.example.com",
		Domain:          "example.com",
		AcmeEnv:         model.AcmeEnvStaging,
		AcmeEmail:       "ops@example.com",
		DnsProvider:     model.DnsProviderCloudflare,
		AutoRenew:       1,
		IsEnabled:       1,
		RenewBeforeDays: 30,
		ExpiresAt:       &expiresAt,
	}
	if mutate != nil {
		mutate(conn, cred)
	}
	if err := db.Create(cred).Error; err != nil {
		t.Fatalf("写入测试凭证失败: %v", err)
	}
	conn.DnsCredentialID = cred.ID
	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("写入测试连接失败: %v", err)
	}
	return conn
}

func TestRenewDueConnectionsSkipsActive(t *testing.T) {
	a, db := newSweepTestApp(t)
	conn := seedDueConnection(t, db, nil)

	// 连接已有进行中的操作，扫描应跳过而不是排队
	existing, err := a.Registry.Begin(conn.ID, model.CreatedByUser)
	if err != nil {
		t.Fatalf("登记操作失败: %v", err)
	}

	if err := a.RenewDueConnections(context.Background()); err != nil {
		t.Fatalf("扫描失败: %v", err)
	}

	ops := a.Registry.List()
	if len(ops) != 1 {
		t.Fatalf("操作数 = %d, 期望仍为 1", len(ops))
	}
	if ops[0].ID != existing.ID {
		t.Errorf("操作 ID = %s, 期望保留原操作 %s", ops[0].ID, existing.ID)
	}
}

func TestRenewDueConnectionsSweepGuard(t *testing.T) {
	a, db := newSweepTestApp(t)
	// 凭证留空让启动的续期立即失败收敛，用例只关心扫描互斥
	seedDueConnection(t, db, func(_ *model.Connection, cred *model.DnsCredential) {
		cred.AccessKey = ""
	})

	// 上一轮扫描尚未结束时直接跳过，不登记任何操作
	atomic.StoreInt32(&a.sweeping, 1)
	if err := a.RenewDueConnections(context.Background()); err != nil {
		t.Fatalf("扫描失败: %v", err)
	}
	if got := a.Registry.List(); len(got) != 0 {
		t.Errorf("操作数 = %d, 期望 0", len(got))
	}

	// 标志复位后扫描恢复工作
	atomic.StoreInt32(&a.sweeping, 0)
	if err := a.RenewDueConnections(context.Background()); err != nil {
		t.Fatalf("扫描失败: %v", err)
	}
	if got := a.Registry.List(); len(got) != 1 {
		t.Errorf("操作数 = %d, 期望 1", len(got))
	}
}

func TestRenewDueConnectionsStartsAndRecords(t *testing.T) {
	a, db := newSweepTestApp(t)
	// 凭证缺少 token，续期会在选择服务商策略时立即失败收敛，
	// 不依赖外部网络即可覆盖完整的启动与落库链路
	conn := seedDueConnection(t, db, func(_ *model.Connection, cred *model.DnsCredential) {
		cred.AccessKey = ""
		cred.SecretKey = ""
	})

	if err := a.RenewDueConnections(context.Background()); err != nil {
		t.Fatalf("扫描失败: %v", err)
	}

	ops := a.Registry.List()
	if len(ops) != 1 {
		t.Fatalf("操作数 = %d, 期望 1", len(ops))
	}
	if ops[0].CreatedBy != model.CreatedBySystem {
		t.Errorf("发起方 = %s, 期望 system", ops[0].CreatedBy)
	}

	// 扫描只负责启动，续期在独立协程内收敛到终态
	deadline := time.After(5 * time.Second)
	for {
		op, err := a.Registry.Get(ops[0].ID)
		if err != nil {
			t.Fatalf("查询操作失败: %v", err)
		}
		if op.Status.IsTerminal() {
			if op.Status != model.StatusFailed {
				t.Errorf("终态 = %s, 期望 failed", op.Status)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("续期操作未收敛到终态")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// 历史在终态广播之后落库，轮询等待写入完成
	var histories []model.RenewalHistory
	historyDeadline := time.After(5 * time.Second)
	for {
		if err := db.Where("connection_id = ?", conn.ID).Find(&histories).Error; err != nil {
			t.Fatalf("查询续期历史失败: %v", err)
		}
		if len(histories) == 1 {
			break
		}
		select {
		case <-historyDeadline:
			t.Fatalf("历史记录数 = %d, 期望 1", len(histories))
		case <-time.After(10 * time.Millisecond):
		}
	}
	if histories[0].Status != model.StatusFailed {
		t.Errorf("历史终态 = %s", histories[0].Status)
	}
	if histories[0].StartTime.IsZero() {
		t.Error("历史记录应带有开始时间")
	}
	if histories[0].TriggerType != model.TriggerTypeAutoRenew {
		t.Errorf("触发方式 = %s, 期望 auto_renew", histories[0].TriggerType)
	}

	var got model.Connection
	resultDeadline := time.After(5 * time.Second)
	for {
		if err := db.First(&got, conn.ID).Error; err != nil {
			t.Fatalf("读取连接失败: %v", err)
		}
		if got.LastRenewalStatus == string(model.StatusFailed) {
			break
		}
		select {
		case <-resultDeadline:
			t.Fatalf("last_renewal_status = %q, 期望 failed", got.LastRenewalStatus)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
