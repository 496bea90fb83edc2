package app

import (
	"time"
	"xiaozhengshu/base"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/dao"
	"xiaozhengshu/system/renewal/internal/service"
)

// App 证书续期组件应用层
// 负责组合/调度 Service，实现复杂业务逻辑
type App struct {
	// DAOs
	ConnectionDao    *dao.ConnectionDao
	DnsCredentialDao *dao.DnsCredentialDao
	HistoryDao       *dao.RenewalHistoryDao

	// Services
	CryptoService *service.CryptoService
	AcmeService   *service.AcmeService
	DeployService *service.DeployService
	DnsFactory    *service.DNSProviderFactory
	BundleStore   *service.BundleStore
	Registry      *service.OperationRegistry
	Broadcaster   *service.ProgressBroadcaster
	Orchestrator  *service.RenewalOrchestrator

	// cronExpr 自动续期扫描的 cron 表达式
	cronExpr string
	// sweeping 扫描互斥标志，保证同一时刻只有一轮扫描
	sweeping int32

	log *logger.Log
	err *errorc.ErrorBuilder
}

// NewApp 创建证书续期应用层实例
func NewApp() *App {
	log := logger.GetLogger().WithEntryName("RenewalApp")
	cfg := base.Configures.Config.Renewal

	// 初始化 DAOs
	connectionDao := dao.NewConnectionDao(base.DB, log)
	dnsCredDao := dao.NewDnsCredentialDao(base.DB, log)
	historyDao := dao.NewRenewalHistoryDao(base.DB, log)

	// 初始化 Services
	cryptoSvc := service.NewCryptoService(log)
	acmeSvc := service.NewAcmeService(log, cfg.Nameservers)
	deploySvc := service.NewDeployService(log, cryptoSvc)
	dnsFactory := service.NewDNSProviderFactory(log, cfg.Nameservers)
	bundleStore := service.NewBundleStore(log, cfg.BundleDir)

	renewalConfig := service.DefaultRenewalConfig()
	if cfg.PropagationIntervalSeconds > 0 {
		renewalConfig.PropagationInterval = time.Duration(cfg.PropagationIntervalSeconds) * time.Second
	}
	if cfg.PropagationAttempts > 0 {
		renewalConfig.PropagationAttempts = cfg.PropagationAttempts
	}
	if cfg.ManualPollIntervalSeconds > 0 {
		renewalConfig.ManualPollInterval = time.Duration(cfg.ManualPollIntervalSeconds) * time.Second
	}
	if cfg.RetentionMinutes > 0 {
		renewalConfig.Retention = time.Duration(cfg.RetentionMinutes) * time.Minute
	}

	registry := service.NewOperationRegistry(log, renewalConfig.Retention)
	broadcaster := service.NewProgressBroadcaster(log)
	orchestrator := service.NewRenewalOrchestrator(
		log, registry, broadcaster,
		acmeSvc, dnsFactory, deploySvc, bundleStore, cryptoSvc,
		connectionDao, historyDao,
		renewalConfig,
	)

	cronExpr := cfg.CronExpr
	if cronExpr == "" {
		cronExpr = "0 30 2 * * *" // 默认每天凌晨 02:30 扫描
	}

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
		cronExpr:         cronExpr,
		log:              log,
		err:              errorc.NewErrorBuilder("RenewalApp"),
	}
}

// CronExpr 自动续期扫描的 cron 表达式
func (a *App) CronExpr() string {
	return a.cronExpr
}
