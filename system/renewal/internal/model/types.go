package model

// DnsProvider DNS 服务商类型
type DnsProvider string

const (
	DnsProviderCloudflare   DnsProvider = "cloudflare"   // Cloudflare
	DnsProviderRoute53      DnsProvider = "route53"      // AWS Route53
	DnsProviderAzureDNS     DnsProvider = "azuredns"     // Azure DNS
	DnsProviderGCloud       DnsProvider = "gcloud"       // Google Cloud DNS
	DnsProviderDigitalOcean DnsProvider = "digitalocean" // DigitalOcean
	DnsProviderCustom       DnsProvider = "custom"       // 自定义（手动添加 TXT 记录）
)

// IsAutomated 是否支持自动添加验证记录
func (p DnsProvider) IsAutomated() bool {
	return p != DnsProviderCustom && p != ""
}

// TargetType 部署目标类型
type TargetType string

const (
	TargetTypeVoiceInfra     TargetType = "voice_infra"     // 语音平台（管理 API 部署）
	TargetTypeIdentityEngine TargetType = "identity_engine" // 身份策略引擎（信任库 + 角色导入）
	TargetTypeSSH            TargetType = "ssh"             // 通用 SSH/SFTP 主机
)

// OperationStatus 续期操作状态
type OperationStatus string

const (
	StatusPending                OperationStatus = "pending"                // 等待开始
	StatusGeneratingCSR          OperationStatus = "generating_csr"        // 生成/获取 CSR
	StatusCreatingAccount        OperationStatus = "creating_account"      // 创建 ACME 账户
	StatusRequestingCertificate  OperationStatus = "requesting_certificate" // 创建证书订单
	StatusCreatingDNSChallenge   OperationStatus = "creating_dns_challenge" // 添加 DNS 验证记录
	StatusWaitingDNSPropagation  OperationStatus = "waiting_dns_propagation" // 等待 DNS 传播
	StatusWaitingManualDNS       OperationStatus = "waiting_manual_dns"     // 等待手动添加记录
	StatusCompletingValidation   OperationStatus = "completing_validation"   // 完成域名验证
	StatusDownloadingCertificate OperationStatus = "downloading_certificate" // 下载证书
	StatusUploadingCertificate   OperationStatus = "uploading_certificate"   // 部署证书
	StatusRestartingService      OperationStatus = "restarting_service"      // 重启依赖服务
	StatusCompleted              OperationStatus = "completed"               // 已完成
	StatusFailed                 OperationStatus = "failed"                  // 失败
	StatusCancelled              OperationStatus = "cancelled"               // 已取消
)

// IsTerminal 是否为终态
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// statusProgress 各状态对应的进度百分比
var statusProgress = map[OperationStatus]int{
	StatusPending:                0,
	StatusGeneratingCSR:          10,
	StatusCreatingAccount:        20,
	StatusRequestingCertificate:  30,
	StatusCreatingDNSChallenge:   40,
	StatusWaitingDNSPropagation:  50,
	StatusWaitingManualDNS:       50,
	StatusCompletingValidation:   65,
	StatusDownloadingCertificate: 75,
	StatusUploadingCertificate:   85,
	StatusRestartingService:      95,
	StatusCompleted:              100,
}

// Progress 返回状态对应的进度百分比
// failed/cancelled 不定义进度，返回 0，调用方应保留操作原有进度
func (s OperationStatus) Progress() int {
	return statusProgress[s]
}

// CreatedBy 操作发起方
type CreatedBy string

const (
	CreatedBySystem CreatedBy = "system" // 自动续期调度器发起
	CreatedByUser   CreatedBy = "user"   // 管理端手动发起
)

// AcmeEnvironment ACME 签发环境
type AcmeEnvironment string

const (
	AcmeEnvStaging    AcmeEnvironment = "staging"    // Let's Encrypt 测试环境
	AcmeEnvProduction AcmeEnvironment = "production" // Let's Encrypt 生产环境
)

// TriggerType 续期触发方式
type TriggerType string

const (
	TriggerTypeManual    TriggerType = "manual"     // 手动触发
	TriggerTypeAutoRenew TriggerType = "auto_renew" // 自动续期触发
)
