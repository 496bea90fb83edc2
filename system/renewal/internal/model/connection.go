package model

import (
	"time"
	"xiaozhengshu/pkg/core/model/common"
)

// Connection 证书连接配置
// 一条连接对应一台需要维护证书的目标设备（语音平台节点、身份引擎节点或通用 SSH 主机）
type Connection struct {
	common.Model
	Name       string     `gorm:"size:255;not null" json:"name" comment:"连接名称"`
	TargetType TargetType `gorm:"size:50;not null;index" json:"targetType" comment:"部署目标类型"`

	// 证书主体
	Hostname string `gorm:"size:255;not null" json:"hostname" comment:"证书主域名（FQDN）"`
	Domain   string `gorm:"size:255;not null" json:"domain" comment:"DNS 托管域"`
	AltNames string `gorm:"size:1000" json:"altNames" comment:"备用域名，逗号分隔"`

	// ACME 签发配置
	AcmeEnv        AcmeEnvironment `gorm:"size:20;not null;default:'production'" json:"acmeEnv" comment:"签发环境 staging/production"`
	AcmeEmail      string          `gorm:"size:255;not null" json:"acmeEmail" comment:"ACME 注册邮箱"`
	AcmeAccountKey string          `gorm:"type:longtext" json:"-" comment:"ACME 账户私钥（加密存储）"`

	// DNS 验证配置
	DnsProvider     DnsProvider `gorm:"size:50;not null;index" json:"dnsProvider" comment:"DNS 服务商"`
	DnsCredentialID int64       `gorm:"index" json:"dnsCredentialId" comment:"DNS 凭证 ID（custom 时为 0）"`

	// 部署配置（JSON，结构随 TargetType 变化）
	DeployConfig string `gorm:"type:text" json:"deployConfig" comment:"部署配置 JSON"`

	// 续期策略
	AutoRenew       int `gorm:"default:0;index" json:"autoRenew" comment:"是否自动续期 1:是 0:否"`
	IsEnabled       int `gorm:"default:1;index" json:"isEnabled" comment:"是否启用 1:是 0:否"`
	RenewBeforeDays int `gorm:"default:30" json:"renewBeforeDays" comment:"提前续期天数"`
	DemoteToManual  int `gorm:"default:0" json:"demoteToManual" comment:"传播超时是否降级为手动模式 1:是 0:否"`

	// 续期结果（由编排器回写）
	ExpiresAt         *time.Time `gorm:"index" json:"expiresAt" comment:"当前证书过期时间"`
	LastRenewalStatus string     `gorm:"size:50" json:"lastRenewalStatus" comment:"最近一次续期状态"`
	LastRenewalAt     *time.Time `json:"lastRenewalAt" comment:"最近一次续期时间"`
	LastError         string     `gorm:"type:text" json:"lastError" comment:"最近一次错误信息"`
}

// TableName 指定表名
func (Connection) TableName() string {
	return "renewal_connections"
}

// VoiceDeployConfig 语音平台部署配置
type VoiceDeployConfig struct {
	Host           string `json:"host" validate:"required"`
	Port           int    `json:"port"`
	Username       string `json:"username" validate:"required"`
	Password       string `json:"password" validate:"required"` // 加密存储
	RestartService int    `json:"restartService"`               // 部署后是否重启服务 1:是 0:否
	ServiceName    string `json:"serviceName"`                  // 需要重启的服务名
}

// IdentityDeployConfig 身份策略引擎部署配置
type IdentityDeployConfig struct {
	Host     string `json:"host" validate:"required"`
	Port     int    `json:"port"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"` // 加密存储
	UsedFor  string `json:"usedFor"`                      // 证书用途角色，逗号分隔：admin,eap,portal
}

// SSHDeployConfig 通用 SSH 部署配置
type SSHDeployConfig struct {
	Host           string `json:"host" validate:"required"`
	Port           int    `json:"port"`
	Username       string `json:"username" validate:"required"`
	AuthMethod     string `json:"authMethod" validate:"required,oneof=password privatekey keyboard_interactive"`
	Password       string `json:"password"`   // password/keyboard_interactive 认证使用（加密存储）
	PrivateKey     string `json:"privateKey"` // privatekey 认证使用（加密存储）
	RemotePath     string `json:"remotePath" validate:"required"` // 远程证书目录
	CertName       string `json:"certName"`                       // 证书文件名，默认 fullchain.pem
	KeyName        string `json:"keyName"`                        // 私钥文件名，默认 privkey.pem
	ChainName      string `json:"chainName"`                      // 证书链文件名，为空不上传
	FileMode       string `json:"fileMode"`                       // 文件权限，默认 0644（私钥恒为 0600）
	RestartCommand string `json:"restartCommand"`                 // 部署后执行的重载命令
}
