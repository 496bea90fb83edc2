package config

// ConfigCenterConfig 配置中心相关配置
type ConfigCenterConfig struct {
	// EncryptionSalt 敏感字段落库加密的盐值
	EncryptionSalt string `yaml:"encryption-salt" json:"encryption_salt"`
	// OpsWebhook 运维告警 webhook，为空不发送
	OpsWebhook string `yaml:"ops-webhook" json:"ops_webhook"`
}
