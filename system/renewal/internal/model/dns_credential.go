package model

import (
	"xiaozhengshu/pkg/core/model/common"
)

// DnsCredential DNS 服务商 API 凭证
// AccessKey/SecretKey 加密存储，使用时由 CryptoService 解密
type DnsCredential struct {
	common.Model
	Name        string       `gorm:"size:255;not null" json:"name" comment:"凭证名称"`
	Provider    DnsProvider  `gorm:"size:50;not null;index" json:"provider" comment:"DNS 服务商"`
	AccessKey   string       `gorm:"size:1000" json:"-" comment:"访问密钥（加密存储）"`
	SecretKey   string       `gorm:"size:2000" json:"-" comment:"私密密钥（加密存储）"`
	ExtraConfig *common.JSON `gorm:"type:json" json:"extraConfig" comment:"额外配置（region、tenant 等）"`
	Status      int          `gorm:"default:1" json:"status" comment:"状态 1:启用 0:禁用"`
}

// TableName 指定表名
func (DnsCredential) TableName() string {
	return "renewal_dns_credentials"
}
