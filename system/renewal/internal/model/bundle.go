package model

import (
	"time"
)

// CertificateBundle 一次签发得到的完整证书材料
type CertificateBundle struct {
	CertificatePem  string `json:"certificatePem"`  // 叶子证书
	PrivateKeyPem   string `json:"-"`               // 私钥
	FullchainPem    string `json:"fullchainPem"`    // 叶子 + 中间 + 根
	ChainPem        string `json:"chainPem"`        // CA 链（不含叶子）
	IntermediatePem string `json:"intermediatePem"` // 中间证书
	RootPem         string `json:"rootPem"`         // 根证书

	Serial    string    `json:"serial"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// BundleFile 捆绑包内单个文件的元信息
type BundleFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// BundleInfo 捆绑包查询结果
type BundleInfo struct {
	ConnectionID int64           `json:"connectionId"`
	Environment  AcmeEnvironment `json:"environment"`
	Files        []BundleFile    `json:"files"`

	// 叶子证书解析结果
	Subject   string    `json:"subject"`
	Issuer    string    `json:"issuer"`
	Serial    string    `json:"serial"`
	SANs      []string  `json:"sans"`
	NotBefore time.Time `json:"notBefore"`
	NotAfter  time.Time `json:"notAfter"`
}
