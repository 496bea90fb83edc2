package service

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"

	"github.com/go-acme/lego/v4/acme"
	"github.com/go-acme/lego/v4/certificate"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
	"github.com/go-acme/lego/v4/lego"
	"github.com/go-acme/lego/v4/registration"
)

const (
	// ProductionACMEServer Let's Encrypt 生产环境
	ProductionACMEServer = lego.LEDirectoryProduction
	// StagingACMEServer Let's Encrypt 测试环境（不消耗生产限流额度）
	StagingACMEServer = lego.LEDirectoryStaging
)

// AcmeService ACME 客户端适配层
// 封装 lego 调用：账户注册/复用、订单创建、CSR 提交、证书下载，
// 并将签发方错误归一化为引擎错误分类
type AcmeService struct {
	log         *logger.Log
	err         *errorc.ErrorBuilder
	nameservers []string
	dnsTimeout  time.Duration
}

// NewAcmeService 创建 ACME 服务实例
func NewAcmeService(log *logger.Log, nameservers []string) *AcmeService {
	if len(nameservers) == 0 {
		nameservers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	return &AcmeService{
		log:         log.WithEntryName("AcmeService"),
		err:         errorc.NewErrorBuilder("AcmeService"),
		nameservers: nameservers,
		dnsTimeout:  120 * time.Second,
	}
}

// AcmeUser 实现 lego 的 registration.User 接口
type AcmeUser struct {
	Email        string
	Registration *registration.Resource
	key          crypto.PrivateKey
}

func (u *AcmeUser) GetEmail() string {
	return u.Email
}

func (u *AcmeUser) GetRegistration() *registration.Resource {
	return u.Registration
}

func (u *AcmeUser) GetPrivateKey() crypto.PrivateKey {
	return u.key
}

// CreateOrLoadAccount 创建或加载 ACME 账户
// accountKeyPem 为空时生成新的 ECDSA P-256 账户私钥
func (s *AcmeService) CreateOrLoadAccount(email, accountKeyPem string) (*AcmeUser, error) {
	var privateKey crypto.PrivateKey
	var err error

	if accountKeyPem != "" {
		privateKey, err = s.decodePrivateKey(accountKeyPem)
		if err != nil {
			return nil, NewIssuerError("解码 ACME 账户私钥失败", err)
		}
	} else {
		privateKey, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, NewIssuerError("生成 ACME 账户私钥失败", err)
		}
	}

	return &AcmeUser{
		Email: email,
		key:   privateKey,
	}, nil
}

// NewClient 创建 lego 客户端并安装 DNS-01 验证 Provider
// provider 由编排器注入（带状态上报的驱动器），env 选择签发环境
func (s *AcmeService) NewClient(user *AcmeUser, env model.AcmeEnvironment, provider challenge.Provider) (*lego.Client, error) {
	config := lego.NewConfig(user)
	if env == model.AcmeEnvStaging {
		config.CADirURL = StagingACMEServer
	} else {
		config.CADirURL = ProductionACMEServer
	}

	client, err := lego.NewClient(config)
	if err != nil {
		return nil, NewIssuerError("创建 ACME 客户端失败", err)
	}

	err = client.Challenge.SetDNS01Provider(provider,
		dns01.AddDNSTimeout(s.dnsTimeout),
		dns01.AddRecursiveNameservers(s.nameservers),
	)
	if err != nil {
		return nil, NewIssuerError("设置 DNS-01 Provider 失败", err)
	}

	return client, nil
}

// EnsureRegistration 注册 ACME 账户（已注册则直接返回）
func (s *AcmeService) EnsureRegistration(client *lego.Client, user *AcmeUser) error {
	if user.Registration != nil {
		return nil
	}

	reg, err := client.Registration.Register(registration.RegisterOptions{TermsOfServiceAgreed: true})
	if err != nil {
		// 同一私钥重复注册时复用既有账户
		existing, resolveErr := client.Registration.ResolveAccountByKey()
		if resolveErr == nil {
			user.Registration = existing
			return nil
		}
		return s.normalizeIssuerError("注册 ACME 账户失败", err)
	}

	user.Registration = reg
	s.log.WithField("account_url", reg.URI).Info("ACME 账户注册成功")
	return nil
}

// ObtainCertificate 申请证书（本地生成私钥的目标类型）
func (s *AcmeService) ObtainCertificate(client *lego.Client, domains []string, privateKey crypto.PrivateKey) (*certificate.Resource, error) {
	request := certificate.ObtainRequest{
		Domains:    domains,
		Bundle:     true,
		PrivateKey: privateKey,
	}

	certificates, err := client.Certificate.Obtain(request)
	if err != nil {
		return nil, s.normalizeIssuerError("申请证书失败", err)
	}

	s.log.WithField("cert_url", certificates.CertURL).Info("证书申请成功")
	return certificates, nil
}

// ObtainForCSR 使用目标设备生成的 CSR 申请证书
func (s *AcmeService) ObtainForCSR(client *lego.Client, csr *x509.CertificateRequest) (*certificate.Resource, error) {
	request := certificate.ObtainForCSRRequest{
		CSR:    csr,
		Bundle: true,
	}

	certificates, err := client.Certificate.ObtainForCSR(request)
	if err != nil {
		return nil, s.normalizeIssuerError("使用 CSR 申请证书失败", err)
	}

	s.log.WithField("cert_url", certificates.CertURL).Info("证书申请成功")
	return certificates, nil
}

// GenerateCertificateKey 为证书生成 ECDSA P-256 私钥
func (s *AcmeService) GenerateCertificateKey() (crypto.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, s.err.New("生成证书私钥失败", err)
	}
	return key, nil
}

// ParseCSR 解析 PEM 格式的 CSR
func (s *AcmeService) ParseCSR(csrPem string) (*x509.CertificateRequest, error) {
	block, _ := pem.Decode([]byte(csrPem))
	if block == nil {
		return nil, NewValidationError("无法解析 PEM 格式 CSR")
	}
	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("解析 CSR 失败: %v", err))
	}
	return csr, nil
}

// BuildBundle 将 lego 下载结果拆分为完整证书材料
// fullchain 第一个块为叶子证书，其余为 CA 链；
// 链中自签名的末级证书视为根证书，其余视为中间证书
func (s *AcmeService) BuildBundle(res *certificate.Resource) (*model.CertificateBundle, error) {
	blocks := decodePemBlocks(res.Certificate)
	if len(blocks) == 0 {
		return nil, NewIssuerError("签发结果中没有证书", nil)
	}

	leaf, err := x509.ParseCertificate(blocks[0].Bytes)
	if err != nil {
		return nil, NewIssuerError("解析叶子证书失败", err)
	}

	bundle := &model.CertificateBundle{
		CertificatePem: encodePemBlock(blocks[0]),
		PrivateKeyPem:  string(res.PrivateKey),
		FullchainPem:   string(res.Certificate),
		Serial:         hex.EncodeToString(leaf.SerialNumber.Bytes()),
		IssuedAt:       leaf.NotBefore,
		ExpiresAt:      leaf.NotAfter,
	}

	chainBlocks := blocks[1:]
	if len(chainBlocks) == 0 && len(res.IssuerCertificate) > 0 {
		chainBlocks = decodePemBlocks(res.IssuerCertificate)
	}

	var chain strings.Builder
	for _, block := range chainBlocks {
		pemText := encodePemBlock(block)
		chain.WriteString(pemText)

		cert, parseErr := x509.ParseCertificate(block.Bytes)
		if parseErr != nil {
			continue
		}
		if cert.Subject.String() == cert.Issuer.String() {
			bundle.RootPem = pemText
		} else if bundle.IntermediatePem == "" {
			bundle.IntermediatePem = pemText
		}
	}
	bundle.ChainPem = chain.String()

	return bundle, nil
}

// EncodeAccountKey 序列化账户私钥为 PEM
func (s *AcmeService) EncodeAccountKey(user *AcmeUser) (string, error) {
	switch k := user.key.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			return "", s.err.New("序列化账户私钥失败", err)
		}
		pemBlock := &pem.Block{
			Type:  "EC PRIVATE KEY",
			Bytes: keyBytes,
		}
		return string(pem.EncodeToMemory(pemBlock)), nil
	default:
		return "", s.err.New("不支持的账户私钥类型", nil)
	}
}

// EncodePrivateKey 序列化证书私钥为 PEM
func (s *AcmeService) EncodePrivateKey(key crypto.PrivateKey) (string, error) {
	switch k := key.(type) {
	case *ecdsa.PrivateKey:
		keyBytes, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			return "", s.err.New("序列化私钥失败", err)
		}
		return string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})), nil
	default:
		return "", s.err.New("不支持的私钥类型", nil)
	}
}

// decodePrivateKey 解码 PEM 格式私钥
func (s *AcmeService) decodePrivateKey(pemStr string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemStr))
	if block == nil {
		return nil, fmt.Errorf("无法解析 PEM 格式私钥")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("不支持的私钥类型: %s", block.Type)
	}
}

// normalizeIssuerError 将 lego/ACME 错误归一化为引擎错误分类
// 驱动器自身产生的错误（取消、传播超时、DNS 服务商失败）原样透传
func (s *AcmeService) normalizeIssuerError(message string, err error) error {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr
	}

	var problem *acme.ProblemDetails
	if errors.As(err, &problem) {
		return NewIssuerError(fmt.Sprintf("%s: %s", message, problem.Detail), err)
	}

	text := err.Error()
	if strings.Contains(text, "rateLimited") || strings.Contains(text, "too many") {
		return NewIssuerError(fmt.Sprintf("%s（签发方限流，请稍后重试）", message), err)
	}
	if strings.Contains(text, "badCSR") {
		return NewIssuerError(fmt.Sprintf("%s（CSR 被签发方拒绝）", message), err)
	}

	return NewIssuerError(message, err)
}

// decodePemBlocks 解码 PEM 数据中的全部块
func decodePemBlocks(data []byte) []*pem.Block {
	var blocks []*pem.Block
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		blocks = append(blocks, block)
	}
	return blocks
}

// encodePemBlock 编码单个 PEM 块
func encodePemBlock(block *pem.Block) string {
	return string(pem.EncodeToMemory(block))
}
