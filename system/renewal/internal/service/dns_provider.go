package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/system/renewal/internal/model"

	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/providers/dns/azuredns"
	"github.com/go-acme/lego/v4/providers/dns/cloudflare"
	"github.com/go-acme/lego/v4/providers/dns/digitalocean"
	"github.com/go-acme/lego/v4/providers/dns/gcloud"
	"github.com/go-acme/lego/v4/providers/dns/route53"
)

// DNSChallengeProvider DNS 验证记录策略接口
// 自动服务商委托 lego 的 provider 实现增删记录；
// custom 服务商从不操作记录，Present/CleanUp 均为空操作
type DNSChallengeProvider interface {
	Name() model.DnsProvider
	// Automated 是否支持自动添加验证记录
	Automated() bool
	// Present 添加验证 TXT 记录
	Present(domain, token, keyAuth string) error
	// CleanUp 删除验证 TXT 记录
	CleanUp(domain, token, keyAuth string) error
	// CheckPropagated 检查记录是否已可通过公共递归 DNS 解析
	CheckPropagated(ctx context.Context, fqdn, value string) (bool, error)
}

// DnsProviderCredential 解密后的 DNS 服务商凭证
type DnsProviderCredential struct {
	AccessKey string
	SecretKey string
	Extra     map[string]interface{}
}

// ExtraString 读取额外配置中的字符串字段
func (c *DnsProviderCredential) ExtraString(key string) string {
	if c == nil || c.Extra == nil {
		return ""
	}
	if v, ok := c.Extra[key].(string); ok {
		return v
	}
	return ""
}

// legoDNSProvider 自动服务商包装，嵌入 lego 的 challenge.Provider
type legoDNSProvider struct {
	challenge.Provider
	name    model.DnsProvider
	checker *propagationChecker
}

func (p *legoDNSProvider) Name() model.DnsProvider { return p.name }

func (p *legoDNSProvider) Automated() bool { return true }

func (p *legoDNSProvider) CheckPropagated(ctx context.Context, fqdn, value string) (bool, error) {
	return p.checker.Check(ctx, fqdn, value)
}

// ManualDNSProvider 手动模式服务商
// 记录生命周期由操作员负责，Present/CleanUp 均不做任何事；
// CheckPropagated 仍执行真实 TXT 查询，供手动模式轮询使用
type ManualDNSProvider struct {
	checker *propagationChecker
}

func (p *ManualDNSProvider) Name() model.DnsProvider { return model.DnsProviderCustom }

func (p *ManualDNSProvider) Automated() bool { return false }

func (p *ManualDNSProvider) Present(domain, token, keyAuth string) error { return nil }

func (p *ManualDNSProvider) CleanUp(domain, token, keyAuth string) error { return nil }

func (p *ManualDNSProvider) CheckPropagated(ctx context.Context, fqdn, value string) (bool, error) {
	return p.checker.Check(ctx, fqdn, value)
}

// Instructions 生成操作员添加记录的说明
func (p *ManualDNSProvider) Instructions(fqdn, value string) string {
	name := strings.TrimSuffix(fqdn, ".")
	return fmt.Sprintf("请在域名 DNS 控制台添加 TXT 记录：名称 %s，值 %s。记录生效后系统会自动检测并继续验证，无需其他操作。", name, value)
}

// DNSProviderFactory DNS 服务商工厂
// 根据连接配置的 dns_provider 选择策略实现
type DNSProviderFactory struct {
	log     *logger.Log
	err     *errorc.ErrorBuilder
	checker *propagationChecker
}

// NewDNSProviderFactory 创建 DNS 服务商工厂
func NewDNSProviderFactory(log *logger.Log, nameservers []string) *DNSProviderFactory {
	return &DNSProviderFactory{
		log:     log.WithEntryName("DNSProviderFactory"),
		err:     errorc.NewErrorBuilder("DNSProviderFactory"),
		checker: newPropagationChecker(nameservers),
	}
}

// Create 创建指定服务商的策略实现
// 自动服务商会校验凭证字段的完备性，缺失视为配置错误
func (f *DNSProviderFactory) Create(provider model.DnsProvider, cred *DnsProviderCredential) (DNSChallengeProvider, error) {
	if provider == model.DnsProviderCustom {
		return &ManualDNSProvider{checker: f.checker}, nil
	}

	if cred == nil {
		return nil, NewValidationError(fmt.Sprintf("DNS 服务商 %s 需要配置凭证", provider))
	}

	switch provider {
	case model.DnsProviderCloudflare:
		config := cloudflare.NewDefaultConfig()
		if cred.SecretKey == "" {
			// 仅提供一个密钥时按 API Token 处理
			if cred.AccessKey == "" {
				return nil, NewValidationError("Cloudflare 需要 API Token 或 邮箱+Global API Key")
			}
			config.AuthToken = cred.AccessKey
		} else {
			config.AuthEmail = cred.AccessKey
			config.AuthKey = cred.SecretKey
		}
		p, err := cloudflare.NewDNSProviderConfig(config)
		if err != nil {
			return nil, NewDNSProviderError("创建 Cloudflare Provider 失败", err)
		}
		return &legoDNSProvider{Provider: p, name: provider, checker: f.checker}, nil

	case model.DnsProviderRoute53:
		if cred.AccessKey == "" || cred.SecretKey == "" {
			return nil, NewValidationError("Route53 需要 AccessKeyID 和 SecretAccessKey")
		}
		config := route53.NewDefaultConfig()
		config.AccessKeyID = cred.AccessKey
		config.SecretAccessKey = cred.SecretKey
		if region := cred.ExtraString("region"); region != "" {
			config.Region = region
		}
		p, err := route53.NewDNSProviderConfig(config)
		if err != nil {
			return nil, NewDNSProviderError("创建 Route53 Provider 失败", err)
		}
		return &legoDNSProvider{Provider: p, name: provider, checker: f.checker}, nil

	case model.DnsProviderAzureDNS:
		tenantID := cred.ExtraString("tenantId")
		subscriptionID := cred.ExtraString("subscriptionId")
		resourceGroup := cred.ExtraString("resourceGroup")
		if cred.AccessKey == "" || cred.SecretKey == "" || tenantID == "" || subscriptionID == "" || resourceGroup == "" {
			return nil, NewValidationError("Azure DNS 需要 ClientID、ClientSecret、tenantId、subscriptionId 和 resourceGroup")
		}
		config := azuredns.NewDefaultConfig()
		config.ClientID = cred.AccessKey
		config.ClientSecret = cred.SecretKey
		config.TenantID = tenantID
		config.SubscriptionID = subscriptionID
		config.ResourceGroup = resourceGroup
		p, err := azuredns.NewDNSProviderConfig(config)
		if err != nil {
			return nil, NewDNSProviderError("创建 Azure DNS Provider 失败", err)
		}
		return &legoDNSProvider{Provider: p, name: provider, checker: f.checker}, nil

	case model.DnsProviderGCloud:
		// SecretKey 存放服务账号 JSON
		if cred.SecretKey == "" {
			return nil, NewValidationError("Google Cloud DNS 需要服务账号 JSON 凭证")
		}
		p, err := gcloud.NewDNSProviderServiceAccountKey([]byte(cred.SecretKey))
		if err != nil {
			return nil, NewDNSProviderError("创建 Google Cloud DNS Provider 失败", err)
		}
		return &legoDNSProvider{Provider: p, name: provider, checker: f.checker}, nil

	case model.DnsProviderDigitalOcean:
		if cred.AccessKey == "" {
			return nil, NewValidationError("DigitalOcean 需要 API Token")
		}
		config := digitalocean.NewDefaultConfig()
		config.AuthToken = cred.AccessKey
		p, err := digitalocean.NewDNSProviderConfig(config)
		if err != nil {
			return nil, NewDNSProviderError("创建 DigitalOcean Provider 失败", err)
		}
		return &legoDNSProvider{Provider: p, name: provider, checker: f.checker}, nil

	default:
		return nil, NewValidationError(fmt.Sprintf("不支持的 DNS 服务商: %s", provider))
	}
}

// propagationChecker 通过公共递归 DNS 检查 TXT 记录是否可见
type propagationChecker struct {
	nameservers []string
	timeout     time.Duration
}

func newPropagationChecker(nameservers []string) *propagationChecker {
	if len(nameservers) == 0 {
		nameservers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	return &propagationChecker{
		nameservers: nameservers,
		timeout:     10 * time.Second,
	}
}

// Check 查询 TXT 记录，任一递归 DNS 上观测到目标值即视为已传播
func (c *propagationChecker) Check(ctx context.Context, fqdn, value string) (bool, error) {
	name := strings.TrimSuffix(fqdn, ".")

	var lastErr error
	for _, ns := range c.nameservers {
		nameserver := ns
		resolver := &net.Resolver{
			PreferGo: true,
			Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
				d := net.Dialer{Timeout: c.timeout}
				return d.DialContext(ctx, network, nameserver)
			},
		}

		queryCtx, cancel := context.WithTimeout(ctx, c.timeout)
		records, err := resolver.LookupTXT(queryCtx, name)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		for _, record := range records {
			if record == value {
				return true, nil
			}
		}
		return false, nil
	}

	if lastErr != nil {
		var dnsErr *net.DNSError
		// NXDOMAIN 说明记录还没生效，不算查询失败
		if errors.As(lastErr, &dnsErr) && dnsErr.IsNotFound {
			return false, nil
		}
		return false, lastErr
	}
	return false, nil
}
