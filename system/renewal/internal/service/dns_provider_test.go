package service

import (
	"strings"
	"testing"
	"xiaozhengshu/system/renewal/internal/model"
)

func TestDNSProviderFactoryCreate(t *testing.T) {
	factory := NewDNSProviderFactory(testLog(), nil)

	tests := []struct {
		name      string
		provider  model.DnsProvider
		cred      *DnsProviderCredential
		wantErr   bool
		wantKind  ErrorKind
		automated bool
	}{
		{
			name:      "custom 无需凭证",
			provider:  model.DnsProviderCustom,
			cred:      nil,
			automated: false,
		},
		{
			name:     "自动服务商缺少凭证",
			provider: model.DnsProviderCloudflare,
			cred:     nil,
			wantErr:  true,
			wantKind: ErrKindValidation,
		},
		{
			name:     "Cloudflare 凭证字段全空",
			provider: model.DnsProviderCloudflare,
			cred:     &DnsProviderCredential{},
			wantErr:  true,
			wantKind: ErrKindValidation,
		},
		{
			name:      "Cloudflare API Token",
			provider:  model.DnsProviderCloudflare,
			cred:      &DnsProviderCredential{AccessKey: "cf-test-token"},
			automated: true,
		},
		{
			name:     "Route53 缺少 SecretAccessKey",
			provider: model.DnsProviderRoute53,
			cred:     &DnsProviderCredential{AccessKey: "AKIAEXAMPLE"},
			wantErr:  true,
			wantKind: ErrKindValidation,
		},
		{
			name:     "Azure DNS 缺少订阅信息",
			provider: model.DnsProviderAzureDNS,
			cred:     &DnsProviderCredential{AccessKey: "client-id", SecretKey: "client-secret"},
			wantErr:  true,
			wantKind: ErrKindValidation,
		},
		{
			name:     "Google Cloud 缺少服务账号 JSON",
			provider: model.DnsProviderGCloud,
			cred:     &DnsProviderCredential{AccessKey: "project"},
			wantErr:  true,
			wantKind: ErrKindValidation,
		},
		{
			name:     "DigitalOcean 缺少 Token",
			provider: model.DnsProviderDigitalOcean,
			cred:     &DnsProviderCredential{},
			wantErr:  true,
			wantKind: ErrKindValidation,
		},
		{
			name:      "DigitalOcean Token",
			provider:  model.DnsProviderDigitalOcean,
			cred:      &DnsProviderCredential{AccessKey: "do-test-token"},
			automated: true,
		},
		{
			name:     "未知服务商",
			provider: model.DnsProvider("unknown"),
			cred:     &DnsProviderCredential{AccessKey: "x"},
			wantErr:  true,
			wantKind: ErrKindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := factory.Create(tt.provider, tt.cred)
			if tt.wantErr {
				if err == nil {
					t.Fatal("期望报错")
				}
				if kind := KindOf(err); kind != tt.wantKind {
					t.Errorf("错误类别 = %q, 期望 %q", kind, tt.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("创建失败: %v", err)
			}
			if provider.Name() != tt.provider {
				t.Errorf("Name() = %s, 期望 %s", provider.Name(), tt.provider)
			}
			if provider.Automated() != tt.automated {
				t.Errorf("Automated() = %v, 期望 %v", provider.Automated(), tt.automated)
			}
		})
	}
}

func TestManualDNSProvider(t *testing.T) {
	provider := &ManualDNSProvider{checker: newPropagationChecker(nil)}

	// 记录由操作员维护，增删均为空操作
	if err := provider.Present("example.com", "token", "keyAuth"); err != nil {
		t.Errorf("Present 应为空操作: %v", err)
	}
	if err := provider.CleanUp("example.com", "token", "keyAuth"); err != nil {
		t.Errorf("CleanUp 应为空操作: %v", err)
	}

	instructions := provider.Instructions("_acme-challenge.example.com.", "record-value")
	if strings.Contains(instructions, "_acme-challenge.example.com.") {
		t.Error("说明中的记录名应去掉末尾的点")
	}
	if !strings.Contains(instructions, "_acme-challenge.example.com") {
		t.Error("说明应包含记录名")
	}
	if !strings.Contains(instructions, "record-value") {
		t.Error("说明应包含记录值")
	}
}

func TestDnsProviderCredentialExtraString(t *testing.T) {
	cred := &DnsProviderCredential{
		Extra: map[string]interface{}{
			"region": "us-east-1",
			"count":  3,
		},
	}

	if got := cred.ExtraString("region"); got != "us-east-1" {
		t.Errorf("ExtraString(region) = %q", got)
	}
	if got := cred.ExtraString("count"); got != "" {
		t.Errorf("非字符串字段应返回空, 实际 %q", got)
	}
	if got := cred.ExtraString("missing"); got != "" {
		t.Errorf("缺失字段应返回空, 实际 %q", got)
	}

	var nilCred *DnsProviderCredential
	if got := nilCred.ExtraString("region"); got != "" {
		t.Errorf("nil 凭证应返回空, 实际 %q", got)
	}
}
