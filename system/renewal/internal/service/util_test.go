package service

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"reflect"
	"testing"
)

func TestSplitAltNames(t *testing.T) {
	tests := []struct {
		name     string
		altNames string
		expected []string
	}{
		{
			name:     "空字符串",
			altNames: "",
			expected: nil,
		},
		{
			name:     "单个域名",
			altNames: "www.example.com",
			expected: []string{"www.example.com"},
		},
		{
			name:     "多个域名带空格",
			altNames: " www.example.com , api.example.com ",
			expected: []string{"www.example.com", "api.example.com"},
		},
		{
			name:     "连续逗号产生的空段被跳过",
			altNames: "a.example.com,,b.example.com,",
			expected: []string{"a.example.com", "b.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitAltNames(tt.altNames)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("splitAltNames(%q) = %v, 期望 %v", tt.altNames, result, tt.expected)
			}
		})
	}
}

func TestCollectDomains(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		altNames string
		expected []string
	}{
		{
			name:     "只有主域名",
			domain:   "example.com",
			altNames: "",
			expected: []string{"example.com"},
		},
		{
			name:     "主域名在前",
			domain:   "example.com",
			altNames: "www.example.com,api.example.com",
			expected: []string{"example.com", "www.example.com", "api.example.com"},
		},
		{
			name:     "备用域名与主域名重复时去重",
			domain:   "example.com",
			altNames: "example.com,www.example.com,www.example.com",
			expected: []string{"example.com", "www.example.com"},
		},
		{
			name:     "主域名为空时只保留备用域名",
			domain:   "",
			altNames: "www.example.com",
			expected: []string{"www.example.com"},
		},
		{
			name:     "全部为空",
			domain:   "",
			altNames: "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := collectDomains(tt.domain, tt.altNames)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("collectDomains(%q, %q) = %v, 期望 %v", tt.domain, tt.altNames, result, tt.expected)
			}
		})
	}
}

func TestDomainMatchesCert(t *testing.T) {
	tests := []struct {
		name     string
		domain   string
		cn       string
		dnsNames []string
		expected bool
	}{
		{
			name:     "精确匹配 - CommonName",
			domain:   "example.com",
			cn:       "example.com",
			expected: true,
		},
		{
			name:     "精确匹配 - SAN",
			domain:   "api.example.com",
			cn:       "example.com",
			dnsNames: []string{"example.com", "api.example.com"},
			expected: true,
		},
		{
			name:     "通配符匹配 - 一级子域",
			domain:   "www.example.com",
			cn:       "*.example.com",
			expected: true,
		},
		{
			name:     "通配符不匹配 - 二级子域",
			domain:   "a.b.example.com",
			cn:       "*.example.com",
			expected: false,
		},
		{
			name:     "通配符不匹配 - 裸域",
			domain:   "example.com",
			cn:       "*.example.com",
			expected: false,
		},
		{
			name:     "完全不匹配",
			domain:   "other.com",
			cn:       "example.com",
			dnsNames: []string{"www.example.com"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{
				Subject:  pkix.Name{CommonName: tt.cn},
				DNSNames: tt.dnsNames,
			}
			if result := domainMatchesCert(tt.domain, cert); result != tt.expected {
				t.Errorf("domainMatchesCert(%q) = %v, 期望 %v", tt.domain, result, tt.expected)
			}
		})
	}
}
