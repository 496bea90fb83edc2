package service

import (
	"crypto/x509"
	"strings"
)

// splitAltNames 拆分逗号分隔的备用域名列表
func splitAltNames(altNames string) []string {
	var names []string
	for _, part := range strings.Split(altNames, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// collectDomains 汇总连接涉及的全部域名（主域名在前，去重）
func collectDomains(domain, altNames string) []string {
	seen := make(map[string]bool)
	var domains []string
	for _, name := range append([]string{strings.TrimSpace(domain)}, splitAltNames(altNames)...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		domains = append(domains, name)
	}
	return domains
}

// domainMatchesCert 检查域名是否被证书覆盖（含通配符匹配）
func domainMatchesCert(domain string, cert *x509.Certificate) bool {
	candidates := append([]string{cert.Subject.CommonName}, cert.DNSNames...)
	for _, name := range candidates {
		if name == domain {
			return true
		}
		// 通配符只覆盖一级子域
		if strings.HasPrefix(name, "*.") {
			suffix := name[1:]
			if strings.HasSuffix(domain, suffix) {
				prefix := strings.TrimSuffix(domain, suffix)
				if prefix != "" && !strings.Contains(prefix, ".") {
					return true
				}
			}
		}
	}
	return false
}
