package service

import (
	"crypto/tls"
	"net"
	"testing"
	"time"
)

// startTLSListener 启动一个只完成握手的本地 TLS 监听
func startTLSListener(t *testing.T, cert *testCert) (string, int) {
	t.Helper()

	config := &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{cert.cert.Raw},
			PrivateKey:  cert.key,
		}},
	}
	listener, err := tls.Listen("tcp", "127.0.0.1:0", config)
	if err != nil {
		t.Fatalf("启动测试 TLS 监听失败: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				if tlsConn, ok := c.(*tls.Conn); ok {
					_ = tlsConn.Handshake()
				}
				c.Close()
			}(conn)
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestProbeTLS(t *testing.T) {
	tests := []struct {
		name        string
		dnsNames    []string
		wantCovered bool
	}{
		{
			name:        "证书覆盖被探测主机",
			dnsNames:    []string{"device.example.com", "127.0.0.1"},
			wantCovered: true,
		},
		{
			name:        "证书与被探测主机不符",
			dnsNames:    []string{"other.example.com"},
			wantCovered: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := issueTestCert(t, "device.example.com", tt.dnsNames, false, nil)
			host, port := startTLSListener(t, cert)

			got, err := ProbeTLS(host, port, 5*time.Second)
			if err != nil {
				t.Fatalf("探测失败: %v", err)
			}
			if got.HostCovered != tt.wantCovered {
				t.Errorf("HostCovered = %v, 期望 %v", got.HostCovered, tt.wantCovered)
			}
			if got.Subject != "device.example.com" {
				t.Errorf("Subject = %q", got.Subject)
			}
			if !got.ExpiresAt.Equal(cert.cert.NotAfter) {
				t.Errorf("ExpiresAt = %v, 期望 %v", got.ExpiresAt, cert.cert.NotAfter)
			}
		})
	}
}

func TestProbeTLSUnreachable(t *testing.T) {
	// 端口 1 在测试环境不会有监听
	if _, err := ProbeTLS("127.0.0.1", 1, time.Second); err == nil {
		t.Fatal("无监听端口的探测应失败")
	}
}
