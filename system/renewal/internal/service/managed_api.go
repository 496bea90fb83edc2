package service

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// apiRequest 管理 API 请求
type apiRequest struct {
	Method   string
	URL      string
	Username string
	Password string
	Body     []byte
}

// apiResponse 管理 API 响应
type apiResponse struct {
	StatusCode int
	Body       []byte
}

// APICaller 管理 API 调用接口
// 语音平台与身份引擎适配器共用，测试时可替换为内存实现
type APICaller interface {
	Do(ctx context.Context, req *apiRequest) (*apiResponse, error)
}

// fasthttpCaller 基于 fasthttp 的管理 API 客户端
// 目标设备普遍使用自签名管理证书，跳过证书校验
type fasthttpCaller struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func newFasthttpCaller(timeout time.Duration) *fasthttpCaller {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &fasthttpCaller{
		client: &fasthttp.Client{
			TLSConfig:    &tls.Config{InsecureSkipVerify: true},
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		timeout: timeout,
	}
}

func (c *fasthttpCaller) Do(ctx context.Context, req *apiRequest) (*apiResponse, error) {
	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	httpReq.Header.SetMethod(req.Method)
	httpReq.SetRequestURI(req.URL)
	httpReq.Header.SetContentType("application/json")
	if req.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(req.Username + ":" + req.Password))
		httpReq.Header.Set("Authorization", "Basic "+auth)
	}
	if len(req.Body) > 0 {
		httpReq.SetBody(req.Body)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if err := c.client.DoTimeout(httpReq, httpResp, timeout); err != nil {
		return nil, fmt.Errorf("请求 %s 失败: %w", req.URL, err)
	}

	body := make([]byte, len(httpResp.Body()))
	copy(body, httpResp.Body())

	return &apiResponse{
		StatusCode: httpResp.StatusCode(),
		Body:       body,
	}, nil
}
