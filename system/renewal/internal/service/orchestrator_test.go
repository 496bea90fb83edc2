package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	"xiaozhengshu/system/renewal/internal/model"
)

// fakeDNSProvider 内存版 DNS 验证策略
// propagateAfter 为负表示永不传播，否则在第 N+1 次检查时观测到记录
type fakeDNSProvider struct {
	mu             sync.Mutex
	automated      bool
	presentErrs    []error
	presentCalls   int
	cleanupCalls   int
	checkCalls     int
	propagateAfter int
}

func (p *fakeDNSProvider) Name() model.DnsProvider {
	if p.automated {
		return model.DnsProviderCloudflare
	}
	return model.DnsProviderCustom
}

func (p *fakeDNSProvider) Automated() bool { return p.automated }

func (p *fakeDNSProvider) Present(domain, token, keyAuth string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presentCalls++
	if len(p.presentErrs) > 0 {
		err := p.presentErrs[0]
		p.presentErrs = p.presentErrs[1:]
		return err
	}
	return nil
}

func (p *fakeDNSProvider) CleanUp(domain, token, keyAuth string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanupCalls++
	return nil
}

func (p *fakeDNSProvider) CheckPropagated(ctx context.Context, fqdn, value string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkCalls++
	if p.propagateAfter < 0 {
		return false, nil
	}
	return p.checkCalls > p.propagateAfter, nil
}

func (p *fakeDNSProvider) setPropagated() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.propagateAfter = 0
	p.checkCalls = 1
}

func (p *fakeDNSProvider) cleanups() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cleanupCalls
}

// newTestOrchestrator 只装配状态机依赖，签发、部署和落库不参与这些用例
func newTestOrchestrator(config RenewalConfig) *RenewalOrchestrator {
	log := testLog()
	return NewRenewalOrchestrator(
		log,
		NewOperationRegistry(log, time.Minute),
		NewProgressBroadcaster(log),
		nil, nil, nil, nil, nil, nil, nil,
		config,
	)
}

func fastRenewalConfig() RenewalConfig {
	return RenewalConfig{
		PropagationInterval: time.Millisecond,
		PropagationAttempts: 3,
		ManualPollInterval:  time.Millisecond,
		DNSRetries:          3,
		DNSRetryBackoff:     time.Millisecond,
		Retention:           time.Minute,
	}
}

func newTestDriver(t *testing.T, o *RenewalOrchestrator, provider *fakeDNSProvider, demoteToManual int) *challengeDriver {
	t.Helper()
	op, err := o.registry.Begin(1, model.CreatedByUser)
	if err != nil {
		t.Fatalf("登记操作失败: %v", err)
	}
	conn := &model.Connection{
		Hostname:       "example.com",
		Domain:         "example.com",
		DemoteToManual: demoteToManual,
	}
	conn.ID = 1
	return &challengeDriver{
		orchestrator: o,
		conn:         conn,
		operationID:  op.ID,
		provider:     provider,
		ctx:          context.Background(),
		log:          testLog(),
	}
}

func TestTransitionMonotonicProgress(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	op, _ := o.registry.Begin(1, model.CreatedByUser)

	if err := o.transition(op.ID, model.StatusWaitingDNSPropagation, "等待传播"); err != nil {
		t.Fatalf("推进状态失败: %v", err)
	}
	// 手动模式降级回自动等传播序号更小的状态时，进度保持不回退
	if err := o.transition(op.ID, model.StatusCreatingDNSChallenge, "重建记录"); err != nil {
		t.Fatalf("推进状态失败: %v", err)
	}

	got, _ := o.registry.Get(op.ID)
	if got.Status != model.StatusCreatingDNSChallenge {
		t.Errorf("状态 = %s", got.Status)
	}
	if got.Progress != model.StatusWaitingDNSPropagation.Progress() {
		t.Errorf("进度 = %d, 不应回退", got.Progress)
	}
	if len(got.Logs) < 3 {
		t.Errorf("每次状态推进都应追加日志, 实际 %d 行", len(got.Logs))
	}
}

func TestTransitionCancelAtBoundary(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	op, _ := o.registry.Begin(1, model.CreatedByUser)

	if err := o.registry.Cancel(op.ID); err != nil {
		t.Fatalf("取消失败: %v", err)
	}

	err := o.transition(op.ID, model.StatusCreatingAccount, "注册账户")
	if err == nil {
		t.Fatal("取消后状态推进应失败")
	}
	if !IsCancelled(err) {
		t.Errorf("错误类别 = %q, 期望 cancelled", KindOf(err))
	}
}

func TestTransitionClearsManualEntry(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	op, _ := o.registry.Begin(1, model.CreatedByUser)

	o.registry.Update(op.ID, func(op *model.RenewalOperation) {
		op.Status = model.StatusWaitingManualDNS
		op.ManualDNSEntry = &model.ManualDNSEntry{RecordName: "_acme-challenge.example.com"}
	})

	if err := o.transition(op.ID, model.StatusCompletingValidation, "记录已生效"); err != nil {
		t.Fatalf("推进状态失败: %v", err)
	}

	got, _ := o.registry.Get(op.ID)
	if got.ManualDNSEntry != nil {
		t.Error("离开手动等待状态后应清除记录详情")
	}
}

func TestPresentWithRetry(t *testing.T) {
	tests := []struct {
		name        string
		presentErrs []error
		wantErr     bool
		wantCalls   int
	}{
		{
			name:        "瞬时故障后成功",
			presentErrs: []error{errors.New("throttled")},
			wantCalls:   2,
		},
		{
			name:        "重试耗尽后失败",
			presentErrs: []error{errors.New("e1"), errors.New("e2"), errors.New("e3")},
			wantErr:     true,
			wantCalls:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(fastRenewalConfig())
			provider := &fakeDNSProvider{automated: true, presentErrs: tt.presentErrs}
			driver := newTestDriver(t, o, provider, 0)

			err := driver.presentWithRetry("example.com", "token", "keyAuth")
			if tt.wantErr {
				if err == nil {
					t.Fatal("期望失败")
				}
				if kind := KindOf(err); kind != ErrKindDNSProvider {
					t.Errorf("错误类别 = %q, 期望 dns_provider", kind)
				}
			} else if err != nil {
				t.Fatalf("期望成功: %v", err)
			}
			if provider.presentCalls != tt.wantCalls {
				t.Errorf("Present 调用次数 = %d, 期望 %d", provider.presentCalls, tt.wantCalls)
			}
		})
	}
}

func TestWaitPropagationTimeout(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	provider := &fakeDNSProvider{automated: true, propagateAfter: -1}
	driver := newTestDriver(t, o, provider, 0)

	err := driver.waitPropagation("_acme-challenge.example.com.", "value", "example.com")
	if err == nil {
		t.Fatal("记录永不传播时应超时")
	}
	if kind := KindOf(err); kind != ErrKindPropagationTimeout {
		t.Errorf("错误类别 = %q, 期望 propagation_timeout", kind)
	}
}

func TestWaitPropagationSuccess(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	provider := &fakeDNSProvider{automated: true, propagateAfter: 1}
	driver := newTestDriver(t, o, provider, 0)

	if err := driver.waitPropagation("_acme-challenge.example.com.", "value", "example.com"); err != nil {
		t.Fatalf("传播等待失败: %v", err)
	}

	got, _ := o.registry.Get(driver.operationID)
	if got.Status != model.StatusWaitingDNSPropagation {
		t.Errorf("状态 = %s, 期望 waiting_dns_propagation", got.Status)
	}
}

func TestWaitPropagationDemoteToManual(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	// 自动轮询窗口内不传播，降级到手动模式后第 5 次检查观测到
	provider := &fakeDNSProvider{automated: true, propagateAfter: 5}
	driver := newTestDriver(t, o, provider, 1)

	config := o.Config()
	if config.PropagationAttempts >= provider.propagateAfter {
		t.Fatal("用例前提: 自动轮询窗口必须小于传播时间")
	}

	if err := driver.waitPropagation("_acme-challenge.example.com.", "value", "example.com"); err != nil {
		t.Fatalf("降级后应继续等待直至成功: %v", err)
	}

	got, _ := o.registry.Get(driver.operationID)
	if got.Status != model.StatusWaitingManualDNS {
		t.Errorf("状态 = %s, 期望 waiting_manual_dns", got.Status)
	}
	if got.ManualDNSEntry == nil {
		t.Fatal("手动等待时应给出记录详情")
	}
	if got.ManualDNSEntry.RecordName != "_acme-challenge.example.com" {
		t.Errorf("记录名 = %q", got.ManualDNSEntry.RecordName)
	}
}

func TestWaitManualPublishesEntry(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	provider := &fakeDNSProvider{automated: false, propagateAfter: -1}
	driver := newTestDriver(t, o, provider, 0)

	done := make(chan error, 1)
	go func() {
		done <- driver.waitManual("_acme-challenge.example.com.", "record-value", "example.com")
	}()

	// 等待进入手动等待状态并展示记录详情
	deadline := time.After(2 * time.Second)
	for {
		got, err := o.registry.Get(driver.operationID)
		if err == nil && got.Status == model.StatusWaitingManualDNS && got.ManualDNSEntry != nil {
			if got.ManualDNSEntry.RecordValue != "record-value" {
				t.Errorf("记录值 = %q", got.ManualDNSEntry.RecordValue)
			}
			if got.ManualDNSEntry.Instructions == "" {
				t.Error("应生成操作说明")
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("未进入手动等待状态")
		case <-time.After(time.Millisecond):
		}
	}

	// 操作员添加记录后轮询应立即返回
	provider.setPropagated()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("手动等待应成功返回: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("观测到记录后等待循环未退出")
	}
}

func TestWaitManualCancel(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	provider := &fakeDNSProvider{automated: false, propagateAfter: -1}
	driver := newTestDriver(t, o, provider, 0)

	done := make(chan error, 1)
	go func() {
		done <- driver.waitManual("_acme-challenge.example.com.", "value", "example.com")
	}()

	time.Sleep(10 * time.Millisecond)
	if err := o.registry.Cancel(driver.operationID); err != nil {
		t.Fatalf("取消失败: %v", err)
	}

	select {
	case err := <-done:
		if !IsCancelled(err) {
			t.Errorf("错误类别 = %q, 期望 cancelled", KindOf(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("取消后等待循环未及时退出")
	}
}

func TestWaitManualStopsOnContextDone(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	provider := &fakeDNSProvider{automated: false, propagateAfter: -1}
	driver := newTestDriver(t, o, provider, 0)

	ctx, cancel := context.WithCancel(context.Background())
	driver.ctx = ctx

	done := make(chan error, 1)
	go func() {
		done <- driver.waitManual("_acme-challenge.example.com.", "value", "example.com")
	}()

	// 记录永不传播，手动等待本身没有次数上限，
	// 运行上下文结束必须能让等待循环退出
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !IsCancelled(err) {
			t.Errorf("错误类别 = %q, 期望 cancelled", KindOf(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("上下文结束后手动等待循环未退出")
	}
}

func TestWaitPropagationStopsOnContextDone(t *testing.T) {
	o := newTestOrchestrator(RenewalConfig{
		PropagationInterval: time.Hour,
		PropagationAttempts: 3,
		ManualPollInterval:  time.Hour,
		DNSRetries:          3,
		DNSRetryBackoff:     time.Millisecond,
		Retention:           time.Minute,
	})
	provider := &fakeDNSProvider{automated: true, propagateAfter: -1}
	driver := newTestDriver(t, o, provider, 0)

	ctx, cancel := context.WithCancel(context.Background())
	driver.ctx = ctx

	done := make(chan error, 1)
	go func() {
		done <- driver.waitPropagation("_acme-challenge.example.com.", "value", "example.com")
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !IsCancelled(err) {
			t.Errorf("错误类别 = %q, 期望 cancelled", KindOf(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("上下文结束后传播等待循环未退出")
	}
}

func TestCleanupIdempotent(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	provider := &fakeDNSProvider{automated: true}
	driver := newTestDriver(t, o, provider, 0)

	driver.created = true
	driver.lastDomain, driver.lastToken, driver.lastKeyAuth = "example.com", "token", "keyAuth"

	driver.cleanup("example.com", "token", "keyAuth")
	// lego 回调与兜底清理并存时也只执行一次
	driver.ensureCleanup()

	if got := provider.cleanups(); got != 1 {
		t.Errorf("CleanUp 调用次数 = %d, 期望 1", got)
	}
}

func TestCleanupSkipped(t *testing.T) {
	tests := []struct {
		name      string
		automated bool
		created   bool
	}{
		{
			name:      "记录未创建时不清理",
			automated: true,
			created:   false,
		},
		{
			name:      "手动模式的记录由操作员维护",
			automated: false,
			created:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(fastRenewalConfig())
			provider := &fakeDNSProvider{automated: tt.automated}
			driver := newTestDriver(t, o, provider, 0)
			driver.created = tt.created
			driver.lastDomain = "example.com"

			driver.ensureCleanup()
			if got := provider.cleanups(); got != 0 {
				t.Errorf("CleanUp 调用次数 = %d, 期望 0", got)
			}
		})
	}
}

func TestDriverTakeFailure(t *testing.T) {
	o := newTestOrchestrator(fastRenewalConfig())
	driver := newTestDriver(t, o, &fakeDNSProvider{automated: true}, 0)

	first := NewPropagationTimeoutError("首个失败")
	second := NewDNSProviderError("次个失败", nil)

	driver.fail(first)
	driver.fail(second)

	// 编排器采信的是驱动器内部的首个失败
	if got := driver.takeFailure(); got != first {
		t.Errorf("takeFailure = %v, 期望首个失败", got)
	}
}
