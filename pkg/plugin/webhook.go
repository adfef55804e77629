package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"syscall"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/logger"
)

// ErrBlockedTarget Webhook目标地址被拒绝（回环、私有、链路本地、保留地址等）
var ErrBlockedTarget = errors.New("webhook目标地址不允许")

// 默认Webhook参数
const (
	DefaultWebhookTimeout    = 10 * time.Second
	DefaultWebhookMaxRetries = 3
)

// reservedPrefixes 除回环、私有、链路本地、组播外额外拒绝的保留网段
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

// WebhookPayload Webhook请求体（对外导出）
type WebhookPayload struct {
	Event         TriggerEvent `json:"event"`
	ExecutionID   string       `json:"execution_id"`
	WorkflowID    string       `json:"workflow_id"`
	WorkflowName  string       `json:"workflow_name,omitempty"`
	Status        string       `json:"status"`
	RowsProcessed int64        `json:"rows_processed"`
	RowsFailed    int64        `json:"rows_failed"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
}

// PayloadFrom 由插件数据构建请求体
func PayloadFrom(data PluginData) WebhookPayload {
	return WebhookPayload{
		Event:         data.Event,
		ExecutionID:   data.ExecutionID,
		WorkflowID:    data.WorkflowID,
		WorkflowName:  data.WorkflowName,
		Status:        data.Status,
		RowsProcessed: data.RowsProcessed,
		RowsFailed:    data.RowsFailed,
		ErrorMessage:  data.Error,
		StartedAt:     data.StartedAt,
		FinishedAt:    data.FinishedAt,
	}
}

// WebhookNotifier 工作流级Webhook通知（对外导出）
// 每次通知最多尝试MaxRetries次，第n次失败后等待2^(n-1)秒，状态码<400视为成功
type WebhookNotifier struct {
	client     *http.Client
	maxRetries int
	resolver   *net.Resolver
	sleep      func(ctx context.Context, d time.Duration) error
	// allowHost 测试中放行本地地址
	allowHost func(host string) bool
}

// NewWebhookNotifier 创建Webhook通知器，参数<=0时使用默认值
func NewWebhookNotifier(timeout time.Duration, maxRetries int) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	if maxRetries <= 0 {
		maxRetries = DefaultWebhookMaxRetries
	}
	w := &WebhookNotifier{
		maxRetries: maxRetries,
		resolver:   net.DefaultResolver,
		sleep:      sleepCtx,
	}

	// 拨号时按实际连接的地址再校验一次，不走代理
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = (&net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
		Control:   w.dialControl,
	}).DialContext

	w.client = &http.Client{
		Timeout:   timeout,
		Transport: transport,
		// 重定向可能绕过目标检查
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return w
}

// dialControl 校验即将连接的IP，address已是解析后的 ip:port
func (w *WebhookNotifier) dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockedTarget, err)
	}
	if w.allowHost != nil && w.allowHost(host) {
		return nil
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedTarget, address)
	}
	if blockedAddr(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedTarget, ip)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CheckTarget 校验目标URL：仅http/https，且解析出的地址均不属于被拒绝的网段
func (w *WebhookNotifier) CheckTarget(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: URL无效: %v", ErrBlockedTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: 不支持的协议 %q", ErrBlockedTarget, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: 缺少主机名", ErrBlockedTarget)
	}
	if w.allowHost != nil && w.allowHost(host) {
		return nil
	}
	if host == "localhost" {
		return fmt.Errorf("%w: %s", ErrBlockedTarget, host)
	}

	var addrs []netip.Addr
	if ip, err := netip.ParseAddr(host); err == nil {
		addrs = []netip.Addr{ip}
	} else {
		ips, err := w.resolver.LookupNetIP(ctx, "ip", host)
		if err != nil {
			return fmt.Errorf("解析webhook主机失败: %w", err)
		}
		addrs = ips
	}
	for _, ip := range addrs {
		if blockedAddr(ip) {
			return fmt.Errorf("%w: %s -> %s", ErrBlockedTarget, host, ip)
		}
	}
	return nil
}

func blockedAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified() || ip.IsInterfaceLocalMulticast() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// Send 发送通知，全部尝试失败时返回最后一次的错误
// 目标地址被拒绝时不发出任何请求
func (w *WebhookNotifier) Send(ctx context.Context, rawURL string, payload WebhookPayload) error {
	if err := w.CheckTarget(ctx, rawURL); err != nil {
		logger.L().Warnf("⚠️ [Webhook] 目标地址被拒绝: URL=%s, Error=%v", rawURL, err)
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化webhook请求体失败: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		status, err := w.post(ctx, rawURL, body)
		if err == nil && status < http.StatusBadRequest {
			logger.L().Infof("✅ [Webhook] 已发送: Event=%s, URL=%s, Status=%d", payload.Event, rawURL, status)
			return nil
		}
		if err == nil {
			err = fmt.Errorf("webhook返回HTTP %d", status)
		}
		lastErr = err
		logger.L().Warnf("⚠️ [Webhook] 发送失败 [%d/%d]: URL=%s, Error=%v", attempt+1, w.maxRetries, rawURL, err)
		if attempt < w.maxRetries-1 {
			if err := w.sleep(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
				return err
			}
		}
	}
	logger.L().Errorf("❌ [Webhook] 全部尝试失败: URL=%s", rawURL)
	return lastErr
}

func (w *WebhookNotifier) post(ctx context.Context, rawURL string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("创建webhook请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
