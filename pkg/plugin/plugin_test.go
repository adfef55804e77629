package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlugin struct {
	name  string
	calls []PluginData
	err   error
}

func (p *recordingPlugin) Name() string                        { return p.name }
func (p *recordingPlugin) Init(params map[string]string) error { return nil }
func (p *recordingPlugin) Execute(data interface{}) error {
	p.calls = append(p.calls, data.(PluginData))
	return p.err
}

func TestPluginManager_BindAndTrigger(t *testing.T) {
	pm := NewPluginManager()
	p := &recordingPlugin{name: "rec"}
	require.NoError(t, pm.Register(p))
	assert.Error(t, pm.Register(p), "重复注册应报错")
	assert.Error(t, pm.Bind(PluginBinding{PluginName: "missing", Event: EventExecutionFailed}), "未注册插件不能绑定")

	require.NoError(t, pm.Bind(PluginBinding{PluginName: "rec", Event: EventExecutionFailed}))
	require.NoError(t, pm.Bind(PluginBinding{
		PluginName: "rec",
		Event:      EventExecutionSucceeded,
		Condition:  func(data PluginData) bool { return data.RowsProcessed > 0 },
	}))

	ctx := context.Background()
	require.NoError(t, pm.Trigger(ctx, EventExecutionFailed, PluginData{ExecutionID: "e1", Status: "failed"}))
	require.NoError(t, pm.Trigger(ctx, EventExecutionSucceeded, PluginData{ExecutionID: "e2"}))
	require.NoError(t, pm.Trigger(ctx, EventExecutionSucceeded, PluginData{ExecutionID: "e3", RowsProcessed: 5}))
	require.NoError(t, pm.Trigger(ctx, EventExecutionCancelled, PluginData{ExecutionID: "e4"}), "无绑定事件应直接返回")

	require.Len(t, p.calls, 2)
	assert.Equal(t, "e1", p.calls[0].ExecutionID)
	assert.Equal(t, "e3", p.calls[1].ExecutionID, "条件不满足时不应触发")

	assert.Equal(t, []string{"rec"}, pm.ListPlugins())
}

func TestPluginManager_RegisterWithInitFailure(t *testing.T) {
	pm := NewPluginManager()
	err := pm.RegisterWithInit(NewEmailPlugin(), map[string]string{"smtp_port": "abc"})
	assert.ErrorContains(t, err, "初始化失败")
	assert.Empty(t, pm.ListPlugins(), "初始化失败的插件不保留注册")
	assert.Error(t, pm.Bind(PluginBinding{PluginName: EmailPluginName, Event: EventExecutionFailed}))
}

func TestPluginManager_TriggerCollectsErrors(t *testing.T) {
	pm := NewPluginManager()
	sentinel := errors.New("boom")
	require.NoError(t, pm.Register(&recordingPlugin{name: "bad", err: sentinel}))
	require.NoError(t, pm.Bind(PluginBinding{PluginName: "bad", Event: EventExecutionFailed}))

	err := pm.Trigger(context.Background(), EventExecutionFailed, PluginData{})
	assert.ErrorIs(t, err, sentinel)
}

func TestParseTriggerEvent(t *testing.T) {
	ev, ok := ParseTriggerEvent("execution.failed")
	assert.True(t, ok)
	assert.Equal(t, EventExecutionFailed, ev)
	_, ok = ParseTriggerEvent("task.failed")
	assert.False(t, ok)
}

func TestEmailPlugin(t *testing.T) {
	e := NewEmailPlugin()
	assert.Error(t, e.Execute(PluginData{}), "未初始化时应报错")
	assert.Error(t, e.Init(map[string]string{"from": "a@x.com", "to": "b@x.com"}), "缺少smtp_host")
	assert.Error(t, e.Init(map[string]string{"smtp_host": "mail", "smtp_port": "abc", "from": "a@x.com", "to": "b@x.com"}))
	assert.Error(t, e.Init(map[string]string{"smtp_host": "mail", "from": "a@x.com", "to": " , "}))

	var gotAddr string
	var gotTo []string
	var gotMsg string
	e.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}
	require.NoError(t, e.Init(map[string]string{"smtp_host": "mail", "smtp_port": "2525", "from": "etl@x.com", "to": "a@x.com, b@x.com"}))
	require.NoError(t, e.Execute(PluginData{
		Event:        EventExecutionFailed,
		ExecutionID:  "exec-1",
		WorkflowID:   "wf-1",
		WorkflowName: "同步订单",
		Status:       "failed",
		Error:        "connection refused",
	}))

	assert.Equal(t, "mail:2525", gotAddr)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [执行失败] 同步订单 - exec-1")
	assert.Contains(t, gotMsg, "错误信息: connection refused")
}

func newTestNotifier() *WebhookNotifier {
	w := NewWebhookNotifier(time.Second, 3)
	w.allowHost = func(host string) bool { return host == "127.0.0.1" }
	w.sleep = func(context.Context, time.Duration) error { return nil }
	return w
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestNotifier().Send(context.Background(), srv.URL, WebhookPayload{
		Event: EventExecutionSucceeded, ExecutionID: "exec-1", WorkflowID: "wf-1", Status: "success", RowsProcessed: 42,
	})
	require.NoError(t, err)
	assert.Equal(t, "exec-1", got.ExecutionID)
	assert.Equal(t, int64(42), got.RowsProcessed)
}

func TestWebhookNotifier_RetriesWithBackoff(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := newTestNotifier()
	var waits []time.Duration
	n.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	err := n.Send(context.Background(), srv.URL, WebhookPayload{Event: EventExecutionFailed})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits), "应尝试3次")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits, "最后一次失败后不再等待")
}

func TestWebhookNotifier_BlockedTargets(t *testing.T) {
	n := NewWebhookNotifier(0, 0)
	ctx := context.Background()
	for _, target := range []string{
		"http://127.0.0.1:8080/hook",
		"http://localhost/hook",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/hook",
		"http://0.0.0.0/hook",
		"http://100.64.1.1/hook",
		"http://10.0.0.5/hook",
		"http://172.16.3.4/hook",
		"http://192.168.1.10/hook",
		"http://[fd00::1]/hook",
		"ftp://example.com/hook",
		"http:///nohost",
	} {
		assert.ErrorIs(t, n.CheckTarget(ctx, target), ErrBlockedTarget, target)
	}
	assert.NoError(t, n.CheckTarget(ctx, "https://93.184.216.34/hook"))

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()
	assert.ErrorIs(t, n.Send(ctx, srv.URL, WebhookPayload{}), ErrBlockedTarget)
	assert.Zero(t, atomic.LoadInt32(&hits), "被拒绝的目标不应收到请求")
}

func TestWebhookNotifier_DialControlRechecksResolvedAddress(t *testing.T) {
	n := NewWebhookNotifier(time.Second, 1)
	for _, addr := range []string{"10.1.2.3:80", "192.168.0.1:443", "127.0.0.1:8080", "[::1]:80", "bad-address"} {
		assert.ErrorIs(t, n.dialControl("tcp", addr, nil), ErrBlockedTarget, addr)
	}
	assert.NoError(t, n.dialControl("tcp", "93.184.216.34:443", nil))

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	// 绕过CheckTarget直接发送，连接阶段仍应被拒绝
	_, err := n.post(context.Background(), srv.URL, []byte("{}"))
	assert.ErrorIs(t, err, ErrBlockedTarget)
	assert.Zero(t, atomic.LoadInt32(&hits), "连接阶段被拒绝时不应收到请求")
}
