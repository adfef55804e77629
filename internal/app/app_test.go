package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/LENAX/dataflow-engine/pkg/config"
	"github.com/LENAX/dataflow-engine/pkg/plugin"
)

func testConfig(t *testing.T) *config.EngineConfig {
	t.Helper()
	cfg, err := config.LoadFrameworkConfig("")
	require.NoError(t, err)
	cfg.Dataflow.Storage.Database.DSN = filepath.Join(t.TempDir(), "dataflow.db")
	return cfg
}

func TestModule_Validate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	assert.NoError(t, fx.ValidateApp(Module(path, "test")), "依赖图应完整")
}

func TestNewStore_LifecycleClose(t *testing.T) {
	cfg := testConfig(t)
	lc := fxtest.NewLifecycle(t)

	store, err := NewStore(lc, cfg, nil)
	require.NoError(t, err)

	lc.RequireStart()
	_, err = store.ListWorkflows(context.Background())
	assert.NoError(t, err, "新库应可查询")
	lc.RequireStop()
}

func TestNewPlugins(t *testing.T) {
	cfg := testConfig(t)
	pm, err := NewPlugins(cfg)
	require.NoError(t, err)
	assert.NotNil(t, pm, "未启用邮件时也返回管理器")

	email := &cfg.Dataflow.Notification.Email
	email.Enabled = true
	email.SMTPHost = "smtp.example.com"
	email.SMTPPort = 25
	email.From = "bot@example.com"
	email.To = "ops@example.com"
	_, err = NewPlugins(cfg)
	assert.NoError(t, err, "默认绑定execution.failed")

	email.Events = []string{string(plugin.EventExecutionSucceeded), "nope"}
	_, err = NewPlugins(cfg)
	assert.Error(t, err, "未知事件应报错")
}

func TestNewCache(t *testing.T) {
	cfg := testConfig(t)
	lc := fxtest.NewLifecycle(t)

	cfg.Dataflow.Storage.Cache.Enabled = false
	assert.Nil(t, NewCache(lc, cfg), "未启用时为nil接口")

	cfg.Dataflow.Storage.Cache.Enabled = true
	c := NewCache(lc, cfg)
	require.NotNil(t, c)
	lc.RequireStart()
	lc.RequireStop()
}
