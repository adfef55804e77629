package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/core/engine"
	"github.com/LENAX/dataflow-engine/pkg/storage/memstore"
)

func TestAPIServer_ListenServeShutdown(t *testing.T) {
	eng := engine.New(memstore.New(), engine.Options{Location: time.UTC})
	t.Cleanup(eng.Stop)

	srv := NewAPIServer(Deps{Engine: eng, Location: time.UTC}, ServerConfig{Host: "127.0.0.1", Port: 0}, "test")
	assert.Equal(t, "127.0.0.1:0", srv.Addr(), "未监听时返回配置地址")
	assert.Error(t, srv.Serve(), "未监听不能Serve")

	require.NoError(t, srv.Listen())
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr(), "应返回系统分配的端口")

	done := make(chan error, 1)
	go func() { done <- srv.Serve() }()

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done, "关闭后Serve正常返回")
}

func TestAPIServer_ShutdownBeforeListen(t *testing.T) {
	srv := NewAPIServer(Deps{}, DefaultServerConfig(), "test")
	assert.NoError(t, srv.Shutdown(context.Background()))
}
