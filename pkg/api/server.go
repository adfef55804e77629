package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/logger"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host         string        // 监听地址
	Port         int           // 监听端口
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时，0表示不限制（实时日志流为长连接）
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:        "0.0.0.0",
		Port:        8000,
		ReadTimeout: 30 * time.Second,
	}
}

// APIServer HTTP API服务器
type APIServer struct {
	deps       Deps
	httpServer *http.Server
	listener   net.Listener
	config     ServerConfig
	version    string
}

// NewAPIServer 创建API服务器
func NewAPIServer(deps Deps, config ServerConfig, version string) *APIServer {
	return &APIServer{
		deps:    deps,
		config:  config,
		version: version,
	}
}

// Listen 绑定端口，端口为0时由系统分配
func (s *APIServer) Listen() error {
	ln, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("监听端口失败: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:      SetupRouter(s.deps, s.version),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return nil
}

// Serve 处理请求直到Shutdown，需先调用Listen
func (s *APIServer) Serve() error {
	if s.listener == nil {
		return errors.New("服务器尚未监听")
	}
	logger.L().Infof("🚀 [API] Dataflow Engine API Server starting on %s", s.Addr())
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server serve failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	logger.L().Info("🛑 [API] Shutting down API Server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.L().Info("✅ [API] API Server stopped")
	return nil
}

// Addr 实际监听地址，未监听时返回配置地址
func (s *APIServer) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}
