// Package app 服务进程的依赖装配：配置、日志、存储、引擎、预览服务与HTTP API
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	internalstorage "github.com/LENAX/dataflow-engine/internal/storage"
	"github.com/LENAX/dataflow-engine/pkg/api"
	"github.com/LENAX/dataflow-engine/pkg/config"
	_ "github.com/LENAX/dataflow-engine/pkg/connector/all"
	"github.com/LENAX/dataflow-engine/pkg/core/cache"
	"github.com/LENAX/dataflow-engine/pkg/core/engine"
	"github.com/LENAX/dataflow-engine/pkg/core/preview"
	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/plugin"
	"github.com/LENAX/dataflow-engine/pkg/storage"
	"github.com/LENAX/dataflow-engine/pkg/storage/sqlstore"
)

// shutdownTimeout HTTP服务优雅关闭的最长等待
const shutdownTimeout = 15 * time.Second

// Module 服务进程的全部组件
func Module(configPath, version string) fx.Option {
	return fx.Options(
		fx.Provide(
			func() (*config.EngineConfig, error) { return config.LoadFrameworkConfig(configPath) },
			NewLogger,
			NewLocation,
			NewStore,
			NewPlugins,
			NewEngine,
			NewCache,
			NewPreview,
			func(lc fx.Lifecycle, cfg *config.EngineConfig, eng *engine.Engine, svc *preview.Service, loc *time.Location) *api.APIServer {
				return NewServer(lc, cfg, eng, svc, loc, version)
			},
		),
		fx.Invoke(func(*api.APIServer) {}),
	)
}

// WithZapLogger fx生命周期事件输出到进程日志
func WithZapLogger() fx.Option {
	return fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: l.Named("fx")}
	})
}

// NewLogger 按配置初始化全局日志
func NewLogger(lc fx.Lifecycle, cfg *config.EngineConfig) (*zap.Logger, error) {
	l, err := logger.Init(logger.Options{
		Level: cfg.Dataflow.General.LogLevel,
		Env:   cfg.Dataflow.General.Env,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		logger.Sync()
		return nil
	}})
	return l, nil
}

// NewLocation 调度与日期过滤使用的时区
func NewLocation(cfg *config.EngineConfig) (*time.Location, error) {
	return cfg.GetLocation()
}

// NewStore 打开持久化存储，停止时关闭
func NewStore(lc fx.Lifecycle, cfg *config.EngineConfig, _ *zap.Logger) (storage.Store, error) {
	db := cfg.Dataflow.Storage.Database
	store, err := internalstorage.NewDatabaseFactory(cfg.GetDatabaseType(), cfg.GetDatabaseDSN(), sqlstore.Options{
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}
	logger.L().Infof("✅ [存储] 已打开: Type=%s", cfg.GetDatabaseType())
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		return store.Close()
	}})
	return store, nil
}

// NewPlugins 注册全局通知插件；邮件未启用时管理器为空
func NewPlugins(cfg *config.EngineConfig) (plugin.PluginManager, error) {
	pm := plugin.NewPluginManager()
	email := cfg.Dataflow.Notification.Email
	if !email.Enabled {
		return pm, nil
	}

	params := map[string]string{
		"smtp_host": email.SMTPHost,
		"smtp_port": strconv.Itoa(email.SMTPPort),
		"username":  email.Username,
		"password":  email.Password,
		"from":      email.From,
		"to":        email.To,
	}
	if err := pm.RegisterWithInit(plugin.NewEmailPlugin(), params); err != nil {
		return nil, fmt.Errorf("注册邮件插件失败: %w", err)
	}

	events := email.Events
	if len(events) == 0 {
		events = []string{string(plugin.EventExecutionFailed)}
	}
	for _, name := range events {
		ev, ok := plugin.ParseTriggerEvent(name)
		if !ok {
			return nil, fmt.Errorf("未知的通知事件: %s", name)
		}
		if err := pm.Bind(plugin.PluginBinding{PluginName: plugin.EmailPluginName, Event: ev}); err != nil {
			return nil, err
		}
	}
	logger.L().Infof("✅ [插件] 已注册: Plugins=%v, Events=%v", pm.ListPlugins(), events)
	return pm, nil
}

// NewEngine 创建引擎，启动时加载定时任务，停止时等待执行结束
func NewEngine(lc fx.Lifecycle, cfg *config.EngineConfig, store storage.Store, plugins plugin.PluginManager, loc *time.Location) *engine.Engine {
	wh := cfg.Dataflow.Notification.Webhook
	eng := engine.New(store, engine.Options{
		Executor: engine.ExecutorOptions{
			DefaultChunkSize: cfg.GetDefaultChunkSize(),
			DefaultBatchSize: cfg.GetDefaultBatchSize(),
			SQLGuard:         cfg.SQLGuardEnabled(),
		},
		Location:         loc,
		SchedulerEnabled: cfg.SchedulerEnabled(),
		Plugins:          plugins,
		Webhook:          plugin.NewWebhookNotifier(wh.Timeout, wh.MaxRetries),
	})
	lc.Append(fx.Hook{
		OnStart: eng.Start,
		OnStop: func(context.Context) error {
			eng.Stop()
			return nil
		},
	})
	return eng
}

// NewCache 元数据缓存，未启用时返回nil
func NewCache(lc fx.Lifecycle, cfg *config.EngineConfig) cache.Cache {
	c := cfg.Dataflow.Storage.Cache
	if !c.Enabled {
		return nil
	}
	mc := cache.NewMemoryCache(c.DefaultTTL, c.CleanInterval)
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		mc.Close()
		return nil
	}})
	return mc
}

// NewPreview 预览服务，连接从存储解析
func NewPreview(cfg *config.EngineConfig, store storage.Store, c cache.Cache) *preview.Service {
	return preview.NewService(engine.NewStoreResolver(store), c, preview.Options{
		RowLimit: cfg.GetPreviewRowLimit(),
		SQLGuard: cfg.SQLGuardEnabled(),
	})
}

// NewServer HTTP API服务器，启动时先绑定端口再在后台处理请求
func NewServer(lc fx.Lifecycle, cfg *config.EngineConfig, eng *engine.Engine, svc *preview.Service, loc *time.Location, version string) *api.APIServer {
	sc := cfg.Dataflow.Server
	srv := api.NewAPIServer(api.Deps{Engine: eng, Preview: svc, Location: loc}, api.ServerConfig{
		Host:         sc.Host,
		Port:         sc.Port,
		ReadTimeout:  sc.ReadTimeout,
		WriteTimeout: sc.WriteTimeout,
	}, version)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := srv.Listen(); err != nil {
				return fmt.Errorf("启动API服务失败(%s): %w", cfg.GetServerAddr(), err)
			}
			go func() {
				if err := srv.Serve(); err != nil {
					logger.L().Errorf("❌ [API] 服务异常退出: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	})
	return srv
}
