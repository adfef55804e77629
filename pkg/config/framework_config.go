// Package config 框架配置：YAML文件，根键为dataflow
package config

import (
	"time"
)

// EngineConfig 引擎框架配置（对外导出）
type EngineConfig struct {
	Dataflow struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
			// Timezone 日期过滤与展示使用的时区，空为本地时区
			Timezone string `yaml:"timezone"`
		} `yaml:"general"`
		Storage struct {
			Database struct {
				Type            string        `yaml:"type"`
				DSN             string        `yaml:"dsn"`
				MaxOpenConns    int           `yaml:"max_open_conns"`
				MaxIdleConns    int           `yaml:"max_idle_conns"`
				ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
				ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
			} `yaml:"database"`
			Cache struct {
				Enabled       bool          `yaml:"enabled"`
				DefaultTTL    time.Duration `yaml:"default_ttl"`
				CleanInterval time.Duration `yaml:"clean_interval"`
			} `yaml:"cache"`
		} `yaml:"storage"`
		Execution struct {
			DefaultChunkSize int `yaml:"default_chunk_size"`
			DefaultBatchSize int `yaml:"default_batch_size"`
			PreviewRowLimit  int `yaml:"preview_row_limit"`
			// SQLGuard 为nil时默认开启
			SQLGuard *bool `yaml:"sql_guard"`
		} `yaml:"execution"`
		Scheduler struct {
			Enabled  *bool  `yaml:"enabled"`
			Timezone string `yaml:"timezone"`
		} `yaml:"scheduler"`
		Notification struct {
			Webhook struct {
				Timeout    time.Duration `yaml:"timeout"`
				MaxRetries int           `yaml:"max_retries"`
			} `yaml:"webhook"`
			Email struct {
				Enabled  bool     `yaml:"enabled"`
				SMTPHost string   `yaml:"smtp_host"`
				SMTPPort int      `yaml:"smtp_port"`
				Username string   `yaml:"username"`
				Password string   `yaml:"password"`
				From     string   `yaml:"from"`
				To       string   `yaml:"to"`
				Events   []string `yaml:"events"`
			} `yaml:"email"`
		} `yaml:"notification"`
		Server struct {
			Host         string        `yaml:"host"`
			Port         int           `yaml:"port"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
		} `yaml:"server"`
	} `yaml:"dataflow"`
}

// GetDatabaseType 获取数据库类型
func (c *EngineConfig) GetDatabaseType() string {
	return c.Dataflow.Storage.Database.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *EngineConfig) GetDatabaseDSN() string {
	return c.Dataflow.Storage.Database.DSN
}

// GetDefaultChunkSize 源节点默认读取块大小
func (c *EngineConfig) GetDefaultChunkSize() int {
	if n := c.Dataflow.Execution.DefaultChunkSize; n > 0 {
		return n
	}
	return 5000
}

// GetDefaultBatchSize 目标节点默认写入批大小
func (c *EngineConfig) GetDefaultBatchSize() int {
	if n := c.Dataflow.Execution.DefaultBatchSize; n > 0 {
		return n
	}
	return 500
}

// GetPreviewRowLimit 预览默认行数
func (c *EngineConfig) GetPreviewRowLimit() int {
	if n := c.Dataflow.Execution.PreviewRowLimit; n > 0 {
		return n
	}
	return 100
}

// SQLGuardEnabled 是否开启SQL安全检查
func (c *EngineConfig) SQLGuardEnabled() bool {
	g := c.Dataflow.Execution.SQLGuard
	return g == nil || *g
}

// SchedulerEnabled 是否启动定时调度
func (c *EngineConfig) SchedulerEnabled() bool {
	e := c.Dataflow.Scheduler.Enabled
	return e == nil || *e
}

// GetLocation 解析时区，scheduler.timezone优先于general.timezone
func (c *EngineConfig) GetLocation() (*time.Location, error) {
	name := c.Dataflow.Scheduler.Timezone
	if name == "" {
		name = c.Dataflow.General.Timezone
	}
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// GetServerAddr 监听地址
func (c *EngineConfig) GetServerAddr() string {
	return joinHostPort(c.Dataflow.Server.Host, c.Dataflow.Server.Port)
}

// ApplyDefaults 应用默认值
func (c *EngineConfig) ApplyDefaults() {
	d := &c.Dataflow

	// General默认值
	if d.General.InstanceName == "" {
		d.General.InstanceName = "dataflow-engine"
	}
	if d.General.LogLevel == "" {
		d.General.LogLevel = "info"
	}
	if d.General.Env == "" {
		d.General.Env = "dev"
	}

	// Database默认值
	if d.Storage.Database.Type == "" {
		d.Storage.Database.Type = "sqlite"
	}
	if d.Storage.Database.DSN == "" && d.Storage.Database.Type == "sqlite" {
		d.Storage.Database.DSN = "./dataflow.db"
	}
	if d.Storage.Database.MaxOpenConns <= 0 {
		d.Storage.Database.MaxOpenConns = 10
	}
	if d.Storage.Database.MaxIdleConns <= 0 {
		d.Storage.Database.MaxIdleConns = 5
	}
	if d.Storage.Database.ConnMaxLifetime <= 0 {
		d.Storage.Database.ConnMaxLifetime = 2 * time.Hour
	}
	if d.Storage.Database.ConnMaxIdleTime <= 0 {
		d.Storage.Database.ConnMaxIdleTime = 1 * time.Hour
	}

	// Cache默认值
	if d.Storage.Cache.DefaultTTL <= 0 {
		d.Storage.Cache.DefaultTTL = 5 * time.Minute
	}
	if d.Storage.Cache.CleanInterval <= 0 {
		d.Storage.Cache.CleanInterval = 10 * time.Minute
	}

	// Execution默认值
	d.Execution.DefaultChunkSize = c.GetDefaultChunkSize()
	d.Execution.DefaultBatchSize = c.GetDefaultBatchSize()
	d.Execution.PreviewRowLimit = c.GetPreviewRowLimit()

	// Notification默认值
	if d.Notification.Webhook.Timeout <= 0 {
		d.Notification.Webhook.Timeout = 10 * time.Second
	}
	if d.Notification.Webhook.MaxRetries <= 0 {
		d.Notification.Webhook.MaxRetries = 3
	}
	if d.Notification.Email.SMTPPort <= 0 {
		d.Notification.Email.SMTPPort = 587
	}

	// Server默认值
	if d.Server.Host == "" {
		d.Server.Host = "0.0.0.0"
	}
	if d.Server.Port <= 0 {
		d.Server.Port = 8000
	}
	if d.Server.ReadTimeout <= 0 {
		d.Server.ReadTimeout = 30 * time.Second
	}
	if d.Server.WriteTimeout < 0 {
		d.Server.WriteTimeout = 0
	}
}
