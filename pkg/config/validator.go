package config

import (
	"fmt"
	"strings"
)

// ValidateFrameworkConfig 校验框架配置合法性
func ValidateFrameworkConfig(cfg *EngineConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	d := &cfg.Dataflow

	// 校验General
	if d.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	if d.General.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[strings.ToLower(d.General.LogLevel)] {
			return fmt.Errorf("log_level必须是debug/info/warn/error之一")
		}
	}
	if _, err := cfg.GetLocation(); err != nil {
		return fmt.Errorf("timezone无效: %w", err)
	}

	// 校验Storage.Database
	validDBTypes := map[string]bool{
		"sqlite":     true,
		"postgres":   true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validDBTypes[d.Storage.Database.Type] {
		return fmt.Errorf("database.type必须是sqlite/postgres/mysql之一")
	}
	if d.Storage.Database.DSN == "" {
		return fmt.Errorf("database.dsn不能为空")
	}
	if d.Storage.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns必须大于0")
	}
	if d.Storage.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns不能为负数")
	}

	// 校验Execution
	if d.Execution.DefaultChunkSize <= 0 {
		return fmt.Errorf("execution.default_chunk_size必须大于0")
	}
	if d.Execution.DefaultBatchSize <= 0 {
		return fmt.Errorf("execution.default_batch_size必须大于0")
	}

	// 校验Email
	if e := d.Notification.Email; e.Enabled {
		if e.SMTPHost == "" || e.From == "" || e.To == "" {
			return fmt.Errorf("notification.email启用时smtp_host、from、to不能为空")
		}
	}

	// 校验Server
	if d.Server.Port <= 0 || d.Server.Port > 65535 {
		return fmt.Errorf("server.port必须在1-65535之间")
	}
	return nil
}
