package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// envRef 匹配 ${VAR} 形式的环境变量引用
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv 展开 ${VAR}，未设置的变量替换为空串；裸$保持原样
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envRef.FindStringSubmatch(m)[1])
	})
}

// LoadFrameworkConfig 加载框架配置文件
// 文件不存在时使用默认配置；随后应用DATAFLOW_*环境变量覆盖、默认值与校验
func LoadFrameworkConfig(path string) (*EngineConfig, error) {
	cfg := &EngineConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		default:
			if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := ValidateFrameworkConfig(cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides 环境变量优先于配置文件
func applyEnvOverrides(cfg *EngineConfig) error {
	d := &cfg.Dataflow
	if v := os.Getenv("DATAFLOW_DATABASE_TYPE"); v != "" {
		d.Storage.Database.Type = v
	}
	if v := os.Getenv("DATAFLOW_DATABASE_DSN"); v != "" {
		d.Storage.Database.DSN = v
	}
	if v := os.Getenv("DATAFLOW_SERVER_HOST"); v != "" {
		d.Server.Host = v
	}
	if v := os.Getenv("DATAFLOW_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DATAFLOW_SERVER_PORT无效: %w", err)
		}
		d.Server.Port = port
	}
	if v := os.Getenv("DATAFLOW_LOG_LEVEL"); v != "" {
		d.General.LogLevel = v
	}
	if v := os.Getenv("DATAFLOW_TIMEZONE"); v != "" {
		d.General.Timezone = v
	}
	return nil
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
