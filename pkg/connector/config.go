package connector

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Config 已解析的连接配置，来自持久化的JSON（对外导出）
type Config map[string]any

// ParseConfig 从JSON文本解析连接配置
func ParseConfig(raw string) (Config, error) {
	if strings.TrimSpace(raw) == "" {
		return Config{}, nil
	}
	var cfg Config
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("解析连接配置失败: %w", err)
	}
	return cfg, nil
}

// String 读取字符串配置
func (c Config) String(key, def string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return def
		}
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Int 读取整数配置，接受数字或数字字符串
func (c Config) Int(key string, def int) int {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return i
		}
	}
	return def
}

// Bool 读取布尔配置，接受布尔或真值字符串
func (c Config) Bool(key string, def bool) bool {
	v, ok := c[key]
	if !ok || v == nil {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "t", "on":
			return true
		case "0", "false", "no", "f", "off":
			return false
		}
	case float64:
		return t != 0
	}
	return def
}

// Require 读取必填字符串配置
func (c Config) Require(key string) (string, error) {
	s := c.String(key, "")
	if s == "" {
		return "", fmt.Errorf("连接配置缺少必填项: %s", key)
	}
	return s, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv 将字符串配置值中的 ${VAR} 替换为环境变量，未设置的变量替换为空串
// 只处理花括号形式，密码中的裸 $ 保持原样
func (c Config) ExpandEnv() Config {
	out := make(Config, len(c))
	for k, v := range c {
		if s, ok := v.(string); ok {
			v = envRef.ReplaceAllStringFunc(s, func(ref string) string {
				return os.Getenv(envRef.FindStringSubmatch(ref)[1])
			})
		}
		out[k] = v
	}
	return out
}

// Open 解析持久化的连接配置并实例化连接器（对外导出）
func Open(kind, rawConfig string) (Connector, error) {
	cfg, err := ParseConfig(rawConfig)
	if err != nil {
		return nil, err
	}
	return New(kind, cfg.ExpandEnv())
}
