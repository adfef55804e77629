package connector

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory 按连接配置创建连接器
type Factory func(cfg Config) (Connector, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register 注册连接器工厂，通常在适配器包的init中调用
// 重复注册同一类型会panic
func Register(kind string, f Factory) {
	kind = strings.ToLower(kind)
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("connector: Register factory is nil")
	}
	if _, dup := registry[kind]; dup {
		panic("connector: Register called twice for kind " + kind)
	}
	registry[kind] = f
}

// Unregister 移除注册，仅供测试使用
func Unregister(kind string) {
	registryMu.Lock()
	delete(registry, strings.ToLower(kind))
	registryMu.Unlock()
}

// New 按类型实例化连接器
func New(kind string, cfg Config) (Connector, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(kind)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	c, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("创建%s连接器失败: %w", kind, err)
	}
	return c, nil
}

// Kinds 返回已注册的连接器类型（排序）
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
