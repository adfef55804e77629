package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/dataflow-engine/pkg/logger"
)

// PluginBinding 事件到插件的绑定（对外导出）
type PluginBinding struct {
	PluginName string
	Event      TriggerEvent
	// Condition 可选，返回false时本次不通知
	Condition func(data PluginData) bool
}

// PluginManager 全局通知插件的注册与分发（对外导出）
type PluginManager interface {
	Register(plugin Plugin) error
	// RegisterWithInit 注册并初始化，初始化失败时不保留注册
	RegisterWithInit(plugin Plugin, params map[string]string) error
	Bind(binding PluginBinding) error
	// Trigger 依绑定顺序通知，单个插件失败不影响其余插件
	Trigger(ctx context.Context, event TriggerEvent, data PluginData) error
	// ListPlugins 已注册插件名，按名称排序
	ListPlugins() []string
}

type pluginManager struct {
	mu       sync.RWMutex
	plugins  map[string]Plugin
	bindings map[TriggerEvent][]PluginBinding
}

// NewPluginManager 创建插件管理器（对外导出）
func NewPluginManager() PluginManager {
	return &pluginManager{
		plugins:  make(map[string]Plugin),
		bindings: make(map[TriggerEvent][]PluginBinding),
	}
}

func (pm *pluginManager) Register(p Plugin) error {
	if p == nil || p.Name() == "" {
		return errors.New("插件及其名称不能为空")
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, dup := pm.plugins[p.Name()]; dup {
		return fmt.Errorf("插件 %s 已注册", p.Name())
	}
	pm.plugins[p.Name()] = p
	return nil
}

func (pm *pluginManager) RegisterWithInit(p Plugin, params map[string]string) error {
	if p == nil {
		return errors.New("插件及其名称不能为空")
	}
	if err := p.Init(params); err != nil {
		return fmt.Errorf("插件 %s 初始化失败: %w", p.Name(), err)
	}
	return pm.Register(p)
}

func (pm *pluginManager) Bind(b PluginBinding) error {
	if b.PluginName == "" || b.Event == "" {
		return errors.New("绑定必须指定插件名称与触发事件")
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, ok := pm.plugins[b.PluginName]; !ok {
		return fmt.Errorf("插件 %s 未注册", b.PluginName)
	}
	pm.bindings[b.Event] = append(pm.bindings[b.Event], b)
	return nil
}

// target 一次触发中待通知的插件
type target struct {
	plugin  Plugin
	binding PluginBinding
}

func (pm *pluginManager) targets(event TriggerEvent) []target {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	out := make([]target, 0, len(pm.bindings[event]))
	for _, b := range pm.bindings[event] {
		if p, ok := pm.plugins[b.PluginName]; ok {
			out = append(out, target{plugin: p, binding: b})
		}
	}
	return out
}

func (pm *pluginManager) Trigger(ctx context.Context, event TriggerEvent, data PluginData) error {
	var errs []error
	for _, t := range pm.targets(event) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if t.binding.Condition != nil && !t.binding.Condition(data) {
			continue
		}
		if err := t.plugin.Execute(data); err != nil {
			logger.L().Warnf("⚠️ [插件] 通知失败: Plugin=%s, Event=%s, ExecutionID=%s, Error=%v",
				t.binding.PluginName, event, data.ExecutionID, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.binding.PluginName, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("插件通知失败: %w", errors.Join(errs...))
	}
	return nil
}

func (pm *pluginManager) ListPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	names := make([]string, 0, len(pm.plugins))
	for name := range pm.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
