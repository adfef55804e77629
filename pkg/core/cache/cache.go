// Package cache 带过期时间的进程内缓存，用于连接元数据（模式、表、列）
package cache

import (
	"strings"
	"sync"
	"time"
)

// Cache 缓存接口（对外导出）
type Cache interface {
	// Set 设置缓存值，ttl<=0时使用默认有效期
	Set(key string, value interface{}, ttl time.Duration)
	// Get 获取缓存值，过期视为不存在
	Get(key string) (interface{}, bool)
	Delete(key string)
	// DeletePrefix 删除指定前缀的所有键，返回删除数量
	DeletePrefix(prefix string) int
	Clear()
}

// cacheEntry 缓存条目（内部使用）
type cacheEntry struct {
	value      interface{}
	expireTime time.Time
}

// MemoryCache 内存缓存实现（对外导出）
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMemoryCache 创建内存缓存
// cleanInterval>0时启动后台清理协程，需调用Close停止
func NewMemoryCache(defaultTTL, cleanInterval time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	c := &MemoryCache{
		entries:    make(map[string]*cacheEntry),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanInterval > 0 {
		go c.cleanupLoop(cleanInterval)
	}
	return c
}

// Set 设置缓存值
func (c *MemoryCache) Set(key string, value interface{}, ttl time.Duration) {
	if key == "" {
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.entries[key] = &cacheEntry{value: value, expireTime: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Get 获取缓存值
func (c *MemoryCache) Get(key string) (interface{}, bool) {
	if key == "" {
		return nil, false
	}
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}
	if c.now().After(entry.expireTime) {
		c.mu.Lock()
		// 期间可能已被重新设置
		if cur, ok := c.entries[key]; ok && cur == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return entry.value, true
}

// Delete 删除缓存值
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// DeletePrefix 删除指定前缀的键
func (c *MemoryCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Clear 清空所有缓存
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Len 当前条目数（含未清理的过期条目）
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close 停止后台清理
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// cleanupLoop 定期清理过期条目
func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

func (c *MemoryCache) purgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for key, entry := range c.entries {
		if now.After(entry.expireTime) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

var _ Cache = (*MemoryCache)(nil)
