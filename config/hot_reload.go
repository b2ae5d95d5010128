package config

import (
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// HotReloader 配置热更新器
//
// 可热更新的配置段（market、strategy、output、system.log_level、system.language）
// 立即生效；其余变更保留旧值，等待重启。
type HotReloader struct {
	mu              sync.RWMutex
	currentConfig   *Config
	updateCallbacks []ConfigUpdateCallback
}

// ConfigUpdateCallback 配置更新回调函数类型
type ConfigUpdateCallback func(oldConfig, newConfig *Config, changes []ConfigChange) error

// NewHotReloader 创建热更新器
func NewHotReloader(initialConfig *Config) *HotReloader {
	return &HotReloader{currentConfig: initialConfig}
}

// RegisterCallback 注册配置更新回调
func (hr *HotReloader) RegisterCallback(callback ConfigUpdateCallback) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.updateCallbacks = append(hr.updateCallbacks, callback)
}

// UpdateConfig 更新配置（热更新）
func (hr *HotReloader) UpdateConfig(newConfig *Config) (*ConfigDiff, error) {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	diff := DiffConfig(hr.currentConfig, newConfig)
	if !diff.HasChanges() {
		return diff, nil
	}

	var hotChanges []ConfigChange
	for _, change := range diff.Changes {
		if !change.RequiresRestart {
			hotChanges = append(hotChanges, change)
		}
	}

	next := newConfig
	if diff.RequiresRestart {
		partial, err := hr.currentConfig.Clone()
		if err != nil {
			return nil, err
		}
		for _, change := range hotChanges {
			copySection(partial, newConfig, change.Path)
		}
		next = partial
	}

	if len(hotChanges) > 0 {
		for _, callback := range hr.updateCallbacks {
			if err := callback(hr.currentConfig, next, hotChanges); err != nil {
				return nil, fmt.Errorf("配置更新回调执行失败: %w", err)
			}
		}
	}

	hr.currentConfig = next
	return diff, nil
}

// copySection 按路径复制可热更新的配置段
func copySection(dest, src *Config, path string) {
	switch {
	case strings.HasPrefix(path, "market"):
		dest.Market = src.Market
	case strings.HasPrefix(path, "strategy"):
		dest.Strategy = src.Strategy
	case strings.HasPrefix(path, "output"):
		dest.Output = src.Output
	case path == "system.log_level":
		dest.System.LogLevel = src.System.LogLevel
	case path == "system.language":
		dest.System.Language = src.System.Language
	}
}

// GetCurrentConfig 获取当前配置
func (hr *HotReloader) GetCurrentConfig() *Config {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return hr.currentConfig
}

// Clone 通过 YAML 往返深度复制配置
func (c *Config) Clone() (*Config, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("复制配置失败: %w", err)
	}
	var out Config
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("复制配置失败: %w", err)
	}
	return &out, nil
}
