package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"smabot/logger"
	"smabot/market"
)

const cacheIndexFile = "cache_index.json"

// FileCache CSV 文件缓存，cache_index.json 记录每个缓存的元数据
type FileCache struct {
	dir string
	mu  sync.Mutex
}

// NewFileCache 创建文件缓存
func NewFileCache(dir string) *FileCache {
	if dir == "" {
		dir = filepath.Join("backtest", "cache")
	}
	return &FileCache{dir: dir}
}

// Dir 缓存目录
func (f *FileCache) Dir() string {
	return f.dir
}

func (f *FileCache) path(key string) string {
	return filepath.Join(f.dir, key+".csv")
}

// Load 从 CSV 加载
func (f *FileCache) Load(ctx context.Context, key string) ([]market.Candle, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	candles, _, err := readCandlesCSV(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return candles, nil
}

// Save 保存到 CSV 并更新索引
func (f *FileCache) Save(ctx context.Context, key string, candles []market.Candle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}

	symbol := ""
	if info, err := ParseCacheKey(key); err == nil {
		symbol = info.Symbol
	}

	var buf bytes.Buffer
	if err := writeCandlesCSV(&buf, symbol, candles); err != nil {
		return err
	}
	// 先写临时文件再改名，读取方不会看到写了一半的文件
	tmp := f.path(key) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("创建缓存文件失败: %w", err)
	}
	if err := os.Rename(tmp, f.path(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("创建缓存文件失败: %w", err)
	}

	index, err := f.readIndex()
	if err != nil {
		logger.Warn("⚠️ 缓存索引损坏，重建: %v", err)
		index = make(map[string]CacheInfo)
	}
	index[key] = NewCacheInfo(key, candles, int64(buf.Len()))
	if err := f.writeIndex(index); err != nil {
		logger.Warn("⚠️ 更新缓存索引失败: %v", err)
	}

	return nil
}

// Delete 删除指定缓存
func (f *FileCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除缓存文件失败: %w", err)
	}

	index, err := f.readIndex()
	if err != nil {
		return err
	}
	if _, ok := index[key]; !ok {
		return nil
	}
	delete(index, key)
	return f.writeIndex(index)
}

// List 列出所有缓存，按名称排序
func (f *FileCache) List(ctx context.Context) ([]CacheInfo, error) {
	f.mu.Lock()
	index, err := f.readIndex()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	caches := make([]CacheInfo, 0, len(index))
	for name, entry := range index {
		entry.Name = name
		caches = append(caches, entry)
	}
	sort.Slice(caches, func(i, j int) bool { return caches[i].Name < caches[j].Name })

	return caches, nil
}

// Clear 清理所有缓存
func (f *FileCache) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.RemoveAll(f.dir); err != nil {
		return fmt.Errorf("清理缓存失败: %w", err)
	}
	return nil
}

// Stats 获取缓存统计
func (f *FileCache) Stats(ctx context.Context) (CacheStats, error) {
	files, err := filepath.Glob(filepath.Join(f.dir, "*.csv"))
	if err != nil {
		return CacheStats{}, fmt.Errorf("读取缓存目录失败: %w", err)
	}

	var totalSize int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		totalSize += info.Size()
	}

	return CacheStats{
		Backend:   "file",
		Entries:   len(files),
		TotalSize: totalSize,
		SizeMB:    float64(totalSize) / 1024 / 1024,
	}, nil
}

// readIndex 读取索引，文件不存在时返回空索引
func (f *FileCache) readIndex() (map[string]CacheInfo, error) {
	index := make(map[string]CacheInfo)

	data, err := os.ReadFile(filepath.Join(f.dir, cacheIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return index, nil
		}
		return nil, fmt.Errorf("读取缓存索引失败: %w", err)
	}

	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("解析缓存索引失败: %w", err)
	}
	return index, nil
}

func (f *FileCache) writeIndex(index map[string]CacheInfo) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(f.dir, cacheIndexFile), data, 0644)
}
