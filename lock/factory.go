package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config 下载锁配置
type Config struct {
	Enabled bool
	Type    string // local / redis
	Prefix  string
	Redis   *redis.Options
}

// NewDistributedLock 根据配置创建下载锁，未启用时返回 NopLock
func NewDistributedLock(cfg *Config) (DistributedLock, error) {
	if cfg == nil || !cfg.Enabled {
		return NewNopLock(), nil
	}

	switch cfg.Type {
	case "", "local":
		return NewLocalLock(), nil

	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis lock requires redis options")
		}
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = "smabot:lock:"
		}
		l := NewRedisLock(redis.NewClient(cfg.Redis), prefix)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.Ping(ctx); err != nil {
			l.Close()
			return nil, fmt.Errorf("redis lock ping: %w", err)
		}
		return l, nil

	default:
		return nil, fmt.Errorf("unsupported lock type: %s", cfg.Type)
	}
}
