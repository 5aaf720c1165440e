package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/answercache/internal/answercache/biz"
	"github.com/kart-io/answercache/pkg/utils/json"
)

// DefaultKeyPrefix 共享层缓存键前缀。
const DefaultKeyPrefix = "answercache:entry:"

// RedisTier Redis 实现的共享缓存层。单键操作依赖 Redis 自身的
// 原子性；按模式删除用 SCAN 遍历，失效操作低频，可接受线性扫描。
type RedisTier struct {
	client    *goredis.Client
	keyPrefix string
}

// 编译期检查接口实现。
var _ biz.RemoteTier = (*RedisTier)(nil)

// NewRedisTier 创建 Redis 共享层。keyPrefix 为空时使用默认前缀。
func NewRedisTier(client *goredis.Client, keyPrefix string) *RedisTier {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisTier{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// redisKey 拼接完整的 Redis 键。
func (r *RedisTier) redisKey(key string) string {
	return r.keyPrefix + key
}

// Get 按键读取条目；未命中返回 (nil, nil)。
func (r *RedisTier) Get(ctx context.Context, key string) (*biz.CacheEntry, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry biz.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// 损坏的缓存数据按未命中处理并清除
		_ = r.client.Del(ctx, r.redisKey(key)).Err()
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

// Set 写入条目并设置过期时间。
func (r *RedisTier) Set(ctx context.Context, entry *biz.CacheEntry, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("non-positive ttl: %s", ttl)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := r.client.Set(ctx, r.redisKey(entry.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete 删除指定键，返回删除数。
func (r *RedisTier) Delete(ctx context.Context, key string) (int, error) {
	n, err := r.client.Del(ctx, r.redisKey(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis del: %w", err)
	}
	return int(n), nil
}

// DeleteCategory 删除指定类别的全部条目，返回删除数。
func (r *RedisTier) DeleteCategory(ctx context.Context, category biz.Category) (int, error) {
	return r.deleteWhere(ctx, func(e *biz.CacheEntry) bool {
		return e.Category == category
	})
}

// DeleteMatching 删除规范化查询文本包含 substr 的条目，返回删除数。
func (r *RedisTier) DeleteMatching(ctx context.Context, substr string) (int, error) {
	return r.deleteWhere(ctx, func(e *biz.CacheEntry) bool {
		return strings.Contains(e.Query, substr)
	})
}

// deleteWhere 用 SCAN 遍历前缀下的所有键，删除满足谓词的条目。
func (r *RedisTier) deleteWhere(ctx context.Context, match func(*biz.CacheEntry) bool) (int, error) {
	iter := r.client.Scan(ctx, 0, r.keyPrefix+"*", 0).Iterator()

	deleted := 0
	for iter.Next(ctx) {
		redisKey := iter.Val()

		data, err := r.client.Get(ctx, redisKey).Bytes()
		if err != nil {
			if err == goredis.Nil {
				continue // 扫描与删除竞争，键已消失
			}
			return deleted, fmt.Errorf("redis get during scan: %w", err)
		}

		var entry biz.CacheEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			// 无法解析的条目直接清除
			_ = r.client.Del(ctx, redisKey).Err()
			continue
		}

		if match(&entry) {
			if err := r.client.Del(ctx, redisKey).Err(); err != nil {
				return deleted, fmt.Errorf("redis del during scan: %w", err)
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis scan: %w", err)
	}
	return deleted, nil
}

// Ping 检查 Redis 可达性。
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
