package biz

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/answercache/internal/answercache/metrics"
	"github.com/kart-io/answercache/pkg/cache"
)

// categoryPatternPrefix 失效模式中类别标记的前缀，如 "category:static"。
const categoryPatternPrefix = "category:"

// RemoteTier 可选的共享缓存层（如 Redis）。所有实现必须保证
// 单键操作在远端原子；错误由调用方决定降级策略。
type RemoteTier interface {
	// Get 按键读取条目；未命中返回 (nil, nil)。
	Get(ctx context.Context, key string) (*CacheEntry, error)
	// Set 写入条目并设置过期时间。
	Set(ctx context.Context, entry *CacheEntry, ttl time.Duration) error
	// Delete 删除指定键，返回删除数。
	Delete(ctx context.Context, key string) (int, error)
	// DeleteCategory 删除指定类别的全部条目，返回删除数。
	DeleteCategory(ctx context.Context, category Category) (int, error)
	// DeleteMatching 删除规范化查询文本包含 substr 的条目，返回删除数。
	DeleteMatching(ctx context.Context, substr string) (int, error)
	// Ping 检查远端可达性。
	Ping(ctx context.Context) error
}

// ExactCacheConfig 精确缓存配置。
type ExactCacheConfig struct {
	// Capacity 本地层容量上限。
	Capacity int
	// EvictFraction 超限时按创建时间驱逐的最旧条目比例。
	EvictFraction float64
}

// DefaultExactCacheConfig 返回默认配置。
func DefaultExactCacheConfig() *ExactCacheConfig {
	return &ExactCacheConfig{
		Capacity:      1000,
		EvictFraction: 0.10,
	}
}

// ExactCacheStore 双层精确缓存：进程内层 + 可选共享层。
// 共享层不可用时透明降级到本地层，绝不向上抛错。
type ExactCacheStore struct {
	local   *cache.MemoryCache[string, *CacheEntry]
	remote  RemoteTier // 可为 nil
	config  *ExactCacheConfig
	metrics *metrics.CacheMetrics
	clock   func() time.Time

	// writeMu 串行化驱逐与插入，保证容量上界在并发写入下成立
	writeMu sync.Mutex
}

// NewExactCacheStore 创建精确缓存。remote 传 nil 表示仅本地模式。
func NewExactCacheStore(remote RemoteTier, config *ExactCacheConfig, m *metrics.CacheMetrics) *ExactCacheStore {
	if config == nil {
		config = DefaultExactCacheConfig()
	}
	if config.Capacity <= 0 {
		config.Capacity = 1000
	}
	if config.EvictFraction <= 0 || config.EvictFraction > 1 {
		config.EvictFraction = 0.10
	}

	local := cache.NewMemoryCache[string, *CacheEntry]()
	local.AddIndex("category", func(e *CacheEntry) any { return string(e.Category) })

	return &ExactCacheStore{
		local:   local,
		remote:  remote,
		config:  config,
		metrics: m,
		clock:   time.Now,
	}
}

// Get 按键查找条目。先查共享层再查本地层；过期条目在读取路径上
// 顺带清除并按未命中处理。
func (s *ExactCacheStore) Get(ctx context.Context, key string) *CacheEntry {
	if key == "" {
		return nil
	}
	now := s.clock()

	if s.remote != nil {
		entry, err := s.remote.Get(ctx, key)
		if err != nil {
			s.degraded("get", err)
		} else if entry != nil {
			if entry.Expired(now) {
				// 远端 TTL 应已处理，防御本地时钟偏差
				_, _ = s.remote.Delete(ctx, key)
			} else {
				return entry
			}
		}
	}

	entry, ok := s.local.Get(key)
	if !ok {
		return nil
	}
	if entry.Expired(now) {
		s.local.Del(key)
		return nil
	}
	return entry
}

// Set 将条目写入两层，TTL 由条目类别决定。本地层超限时先清除
// 过期条目，仍超限则按创建时间驱逐最旧的一批。返回是否写入成功。
func (s *ExactCacheStore) Set(ctx context.Context, entry *CacheEntry) bool {
	if entry == nil || entry.Key == "" {
		return false
	}

	s.writeMu.Lock()
	s.evictIfNeeded()
	s.local.Set(entry.Key, entry)
	s.writeMu.Unlock()

	if s.remote != nil {
		ttl := entry.ExpiresAt.Sub(entry.CreatedAt)
		if err := s.remote.Set(ctx, entry, ttl); err != nil {
			s.degraded("set", err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordStore()
	}
	return true
}

// evictIfNeeded 在本地层达到容量上限时腾出空间。
func (s *ExactCacheStore) evictIfNeeded() {
	if s.local.Len() < s.config.Capacity {
		return
	}

	// 先清除过期条目
	now := s.clock()
	purged := s.local.DeleteFunc(func(_ string, e *CacheEntry) bool {
		return e.Expired(now)
	})
	if purged > 0 && s.metrics != nil {
		s.metrics.RecordEviction(purged)
	}
	if s.local.Len() < s.config.Capacity {
		return
	}

	// 按创建时间驱逐最旧的一批。选择简单性而非 LRU：
	// 条目本身带 TTL，精确的访问时序收益有限。
	entries := s.local.Filter(func(*CacheEntry) bool { return true })
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	evictCount := int(float64(s.config.Capacity) * s.config.EvictFraction)
	if evictCount < 1 {
		evictCount = 1
	}
	if evictCount > len(entries) {
		evictCount = len(entries)
	}
	for _, e := range entries[:evictCount] {
		s.local.Del(e.Key)
	}

	if s.metrics != nil {
		s.metrics.RecordEviction(evictCount)
	}
	logger.Debugw("evicted oldest cache entries", "count", evictCount, "capacity", s.config.Capacity)
}

// Invalidate 按模式删除两层中的匹配条目，返回删除总数。
// 模式形式：精确键、类别标记（"category:static"）或规范化查询
// 文本的子串。共享层失败只记录降级信号，不影响本地删除。
func (s *ExactCacheStore) Invalidate(ctx context.Context, pattern string) int {
	if pattern == "" {
		return 0
	}

	count := 0
	switch {
	case strings.HasPrefix(pattern, categoryPatternPrefix):
		category := Category(strings.TrimPrefix(pattern, categoryPatternPrefix))
		count += s.local.DeleteFunc(func(_ string, e *CacheEntry) bool {
			return e.Category == category
		})
		if s.remote != nil {
			n, err := s.remote.DeleteCategory(ctx, category)
			if err != nil {
				s.degraded("invalidate", err)
			} else {
				count += n
			}
		}

	default:
		// 精确键优先。键是否存在无法只靠本地层判断：条目可能由共享
		// 同一远端的其他实例写入，或已被本地驱逐，因此按键删除始终
		// 同时尝试两层。
		if _, ok := s.local.Get(pattern); ok {
			s.local.Del(pattern)
			count++
		}
		if s.remote != nil {
			n, err := s.remote.Delete(ctx, pattern)
			if err != nil {
				s.degraded("invalidate", err)
			} else {
				count += n
			}
		}
		if count > 0 {
			break
		}

		// 任一层都未按键命中时按子串匹配规范化查询文本
		count += s.local.DeleteFunc(func(_ string, e *CacheEntry) bool {
			return strings.Contains(e.Query, pattern)
		})
		if s.remote != nil {
			n, err := s.remote.DeleteMatching(ctx, pattern)
			if err != nil {
				s.degraded("invalidate", err)
			} else {
				count += n
			}
		}
	}

	if s.metrics != nil {
		s.metrics.RecordInvalidation(count)
	}
	return count
}

// Len 返回本地层条目数。
func (s *ExactCacheStore) Len() int {
	return s.local.Len()
}

// CategoryBreakdown 返回本地层各类别的条目数。
func (s *ExactCacheStore) CategoryBreakdown() map[string]int {
	counts, err := s.local.CountBy("category")
	if err != nil {
		return map[string]int{}
	}
	breakdown := make(map[string]int, len(counts))
	for k, v := range counts {
		if name, ok := k.(string); ok {
			breakdown[name] = v
		}
	}
	return breakdown
}

// RemoteHealthy 报告共享层是否配置且可达。
func (s *ExactCacheStore) RemoteHealthy(ctx context.Context) bool {
	if s.remote == nil {
		return false
	}
	return s.remote.Ping(ctx) == nil
}

// degraded 记录一次共享层降级。
func (s *ExactCacheStore) degraded(op string, err error) {
	logger.Warnw("shared cache tier degraded, falling back to local tier",
		"op", op,
		"error", err.Error(),
	)
	if s.metrics != nil {
		s.metrics.RecordDegradedRemote()
	}
}
