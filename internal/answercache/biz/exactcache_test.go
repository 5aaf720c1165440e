package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemoteTier 内存实现的共享层，可切换为故障模式。
type fakeRemoteTier struct {
	mu      sync.Mutex
	entries map[string]*CacheEntry
	failing bool
}

func newFakeRemoteTier() *fakeRemoteTier {
	return &fakeRemoteTier{entries: make(map[string]*CacheEntry)}
}

var errRemoteDown = errors.New("remote tier unreachable")

func (f *fakeRemoteTier) Get(_ context.Context, key string) (*CacheEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errRemoteDown
	}
	return f.entries[key], nil
}

func (f *fakeRemoteTier) Set(_ context.Context, entry *CacheEntry, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errRemoteDown
	}
	f.entries[entry.Key] = entry
	return nil
}

func (f *fakeRemoteTier) Delete(_ context.Context, key string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errRemoteDown
	}
	if _, ok := f.entries[key]; ok {
		delete(f.entries, key)
		return 1, nil
	}
	return 0, nil
}

func (f *fakeRemoteTier) DeleteCategory(_ context.Context, category Category) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errRemoteDown
	}
	count := 0
	for k, e := range f.entries {
		if e.Category == category {
			delete(f.entries, k)
			count++
		}
	}
	return count, nil
}

func (f *fakeRemoteTier) DeleteMatching(_ context.Context, substr string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, errRemoteDown
	}
	count := 0
	for k, e := range f.entries {
		if strings.Contains(e.Query, substr) {
			delete(f.entries, k)
			count++
		}
	}
	return count, nil
}

func (f *fakeRemoteTier) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errRemoteDown
	}
	return nil
}

func (f *fakeRemoteTier) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

func testEntry(key, query string, category Category, now time.Time) *CacheEntry {
	return &CacheEntry{
		Key:       key,
		Query:     query,
		Category:  category,
		Response:  "response for " + query,
		Intent:    "other",
		CreatedAt: now,
		ExpiresAt: now.Add(category.TTL()),
	}
}

func TestExactCacheSetAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewExactCacheStore(nil, nil, nil)

	now := time.Now()
	entry := testEntry("k1", "what are your hours", CategoryStatic, now)
	require.True(t, s.Set(ctx, entry))

	got := s.Get(ctx, "k1")
	require.NotNil(t, got)
	// 命中返回原始未变更的载荷
	assert.Equal(t, entry.Response, got.Response)
	assert.Equal(t, CategoryStatic, got.Category)

	assert.Nil(t, s.Get(ctx, "missing"))
	assert.Nil(t, s.Get(ctx, ""))
}

// TTL 正确性：t >= expires_at 的读取返回未命中并清除条目
func TestExactCacheLazyExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewExactCacheStore(nil, nil, nil)

	now := time.Now()
	entry := testEntry("k1", "hours", CategoryPersonalized, now)
	s.Set(ctx, entry)

	// 过期前可读
	require.NotNil(t, s.Get(ctx, "k1"))

	// 把时钟拨到过期之后
	s.clock = func() time.Time { return now.Add(61 * time.Second) }
	assert.Nil(t, s.Get(ctx, "k1"))
	// 惰性清除：条目已被删除
	assert.Equal(t, 0, s.Len())
}

// 驱逐上界：插入超过容量后条目数不超过容量
func TestExactCacheEvictionBound(t *testing.T) {
	ctx := context.Background()
	s := NewExactCacheStore(nil, &ExactCacheConfig{Capacity: 1000, EvictFraction: 0.10}, nil)

	base := time.Now()
	for i := 0; i < 1500; i++ {
		entry := testEntry(
			fmt.Sprintf("key-%04d", i),
			fmt.Sprintf("query %d", i),
			CategoryStatic,
			base.Add(time.Duration(i)*time.Millisecond),
		)
		s.Set(ctx, entry)
		assert.LessOrEqual(t, s.Len(), 1000)
	}

	// 驱逐按创建时间：最新条目仍在
	assert.NotNil(t, s.Get(ctx, "key-1499"))
	// 最旧条目已被驱逐
	assert.Nil(t, s.Get(ctx, "key-0000"))
}

func TestExactCacheInvalidateExactKey(t *testing.T) {
	ctx := context.Background()
	s := NewExactCacheStore(nil, nil, nil)
	now := time.Now()

	s.Set(ctx, testEntry("k1", "hours", CategoryStatic, now))
	s.Set(ctx, testEntry("k2", "pricing", CategoryStatic, now))

	assert.Equal(t, 1, s.Invalidate(ctx, "k1"))
	assert.Nil(t, s.Get(ctx, "k1"))
	assert.NotNil(t, s.Get(ctx, "k2"))
}

func TestExactCacheInvalidateCategory(t *testing.T) {
	ctx := context.Background()
	s := NewExactCacheStore(nil, nil, nil)
	now := time.Now()

	s.Set(ctx, testEntry("k1", "hours", CategoryStatic, now))
	s.Set(ctx, testEntry("k2", "pricing table", CategoryStatic, now))
	s.Set(ctx, testEntry("k3", "available tomorrow", CategoryDynamic, now))

	// 价格变更场景：一次失效所有 static 缓存应答
	assert.Equal(t, 2, s.Invalidate(ctx, "category:static"))
	assert.Nil(t, s.Get(ctx, "k1"))
	assert.Nil(t, s.Get(ctx, "k2"))
	assert.NotNil(t, s.Get(ctx, "k3"))
}

func TestExactCacheInvalidateSubstring(t *testing.T) {
	ctx := context.Background()
	s := NewExactCacheStore(nil, nil, nil)
	now := time.Now()

	s.Set(ctx, testEntry("k1", "what is your pricing", CategoryStatic, now))
	s.Set(ctx, testEntry("k2", "pricing for groups", CategoryStatic, now))
	s.Set(ctx, testEntry("k3", "what are your hours", CategoryStatic, now))

	assert.Equal(t, 2, s.Invalidate(ctx, "pricing"))
	assert.NotNil(t, s.Get(ctx, "k3"))

	// 空模式是无操作
	assert.Equal(t, 0, s.Invalidate(ctx, ""))
}

func TestExactCacheRemoteTier(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemoteTier()
	s := NewExactCacheStore(remote, nil, nil)
	now := time.Now()

	entry := testEntry("k1", "hours", CategoryStatic, now)
	s.Set(ctx, entry)

	// 写入同时到达共享层
	stored, err := remote.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, stored)

	// 本地层清空后仍可从共享层命中
	s.local.Clear()
	got := s.Get(ctx, "k1")
	require.NotNil(t, got)
	assert.Equal(t, entry.Response, got.Response)
}

// 仅存在于共享层的键（其他实例写入或本地已驱逐）也能按键失效
func TestExactCacheInvalidateRemoteOnlyKey(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemoteTier()
	s := NewExactCacheStore(remote, nil, nil)
	now := time.Now()

	s.Set(ctx, testEntry("remote-only-key", "what are your hours", CategoryStatic, now))
	// 模拟条目只剩共享层持有
	s.local.Clear()

	assert.Equal(t, 1, s.Invalidate(ctx, "remote-only-key"))

	stored, err := remote.Get(ctx, "remote-only-key")
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Nil(t, s.Get(ctx, "remote-only-key"))
}

// 共享层不可用时透明降级到本地层，绝不向上抛错
func TestExactCacheRemoteDegradation(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemoteTier()
	s := NewExactCacheStore(remote, nil, nil)
	now := time.Now()

	remote.setFailing(true)

	entry := testEntry("k1", "hours", CategoryStatic, now)
	require.True(t, s.Set(ctx, entry))

	// 读路径降级到本地层
	got := s.Get(ctx, "k1")
	require.NotNil(t, got)
	assert.Equal(t, entry.Response, got.Response)

	// 失效路径同样只在本地生效，不报错
	assert.Equal(t, 1, s.Invalidate(ctx, "k1"))
	assert.False(t, s.RemoteHealthy(ctx))
}

func TestExactCacheCategoryBreakdown(t *testing.T) {
	ctx := context.Background()
	s := NewExactCacheStore(nil, nil, nil)
	now := time.Now()

	s.Set(ctx, testEntry("k1", "hours", CategoryStatic, now))
	s.Set(ctx, testEntry("k2", "pricing", CategoryStatic, now))
	s.Set(ctx, testEntry("k3", "available now", CategoryDynamic, now))

	breakdown := s.CategoryBreakdown()
	assert.Equal(t, 2, breakdown["static"])
	assert.Equal(t, 1, breakdown["dynamic"])
}

// 并发读写驱逐下不 panic 且容量上界保持
func TestExactCacheConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewExactCacheStore(nil, &ExactCacheConfig{Capacity: 100, EvictFraction: 0.10}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			now := time.Now()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i)
				s.Set(ctx, testEntry(key, "query "+key, CategoryStatic, now))
				s.Get(ctx, key)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 100)
}
