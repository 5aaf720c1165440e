package biz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 返回预配置向量的确定性嵌入器。
type fakeEmbedder struct {
	vectors map[string][]float32
	failing bool
	calls   int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: make(map[string][]float32)}
}

var errEmbedDown = errors.New("embedding provider unreachable")

func (f *fakeEmbedder) EmbedSingle(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failing {
		return nil, errEmbedDown
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	// 未配置的文本返回正交的独立向量
	return []float32{0, 0, 0, 1}, nil
}

func TestSimilarityIndexStoreAndLookup(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	embedder.vectors["what are your hours"] = []float32{1, 0, 0, 0}
	embedder.vectors["what are your opening hours"] = []float32{0.999, 0.04, 0, 0}

	idx := NewSimilarityIndex(embedder, nil)
	qctx := map[string]string{"customer_id": "A"}

	require.NoError(t, idx.Store(ctx, "what are your hours", "Open 7 days, 10am-10pm.", "hours", qctx))
	assert.Equal(t, 1, idx.Len())

	// 近似文本在同意图同上下文下命中
	match, err := idx.Lookup(ctx, "what are your opening hours", "hours", qctx)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, "Open 7 days, 10am-10pm.", match.Response)
	assert.GreaterOrEqual(t, match.Similarity, 0.97)
}

// 意图隔离：pricing 下存储的记录无论文本多相似都不会在 booking 下返回
func TestSimilarityIndexIntentIsolation(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	embedder.vectors["how much is a table"] = []float32{1, 0, 0, 0}

	idx := NewSimilarityIndex(embedder, nil)
	qctx := map[string]string{"customer_id": "A"}

	require.NoError(t, idx.Store(ctx, "how much is a table", "A table is $50.", "pricing", qctx))

	// 完全相同的文本（相似度 1.0），不同意图
	match, err := idx.Lookup(ctx, "how much is a table", "booking", qctx)
	require.NoError(t, err)
	assert.Nil(t, match)

	// 同意图则命中
	match, err = idx.Lookup(ctx, "how much is a table", "pricing", qctx)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.InDelta(t, 1.0, match.Similarity, 0.0001)
}

// 无泄漏：上下文 A 存储的记录即使相似度 1.0 也不会在上下文 B 下返回
func TestSimilarityIndexContextIsolation(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	embedder.vectors["show my booking"] = []float32{1, 0, 0, 0}

	idx := NewSimilarityIndex(embedder, nil)

	require.NoError(t, idx.Store(ctx, "show my booking", "Your booking is on Friday.", "booking",
		map[string]string{"customer_id": "A"}))

	match, err := idx.Lookup(ctx, "show my booking", "booking",
		map[string]string{"customer_id": "B"})
	require.NoError(t, err)
	assert.Nil(t, match)

	match, err = idx.Lookup(ctx, "show my booking", "booking",
		map[string]string{"customer_id": "A"})
	require.NoError(t, err)
	require.NotNil(t, match)
}

// 阈值以下的最优候选被拒绝
func TestSimilarityIndexThreshold(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	embedder.vectors["do you serve lunch"] = []float32{1, 0, 0, 0}
	embedder.vectors["do you have parking"] = []float32{0.8, 0.6, 0, 0} // 相似度 0.8

	idx := NewSimilarityIndex(embedder, nil)
	qctx := map[string]string{}

	require.NoError(t, idx.Store(ctx, "do you serve lunch", "Yes, from 12pm.", "other", qctx))

	match, err := idx.Lookup(ctx, "do you have parking", "other", qctx)
	require.NoError(t, err)
	assert.Nil(t, match)
}

func TestSimilarityIndexEmbedFailure(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	idx := NewSimilarityIndex(embedder, nil)

	embedder.failing = true

	// 存储与查询都返回显式错误，由调用方决定降级
	assert.Error(t, idx.Store(ctx, "hello", "hi", "other", nil))
	_, err := idx.Lookup(ctx, "hello", "other", nil)
	assert.Error(t, err)
}

func TestSimilarityIndexEmptyQuery(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	idx := NewSimilarityIndex(embedder, nil)

	// 空查询是无操作，不触发嵌入调用
	require.NoError(t, idx.Store(ctx, "", "x", "other", nil))
	match, err := idx.Lookup(ctx, "", "other", nil)
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Equal(t, 0, embedder.calls)
}

// 超过容量时最旧记录被淘汰
func TestSimilarityIndexCapacity(t *testing.T) {
	ctx := context.Background()
	embedder := newFakeEmbedder()
	idx := NewSimilarityIndex(embedder, &SimilarityIndexConfig{
		Threshold:  0.97,
		MaxRecords: 10,
	})

	for i := 0; i < 25; i++ {
		require.NoError(t, idx.Store(ctx, "query", "response", "other", nil))
	}
	assert.Equal(t, 10, idx.Len())
}

func TestContextFingerprint(t *testing.T) {
	// 与 map 遍历顺序无关
	a := ContextFingerprint(map[string]string{"customer_id": "A", "channel": "sms"})
	b := ContextFingerprint(map[string]string{"channel": "sms", "customer_id": "A"})
	assert.Equal(t, a, b)

	// 不同上下文产生不同指纹
	c := ContextFingerprint(map[string]string{"customer_id": "B", "channel": "sms"})
	assert.NotEqual(t, a, c)

	// 空与 nil 上下文等价
	assert.Equal(t, ContextFingerprint(nil), ContextFingerprint(map[string]string{}))
}
