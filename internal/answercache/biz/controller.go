package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/answercache/internal/answercache/metrics"
	"github.com/kart-io/answercache/pkg/pool"
)

// CacheController 将规范化、分类、双层精确缓存、相似度索引与
// 置信度估计组合成编排器消费的单一查询/写入协议。
//
// 每个请求的状态机：LOOKUP_EXACT → LOOKUP_SIMILAR → MISS/GENERATE →
// STORE → DONE，无回退转移。层内任何失败都不会上抛：最坏情况是
// 一次未命中（更慢但正确），绝不返回错误或跨上下文的答案。
type CacheController struct {
	normalizer *Normalizer
	classifier *CategoryClassifier
	exact      *ExactCacheStore
	simIndex   *SimilarityIndex
	estimator  *ConfidenceEstimator
	writePool  *pool.Pool // 可为 nil：写入路径退化为同步执行
	metrics    *metrics.CacheMetrics
}

// NewCacheController 创建控制器。由组合根显式构造并持有，
// 生命周期与进程一致。
func NewCacheController(
	normalizer *Normalizer,
	classifier *CategoryClassifier,
	exact *ExactCacheStore,
	simIndex *SimilarityIndex,
	estimator *ConfidenceEstimator,
	writePool *pool.Pool,
	m *metrics.CacheMetrics,
) *CacheController {
	return &CacheController{
		normalizer: normalizer,
		classifier: classifier,
		exact:      exact,
		simIndex:   simIndex,
		estimator:  estimator,
		writePool:  writePool,
		metrics:    m,
	}
}

// Handle 生成前查询：先精确缓存，后相似度索引，最后未命中。
// 未命中时由编排器生成应答并调用 Store 回填。
func (c *CacheController) Handle(ctx context.Context, query, intent string, queryContext map[string]string) *Response {
	normalized := c.normalizer.Normalize(query)
	if normalized == "" {
		// 空查询按无操作处理，不是错误
		return &Response{Category: CategoryPersonalized}
	}

	key := c.normalizer.Key(query)
	category := c.classifier.Classify(normalized)

	// 第一层：精确缓存
	if entry := c.exact.Get(ctx, key); entry != nil {
		c.metrics.RecordLookup(true, false)
		logger.Debugw("exact cache hit", "key", key, "category", entry.Category)
		return &Response{
			Response: entry.Response,
			Cached:   true,
			Category: entry.Category,
			Key:      key,
		}
	}

	// 第二层：相似度索引。嵌入失败降级为未命中，继续流程。
	match, err := c.simIndex.Lookup(ctx, normalized, intent, queryContext)
	if err != nil {
		c.metrics.RecordEmbedError()
		logger.Warnw("similarity lookup degraded to miss", "error", err.Error())
	}
	if match != nil {
		c.metrics.RecordLookup(false, true)
		logger.Debugw("similarity cache hit", "similarity", match.Similarity, "intent", intent)
		similarity := match.Similarity
		return &Response{
			Response:   match.Response,
			Cached:     true,
			Similarity: &similarity,
			Category:   category,
			Key:        key,
		}
	}

	c.metrics.RecordLookup(false, false)
	return &Response{
		Cached:   false,
		Category: category,
		Key:      key,
	}
}

// Store 生成后回填：写入精确缓存（两层）并异步写入相似度索引。
// 写入池不可用时退化为同步写入；任何失败只记录日志。
func (c *CacheController) Store(ctx context.Context, query, response, intent string, queryContext map[string]string) {
	normalized := c.normalizer.Normalize(query)
	if normalized == "" || response == "" {
		return
	}

	key := c.normalizer.Key(query)
	category := c.classifier.Classify(normalized)
	now := time.Now()

	entry := &CacheEntry{
		Key:                key,
		Query:              normalized,
		Category:           category,
		Response:           response,
		Intent:             intent,
		ContextFingerprint: ContextFingerprint(queryContext),
		CreatedAt:          now,
		ExpiresAt:          now.Add(category.TTL()),
	}
	c.exact.Set(ctx, entry)

	// 相似度索引写入走嵌入调用，放入写回池避免阻塞请求路径
	indexWrite := func() {
		// 请求上下文可能已结束，索引写入用独立超时
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.simIndex.Store(writeCtx, normalized, response, intent, queryContext); err != nil {
			c.metrics.RecordEmbedError()
			logger.Warnw("similarity index write failed", "error", err.Error())
		}
	}

	if c.writePool != nil {
		if err := c.writePool.Submit(indexWrite); err != nil {
			logger.Debugw("write pool rejected index write, running inline", "error", err.Error())
			indexWrite()
		}
		return
	}
	indexWrite()
}

// Invalidate 按模式删除缓存条目，返回删除数。
func (c *CacheController) Invalidate(ctx context.Context, pattern string) int {
	return c.exact.Invalidate(ctx, pattern)
}

// PredictConfidence 预测期望应答质量，返回值在 [0,1]。
func (c *CacheController) PredictConfidence(ctx context.Context, message, intent string, queryContext map[string]string) float64 {
	return c.estimator.Predict(ctx, message, intent, queryContext)
}

// RecordQualitySample 记录一次生成事件的质量标签。
func (c *CacheController) RecordQualitySample(ctx context.Context, message, intent string, queryContext map[string]string, label float64) {
	if err := c.estimator.RecordSample(ctx, message, intent, queryContext, label); err != nil {
		logger.Warnw("failed to record quality sample", "error", err.Error())
	}
}

// Stats 返回缓存层运行状态。
func (c *CacheController) Stats(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"entry_count":        c.exact.Len(),
		"similarity_records": c.simIndex.Len(),
		"hit_rate":           c.metrics.HitRate(),
		"category_breakdown": c.exact.CategoryBreakdown(),
		"estimator_trained":  c.estimator.Trained(),
		"remote_healthy":     c.exact.RemoteHealthy(ctx),
		"counters":           c.metrics.Stats(),
	}
}
