// Package metrics 提供缓存服务的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// CacheMetrics 缓存服务业务指标。
type CacheMetrics struct {
	// 查询指标
	lookupsTotal   uint64 // 总查询次数
	exactHits      uint64 // 精确缓存命中次数
	similarityHits uint64 // 相似缓存命中次数
	misses         uint64 // 未命中次数

	// 写入与失效指标
	storesTotal        uint64 // 缓存写入次数
	invalidationsTotal uint64 // 失效删除的条目数
	evictionsTotal     uint64 // 容量驱逐的条目数

	// 降级指标
	degradedRemoteCalls uint64 // 共享层降级次数
	embedErrors         uint64 // 嵌入调用失败次数

	// 估计器指标
	trainingRuns     uint64 // 训练执行次数
	trainingFailures uint64 // 训练失败次数（样本不足除外）
	samplesRecorded  uint64 // 质量样本记录次数

	startTime time.Time
}

// New 创建指标实例。
func New() *CacheMetrics {
	return &CacheMetrics{
		startTime: time.Now(),
	}
}

// RecordLookup 记录一次查询及其结果。
func (m *CacheMetrics) RecordLookup(exactHit, similarityHit bool) {
	atomic.AddUint64(&m.lookupsTotal, 1)
	switch {
	case exactHit:
		atomic.AddUint64(&m.exactHits, 1)
	case similarityHit:
		atomic.AddUint64(&m.similarityHits, 1)
	default:
		atomic.AddUint64(&m.misses, 1)
	}
}

// RecordStore 记录一次缓存写入。
func (m *CacheMetrics) RecordStore() {
	atomic.AddUint64(&m.storesTotal, 1)
}

// RecordInvalidation 记录失效删除的条目数。
func (m *CacheMetrics) RecordInvalidation(count int) {
	if count > 0 {
		atomic.AddUint64(&m.invalidationsTotal, uint64(count))
	}
}

// RecordEviction 记录容量驱逐的条目数。
func (m *CacheMetrics) RecordEviction(count int) {
	if count > 0 {
		atomic.AddUint64(&m.evictionsTotal, uint64(count))
	}
}

// RecordDegradedRemote 记录一次共享层降级。
func (m *CacheMetrics) RecordDegradedRemote() {
	atomic.AddUint64(&m.degradedRemoteCalls, 1)
}

// RecordEmbedError 记录一次嵌入调用失败。
func (m *CacheMetrics) RecordEmbedError() {
	atomic.AddUint64(&m.embedErrors, 1)
}

// RecordTraining 记录一次训练执行。
func (m *CacheMetrics) RecordTraining(err error) {
	atomic.AddUint64(&m.trainingRuns, 1)
	if err != nil {
		atomic.AddUint64(&m.trainingFailures, 1)
	}
}

// RecordSample 记录一次质量样本写入。
func (m *CacheMetrics) RecordSample() {
	atomic.AddUint64(&m.samplesRecorded, 1)
}

// HitRate 返回缓存命中率（命中 / 已完成查询）。
func (m *CacheMetrics) HitRate() float64 {
	hits := atomic.LoadUint64(&m.exactHits) + atomic.LoadUint64(&m.similarityHits)
	total := hits + atomic.LoadUint64(&m.misses)
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Export 导出 Prometheus 格式指标。
func (m *CacheMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	counter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n", prefix, name, value))
		sb.WriteString("\n")
	}

	counter("lookups_total", "Total number of cache lookups.", atomic.LoadUint64(&m.lookupsTotal))
	counter("exact_hits_total", "Number of exact cache hits.", atomic.LoadUint64(&m.exactHits))
	counter("similarity_hits_total", "Number of similarity cache hits.", atomic.LoadUint64(&m.similarityHits))
	counter("misses_total", "Number of cache misses.", atomic.LoadUint64(&m.misses))
	counter("stores_total", "Number of cache stores.", atomic.LoadUint64(&m.storesTotal))
	counter("invalidations_total", "Number of entries removed by invalidation.", atomic.LoadUint64(&m.invalidationsTotal))
	counter("evictions_total", "Number of entries removed by capacity eviction.", atomic.LoadUint64(&m.evictionsTotal))
	counter("degraded_remote_calls_total", "Number of shared-tier calls that degraded to local-only.", atomic.LoadUint64(&m.degradedRemoteCalls))
	counter("embed_errors_total", "Number of failed embedding calls.", atomic.LoadUint64(&m.embedErrors))
	counter("training_runs_total", "Number of estimator training runs.", atomic.LoadUint64(&m.trainingRuns))
	counter("training_failures_total", "Number of failed estimator training runs.", atomic.LoadUint64(&m.trainingFailures))
	counter("samples_recorded_total", "Number of quality samples recorded.", atomic.LoadUint64(&m.samplesRecorded))

	sb.WriteString(fmt.Sprintf("# HELP %s_hit_rate Cache hit rate (0-1).\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_hit_rate gauge\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_hit_rate %.4f\n", prefix, m.HitRate()))
	sb.WriteString("\n")

	uptime := time.Since(m.startTime).Seconds()
	sb.WriteString(fmt.Sprintf("# HELP %s_uptime_seconds Service uptime in seconds.\n", prefix))
	sb.WriteString(fmt.Sprintf("# TYPE %s_uptime_seconds gauge\n", prefix))
	sb.WriteString(fmt.Sprintf("%s_uptime_seconds %.2f\n", prefix, uptime))
	sb.WriteString("\n")

	return sb.String()
}

// Stats 返回当前统计信息（用于 API）。
func (m *CacheMetrics) Stats() map[string]interface{} {
	return map[string]interface{}{
		"lookups": map[string]interface{}{
			"total":           atomic.LoadUint64(&m.lookupsTotal),
			"exact_hits":      atomic.LoadUint64(&m.exactHits),
			"similarity_hits": atomic.LoadUint64(&m.similarityHits),
			"misses":          atomic.LoadUint64(&m.misses),
			"hit_rate":        m.HitRate(),
		},
		"writes": map[string]interface{}{
			"stores":        atomic.LoadUint64(&m.storesTotal),
			"invalidations": atomic.LoadUint64(&m.invalidationsTotal),
			"evictions":     atomic.LoadUint64(&m.evictionsTotal),
		},
		"degraded": map[string]interface{}{
			"remote_calls": atomic.LoadUint64(&m.degradedRemoteCalls),
			"embed_errors": atomic.LoadUint64(&m.embedErrors),
		},
		"estimator": map[string]interface{}{
			"training_runs":     atomic.LoadUint64(&m.trainingRuns),
			"training_failures": atomic.LoadUint64(&m.trainingFailures),
			"samples_recorded":  atomic.LoadUint64(&m.samplesRecorded),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset 重置所有指标（仅用于测试）。
func (m *CacheMetrics) Reset() {
	atomic.StoreUint64(&m.lookupsTotal, 0)
	atomic.StoreUint64(&m.exactHits, 0)
	atomic.StoreUint64(&m.similarityHits, 0)
	atomic.StoreUint64(&m.misses, 0)
	atomic.StoreUint64(&m.storesTotal, 0)
	atomic.StoreUint64(&m.invalidationsTotal, 0)
	atomic.StoreUint64(&m.evictionsTotal, 0)
	atomic.StoreUint64(&m.degradedRemoteCalls, 0)
	atomic.StoreUint64(&m.embedErrors, 0)
	atomic.StoreUint64(&m.trainingRuns, 0)
	atomic.StoreUint64(&m.trainingFailures, 0)
	atomic.StoreUint64(&m.samplesRecorded, 0)
	m.startTime = time.Now()
}
