package biz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/answercache/internal/pkg/textmath"
)

// Embedder 嵌入服务协作方。
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// SimilarityIndexConfig 相似度索引配置。
type SimilarityIndexConfig struct {
	// Threshold 余弦相似度接受阈值。刻意偏高：错误的缓存答案
	// 比未命中更糟，宁可偏向漏报。
	Threshold float64
	// MaxRecords 索引记录上限，超限时淘汰最旧记录。
	MaxRecords int
	// EmbedTimeout 单次嵌入调用超时。
	EmbedTimeout time.Duration
}

// DefaultSimilarityIndexConfig 返回默认配置。
func DefaultSimilarityIndexConfig() *SimilarityIndexConfig {
	return &SimilarityIndexConfig{
		Threshold:    0.97,
		MaxRecords:   10000,
		EmbedTimeout: 5 * time.Second,
	}
}

// SimilarityIndex 基于嵌入的近似重复匹配器。命中必须同时满足三个
// 硬性安全门：意图相等、上下文指纹相等、相似度达到阈值；三者相互
// 独立，任何一个都不是软信号。
type SimilarityIndex struct {
	mu       sync.RWMutex
	records  []SimilarityRecord
	embedder Embedder
	config   *SimilarityIndexConfig
}

// NewSimilarityIndex 创建相似度索引。
func NewSimilarityIndex(embedder Embedder, config *SimilarityIndexConfig) *SimilarityIndex {
	if config == nil {
		config = DefaultSimilarityIndexConfig()
	}
	if config.Threshold <= 0 || config.Threshold > 1 {
		config.Threshold = 0.97
	}
	if config.MaxRecords <= 0 {
		config.MaxRecords = 10000
	}
	if config.EmbedTimeout <= 0 {
		config.EmbedTimeout = 5 * time.Second
	}
	return &SimilarityIndex{
		embedder: embedder,
		config:   config,
	}
}

// Store 嵌入查询文本并记录 {嵌入, 意图, 上下文指纹, 应答}。
func (idx *SimilarityIndex) Store(ctx context.Context, query, response, intent string, queryContext map[string]string) error {
	if query == "" {
		return nil
	}

	embedding, err := idx.embed(ctx, query)
	if err != nil {
		return fmt.Errorf("embed query for index: %w", err)
	}

	record := SimilarityRecord{
		Embedding:          embedding,
		Intent:             intent,
		ContextFingerprint: ContextFingerprint(queryContext),
		Response:           response,
		CreatedAt:          time.Now(),
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.records = append(idx.records, record)
	if len(idx.records) > idx.config.MaxRecords {
		// 淘汰最旧记录，records 按追加顺序即创建顺序
		overflow := len(idx.records) - idx.config.MaxRecords
		idx.records = idx.records[overflow:]
	}
	return nil
}

// Lookup 查找近似重复应答。过滤顺序固定：先意图相等，再上下文指纹
// 相等，最后在剩余候选中取最大余弦相似度并与阈值比较。廉价的精确
// 过滤先于昂贵的相似度计算，且无论嵌入多接近，正确性门都不可越过。
func (idx *SimilarityIndex) Lookup(ctx context.Context, query, intent string, queryContext map[string]string) (*Match, error) {
	if query == "" {
		return nil, nil
	}

	embedding, err := idx.embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query for lookup: %w", err)
	}

	fingerprint := ContextFingerprint(queryContext)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var (
		best     *SimilarityRecord
		bestSim  float64
		examined int
	)
	for i := range idx.records {
		r := &idx.records[i]
		// 意图不等：跨主题近似匹配被结构性排除
		if r.Intent != intent {
			continue
		}
		// 指纹不等：跨客户泄漏必须结构性不可能，而非小概率
		if r.ContextFingerprint != fingerprint {
			continue
		}
		examined++
		sim := textmath.CosineSimilarity(embedding, r.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = r
		}
	}

	if best == nil || bestSim < idx.config.Threshold {
		if examined > 0 {
			logger.Debugw("similarity candidates below threshold",
				"candidates", examined,
				"best_similarity", bestSim,
				"threshold", idx.config.Threshold,
			)
		}
		return nil, nil
	}

	return &Match{
		Response:   best.Response,
		Similarity: bestSim,
	}, nil
}

// Len 返回索引中的记录数。
func (idx *SimilarityIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.records)
}

// embed 带超时调用嵌入服务。
func (idx *SimilarityIndex) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, idx.config.EmbedTimeout)
	defer cancel()
	return idx.embedder.EmbedSingle(embedCtx, text)
}
