package biz

import (
	"sort"
	"strings"
	"time"

	"github.com/kart-io/answercache/internal/pkg/textmath"
)

// Category 表示查询内容的波动性类别，决定缓存有效期。
type Category string

const (
	// CategoryStatic 长期稳定内容（营业时间、价格表、政策）。
	CategoryStatic Category = "static"
	// CategorySemiStatic 偶尔变动的内容（套餐、促销）。
	CategorySemiStatic Category = "semi_static"
	// CategoryDynamic 频繁变动的内容（当日可用性）。
	CategoryDynamic Category = "dynamic"
	// CategoryPersonalized 用户相关内容（订单、预约、账户）。
	CategoryPersonalized Category = "personalized"
)

// TTL 返回类别对应的缓存有效期。波动性越高有效期越短。
func (c Category) TTL() time.Duration {
	switch c {
	case CategoryStatic:
		return 86400 * time.Second
	case CategorySemiStatic:
		return 3600 * time.Second
	case CategoryDynamic:
		return 300 * time.Second
	case CategoryPersonalized:
		return 60 * time.Second
	default:
		// 未知类别按最保守处理
		return 60 * time.Second
	}
}

// Valid 报告类别是否为已知类别。
func (c Category) Valid() bool {
	switch c {
	case CategoryStatic, CategorySemiStatic, CategoryDynamic, CategoryPersonalized:
		return true
	}
	return false
}

// CacheEntry 精确缓存条目。写入后不可变，只能被替换或过期删除。
type CacheEntry struct {
	Key                string    `json:"key"`
	Query              string    `json:"query"` // 规范化后的查询文本
	Category           Category  `json:"category"`
	Response           string    `json:"response"`
	Intent             string    `json:"intent"`
	ContextFingerprint string    `json:"context_fingerprint"`
	CreatedAt          time.Time `json:"created_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// Expired 报告条目在 now 时刻是否已过期。
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// SimilarityRecord 相似度索引记录。相似度不落盘，每次查询重新计算。
type SimilarityRecord struct {
	Embedding          []float32
	Intent             string
	ContextFingerprint string
	Response           string
	CreatedAt          time.Time
}

// Match 相似度查询命中结果。
type Match struct {
	Response   string
	Similarity float64
}

// QualitySample 质量样本：一次生成事件的特征向量与观测质量标签。
// 只追加，按滚动窗口裁剪。
type QualitySample struct {
	Message   string
	Intent    string
	Features  []float64
	Label     float64 // [0,1]
	CreatedAt time.Time
}

// Response 控制器对编排器暴露的查询结果。
type Response struct {
	Response   string   `json:"response"`
	Cached     bool     `json:"cached"`
	Similarity *float64 `json:"similarity"`
	Category   Category `json:"category"`
	Key        string   `json:"key"`
}

// ContextFingerprint 从客户/会话上下文派生稳定指纹。
// 键按字典序排序后拼接哈希，保证与 map 遍历顺序无关。
func ContextFingerprint(context map[string]string) string {
	if len(context) == 0 {
		return textmath.HashKey("")
	}

	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(context[k])
	}
	return textmath.HashKey(sb.String())
}
