package biz

import (
	"strings"

	"github.com/kart-io/answercache/internal/pkg/textmath"
)

// Normalizer 将原始查询文本规范化为稳定的缓存键。
// 规范化只消除大小写、首尾空白、内部连续空白和结尾标点差异，
// 不做同义词折叠，也不调整词序。
type Normalizer struct {
	scope string
}

// NewNormalizer 创建规范化器。scope 用于隔离不同租户/部署的键空间。
func NewNormalizer(scope string) *Normalizer {
	return &Normalizer{scope: scope}
}

// Normalize 返回规范化文本。满足幂等性：
// Normalize(Normalize(x)) == Normalize(x)。
func (n *Normalizer) Normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.TrimRight(s, "?!.")
	s = strings.TrimSpace(s)
	// 折叠内部连续空白
	return strings.Join(strings.Fields(s), " ")
}

// Key 返回规范化文本对应的缓存键：hash(scope + 规范化文本)。
// 空文本返回空键，由调用方按无操作处理。
func (n *Normalizer) Key(text string) string {
	normalized := n.Normalize(text)
	if normalized == "" {
		return ""
	}
	return textmath.HashKey(n.scope + "|" + normalized)
}
