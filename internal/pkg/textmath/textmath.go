// Package textmath 提供缓存层使用的文本与向量计算工具函数。
package textmath

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strings"
)

// CosineSimilarity 计算两个向量的余弦相似度。
// 返回值范围为 [-1, 1]，1 表示完全相同，-1 表示完全相反。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// HashKey 计算字符串的 SHA256 哈希值（十六进制编码）。
func HashKey(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:])
}

var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Tokenize 将文本拆分为小写词元集合。
func Tokenize(s string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, w := range wordRegex.FindAllString(strings.ToLower(s), -1) {
		tokens[w] = struct{}{}
	}
	return tokens
}

// TokenOverlap 计算两段文本的词元 Jaccard 重叠度，范围 [0, 1]。
func TokenOverlap(a, b string) float64 {
	ta := Tokenize(a)
	tb := Tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for w := range ta {
		if _, ok := tb[w]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection

	return float64(intersection) / float64(union)
}

// Clamp01 将值限制在 [0, 1] 范围内。
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampAbs 将值限制在 [-bound, bound] 范围内。
func ClampAbs(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}
