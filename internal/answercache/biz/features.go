package biz

import (
	"strings"
	"unicode"
)

// FeatureSchemaVersion 特征布局版本号。特征的数量、顺序或语义
// 变化时必须递增，使旧权重向量不会套用在新布局上。
const FeatureSchemaVersion = 1

// 特征向量固定布局。权重向量的维度跨部署保持稳定。
const (
	featLength = iota // 归一化文本长度
	featHasDigit
	featHasQuestion
	featWordCount // 归一化词数
	featIntentPricing
	featIntentBooking
	featIntentHours
	featIntentOther
	featHasContext
	featContextSize // 归一化上下文键数
	featDomainKeyword

	featureCount
)

// 归一化基准：超过基准的取值截断为 1。
const (
	maxLengthNorm      = 200.0
	maxWordCountNorm   = 30.0
	maxContextSizeNorm = 8.0
)

// domainKeywords 业务域关键词，出现则置位 featDomainKeyword。
var domainKeywords = []string{
	"price", "pricing", "cost", "book", "booking", "reservation",
	"cancel", "refund", "hours", "open", "available", "appointment",
}

// ExtractFeatures 从消息提取固定顺序的数值特征向量。
// 所有取值归一化到 [0,1]。
func ExtractFeatures(message, intent string, queryContext map[string]string) []float64 {
	features := make([]float64, featureCount)

	lower := strings.ToLower(message)
	words := strings.Fields(lower)

	features[featLength] = capRatio(float64(len(message)), maxLengthNorm)
	features[featHasDigit] = boolFeature(strings.ContainsFunc(message, unicode.IsDigit))
	features[featHasQuestion] = boolFeature(strings.Contains(message, "?"))
	features[featWordCount] = capRatio(float64(len(words)), maxWordCountNorm)

	switch intent {
	case "pricing":
		features[featIntentPricing] = 1
	case "booking":
		features[featIntentBooking] = 1
	case "hours":
		features[featIntentHours] = 1
	default:
		features[featIntentOther] = 1
	}

	features[featHasContext] = boolFeature(len(queryContext) > 0)
	features[featContextSize] = capRatio(float64(len(queryContext)), maxContextSizeNorm)

	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			features[featDomainKeyword] = 1
			break
		}
	}

	return features
}

func capRatio(v, max float64) float64 {
	if max <= 0 {
		return 0
	}
	r := v / max
	if r > 1 {
		return 1
	}
	return r
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
