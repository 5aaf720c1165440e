package biz

import (
	"github.com/kart-io/answercache/internal/pkg/textmath"
)

// categoryKeywords 一个类别及其关键词集合。
type categoryKeywords struct {
	category Category
	keywords map[string]struct{}
}

// CategoryClassifier 基于关键词把查询归入波动性类别。
// 按固定优先级 static > semi_static > dynamic > personalized 测试，
// 首个命中即返回；无命中默认 personalized（最保守，TTL 最短）。
type CategoryClassifier struct {
	ordered []categoryKeywords
}

// NewCategoryClassifier 创建分类器。关键词集合互不相交。
func NewCategoryClassifier() *CategoryClassifier {
	keywordSet := func(words ...string) map[string]struct{} {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		return set
	}

	return &CategoryClassifier{
		ordered: []categoryKeywords{
			{CategoryStatic, keywordSet(
				"hours", "price", "prices", "pricing", "cost", "fee", "fees",
				"location", "address", "menu", "policy", "policies",
			)},
			{CategorySemiStatic, keywordSet(
				"package", "packages", "deal", "deals", "offer", "offers",
				"special", "specials", "promotion", "promotions", "discount", "discounts",
			)},
			{CategoryDynamic, keywordSet(
				"available", "availability", "today", "tomorrow", "tonight",
				"now", "weekend", "currently",
			)},
			{CategoryPersonalized, keywordSet(
				"my", "order", "orders", "booking", "bookings", "reservation",
				"reservations", "appointment", "appointments", "account", "refund",
			)},
		},
	}
}

// Classify 返回查询文本所属的波动性类别。
func (c *CategoryClassifier) Classify(text string) Category {
	tokens := textmath.Tokenize(text)

	for _, ck := range c.ordered {
		for token := range tokens {
			if _, ok := ck.keywords[token]; ok {
				return ck.category
			}
		}
	}

	return CategoryPersonalized
}
