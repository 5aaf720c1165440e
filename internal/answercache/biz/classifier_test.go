package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	c := NewCategoryClassifier()

	tests := []struct {
		name     string
		input    string
		expected Category
	}{
		{"营业时间", "what are your hours", CategoryStatic},
		{"价格咨询", "what's your pricing for 10 guests", CategoryStatic},
		{"地址", "what is your address", CategoryStatic},
		{"政策", "what is your cancellation policy", CategoryStatic},
		{"套餐", "do you have any packages", CategorySemiStatic},
		{"促销", "any specials this month", CategorySemiStatic},
		{"可用性", "are you available tomorrow", CategoryDynamic},
		{"当日", "can i come in today", CategoryDynamic},
		{"订单查询", "tell me about my order #123", CategoryPersonalized},
		{"预约", "when is the appointment", CategoryPersonalized},
		{"无关键词默认", "hello there", CategoryPersonalized},
		{"空输入默认", "", CategoryPersonalized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(tt.input))
		})
	}
}

// 优先级固定：static > semi_static > dynamic > personalized，首个命中即返回
func TestClassifyPriority(t *testing.T) {
	c := NewCategoryClassifier()

	// 同时包含 static 与 dynamic 关键词时 static 优先
	assert.Equal(t, CategoryStatic, c.Classify("what are your hours today"))
	// 同时包含 semi_static 与 personalized 关键词时 semi_static 优先
	assert.Equal(t, CategorySemiStatic, c.Classify("is there a discount on my booking"))
	// 同时包含 dynamic 与 personalized 关键词时 dynamic 优先
	assert.Equal(t, CategoryDynamic, c.Classify("is my table available tonight"))
}

func TestCategoryTTL(t *testing.T) {
	assert.Equal(t, 86400, int(CategoryStatic.TTL().Seconds()))
	assert.Equal(t, 3600, int(CategorySemiStatic.TTL().Seconds()))
	assert.Equal(t, 300, int(CategoryDynamic.TTL().Seconds()))
	assert.Equal(t, 60, int(CategoryPersonalized.TTL().Seconds()))
	// 未知类别按最保守 TTL 处理
	assert.Equal(t, 60, int(Category("bogus").TTL().Seconds()))
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryStatic.Valid())
	assert.True(t, CategoryPersonalized.Valid())
	assert.False(t, Category("bogus").Valid())
}
