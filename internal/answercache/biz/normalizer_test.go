package biz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := NewNormalizer("test")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"小写化", "What Are Your HOURS", "what are your hours"},
		{"去除结尾问号", "what are your hours?", "what are your hours"},
		{"去除结尾感叹号", "great service!", "great service"},
		{"去除结尾句号", "tell me more.", "tell me more"},
		{"去除连续结尾标点", "really?!", "really"},
		{"折叠内部空白", "what   are\tyour  hours", "what are your hours"},
		{"去除首尾空白", "  hello world  ", "hello world"},
		{"空输入", "", ""},
		{"仅标点", "?!.", ""},
		{"内部标点保留", "what's your #1 deal", "what's your #1 deal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, n.Normalize(tt.input))
		})
	}
}

// 幂等性：normalize(normalize(x)) == normalize(x)
func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer("test")

	inputs := []string{
		"What are your hours?",
		"  PRICING for 10 guests!  ",
		"already normalized",
		"",
	}
	for _, input := range inputs {
		once := n.Normalize(input)
		assert.Equal(t, once, n.Normalize(once), "input: %q", input)
	}
}

// 仅大小写、首尾空白、结尾标点不同的文本必须规范化到同一结果
func TestNormalizeEquivalenceClasses(t *testing.T) {
	n := NewNormalizer("test")

	base := "what are your hours"
	variants := []string{
		"  WHAT ARE YOUR HOURS? ",
		"What are your hours.",
		"what are your hours!",
		"what  are  your  hours",
	}
	for _, v := range variants {
		assert.Equal(t, n.Normalize(base), n.Normalize(v), "variant: %q", v)
	}
}

func TestKey(t *testing.T) {
	n := NewNormalizer("test")

	// 等价输入生成相同键
	assert.Equal(t, n.Key("What are your hours?"), n.Key("what are your hours"))
	// 不同输入生成不同键
	assert.NotEqual(t, n.Key("hours"), n.Key("pricing"))
	// 空输入返回空键
	assert.Equal(t, "", n.Key("  ?! "))
}

// 不同 scope 的键空间相互隔离
func TestKeyScopeIsolation(t *testing.T) {
	a := NewNormalizer("tenant-a")
	b := NewNormalizer("tenant-b")

	assert.NotEqual(t, a.Key("what are your hours"), b.Key("what are your hours"))
}
