package component_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kart-io/answercache/pkg/component"
	"github.com/kart-io/answercache/pkg/component/ollama"
	"github.com/kart-io/answercache/pkg/component/redis"
)

// 所有组件配置都必须实现 ConfigOptions 接口。
var (
	_ component.ConfigOptions = (*redis.Options)(nil)
	_ component.ConfigOptions = (*ollama.Options)(nil)
)

func TestComponentOptionsLifecycle(t *testing.T) {
	options := []component.ConfigOptions{
		redis.NewOptions(),
		ollama.NewOptions(),
	}

	for _, opts := range options {
		assert.NoError(t, opts.Complete())
		assert.NoError(t, opts.Validate())
	}
}
