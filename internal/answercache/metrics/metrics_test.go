package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordLookup(t *testing.T) {
	m := New()

	m.RecordLookup(true, false)
	m.RecordLookup(false, true)
	m.RecordLookup(false, false)
	m.RecordLookup(false, false)

	stats := m.Stats()
	lookups := stats["lookups"].(map[string]interface{})
	assert.Equal(t, uint64(4), lookups["total"])
	assert.Equal(t, uint64(1), lookups["exact_hits"])
	assert.Equal(t, uint64(1), lookups["similarity_hits"])
	assert.Equal(t, uint64(2), lookups["misses"])
}

func TestHitRate(t *testing.T) {
	m := New()
	assert.Equal(t, 0.0, m.HitRate())

	m.RecordLookup(true, false)
	m.RecordLookup(false, false)
	assert.InDelta(t, 0.5, m.HitRate(), 0.0001)
}

func TestExport(t *testing.T) {
	m := New()
	m.RecordLookup(true, false)
	m.RecordDegradedRemote()

	out := m.Export("answercache", "cache")

	assert.Contains(t, out, "answercache_cache_lookups_total 1")
	assert.Contains(t, out, "answercache_cache_exact_hits_total 1")
	assert.Contains(t, out, "answercache_cache_degraded_remote_calls_total 1")
	assert.Contains(t, out, "# TYPE answercache_cache_hit_rate gauge")

	// 每个指标都应带有 HELP 注释
	assert.True(t, strings.Contains(out, "# HELP answercache_cache_misses_total"))
}

func TestReset(t *testing.T) {
	m := New()
	m.RecordLookup(true, false)
	m.RecordTraining(nil)
	m.Reset()

	stats := m.Stats()
	lookups := stats["lookups"].(map[string]interface{})
	assert.Equal(t, uint64(0), lookups["total"])
	estimator := stats["estimator"].(map[string]interface{})
	assert.Equal(t, uint64(0), estimator["training_runs"])
}
