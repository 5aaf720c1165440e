package biz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/answercache/internal/answercache/metrics"
	"github.com/kart-io/answercache/internal/pkg/textmath"
)

// 估计器相关错误。训练失败从不影响请求路径：旧模型保留，
// 调用方按需记录日志。
var (
	// ErrInsufficientSamples 样本数低于训练下限。
	ErrInsufficientSamples = errors.New("insufficient training samples")
	// ErrSingularFit 正规方程组奇异，无法求解。
	ErrSingularFit = errors.New("singular normal equations, keeping previous model")
)

// SampleStore 质量样本的持久化存储。只追加，按窗口裁剪。
type SampleStore interface {
	// Append 追加一条样本。
	Append(ctx context.Context, sample *QualitySample) error
	// Recent 返回指定意图自 since 以来的样本，最多 limit 条。
	Recent(ctx context.Context, intent string, since time.Time, limit int) ([]QualitySample, error)
	// Window 返回自 since 以来的全部样本，最多 limit 条。
	Window(ctx context.Context, since time.Time, limit int) ([]QualitySample, error)
	// Prune 删除 before 之前的样本，返回删除数。
	Prune(ctx context.Context, before time.Time) (int, error)
}

// EstimatorConfig 置信度估计器配置。
type EstimatorConfig struct {
	// Enabled 关闭时 Predict 直接返回保守默认值。
	Enabled bool
	// MinSamples 训练所需的最小样本数。
	MinSamples int
	// RetrainInterval 惰性重训触发间隔。
	RetrainInterval time.Duration
	// MaxTrainingSamples 单次训练的样本拉取上限，防止阻塞请求路径。
	MaxTrainingSamples int
	// SampleWindow 训练样本滚动窗口。
	SampleWindow time.Duration
	// SimilarityWindow 相似度修正使用的同意图样本窗口。
	SimilarityWindow time.Duration
	// SimilarityFetchLimit 相似度修正的样本拉取上限。
	SimilarityFetchLimit int
	// TrainTimeout 单次惰性训练的墙钟上限。
	TrainTimeout time.Duration
}

// DefaultEstimatorConfig 返回默认配置。
func DefaultEstimatorConfig() *EstimatorConfig {
	return &EstimatorConfig{
		Enabled:              true,
		MinSamples:           20,
		RetrainInterval:      time.Hour,
		MaxTrainingSamples:   2000,
		SampleWindow:         30 * 24 * time.Hour,
		SimilarityWindow:     7 * 24 * time.Hour,
		SimilarityFetchLimit: 200,
		TrainTimeout:         2 * time.Second,
	}
}

// similarityNudgeBound 相似度修正项的上界。
const similarityNudgeBound = 0.1

// conservativeDefaults 未训练/停用时的保守按意图默认值。
var conservativeDefaults = map[string]float64{
	"hours":   0.6,
	"pricing": 0.55,
	"booking": 0.4,
}

// fallbackConfidence 未知意图的默认置信度。
const fallbackConfidence = 0.5

// ConfidenceEstimator 在生成前预测应答质量，在线训练线性模型。
// 模型只被 Train 更新、被 Predict 读取。
type ConfidenceEstimator struct {
	mu            sync.RWMutex
	weights       []float64
	baselines     map[string]float64
	lastTrainedAt time.Time
	trained       bool

	retraining sync.Mutex // 串行化惰性重训，避免并发重复训练

	store   SampleStore
	config  *EstimatorConfig
	metrics *metrics.CacheMetrics
}

// NewConfidenceEstimator 创建估计器。store 为 nil 时相似度修正与
// 惰性重训被跳过，Predict 始终返回保守默认值。
func NewConfidenceEstimator(store SampleStore, config *EstimatorConfig, m *metrics.CacheMetrics) *ConfidenceEstimator {
	if config == nil {
		config = DefaultEstimatorConfig()
	}
	if config.MinSamples < featureCount+1 {
		// 样本数少于未知数个数时正规方程必然欠定
		config.MinSamples = featureCount + 1
	}
	return &ConfidenceEstimator{
		baselines: make(map[string]float64),
		store:     store,
		config:    config,
		metrics:   m,
	}
}

// Predict 预测 message 的期望应答质量，返回值始终在 [0,1]。
// 未训练或停用时返回按意图的保守默认值。
func (e *ConfidenceEstimator) Predict(ctx context.Context, message, intent string, queryContext map[string]string) float64 {
	if !e.config.Enabled {
		return conservativeDefault(intent)
	}

	e.maybeRetrain(ctx)

	e.mu.RLock()
	trained := e.trained
	weights := e.weights
	baseline, hasBaseline := e.baselines[intent]
	e.mu.RUnlock()

	if !trained {
		return conservativeDefault(intent)
	}
	if !hasBaseline {
		baseline = fallbackConfidence
	}

	// 特征修正
	features := ExtractFeatures(message, intent, queryContext)
	prediction := baseline
	for i, w := range weights {
		prediction += w * features[i]
	}
	prediction = textmath.Clamp01(prediction)

	// 相似度修正：向近期同意图相似样本的加权平均标签有界靠拢
	prediction = textmath.Clamp01(e.similarityAdjust(ctx, message, intent, prediction))

	return prediction
}

// similarityAdjust 基于最近同意图样本的词元重叠度修正预测值。
// 存储不可用时跳过修正，预测值原样返回。
func (e *ConfidenceEstimator) similarityAdjust(ctx context.Context, message, intent string, prediction float64) float64 {
	if e.store == nil {
		return prediction
	}

	since := time.Now().Add(-e.config.SimilarityWindow)
	samples, err := e.store.Recent(ctx, intent, since, e.config.SimilarityFetchLimit)
	if err != nil {
		logger.Debugw("similarity adjustment skipped", "error", err.Error())
		return prediction
	}

	var weightedSum, totalWeight float64
	for i := range samples {
		overlap := textmath.TokenOverlap(message, samples[i].Message)
		if overlap <= 0 {
			continue
		}
		weightedSum += overlap * samples[i].Label
		totalWeight += overlap
	}
	if totalWeight == 0 {
		return prediction
	}

	weightedAvg := weightedSum / totalWeight
	return prediction + textmath.ClampAbs(weightedAvg-prediction, similarityNudgeBound)
}

// RecordSample 记录一条质量样本并裁剪窗口之外的历史。
func (e *ConfidenceEstimator) RecordSample(ctx context.Context, message, intent string, queryContext map[string]string, label float64) error {
	if e.store == nil {
		return nil
	}

	sample := &QualitySample{
		Message:   message,
		Intent:    intent,
		Features:  ExtractFeatures(message, intent, queryContext),
		Label:     textmath.Clamp01(label),
		CreatedAt: time.Now(),
	}
	if err := e.store.Append(ctx, sample); err != nil {
		return fmt.Errorf("append quality sample: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordSample()
	}

	if pruned, err := e.store.Prune(ctx, time.Now().Add(-e.config.SampleWindow)); err != nil {
		logger.Debugw("sample prune failed", "error", err.Error())
	} else if pruned > 0 {
		logger.Debugw("pruned quality samples outside window", "count", pruned)
	}
	return nil
}

// Train 用样本集重训模型。样本不足返回 ErrInsufficientSamples，
// 正规方程奇异返回 ErrSingularFit；两种情况下旧模型都原样保留。
func (e *ConfidenceEstimator) Train(samples []QualitySample) error {
	if len(samples) < e.config.MinSamples {
		return ErrInsufficientSamples
	}

	// 过滤特征布局不匹配的历史样本
	valid := samples[:0:0]
	for i := range samples {
		if len(samples[i].Features) == featureCount {
			valid = append(valid, samples[i])
		}
	}
	if len(valid) < e.config.MinSamples {
		return ErrInsufficientSamples
	}

	weights, err := fitLeastSquares(valid)
	if err != nil {
		return err
	}

	// 按意图重算基线均值
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i := range valid {
		sums[valid[i].Intent] += valid[i].Label
		counts[valid[i].Intent]++
	}
	baselines := make(map[string]float64, len(sums))
	for intent, sum := range sums {
		baselines[intent] = sum / float64(counts[intent])
	}

	e.mu.Lock()
	e.weights = weights
	e.baselines = baselines
	e.lastTrainedAt = time.Now()
	e.trained = true
	e.mu.Unlock()

	logger.Infow("confidence estimator trained",
		"samples", len(valid),
		"intents", len(baselines),
		"feature_schema_version", FeatureSchemaVersion,
	)
	return nil
}

// Trained 报告模型是否已训练。
func (e *ConfidenceEstimator) Trained() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.trained
}

// LastTrainedAt 返回最近一次成功训练的时间。
func (e *ConfidenceEstimator) LastTrainedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastTrainedAt
}

// maybeRetrain 在预测前惰性触发重训：从未训练过或距上次训练超过
// 配置间隔。样本拉取有上限、训练有墙钟上限，不会拖住请求路径。
func (e *ConfidenceEstimator) maybeRetrain(ctx context.Context) {
	if e.store == nil {
		return
	}

	e.mu.RLock()
	due := !e.trained || time.Since(e.lastTrainedAt) >= e.config.RetrainInterval
	e.mu.RUnlock()
	if !due {
		return
	}

	// 已有重训在进行时直接放弃本次触发
	if !e.retraining.TryLock() {
		return
	}
	defer e.retraining.Unlock()

	trainCtx, cancel := context.WithTimeout(ctx, e.config.TrainTimeout)
	defer cancel()

	since := time.Now().Add(-e.config.SampleWindow)
	samples, err := e.store.Window(trainCtx, since, e.config.MaxTrainingSamples)
	if err != nil {
		logger.Debugw("lazy retrain skipped, sample fetch failed", "error", err.Error())
		return
	}

	err = e.Train(samples)
	switch {
	case err == nil:
		if e.metrics != nil {
			e.metrics.RecordTraining(nil)
		}
	case errors.Is(err, ErrInsufficientSamples):
		// 数据不足时静默跳过，下次预测再试
	case errors.Is(err, ErrSingularFit):
		logger.Warnw("estimator training aborted", "error", err.Error())
		if e.metrics != nil {
			e.metrics.RecordTraining(err)
		}
	default:
		logger.Warnw("estimator training failed", "error", err.Error())
		if e.metrics != nil {
			e.metrics.RecordTraining(err)
		}
	}
}

// conservativeDefault 返回按意图的保守默认置信度。
func conservativeDefault(intent string) float64 {
	if v, ok := conservativeDefaults[intent]; ok {
		return v
	}
	return fallbackConfidence
}

// fitLeastSquares 通过正规方程 (XᵗX)w = Xᵗy 拟合权重。
// 标签先中心化到相对 0.5 的偏移，使权重表达对基线的修正量。
func fitLeastSquares(samples []QualitySample) ([]float64, error) {
	n := len(samples)

	// 构造 XᵗX 与 Xᵗy
	xtx := make([][]float64, featureCount)
	for i := range xtx {
		xtx[i] = make([]float64, featureCount)
	}
	xty := make([]float64, featureCount)

	for s := 0; s < n; s++ {
		f := samples[s].Features
		y := samples[s].Label - fallbackConfidence
		for i := 0; i < featureCount; i++ {
			for j := 0; j < featureCount; j++ {
				xtx[i][j] += f[i] * f[j]
			}
			xty[i] += f[i] * y
		}
	}

	return solveLinearSystem(xtx, xty)
}

// pivotEpsilon 低于此值的主元视为奇异。
const pivotEpsilon = 1e-10

// solveLinearSystem 用带部分主元选取的高斯消元求解 Ax = b。
// 保持为小而可审计的显式例程，不引入通用数值库。
func solveLinearSystem(a [][]float64, b []float64) ([]float64, error) {
	n := len(b)

	// 增广矩阵副本，调用方数据不被破坏
	m := make([][]float64, n)
	for i := 0; i < n; i++ {
		m[i] = make([]float64, n+1)
		copy(m[i], a[i])
		m[i][n] = b[i]
	}

	for col := 0; col < n; col++ {
		// 部分主元选取
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < pivotEpsilon {
			return nil, ErrSingularFit
		}
		m[col], m[pivot] = m[pivot], m[col]

		for row := col + 1; row < n; row++ {
			factor := m[row][col] / m[col][col]
			for k := col; k <= n; k++ {
				m[row][k] -= factor * m[col][k]
			}
		}
	}

	// 回代
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := m[i][n]
		for j := i + 1; j < n; j++ {
			sum -= m[i][j] * x[j]
		}
		x[i] = sum / m[i][i]
	}
	return x, nil
}
