// Package answercache provides the answer cache service application.
package answercache

import (
	"fmt"
	"time"

	"github.com/kart-io/logger"
	logoption "github.com/kart-io/logger/option"
	"github.com/spf13/pflag"

	"github.com/kart-io/answercache/pkg/component/ollama"
	"github.com/kart-io/answercache/pkg/component/redis"
)

// Options contains all answer cache service options.
type Options struct {
	// Server contains HTTP server configuration.
	Server *ServerOptions `json:"server" mapstructure:"server"`

	// Log contains logger configuration.
	Log *LogOptions `json:"log" mapstructure:"log"`

	// Redis contains shared cache tier configuration.
	Redis *RedisOptions `json:"redis" mapstructure:"redis"`

	// Ollama contains embedding provider configuration.
	Ollama *ollama.Options `json:"ollama" mapstructure:"ollama"`

	// Cache contains exact cache configuration.
	Cache *CacheOptions `json:"cache" mapstructure:"cache"`

	// Similarity contains similarity index configuration.
	Similarity *SimilarityOptions `json:"similarity" mapstructure:"similarity"`

	// Estimator contains confidence estimator configuration.
	Estimator *EstimatorOptions `json:"estimator" mapstructure:"estimator"`
}

// ServerOptions HTTP 服务器配置。
type ServerOptions struct {
	// Addr 监听地址。
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadTimeout 请求读取超时。
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`

	// WriteTimeout 应答写入超时。
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// ShutdownTimeout 优雅关闭等待时间。
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// LogOptions wraps the logger option.LogOption.
type LogOptions struct {
	*logoption.LogOption `mapstructure:",squash"`
}

// RedisOptions 共享缓存层配置。Enabled 为 false 时服务以纯本地
// 模式运行。
type RedisOptions struct {
	// Enabled 是否启用共享缓存层。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// KeyPrefix 共享层键前缀。
	KeyPrefix string `json:"key-prefix" mapstructure:"key-prefix"`

	// Connection Redis 连接配置。
	Connection *redis.Options `json:"connection" mapstructure:"connection"`
}

// CacheOptions 精确缓存配置。
type CacheOptions struct {
	// Scope 缓存键的租户作用域，参与键哈希。
	Scope string `json:"scope" mapstructure:"scope"`

	// Capacity 本地层容量上限。
	Capacity int `json:"capacity" mapstructure:"capacity"`

	// EvictFraction 超限时驱逐的最旧条目比例。
	EvictFraction float64 `json:"evict-fraction" mapstructure:"evict-fraction"`
}

// SimilarityOptions 相似度索引配置。
type SimilarityOptions struct {
	// Threshold 余弦相似度接受阈值。
	Threshold float64 `json:"threshold" mapstructure:"threshold"`

	// MaxRecords 索引记录上限。
	MaxRecords int `json:"max-records" mapstructure:"max-records"`

	// EmbedTimeout 单次嵌入调用超时。
	EmbedTimeout time.Duration `json:"embed-timeout" mapstructure:"embed-timeout"`
}

// EstimatorOptions 置信度估计器配置。
type EstimatorOptions struct {
	// Enabled 是否启用学习模型；关闭时预测返回保守默认值。
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// DBPath 质量样本 SQLite 数据库路径。
	DBPath string `json:"db-path" mapstructure:"db-path"`

	// MinSamples 触发训练的最小样本数。
	MinSamples int `json:"min-samples" mapstructure:"min-samples"`

	// RetrainInterval 惰性重训的最小间隔。
	RetrainInterval time.Duration `json:"retrain-interval" mapstructure:"retrain-interval"`

	// MaxTrainingSamples 单次训练使用的样本上限。
	MaxTrainingSamples int `json:"max-training-samples" mapstructure:"max-training-samples"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Server: &ServerOptions{
			Addr:            ":8083",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: &LogOptions{
			LogOption: logoption.DefaultLogOption(),
		},
		Redis: &RedisOptions{
			Enabled:    false,
			KeyPrefix:  "answercache:entry:",
			Connection: redis.NewOptions(),
		},
		Ollama: ollama.NewOptions(),
		Cache: &CacheOptions{
			Scope:         "default",
			Capacity:      1000,
			EvictFraction: 0.10,
		},
		Similarity: &SimilarityOptions{
			Threshold:    0.97,
			MaxRecords:   10000,
			EmbedTimeout: 5 * time.Second,
		},
		Estimator: &EstimatorOptions{
			Enabled:            true,
			DBPath:             "_output/answercache/samples.db",
			MinSamples:         20,
			RetrainInterval:    time.Hour,
			MaxTrainingSamples: 2000,
		},
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "HTTP server listen address")
	fs.DurationVar(&o.Server.ReadTimeout, "server.read-timeout", o.Server.ReadTimeout, "HTTP server read timeout")
	fs.DurationVar(&o.Server.WriteTimeout, "server.write-timeout", o.Server.WriteTimeout, "HTTP server write timeout")
	fs.DurationVar(&o.Server.ShutdownTimeout, "server.shutdown-timeout", o.Server.ShutdownTimeout, "Graceful shutdown timeout")

	o.addLogFlags(fs)

	fs.BoolVar(&o.Redis.Enabled, "redis.enabled", o.Redis.Enabled, "Enable the shared Redis cache tier")
	fs.StringVar(&o.Redis.KeyPrefix, "redis.key-prefix", o.Redis.KeyPrefix, "Key prefix for shared tier entries")
	o.Redis.Connection.AddFlags(fs, "redis.connection.")

	o.Ollama.AddFlags(fs, "ollama.")

	fs.StringVar(&o.Cache.Scope, "cache.scope", o.Cache.Scope, "Tenant scope mixed into cache keys")
	fs.IntVar(&o.Cache.Capacity, "cache.capacity", o.Cache.Capacity, "Local cache tier capacity")
	fs.Float64Var(&o.Cache.EvictFraction, "cache.evict-fraction", o.Cache.EvictFraction, "Fraction of oldest entries evicted when full")

	fs.Float64Var(&o.Similarity.Threshold, "similarity.threshold", o.Similarity.Threshold, "Cosine similarity acceptance threshold")
	fs.IntVar(&o.Similarity.MaxRecords, "similarity.max-records", o.Similarity.MaxRecords, "Similarity index record limit")
	fs.DurationVar(&o.Similarity.EmbedTimeout, "similarity.embed-timeout", o.Similarity.EmbedTimeout, "Per-call embedding timeout")

	fs.BoolVar(&o.Estimator.Enabled, "estimator.enabled", o.Estimator.Enabled, "Enable the learned confidence model")
	fs.StringVar(&o.Estimator.DBPath, "estimator.db-path", o.Estimator.DBPath, "Path to the quality sample database")
	fs.IntVar(&o.Estimator.MinSamples, "estimator.min-samples", o.Estimator.MinSamples, "Minimum samples before training")
	fs.DurationVar(&o.Estimator.RetrainInterval, "estimator.retrain-interval", o.Estimator.RetrainInterval, "Minimum interval between retrains")
	fs.IntVar(&o.Estimator.MaxTrainingSamples, "estimator.max-training-samples", o.Estimator.MaxTrainingSamples, "Sample cap per training run")
}

func (o *Options) addLogFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Log.Engine, "log.engine", o.Log.Engine, "Logging engine (zap|slog)")
	fs.StringVar(&o.Log.Level, "log.level", o.Log.Level, "Log level (DEBUG|INFO|WARN|ERROR|FATAL)")
	fs.StringVar(&o.Log.Format, "log.format", o.Log.Format, "Log format (json|console)")
	fs.StringSliceVar(&o.Log.OutputPaths, "log.output-paths", o.Log.OutputPaths, "Output paths for logs")
	fs.BoolVar(&o.Log.Development, "log.development", o.Log.Development, "Enable development mode")
	fs.BoolVar(&o.Log.DisableCaller, "log.disable-caller", o.Log.DisableCaller, "Disable caller detection")
}

// Validate validates the options.
func (o *Options) Validate() error {
	if err := o.Log.Validate(); err != nil {
		return err
	}
	if o.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if o.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown-timeout must be positive")
	}
	if o.Redis.Enabled {
		if err := o.Redis.Connection.Validate(); err != nil {
			return err
		}
	}
	if err := o.Ollama.Validate(); err != nil {
		return err
	}
	if o.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive")
	}
	if o.Cache.EvictFraction <= 0 || o.Cache.EvictFraction > 1 {
		return fmt.Errorf("cache.evict-fraction must be in (0, 1]")
	}
	if o.Similarity.Threshold <= 0 || o.Similarity.Threshold > 1 {
		return fmt.Errorf("similarity.threshold must be in (0, 1]")
	}
	if o.Estimator.Enabled && o.Estimator.DBPath == "" {
		return fmt.Errorf("estimator.db-path is required when the estimator is enabled")
	}
	return nil
}

// Complete completes the options.
func (o *Options) Complete() error {
	if err := o.Ollama.Complete(); err != nil {
		return err
	}
	return o.Redis.Connection.Complete()
}

// Init initializes the global logger with the options.
func (o *LogOptions) Init() error {
	log, err := logger.New(o.LogOption)
	if err != nil {
		return err
	}
	logger.SetGlobal(log)
	return nil
}
