package answercache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/answercache/internal/answercache/biz"
	"github.com/kart-io/answercache/internal/answercache/handler"
	"github.com/kart-io/answercache/internal/answercache/metrics"
	"github.com/kart-io/answercache/internal/answercache/router"
	"github.com/kart-io/answercache/internal/answercache/store"
	"github.com/kart-io/answercache/pkg/app"
	"github.com/kart-io/answercache/pkg/component/ollama"
	"github.com/kart-io/answercache/pkg/component/redis"
	"github.com/kart-io/answercache/pkg/pool"
)

// Run runs the answer cache service with the given options.
func Run(opts *Options) error {
	// 1. 初始化日志
	opts.Log.AddInitialField("service.name", appName)
	opts.Log.AddInitialField("service.version", app.GetVersion())
	if err := opts.Log.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting answer cache service...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cacheMetrics := metrics.New()

	// 2. 初始化共享缓存层（可选）。连接失败只降级，不阻止启动。
	var remote biz.RemoteTier
	var redisClient *redis.Client
	if opts.Redis.Enabled {
		client, err := redis.NewWithContext(ctx, opts.Redis.Connection)
		if err != nil {
			logger.Warnw("failed to connect to redis, running in local-only mode",
				"error", err.Error(),
			)
		} else {
			redisClient = client
			remote = store.NewRedisTier(client.Client(), opts.Redis.KeyPrefix)
			logger.Infow("Shared cache tier initialized", "redis", opts.Redis.Connection.String())
		}
	} else {
		logger.Info("Shared cache tier disabled, running in local-only mode")
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	// 3. 初始化嵌入客户端。不可达只告警：相似层会逐请求降级。
	ollamaClient := ollama.New(opts.Ollama)
	if err := ollamaClient.Ping(ctx); err != nil {
		logger.Warnw("ollama is unreachable, similarity lookups will degrade to misses",
			"base_url", opts.Ollama.BaseURL,
			"error", err.Error(),
		)
	} else {
		logger.Infow("Ollama client initialized", "model", opts.Ollama.EmbedModel)
	}

	// 4. 初始化样本存储
	var sampleStore *store.SampleStore
	if opts.Estimator.Enabled {
		if err := os.MkdirAll(filepath.Dir(opts.Estimator.DBPath), 0o755); err != nil {
			return fmt.Errorf("failed to create sample store directory: %w", err)
		}
		s, err := store.NewSampleStore(opts.Estimator.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open sample store: %w", err)
		}
		sampleStore = s
		defer func() { _ = sampleStore.Close() }()
		logger.Infow("Sample store initialized", "path", opts.Estimator.DBPath)
	}

	// 5. 初始化写回池
	writePool, err := pool.NewPool("index-write", pool.WriteBehindConfig())
	if err != nil {
		return fmt.Errorf("failed to create write pool: %w", err)
	}
	defer func() {
		if err := writePool.ReleaseTimeout(5 * time.Second); err != nil {
			logger.Warnw("write pool did not drain before shutdown", "error", err.Error())
		}
	}()

	// 6. 初始化 Biz 层
	estimatorConfig := biz.DefaultEstimatorConfig()
	estimatorConfig.Enabled = opts.Estimator.Enabled
	estimatorConfig.MinSamples = opts.Estimator.MinSamples
	estimatorConfig.RetrainInterval = opts.Estimator.RetrainInterval
	estimatorConfig.MaxTrainingSamples = opts.Estimator.MaxTrainingSamples

	var samples biz.SampleStore
	if sampleStore != nil {
		samples = sampleStore
	}

	controller := biz.NewCacheController(
		biz.NewNormalizer(opts.Cache.Scope),
		biz.NewCategoryClassifier(),
		biz.NewExactCacheStore(remote, &biz.ExactCacheConfig{
			Capacity:      opts.Cache.Capacity,
			EvictFraction: opts.Cache.EvictFraction,
		}, cacheMetrics),
		biz.NewSimilarityIndex(ollamaClient, &biz.SimilarityIndexConfig{
			Threshold:    opts.Similarity.Threshold,
			MaxRecords:   opts.Similarity.MaxRecords,
			EmbedTimeout: opts.Similarity.EmbedTimeout,
		}),
		biz.NewConfidenceEstimator(samples, estimatorConfig, cacheMetrics),
		writePool,
		cacheMetrics,
	)
	logger.Infow("Cache controller initialized",
		"scope", opts.Cache.Scope,
		"capacity", opts.Cache.Capacity,
		"similarity.threshold", opts.Similarity.Threshold,
		"estimator.enabled", opts.Estimator.Enabled,
	)

	// 7. 初始化 Handler 层并注册路由
	if !opts.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Register(engine, handler.NewCacheHandler(controller, cacheMetrics))

	// 8. 启动服务器
	srv := &http.Server{
		Addr:         opts.Server.Addr,
		Handler:      engine,
		ReadTimeout:  opts.Server.ReadTimeout,
		WriteTimeout: opts.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", opts.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down answer cache service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), opts.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	logger.Info("Answer cache service stopped")
	return nil
}
