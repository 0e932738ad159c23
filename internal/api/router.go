package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"recipe-ingest/internal/api/handlers/batches"
	"recipe-ingest/internal/api/handlers/health"
	recipeHandler "recipe-ingest/internal/api/handlers/recipe"
	"recipe-ingest/internal/api/middleware"
	"recipe-ingest/internal/core/ai/queue"
	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// 無法推算時的請求超時
	defaultTimeout = 15 * time.Minute
	// 每個項目最多兩次生成呼叫，各含一次備援
	callsPerItem = 4
	// 預設請求體大小限制 (1MB)
	defaultMaxBodySize = 1 << 20
)

// Dependencies 路由需要的協作者
type Dependencies struct {
	Store        store.Store
	Orchestrator *pipeline.Orchestrator
	Queue        *queue.Manager
}

// Router 已設定的 gin 引擎與需要在關閉時釋放的資源
type Router struct {
	*gin.Engine
	dedup *middleware.Deduplicator
}

// Close 停止背景工作
func (r *Router) Close() {
	if r.dedup != nil {
		r.dedup.Close()
	}
}

// RequestTimeout 未設定時依批次上限與每次呼叫的超時推算，讓最大的批次也能跑完
func RequestTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.RequestTimeout > 0 {
		return cfg.Server.RequestTimeout
	}
	call := cfg.Generator.CallTimeout
	if call <= 0 || cfg.Pipeline.MaxBatchSize <= 0 {
		return defaultTimeout
	}
	workers := max(cfg.Pipeline.Workers, 1)
	rounds := (cfg.Pipeline.MaxBatchSize + workers - 1) / workers
	return time.Duration(rounds*callsPerItem) * call
}

// SetupRouter 設置路由
func SetupRouter(cfg *config.Config, deps Dependencies) (*Router, error) {
	if deps.Store == nil || deps.Orchestrator == nil {
		return nil, errors.New("router requires a store and an orchestrator")
	}
	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	timeout := RequestTimeout(cfg)
	maxBodySize := cfg.Server.MaxBodyBytes
	if maxBodySize <= 0 {
		maxBodySize = defaultMaxBodySize
	}

	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(requestid.New())

	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(maxBodySize))

	// 注入協作者並設置請求超時
	router.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		c.Set(health.ConfigKey, cfg)
		c.Set(health.StoreKey, deps.Store)
		if deps.Queue != nil {
			c.Set(health.QueueKey, deps.Queue)
		}

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			common.LogError("Request timeout",
				zap.String("path", c.Request.URL.Path),
				zap.String("request_id", requestid.Get(c)),
				zap.Duration("timeout", timeout),
			)
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, common.ErrorResponse{
				Code:    common.ErrCodeGatewayTimeout,
				Message: "request timeout",
				Details: timeout.String(),
			})
		}
	})

	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.ReadinessCheck)
	router.GET("/live", health.LivenessCheck)

	r := &Router{Engine: router}

	api := router.Group("/api/v1")
	{
		batchHandler := batches.NewHandler(deps.Orchestrator, cfg.Pipeline.MaxBatchSize)
		submit := []gin.HandlerFunc{}
		if cfg.RateLimit.Enabled {
			submit = append(submit, middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
		}
		r.dedup = middleware.NewDeduplicator(cfg.DedupWindow)
		submit = append(submit, r.dedup.Middleware(), batchHandler.Submit)
		api.POST("/batches", submit...)

		recipes := recipeHandler.NewHandler(deps.Store, deps.Orchestrator.Validator())
		recipeGroup := api.Group("/recipes")
		{
			recipeGroup.GET("/lookup", recipes.Lookup)
			recipeGroup.POST("/validate", recipes.Validate)
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.Duration("timeout", timeout),
		zap.Int64("max_body_size", maxBodySize),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
		zap.Duration("dedup_window", cfg.DedupWindow),
	)

	return r, nil
}
