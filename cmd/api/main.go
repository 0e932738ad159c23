package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipe-ingest/internal/api"
	"recipe-ingest/internal/core/ai/cache"
	"recipe-ingest/internal/core/ai/generator"
	"recipe-ingest/internal/core/ai/queue"
	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/core/store"
	"recipe-ingest/internal/infrastructure/config"
	"recipe-ingest/internal/pkg/common"

	"go.uber.org/zap"
)

// 設定錯誤的結束碼
const exitConfigError = 2

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		if errors.Is(err, common.ErrConfiguration) {
			os.Exit(exitConfigError)
		}
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("primary_model", cfg.Generator.Primary.Model),
		zap.String("fallback_model", cfg.Generator.Fallback.Model),
		zap.String("openrouter_api_key", config.MaskAPIKey(cfg.OpenRouter.APIKey)),
		zap.String("database_driver", cfg.Database.Driver),
	)

	ctx := context.Background()

	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		common.LogFatal("Failed to open store", zap.Error(err))
	}
	defer s.Close()

	respCache, err := cache.New(&cfg.Cache)
	if err != nil {
		common.LogFatal("Failed to initialize cache", zap.Error(err))
	}
	if respCache != nil {
		defer respCache.Close()
	}

	q := queue.NewManager(cfg.Queue)
	gen, err := generator.NewFromConfig(ctx, cfg, respCache, q)
	if err != nil {
		common.LogFatal("Failed to initialize generator", zap.Error(err))
	}
	defer gen.Close()

	router, err := api.SetupRouter(cfg, api.Dependencies{
		Store:        s,
		Orchestrator: pipeline.NewOrchestrator(s, gen, cfg.Pipeline),
		Queue:        q,
	})
	if err != nil {
		common.LogFatal("Failed to setup router", zap.Error(err))
	}
	defer router.Close()

	// 寫入超時不能短於批次請求的超時
	writeTimeout := max(cfg.Server.WriteTimeout, api.RequestTimeout(cfg)+time.Minute)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		common.LogError("Failed to start server", zap.Error(err))
	}

	common.LogInfo("Shutting down server...")

	// 進行中的批次需要時間收尾
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	common.LogInfo("Server exited")
}
