// Package batches 透過 HTTP 提交批次並回傳報告
package batches

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"recipe-ingest/internal/api/handlers"
	"recipe-ingest/internal/core/pipeline"
	"recipe-ingest/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Runner 執行批次的協作者
type Runner interface {
	Run(ctx context.Context, input *pipeline.Input, opts pipeline.Options) (*pipeline.Report, error)
}

// Handler 批次處理程序
type Handler struct {
	runner       Runner
	maxBatchSize int
}

// NewHandler 創建新的批次處理程序
func NewHandler(runner Runner, maxBatchSize int) *Handler {
	return &Handler{runner: runner, maxBatchSize: maxBatchSize}
}

// Submit POST /api/v1/batches；本體為輸入文件，?dry_run=true 只驗證不寫入
func (h *Handler) Submit(c *gin.Context) {
	opts, err := parseOptions(c)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}
	input, err := pipeline.ParseInput(body, h.maxBatchSize)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	common.LogInfo("收到批次",
		zap.String("batch", input.Metadata.BatchName),
		zap.Int("items", len(input.Recettes)),
		zap.Bool("dry_run", opts.DryRun),
		zap.String("request_id", requestid.Get(c)),
	)

	report, err := h.runner.Run(c.Request.Context(), input, opts)
	if err != nil {
		handlers.RespondError(c, err)
		return
	}

	// 部分失敗仍回傳完整報告
	status := http.StatusOK
	if report.Summary.Created > 0 {
		status = http.StatusCreated
	}
	c.JSON(status, report)
}

func parseOptions(c *gin.Context) (pipeline.Options, error) {
	var opts pipeline.Options
	if v := c.Query("dry_run"); v != "" {
		dry, err := strconv.ParseBool(v)
		if err != nil {
			return opts, common.NewValidationError("paramètre invalide", "dry_run doit être un booléen")
		}
		opts.DryRun = dry
	}
	if v := c.Query("workers"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return opts, common.NewValidationError("paramètre invalide", "workers doit être un entier positif")
		}
		opts.Workers = n
	}
	return opts, nil
}
