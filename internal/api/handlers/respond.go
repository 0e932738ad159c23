// Package handlers 提供各路由共用的回應工具
package handlers

import (
	"errors"
	"net/http"

	"recipe-ingest/internal/pkg/common"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusFor 將錯誤對應到 HTTP 狀態碼
func StatusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case common.IsValidationError(err):
		return http.StatusBadRequest
	}
	var ce *common.CustomError
	if errors.As(err, &ce) && ce.Status != 0 {
		return ce.Status
	}
	return http.StatusInternalServerError
}

// RespondError 以 ErrorResponse 格式回應錯誤；details 只在除錯模式輸出
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	resp := common.ErrorResponse{
		Code:    common.ErrorCode(err),
		Message: http.StatusText(status),
	}
	if status < http.StatusInternalServerError || gin.IsDebugging() {
		resp.Details = err.Error()
	}
	if status == http.StatusRequestEntityTooLarge {
		resp.Code = common.ErrCodeInvalidRequest
	}

	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("code", resp.Code),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", requestid.Get(c)),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		common.LogError("請求處理失敗", fields...)
	} else {
		common.LogWarn("請求被拒絕", fields...)
	}
	c.AbortWithStatusJSON(status, resp)
}
