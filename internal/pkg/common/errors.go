package common

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Code    string `json:"code"`              // 錯誤代碼
	Message string `json:"message"`           // 錯誤信息
	Details string `json:"details,omitempty"` // 詳細信息（僅在開發模式顯示）
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

// Unwrap 返回原始錯誤
func (e *CustomError) Unwrap() error {
	return e.Err
}

// Is 以錯誤代碼比對，讓 errors.Is(err, ErrParseFailure) 可用
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// ValidationError 表示驗證錯誤，保留所有違規項目
type ValidationError struct {
	message string
	Errors  []string
}

// Error 實現 error 介面
func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return e.message
	}
	return e.message + ": " + strings.Join(e.Errors, "; ")
}

// Is 讓 ValidationError 與 ErrValidationFailure 等價
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*CustomError)
	return ok && t.Code == ErrCodeValidationFailure
}

// NewValidationError 創建新的驗證錯誤
func NewValidationError(message string, details ...string) error {
	return &ValidationError{
		message: message,
		Errors:  details,
	}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) || errors.Is(err, ErrValidationFailure)
}

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest  = "INVALID_REQUEST"   // 400
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS" // 429

	// 服務器錯誤 (5xx)
	ErrCodeInternalError  = "INTERNAL_ERROR"  // 500
	ErrCodeGatewayTimeout = "GATEWAY_TIMEOUT" // 504

	// 管線錯誤分類
	ErrCodeGenerationFailure  = "GENERATION_FAILURE"
	ErrCodeParseFailure       = "PARSE_FAILURE"
	ErrCodeValidationFailure  = "VALIDATION_FAILURE"
	ErrCodeReferenceError     = "REFERENCE_ERROR"
	ErrCodePersistenceFailure = "PERSISTENCE_FAILURE"
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
)

// 預定義錯誤
var (
	ErrTooManyRequests = NewError(ErrCodeTooManyRequests, "請求過於頻繁", http.StatusTooManyRequests, nil)
	ErrCacheFull       = NewError("CACHE_FULL", "緩存已滿", http.StatusServiceUnavailable, nil)
	ErrCacheMiss       = NewError("CACHE_MISS", "緩存未命中", http.StatusNotFound, nil)

	// 管線錯誤（作為 errors.Is 的比對目標）
	ErrGenerationFailure  = NewError(ErrCodeGenerationFailure, "generation failed", http.StatusBadGateway, nil)
	ErrParseFailure       = NewError(ErrCodeParseFailure, "unparseable generator output", http.StatusBadGateway, nil)
	ErrValidationFailure  = NewError(ErrCodeValidationFailure, "validation failed", http.StatusUnprocessableEntity, nil)
	ErrReferenceError     = NewError(ErrCodeReferenceError, "unresolved reference", http.StatusUnprocessableEntity, nil)
	ErrPersistenceFailure = NewError(ErrCodePersistenceFailure, "persistence failed", http.StatusInternalServerError, nil)
	ErrConfiguration      = NewError(ErrCodeConfiguration, "invalid configuration", http.StatusInternalServerError, nil)
)

// NewGenerationFailure 主模型與備援模型皆失敗
func NewGenerationFailure(message string, err error) error {
	return NewError(ErrCodeGenerationFailure, message, http.StatusBadGateway, err)
}

// NewParseFailure 生成內容無法解析為 JSON 物件
func NewParseFailure(message string, err error) error {
	return NewError(ErrCodeParseFailure, message, http.StatusBadGateway, err)
}

// NewReferenceError 生成的實體名稱無法對應到已持久化的實體
func NewReferenceError(message string) error {
	return NewError(ErrCodeReferenceError, message, http.StatusUnprocessableEntity, nil)
}

// NewPersistenceFailure 儲存層拒絕寫入
func NewPersistenceFailure(message string, err error) error {
	return NewError(ErrCodePersistenceFailure, message, http.StatusInternalServerError, err)
}

// NewConfigurationError 缺少必要的外部設定
func NewConfigurationError(message string) error {
	return NewError(ErrCodeConfiguration, message, http.StatusInternalServerError, nil)
}

// ErrorCode 將任意錯誤歸類到錯誤代碼
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrCodeValidationFailure
	}
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternalError
}
