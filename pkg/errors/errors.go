// Package errors 提供统一的错误定义
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeNotFound           ErrorCode = "1002"
	CodeConflict           ErrorCode = "1003"
	CodeTooManyRequests    ErrorCode = "1004"
	CodeInternalError      ErrorCode = "1005"
	CodeServiceUnavailable ErrorCode = "1006"

	// 构件错误 (2xxx)
	CodeArtifactNotFound ErrorCode = "2001"
	CodeVersionNotFound  ErrorCode = "2002"
	CodeInvalidLineRange ErrorCode = "2003"
	CodeValidationFailed ErrorCode = "2004"

	// 生成错误 (3xxx)
	CodeGenerationFailed ErrorCode = "3001"
	CodeLLMCallFailed    ErrorCode = "3002"

	// 外部服务错误 (4xxx)
	CodePersistenceError ErrorCode = "4001"
	CodeCacheError       ErrorCode = "4002"
	CodeStreamClosed     ErrorCode = "4003"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is 可用于预定义错误
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail 添加详细信息（返回副本，预定义错误保持不变）
func (e *AppError) WithDetail(detail string) *AppError {
	clone := *e
	clone.Detail = detail
	return &clone
}

// WithError 添加底层错误（返回副本，预定义错误保持不变）
func (e *AppError) WithError(err error) *AppError {
	clone := *e
	clone.Err = err
	return &clone
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeInvalidLineRange:
		return http.StatusBadRequest
	case CodeNotFound, CodeArtifactNotFound, CodeVersionNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam       = New(CodeInvalidParam, "invalid parameter")
	ErrNotFound           = New(CodeNotFound, "resource not found")
	ErrConflict           = New(CodeConflict, "resource conflict")
	ErrTooManyRequests    = New(CodeTooManyRequests, "too many requests")
	ErrInternalError      = New(CodeInternalError, "internal server error")
	ErrServiceUnavailable = New(CodeServiceUnavailable, "service unavailable")

	ErrArtifactNotFound = New(CodeArtifactNotFound, "artifact not found")
	ErrVersionNotFound  = New(CodeVersionNotFound, "artifact version not found")
	ErrInvalidLineRange = New(CodeInvalidLineRange, "invalid line range")
	ErrValidationFailed = New(CodeValidationFailed, "content validation failed")

	ErrGenerationFailed = New(CodeGenerationFailed, "artifact generation failed")
	ErrLLMCallFailed    = New(CodeLLMCallFailed, "LLM call failed")

	ErrPersistence = New(CodePersistenceError, "persistence error")
	ErrCache       = New(CodeCacheError, "cache error")
)

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}
