package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/technosurge/leadflow/types"
	"go.uber.org/zap"
)

// RequestIDHeader 请求 ID 响应头，由中间件写入
const RequestIDHeader = "X-Request-ID"

// defaultMaxBody 请求体默认上限
const defaultMaxBody int64 = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable,omitempty"`
	HTTPStatus int    `json:"-"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	// 响应头已写出，编码失败无法再改状态码
	_ = enc.Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteError 写入错误响应（从 types.Error）
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = types.StatusFor(err.Code)
	}

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
		}
		if err.Cause != nil {
			fields = append(fields, zap.Error(err.Cause))
		}
		if status >= http.StatusInternalServerError {
			logger.Error("API error", fields...)
		} else {
			logger.Warn("API error", fields...)
		}
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:       string(err.Code),
			Message:    err.Message,
			Retryable:  err.Retryable,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// WriteAnyError 把任意错误转换为 types.Error 写出；未知错误按 500 处理
func WriteAnyError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if apiErr, ok := types.AsError(err); ok {
		WriteError(w, apiErr, logger)
		return
	}
	WriteError(w, types.NewInternalError("internal error", err), logger)
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体。失败时已写出 400 响应。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewInvalidRequestError("request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, defaultMaxBody))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			msg = "request body too large"
		case errors.Is(err, io.EOF):
			msg = "request body is empty"
		}
		apiErr := types.NewInvalidRequestError(msg).WithCause(err).WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与写出字节数
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Bytes      int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层 ResponseWriter
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack websocket 升级需要底层连接
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("underlying ResponseWriter does not support hijacking")
	}
	rw.Written = true
	rw.StatusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Flush 实现 http.Flusher
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
