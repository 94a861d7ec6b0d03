package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response is the standard API envelope: result is "success" or "fail".
type Response struct {
	Result string      `json:"result"`
	Data   interface{} `json:"data,omitempty"`
	Error  *ErrorInfo  `json:"error,omitempty"`
	Meta   *Meta       `json:"meta,omitempty"`
}

// ErrorInfo contains error details
type ErrorInfo struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// Meta contains metadata for paginated responses
type Meta struct {
	Limit  int   `json:"limit,omitempty"`
	Offset int   `json:"offset,omitempty"`
	Total  int64 `json:"total,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Result: "success",
		Data:   data,
	})
}

// SuccessResponseWithMeta sends a successful response with pagination metadata
func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, Response{
		Result: "success",
		Data:   data,
		Meta:   meta,
	})
}

// CreatedResponse sends a created response
func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Result: "success",
		Data:   data,
	})
}

// ErrorResponse sends a failure envelope with a bare message
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{
		Result: "fail",
		Error: &ErrorInfo{
			Code: http.StatusText(statusCode),
			Msg:  message,
		},
	})
}

// AppErrorResponse sends an AppError as a failure envelope. The stable
// ErrorCode is surfaced when set, otherwise the HTTP status text.
func AppErrorResponse(c *gin.Context, err *AppError) {
	code := err.ErrorCode
	if code == "" {
		code = http.StatusText(err.Code)
	}
	c.JSON(err.Code, Response{
		Result: "fail",
		Error: &ErrorInfo{
			Code: code,
			Msg:  err.Message,
		},
	})
}

// RespondError maps any error to the failure envelope, unwrapping AppError
// when present
func RespondError(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		AppErrorResponse(c, appErr)
		return
	}
	ErrorResponse(c, http.StatusInternalServerError, "internal server error")
}
