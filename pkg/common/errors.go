package common

import (
	"errors"
	"net/http"
)

// Common error types
var (
	ErrNotFound       = errors.New("resource not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
	ErrConflict       = errors.New("resource conflict")
	ErrValidation     = errors.New("validation error")
)

// Stable error codes surfaced to API clients. The ledger and token codes are
// part of the client contract and must not change.
const (
	CodeActivityFundMismatch      = "ACTIVITY_FUND_MISMATCH"
	CodeUserCoinSuspended         = "USER_COIN_SUSPENDED"
	CodeCoinPurchaseDailyLimit    = "COIN_PURCHASE_DAILY_LIMIT"
	CodeCoinPurchasePaymentNotSet = "COIN_PURCHASE_PAYMENT_NOT_SET"
	CodeInsufficientFunds         = "INSUFFICIENT_FUNDS"
	CodeTokenRequired             = "TOKEN_REQUIRED"
	CodeTokenExpired              = "TOKEN_EXPIRED"
	CodeTokenChanged              = "TOKEN_CHANGED"
	CodeTokenFailed               = "TOKEN_FAILED"
	CodeUserBlocked               = "USER_BLOCKED"
)

// AppError represents an application error with HTTP status code and a
// stable machine-readable error code
type AppError struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Err       error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the wrapped error for errors.Is/As
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewCodedError creates an AppError with a stable error code
func NewCodedError(httpStatus int, errorCode, message string) *AppError {
	return &AppError{
		Code:      httpStatus,
		ErrorCode: errorCode,
		Message:   message,
	}
}

// Ledger error constructors

func NewActivityFundMismatchError(message string) *AppError {
	return NewCodedError(http.StatusBadRequest, CodeActivityFundMismatch, message)
}

func NewUserCoinSuspendedError() *AppError {
	return NewCodedError(http.StatusForbidden, CodeUserCoinSuspended, "wallet is suspended")
}

func NewCoinPurchaseDailyLimitError() *AppError {
	return NewCodedError(http.StatusForbidden, CodeCoinPurchaseDailyLimit, "daily purchase limit reached")
}

func NewCoinPurchasePaymentNotSetError() *AppError {
	return NewCodedError(http.StatusBadRequest, CodeCoinPurchasePaymentNotSet, "no payment method on file")
}

func NewInsufficientFundsError() *AppError {
	return NewCodedError(http.StatusPaymentRequired, CodeInsufficientFunds, "insufficient funds")
}

// Token error constructors

func NewTokenRequiredError() *AppError {
	return NewCodedError(http.StatusUnauthorized, CodeTokenRequired, "access token is required")
}

func NewTokenExpiredError() *AppError {
	return NewCodedError(http.StatusUnauthorized, CodeTokenExpired, "token is expired")
}

func NewTokenChangedError() *AppError {
	return NewCodedError(http.StatusUnauthorized, CodeTokenChanged, "token has been superseded")
}

func NewTokenFailedError() *AppError {
	return NewCodedError(http.StatusUnauthorized, CodeTokenFailed, "token verification failed")
}

func NewUserBlockedError() *AppError {
	return NewCodedError(http.StatusUnauthorized, CodeUserBlocked, "user is blocked")
}

// Generic constructors

func NewNotFoundError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusNotFound,
		Message: message,
		Err:     err,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    http.StatusUnauthorized,
		Message: message,
		Err:     ErrUnauthorized,
	}
}

func NewBadRequestError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    http.StatusInternalServerError,
		Message: message,
		Err:     err,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    http.StatusConflict,
		Message: message,
		Err:     ErrConflict,
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    http.StatusBadRequest,
		Message: message,
		Err:     ErrValidation,
	}
}
