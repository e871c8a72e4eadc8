// Package errors defines the application error taxonomy and helpers around it.
package errors

import (
	"errors"
	"fmt"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Error codes.
const (
	CodeValidation   = "E100"
	CodeDatabase     = "E200"
	CodeExternalAPI  = "E300"
	CodeLLMTimeout   = "E310"
	CodeLLMAuth      = "E320"
	CodeLLMRateLimit = "E330"
	CodeLLMMalformed = "E340"
	CodeState        = "E400"
	CodeRateLimit    = "E500"
	CodePayment      = "E600"
	CodeSignature    = "E610"
)

type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

// HasCode reports whether err wraps an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr != nil && appErr.Code == code
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        CodeValidation,
		Message:     msg,
		UserMessage: fmt.Sprintf("Неверный формат данных. %s", msg),
		Severity:    SeverityLow,
	}
}

func NewDatabaseError(cause error) *AppError {
	return &AppError{
		Code:        CodeDatabase,
		Message:     "database error",
		UserMessage: "Временная проблема, попробуйте позже",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewExternalAPIError(apiName string, cause error) *AppError {
	return &AppError{
		Code:        CodeExternalAPI,
		Message:     fmt.Sprintf("external API error: %s", apiName),
		UserMessage: "Сервис временно недоступен",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewLLMTimeoutError(provider string, cause error) *AppError {
	return &AppError{
		Code:      CodeLLMTimeout,
		Message:   fmt.Sprintf("llm %s: timeout", provider),
		Severity:  SeverityMedium,
		Retryable: true,
		cause:     cause,
	}
}

func NewLLMAuthError(provider string, cause error) *AppError {
	return &AppError{
		Code:     CodeLLMAuth,
		Message:  fmt.Sprintf("llm %s: authentication failed", provider),
		Severity: SeverityCritical,
		cause:    cause,
	}
}

func NewLLMRateLimitError(provider string, cause error) *AppError {
	return &AppError{
		Code:      CodeLLMRateLimit,
		Message:   fmt.Sprintf("llm %s: rate limited", provider),
		Severity:  SeverityMedium,
		Retryable: true,
		cause:     cause,
	}
}

func NewLLMMalformedError(provider, detail string) *AppError {
	return &AppError{
		Code:      CodeLLMMalformed,
		Message:   fmt.Sprintf("llm %s: malformed response: %s", provider, detail),
		Severity:  SeverityMedium,
		Retryable: true,
	}
}

func NewStateError(msg string) *AppError {
	return &AppError{
		Code:        CodeState,
		Message:     msg,
		UserMessage: "Операция невозможна в текущем состоянии",
		Severity:    SeverityMedium,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        CodeRateLimit,
		Message:     fmt.Sprintf("rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Слишком много запросов. Попробуйте через %d секунд", retryAfter),
		Severity:    SeverityLow,
	}
}

func NewPaymentError(provider string, cause error) *AppError {
	return &AppError{
		Code:        CodePayment,
		Message:     fmt.Sprintf("payment %s failed", provider),
		UserMessage: "Оплата не прошла. Попробуй ещё раз чуть позже",
		Severity:    SeverityHigh,
		cause:       cause,
	}
}

func NewSignatureError(msg string) *AppError {
	return &AppError{
		Code:     CodeSignature,
		Message:  msg,
		Severity: SeverityHigh,
	}
}
