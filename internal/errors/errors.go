// Package errors defines the application error type and the central handler
// that turns failures into log records, Sentry events and user replies.
package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
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

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

func NewValidationError(msg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     msg,
		UserMessage: fmt.Sprintf("Invalid input. %s", msg),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewStorageError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E200",
		Message:     fmt.Sprintf("Storage error: %s", underlyingMsg),
		UserMessage: "Temporary problem, please try again later",
		Severity:    SeverityHigh,
		Retryable:   true,
		cause:       cause,
	}
}

func NewTelegramError(operation string, cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Message:     fmt.Sprintf("Telegram API error: %s", operation),
		UserMessage: "The service is temporarily unavailable",
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewFlowError(msg string) *AppError {
	return &AppError{
		Code:        "E400",
		Message:     msg,
		UserMessage: "That action is not possible right now",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       nil,
	}
}

func NewRateLimitError(retryAfter int) *AppError {
	return &AppError{
		Code:        "E500",
		Message:     fmt.Sprintf("Rate limit exceeded: retry after %d seconds", retryAfter),
		UserMessage: fmt.Sprintf("Too many requests. Try again in %d seconds", retryAfter),
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}
