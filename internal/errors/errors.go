package errors

import (
	"errors"
	"fmt"
)

// AppError represents a structured estimation error. Diagnostics carries the
// numerical state at the point of failure (last estimate, objective value,
// iteration count) so callers can decide on retry policy themselves; the
// core never retries automatically.
type AppError struct {
	Code        string
	Message     string
	Cause       error
	Diagnostics map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDiagnostic attaches one diagnostic key/value and returns the error.
func (e *AppError) WithDiagnostic(key string, value interface{}) *AppError {
	if e.Diagnostics == nil {
		e.Diagnostics = make(map[string]interface{})
	}
	e.Diagnostics[key] = value
	return e
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:        appErr.Code,
			Message:     message,
			Cause:       err,
			Diagnostics: appErr.Diagnostics,
		}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Code returns the error code if err is an AppError, otherwise "UNKNOWN".
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Error codes for the estimation engine.
const (
	CodeInvalidParameter     = "INVALID_PARAMETER"
	CodeSingularCovariance   = "SINGULAR_COVARIANCE"
	CodeUnderidentifiedModel = "UNDERIDENTIFIED_MODEL"
	CodeConvergenceFailure   = "CONVERGENCE_FAILURE"
	CodeNonFiniteLikelihood  = "NON_FINITE_LIKELIHOOD"
	CodeDegenerateChain      = "DEGENERATE_CHAIN"
	CodePartialChains        = "PARTIAL_CHAINS"
	CodeInternal             = "INTERNAL_ERROR"
)

// Constructors for the estimation error kinds.

func InvalidParameter(message string) *AppError {
	return New(CodeInvalidParameter, message)
}

func SingularCovariance(message string) *AppError {
	return New(CodeSingularCovariance, message)
}

func UnderidentifiedModel(message string) *AppError {
	return New(CodeUnderidentifiedModel, message)
}

func ConvergenceFailure(message string) *AppError {
	return New(CodeConvergenceFailure, message)
}

func NonFiniteLikelihood(message string) *AppError {
	return New(CodeNonFiniteLikelihood, message)
}

func DegenerateChain(message string) *AppError {
	return New(CodeDegenerateChain, message)
}

func PartialChains(message string) *AppError {
	return New(CodePartialChains, message)
}

// Matching helpers used by callers and tests.

func IsInvalidParameter(err error) bool   { return HasCode(err, CodeInvalidParameter) }
func IsSingularCovariance(err error) bool { return HasCode(err, CodeSingularCovariance) }
func IsUnderidentified(err error) bool    { return HasCode(err, CodeUnderidentifiedModel) }
func IsConvergenceFailure(err error) bool { return HasCode(err, CodeConvergenceFailure) }
func IsNonFinite(err error) bool          { return HasCode(err, CodeNonFiniteLikelihood) }
func IsDegenerateChain(err error) bool    { return HasCode(err, CodeDegenerateChain) }
func IsPartialChains(err error) bool      { return HasCode(err, CodePartialChains) }
