package common

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
)

// Extraction error kinds. Page-scoped kinds are wrapped in a *PageError.
var (
	ErrUnsupportedDocument = errors.New("unsupported document")
	ErrPageIndex           = errors.New("page index out of range")
	ErrDetection           = errors.New("text detection failed")
	ErrExtraction          = errors.New("structured extraction failed")
	ErrEmptyExtraction     = errors.New("page yielded no usable data")
	ErrNoUsablePages       = errors.New("no page yielded usable data")
)

// PageError ties an error kind to the page it happened on.
type PageError struct {
	Kind     error
	Page     int
	Attempts int
	Err      error
}

func (e *PageError) Error() string {
	msg := fmt.Sprintf("page %d: %v", e.Page, e.Kind)
	if e.Attempts > 0 {
		msg += fmt.Sprintf(" after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewPageError constructs a page-scoped error of the given kind.
func NewPageError(kind error, page int, err error) *PageError {
	return &PageError{Kind: kind, Page: page, Err: err}
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// StatusError is implemented by transport errors that carry an HTTP status code.
type StatusError interface {
	error
	HTTPStatus() int
}

// HTTPStatusError is returned by raw HTTP clients for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPStatusError) HTTPStatus() int { return e.StatusCode }

// RetryableStatus reports whether an HTTP status is worth retrying.
func RetryableStatus(code int) bool {
	switch {
	case code == 408, code == 409, code == 429:
		return true
	case code >= 500:
		return true
	}
	return false
}

// IsRetryable classifies transient transport and service failures.
// Run cancellation and caller misuse are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrUnsupportedDocument) || errors.Is(err, ErrPageIndex) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se StatusError
	if errors.As(err, &se) {
		return RetryableStatus(se.HTTPStatus())
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var retry *RetryableError
	return errors.As(err, &retry)
}

// RetryableError marks an error as transient.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...any) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

// GRPCError maps extraction error kinds onto gRPC status codes.
func GRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnsupportedDocument), errors.Is(err, ErrPageIndex):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrNoUsablePages):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
