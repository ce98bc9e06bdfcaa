package vpathfs

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrInvalidArgument indicates a missing or malformed pathname or argument.
	ErrInvalidArgument = fmt.Errorf("invalid argument: %w", fs.ErrInvalid)

	// ErrNotFound indicates the path does not exist.
	ErrNotFound = fmt.Errorf("not found: %w", fs.ErrNotExist)

	// ErrPermissionDenied indicates the provider refused access.
	ErrPermissionDenied = fmt.Errorf("permission denied: %w", fs.ErrPermission)

	// ErrIOFailure is the generic provider I/O failure.
	ErrIOFailure = errors.New("i/o failure")

	// ErrAlreadyClosed indicates an operation on a closed handle or session.
	ErrAlreadyClosed = fmt.Errorf("already closed: %w", fs.ErrClosed)

	// ErrNotImplemented indicates the provider does not support the operation.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionClosed indicates the connection has been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotDirectory indicates the path is not a directory.
	ErrNotDirectory = errors.New("not a directory")
)

// Provider error codes reported through LastErrorCode. The values follow the
// Win32 error space that CIFS servers report.
const (
	CodeSuccess          uint32 = 0
	CodeFileNotFound     uint32 = 2
	CodePathNotFound     uint32 = 3
	CodeAccessDenied     uint32 = 5
	CodeInvalidHandle    uint32 = 6
	CodeNotSupported     uint32 = 50
	CodeBadNetPath       uint32 = 53
	CodeFileExists       uint32 = 80
	CodeInvalidParameter uint32 = 87
	CodeNoMoreFiles      uint32 = 18
	CodeGenFailure       uint32 = 31
)

// ProviderError carries the provider-specific code and message for a failed
// round trip.
type ProviderError struct {
	Code    uint32
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s: %v", e.Code, e.Message, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// PathError records an error and the operation and path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// wrapPathError wraps an error with operation and path information.
func wrapPathError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	// If it's already a PathError for the same path, don't double-wrap
	var pe *PathError
	if errors.As(err, &pe) && pe.Path == path {
		return err
	}

	return &PathError{
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// convertError maps provider and library errors onto the package taxonomy.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrAlreadyClosed),
		errors.Is(err, ErrIOFailure):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, fs.ErrInvalid):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, fs.ErrClosed), errors.Is(err, ErrConnectionClosed):
		return fmt.Errorf("%w: %w", ErrAlreadyClosed, err)
	case errors.Is(err, ErrNotImplemented), errors.Is(err, fs.ErrExist):
		return err
	}

	return fmt.Errorf("%w: %w", ErrIOFailure, err)
}

// errorCode returns the provider code describing err.
func errorCode(err error) uint32 {
	if err == nil {
		return CodeSuccess
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return CodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return CodeAccessDenied
	case errors.Is(err, fs.ErrExist):
		return CodeFileExists
	case errors.Is(err, fs.ErrInvalid):
		return CodeInvalidParameter
	case errors.Is(err, fs.ErrClosed):
		return CodeInvalidHandle
	case errors.Is(err, ErrNotImplemented):
		return CodeNotSupported
	}
	return CodeGenFailure
}

// netError interface for network errors.
type netError interface {
	Timeout() bool
	Temporary() bool
}

// isRetryable returns true if the error indicates a transient failure
// that might succeed if retried.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr netError
	if errors.As(err, &netErr) {
		if netErr.Temporary() || netErr.Timeout() {
			return true
		}
	}

	if errors.Is(err, ErrConnectionClosed) {
		return true
	}

	// Check wrapped errors
	unwrapped := errors.Unwrap(err)
	if unwrapped != nil && unwrapped != err {
		return isRetryable(unwrapped)
	}

	return false
}
