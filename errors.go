package pluginhost

// This file holds the ambient, structured-error type that the loader,
// manager, and executor packages wrap their failures in before they cross
// a package boundary, and that rpc maps to wire error codes, so that a caller several layers up can still recover the operation and
// category with errors.As, without parsing a message string.

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common host error conditions.
// These can be used with errors.Is() for error checking.
var (
	// ErrPluginNotFound indicates the requested plugin identifier is not known to the manager.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrContractNotFound indicates a contract tag is not present in the contract registry.
	ErrContractNotFound = errors.New("contract not found")

	// ErrInvalidConfig indicates the provided configuration is invalid or incomplete.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrAlreadyLoaded indicates a load was requested for an identifier that is already loaded.
	ErrAlreadyLoaded = errors.New("plugin already loaded")

	// ErrNotReady indicates the plugin is loaded but not in the Ready lifecycle state.
	ErrNotReady = errors.New("plugin not ready")

	// ErrExecutionFailed indicates that a plugin invocation failed.
	// The underlying error should be wrapped for additional context.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrResourceExhausted indicates a plugin reported exhausting a bounded
	// resource (memory, file handles, worker slots, ...) while servicing a
	// call, distinct from an ordinary unhandled exception.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Error kinds categorize errors by their type.
const (
	// KindNotFound represents errors where a resource was not found.
	KindNotFound = "not_found"

	// KindValidation represents errors related to input or manifest validation.
	KindValidation = "validation"

	// KindExecution represents errors that occur during plugin execution.
	KindExecution = "execution"

	// KindConfiguration represents errors related to configuration.
	KindConfiguration = "configuration"

	// KindTimeout represents errors related to operation timeouts.
	KindTimeout = "timeout"

	// KindInternal represents internal host errors not caused by a plugin.
	KindInternal = "internal"

	// KindAlreadyLoaded represents a load request for a plugin identifier
	// that already occupies a slot in the manager.
	KindAlreadyLoaded = "already_loaded"

	// KindContractMismatch represents a hot-swap whose incoming plugin
	// declares a different contract than the one it would replace.
	KindContractMismatch = "contract_mismatch"

	// KindLoadFailed represents a failure in the loader while bringing a
	// plugin's module into the process (spawn, handshake).
	KindLoadFailed = "load_failed"

	// KindInitializeFailed represents a failure of a plugin's initialize
	// lifecycle call.
	KindInitializeFailed = "initialize_failed"

	// KindShutdownFailed represents a failure of a plugin's shutdown
	// lifecycle call.
	KindShutdownFailed = "shutdown_failed"

	// KindResourceExhausted represents a plugin invocation that failed
	// because a bounded resource (memory, file handles, worker slots, ...)
	// was exhausted, rather than an ordinary unhandled exception.
	KindResourceExhausted = "resource_exhausted"
)

// Error is a structured error type that wraps underlying errors with
// additional context about the operation that failed and the category of
// error. It implements the error interface and supports unwrapping, making
// it compatible with errors.Is() and errors.As().
//
// Example usage:
//
//	err := &pluginhost.Error{
//		Op:   "Manager.Load",
//		Kind: pluginhost.KindExecution,
//		Err:  pluginhost.ErrExecutionFailed,
//	}
type Error struct {
	// Op is the operation that failed (e.g., "Manager.Load", "Router.Dispatch").
	Op string

	// Kind categorizes the error (e.g., KindNotFound, KindValidation).
	Kind string

	// Err is the underlying error that caused this error.
	Err error

	// Context provides additional debugging context (plugin name, method, request id, ...).
	Context map[string]any
}

// Error implements the error interface, returning a formatted error message
// that includes the operation, kind, and underlying error.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pluginhost: %s: %s", e.Op, e.Kind)
	}

	if len(e.Context) > 0 {
		return fmt.Sprintf("pluginhost: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}

	return fmt.Sprintf("pluginhost: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error, allowing errors.Is() and errors.As()
// to work correctly with wrapped errors.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error matching for Error, allowing comparison based on
// the underlying error or the Error's Kind/Op.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if t, ok := target.(*Error); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}

	return errors.Is(e.Err, target)
}

// WithContext returns a new Error with the provided context merged in.
// The receiver is not modified.
func (e *Error) WithContext(ctx map[string]any) *Error {
	newErr := *e
	if newErr.Context == nil {
		newErr.Context = make(map[string]any, len(ctx))
	}
	for k, v := range ctx {
		newErr.Context[k] = v
	}
	return &newErr
}

// NewNotFoundError creates a new Error with KindNotFound.
func NewNotFoundError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindNotFound, Err: err}
}

// NewValidationError creates a new Error with KindValidation.
func NewValidationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindValidation, Err: err}
}

// NewExecutionError creates a new Error with KindExecution.
func NewExecutionError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindExecution, Err: err}
}

// NewConfigurationError creates a new Error with KindConfiguration.
func NewConfigurationError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindConfiguration, Err: err}
}

// NewTimeoutError creates a new Error with KindTimeout.
func NewTimeoutError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindTimeout, Err: err}
}

// NewInternalError creates a new Error with KindInternal.
func NewInternalError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInternal, Err: err}
}

// NewAlreadyLoadedError creates a new Error with KindAlreadyLoaded.
func NewAlreadyLoadedError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindAlreadyLoaded, Err: err}
}

// NewContractMismatchError creates a new Error with KindContractMismatch.
func NewContractMismatchError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindContractMismatch, Err: err}
}

// NewLoadFailedError creates a new Error with KindLoadFailed.
func NewLoadFailedError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindLoadFailed, Err: err}
}

// NewInitializeFailedError creates a new Error with KindInitializeFailed.
func NewInitializeFailedError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindInitializeFailed, Err: err}
}

// NewShutdownFailedError creates a new Error with KindShutdownFailed.
func NewShutdownFailedError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindShutdownFailed, Err: err}
}

// NewResourceExhaustedError creates a new Error with KindResourceExhausted.
func NewResourceExhaustedError(op string, err error) *Error {
	return &Error{Op: op, Kind: KindResourceExhausted, Err: err}
}

// CloseWithLog attempts to close the provided resource and logs any error at
// warning level. Intended for defer statements (closing a plugin's stdin
// pipe, a child process, a log file) where the close error must not be
// silently swallowed but also must not fail the caller.
//
// If logger is nil, slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource", "resource", name, "error", err)
	}
}
