package browsy

import (
	"errors"
)

// Error is a failure raised by the bridge itself. Upstream failures are not
// errors: they come back as text from ExecuteOperation.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrPortConflict) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrCodePortConflict     = "PORT_CONFLICT"
	ErrCodeBinaryNotFound   = "BINARY_NOT_FOUND"
	ErrCodeSpawnFailed      = "SPAWN_FAILED"
	ErrCodeStartupTimeout   = "STARTUP_TIMEOUT"
	ErrCodeProcessExit      = "PROCESS_EXIT"
	ErrCodeUnknownOperation = "UNKNOWN_OPERATION"
	ErrCodeInvalidParams    = "INVALID_PARAMS"
	ErrCodeTransport        = "TRANSPORT_ERROR"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeClosed           = "CLOSED"
)

// Sentinels for errors.Is
var (
	ErrPortConflict     = &Error{Code: ErrCodePortConflict, Message: "port conflict"}
	ErrBinaryNotFound   = &Error{Code: ErrCodeBinaryNotFound, Message: "binary not found"}
	ErrSpawnFailed      = &Error{Code: ErrCodeSpawnFailed, Message: "spawn failed"}
	ErrStartupTimeout   = &Error{Code: ErrCodeStartupTimeout, Message: "startup timeout"}
	ErrProcessExit      = &Error{Code: ErrCodeProcessExit, Message: "process exited"}
	ErrUnknownOperation = &Error{Code: ErrCodeUnknownOperation, Message: "unknown operation"}
	ErrInvalidParams    = &Error{Code: ErrCodeInvalidParams, Message: "invalid parameters"}
	ErrTransport        = &Error{Code: ErrCodeTransport, Message: "transport error"}
	ErrClosed           = &Error{Code: ErrCodeClosed, Message: "browsy context closed"}
)

// ErrorCode returns the code of a bridge error, or "" for anything else
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
