package executor

import (
	"errors"
	"fmt"

	"github.com/roach88/graphsql/internal/connector"
)

// ErrorCode categorizes execution errors.
type ErrorCode string

const (
	// ErrCodeExecutionFailed indicates a transport error or a non-zero
	// status from the backend.
	ErrCodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// ErrCodeShapeInvalid indicates a response that does not match the
	// submitted commands.
	ErrCodeShapeInvalid ErrorCode = "SHAPE_INVALID"
)

// ExecutionError ends a query. It carries the commands that were sent and
// the raw response, when there was one.
type ExecutionError struct {
	Code    ErrorCode
	Message string

	Commands []map[string]any
	Response *connector.Response

	Err error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsShapeError reports whether err is a SHAPE_INVALID execution error.
func IsShapeError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Code == ErrCodeShapeInvalid
}

// IsExecutionFailed reports whether err is an EXECUTION_FAILED execution
// error.
func IsExecutionFailed(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee) && ee.Code == ErrCodeExecutionFailed
}
