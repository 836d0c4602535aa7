// internal/common/errors/handler.go
package errors

import (
	goerrors "errors"
)

// AsStandard unwraps err into a *StandardError when one is in the chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if goerrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr.Code == code
	}
	return false
}

// ToBPMN converts any error into a BPMNError. Unrecognized errors become a
// non-retryable UNKNOWN_ERROR so the process model always sees a stable code.
func ToBPMN(err error) *BPMNError {
	if stdErr, ok := AsStandard(err); ok {
		return ConvertToBPMNError(stdErr)
	}
	return &BPMNError{
		Code:      "UNKNOWN_ERROR",
		Message:   err.Error(),
		Retryable: false,
		Retries:   0,
	}
}
