package verification

import (
	"errors"
	"fmt"
)

const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeLimitExceeded   = "LIMIT_EXCEEDED"
	CodeInvalidDocument = "INVALID_DOCUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeAlreadyReviewed = "ALREADY_REVIEWED"
)

// ErrNotFound は該当する申請がない場合に返されます。
var ErrNotFound = errors.New("verification: not found")

// Error は API レスポンスに変換されるエラーです。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
