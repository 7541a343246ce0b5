package account

import (
	"errors"
	"fmt"
)

// エラーコード一覧。HTTPレスポンスの code にそのまま使われます。
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeNameTaken          = "NAME_TAKEN"
	CodeInvalidOTP         = "INVALID_OTP"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountInactive    = "ACCOUNT_INACTIVE"
	CodeNotFound           = "NOT_FOUND"
)

// ErrNotFound はストアに該当レコードがない場合に返されます。
var ErrNotFound = errors.New("account: not found")

// Error は利用者に提示できるメッセージを持つドメインエラーです。
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

// CodeOf はドメインエラーのコードを返します。ドメインエラーでなければ空文字です。
func CodeOf(err error) string {
	var accErr *Error
	if errors.As(err, &accErr) {
		return accErr.Code
	}
	return ""
}
