package account

import (
	"errors"
	"strings"
)

// Role は利用者区分を表します。画面の出し分けとログイン後の遷移先を決めます。
type Role string

const (
	RoleStudent    Role = "student"
	RoleConsultant Role = "consultant"
	RoleAdmin      Role = "admin"
)

// ErrUnknownRole は定義外のロールが指定された場合に返されます。
var ErrUnknownRole = errors.New("unknown role")

// Roles は有効なロールの一覧です。
var Roles = []Role{RoleStudent, RoleConsultant, RoleAdmin}

// ParseRole は文字列をロールに変換します。大文字小文字と前後の空白は無視します。
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}

// Valid はロールが定義済みかどうかを返します。
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleConsultant, RoleAdmin:
		return true
	default:
		return false
	}
}

// Title は表示用の先頭大文字表記を返します。
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	s := string(r)
	return strings.ToUpper(s[:1]) + s[1:]
}

func (r Role) String() string {
	return string(r)
}
