package view

import (
	"strings"
	"unicode/utf8"
)

// Strength はパスワード強度の表示です。
type Strength struct {
	Label string `json:"strength"`
	Color string `json:"color"`
}

var (
	StrengthWeak   = Strength{Label: "Weak", Color: "red"}
	StrengthMedium = Strength{Label: "Medium", Color: "orange"}
	StrengthStrong = Strength{Label: "Strong", Color: "green"}
)

const strengthSymbols = "!@#$%^&*"

// PasswordStrength は入力中のパスワードの強度を判定します。
// 6文字以上で英字と数字を含めば Medium、8文字以上でさらに記号を含めば Strong です。
// 長さはバイト数ではなく文字数で数えます。
func PasswordStrength(pw string) Strength {
	var letter, digit, symbol bool
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(strengthSymbols, r):
			symbol = true
		}
	}

	n := utf8.RuneCountInString(pw)
	switch {
	case n >= 8 && letter && digit && symbol:
		return StrengthStrong
	case n >= 6 && letter && digit:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

// Text は画面表示用の文言を返します。
func (s Strength) Text() string {
	return "Password strength: " + s.Label
}
