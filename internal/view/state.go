// Package view はログイン/登録画面の表示状態と、その状態遷移を提供します。
//
// 画面は login, role-select, register, otp-verify のいずれか1枚だけを表示します。
// 状態は State 値として明示的に受け渡し、セッションには JSON で保存します。
package view

import (
	"encoding/json"

	"github.com/yourusername/researchmate/internal/account"
)

// Panel は表示中のパネルです。
type Panel string

const (
	PanelLogin      Panel = "login"
	PanelRoleSelect Panel = "role-select"
	PanelRegister   Panel = "register"
	PanelOTPVerify  Panel = "otp-verify"
)

// パスワード表示切替の対象フィールド。
const (
	FieldRegisterPassword = "passwordField"
	FieldSignInPassword   = "signinPassword"
)

// State は1セッション分の画面状態です。
type State struct {
	Panel        Panel           `json:"panel"`
	Role         account.Role    `json:"role,omitempty"`
	PendingEmail string          `json:"pendingEmail,omitempty"`
	Alert        string          `json:"alert,omitempty"`
	Notice       string          `json:"notice,omitempty"`
	Redirect     string          `json:"redirect,omitempty"`
	Revealed     map[string]bool `json:"revealed,omitempty"`
	// Strength は登録に失敗したときのパスワード強度です。パスワード自体は保存しません。
	Strength *Strength `json:"strength,omitempty"`
}

// NewState はログインパネルを表示する初期状態を返します。
func NewState() *State {
	return &State{Panel: PanelLogin}
}

// Decode はセッションに保存された JSON から状態を復元します。
// 壊れた値や矛盾する値は初期状態に寄せて補正します。
func Decode(raw string) *State {
	if raw == "" {
		return NewState()
	}
	var s State
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return NewState()
	}
	s.normalize()
	return &s
}

// Encode はセッション保存用の JSON を返します。
func (s *State) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ConsumeMessages はアラートと通知、遷移先を取り出して状態から消します。
// アラートは1回表示したら消える。
func (s *State) ConsumeMessages() (alert, notice, redirect string) {
	alert, notice, redirect = s.Alert, s.Notice, s.Redirect
	s.Alert, s.Notice, s.Redirect = "", "", ""
	return alert, notice, redirect
}

// PasswordVisible はフィールドが平文表示かどうかを返します。
func (s *State) PasswordVisible(field string) bool {
	return s.Revealed[field]
}

func (s *State) normalize() {
	switch s.Panel {
	case PanelLogin, PanelRoleSelect, PanelRegister, PanelOTPVerify:
	default:
		s.Panel = PanelLogin
	}
	if s.Role != "" && !s.Role.Valid() {
		s.Role = ""
	}
	if s.Panel == PanelRegister && s.Role == "" {
		s.Panel = PanelRoleSelect
	}
	if s.Panel == PanelOTPVerify && s.PendingEmail == "" {
		s.Panel = PanelLogin
	}
	if s.Panel != PanelRegister {
		s.Strength = nil
	}
	for field := range s.Revealed {
		if !knownField(field) || !s.Revealed[field] {
			delete(s.Revealed, field)
		}
	}
}

func (s *State) clearMessages() {
	s.Alert, s.Notice, s.Redirect = "", "", ""
	s.Strength = nil
}

func knownField(field string) bool {
	return field == FieldRegisterPassword || field == FieldSignInPassword
}
