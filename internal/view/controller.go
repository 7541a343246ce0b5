package view

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yourusername/researchmate/internal/account"
)

// ErrInvalidTransition は現在のパネルから実行できない操作を表します。状態は変更されません。
var ErrInvalidTransition = errors.New("view: invalid transition")

// ErrUnknownField は表示切替の対象外フィールドを表します。
var ErrUnknownField = errors.New("view: unknown password field")

// 利用者に表示する固定文言。
const (
	GenericFailureMessage = "Something went wrong. Please try again."
	OTPRetryMessage       = "Invalid or expired code. Please try again."
	UnknownRoleMessage    = "Invalid role assigned."
	VerifiedNotice        = "Your email is verified. You can now sign in."
	ResentNotice          = "A new verification code has been sent."
	LoggedOutNotice       = "You have been logged out successfully."
)

// Backend は画面から呼び出す認証処理です。account.Service が実装します。
type Backend interface {
	Register(ctx context.Context, reg account.Registration) (*account.User, error)
	VerifyOTP(ctx context.Context, email, code string) error
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (account.Role, error)
}

var dashboards = map[account.Role]string{
	account.RoleStudent:    "/dashboard/student",
	account.RoleConsultant: "/dashboard/consultant",
	account.RoleAdmin:      "/dashboard/admin",
}

// DashboardFor はロールごとのダッシュボードの URL を返します。未知のロールは ok=false です。
func DashboardFor(role account.Role) (string, bool) {
	url, ok := dashboards[role]
	return url, ok
}

// Controller は State に対する遷移を実行します。状態は保持しません。
type Controller struct {
	backend Backend
}

// NewController は Controller を作成します。
func NewController(backend Backend) *Controller {
	return &Controller{backend: backend}
}

// ShowSignUp はロール選択パネルを表示します。
func (c *Controller) ShowSignUp(s *State) error {
	if s.Panel != PanelLogin && s.Panel != PanelRoleSelect {
		return ErrInvalidTransition
	}
	s.clearMessages()
	s.Panel = PanelRoleSelect
	return nil
}

// ShowSignIn はどのパネルからでもログインパネルに戻ります。
func (c *Controller) ShowSignIn(s *State) error {
	s.clearMessages()
	s.Panel = PanelLogin
	s.PendingEmail = ""
	return nil
}

// SelectRole はロールを選び、そのロールの登録フォームを表示します。
func (c *Controller) SelectRole(s *State, raw string) error {
	if s.Panel != PanelRoleSelect {
		return ErrInvalidTransition
	}
	role, err := account.ParseRole(raw)
	if err != nil {
		return err
	}
	s.clearMessages()
	s.Role = role
	s.Panel = PanelRegister
	return nil
}

// BackToRole は登録フォームからロール選択に戻ります。
func (c *Controller) BackToRole(s *State) error {
	if s.Panel != PanelRegister {
		return ErrInvalidTransition
	}
	s.clearMessages()
	s.Panel = PanelRoleSelect
	return nil
}

// TogglePassword はパスワード欄の伏せ字/平文を切り替えます。
func (c *Controller) TogglePassword(s *State, field string) error {
	if !knownField(field) {
		return ErrUnknownField
	}
	if s.Revealed[field] {
		delete(s.Revealed, field)
		if len(s.Revealed) == 0 {
			s.Revealed = nil
		}
		return nil
	}
	if s.Revealed == nil {
		s.Revealed = make(map[string]bool)
	}
	s.Revealed[field] = true
	return nil
}

// SubmitRegistration は登録を送信します。成功すると OTP 入力パネルに進みます。
// 失敗時はサーバーのメッセージをアラートに設定し、元のエラーを返します。
func (c *Controller) SubmitRegistration(ctx context.Context, s *State, reg account.Registration) error {
	if s.Panel != PanelRegister {
		return ErrInvalidTransition
	}
	s.clearMessages()
	reg.Role = s.Role
	if !WorkplaceVisible(s.Role) {
		reg.Workplace = ""
	}

	user, err := c.backend.Register(ctx, reg)
	if err != nil {
		s.Alert = messageFor(err)
		strength := PasswordStrength(reg.Password)
		s.Strength = &strength
		return err
	}

	s.Panel = PanelOTPVerify
	s.PendingEmail = user.Email
	delete(s.Revealed, FieldRegisterPassword)
	s.Notice = fmt.Sprintf("We sent a verification code to %s.", user.Email)
	return nil
}

// SubmitOtp はコードを検証します。成功するとログインパネルに戻ります。
// 失敗理由は区別せず、常に同じ再試行メッセージを表示します。
func (c *Controller) SubmitOtp(ctx context.Context, s *State, code string) error {
	if s.Panel != PanelOTPVerify {
		return ErrInvalidTransition
	}
	s.clearMessages()

	if err := c.backend.VerifyOTP(ctx, s.PendingEmail, strings.TrimSpace(code)); err != nil {
		s.Alert = OTPRetryMessage
		return err
	}

	s.Panel = PanelLogin
	s.PendingEmail = ""
	s.Notice = VerifiedNotice
	return nil
}

// ResendOtp は保留中のメールアドレスにコードを再送します。
func (c *Controller) ResendOtp(ctx context.Context, s *State) error {
	if s.Panel != PanelOTPVerify {
		return ErrInvalidTransition
	}
	s.clearMessages()
	if err := c.backend.ResendOTP(ctx, s.PendingEmail); err != nil {
		s.Alert = messageFor(err)
		return err
	}
	s.Notice = ResentNotice
	return nil
}

// SubmitLogin は資格情報を送信します。成功するとロールを記録し、遷移先を設定します。
// 未知のロールの場合はアラートのみを設定し、遷移先は設定しません。
// 未検証のアカウントは OTP 入力パネルに移り、新しいコードを送ります。
func (c *Controller) SubmitLogin(ctx context.Context, s *State, email, password string) error {
	if s.Panel != PanelLogin {
		return ErrInvalidTransition
	}
	s.clearMessages()

	role, err := c.backend.Login(ctx, email, password)
	if account.CodeOf(err) == account.CodeAccountInactive {
		c.resumeVerification(ctx, s, account.NormalizeEmail(email))
		return err
	}
	if err != nil {
		s.Alert = messageFor(err)
		return err
	}

	url, ok := DashboardFor(role)
	if !ok {
		s.Alert = UnknownRoleMessage
		return fmt.Errorf("%w: %q", account.ErrUnknownRole, role)
	}
	s.Role = role
	s.Redirect = url
	delete(s.Revealed, FieldSignInPassword)
	return nil
}

// resumeVerification はパスワード確認済みの未検証アカウントを OTP 入力に戻します。
// 再送に失敗してもパネルは移り、利用者は再送ボタンで再試行できます。
func (c *Controller) resumeVerification(ctx context.Context, s *State, email string) {
	s.Panel = PanelOTPVerify
	s.PendingEmail = email
	delete(s.Revealed, FieldSignInPassword)
	if err := c.backend.ResendOTP(ctx, email); err != nil {
		s.Alert = messageFor(err)
		return
	}
	s.Notice = fmt.Sprintf("Please verify your email first. We sent a new code to %s.", email)
}

// Logout はロールを消去し、初期状態に戻します。
func (c *Controller) Logout(s *State) {
	*s = *NewState()
	s.Notice = LoggedOutNotice
}

// messageFor はドメインエラーならそのメッセージを、それ以外は汎用メッセージを返します。
func messageFor(err error) string {
	var accErr *account.Error
	if errors.As(err, &accErr) && accErr.Message != "" {
		return accErr.Message
	}
	return GenericFailureMessage
}
