package view

import "github.com/yourusername/researchmate/internal/account"

const (
	placeholderCampus   = "Email (e.g. name@cit.edu)"
	placeholderAnywhere = "Email (CIT or personal)"
)

// View はテンプレートに渡す表示用の値です。State から純粋に導出されます。
type View struct {
	Panel            Panel
	RightPanelActive bool
	ShowLogin        bool
	ShowRoleSelect   bool
	ShowRegister     bool
	ShowOTP          bool

	Role             account.Role
	Roles            []account.Role
	Title            string
	EmailPlaceholder string
	WorkplaceVisible bool

	RegisterPasswordType string
	SignInPasswordType   string
	PasswordStrength     *Strength

	PendingEmail string
	Alert        string
	Notice       string
}

// Render は状態から表示用の値を組み立てます。
func (s *State) Render() View {
	v := View{
		Panel:                s.Panel,
		RightPanelActive:     s.Panel != PanelLogin,
		ShowLogin:            s.Panel == PanelLogin,
		ShowRoleSelect:       s.Panel == PanelRoleSelect,
		ShowRegister:         s.Panel == PanelRegister,
		ShowOTP:              s.Panel == PanelOTPVerify,
		Role:                 s.Role,
		Roles:                account.Roles,
		EmailPlaceholder:     placeholderCampus,
		RegisterPasswordType: inputType(s.PasswordVisible(FieldRegisterPassword)),
		SignInPasswordType:   inputType(s.PasswordVisible(FieldSignInPassword)),
		PendingEmail:         s.PendingEmail,
		Alert:                s.Alert,
		Notice:               s.Notice,
	}
	if v.ShowRegister {
		v.Title = "Register as " + s.Role.Title()
		v.EmailPlaceholder = EmailPlaceholder(s.Role)
		v.WorkplaceVisible = WorkplaceVisible(s.Role)
		v.PasswordStrength = s.Strength
	}
	return v
}

// EmailPlaceholder はロールに応じたメール欄のプレースホルダーを返します。
func EmailPlaceholder(role account.Role) string {
	if role == account.RoleConsultant {
		return placeholderAnywhere
	}
	return placeholderCampus
}

// WorkplaceVisible は勤務先欄を表示するかどうかを返します。コンサルタントのみ表示します。
func WorkplaceVisible(role account.Role) bool {
	return role == account.RoleConsultant
}

func inputType(visible bool) string {
	if visible {
		return "text"
	}
	return "password"
}
