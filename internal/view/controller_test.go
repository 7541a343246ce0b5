package view

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/researchmate/internal/account"
)

type fakeBackend struct {
	registerErr error
	verifyErr   error
	resendErr   error
	loginRole   account.Role
	loginErr    error

	lastReg   account.Registration
	lastEmail string
	lastCode  string
}

func (f *fakeBackend) Register(ctx context.Context, reg account.Registration) (*account.User, error) {
	f.lastReg = reg
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &account.User{ID: "u-1", Email: reg.Email, Role: reg.Role}, nil
}

func (f *fakeBackend) VerifyOTP(ctx context.Context, email, code string) error {
	f.lastEmail, f.lastCode = email, code
	return f.verifyErr
}

func (f *fakeBackend) ResendOTP(ctx context.Context, email string) error {
	f.lastEmail = email
	return f.resendErr
}

func (f *fakeBackend) Login(ctx context.Context, email, password string) (account.Role, error) {
	return f.loginRole, f.loginErr
}

func stateAt(panel Panel) *State {
	s := NewState()
	s.Panel = panel
	return s
}

func TestSelectRoleShowsOneRegisterVariant(t *testing.T) {
	c := NewController(&fakeBackend{})

	for _, role := range account.Roles {
		t.Run(string(role), func(t *testing.T) {
			s := stateAt(PanelRoleSelect)
			require.NoError(t, c.SelectRole(s, string(role)))

			v := s.Render()
			visible := 0
			for _, shown := range []bool{v.ShowLogin, v.ShowRoleSelect, v.ShowRegister, v.ShowOTP} {
				if shown {
					visible++
				}
			}
			assert.Equal(t, 1, visible)
			assert.True(t, v.ShowRegister)
			assert.False(t, v.ShowRoleSelect)
			assert.Equal(t, role == account.RoleConsultant, v.WorkplaceVisible)
			assert.Equal(t, "Register as "+role.Title(), v.Title)
		})
	}
}

func TestSelectConsultantScenario(t *testing.T) {
	c := NewController(&fakeBackend{})
	s := NewState()

	require.NoError(t, c.ShowSignUp(s))
	require.NoError(t, c.SelectRole(s, "consultant"))

	v := s.Render()
	assert.True(t, v.WorkplaceVisible)
	assert.Equal(t, "Email (CIT or personal)", v.EmailPlaceholder)
	assert.True(t, v.RightPanelActive)
}

func TestSelectStudentUsesCampusPlaceholder(t *testing.T) {
	c := NewController(&fakeBackend{})
	s := stateAt(PanelRoleSelect)
	require.NoError(t, c.SelectRole(s, "Student"))

	v := s.Render()
	assert.Equal(t, "Email (e.g. name@cit.edu)", v.EmailPlaceholder)
	assert.False(t, v.WorkplaceVisible)
}

func TestSelectUnknownRoleLeavesStateUnchanged(t *testing.T) {
	c := NewController(&fakeBackend{})
	s := stateAt(PanelRoleSelect)
	before := *s

	err := c.SelectRole(s, "janitor")
	assert.ErrorIs(t, err, account.ErrUnknownRole)
	assert.Empty(t, cmp.Diff(before, *s))
}

func TestSubmitRegistrationShowsOTPPanel(t *testing.T) {
	backend := &fakeBackend{}
	c := NewController(backend)
	s := stateAt(PanelRoleSelect)
	require.NoError(t, c.SelectRole(s, "student"))
	require.NoError(t, c.TogglePassword(s, FieldRegisterPassword))

	err := c.SubmitRegistration(context.Background(), s, account.Registration{
		FullName:  "Ana Cruz",
		Email:     "ana@cit.edu",
		Password:  "secret123",
		Role:      account.RoleAdmin, // フォームの値ではなく選択中のロールが使われる
		Workplace: "ignored",
	})
	require.NoError(t, err)

	v := s.Render()
	assert.True(t, v.ShowOTP)
	assert.False(t, v.ShowRegister)
	assert.Equal(t, "ana@cit.edu", v.PendingEmail)
	assert.Equal(t, "password", v.RegisterPasswordType)
	assert.Equal(t, account.RoleStudent, backend.lastReg.Role)
	assert.Empty(t, backend.lastReg.Workplace)
}

func TestSubmitRegistrationFailureSurfacesServerMessage(t *testing.T) {
	backend := &fakeBackend{registerErr: &account.Error{Code: account.CodeEmailTaken, Message: "Email is already registered."}}
	c := NewController(backend)
	s := &State{Panel: PanelRegister, Role: account.RoleConsultant}

	err := c.SubmitRegistration(context.Background(), s, account.Registration{Email: "x@cit.edu"})
	require.Error(t, err)
	assert.Equal(t, PanelRegister, s.Panel)
	assert.Equal(t, "Email is already registered.", s.Alert)

	backend.registerErr = errors.New("database locked")
	_ = c.SubmitRegistration(context.Background(), s, account.Registration{Email: "x@cit.edu"})
	assert.Equal(t, GenericFailureMessage, s.Alert)
}

func TestSubmitRegistrationFailureKeepsPasswordStrength(t *testing.T) {
	backend := &fakeBackend{registerErr: &account.Error{Code: account.CodeNameTaken, Message: "Name is already registered."}}
	c := NewController(backend)
	s := &State{Panel: PanelRegister, Role: account.RoleStudent}

	require.Error(t, c.SubmitRegistration(context.Background(), s, account.Registration{Email: "x@cit.edu", Password: "abc123"}))
	v := s.Render()
	require.NotNil(t, v.PasswordStrength)
	assert.Equal(t, StrengthMedium, *v.PasswordStrength)

	restored := Decode(mustEncode(t, s))
	require.NotNil(t, restored.Strength)
	assert.Equal(t, StrengthMedium, *restored.Strength)

	require.NoError(t, c.BackToRole(s))
	assert.Nil(t, s.Strength)
}

func mustEncode(t *testing.T, s *State) string {
	t.Helper()
	raw, err := s.Encode()
	require.NoError(t, err)
	return raw
}

func TestSubmitOtp(t *testing.T) {
	backend := &fakeBackend{}
	c := NewController(backend)
	s := &State{Panel: PanelOTPVerify, Role: account.RoleStudent, PendingEmail: "ana@cit.edu"}

	backend.verifyErr = &account.Error{Code: account.CodeInvalidOTP, Message: "expired"}
	require.Error(t, c.SubmitOtp(context.Background(), s, " 123456 "))
	assert.Equal(t, OTPRetryMessage, s.Alert)
	assert.Equal(t, PanelOTPVerify, s.Panel)
	assert.Equal(t, "123456", backend.lastCode)

	backend.verifyErr = nil
	require.NoError(t, c.SubmitOtp(context.Background(), s, "123456"))
	assert.Equal(t, PanelLogin, s.Panel)
	assert.Empty(t, s.PendingEmail)
	assert.Empty(t, s.Alert)
	assert.Equal(t, VerifiedNotice, s.Notice)
}

func TestResendOtp(t *testing.T) {
	backend := &fakeBackend{}
	c := NewController(backend)
	s := &State{Panel: PanelOTPVerify, PendingEmail: "ana@cit.edu"}

	require.NoError(t, c.ResendOtp(context.Background(), s))
	assert.Equal(t, "ana@cit.edu", backend.lastEmail)
	assert.Equal(t, ResentNotice, s.Notice)
}

func TestSubmitLoginRedirectsByRole(t *testing.T) {
	for _, role := range account.Roles {
		c := NewController(&fakeBackend{loginRole: role})
		s := NewState()
		require.NoError(t, c.SubmitLogin(context.Background(), s, "a@cit.edu", "pw"))

		want, _ := DashboardFor(role)
		assert.Equal(t, want, s.Redirect)
		assert.Equal(t, role, s.Role)
	}
}

func TestSubmitLoginUnknownRoleNeverNavigates(t *testing.T) {
	c := NewController(&fakeBackend{loginRole: account.Role("superuser")})
	s := NewState()

	err := c.SubmitLogin(context.Background(), s, "a@cit.edu", "pw")
	assert.ErrorIs(t, err, account.ErrUnknownRole)
	assert.Equal(t, PanelLogin, s.Panel)
	assert.Equal(t, UnknownRoleMessage, s.Alert)
	assert.Empty(t, s.Redirect)
	assert.Empty(t, s.Role)
}

func TestSubmitLoginFailure(t *testing.T) {
	c := NewController(&fakeBackend{loginErr: &account.Error{Code: account.CodeInvalidCredentials, Message: "Invalid email or password."}})
	s := NewState()

	require.Error(t, c.SubmitLogin(context.Background(), s, "a@cit.edu", "bad"))
	assert.Equal(t, "Invalid email or password.", s.Alert)
	assert.Empty(t, s.Redirect)
}

func TestSubmitLoginInactiveResumesVerification(t *testing.T) {
	backend := &fakeBackend{loginErr: &account.Error{Code: account.CodeAccountInactive, Message: "Please verify your email before signing in."}}
	c := NewController(backend)
	s := NewState()

	err := c.SubmitLogin(context.Background(), s, " ana@CIT.edu ", "secret123")
	assert.Equal(t, account.CodeAccountInactive, account.CodeOf(err))
	assert.Equal(t, PanelOTPVerify, s.Panel)
	assert.Equal(t, "ana@cit.edu", s.PendingEmail)
	assert.Equal(t, "ana@cit.edu", backend.lastEmail)
	assert.Contains(t, s.Notice, "ana@cit.edu")
	assert.Empty(t, s.Alert)
	assert.Empty(t, s.Redirect)

	require.NoError(t, c.ResendOtp(context.Background(), s))
}

func TestSubmitLoginInactiveResendFailureStaysOnOtp(t *testing.T) {
	backend := &fakeBackend{
		loginErr:  &account.Error{Code: account.CodeAccountInactive, Message: "Please verify your email before signing in."},
		resendErr: errors.New("smtp down"),
	}
	c := NewController(backend)
	s := NewState()

	require.Error(t, c.SubmitLogin(context.Background(), s, "ana@cit.edu", "secret123"))
	assert.Equal(t, PanelOTPVerify, s.Panel)
	assert.Equal(t, GenericFailureMessage, s.Alert)
}

func TestTogglePasswordTwiceRestoresMask(t *testing.T) {
	c := NewController(&fakeBackend{})
	for _, field := range []string{FieldRegisterPassword, FieldSignInPassword} {
		s := NewState()
		original := *s

		require.NoError(t, c.TogglePassword(s, field))
		assert.True(t, s.PasswordVisible(field))
		require.NoError(t, c.TogglePassword(s, field))
		assert.False(t, s.PasswordVisible(field))
		assert.Empty(t, cmp.Diff(original, *s))
	}
	assert.ErrorIs(t, c.TogglePassword(NewState(), "nope"), ErrUnknownField)
}

func TestInvalidTransitions(t *testing.T) {
	c := NewController(&fakeBackend{})
	ctx := context.Background()

	cases := []struct {
		name  string
		panel Panel
		op    func(*State) error
	}{
		{"sign up from otp", PanelOTPVerify, c.ShowSignUp},
		{"select role from login", PanelLogin, func(s *State) error { return c.SelectRole(s, "student") }},
		{"back to role from login", PanelLogin, c.BackToRole},
		{"register from role select", PanelRoleSelect, func(s *State) error {
			return c.SubmitRegistration(ctx, s, account.Registration{})
		}},
		{"otp from login", PanelLogin, func(s *State) error { return c.SubmitOtp(ctx, s, "1") }},
		{"resend from register", PanelRegister, func(s *State) error { return c.ResendOtp(ctx, s) }},
		{"login from register", PanelRegister, func(s *State) error { return c.SubmitLogin(ctx, s, "a", "b") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := &State{Panel: tc.panel, Role: account.RoleStudent, PendingEmail: "a@cit.edu", Alert: "previous"}
			before := *s
			assert.ErrorIs(t, tc.op(s), ErrInvalidTransition)
			assert.Empty(t, cmp.Diff(before, *s))
		})
	}
}

func TestFullFlow(t *testing.T) {
	c := NewController(&fakeBackend{loginRole: account.RoleConsultant})
	ctx := context.Background()
	s := NewState()

	require.NoError(t, c.ShowSignUp(s))
	require.NoError(t, c.SelectRole(s, "consultant"))
	require.NoError(t, c.BackToRole(s))
	assert.Equal(t, PanelRoleSelect, s.Panel)
	require.NoError(t, c.SelectRole(s, "consultant"))
	require.NoError(t, c.SubmitRegistration(ctx, s, account.Registration{Email: "c@gmail.com", Workplace: "Acme"}))
	require.NoError(t, c.SubmitOtp(ctx, s, "000000"))
	require.NoError(t, c.SubmitLogin(ctx, s, "c@gmail.com", "pw"))
	assert.Equal(t, "/dashboard/consultant", s.Redirect)

	c.Logout(s)
	assert.Equal(t, PanelLogin, s.Panel)
	assert.Empty(t, s.Role)
	assert.Equal(t, LoggedOutNotice, s.Notice)
}
