package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/auth"
	"github.com/yourusername/researchmate/internal/config"
	"github.com/yourusername/researchmate/internal/view"
)

type stubAccounts struct {
	user        *account.User
	authErr     error
	verifyErr   error
	registerErr error

	registered []account.Registration
	verified   []string
	resent     []string
}

func (s *stubAccounts) Register(ctx context.Context, reg account.Registration) (*account.User, error) {
	s.registered = append(s.registered, reg)
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &account.User{ID: "u-1", Email: reg.Email, Role: reg.Role}, nil
}

func (s *stubAccounts) VerifyOTP(ctx context.Context, email, code string) error {
	s.verified = append(s.verified, email+":"+code)
	return s.verifyErr
}

func (s *stubAccounts) ResendOTP(ctx context.Context, email string) error {
	s.resent = append(s.resent, email)
	return nil
}

func (s *stubAccounts) Authenticate(ctx context.Context, email, password string) (*account.User, error) {
	if s.authErr != nil {
		return nil, s.authErr
	}
	return s.user, nil
}

type browser struct {
	t       *testing.T
	router  http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, accounts auth.Accounts) *browser {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tmpl, err := Templates()
	require.NoError(t, err)

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(sessions.Sessions(auth.SessionCookieName, cookie.NewStore([]byte("test-secret-test-secret-32bytes!"))))
	manager := auth.NewManager(&config.Config{}, accounts, nil)
	NewHandler(accounts, manager, nil).RegisterRoutes(router)

	return &browser{t: t, router: router, cookies: make(map[string]*http.Cookie)}
}

func (b *browser) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.router.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) click(element string, form url.Values) string {
	b.t.Helper()
	if form == nil {
		form = url.Values{}
	}
	rec := b.do(http.MethodPost, "/ui/"+element, form)
	require.Equal(b.t, http.StatusSeeOther, rec.Code, rec.Body.String())
	return rec.Header().Get("Location")
}

func (b *browser) page() string {
	b.t.Helper()
	rec := b.do(http.MethodGet, "/", nil)
	require.Equal(b.t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestUnknownElementIsNotFound(t *testing.T) {
	b := newBrowser(t, &stubAccounts{})
	rec := b.do(http.MethodPost, "/ui/deleteEverything", url.Values{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEveryElementIsRouted(t *testing.T) {
	want := []string{
		"signUp", "signIn", "role-student", "role-consultant", "role-admin", "backToRole",
		"toggleRegisterPassword", "toggleSignInPassword", "register-form", "otp-form",
		"otp-resend", "signin-form",
	}
	assert.ElementsMatch(t, want, ElementIDs())
}

func TestConsultantJourney(t *testing.T) {
	accounts := &stubAccounts{user: &account.User{ID: "u-1", Email: "c@example.com", Role: account.RoleConsultant, Active: true}}
	b := newBrowser(t, accounts)

	assert.Contains(t, b.page(), `id="signin-form"`)

	assert.Equal(t, "/", b.click("signUp", nil))
	body := b.page()
	assert.Contains(t, body, `id="role-selection"`)
	assert.NotContains(t, body, `id="register-form"`)

	b.click("role-consultant", nil)
	body = b.page()
	assert.Contains(t, body, "Register as Consultant")
	assert.Contains(t, body, view.EmailPlaceholder(account.RoleConsultant))
	assert.Contains(t, body, `id="workplace-field"`)
	assert.NotContains(t, body, `id="role-selection"`)

	b.click("register-form", url.Values{
		"full_name": {"Carla Reyes"},
		"email":     {"c@example.com"},
		"password":  {"secret123"},
		"workplace": {"Cebu Research Lab"},
	})
	require.Len(t, accounts.registered, 1)
	assert.Equal(t, account.RoleConsultant, accounts.registered[0].Role)
	assert.Equal(t, "Cebu Research Lab", accounts.registered[0].Workplace)
	assert.Contains(t, b.page(), `id="otp-form"`)

	b.click("otp-form", url.Values{"otp": {"123456"}})
	assert.Equal(t, []string{"c@example.com:123456"}, accounts.verified)
	body = b.page()
	assert.Contains(t, body, view.VerifiedNotice)
	assert.Contains(t, body, `id="signin-form"`)
	assert.NotContains(t, b.page(), view.VerifiedNotice, "notice is shown once")

	assert.Equal(t, "/dashboard/consultant", b.click("signin-form", url.Values{
		"email":    {"c@example.com"},
		"password": {"secret123"},
	}))

	rec := b.do(http.MethodGet, "/dashboard/consultant", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "c@example.com")
	assert.Contains(t, rec.Body.String(), `name="csrf_token"`)

	rec = b.do(http.MethodGet, "/dashboard/admin", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = b.do(http.MethodGet, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, b.page(), view.LoggedOutNotice)

	rec = b.do(http.MethodGet, "/dashboard/consultant", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestInvalidTransitionKeepsPanel(t *testing.T) {
	b := newBrowser(t, &stubAccounts{})

	assert.Equal(t, "/", b.click("backToRole", nil))
	assert.Equal(t, "/", b.click("role-admin", nil))
	body := b.page()
	assert.Contains(t, body, `id="signin-form"`)
	assert.NotContains(t, body, `id="register-form"`)
}

func TestOtpFailureShowsRetryMessage(t *testing.T) {
	accounts := &stubAccounts{verifyErr: &account.Error{Code: account.CodeInvalidOTP, Message: "expired"}}
	b := newBrowser(t, accounts)

	b.click("signUp", nil)
	b.click("role-student", nil)
	b.click("register-form", url.Values{
		"full_name":          {"Sam Santos"},
		"email":              {"sam@cit.edu"},
		"password":           {"secret123"},
		"student_year_level": {"2"},
	})
	require.Len(t, accounts.registered, 1)
	assert.Equal(t, 2, accounts.registered[0].YearLevel)

	b.click("otp-form", url.Values{"otp": {"000000"}})
	body := b.page()
	assert.Contains(t, body, view.OTPRetryMessage)
	assert.Contains(t, body, `id="otp-form"`)
}

func TestLoginWithUnknownRoleStaysOnLogin(t *testing.T) {
	b := newBrowser(t, &stubAccounts{user: &account.User{ID: "u-9", Email: "x@cit.edu", Role: "registrar", Active: true}})

	assert.Equal(t, "/", b.click("signin-form", url.Values{"email": {"x@cit.edu"}, "password": {"pw"}}))
	body := b.page()
	assert.Contains(t, body, view.UnknownRoleMessage)
	assert.Contains(t, body, `id="signin-form"`)

	for _, role := range account.Roles {
		path, _ := view.DashboardFor(role)
		rec := b.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusSeeOther, rec.Code, path)
	}
}

func TestLoginFailureShowsServerMessage(t *testing.T) {
	b := newBrowser(t, &stubAccounts{authErr: &account.Error{Code: account.CodeInvalidCredentials, Message: "Invalid email or password."}})

	b.click("signin-form", url.Values{"email": {"a@cit.edu"}, "password": {"bad"}})
	assert.Contains(t, b.page(), "Invalid email or password.")
}

func TestTogglePasswordVisibility(t *testing.T) {
	b := newBrowser(t, &stubAccounts{})

	assert.Contains(t, b.page(), `type="password" id="signinPassword"`)
	b.click("toggleSignInPassword", nil)
	assert.Contains(t, b.page(), `type="text" id="signinPassword"`)
	b.click("toggleSignInPassword", nil)
	assert.Contains(t, b.page(), `type="password" id="signinPassword"`)
}

func TestInactiveLoginResumesVerification(t *testing.T) {
	accounts := &stubAccounts{authErr: &account.Error{Code: account.CodeAccountInactive, Message: "Please verify your email before signing in."}}
	b := newBrowser(t, accounts)

	b.click("signUp", nil)
	b.click("role-student", nil)
	b.click("register-form", url.Values{
		"full_name": {"Sam Santos"},
		"email":     {"sam@cit.edu"},
		"password":  {"secret123"},
	})
	// OTP 入力を離れてログインパネルに戻ると保留中のメールアドレスは消える
	b.click("signIn", nil)
	assert.Contains(t, b.page(), `id="signin-form"`)

	assert.Equal(t, "/", b.click("signin-form", url.Values{"email": {"sam@CIT.edu"}, "password": {"secret123"}}))
	body := b.page()
	assert.Contains(t, body, `id="otp-form"`)
	assert.Contains(t, body, "sam@cit.edu")
	assert.Equal(t, []string{"sam@cit.edu"}, accounts.resent)

	b.click("otp-resend", nil)
	assert.Equal(t, []string{"sam@cit.edu", "sam@cit.edu"}, accounts.resent)

	b.click("otp-form", url.Values{"otp": {"123456"}})
	assert.Equal(t, []string{"sam@cit.edu:123456"}, accounts.verified)
	assert.Contains(t, b.page(), view.VerifiedNotice)
}

func TestRegisterFormShowsPasswordStrength(t *testing.T) {
	accounts := &stubAccounts{registerErr: &account.Error{Code: account.CodeEmailTaken, Message: "Email is already registered."}}
	b := newBrowser(t, accounts)

	b.click("signUp", nil)
	b.click("role-consultant", nil)
	body := b.page()
	assert.Contains(t, body, `id="passwordStrength"`)
	assert.Contains(t, body, "/api/auth/password-strength")
	assert.Contains(t, body, `aria-live="polite"></div>`)

	b.click("register-form", url.Values{
		"full_name": {"Carla Reyes"},
		"email":     {"carla@example.com"},
		"password":  {"abcd123!"},
	})
	body = b.page()
	assert.Contains(t, body, "Email is already registered.")
	assert.Contains(t, body, "Password strength: Strong")
	assert.NotContains(t, body, "abcd123!")
}
