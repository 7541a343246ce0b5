package web

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/auth"
	"github.com/yourusername/researchmate/internal/view"
)

const lockedMessage = "Too many attempts. Please try again later."

// actionContext は1回の画面操作で使う値をまとめたものです。
type actionContext struct {
	c       *gin.Context
	h       *Handler
	ctrl    *view.Controller
	backend *sessionBackend
	state   *view.State
}

type action func(a *actionContext) error

// actions は画面の要素 ID と操作の対応表です。
var actions = map[string]action{
	"signUp":                 func(a *actionContext) error { return a.ctrl.ShowSignUp(a.state) },
	"signIn":                 func(a *actionContext) error { return a.ctrl.ShowSignIn(a.state) },
	"role-student":           selectRole(account.RoleStudent),
	"role-consultant":        selectRole(account.RoleConsultant),
	"role-admin":             selectRole(account.RoleAdmin),
	"backToRole":             func(a *actionContext) error { return a.ctrl.BackToRole(a.state) },
	"toggleRegisterPassword": togglePassword(view.FieldRegisterPassword),
	"toggleSignInPassword":   togglePassword(view.FieldSignInPassword),
	"register-form":          submitRegistration,
	"otp-form":               submitOtp,
	"otp-resend":             resendOtp,
	"signin-form":            submitLogin,
}

// ElementIDs は対応表に登録された要素 ID を返します。
func ElementIDs() []string {
	ids := make([]string, 0, len(actions))
	for id := range actions {
		ids = append(ids, id)
	}
	return ids
}

func selectRole(role account.Role) action {
	return func(a *actionContext) error {
		return a.ctrl.SelectRole(a.state, string(role))
	}
}

func togglePassword(field string) action {
	return func(a *actionContext) error {
		return a.ctrl.TogglePassword(a.state, field)
	}
}

func submitRegistration(a *actionContext) error {
	year, _ := strconv.Atoi(strings.TrimSpace(a.c.PostForm("student_year_level")))
	reg := account.Registration{
		FullName:      a.c.PostForm("full_name"),
		Email:         a.c.PostForm("email"),
		Password:      a.c.PostForm("password"),
		Workplace:     a.c.PostForm("workplace"),
		ContactNumber: a.c.PostForm("contact_number"),
		Expertise:     a.c.PostForm("expertise"),
		YearLevel:     year,
		Department:    a.c.PostForm("student_department"),
		Course:        a.c.PostForm("student_course"),
		Program:       a.c.PostForm("student_program"),
	}
	return a.ctrl.SubmitRegistration(a.c.Request.Context(), a.state, reg)
}

func submitOtp(a *actionContext) error {
	return a.ctrl.SubmitOtp(a.c.Request.Context(), a.state, a.c.PostForm("otp"))
}

func resendOtp(a *actionContext) error {
	return a.ctrl.ResendOtp(a.c.Request.Context(), a.state)
}

func submitLogin(a *actionContext) error {
	if a.state.Panel != view.PanelLogin {
		return view.ErrInvalidTransition
	}

	ip := a.c.ClientIP()
	if a.h.auth.CheckLock(ip) > 0 {
		a.state.Alert = lockedMessage
		return nil
	}

	err := a.ctrl.SubmitLogin(a.c.Request.Context(), a.state, a.c.PostForm("email"), a.c.PostForm("password"))
	if account.CodeOf(err) == account.CodeInvalidCredentials {
		a.h.auth.RecordFailure(ip)
	}
	if err != nil {
		return err
	}
	a.h.auth.ResetAttempts(ip)

	if _, err := auth.PopulateSession(a.session(), a.backend.user); err != nil {
		a.state.Redirect = ""
		a.state.Alert = view.GenericFailureMessage
		return err
	}
	return nil
}
