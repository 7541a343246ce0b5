// Package web はログイン/登録画面とダッシュボードをサーバー側で描画します。
//
// 画面操作は POST /ui/:element で受け付け、要素 ID を対応表から引いて状態を更新した後、
// トップページ（またはダッシュボード）へリダイレクトします。
package web

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/auth"
	"github.com/yourusername/researchmate/internal/view"
)

// セッションに保存する画面用のキー。
const (
	SessionKeyView = "view_state"
	SessionKeyRole = "userRole"
)

// Handler は画面のハンドラーです。
type Handler struct {
	accounts auth.Accounts
	auth     *auth.Manager
	logger   *zap.Logger
}

// NewHandler は Handler を作成します。
func NewHandler(accounts auth.Accounts, authManager *auth.Manager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{accounts: accounts, auth: authManager, logger: logger}
}

// RegisterRoutes は画面のルートを登録します。テンプレートは事前に SetHTMLTemplate で設定してください。
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/", h.Page)
	r.POST("/ui/:element", h.Act)
	r.GET("/logout", h.Logout)
	for _, role := range account.Roles {
		url, _ := view.DashboardFor(role)
		r.GET(url, h.auth.RequirePageRole(role), h.Dashboard(role))
	}
}

// Page は現在の状態から画面を描画します。アラートと通知は1回だけ表示されます。
func (h *Handler) Page(c *gin.Context) {
	session := sessions.Default(c)
	state := loadState(session)

	v := state.Render()
	state.ConsumeMessages()
	if err := saveState(session, state); err != nil {
		h.logger.Error("failed to save view state", zap.Error(err))
	}

	c.HTML(http.StatusOK, pageTemplate, gin.H{
		"View":       v,
		"StudentYrs": studentYears,
	})
}

// Act は要素 ID に対応する操作を実行し、PRG でリダイレクトします。
func (h *Handler) Act(c *gin.Context) {
	id := c.Param("element")
	act, ok := actions[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "UNKNOWN_ELEMENT",
			"message": "Unknown element: " + id,
		})
		return
	}

	session := sessions.Default(c)
	state := loadState(session)
	backend := &sessionBackend{accounts: h.accounts}
	a := &actionContext{
		c:       c,
		h:       h,
		ctrl:    view.NewController(backend),
		backend: backend,
		state:   state,
	}

	if err := act(a); err != nil {
		h.logActionError(id, err)
	}

	target := state.Redirect
	state.Redirect = ""
	if target == "" {
		target = "/"
	}

	if err := saveState(session, state); err != nil {
		h.logger.Error("failed to save view state", zap.String("element", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": view.GenericFailureMessage,
		})
		return
	}
	c.Redirect(http.StatusSeeOther, target)
}

// Logout はセッションを破棄し、ログインパネルに戻します。
func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()

	state := view.NewState()
	view.NewController(nil).Logout(state)
	if err := saveState(session, state); err != nil {
		h.logger.Error("failed to clear session", zap.Error(err))
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// Dashboard はロール別のダッシュボードを描画します。RequirePageRole の後段で使います。
func (h *Handler) Dashboard(role account.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := auth.CurrentUser(c)
		if !ok {
			c.Redirect(http.StatusSeeOther, "/")
			return
		}
		c.HTML(http.StatusOK, dashboardTemplate, gin.H{
			"Email":     user.Email,
			"Role":      role,
			"RoleTitle": role.Title(),
			"CSRFToken": auth.CSRFToken(c),
		})
	}
}

func (h *Handler) logActionError(id string, err error) {
	var accErr *account.Error
	switch {
	case errors.Is(err, view.ErrInvalidTransition),
		errors.Is(err, view.ErrUnknownField),
		errors.Is(err, account.ErrUnknownRole):
		h.logger.Debug("ignored ui action", zap.String("element", id), zap.Error(err))
	case errors.As(err, &accErr):
		h.logger.Info("ui action rejected", zap.String("element", id), zap.String("code", accErr.Code))
	default:
		h.logger.Error("ui action failed", zap.String("element", id), zap.Error(err))
	}
}

func loadState(session sessions.Session) *view.State {
	raw, _ := session.Get(SessionKeyView).(string)
	return view.Decode(raw)
}

func saveState(session sessions.Session, state *view.State) error {
	raw, err := state.Encode()
	if err != nil {
		return err
	}
	session.Set(SessionKeyView, raw)
	if state.Role != "" {
		session.Set(SessionKeyRole, string(state.Role))
	} else {
		session.Delete(SessionKeyRole)
	}
	return session.Save()
}

func (a *actionContext) session() sessions.Session {
	return sessions.Default(a.c)
}
