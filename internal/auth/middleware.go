package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/researchmate/internal/account"
)

var sessionMessages = map[error]string{
	errNoSession:      "Please sign in first.",
	errSessionExpired: "Your session has expired. Please sign in again.",
	errSessionIdle:    "You were inactive for a while. Please sign in again.",
}

// RequireLogin はセッションを検証するミドルウェアを返します。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := loadSession(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    err.Error(),
				"message": sessionMessages[err],
			})
			return
		}
		setContextUser(c, user)
		c.Next()
	}
}

// RequireRole は RequireLogin の後段で、指定ロール以外を 403 で拒否します。
func (m *Manager) RequireRole(roles ...account.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    errNoSession.Error(),
				"message": sessionMessages[errNoSession],
			})
			return
		}
		if !hasRole(user.Role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have access to this resource.",
			})
			return
		}
		c.Next()
	}
}

// RequirePageRole は画面用のミドルウェアです。未ログインやロール不一致の場合はトップへ戻します。
func (m *Manager) RequirePageRole(role account.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := loadSession(c)
		if err != nil || user.Role != role {
			c.Redirect(http.StatusSeeOther, "/")
			c.Abort()
			return
		}
		setContextUser(c, user)
		c.Next()
	}
}

// VerifyCSRF は X-CSRF-Token ヘッダー（またはフォームの csrf_token）を検証するミドルウェアです。
func (m *Manager) VerifyCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}

		session := sessions.Default(c)
		expected, ok := session.Get(sessionKeyCSRF).(string)
		if !ok || expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_MISSING",
				"message": "CSRF token is not set.",
			})
			return
		}

		received := c.GetHeader(csrfHeader)
		if received == "" {
			received = c.PostForm(sessionKeyCSRF)
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(received)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "CSRF_INVALID",
				"message": "CSRF token does not match.",
			})
			return
		}

		c.Next()
	}
}

// CSRFToken はセッションの CSRF トークンを返します。
func CSRFToken(c *gin.Context) string {
	token, _ := sessions.Default(c).Get(sessionKeyCSRF).(string)
	return token
}

func hasRole(role account.Role, allowed []account.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
