package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/view"
)

type registerRequest struct {
	FullName      string `json:"fullName" binding:"required"`
	Email         string `json:"email" binding:"required"`
	Password      string `json:"password" binding:"required"`
	Role          string `json:"role" binding:"required"`
	Workplace     string `json:"workplace"`
	ContactNumber string `json:"contactNumber"`
	Expertise     string `json:"expertise"`
	YearLevel     int    `json:"yearLevel"`
	Department    string `json:"department"`
	Course        string `json:"course"`
	Program       string `json:"program"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

type resendRequest struct {
	Email string `json:"email" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type strengthRequest struct {
	Password string `json:"password"`
}

// Register は POST /api/auth/register のハンドラーです。
func (m *Manager) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    account.CodeInvalidInput,
			"message": "Send fullName, email, password and role as JSON.",
		})
		return
	}

	user, err := m.accounts.Register(c.Request.Context(), account.Registration{
		FullName:      req.FullName,
		Email:         req.Email,
		Password:      req.Password,
		Role:          account.Role(req.Role),
		Workplace:     req.Workplace,
		ContactNumber: req.ContactNumber,
		Expertise:     req.Expertise,
		YearLevel:     req.YearLevel,
		Department:    req.Department,
		Course:        req.Course,
		Program:       req.Program,
	})
	if err != nil {
		m.respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"email": user.Email,
		"role":  user.Role,
	})
}

// VerifyOTP は POST /api/auth/verify-otp のハンドラーです。
func (m *Manager) VerifyOTP(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    account.CodeInvalidInput,
			"message": "Send email and code as JSON.",
		})
		return
	}
	if err := m.accounts.VerifyOTP(c.Request.Context(), req.Email, req.Code); err != nil {
		m.respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResendOTP は POST /api/auth/resend-otp のハンドラーです。
func (m *Manager) ResendOTP(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    account.CodeInvalidInput,
			"message": "Send email as JSON.",
		})
		return
	}
	if err := m.accounts.ResendOTP(c.Request.Context(), req.Email); err != nil {
		m.respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Login は POST /api/auth/login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    account.CodeInvalidInput,
			"message": "Send email and password as JSON.",
		})
		return
	}

	ip := c.ClientIP()
	if retryAfter := m.CheckLock(ip); retryAfter > 0 {
		// Retry-After は秒数またはHTTP-Date形式が推奨されているため秒数で返す
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "Too many attempts. Please try again later.",
		})
		return
	}

	user, err := m.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if account.CodeOf(err) == account.CodeInvalidCredentials {
			remaining := m.RecordFailure(ip)
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":              account.CodeInvalidCredentials,
				"message":           "Invalid email or password.",
				"remainingAttempts": remaining,
			})
			return
		}
		m.respondWithError(c, err)
		return
	}
	m.ResetAttempts(ip)

	redirect, ok := view.DashboardFor(user.Role)
	if !ok {
		m.logger.Warn("login with unknown role", zap.String("userID", user.ID), zap.String("role", string(user.Role)))
		c.JSON(http.StatusForbidden, gin.H{
			"code":    "UNKNOWN_ROLE",
			"message": view.UnknownRoleMessage,
		})
		return
	}

	token, err := StartSession(c, user)
	if err != nil {
		m.logger.Error("failed to save session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "Failed to save the session.",
		})
		return
	}

	c.Header(csrfHeader, token)
	c.JSON(http.StatusOK, gin.H{
		"role":     user.Role,
		"redirect": redirect,
	})
}

// Logout は /api/auth/logout のハンドラーです。
func (m *Manager) Logout(c *gin.Context) {
	if err := EndSession(c); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "Failed to clear the session.",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// Session は GET /api/auth/session のハンドラーです。RequireLogin の後段で使います。
func (m *Manager) Session(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":    errNoSession.Error(),
			"message": sessionMessages[errNoSession],
		})
		return
	}
	c.Header(csrfHeader, CSRFToken(c))
	c.JSON(http.StatusOK, gin.H{
		"email": user.Email,
		"role":  user.Role,
	})
}

// PasswordStrength は POST /api/auth/password-strength のハンドラーです。
func (m *Manager) PasswordStrength(c *gin.Context) {
	var req strengthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    account.CodeInvalidInput,
			"message": "Send password as JSON.",
		})
		return
	}
	c.JSON(http.StatusOK, view.PasswordStrength(req.Password))
}

var statusByCode = map[string]int{
	account.CodeInvalidInput:       http.StatusBadRequest,
	account.CodeEmailTaken:         http.StatusConflict,
	account.CodeNameTaken:          http.StatusConflict,
	account.CodeInvalidOTP:         http.StatusBadRequest,
	account.CodeInvalidCredentials: http.StatusUnauthorized,
	account.CodeAccountInactive:    http.StatusForbidden,
	account.CodeNotFound:           http.StatusNotFound,
}

func (m *Manager) respondWithError(c *gin.Context, err error) {
	var accErr *account.Error
	switch {
	case errors.As(err, &accErr):
		status, ok := statusByCode[accErr.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"code":    accErr.Code,
			"message": accErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "The request was canceled.",
		})
	default:
		m.logger.Error("auth request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": view.GenericFailureMessage,
		})
	}
}
