// Package auth は認証 API とセッション管理のミドルウェアを提供します。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/config"
)

const (
	SessionCookieName    = "rm_session"
	sessionKeyRole       = "auth_role"
	sessionKeyUser       = "auth_user"
	sessionKeyEmail      = "auth_email"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
	sessionKeyCSRF       = "csrf_token"

	csrfHeader = "X-CSRF-Token"
)

var (
	maxSessionLifetime = 12 * time.Hour
	idleTimeout        = 30 * time.Minute
	loginWindow        = 15 * time.Minute
	lockDuration       = 10 * time.Minute
	maxLoginAttempts   = 5
)

// SessionMaxAgeSeconds はクッキーの MaxAge に利用する秒数を返します。
func SessionMaxAgeSeconds() int {
	return int(maxSessionLifetime.Seconds())
}

// ハンドラー間でログイン済みユーザーを共有するためのキーです。
const (
	ContextUserKey  = "auth.user"
	ContextRoleKey  = "auth.role"
	ContextEmailKey = "auth.email"
)

// Accounts は認証 API が利用するアカウント操作です。account.Service が実装します。
type Accounts interface {
	Register(ctx context.Context, reg account.Registration) (*account.User, error)
	VerifyOTP(ctx context.Context, email, code string) error
	ResendOTP(ctx context.Context, email string) error
	Authenticate(ctx context.Context, email, password string) (*account.User, error)
}

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// Manager は認証処理と状態をまとめた構造体です。
type Manager struct {
	cfg      *config.Config
	accounts Accounts
	logger   *zap.Logger
	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。
func NewManager(cfg *config.Config, accounts Accounts, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		accounts: accounts,
		logger:   logger,
		attempts: make(map[string]*attemptState),
	}
}

// StartSession はログイン済みセッションを作成し、CSRF トークンを返します。
func StartSession(c *gin.Context, user *account.User) (string, error) {
	session := sessions.Default(c)
	token, err := PopulateSession(session, user)
	if err != nil {
		return "", err
	}
	if err := session.Save(); err != nil {
		return "", err
	}
	return token, nil
}

// PopulateSession はログイン情報をセッションに設定します。保存は呼び出し側が行います。
func PopulateSession(session sessions.Session, user *account.User) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	session.Set(sessionKeyUser, user.ID)
	session.Set(sessionKeyEmail, user.Email)
	session.Set(sessionKeyRole, string(user.Role))
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	session.Set(sessionKeyCSRF, token)
	return token, nil
}

// EndSession はセッションを破棄します。
func EndSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	return session.Save()
}

// CheckLock は IP がロック中なら残り時間を返します。
func (m *Manager) CheckLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := time.Now()
	if now.After(state.lockedUntil) {
		return 0
	}
	return time.Until(state.lockedUntil)
}

// RecordFailure はログイン失敗を記録し、残り試行回数を返します。
func (m *Manager) RecordFailure(ip string) int {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := time.Now()
	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ResetAttempts はログイン成功時に失敗記録を消します。
func (m *Manager) ResetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}

// SessionUser はセッションから復元したログイン情報です。
type SessionUser struct {
	ID    string
	Email string
	Role  account.Role
}

var (
	errNoSession      = errors.New("UNAUTHORIZED")
	errSessionExpired = errors.New("SESSION_EXPIRED")
	errSessionIdle    = errors.New("SESSION_IDLE_TIMEOUT")
)

// loadSession はセッションの有効期限を確認し、有効なら最終操作時刻を更新します。
func loadSession(c *gin.Context) (*SessionUser, error) {
	session := sessions.Default(c)
	userID, ok := session.Get(sessionKeyUser).(string)
	if !ok || userID == "" {
		return nil, errNoSession
	}

	now := time.Now()
	issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
	lastActive := readUnix(session.Get(sessionKeyLastActive))

	if issuedAt.IsZero() || now.Sub(issuedAt) > maxSessionLifetime {
		session.Clear()
		_ = session.Save()
		return nil, errSessionExpired
	}
	if lastActive.IsZero() || now.Sub(lastActive) > idleTimeout {
		session.Clear()
		_ = session.Save()
		return nil, errSessionIdle
	}

	session.Set(sessionKeyLastActive, now.Unix())
	_ = session.Save()

	email, _ := session.Get(sessionKeyEmail).(string)
	role, _ := session.Get(sessionKeyRole).(string)
	return &SessionUser{ID: userID, Email: email, Role: account.Role(role)}, nil
}

// CurrentUser はミドルウェアが設定したログイン情報を返します。
func CurrentUser(c *gin.Context) (*SessionUser, bool) {
	id := c.GetString(ContextUserKey)
	if id == "" {
		return nil, false
	}
	return &SessionUser{
		ID:    id,
		Email: c.GetString(ContextEmailKey),
		Role:  account.Role(c.GetString(ContextRoleKey)),
	}, true
}

func setContextUser(c *gin.Context, u *SessionUser) {
	c.Set(ContextUserKey, u.ID)
	c.Set(ContextEmailKey, u.Email)
	c.Set(ContextRoleKey, string(u.Role))
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
