package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/config"
	"github.com/yourusername/researchmate/internal/database"
	"github.com/yourusername/researchmate/internal/mail"
	"github.com/yourusername/researchmate/internal/otp"
	"github.com/yourusername/researchmate/internal/storage"
	"github.com/yourusername/researchmate/internal/verification"
)

func newTestApp(t *testing.T) (*app, http.Handler) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	cfg := &config.Config{
		SessionSecret:      "test-secret-test-secret-32bytes!",
		GinMode:            gin.TestMode,
		CORSAllowedOrigins: "http://localhost:5173",
		OTPTTLMinutes:      10,
		OTPMaxAttempts:     5,
	}
	logger := zap.NewNop()

	db, err := database.Open(ctx, filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	accountStore := account.NewSQLStore(db)
	verificationStore := verification.NewSQLStore(db)
	require.NoError(t, migrate(ctx, accountStore, verificationStore))

	dlv, err := setupDelivery(ctx, cfg, &captureSender{}, logger)
	require.NoError(t, err)
	files, err := storage.NewLocal(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	a := &app{
		cfg:    cfg,
		logger: logger,
		accounts: account.NewService(accountStore,
			otp.NewIssuer(dlv.store, cfg.OTPTTL(), cfg.OTPMaxAttempts),
			dlv.notifier, logger, account.WithHashCost(bcrypt.MinCost)),
		verifications: verification.NewService(verificationStore, files, verification.Limits{}, logger),
		delivery:      dlv,
	}
	router, err := a.router()
	require.NoError(t, err)
	return a, router
}

func TestHealthAndPage(t *testing.T) {
	_, router := newTestApp(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `id="signin-form"`)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a, router := newTestApp(t)
	_, err := a.accounts.CreateAdmin(context.Background(), "Root Admin", "root@cit.edu", "supersecret", "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/verifications", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	body, _ := json.Marshal(map[string]string{"email": "root@cit.edu", "password": "supersecret"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/admin/verifications?status=pending", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"verifications":[]}`, rec.Body.String())
}

type captureSender struct {
	sent []mail.Message
}

func (s *captureSender) Send(ctx context.Context, msg mail.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}
