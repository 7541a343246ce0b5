// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/auth"
	"github.com/yourusername/researchmate/internal/config"
	"github.com/yourusername/researchmate/internal/database"
	"github.com/yourusername/researchmate/internal/logging"
	"github.com/yourusername/researchmate/internal/otp"
	"github.com/yourusername/researchmate/internal/storage"
	"github.com/yourusername/researchmate/internal/verification"
	"github.com/yourusername/researchmate/internal/web"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.GinMode, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

// app はルーティングに必要な依存関係です。
type app struct {
	cfg           *config.Config
	logger        *zap.Logger
	accounts      *account.Service
	verifications *verification.Service
	delivery      *delivery
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SessionSecret == "" {
		// リリースモードでは Validate で弾かれるため、ここに来るのは開発時のみ
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		cfg.SessionSecret = secret
		logger.Warn("SESSION_SECRET is not set; using a random secret, sessions will not survive restarts")
	}

	db, err := database.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	accountStore := account.NewSQLStore(db)
	verificationStore := verification.NewSQLStore(db)
	if err := migrate(ctx, accountStore, verificationStore); err != nil {
		return err
	}

	dlv, err := setupDelivery(ctx, cfg, newSender(cfg, logger), logger)
	if err != nil {
		return fmt.Errorf("failed to set up mail delivery: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dlv.shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to stop mail delivery", zap.Error(err))
		}
	}()

	files, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		return err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		accounts: account.NewService(accountStore,
			otp.NewIssuer(dlv.store, cfg.OTPTTL(), cfg.OTPMaxAttempts),
			dlv.notifier, logger.Named("account")),
		verifications: verification.NewService(verificationStore, files, verification.Limits{
			MaxSize:  cfg.MaxDocumentSize,
			MaxPages: cfg.MaxDocumentPages,
		}, logger.Named("verification")),
		delivery: dlv,
	}

	router, err := a.router()
	if err != nil {
		return err
	}

	// サーバーの起動
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("mode", cfg.GinMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrate(ctx context.Context, accounts *account.SQLStore, verifications *verification.SQLStore) error {
	if err := accounts.Migrate(ctx); err != nil {
		return err
	}
	return verifications.Migrate(ctx)
}

func (a *app) router() (*gin.Engine, error) {
	// Ginのモードを設定
	gin.SetMode(a.cfg.GinMode)

	router := gin.New()
	router.Use(logging.GinLogger(a.logger.Named("http")), gin.Recovery())

	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}
	router.SetHTMLTemplate(tmpl)

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(a.cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   a.cfg.GinMode == gin.ReleaseMode,
		SameSite: http.SameSiteStrictMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(a.cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
	}
	// フロントエンドがレスポンスヘッダーから CSRF トークンを読み取れるように公開
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token"}
	router.Use(cors.New(corsConfig))

	a.setupRoutes(router)
	return router, nil
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "researchmate-api",
		"version": "0.1.0",
	})
}

// setupRoutes は画面、認証 API、検証 API の配線を行います。
func (a *app) setupRoutes(router *gin.Engine) {
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(a.cfg, a.accounts, a.logger.Named("auth"))
	web.NewHandler(a.accounts, authManager, a.logger.Named("web")).RegisterRoutes(router)
	verificationHandler := verification.NewHandler(a.verifications, a.logger.Named("verification"))

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン前の操作はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/register", authManager.Register)
			authRoutes.POST("/verify-otp", authManager.VerifyOTP)
			authRoutes.POST("/resend-otp", authManager.ResendOTP)
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/password-strength", authManager.PasswordStrength)
			authRoutes.GET("/session", authManager.RequireLogin(), authManager.Session)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		protected := api.Group("")
		protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			protected.POST("/consultant/verification",
				authManager.RequireRole(account.RoleConsultant),
				verificationHandler.Submit,
			)

			admin := protected.Group("/admin", authManager.RequireRole(account.RoleAdmin))
			admin.GET("/verifications", verificationHandler.List)
			admin.POST("/verifications/:id/approve", verificationHandler.Approve)
			admin.POST("/verifications/:id/reject", verificationHandler.Reject)
			admin.GET("/verifications/:id/document", verificationHandler.Document)
			if a.delivery.manager != nil {
				admin.GET("/mail-jobs/:id", mailJobStatusHandler(a.delivery.manager))
			}
		}
	}
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
