// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// アプリケーション設定
	SessionSecret string // セッション署名用の秘密鍵
	LogLevel      string // ログレベル (debug, info, warn, error)

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// データベース設定
	DatabasePath string // SQLiteファイルのパス

	// Redis / キュー設定
	RedisURL         string // OTP保存とメールキュー用のRedis接続URL（空ならインメモリ＋同期送信）
	MailWorkers      int    // メール送信ワーカーの並列数
	JobExpireMinutes int    // 送信ジョブ記録の有効期限（分）

	// OTP設定
	OTPTTLMinutes  int // OTPの有効期限（分）
	OTPMaxAttempts int // OTPの最大試行回数

	// メール設定
	MailFrom     string // 送信元アドレス
	SMTPHost     string // SMTPホスト（空ならログ出力のみ）
	SMTPPort     int    // SMTPポート
	SMTPUsername string // SMTPユーザー名
	SMTPPassword string // SMTPパスワード

	// 検証書類設定
	UploadDir        string // 検証書類の保存先ディレクトリ
	MaxDocumentSize  int64  // 書類の最大サイズ（バイト）
	MaxDocumentPages int    // PDF書類の最大ページ数
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		SessionSecret: getEnv("SESSION_SECRET", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		DatabasePath: getEnv("DATABASE_PATH", "researchmate.db"),

		RedisURL:         getEnv("REDIS_URL", ""),
		MailWorkers:      getEnvAsInt("MAIL_WORKERS", 2),
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 60),

		OTPTTLMinutes:  getEnvAsInt("OTP_TTL_MINUTES", 10),
		OTPMaxAttempts: getEnvAsInt("OTP_MAX_ATTEMPTS", 5),

		MailFrom:     getEnv("MAIL_FROM", "no-reply@researchmate.local"),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		UploadDir:        getEnv("UPLOAD_DIR", "uploads"),
		MaxDocumentSize:  getEnvAsInt64("MAX_DOCUMENT_SIZE", 10*1024*1024), // 10MB
		MaxDocumentPages: getEnvAsInt("MAX_DOCUMENT_PAGES", 30),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.GinMode == "release" {
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required in release mode")
		}
	}
	if c.OTPTTLMinutes <= 0 {
		return fmt.Errorf("OTP_TTL_MINUTES must be positive")
	}
	if c.OTPMaxAttempts <= 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// OTPTTL はOTPの有効期限を返します。
func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}

// JobTTL は送信ジョブ記録の保持期間を返します。
func (c *Config) JobTTL() time.Duration {
	minutes := c.JobExpireMinutes
	if minutes <= 0 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}
