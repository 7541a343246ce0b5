// Package main は運用向けの管理コマンドです。
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/config"
	"github.com/yourusername/researchmate/internal/database"
	"github.com/yourusername/researchmate/internal/logging"
	"github.com/yourusername/researchmate/internal/mail"
	"github.com/yourusername/researchmate/internal/otp"
	"github.com/yourusername/researchmate/internal/verification"
)

var rootCmd = &cobra.Command{
	Use:           "consultctl",
	Short:         "Administrative commands for the ResearchMate server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// migrateCmd はスキーマを作成します。
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

// createAdminCmd は OTP 検証なしで有効な管理者を作成します。
var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an active admin account",
	Long: `Create an active admin account without email verification.

The password is read from --password or, if empty, from CONSULTCTL_ADMIN_PASSWORD.`,
	RunE: runCreateAdmin,
}

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for the given password",
	Args:  cobra.ExactArgs(1),
	RunE:  runHashPassword,
}

var (
	adminName     string
	adminEmail    string
	adminPassword string
	adminContact  string
	hashCost      int
)

func init() {
	createAdminCmd.Flags().StringVar(&adminName, "name", "", "full name")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "email address")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "password (min 8 characters)")
	createAdminCmd.Flags().StringVar(&adminContact, "contact", "", "contact number")
	_ = createAdminCmd.MarkFlagRequired("name")
	_ = createAdminCmd.MarkFlagRequired("email")

	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", 0, "bcrypt cost (default: library default)")

	rootCmd.AddCommand(migrateCmd, createAdminCmd, hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env は設定・ロガー・DB をまとめて開きます。
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.GinMode, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) close() {
	_ = e.db.Close()
	_ = e.logger.Sync()
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if err := account.NewSQLStore(e.db).Migrate(ctx); err != nil {
		return err
	}
	if err := verification.NewSQLStore(e.db).Migrate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", e.cfg.DatabasePath)
	return nil
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	password := adminPassword
	if password == "" {
		password = os.Getenv("CONSULTCTL_ADMIN_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("password is required (--password or CONSULTCTL_ADMIN_PASSWORD)")
	}

	ctx := cmd.Context()
	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	store := account.NewSQLStore(e.db)
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	// 管理者作成では OTP を送らないため、発行器と通知先はローカルのもので足りる
	svc := account.NewService(store,
		otp.NewIssuer(otp.NewMemoryStore(), e.cfg.OTPTTL(), e.cfg.OTPMaxAttempts),
		&mail.DirectNotifier{Sender: &mail.LogSender{Logger: e.logger}, TTL: e.cfg.OTPTTL()},
		e.logger)

	user, err := svc.CreateAdmin(ctx, adminName, adminEmail, password, adminContact)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
	return nil
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	hash, err := account.HashPassword(args[0], hashCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
