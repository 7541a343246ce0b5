// Package account は利用者登録・OTP 検証・ログイン認証のドメイン処理を提供します。
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// OTPIssuer はワンタイムコードの発行と検証を行います。
type OTPIssuer interface {
	Issue(ctx context.Context, email string) (string, error)
	Verify(ctx context.Context, email, code string) error
}

// OTPNotifier は発行したコードを利用者に届けます。
type OTPNotifier interface {
	NotifyOTP(ctx context.Context, email, name, code string) error
}

// Service は登録・検証・認証をまとめたドメインサービスです。
type Service struct {
	store    Store
	otp      OTPIssuer
	notifier OTPNotifier
	logger   *zap.Logger
	validate *validator.Validate
	hashCost int
	now      func() time.Time
}

// Option は Service の生成オプションです。
type Option func(*Service)

// WithHashCost は bcrypt のコストを変更します（テスト用）。
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

// WithClock は現在時刻の取得関数を差し替えます。
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService は Service を作成します。
func NewService(store Store, otp OTPIssuer, notifier OTPNotifier, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    store,
		otp:      otp,
		notifier: notifier,
		logger:   logger,
		validate: validator.New(),
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register は未検証の利用者を作成し、OTP を発行して通知します。
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	reg.FullName = strings.TrimSpace(reg.FullName)
	reg.Email = NormalizeEmail(reg.Email)

	role, err := ParseRole(string(reg.Role))
	if err != nil {
		return nil, newError(CodeInvalidInput, "Please choose a valid role.", err)
	}
	reg.Role = role

	if err := s.validate.Struct(reg); err != nil {
		return nil, newError(CodeInvalidInput, validationMessage(err), err)
	}

	taken, err := s.store.EmailExists(ctx, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, newError(CodeEmailTaken, "Email is already registered.", nil)
	}

	first, last := splitName(reg.FullName)
	taken, err = s.store.NameExists(ctx, first, last)
	if err != nil {
		return nil, fmt.Errorf("failed to check name: %w", err)
	}
	if taken {
		return nil, newError(CodeNameTaken, "A user with that name already exists.", nil)
	}

	hash, err := HashPassword(reg.Password, s.hashCost)
	if err != nil {
		return nil, err
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: hash,
		Role:         role,
		Staff:        role == RoleAdmin,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user, reg.profile()); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("user registered", zap.String("userID", user.ID), zap.String("role", string(role)))

	// 通知に失敗しても登録自体は成立させ、再送で回復できるようにする
	if err := s.sendCode(ctx, user); err != nil {
		s.logger.Error("failed to deliver otp", zap.String("userID", user.ID), zap.Error(err))
	}
	return user, nil
}

// VerifyOTP はコードを検証し、利用者を有効化します。
// 期限切れと不一致は区別せず、常に同じエラーを返します。
func (s *Service) VerifyOTP(ctx context.Context, email, code string) error {
	email = NormalizeEmail(email)
	code = strings.TrimSpace(code)
	invalid := newError(CodeInvalidOTP, "Invalid or expired code. Please try again.", nil)
	if email == "" || code == "" {
		return invalid
	}

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return invalid
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.Active {
		return invalid
	}

	if err := s.otp.Verify(ctx, user.Email, code); err != nil {
		s.logger.Debug("otp rejected", zap.String("userID", user.ID), zap.Error(err))
		return invalid
	}

	if err := s.store.Activate(ctx, user.ID); err != nil {
		return fmt.Errorf("failed to activate user: %w", err)
	}
	s.logger.Info("user verified", zap.String("userID", user.ID))
	return nil
}

// ResendOTP は未検証の利用者にコードを再発行します。
func (s *Service) ResendOTP(ctx context.Context, email string) error {
	user, err := s.store.FindByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return newError(CodeNotFound, "No pending registration for this email.", err)
	}
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}
	if user.Active {
		return newError(CodeInvalidInput, "This account is already verified.", nil)
	}
	if err := s.sendCode(ctx, user); err != nil {
		return fmt.Errorf("failed to resend otp: %w", err)
	}
	return nil
}

// Authenticate はメールアドレスとパスワードを検証し、利用者を返します。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	invalid := newError(CodeInvalidCredentials, "Invalid email or password.", nil)
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalid
	}

	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, invalid
	}
	if !user.Active {
		return nil, newError(CodeAccountInactive, "Please verify your email before signing in.", nil)
	}
	return user, nil
}

// Login は認証に成功した利用者のロールを返します。ロールの妥当性は検証しません。
func (s *Service) Login(ctx context.Context, email, password string) (Role, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// CreateAdmin は OTP を経由せずに有効な管理者を作成します。
func (s *Service) CreateAdmin(ctx context.Context, fullName, email, password, contact string) (*User, error) {
	reg := Registration{
		FullName:      fullName,
		Email:         NormalizeEmail(email),
		Password:      password,
		Role:          RoleAdmin,
		ContactNumber: contact,
	}
	if err := s.validate.Struct(reg); err != nil {
		return nil, newError(CodeInvalidInput, validationMessage(err), err)
	}
	taken, err := s.store.EmailExists(ctx, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, newError(CodeEmailTaken, "Email is already registered.", nil)
	}

	hash, err := HashPassword(password, s.hashCost)
	if err != nil {
		return nil, err
	}
	first, last := splitName(reg.FullName)
	user := &User{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		FirstName:    first,
		LastName:     last,
		PasswordHash: hash,
		Role:         RoleAdmin,
		Active:       true,
		Staff:        true,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user, reg.profile()); err != nil {
		return nil, fmt.Errorf("failed to create admin: %w", err)
	}
	return user, nil
}

// User は ID で利用者を取得します。
func (s *Service) User(ctx context.Context, id string) (*User, error) {
	return s.store.FindByID(ctx, id)
}

func (s *Service) sendCode(ctx context.Context, user *User) error {
	code, err := s.otp.Issue(ctx, user.Email)
	if err != nil {
		return err
	}
	if s.notifier == nil {
		return errors.New("otp notifier is not configured")
	}
	return s.notifier.NotifyOTP(ctx, user.Email, user.FullName(), code)
}

// HashPassword は bcrypt ハッシュを返します。cost が 0 以下ならライブラリの既定値を使います。
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Please check the form and try again."
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Email":
		return "Please enter a valid email address."
	case "Password":
		if fe.Tag() == "min" {
			return "Password must be at least 8 characters."
		}
		return "Please enter a valid password."
	case "FullName":
		return "Please enter your full name."
	default:
		return fmt.Sprintf("Please check the %s field.", fe.Field())
	}
}
