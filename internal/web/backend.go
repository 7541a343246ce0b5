package web

import (
	"context"

	"github.com/yourusername/researchmate/internal/account"
	"github.com/yourusername/researchmate/internal/auth"
)

// sessionBackend は view.Backend を実装し、ログインに成功したユーザーを保持します。
// 1リクエストごとに作成します。
type sessionBackend struct {
	accounts auth.Accounts
	user     *account.User
}

func (b *sessionBackend) Register(ctx context.Context, reg account.Registration) (*account.User, error) {
	return b.accounts.Register(ctx, reg)
}

func (b *sessionBackend) VerifyOTP(ctx context.Context, email, code string) error {
	return b.accounts.VerifyOTP(ctx, email, code)
}

func (b *sessionBackend) ResendOTP(ctx context.Context, email string) error {
	return b.accounts.ResendOTP(ctx, email)
}

func (b *sessionBackend) Login(ctx context.Context, email, password string) (account.Role, error) {
	user, err := b.accounts.Authenticate(ctx, email, password)
	if err != nil {
		return "", err
	}
	b.user = user
	return user.Role, nil
}
