// Package otp はメール検証用ワンタイムコードの発行と検証を提供します。
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

var (
	ErrInvalidCode     = errors.New("otp: invalid code")
	ErrExpired         = errors.New("otp: code expired or not issued")
	ErrTooManyAttempts = errors.New("otp: too many attempts")
)

// Entry は保存されたコードと試行回数です。
type Entry struct {
	Code     string
	Attempts int
}

// Store はコードの保存先です。Load と Attempt は未発行・期限切れの場合 nil, nil を返します。
//
// Attempt は試行回数の加算とコードの取得を1操作で行い、加算後の Entry を返します。
// 同時に照合されても各試行が異なる回数を受け取る必要があります。
type Store interface {
	Save(ctx context.Context, key, code string, ttl time.Duration) error
	Load(ctx context.Context, key string) (*Entry, error)
	Attempt(ctx context.Context, key string) (*Entry, error)
	Delete(ctx context.Context, key string) error
}

const codeDigits = 6

// Issuer はコードを発行・検証します。
type Issuer struct {
	store       Store
	ttl         time.Duration
	maxAttempts int
}

// NewIssuer は Issuer を作成します。
func NewIssuer(store Store, ttl time.Duration, maxAttempts int) *Issuer {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Issuer{store: store, ttl: ttl, maxAttempts: maxAttempts}
}

// Issue は新しいコードを発行し、以前のコードを置き換えます。
func (i *Issuer) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", fmt.Errorf("failed to generate otp: %w", err)
	}
	if err := i.store.Save(ctx, keyFor(email), code, i.ttl); err != nil {
		return "", fmt.Errorf("failed to save otp: %w", err)
	}
	return code, nil
}

// Verify はコードを照合します。成功したコードは消費され、再利用できません。
// 照合の前に試行回数を加算するため、上限を超えた試行はコードと比較されません。
func (i *Issuer) Verify(ctx context.Context, email, code string) error {
	key := keyFor(email)
	entry, err := i.store.Attempt(ctx, key)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrExpired
	}
	if entry.Attempts > i.maxAttempts {
		_ = i.store.Delete(ctx, key)
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(entry.Code), []byte(strings.TrimSpace(code))) != 1 {
		if entry.Attempts >= i.maxAttempts {
			_ = i.store.Delete(ctx, key)
		}
		return ErrInvalidCode
	}

	return i.store.Delete(ctx, key)
}

func keyFor(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateCode() (string, error) {
	limit := big.NewInt(1)
	for range codeDigits {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
