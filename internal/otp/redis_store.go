package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp:"

// attemptScript は既存のキーに限り試行回数を加算し、コードと加算後の回数を返します。
// キーがなければ何も作らず nil を返すため、期限切れ後に TTL なしのハッシュが残りません。
var attemptScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local n = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return {redis.call('HGET', KEYS[1], 'code'), n}
`)

// RedisStore はコードを Redis のハッシュに TTL 付きで保存します。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Save はコードを保存し、試行回数をリセットします。
func (s *RedisStore) Save(ctx context.Context, key, code string, ttl time.Duration) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, otpKey(key))
		pipe.HSet(ctx, otpKey(key), "code", code, "attempts", 0)
		pipe.Expire(ctx, otpKey(key), ttl)
		return nil
	})
	return err
}

// Load は保存済みのコードを取得します。
func (s *RedisStore) Load(ctx context.Context, key string) (*Entry, error) {
	values, err := s.rdb.HGetAll(ctx, otpKey(key)).Result()
	if err != nil {
		return nil, err
	}
	code, ok := values["code"]
	if !ok || code == "" {
		return nil, nil
	}
	attempts, err := strconv.Atoi(values["attempts"])
	if err != nil {
		return nil, fmt.Errorf("corrupted otp attempts for %s: %w", key, err)
	}
	return &Entry{Code: code, Attempts: attempts}, nil
}

// Attempt は試行回数を加算し、コードと加算後の回数を返します。
func (s *RedisStore) Attempt(ctx context.Context, key string) (*Entry, error) {
	res, err := attemptScript.Run(ctx, s.rdb, []string{otpKey(key)}).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected otp attempt reply for %s: %v", key, res)
	}
	code, _ := res[0].(string)
	attempts, ok := res[1].(int64)
	if code == "" || !ok {
		return nil, fmt.Errorf("corrupted otp entry for %s", key)
	}
	return &Entry{Code: code, Attempts: int(attempts)}, nil
}

// Delete はコードを削除します。
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, otpKey(key)).Err()
}

func otpKey(key string) string {
	return otpKeyPrefix + key
}
