package redisinfra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scan-validator/internal/config"
	"github.com/scan-validator/internal/domain"
)

const keyPrefix = "scan_token:"

// consumeScript deletes KEYS[1] only when it holds an expiry (Unix ms) later
// than ARGV[1]. Redis runs the script without interleaving other commands,
// so the check and the delete are one atomic step.
var consumeScript = redis.NewScript(`
local exp = redis.call('GET', KEYS[1])
if not exp then
  return 0
end
if tonumber(exp) > tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// NewClient creates a Redis client and verifies the connection.
func NewClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	return client, nil
}

// TokenStore keeps scan codes as Redis keys whose value is the expiry in
// Unix milliseconds. Key expiry reclaims stale codes; correctness comes from
// the comparison in consumeScript.
type TokenStore struct {
	client redis.Cmdable
}

func NewTokenStore(client redis.Cmdable) *TokenStore {
	return &TokenStore{client: client}
}

func (s *TokenStore) Put(ctx context.Context, t *domain.ScanToken) error {
	ttl := time.Until(t.ExpiresAt)
	if ttl < time.Second {
		ttl = time.Second
	}
	ok, err := s.client.SetNX(ctx, keyPrefix+t.Code, strconv.FormatInt(t.ExpiresAt.UnixMilli(), 10), ttl).Result()
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if !ok {
		return fmt.Errorf("token already exists: %w", domain.ErrConflict)
	}
	return nil
}

func (s *TokenStore) Consume(ctx context.Context, code string, now time.Time) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{keyPrefix + code}, now.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("consume token: %w", err)
	}
	return n == 1, nil
}
