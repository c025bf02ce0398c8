package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"machine-license/internal/license"
	"machine-license/internal/model"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationList 基于 Redis 的吊销列表，键为注册码规范写法的摘要
type RedisRevocationList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisRevocationList(addr, password string, db int, prefix string) (*RedisRevocationList, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRevocationList{client: client, prefix: prefix, now: time.Now}, nil
}

// Ping 检查连接
func (r *RedisRevocationList) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRevocationList) Close() error {
	return r.client.Close()
}

func (r *RedisRevocationList) key(lic string) string {
	sum := sha256.Sum256([]byte(lic))
	return r.prefix + hex.EncodeToString(sum[:])
}

func (r *RedisRevocationList) IsRevoked(ctx context.Context, lic string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(lic)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRevocationList) Revoke(ctx context.Context, entry *model.RevokedLicense, expiresAt time.Time) error {
	canonical, err := license.CanonicalLicense(entry.License)
	if err != nil {
		return err
	}
	// 令牌过期后吊销项没有意义，随令牌一起过期
	var ttl time.Duration
	if !expiresAt.IsZero() {
		ttl = expiresAt.Sub(r.now())
		if ttl <= 0 {
			return nil
		}
	}
	if err := r.client.Set(ctx, r.key(canonical), entry.Reason, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
