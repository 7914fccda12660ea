package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fjod/storefront-cart/internal/domain"
)

type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

func NewRedisCache(client *redis.Client, baseTTL time.Duration) *RedisCache {
	if baseTTL <= 0 {
		baseTTL = 15 * time.Minute
	}
	return &RedisCache{
		client:  client,
		baseTTL: baseTTL,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

type snapshotEntry struct {
	MemberID string            `json:"memberId"`
	Lines    []domain.CartLine `json:"lines"`
	SavedAt  time.Time         `json:"savedAt"`
}

func (r RedisCache) Get(ctx context.Context, memberID string) ([]domain.CartLine, error) {
	key := cacheKey(memberID)

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var entry snapshotEntry
	if err2 := json.Unmarshal(data, &entry); err2 != nil {
		return nil, fmt.Errorf("unmarshal snapshot failed: %w", err2)
	}

	return entry.Lines, nil
}

// Set stores confirmed lines only; placeholders never reach the cache.
func (r RedisCache) Set(ctx context.Context, memberID string, lines []domain.CartLine) error {
	key := cacheKey(memberID)

	confirmed := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.State == domain.PendingCreate {
			continue
		}
		l.State = domain.Confirmed
		confirmed = append(confirmed, l)
	}

	data, err := json.Marshal(snapshotEntry{MemberID: memberID, Lines: confirmed, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal snapshot failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(5)) * time.Minute
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisCache) Delete(ctx context.Context, memberID string) error {
	key := cacheKey(memberID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

func cacheKey(memberID string) string {
	return fmt.Sprintf("storefront:cart:%s", memberID)
}
