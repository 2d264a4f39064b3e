package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"assetrelay/internal/asset"

	"github.com/go-redis/redis/v7"
)

const redisKeyPrefix = "assetrelay:bundle:"

// BundleRedis stores bundles without a TTL; staleness is decided by the reader.
type BundleRedis struct {
	conn *redis.Client
}

func NewBundleRedis(conn *redis.Client) *BundleRedis {
	return &BundleRedis{conn: conn}
}

type redisRecord struct {
	StoredAt time.Time       `json:"stored_at"`
	Data     json.RawMessage `json:"data"`
}

func (s *BundleRedis) Get(ctx context.Context, key string) (asset.Entry, bool, error) {
	raw, err := s.conn.WithContext(ctx).Get(redisKeyPrefix + key).Bytes()
	if err == redis.Nil {
		return asset.Entry{}, false, nil
	}
	if err != nil {
		return asset.Entry{}, false, err
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return asset.Entry{}, false, fmt.Errorf("decode redis record %s: %w", key, err)
	}
	return asset.Entry{Data: rec.Data, ModTime: rec.StoredAt}, true, nil
}

func (s *BundleRedis) Put(ctx context.Context, key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("bundle for %s is not valid JSON", key)
	}
	raw, err := json.Marshal(redisRecord{StoredAt: time.Now().UTC(), Data: data})
	if err != nil {
		return err
	}
	return s.conn.WithContext(ctx).Set(redisKeyPrefix+key, raw, 0).Err()
}

func (s *BundleRedis) Ping(ctx context.Context) error {
	return s.conn.WithContext(ctx).Ping().Err()
}
