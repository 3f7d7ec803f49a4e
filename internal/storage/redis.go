package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	logx "modwatch/pkg/logx"
)

const redisConnectTimeout = 5 * time.Second

// redisStore keeps seen records in one hash: <prefix>:seen (id -> record).
type redisStore struct {
	client *redis.Client
	key    string
	log    logx.Logger
}

func openRedis(cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("storage.redis.addr is required for redis driver")
	}
	prefix := strings.TrimSpace(cfg.Redis.Prefix)
	if prefix == "" {
		prefix = "modwatch"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	s := &redisStore{client: client, key: prefix + ":seen", log: log}
	if cfg.ResetOnStart {
		if err := client.Del(ctx, s.key).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("reset seen hash: %w", err)
		}
		log.Info("cleared seen hash at startup", logx.String("key", s.key))
	}
	return s, nil
}

func (s *redisStore) Load(ctx context.Context) ([]Record, error) {
	m, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(m))
	for id, rec := range m {
		out = append(out, Record{ID: id, Data: []byte(rec)})
	}
	return out, nil
}

func (s *redisStore) Append(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	pipe := s.client.TxPipeline()
	for _, r := range recs {
		if strings.TrimSpace(r.ID) == "" {
			continue
		}
		pipe.HSetNX(ctx, s.key, r.ID, string(r.Data))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
