package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyCrashHistory  = "crashpilot:rounds:recent"
	keyBalancePrefix = "crashpilot:balance:"

	crashHistoryLimit = 100
)

// Service persists the bits of session state worth keeping across client
// restarts: the recent crash-point ribbon and the last reconciled balance.
type Service interface {
	RecordCrashPoint(ctx context.Context, roundID string, crashPoint float64) error
	RecentCrashPoints(ctx context.Context, n int) ([]float64, error)
	SaveBalance(ctx context.Context, playerID string, confirmed float64) error
	LastBalance(ctx context.Context, playerID string) (float64, bool, error)
	Health() map[string]string
	Close() error
}

type service struct {
	client *redis.Client
	log    *zap.Logger
}

// New connects to Redis. Returns nil when Redis is unreachable: the cache is
// optional and the client runs fine without it.
func New(addr, password string, db int, log *zap.Logger) Service {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Warn("redis unavailable, running without session cache", zap.Error(err))
		return nil
	}

	log.Info("redis connected", zap.String("addr", addr))
	return &service{client: client, log: log}
}

func (s *service) RecordCrashPoint(ctx context.Context, roundID string, crashPoint float64) error {
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyCrashHistory, fmt.Sprintf("%s:%.2f", roundID, crashPoint))
	pipe.LTrim(ctx, keyCrashHistory, 0, crashHistoryLimit-1)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *service) RecentCrashPoints(ctx context.Context, n int) ([]float64, error) {
	if n <= 0 || n > crashHistoryLimit {
		n = crashHistoryLimit
	}
	entries, err := s.client.LRange(ctx, keyCrashHistory, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	points := make([]float64, 0, len(entries))
	for _, entry := range entries {
		// entries are "roundID:crashPoint"
		for i := len(entry) - 1; i >= 0; i-- {
			if entry[i] == ':' {
				if p, err := strconv.ParseFloat(entry[i+1:], 64); err == nil {
					points = append(points, p)
				}
				break
			}
		}
	}
	return points, nil
}

func (s *service) SaveBalance(ctx context.Context, playerID string, confirmed float64) error {
	return s.client.Set(ctx, keyBalancePrefix+playerID, confirmed, 24*time.Hour).Err()
}

func (s *service) LastBalance(ctx context.Context, playerID string) (float64, bool, error) {
	val, err := s.client.Get(ctx, keyBalancePrefix+playerID).Float64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if _, err := s.client.Ping(ctx).Result(); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}

	stats["status"] = "up"
	poolStats := s.client.PoolStats()
	stats["hits"] = strconv.FormatUint(uint64(poolStats.Hits), 10)
	stats["misses"] = strconv.FormatUint(uint64(poolStats.Misses), 10)
	stats["total_conns"] = strconv.FormatUint(uint64(poolStats.TotalConns), 10)
	stats["idle_conns"] = strconv.FormatUint(uint64(poolStats.IdleConns), 10)

	return stats
}

func (s *service) Close() error {
	s.log.Info("disconnecting from redis")
	return s.client.Close()
}
