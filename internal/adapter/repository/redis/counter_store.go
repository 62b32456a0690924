package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/carepulse/internal/adapter/metrics"
	"github.com/V4T54L/carepulse/internal/domain"
)

const (
	sampleKeyPrefix = "signal:samples:"
	sampleTypesKey  = "signal:sample_types"
)

// addIfBelowScript trims the window, counts it and appends only while under the limit.
// KEYS[1] sample set, KEYS[2] type index. ARGV: window start ms, now ms, limit, member, ttl ms.
var addIfBelowScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[1])
local count = redis.call('ZCARD', KEYS[1])
local admitted = 0
if count < tonumber(ARGV[3]) then
  redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
  redis.call('SADD', KEYS[2], KEYS[1])
  count = count + 1
  admitted = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[5])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local oldestScore = ARGV[2]
if oldest[2] then
  oldestScore = oldest[2]
end
return {admitted, count, oldestScore}
`)

// CounterStore implements domain.CounterStore with one sorted set per sample type,
// scored by unix milliseconds. Writes fall back to the WAL while Redis is unreachable.
type CounterStore struct {
	client      redis.UniversalClient
	logger      *slog.Logger
	wal         domain.WALRepository
	metrics     *metrics.SignalMetrics
	isAvailable atomic.Bool
}

// NewCounterStore creates a Redis-backed counter store. The WAL and metrics are optional.
func NewCounterStore(client redis.UniversalClient, logger *slog.Logger, wal domain.WALRepository, m *metrics.SignalMetrics) *CounterStore {
	s := &CounterStore{
		client:  client,
		logger:  logger.With("component", "redis_counter_store"),
		wal:     wal,
		metrics: m,
	}
	s.isAvailable.Store(true)
	return s
}

// Available reports the last observed reachability of Redis.
func (s *CounterStore) Available() bool {
	return s.isAvailable.Load()
}

// StartHealthCheck pings Redis on interval and replays the WAL when it recovers.
// It blocks until ctx is cancelled.
func (s *CounterStore) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			if err := s.client.Ping(ctx).Err(); err != nil {
				if s.isAvailable.CompareAndSwap(true, false) {
					s.logger.Error("Redis connection lost", "error", err)
					s.metrics.SetWALActive(true)
				}
				continue
			}
			if s.isAvailable.CompareAndSwap(false, true) {
				s.logger.Info("Redis connection recovered")
				if s.wal == nil {
					s.metrics.SetWALActive(false)
					continue
				}
				if err := s.ReplayWAL(ctx); err != nil {
					s.logger.Error("Failed to replay WAL after Redis recovery", "error", err)
					s.isAvailable.Store(false)
					continue
				}
				s.metrics.SetWALActive(false)
			}
		}
	}
}

// ReplayWAL pushes buffered samples into Redis. Replayed samples leave the WAL.
func (s *CounterStore) ReplayWAL(ctx context.Context) error {
	err := s.wal.Replay(ctx, func(sample domain.MetricSample) error {
		return s.write(ctx, sample)
	})
	if err != nil {
		return fmt.Errorf("WAL replay failed: %w", err)
	}
	return nil
}

// Record adds the sample to its sorted set, or to the WAL when Redis is down.
func (s *CounterStore) Record(ctx context.Context, sample domain.MetricSample) error {
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	if !s.isAvailable.Load() {
		return s.writeWAL(ctx, sample)
	}

	err := s.write(ctx, sample)
	if err != nil && isNetworkError(err) {
		if s.isAvailable.CompareAndSwap(true, false) {
			s.logger.Error("Redis connection lost during write", "error", err)
			s.metrics.SetWALActive(true)
		}
		return s.writeWAL(ctx, sample)
	}
	return err
}

func (s *CounterStore) writeWAL(ctx context.Context, sample domain.MetricSample) error {
	if s.wal == nil {
		return fmt.Errorf("%w: redis is down and no WAL is configured", domain.ErrStoreUnavailable)
	}
	return s.wal.Write(ctx, sample)
}

func (s *CounterStore) write(ctx context.Context, sample domain.MetricSample) error {
	member, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("failed to marshal sample: %w", err)
	}
	key := sampleKey(sample.Type)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(sample.Timestamp.UnixMilli()), Member: member})
	pipe.SAdd(ctx, sampleTypesKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record sample: %w", err)
	}
	return nil
}

func (s *CounterStore) QueryWindow(ctx context.Context, metricType string, since time.Time) ([]domain.MetricSample, error) {
	members, err := s.client.ZRangeByScore(ctx, sampleKey(metricType), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, s.wrap("query window", err)
	}

	samples := make([]domain.MetricSample, 0, len(members))
	for _, m := range members {
		var sample domain.MetricSample
		if err := json.Unmarshal([]byte(m), &sample); err != nil {
			s.logger.Warn("Skipping undecodable sample", "type", metricType, "error", err)
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

func (s *CounterStore) CountWindow(ctx context.Context, metricType string, since time.Time) (int64, error) {
	n, err := s.client.ZCount(ctx, sampleKey(metricType), strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, s.wrap("count window", err)
	}
	return n, nil
}

func (s *CounterStore) AddIfBelow(ctx context.Context, key string, windowStart, now time.Time, limit int) (domain.WindowCount, error) {
	member, err := json.Marshal(domain.MetricSample{ID: uuid.NewString(), Type: key, Value: 1, Timestamp: now})
	if err != nil {
		return domain.WindowCount{}, fmt.Errorf("failed to marshal request sample: %w", err)
	}
	ttl := now.Sub(windowStart).Milliseconds()
	if ttl < 1 {
		ttl = 1
	}

	res, err := addIfBelowScript.Run(ctx, s.client,
		[]string{sampleKey(key), sampleTypesKey},
		windowStart.UnixMilli(), now.UnixMilli(), limit, string(member), ttl,
	).Slice()
	if err != nil {
		return domain.WindowCount{}, s.wrap("add if below", err)
	}
	if len(res) != 3 {
		return domain.WindowCount{}, fmt.Errorf("unexpected script reply of length %d", len(res))
	}

	admitted, _ := res[0].(int64)
	count, _ := res[1].(int64)
	oldestMs, err := strconv.ParseFloat(fmt.Sprint(res[2]), 64)
	if err != nil {
		return domain.WindowCount{}, fmt.Errorf("unexpected oldest score %v: %w", res[2], err)
	}
	return domain.WindowCount{
		Admitted: admitted == 1,
		Count:    int(count),
		Oldest:   time.UnixMilli(int64(oldestMs)),
	}, nil
}

func (s *CounterStore) Compact(ctx context.Context, before time.Time) (int64, error) {
	keys, err := s.client.SMembers(ctx, sampleTypesKey).Result()
	if err != nil {
		return 0, s.wrap("list sample types", err)
	}

	upper := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	pipe := s.client.Pipeline()
	removed := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		removed[i] = pipe.ZRemRangeByScore(ctx, key, "-inf", upper)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, s.wrap("compact", err)
	}

	var total int64
	for _, cmd := range removed {
		total += cmd.Val()
	}

	// Drop index entries whose sets are gone (expired request keys, emptied types).
	existsPipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		exists[i] = existsPipe.Exists(ctx, key)
	}
	if _, err := existsPipe.Exec(ctx); err == nil {
		for i, cmd := range exists {
			if cmd.Val() == 0 {
				s.client.SRem(ctx, sampleTypesKey, keys[i])
			}
		}
	}
	return total, nil
}

// wrap annotates read errors. Caller timeouts do not mark Redis as down.
func (s *CounterStore) wrap(op string, err error) error {
	if isConnectionError(err) {
		if s.isAvailable.CompareAndSwap(true, false) {
			s.logger.Error("Redis connection lost", "op", op, "error", err)
		}
		return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func sampleKey(metricType string) string {
	return sampleKeyPrefix + metricType
}

func isNetworkError(err error) bool {
	return isConnectionError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isConnectionError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed)
}
