package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/carepulse/internal/domain"
)

const (
	urgentAlertPrefix = "urgent:alert:"
	urgentQueuePrefix = "urgent:pending:"
	urgentSeqKey      = "urgent:seq"
)

// UrgentStore implements domain.UrgentStore. Each alert lives under its own key with a
// TTL and its id sits in a per-tier sorted set scored by an insertion sequence. Queue entries
// whose alert key has expired are dropped on read.
type UrgentStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewUrgentStore creates a Redis-backed urgent store.
func NewUrgentStore(client redis.UniversalClient, logger *slog.Logger) *UrgentStore {
	return &UrgentStore{
		client: client,
		logger: logger.With("component", "redis_urgent_store"),
	}
}

func (s *UrgentStore) Create(ctx context.Context, alert domain.UrgentAlert, ttl time.Duration) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal urgent alert: %w", err)
	}

	seq, err := s.client.Incr(ctx, urgentSeqKey).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate urgent sequence: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, urgentAlertPrefix+alert.ID, payload, ttl)
	pipe.ZAdd(ctx, urgentQueuePrefix+string(alert.Priority), redis.Z{
		Score:  queueScore(seq),
		Member: alert.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store urgent alert %s: %w", alert.ID, err)
	}
	return nil
}

// queueScore maps an insertion sequence to a sorted-set score. Sequences stay exact
// up to 2^53; nanosecond timestamps do not.
func queueScore(seq int64) float64 {
	return float64(seq)
}

func (s *UrgentStore) Get(ctx context.Context, id string) (*domain.UrgentAlert, error) {
	raw, err := s.client.Get(ctx, urgentAlertPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get urgent alert %s: %w", id, err)
	}
	var alert domain.UrgentAlert
	if err := json.Unmarshal(raw, &alert); err != nil {
		return nil, fmt.Errorf("failed to decode urgent alert %s: %w", id, err)
	}
	return &alert, nil
}

func (s *UrgentStore) MarkProcessed(ctx context.Context, id string) error {
	alert, err := s.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	alert.Status = domain.UrgentProcessed
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal urgent alert: %w", err)
	}

	// XX keeps an alert that expired in the meantime from being resurrected.
	pipe := s.client.TxPipeline()
	pipe.SetArgs(ctx, urgentAlertPrefix+id, payload, redis.SetArgs{Mode: "XX", KeepTTL: true})
	pipe.ZRem(ctx, urgentQueuePrefix+string(alert.Priority), id)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to mark urgent alert %s processed: %w", id, err)
	}
	return nil
}

func (s *UrgentStore) Pending(ctx context.Context, _ time.Time) ([]string, error) {
	var out []string
	for _, tier := range domain.Tiers {
		live, stale, err := s.scanTier(ctx, tier)
		if err != nil {
			return nil, err
		}
		out = append(out, live...)
		if len(stale) > 0 {
			s.dropStale(ctx, tier, stale)
		}
	}
	return out, nil
}

func (s *UrgentStore) Purge(ctx context.Context, _ time.Time) (int, error) {
	purged := 0
	for _, tier := range domain.Tiers {
		_, stale, err := s.scanTier(ctx, tier)
		if err != nil {
			return purged, err
		}
		if len(stale) > 0 {
			s.dropStale(ctx, tier, stale)
			purged += len(stale)
		}
	}
	return purged, nil
}

// scanTier splits a tier queue into live pending ids and ids whose alert has expired.
func (s *UrgentStore) scanTier(ctx context.Context, tier domain.Priority) (live, stale []string, err error) {
	ids, err := s.client.ZRange(ctx, urgentQueuePrefix+string(tier), 0, -1).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s queue: %w", tier, err)
	}
	if len(ids) == 0 {
		return nil, nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = urgentAlertPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load %s alerts: %w", tier, err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var alert domain.UrgentAlert
		if err := json.Unmarshal([]byte(raw), &alert); err != nil {
			s.logger.Warn("Dropping undecodable urgent alert", "id", ids[i], "error", err)
			stale = append(stale, ids[i])
			continue
		}
		if alert.Status == domain.UrgentPending {
			live = append(live, ids[i])
		}
	}
	return live, stale, nil
}

func (s *UrgentStore) dropStale(ctx context.Context, tier domain.Priority, ids []string) {
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if err := s.client.ZRem(ctx, urgentQueuePrefix+string(tier), members...).Err(); err != nil {
		s.logger.Warn("Failed to drop expired urgent ids", "tier", tier, "error", err)
	}
}
