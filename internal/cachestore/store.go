package cachestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EntityType namespaces cached values; each type has its own TTL.
type EntityType string

const (
	EntityFixtures    EntityType = "fixtures"
	EntityOdds        EntityType = "odds"
	EntityTeamStats   EntityType = "teamstats"
	EntityPredictions EntityType = "predictions"
	EntityResults     EntityType = "results"
	EntityStages      EntityType = "stages" // qualification stage breakdowns, for debug reads
)

// TTLs configures expiry per entity type. Zero means no expiry (results are
// kept until the retention cleanup removes them).
type TTLs struct {
	Fixtures    time.Duration
	Odds        time.Duration
	TeamStats   time.Duration
	Predictions time.Duration
	Stages      time.Duration

	// OddsFreshWindow marks an odds hit stale (but still served) once its
	// age exceeds it, so consumers can flag uncertainty without refetching.
	OddsFreshWindow time.Duration
}

// Hit describes a cache lookup outcome.
type Hit struct {
	Found bool
	Fresh bool
	Age   time.Duration
}

// Store is the per-entity-type TTL cache backing all pipeline read paths.
// Values ride inside an envelope carrying their write time, so staleness is
// observable independently of Redis key expiry.
type Store struct {
	rdb  *redis.Client
	ttls TTLs
	now  func() time.Time
}

func New(rdb *redis.Client, ttls TTLs) *Store {
	return &Store{rdb: rdb, ttls: ttls, now: time.Now}
}

type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

func key(et EntityType, id string) string { return "cache:" + string(et) + ":" + id }

func (s *Store) ttlFor(et EntityType) time.Duration {
	switch et {
	case EntityFixtures:
		return s.ttls.Fixtures
	case EntityOdds:
		return s.ttls.Odds
	case EntityTeamStats:
		return s.ttls.TeamStats
	case EntityPredictions:
		return s.ttls.Predictions
	case EntityStages:
		return s.ttls.Stages
	default:
		return 0 // results: no expiry, retention cleanup only
	}
}

// Get unmarshals the cached value into dst and reports whether it was found
// and still fresh. Odds older than the fresh window come back Found but not
// Fresh.
func (s *Store) Get(ctx context.Context, et EntityType, id string, dst any) (Hit, error) {
	b, err := s.rdb.Get(ctx, key(et, id)).Bytes()
	if err == redis.Nil {
		return Hit{}, nil
	}
	if err != nil {
		return Hit{}, fmt.Errorf("cache get %s/%s: %w", et, id, err)
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Hit{}, fmt.Errorf("cache decode %s/%s: %w", et, id, err)
	}
	if err := json.Unmarshal(env.Value, dst); err != nil {
		return Hit{}, fmt.Errorf("cache decode %s/%s: %w", et, id, err)
	}

	age := s.now().Sub(env.StoredAt)
	fresh := true
	if et == EntityOdds && s.ttls.OddsFreshWindow > 0 && age > s.ttls.OddsFreshWindow {
		fresh = false
	}
	return Hit{Found: true, Fresh: fresh, Age: age}, nil
}

// Put stores the value under the entity type's default TTL.
func (s *Store) Put(ctx context.Context, et EntityType, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s/%s: %w", et, id, err)
	}
	b, err := json.Marshal(envelope{StoredAt: s.now(), Value: raw})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key(et, id), b, s.ttlFor(et)).Err()
}

// CleanupResults removes result entries older than the retention window and
// returns how many were deleted. SCAN keeps the sweep incremental.
func (s *Store) CleanupResults(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention)
	var removed int
	iter := s.rdb.Scan(ctx, 0, key(EntityResults, "*"), 200).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		b, err := s.rdb.Get(ctx, k).Bytes()
		if err != nil {
			continue
		}
		var env envelope
		if err := json.Unmarshal(b, &env); err != nil || env.StoredAt.After(cutoff) {
			continue
		}
		if err := s.rdb.Del(ctx, k).Err(); err == nil {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("cache cleanup scan: %w", err)
	}
	return removed, nil
}
