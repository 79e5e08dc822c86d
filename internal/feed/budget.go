package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBudgetExhausted signals the rolling daily call budget is gone. Jobs
// stop early and report partial results; this is not a fetch fault.
var ErrBudgetExhausted = errors.New("feed: daily call budget exhausted")

// Budget meters provider calls against a daily cap.
type Budget interface {
	// Take consumes one call from today's budget or returns
	// ErrBudgetExhausted without blocking.
	Take(ctx context.Context) error
}

// RedisBudget counts calls in Redis so every process shares one budget.
type RedisBudget struct {
	rdb   *redis.Client
	limit int
}

func NewRedisBudget(rdb *redis.Client, limit int) *RedisBudget {
	return &RedisBudget{rdb: rdb, limit: limit}
}

func budgetKey(day time.Time) string {
	return "feed:budget:" + day.UTC().Format("2006-01-02")
}

func (b *RedisBudget) Take(ctx context.Context) error {
	key := budgetKey(time.Now())
	n, err := b.rdb.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("budget incr: %w", err)
	}
	if n == 1 {
		// first call of the day; key dies on its own well after rollover
		b.rdb.Expire(ctx, key, 48*time.Hour)
	}
	if n > int64(b.limit) {
		return ErrBudgetExhausted
	}
	return nil
}
