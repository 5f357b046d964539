package util

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Deduper hands out short-lived claims on message IDs so that two polling
// cycles running at the same time (manual trigger overlapping a scheduled
// one) cannot both persist the same message. The database unique index is
// the durable guarantee; this only cuts down on constraint-violation noise.
type Deduper struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewDeduper(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Deduper {
	return &Deduper{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// Claim tries to acquire the claim for a message ID.
// Returns true if this caller is the first to process it.
// Fails open when Redis is unavailable: processing proceeds and the
// database constraint catches any race.
func (d *Deduper) Claim(ctx context.Context, messageID string) bool {
	key := "triage:claim:" + messageID

	ok, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("Redis claim check failed, allowing processing",
				zap.String("message_id", messageID),
				zap.Error(err),
			)
		}
		return true
	}

	if !ok && d.logger != nil {
		d.logger.Info("Skipped message claimed by a concurrent cycle",
			zap.String("message_id", messageID),
		)
	}

	return ok
}

// Release drops a claim so the message stays eligible for the next cycle
// after a failed persist.
func (d *Deduper) Release(ctx context.Context, messageID string) {
	key := "triage:claim:" + messageID
	if err := d.rdb.Del(ctx, key).Err(); err != nil && d.logger != nil {
		d.logger.Warn("Failed to release message claim",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
