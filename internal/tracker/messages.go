package tracker

import (
	"context"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/store"
)

// MessageCounter accumulates per-channel message counts into day buckets.
// Messages have no session semantics; every event is a single increment.
type MessageCounter struct {
	store store.DataStore
}

func NewMessageCounter(s store.DataStore) *MessageCounter {
	return &MessageCounter{store: s}
}

// Record counts one message. Storage failures are absorbed; the feed is
// not replayed, so a lost increment is a bounded undercount.
func (c *MessageCounter) Record(ctx context.Context, guildID, channelID, userID string, at time.Time) {
	err := c.store.IncrementBucket(ctx, store.MetricMessages, guildID, userID, at, channelID, 1)
	if err != nil {
		slog.Error("failed to record message",
			"guild", guildID, "channel", channelID, "user", userID, "error", err)
	}
}
