// Package leaderboard is the read side of the aggregate store: windowed
// top-N rankings and per-day series. All reads are best effort — storage
// failures are logged and surface as empty results, never as errors.
package leaderboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/daybucket"
	"github.com/MikeSquared-Agency/pulse/internal/store"

	"github.com/coder/quartz"
)

// MaxWindowDays caps the query window.
const MaxWindowDays = 90

type Entry struct {
	UserID string `json:"user_id"`
	Total  int64  `json:"total"`
}

type DayTotal struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

type Queries struct {
	store store.DataStore
	clock quartz.Clock
}

func New(s store.DataStore) *Queries {
	return &Queries{store: s, clock: quartz.NewReal()}
}

// SetClock replaces the wall clock (tests).
func (q *Queries) SetClock(c quartz.Clock) {
	q.clock = c
}

// DateRange returns the UTC date keys for the last days calendar days
// ending on the day containing now, oldest first. The window is clamped
// to [1, MaxWindowDays].
func DateRange(now time.Time, days int) []time.Time {
	if days < 1 {
		days = 1
	}
	if days > MaxWindowDays {
		days = MaxWindowDays
	}
	end := daybucket.DateOf(now)
	dates := make([]time.Time, days)
	for i := range dates {
		dates[i] = end.AddDate(0, 0, -(days - 1 - i))
	}
	return dates
}

// TopActive ranks users by accumulated active time over the window.
func (q *Queries) TopActive(ctx context.Context, guildID string, days, limit int) []Entry {
	return q.top(ctx, store.MetricPresence, guildID, days, limit)
}

// TopVoice ranks users by accumulated voice time over the window, summed
// across all channels.
func (q *Queries) TopVoice(ctx context.Context, guildID string, days, limit int) []Entry {
	return q.top(ctx, store.MetricVoice, guildID, days, limit)
}

func (q *Queries) top(ctx context.Context, metric, guildID string, days, limit int) []Entry {
	dates := DateRange(q.clock.Now(), days)
	totals, err := q.store.TotalsByUser(ctx, metric, guildID, dates)
	if err != nil {
		slog.Error("leaderboard read failed", "metric", metric, "guild", guildID, "error", err)
		return nil
	}
	return rank(totals, limit)
}

// TopMessages ranks users by message count within one channel. When no
// channel is given, the channel with the largest summed total over the
// window is chosen first. Returns the resolved channel id with the
// ranking.
func (q *Queries) TopMessages(ctx context.Context, guildID string, days, limit int, channelID string) (string, []Entry) {
	dates := DateRange(q.clock.Now(), days)

	if channelID == "" {
		byChannel, err := q.store.TotalsByDimension(ctx, store.MetricMessages, guildID, dates)
		if err != nil {
			slog.Error("busiest channel read failed", "guild", guildID, "error", err)
			return "", nil
		}
		channelID = busiest(byChannel)
		if channelID == "" {
			return "", nil
		}
	}

	totals, err := q.store.TotalsByUserInDimension(ctx, store.MetricMessages, guildID, channelID, dates)
	if err != nil {
		slog.Error("message leaderboard read failed", "guild", guildID, "channel", channelID, "error", err)
		return channelID, nil
	}
	return channelID, rank(totals, limit)
}

// UserSeries returns a user's per-day totals over the window, oldest
// first. Days without buckets appear with a zero value.
func (q *Queries) UserSeries(ctx context.Context, metric, guildID, userID string, days int) []DayTotal {
	dates := DateRange(q.clock.Now(), days)
	byDate, err := q.store.UserSeries(ctx, metric, guildID, userID, dates)
	if err != nil {
		slog.Error("user series read failed", "metric", metric, "guild", guildID, "user", userID, "error", err)
		byDate = nil
	}

	series := make([]DayTotal, len(dates))
	for i, d := range dates {
		key := d.Format("2006-01-02")
		series[i] = DayTotal{Date: key, Value: byDate[key]}
	}
	return series
}

// UserTotal sums a user's buckets over the window.
func (q *Queries) UserTotal(ctx context.Context, metric, guildID, userID string, days int) int64 {
	dates := DateRange(q.clock.Now(), days)
	total, err := q.store.SumUserRange(ctx, metric, guildID, userID, dates)
	if err != nil {
		slog.Error("user total read failed", "metric", metric, "guild", guildID, "user", userID, "error", err)
		return 0
	}
	return total
}

// rank sorts totals descending, breaking ties by user id so the order is
// total for any input. Zero totals are dropped; limit <= 0 means no cap.
func rank(totals map[string]int64, limit int) []Entry {
	entries := make([]Entry, 0, len(totals))
	for userID, total := range totals {
		if total > 0 {
			entries = append(entries, Entry{UserID: userID, Total: total})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Total != entries[j].Total {
			return entries[i].Total > entries[j].Total
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// busiest picks the dimension with the largest total, ties broken by id.
func busiest(totals map[string]int64) string {
	var best string
	var bestTotal int64
	for dim, total := range totals {
		if total <= 0 {
			continue
		}
		if total > bestTotal || (total == bestTotal && dim < best) {
			best = dim
			bestTotal = total
		}
	}
	return best
}
