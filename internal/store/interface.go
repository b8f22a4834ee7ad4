package store

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/daybucket"
)

// DataStore is the interface consumed by trackers, reconciliation, the
// leaderboard, and the API. The concrete implementation is *Store
// (pgx-backed); tests use the mock in internal/testutil.
type DataStore interface {
	IncrementBucket(ctx context.Context, metric, guildID, userID string, date time.Time, dimension string, delta int64) error
	FlushSession(ctx context.Context, sess OpenSession, metric, dimension string, segs []daybucket.Segment) error

	SumUserRange(ctx context.Context, metric, guildID, userID string, dates []time.Time) (int64, error)
	SumUserAll(ctx context.Context, metric, guildID, userID string) (int64, error)
	TotalsByUser(ctx context.Context, metric, guildID string, dates []time.Time) (map[string]int64, error)
	TotalsByUserInDimension(ctx context.Context, metric, guildID, dimension string, dates []time.Time) (map[string]int64, error)
	TotalsByDimension(ctx context.Context, metric, guildID string, dates []time.Time) (map[string]int64, error)
	UserSeries(ctx context.Context, metric, guildID, userID string, dates []time.Time) (map[string]int64, error)
	ResetGuild(ctx context.Context, guildID string) error

	PutOpenSession(ctx context.Context, sess OpenSession) error
	DeleteOpenSession(ctx context.Context, kind, guildID, userID string) error
	ListOpenSessions(ctx context.Context, kind string) ([]OpenSession, error)

	GetMonitor(ctx context.Context, guildID string) (*Monitor, error)
	PutMonitor(ctx context.Context, m Monitor) error
	DeleteMonitor(ctx context.Context, guildID string) error
	ListMonitors(ctx context.Context) ([]Monitor, error)

	Close()
}
