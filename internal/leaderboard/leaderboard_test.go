package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/store"
	"github.com/MikeSquared-Agency/pulse/internal/testutil"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueries(t *testing.T, ms *testutil.MockStore, now time.Time) *Queries {
	t.Helper()
	q := New(ms)
	clock := quartz.NewMock(t)
	clock.Set(now)
	q.SetClock(clock)
	return q
}

func TestDateRange_Window(t *testing.T) {
	now := time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

	dates := DateRange(now, 3)
	require.Len(t, dates, 3)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), dates[2])
}

func TestDateRange_Clamped(t *testing.T) {
	now := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	assert.Len(t, DateRange(now, 0), 1)
	assert.Len(t, DateRange(now, -5), 1)
	assert.Len(t, DateRange(now, 100000), MaxWindowDays)
}

func TestTopActive_RanksDescending(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.SetBucket(store.MetricPresence, "g1", "alice", "2024-01-10", "", 5000)
	ms.SetBucket(store.MetricPresence, "g1", "bob", "2024-01-10", "", 9000)
	ms.SetBucket(store.MetricPresence, "g1", "carol", "2024-01-09", "", 7000)

	q := newQueries(t, ms, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	entries := q.TopActive(context.Background(), "g1", 7, 10)

	require.Len(t, entries, 3)
	assert.Equal(t, "bob", entries[0].UserID)
	assert.Equal(t, "carol", entries[1].UserID)
	assert.Equal(t, "alice", entries[2].UserID)
}

func TestTopActive_TiesBrokenByUserID(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.SetBucket(store.MetricPresence, "g1", "zed", "2024-01-10", "", 5000)
	ms.SetBucket(store.MetricPresence, "g1", "amy", "2024-01-10", "", 5000)

	q := newQueries(t, ms, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	entries := q.TopActive(context.Background(), "g1", 1, 10)

	require.Len(t, entries, 2)
	assert.Equal(t, "amy", entries[0].UserID)
	assert.Equal(t, "zed", entries[1].UserID)
}

func TestTopActive_ZeroTotalsFilteredAndLimited(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.SetBucket(store.MetricPresence, "g1", "alice", "2024-01-10", "", 100)
	ms.SetBucket(store.MetricPresence, "g1", "bob", "2024-01-10", "", 200)
	ms.SetBucket(store.MetricPresence, "g1", "carol", "2024-01-10", "", 0)
	// Outside the window: must count as zero, not an error.
	ms.SetBucket(store.MetricPresence, "g1", "dave", "2023-12-01", "", 999)

	q := newQueries(t, ms, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	entries := q.TopActive(context.Background(), "g1", 3, 1)

	require.Len(t, entries, 1)
	assert.Equal(t, "bob", entries[0].UserID)
}

func TestTopMessages_ThreeDayScenario(t *testing.T) {
	// Message counts 2, 0, 5 on consecutive days: total 7 over a 3-day window.
	ms := testutil.NewMockStore()
	ms.SetBucket(store.MetricMessages, "g1", "u1", "2024-01-08", "c1", 2)
	ms.SetBucket(store.MetricMessages, "g1", "u1", "2024-01-10", "c1", 5)

	q := newQueries(t, ms, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	channel, entries := q.TopMessages(context.Background(), "g1", 3, 10, "c1")

	assert.Equal(t, "c1", channel)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, int64(7), entries[0].Total)
}

func TestTopMessages_ResolvesBusiestChannel(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.SetBucket(store.MetricMessages, "g1", "u1", "2024-01-10", "quiet", 3)
	ms.SetBucket(store.MetricMessages, "g1", "u1", "2024-01-10", "busy", 10)
	ms.SetBucket(store.MetricMessages, "g1", "u2", "2024-01-10", "busy", 4)

	q := newQueries(t, ms, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	channel, entries := q.TopMessages(context.Background(), "g1", 7, 10, "")

	assert.Equal(t, "busy", channel)
	require.Len(t, entries, 2)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, int64(10), entries[0].Total)
}

func TestTopMessages_NoData(t *testing.T) {
	ms := testutil.NewMockStore()
	q := newQueries(t, ms, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))

	channel, entries := q.TopMessages(context.Background(), "g1", 7, 10, "")
	assert.Empty(t, channel)
	assert.Empty(t, entries)
}

func TestUserSeries_ZeroFilled(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.SetBucket(store.MetricPresence, "g1", "u1", "2024-01-08", "", 1000)
	ms.SetBucket(store.MetricPresence, "g1", "u1", "2024-01-10", "", 3000)

	q := newQueries(t, ms, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	series := q.UserSeries(context.Background(), store.MetricPresence, "g1", "u1", 3)

	require.Len(t, series, 3)
	assert.Equal(t, DayTotal{Date: "2024-01-08", Value: 1000}, series[0])
	assert.Equal(t, DayTotal{Date: "2024-01-09", Value: 0}, series[1])
	assert.Equal(t, DayTotal{Date: "2024-01-10", Value: 3000}, series[2])
}

func TestReads_AbsorbStoreErrors(t *testing.T) {
	ms := testutil.NewMockStore()
	ms.ReadErr = errors.New("database offline")

	q := newQueries(t, ms, time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	assert.Empty(t, q.TopActive(ctx, "g1", 7, 10))
	_, entries := q.TopMessages(ctx, "g1", 7, 10, "")
	assert.Empty(t, entries)
	assert.Equal(t, int64(0), q.UserTotal(ctx, store.MetricPresence, "g1", "u1", 7))

	series := q.UserSeries(ctx, store.MetricPresence, "g1", "u1", 2)
	require.Len(t, series, 2, "series stays zero-filled even when the store fails")
	assert.Equal(t, int64(0), series[0].Value)
}
