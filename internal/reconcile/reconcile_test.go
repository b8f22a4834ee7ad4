package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/store"
	"github.com/MikeSquared-Agency/pulse/internal/testutil"
	"github.com/MikeSquared-Agency/pulse/internal/tracker"

	"github.com/coder/quartz"
)

// fakeLive is a scripted LiveState.
type fakeLive struct {
	status     map[string]string // "guild|user" -> status
	channel    map[string]string // "guild|user" -> channel id
	knownGuild map[string]bool
	err        error
}

func (f *fakeLive) PresenceStatus(_ context.Context, guildID, userID string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if !f.knownGuild[guildID] {
		return "", false, nil
	}
	return f.status[guildID+"|"+userID], true, nil
}

func (f *fakeLive) VoiceChannel(_ context.Context, guildID, userID string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	if !f.knownGuild[guildID] {
		return "", false, nil
	}
	return f.channel[guildID+"|"+userID], true, nil
}

func setup(t *testing.T, ms *testutil.MockStore, live LiveState) (*Runner, *tracker.Tracker, *tracker.Tracker, *quartz.Mock) {
	t.Helper()
	presence := tracker.New(store.MetricPresence, ms)
	voice := tracker.New(store.MetricVoice, ms)
	r := New(ms, presence, voice, live)
	clock := quartz.NewMock(t)
	r.SetClock(clock)
	return r, presence, voice, clock
}

func TestRun_StillActive_ResumesWithOriginalStart(t *testing.T) {
	ms := testutil.NewMockStore()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ms.PutOpenSession(context.Background(), store.OpenSession{
		Kind: store.MetricPresence, GuildID: "g1", UserID: "u1", StartedAt: start,
	})

	live := &fakeLive{
		status:     map[string]string{"g1|u1": "online"},
		knownGuild: map[string]bool{"g1": true},
	}
	r, presence, _, clock := setup(t, ms, live)
	clock.Set(start.Add(3 * time.Hour))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, ok := presence.Current("g1", "u1")
	if !ok {
		t.Fatal("expected session to be re-adopted")
	}
	if !sess.StartedAt.Equal(start) {
		t.Errorf("re-adopted session must keep original start, got %v", sess.StartedAt)
	}
	if ms.FlushCalls != 0 {
		t.Error("resuming must not flush anything")
	}
}

func TestRun_RestartDoesNotDoubleCount(t *testing.T) {
	// Open a session, simulate a restart (fresh trackers, same store),
	// reconcile against "still active", then close. The accumulated total
	// must equal the full wall-clock duration from the original start.
	ms := testutil.NewMockStore()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

	before := tracker.New(store.MetricPresence, ms)
	before.Open(ctx, "g1", "u1", "", start)

	live := &fakeLive{
		status:     map[string]string{"g1|u1": "idle"},
		knownGuild: map[string]bool{"g1": true},
	}
	r, presence, _, clock := setup(t, ms, live)
	clock.Set(start.Add(time.Hour))
	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	end := start.Add(5 * time.Hour)
	presence.Close(ctx, "g1", "u1", "", end)

	got := ms.BucketValue(store.MetricPresence, "g1", "u1", "2024-01-01", "")
	if got != (5 * time.Hour).Milliseconds() {
		t.Errorf("expected exactly 5h accumulated across the restart, got %dms", got)
	}
	if ms.OpenSessionCount() != 0 {
		t.Error("no durable session should remain after close")
	}
}

func TestRun_StaleSession_ClosedAtNow(t *testing.T) {
	ms := testutil.NewMockStore()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ms.PutOpenSession(ctx, store.OpenSession{
		Kind: store.MetricPresence, GuildID: "g1", UserID: "u1", StartedAt: start,
	})

	live := &fakeLive{
		status:     map[string]string{"g1|u1": "offline"},
		knownGuild: map[string]bool{"g1": true},
	}
	r, presence, _, clock := setup(t, ms, live)
	now := start.Add(2 * time.Hour)
	clock.Set(now)

	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := presence.Current("g1", "u1"); ok {
		t.Error("stale session should be closed")
	}
	got := ms.BucketValue(store.MetricPresence, "g1", "u1", "2024-01-01", "")
	if got != (2 * time.Hour).Milliseconds() {
		t.Errorf("expected 2h flushed at reconciliation, got %dms", got)
	}
}

func TestRun_UnknownGuild_DiscardedWithoutFlushing(t *testing.T) {
	ms := testutil.NewMockStore()
	ctx := context.Background()
	ms.PutOpenSession(ctx, store.OpenSession{
		Kind:      store.MetricPresence,
		GuildID:   "gone",
		UserID:    "u1",
		StartedAt: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
	})

	live := &fakeLive{knownGuild: map[string]bool{}}
	r, presence, _, clock := setup(t, ms, live)
	clock.Set(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ms.OpenSessionCount() != 0 {
		t.Error("orphaned record should be deleted")
	}
	if ms.FlushCalls != 0 {
		t.Error("orphaned session must not be flushed")
	}
	if _, ok := presence.Current("gone", "u1"); ok {
		t.Error("orphaned session must not be adopted")
	}
}

func TestRun_VoiceStillInChannel_Resumes(t *testing.T) {
	ms := testutil.NewMockStore()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ms.PutOpenSession(ctx, store.OpenSession{
		Kind: store.MetricVoice, GuildID: "g1", UserID: "u1", StartedAt: start, Dimension: "chanA",
	})

	live := &fakeLive{
		channel:    map[string]string{"g1|u1": "chanA"},
		knownGuild: map[string]bool{"g1": true},
	}
	r, _, voice, clock := setup(t, ms, live)
	clock.Set(start.Add(time.Hour))

	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, ok := voice.Current("g1", "u1")
	if !ok || sess.Dimension != "chanA" {
		t.Error("voice session in the recorded channel should resume")
	}
}

func TestRun_VoiceMovedChannels_ClosedAgainstRecordedChannel(t *testing.T) {
	ms := testutil.NewMockStore()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ms.PutOpenSession(ctx, store.OpenSession{
		Kind: store.MetricVoice, GuildID: "g1", UserID: "u1", StartedAt: start, Dimension: "chanA",
	})

	live := &fakeLive{
		channel:    map[string]string{"g1|u1": "chanB"},
		knownGuild: map[string]bool{"g1": true},
	}
	r, _, voice, clock := setup(t, ms, live)
	clock.Set(start.Add(time.Hour))

	if err := r.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := voice.Current("g1", "u1"); ok {
		t.Error("session in a different channel should be closed")
	}
	got := ms.BucketValue(store.MetricVoice, "g1", "u1", "2024-01-01", "chanA")
	if got != time.Hour.Milliseconds() {
		t.Errorf("expected 1h attributed to the recorded channel, got %dms", got)
	}
}

func TestRun_LiveStateError_ReadoptsWithoutClosing(t *testing.T) {
	ms := testutil.NewMockStore()
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	ms.PutOpenSession(ctx, store.OpenSession{
		Kind: store.MetricPresence, GuildID: "g1", UserID: "u1", StartedAt: start,
	})

	live := &fakeLive{err: errors.New("gateway timeout")}
	r, presence, _, clock := setup(t, ms, live)
	clock.Set(start.Add(time.Hour))

	if err := r.Run(ctx); err != nil {
		t.Fatalf("transient live-state errors must not fail the run: %v", err)
	}

	if _, ok := presence.Current("g1", "u1"); !ok {
		t.Error("session should be re-adopted when live state is unavailable")
	}
	if ms.FlushCalls != 0 {
		t.Error("nothing should be flushed on a transient error")
	}
}
