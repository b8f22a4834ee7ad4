// Package tracker turns discrete state-change events into non-overlapping
// session intervals. Two instances run side by side: one for presence
// activity, one for voice channel membership.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/daybucket"
	"github.com/MikeSquared-Agency/pulse/internal/store"

	"github.com/coder/quartz"
)

// OpenedHook is called after a session opens.
type OpenedHook func(ctx context.Context, sess store.OpenSession)

// ClosedHook is called after a session closes and its buckets are flushed.
type ClosedHook func(ctx context.Context, sess store.OpenSession, dimension string, end time.Time, elapsed time.Duration)

type sessionKey struct {
	guildID string
	userID  string
}

// Tracker owns the in-memory open-session map for one session kind. Each
// open session is mirrored 1:1 into the durable store; the mirror is
// deleted in the same transaction that flushes the session's buckets.
type Tracker struct {
	kind  string
	store store.DataStore
	clock quartz.Clock

	mu   sync.Mutex
	open map[sessionKey]store.OpenSession

	onOpened OpenedHook
	onClosed ClosedHook
}

// New creates a tracker for one kind. The kind doubles as the metric name
// the flushed buckets are stored under (store.MetricPresence or
// store.MetricVoice).
func New(kind string, s store.DataStore) *Tracker {
	return &Tracker{
		kind:  kind,
		store: s,
		clock: quartz.NewReal(),
		open:  make(map[sessionKey]store.OpenSession),
	}
}

// SetClock replaces the wall clock (tests).
func (t *Tracker) SetClock(c quartz.Clock) {
	t.clock = c
}

// SetOpenedHook registers a callback for session opens (narrative layer).
func (t *Tracker) SetOpenedHook(fn OpenedHook) {
	t.onOpened = fn
}

// SetClosedHook registers a callback for session closes.
func (t *Tracker) SetClosedHook(fn ClosedHook) {
	t.onClosed = fn
}

// Open starts a session unless one is already open for this subject.
// Re-opening is a no-op and never resets the start time, so duplicate
// transition notifications are harmless.
func (t *Tracker) Open(ctx context.Context, guildID, userID, dimension string, at time.Time) {
	k := sessionKey{guildID, userID}

	t.mu.Lock()
	if _, ok := t.open[k]; ok {
		t.mu.Unlock()
		return
	}
	sess := store.OpenSession{
		Kind:      t.kind,
		GuildID:   guildID,
		UserID:    userID,
		StartedAt: at.UTC(),
		Dimension: dimension,
	}
	t.open[k] = sess
	t.mu.Unlock()

	// Best effort: if the durable mirror is lost, a crash truncates at
	// most this one session's start. The in-memory session stays valid.
	if err := t.store.PutOpenSession(ctx, sess); err != nil {
		slog.Warn("failed to persist open session",
			"kind", t.kind, "guild", guildID, "user", userID, "error", err)
	}

	if t.onOpened != nil {
		t.onOpened(ctx, sess)
	}
}

// Close ends a session, splits the elapsed time at UTC midnights, and
// flushes the segments plus the open-session delete in one transaction.
// Closing a subject with no open session is a no-op; presence feeds are
// known to redeliver and reorder notifications.
//
// On a storage failure both the in-memory session and the durable row are
// retained, so the next close attempt or the next startup reconciliation
// retries the flush without losing or double-counting time.
func (t *Tracker) Close(ctx context.Context, guildID, userID, fallbackDimension string, at time.Time) {
	k := sessionKey{guildID, userID}

	t.mu.Lock()
	sess, ok := t.open[k]
	t.mu.Unlock()
	if !ok {
		return
	}

	dimension := sess.Dimension
	if dimension == "" {
		dimension = fallbackDimension
	}
	at = at.UTC()
	elapsed := at.Sub(sess.StartedAt)

	if elapsed > 0 {
		segs := daybucket.Split(sess.StartedAt, at)
		if err := t.store.FlushSession(ctx, sess, t.kind, dimension, segs); err != nil {
			slog.Error("failed to flush session, retaining for retry",
				"kind", t.kind, "guild", guildID, "user", userID, "error", err)
			return
		}
	} else {
		// Nothing to account for; just drop the durable mirror.
		if err := t.store.DeleteOpenSession(ctx, sess.Kind, guildID, userID); err != nil {
			slog.Error("failed to delete empty session, retaining for retry",
				"kind", t.kind, "guild", guildID, "user", userID, "error", err)
			return
		}
	}

	t.mu.Lock()
	delete(t.open, k)
	t.mu.Unlock()

	if t.onClosed != nil {
		t.onClosed(ctx, sess, dimension, at, elapsed)
	}
}

// Move reattributes an ongoing session to a new dimension (voice channel
// switch without disconnect): close against the old dimension, reopen with
// the new one at the same instant.
func (t *Tracker) Move(ctx context.Context, guildID, userID, newDimension string, at time.Time) {
	t.Close(ctx, guildID, userID, "", at)
	t.Open(ctx, guildID, userID, newDimension, at)
}

// Adopt installs a session recovered from the durable store without
// rewriting it. Only startup reconciliation calls this, before live events
// are processed. An existing in-memory session wins.
func (t *Tracker) Adopt(sess store.OpenSession) {
	k := sessionKey{sess.GuildID, sess.UserID}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.open[k]; ok {
		return
	}
	t.open[k] = sess
}

// Current returns the subject's open session, if any.
func (t *Tracker) Current(guildID, userID string) (store.OpenSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sess, ok := t.open[sessionKey{guildID, userID}]
	return sess, ok
}

// Elapsed reports how long the subject's session has been open, for
// "still counting" displays. It never touches stored aggregates.
func (t *Tracker) Elapsed(guildID, userID string) (time.Duration, bool) {
	t.mu.Lock()
	sess, ok := t.open[sessionKey{guildID, userID}]
	t.mu.Unlock()
	if !ok {
		return 0, false
	}
	return t.clock.Now().UTC().Sub(sess.StartedAt), true
}

// Count returns how many sessions are open (health endpoint).
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
