// Package reconcile resumes or closes sessions left open by a previous
// process. It runs exactly once at startup, before live events flow, and
// is the only place a stored session start is trusted across a process
// boundary.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MikeSquared-Agency/pulse/internal/events"
	"github.com/MikeSquared-Agency/pulse/internal/store"
	"github.com/MikeSquared-Agency/pulse/internal/tracker"

	"github.com/coder/quartz"
)

// LiveState answers on-demand queries about a subject's current state.
// guildKnown is false when the gateway no longer serves the guild, which
// makes the stored session an unrecoverable orphan.
type LiveState interface {
	PresenceStatus(ctx context.Context, guildID, userID string) (status string, guildKnown bool, err error)
	VoiceChannel(ctx context.Context, guildID, userID string) (channelID string, guildKnown bool, err error)
}

type Runner struct {
	store    store.DataStore
	presence *tracker.Tracker
	voice    *tracker.Tracker
	live     LiveState
	clock    quartz.Clock
}

func New(s store.DataStore, presence, voice *tracker.Tracker, live LiveState) *Runner {
	return &Runner{
		store:    s,
		presence: presence,
		voice:    voice,
		live:     live,
		clock:    quartz.NewReal(),
	}
}

// SetClock replaces the wall clock (tests).
func (r *Runner) SetClock(c quartz.Clock) {
	r.clock = c
}

// Run loads every durable open session and either re-adopts it into its
// tracker (subject still active, original start preserved) or closes it at
// the current instant. Closing at now is a documented approximation: the
// true disconnect instant during the outage window is unrecoverable.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.reconcilePresence(ctx); err != nil {
		return fmt.Errorf("reconcile presence sessions: %w", err)
	}
	if err := r.reconcileVoice(ctx); err != nil {
		return fmt.Errorf("reconcile voice sessions: %w", err)
	}
	return nil
}

func (r *Runner) reconcilePresence(ctx context.Context) error {
	sessions, err := r.store.ListOpenSessions(ctx, store.MetricPresence)
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		status, guildKnown, err := r.live.PresenceStatus(ctx, sess.GuildID, sess.UserID)
		if err != nil {
			// Transient: keep the session accruing rather than truncating a
			// possibly-live one. The next restart gets another chance.
			slog.Warn("live presence state unavailable, re-adopting session",
				"guild", sess.GuildID, "user", sess.UserID, "error", err)
			r.presence.Adopt(sess)
			continue
		}
		if !guildKnown {
			r.discardOrphan(ctx, sess)
			continue
		}

		r.presence.Adopt(sess)
		if events.IsActive(status) {
			slog.Info("resumed presence session",
				"guild", sess.GuildID, "user", sess.UserID, "started_at", sess.StartedAt)
			continue
		}
		slog.Info("closing stale presence session",
			"guild", sess.GuildID, "user", sess.UserID, "started_at", sess.StartedAt)
		r.presence.Close(ctx, sess.GuildID, sess.UserID, "", r.clock.Now())
	}
	return nil
}

func (r *Runner) reconcileVoice(ctx context.Context) error {
	sessions, err := r.store.ListOpenSessions(ctx, store.MetricVoice)
	if err != nil {
		return err
	}

	for _, sess := range sessions {
		channelID, guildKnown, err := r.live.VoiceChannel(ctx, sess.GuildID, sess.UserID)
		if err != nil {
			slog.Warn("live voice state unavailable, re-adopting session",
				"guild", sess.GuildID, "user", sess.UserID, "error", err)
			r.voice.Adopt(sess)
			continue
		}
		if !guildKnown {
			r.discardOrphan(ctx, sess)
			continue
		}

		r.voice.Adopt(sess)
		if channelID != "" && channelID == sess.Dimension {
			slog.Info("resumed voice session",
				"guild", sess.GuildID, "user", sess.UserID, "channel", sess.Dimension)
			continue
		}
		// Left the channel (or moved) while we were down. Time in any new
		// channel starts with the next live voice event.
		slog.Info("closing stale voice session",
			"guild", sess.GuildID, "user", sess.UserID, "channel", sess.Dimension)
		r.voice.Close(ctx, sess.GuildID, sess.UserID, sess.Dimension, r.clock.Now())
	}
	return nil
}

// discardOrphan drops a session whose guild the gateway no longer knows.
// The elapsed time is unattributable and is not flushed; this is accepted
// as permanent, bounded data loss.
func (r *Runner) discardOrphan(ctx context.Context, sess store.OpenSession) {
	slog.Warn("discarding orphaned session for unknown guild",
		"kind", sess.Kind, "guild", sess.GuildID, "user", sess.UserID)
	if err := r.store.DeleteOpenSession(ctx, sess.Kind, sess.GuildID, sess.UserID); err != nil {
		slog.Error("failed to delete orphaned session",
			"kind", sess.Kind, "guild", sess.GuildID, "user", sess.UserID, "error", err)
	}
}
