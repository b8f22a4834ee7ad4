// Package monitor turns presence events for a guild's monitored member
// into human-readable narrative lines and delivers them to the configured
// channel. One member per guild; configuration lives in guild_monitors.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/activity"
	"github.com/MikeSquared-Agency/pulse/internal/events"
	"github.com/MikeSquared-Agency/pulse/internal/store"
)

// Notifier delivers a narrative line to a channel. Delivery is best
// effort; a failed post never blocks event processing.
type Notifier interface {
	Post(ctx context.Context, channelID, content string) error
}

type Service struct {
	store    store.DataStore
	notifier Notifier
}

// New creates the narrative service. notifier may be nil, in which case
// lines are logged but not delivered.
func New(s store.DataStore, n Notifier) *Service {
	return &Service{store: s, notifier: n}
}

// HandlePresence narrates a presence event if it concerns the guild's
// monitored member. Runs after the trackers, so lifetime totals already
// include any session the event just closed.
func (s *Service) HandlePresence(ctx context.Context, ev events.PresenceEvent) {
	cfg, err := s.store.GetMonitor(ctx, ev.GuildID)
	if err != nil {
		slog.Error("monitor config read failed", "guild", ev.GuildID, "error", err)
		return
	}
	if cfg == nil || cfg.UserID != ev.UserID {
		return
	}

	c := catalogFor(cfg.Language)
	name := ev.DisplayName
	if name == "" {
		name = ev.UserID
	}

	var lines []string
	changed := false

	if ev.OldStatus != ev.NewStatus {
		lines = append(lines, s.narrateStatus(ctx, cfg, c, name, ev))
		at := ev.Timestamp
		cfg.LastStatus = ev.NewStatus
		cfg.LastStatusAt = &at
		changed = true
	}

	started, stopped := activity.Diff(ev.OldActivities, ev.NewActivities)
	for _, a := range started {
		lines = append(lines, fmt.Sprintf(c.activityStart, name, a.Name, c.startVerb(a.Type)))
	}
	for _, a := range stopped {
		lines = append(lines, fmt.Sprintf(c.activityStop, name, a.Name, c.stopVerb(a.Type)))
	}

	// The event's old custom status is empty after a restart; the stored
	// value bridges the gap so unchanged statuses stay silent.
	prev := ev.OldCustomStatus
	if prev == "" {
		prev = cfg.LastCustomStatus
	}
	if prev != ev.NewCustomStatus {
		lines = append(lines, fmt.Sprintf(c.customStatus,
			ev.UserID, c.customStatusText(prev), c.customStatusText(ev.NewCustomStatus)))
		cfg.LastCustomStatus = ev.NewCustomStatus
		changed = true
	}

	if len(lines) > 0 {
		at := ev.Timestamp
		cfg.LastActivity = lines[len(lines)-1]
		cfg.LastActivityAt = &at
		changed = true
	}
	if changed {
		if err := s.store.PutMonitor(ctx, *cfg); err != nil {
			slog.Error("monitor config write failed", "guild", ev.GuildID, "error", err)
		}
	}

	for _, line := range lines {
		s.deliver(ctx, cfg.ChannelID, line)
	}
}

// narrateStatus builds the status-change line and maintains the narrative
// session window. The window is independent of the presence tracker: it
// anchors the "active for X this session" summary, not the aggregates.
func (s *Service) narrateStatus(ctx context.Context, cfg *store.Monitor, c catalog, name string, ev events.PresenceEvent) string {
	if events.IsActive(ev.NewStatus) {
		if cfg.SessionStart == nil {
			start := ev.Timestamp
			cfg.SessionStart = &start
		}
		return fmt.Sprintf(c.statusNow, name, c.statusLabel(ev.NewStatus))
	}

	line := fmt.Sprintf(c.statusOffline, name, c.statusWord(ev.NewStatus))
	if cfg.SessionStart != nil {
		session := ev.Timestamp.Sub(*cfg.SessionStart)
		totalMs, err := s.store.SumUserAll(ctx, store.MetricPresence, ev.GuildID, ev.UserID)
		if err != nil {
			slog.Error("lifetime total read failed", "guild", ev.GuildID, "user", ev.UserID, "error", err)
		}
		line += " " + fmt.Sprintf(c.sessionSummary,
			FormatDuration(session, cfg.Language),
			FormatDuration(time.Duration(totalMs)*time.Millisecond, cfg.Language))
		cfg.SessionStart = nil
	}
	return line
}

func (s *Service) deliver(ctx context.Context, channelID, line string) {
	if s.notifier == nil {
		slog.Info("monitor narrative", "line", line)
		return
	}
	if err := s.notifier.Post(ctx, channelID, line); err != nil {
		slog.Warn("narrative delivery failed", "channel", channelID, "error", err)
	}
}
