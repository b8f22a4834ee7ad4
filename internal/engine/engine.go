// Package engine routes normalized gateway events into the session
// trackers and the message counter. It holds no state of its own.
package engine

import (
	"context"

	"github.com/MikeSquared-Agency/pulse/internal/events"
	"github.com/MikeSquared-Agency/pulse/internal/tracker"
)

// Narrator receives presence events after the trackers have processed
// them (the monitored-subject narrative layer).
type Narrator interface {
	HandlePresence(ctx context.Context, ev events.PresenceEvent)
}

type Engine struct {
	presence *tracker.Tracker
	voice    *tracker.Tracker
	messages *tracker.MessageCounter
	narrator Narrator
}

func New(presence, voice *tracker.Tracker, messages *tracker.MessageCounter) *Engine {
	return &Engine{
		presence: presence,
		voice:    voice,
		messages: messages,
	}
}

// SetNarrator registers the narrative layer. Optional.
func (e *Engine) SetNarrator(n Narrator) {
	e.narrator = n
}

// HandlePresence opens or closes the presence session for the member.
// Any non-offline status counts as active; transitions between active
// statuses leave the session running. The narrator runs last so that a
// close has already flushed into the aggregates it reads.
func (e *Engine) HandlePresence(ctx context.Context, ev events.PresenceEvent) {
	if events.IsActive(ev.NewStatus) {
		e.presence.Open(ctx, ev.GuildID, ev.UserID, "", ev.Timestamp)
	} else {
		e.presence.Close(ctx, ev.GuildID, ev.UserID, "", ev.Timestamp)
	}

	if e.narrator != nil {
		e.narrator.HandlePresence(ctx, ev)
	}
}

// HandleVoice maps a channel transition onto the voice session. A change
// of channel closes the old session and opens a new one at the same
// instant, so time is attributed per channel with no gap or overlap.
func (e *Engine) HandleVoice(ctx context.Context, ev events.VoiceEvent) {
	switch {
	case ev.OldChannelID == ev.NewChannelID:
		// Duplicate or mute/deafen-only update.
	case ev.OldChannelID == "":
		e.voice.Open(ctx, ev.GuildID, ev.UserID, ev.NewChannelID, ev.Timestamp)
	case ev.NewChannelID == "":
		e.voice.Close(ctx, ev.GuildID, ev.UserID, ev.OldChannelID, ev.Timestamp)
	default:
		e.voice.Move(ctx, ev.GuildID, ev.UserID, ev.NewChannelID, ev.Timestamp)
	}
}

// HandleMessage counts one message in its channel's day bucket.
func (e *Engine) HandleMessage(ctx context.Context, ev events.MessageEvent) {
	e.messages.Record(ctx, ev.GuildID, ev.ChannelID, ev.UserID, ev.Timestamp)
}
