package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/pulse/internal/activity"

	"github.com/google/uuid"
)

// Presence statuses as delivered by the gateway.
const (
	StatusOnline  = "online"
	StatusIdle    = "idle"
	StatusDnd     = "dnd"
	StatusOffline = "offline"
)

// IsActive reports whether a status counts toward active time.
// Everything except offline (and unknown values) is active.
func IsActive(status string) bool {
	switch status {
	case StatusOnline, StatusIdle, StatusDnd:
		return true
	}
	return false
}

// PresenceEvent is a presence state change for one guild member.
type PresenceEvent struct {
	EventID         string              `json:"event_id"`
	GuildID         string              `json:"guild_id"`
	UserID          string              `json:"user_id"`
	OldStatus       string              `json:"old_status"`
	NewStatus       string              `json:"new_status"`
	OldActivities   []activity.Activity `json:"old_activities"`
	NewActivities   []activity.Activity `json:"new_activities"`
	OldCustomStatus string              `json:"old_custom_status"`
	NewCustomStatus string              `json:"new_custom_status"`
	DisplayName     string              `json:"display_name"`
	Timestamp       time.Time           `json:"timestamp"`
}

// VoiceEvent is a voice channel membership change. An empty channel id
// means "not in any channel" on that side of the transition.
type VoiceEvent struct {
	EventID      string    `json:"event_id"`
	GuildID      string    `json:"guild_id"`
	UserID       string    `json:"user_id"`
	OldChannelID string    `json:"old_channel_id"`
	NewChannelID string    `json:"new_channel_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// MessageEvent records that a member posted a message in a channel.
type MessageEvent struct {
	EventID   string    `json:"event_id"`
	GuildID   string    `json:"guild_id"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizePresence parses a raw gateway payload and fills in missing
// fields with sensible defaults. Custom-status entries are stripped from
// both activity sets; they travel in the dedicated custom-status fields.
func NormalizePresence(raw []byte) (PresenceEvent, error) {
	var e PresenceEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return PresenceEvent{}, err
	}

	fillDefaults(&e.EventID, &e.Timestamp)
	if e.OldStatus == "" {
		e.OldStatus = StatusOffline
	}
	if e.NewStatus == "" {
		e.NewStatus = StatusOffline
	}
	e.OldActivities = activity.StripCustom(e.OldActivities)
	e.NewActivities = activity.StripCustom(e.NewActivities)

	return e, nil
}

func NormalizeVoice(raw []byte) (VoiceEvent, error) {
	var e VoiceEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return VoiceEvent{}, err
	}
	fillDefaults(&e.EventID, &e.Timestamp)
	return e, nil
}

func NormalizeMessage(raw []byte) (MessageEvent, error) {
	var e MessageEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return MessageEvent{}, err
	}
	fillDefaults(&e.EventID, &e.Timestamp)
	return e, nil
}

func fillDefaults(eventID *string, ts *time.Time) {
	if *eventID == "" {
		*eventID = uuid.New().String()
	}
	if ts.IsZero() {
		slog.Warn("event missing timestamp, using ingestion time", "event_id", *eventID)
		*ts = time.Now().UTC()
	}
}
