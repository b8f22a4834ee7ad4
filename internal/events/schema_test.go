package events

import (
	"testing"
	"time"
)

func TestNormalizePresence_FillsDefaults(t *testing.T) {
	raw := []byte(`{"guild_id":"g1","user_id":"u1","new_status":"online"}`)

	e, err := NormalizePresence(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.EventID == "" {
		t.Error("expected generated event id")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected timestamp to be filled")
	}
	if e.OldStatus != StatusOffline {
		t.Errorf("expected default old status offline, got %s", e.OldStatus)
	}
	if e.NewStatus != StatusOnline {
		t.Errorf("expected new status online, got %s", e.NewStatus)
	}
}

func TestNormalizePresence_StripsCustomActivities(t *testing.T) {
	raw := []byte(`{
		"guild_id": "g1",
		"user_id": "u1",
		"new_status": "online",
		"new_activities": [
			{"type": "custom", "state": "afk"},
			{"type": "playing", "name": "Factorio"}
		]
	}`)

	e, err := NormalizePresence(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(e.NewActivities) != 1 {
		t.Fatalf("expected 1 activity after stripping custom, got %d", len(e.NewActivities))
	}
	if e.NewActivities[0].Name != "Factorio" {
		t.Errorf("expected Factorio, got %s", e.NewActivities[0].Name)
	}
}

func TestNormalizePresence_PreservesTimestamp(t *testing.T) {
	raw := []byte(`{"guild_id":"g1","user_id":"u1","new_status":"idle","timestamp":"2024-01-01T12:00:00Z"}`)

	e, err := NormalizePresence(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	if !e.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, e.Timestamp)
	}
}

func TestNormalizeVoice_Malformed(t *testing.T) {
	if _, err := NormalizeVoice([]byte(`not json`)); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestNormalizeMessage_FillsDefaults(t *testing.T) {
	e, err := NormalizeMessage([]byte(`{"guild_id":"g1","channel_id":"c1","user_id":"u1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.EventID == "" || e.Timestamp.IsZero() {
		t.Error("expected defaults to be filled")
	}
}

func TestIsActive(t *testing.T) {
	for _, s := range []string{StatusOnline, StatusIdle, StatusDnd} {
		if !IsActive(s) {
			t.Errorf("expected %s to be active", s)
		}
	}
	if IsActive(StatusOffline) {
		t.Error("offline must not be active")
	}
	if IsActive("invisible") {
		t.Error("unknown statuses must not be active")
	}
}
