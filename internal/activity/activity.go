// Package activity models a subject's concurrent activities (games,
// streams, listening sessions) and computes start/stop transitions
// between two presence snapshots.
package activity

import "strings"

// Activity kinds as reported by the gateway.
const (
	TypePlaying   = "playing"
	TypeStreaming = "streaming"
	TypeListening = "listening"
	TypeWatching  = "watching"
	TypeCompeting = "competing"
	TypeCustom    = "custom"
)

type Activity struct {
	Type          string `json:"type"`
	Name          string `json:"name"`
	Details       string `json:"details,omitempty"`
	State         string `json:"state,omitempty"`
	ApplicationID string `json:"application_id,omitempty"`
}

// Signature is the identity of an ongoing activity. Two snapshots refer to
// the same activity iff their signatures are equal; any field change makes
// a new identity, so a changed detail shows up as one stop plus one start.
func (a Activity) Signature() string {
	return strings.Join([]string{a.Type, a.Name, a.Details, a.State, a.ApplicationID}, "::")
}

// Diff compares two activity snapshots by signature.
// started holds activities present in next but not prev; stopped holds
// activities present in prev but not next. Unchanged activities are omitted.
func Diff(prev, next []Activity) (started, stopped []Activity) {
	prevSigs := make(map[string]struct{}, len(prev))
	for _, a := range prev {
		prevSigs[a.Signature()] = struct{}{}
	}
	nextSigs := make(map[string]struct{}, len(next))
	for _, a := range next {
		nextSigs[a.Signature()] = struct{}{}
	}

	for _, a := range next {
		if _, ok := prevSigs[a.Signature()]; !ok {
			started = append(started, a)
		}
	}
	for _, a := range prev {
		if _, ok := nextSigs[a.Signature()]; !ok {
			stopped = append(stopped, a)
		}
	}
	return started, stopped
}

// StripCustom removes custom-status entries. The custom status is a single
// value compared separately, never part of the general diff.
func StripCustom(list []Activity) []Activity {
	out := make([]Activity, 0, len(list))
	for _, a := range list {
		if a.Type != TypeCustom {
			out = append(out, a)
		}
	}
	return out
}
