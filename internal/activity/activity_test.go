package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff_StartedAndStopped(t *testing.T) {
	game := Activity{Type: TypePlaying, Name: "Factorio"}
	music := Activity{Type: TypeListening, Name: "Spotify", Details: "Some Song"}
	stream := Activity{Type: TypeStreaming, Name: "Twitch"}

	started, stopped := Diff([]Activity{game, music}, []Activity{music, stream})

	require.Len(t, started, 1)
	assert.Equal(t, stream, started[0])
	require.Len(t, stopped, 1)
	assert.Equal(t, game, stopped[0])
}

func TestDiff_UnchangedProducesNothing(t *testing.T) {
	set := []Activity{
		{Type: TypePlaying, Name: "Factorio", ApplicationID: "123"},
		{Type: TypeWatching, Name: "YouTube"},
	}

	started, stopped := Diff(set, set)
	assert.Empty(t, started)
	assert.Empty(t, stopped)
}

func TestDiff_FieldChangeIsStopPlusStart(t *testing.T) {
	before := Activity{Type: TypeListening, Name: "Spotify", Details: "Track A"}
	after := Activity{Type: TypeListening, Name: "Spotify", Details: "Track B"}

	started, stopped := Diff([]Activity{before}, []Activity{after})

	require.Len(t, started, 1)
	require.Len(t, stopped, 1)
	assert.Equal(t, after, started[0])
	assert.Equal(t, before, stopped[0])
}

func TestDiff_Symmetry(t *testing.T) {
	a := []Activity{
		{Type: TypePlaying, Name: "Factorio"},
		{Type: TypeListening, Name: "Spotify", Details: "X"},
	}
	b := []Activity{
		{Type: TypePlaying, Name: "Factorio"},
		{Type: TypeCompeting, Name: "Chess"},
	}

	startedAB, stoppedAB := Diff(a, b)
	startedBA, stoppedBA := Diff(b, a)

	assert.ElementsMatch(t, startedAB, stoppedBA)
	assert.ElementsMatch(t, stoppedAB, startedBA)
}

func TestDiff_EmptySets(t *testing.T) {
	game := Activity{Type: TypePlaying, Name: "Factorio"}

	started, stopped := Diff(nil, []Activity{game})
	assert.Len(t, started, 1)
	assert.Empty(t, stopped)

	started, stopped = Diff([]Activity{game}, nil)
	assert.Empty(t, started)
	assert.Len(t, stopped, 1)
}

func TestStripCustom(t *testing.T) {
	list := []Activity{
		{Type: TypeCustom, State: "busy week"},
		{Type: TypePlaying, Name: "Factorio"},
	}

	out := StripCustom(list)
	require.Len(t, out, 1)
	assert.Equal(t, TypePlaying, out[0].Type)
}

func TestSignature_DistinguishesFields(t *testing.T) {
	base := Activity{Type: TypePlaying, Name: "Factorio"}
	withApp := Activity{Type: TypePlaying, Name: "Factorio", ApplicationID: "99"}

	assert.NotEqual(t, base.Signature(), withApp.Signature())
	assert.Equal(t, base.Signature(), base.Signature())
}
