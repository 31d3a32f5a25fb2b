package task

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusDownloading, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusDone, false},
		{StatusDownloading, StatusDone, true},
		{StatusDownloading, StatusFailed, true},
		{StatusDownloading, StatusPending, false},
		{StatusDone, StatusFailed, false},
		{StatusDone, StatusDownloading, false},
		{StatusFailed, StatusDone, false},
		{StatusFailed, StatusPending, false},
		{StatusDone, StatusDone, true},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusDownloading.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusFailed.Terminal())
}

func TestAudioTransitions(t *testing.T) {
	assert.True(t, AudioNone.CanTransition(AudioPending))
	assert.True(t, AudioNone.CanTransition(AudioOK))
	assert.True(t, AudioPending.CanTransition(AudioFailed))
	assert.True(t, AudioPending.CanTransition(AudioOK))
	assert.False(t, AudioPending.CanTransition(AudioNone))
	assert.False(t, AudioOK.CanTransition(AudioFailed))
	assert.False(t, AudioFailed.CanTransition(AudioPending))
}

func TestSourceIsRemote(t *testing.T) {
	assert.True(t, Source{URL: "https://example.com/v"}.IsRemote())
	assert.False(t, Source{LocalFile: "a.mp4"}.IsRemote())
	assert.False(t, Source{LocalFile: "a.mp4", URL: "https://example.com/v"}.IsRemote())
}

func TestPhaseError(t *testing.T) {
	base := errors.New("download failed: 403")
	err := InPhase(PhaseAcquire, base)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "acquire: download failed: 403", err.Error())

	phase, desc := phaseOf(fmt.Errorf("wrapped: %w", err))
	assert.Equal(t, PhaseAcquire, phase)
	assert.Equal(t, "download failed: 403", desc)

	phase, desc = phaseOf(errors.New("plain"))
	assert.Equal(t, PhaseRunner, phase)
	assert.Equal(t, "plain", desc)

	assert.NoError(t, InPhase(PhaseMerge, nil))
}
