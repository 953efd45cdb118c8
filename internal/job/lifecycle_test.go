package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		raw      string
		want     State
		terminal bool
	}{
		{"queued", StateQueued, false},
		{"running", StateRunning, false},
		{"completed", StateCompleted, true},
		{"error", StateError, true},
		{"cancelled", StateCancelled, true},
		{"QUEUED", StateQueued, false},
		{"Completed", StateCompleted, true},
		{"CaNcElLeD", StateCancelled, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseState("j1", tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.terminal, IsFinished(got))
			assert.Equal(t, tt.terminal, got.IsTerminal())
		})
	}
}

func TestParseState_Unknown(t *testing.T) {
	for _, raw := range []string{"", "suspend", "finished", "canceled", " running"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseState("j1", raw)
			assert.ErrorIs(t, err, apperrors.ErrUnknownState)
		})
	}
}

func TestIsFinished_ZeroState(t *testing.T) {
	assert.False(t, IsFinished(""))
}
