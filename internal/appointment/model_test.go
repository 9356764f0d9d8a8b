package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"scheduled to confirmed", StatusScheduled, StatusConfirmed, true},
		{"scheduled to cancelled", StatusScheduled, StatusCancelled, true},
		{"scheduled to completed", StatusScheduled, StatusCompleted, true},
		{"scheduled to no_show", StatusScheduled, StatusNoShow, true},
		{"confirmed to cancelled", StatusConfirmed, StatusCancelled, true},
		{"confirmed to completed", StatusConfirmed, StatusCompleted, true},
		{"confirmed to scheduled", StatusConfirmed, StatusScheduled, false},
		{"confirmed to no_show", StatusConfirmed, StatusNoShow, false},
		{"self transition", StatusScheduled, StatusScheduled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []Status{StatusScheduled, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow}

	for _, terminal := range []Status{StatusCancelled, StatusCompleted, StatusNoShow} {
		assert.True(t, terminal.IsTerminal(), "%s should be terminal", terminal)
		for _, to := range all {
			assert.False(t, CanTransition(terminal, to),
				"transition %s -> %s must be rejected", terminal, to)
		}
	}

	assert.False(t, StatusScheduled.IsTerminal())
	assert.False(t, StatusConfirmed.IsTerminal())
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("CONFIRMED")
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, s)

	_, ok = ParseStatus("confirmed")
	assert.False(t, ok)

	_, ok = ParseStatus("PENDING")
	assert.False(t, ok)
}
