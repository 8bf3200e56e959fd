package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to SlotStatus
		allowed  bool
	}{
		{SlotAvailable, SlotBooked, true},
		{SlotAvailable, SlotCancelled, false},
		{SlotAvailable, SlotCompleted, false},
		{SlotBooked, SlotAvailable, true}, // reschedule release
		{SlotBooked, SlotCancelled, true},
		{SlotBooked, SlotCompleted, true},
		{SlotCancelled, SlotBooked, false},
		{SlotCancelled, SlotAvailable, false},
		{SlotCompleted, SlotBooked, false},
		{SlotCompleted, SlotAvailable, false},
	}

	for _, c := range cases {
		assert.Equal(t, c.allowed, c.from.CanTransition(c.to), "%s -> %s", c.from, c.to)
	}

	assert.False(t, SlotAvailable.Terminal())
	assert.False(t, SlotBooked.Terminal())
	assert.True(t, SlotCancelled.Terminal())
	assert.True(t, SlotCompleted.Terminal())
}
