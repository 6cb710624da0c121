package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerEvent_NewerThan(t *testing.T) {
	at := time.Date(2025, 9, 1, 19, 0, 0, 0, time.UTC)
	start := TimerEvent{Sequence: 2, EventType: TimerEventStart, CreatedAt: at}
	snapshot := TimerEvent{Sequence: 1, EventType: TimerEventSync, CreatedAt: at.Add(time.Second)}

	assert.True(t, start.NewerThan(snapshot), "a later sequence wins over a later stamp")
	assert.False(t, snapshot.NewerThan(start))

	resync := TimerEvent{Sequence: 2, EventType: TimerEventSync, CreatedAt: at.Add(2 * time.Second)}
	assert.True(t, resync.NewerThan(start))
	assert.False(t, start.NewerThan(resync))
	assert.False(t, start.NewerThan(start))
}
